package retrieval

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubIndex records the last search and returns canned passages.
type stubIndex struct {
	lastQuery string
	lastK     int
	passages  []vectorstore.Passage
}

func (s *stubIndex) Add(context.Context, string, vectorstore.PageMeta) error {
	return nil
}

func (s *stubIndex) AddWithEmbedding(context.Context, string, []float32, vectorstore.PageMeta) error {
	return nil
}

func (s *stubIndex) Search(_ context.Context, query string, k int) ([]vectorstore.Passage, error) {
	s.lastQuery = query
	s.lastK = k
	if len(s.passages) > k {
		return s.passages[:k], nil
	}
	return s.passages, nil
}

func (s *stubIndex) Reset(context.Context) error { return nil }

func (s *stubIndex) Count() int { return len(s.passages) }

func TestGateway_ClampK(t *testing.T) {
	g := NewGateway(&stubIndex{}, Config{DefaultK: 6, MaxK: 10}, nil)

	assert.Equal(t, 6, g.ClampK(0))
	assert.Equal(t, 6, g.ClampK(-3))
	assert.Equal(t, 4, g.ClampK(4))
	assert.Equal(t, 10, g.ClampK(99))
}

func TestGateway_Search(t *testing.T) {
	idx := &stubIndex{passages: []vectorstore.Passage{
		{Meta: vectorstore.PageMeta{Filename: "a.pdf", Page: 1}, Distance: 0.1},
		{Meta: vectorstore.PageMeta{Filename: "a.pdf", Page: 2}, Distance: 0.4},
	}}
	g := NewGateway(idx, Config{}, nil)

	passages, err := g.Search(context.Background(), "glucose", 2)
	require.NoError(t, err)
	assert.Len(t, passages, 2)
	assert.Equal(t, "glucose", idx.lastQuery)
	assert.Equal(t, 2, idx.lastK)
}

func TestGateway_EmptyQuery(t *testing.T) {
	g := NewGateway(&stubIndex{}, Config{}, nil)

	_, err := g.Search(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestGateway_DefaultKFlowsToIndex(t *testing.T) {
	idx := &stubIndex{}
	g := NewGateway(idx, Config{DefaultK: 5, MaxK: 8}, nil)

	_, err := g.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, idx.lastK)
}
