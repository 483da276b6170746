package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder maps known texts to fixed unit vectors so distance
// ordering in tests is deterministic.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(text string, vec []float32) {
	f.vectors[text] = vec
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	// Deterministic fallback spread across dimensions.
	vec := make([]float32, f.dim)
	vec[len(text)%f.dim] = 1
	return vec, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func newTestIndex(t *testing.T) (*ChromemIndex, *fakeEmbedder) {
	t.Helper()
	emb := newFakeEmbedder(4)
	idx, err := Create(Config{Path: t.TempDir(), VectorSize: 4}, emb, zap.NewNop())
	require.NoError(t, err)
	return idx, emb
}

func TestSearch_OrderedByDistance(t *testing.T) {
	idx, emb := newTestIndex(t)
	ctx := context.Background()

	emb.set("glucose elevated", []float32{1, 0, 0, 0})
	emb.set("insulin dosage", []float32{0.6, 0.8, 0, 0})
	emb.set("billing address", []float32{0, 0, 1, 0})
	emb.set("query glucose", []float32{1, 0, 0, 0})

	for i, text := range []string{"glucose elevated", "insulin dosage", "billing address"} {
		err := idx.Add(ctx, text, PageMeta{DocID: "d1", Filename: "case.pdf", Page: i + 1})
		require.NoError(t, err)
	}

	passages, err := idx.Search(ctx, "query glucose", 3)
	require.NoError(t, err)
	require.Len(t, passages, 3)

	assert.Equal(t, "glucose elevated", passages[0].Meta.SourceText)
	assert.Equal(t, 1, passages[0].Meta.Page)
	for i := 1; i < len(passages); i++ {
		assert.LessOrEqual(t, passages[i-1].Distance, passages[i].Distance,
			"distances must be non-decreasing")
	}
	for _, p := range passages {
		assert.GreaterOrEqual(t, p.Distance, float32(0))
	}
}

func TestSearch_KNClamped(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := idx.Add(ctx, fmt.Sprintf("page text %d", i), PageMeta{Filename: "a.pdf", Page: i + 1})
		require.NoError(t, err)
	}

	passages, err := idx.Search(ctx, "anything", 10)
	require.NoError(t, err)
	assert.Len(t, passages, 3, "k larger than record count returns everything")

	passages, err = idx.Search(ctx, "anything", 2)
	require.NoError(t, err)
	assert.Len(t, passages, 2)
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx, _ := newTestIndex(t)

	passages, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	idx, _ := newTestIndex(t)

	err := idx.AddWithEmbedding(context.Background(), "text", []float32{1, 0}, PageMeta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Count())
}

func TestAdd_EmptyText(t *testing.T) {
	idx, _ := newTestIndex(t)

	err := idx.Add(context.Background(), "   ", PageMeta{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestReset_ThenSearchEmpty(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "some page", PageMeta{Filename: "a.pdf", Page: 1}))
	require.Equal(t, 1, idx.Count())

	require.NoError(t, idx.Reset(ctx))

	assert.Equal(t, 0, idx.Count())
	passages, err := idx.Search(ctx, "some page", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestConcurrentAddSearchReset(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	// Writers keep appending pages.
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				text := fmt.Sprintf("worker %d page %d body", w, i)
				err := idx.Add(ctx, text, PageMeta{DocID: "d1", Filename: "concurrent.pdf", Page: i + 1})
				assert.NoError(t, err)
			}
		}(w)
	}

	// Readers search throughout; a search racing a reset must still see
	// a consistent index, never an error from a half-cleared one.
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				passages, err := idx.Search(ctx, "worker query", 5)
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(passages), 5)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			assert.NoError(t, idx.Reset(ctx))
		}
	}()

	wg.Wait()

	// After a final reset the index behaves like a fresh one.
	require.NoError(t, idx.Reset(ctx))
	assert.Equal(t, 0, idx.Count())
	passages, err := idx.Search(ctx, "worker query", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestOpen_MissingIndexFatal(t *testing.T) {
	emb := newFakeEmbedder(4)

	_, err := Open(Config{Path: t.TempDir() + "/nonexistent", VectorSize: 4}, emb, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingIndex))
}

func TestOpen_AfterCreatePersists(t *testing.T) {
	dir := t.TempDir()
	emb := newFakeEmbedder(4)
	ctx := context.Background()

	idx, err := Create(Config{Path: dir, VectorSize: 4}, emb, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "persisted page", PageMeta{Filename: "a.pdf", Page: 1}))

	reopened, err := Open(Config{Path: dir, VectorSize: 4}, emb, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	passages, err := reopened.Search(ctx, "persisted page", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "a.pdf", passages[0].Meta.Filename)
	assert.Equal(t, 1, passages[0].Meta.Page)
}

func TestPageMeta_RoundTrip(t *testing.T) {
	meta := PageMeta{DocID: "abc123", Filename: "case.pdf", Page: 7}
	got := metaFromMap(meta.toMap(), "body")

	assert.Equal(t, "abc123", got.DocID)
	assert.Equal(t, "case.pdf", got.Filename)
	assert.Equal(t, 7, got.Page)
	assert.Equal(t, "body", got.SourceText)
}
