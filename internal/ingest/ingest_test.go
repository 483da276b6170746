package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docqd/internal/doccache"
	"github.com/fyrsmithlabs/docqd/internal/extract"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	mu    sync.Mutex
	pages []extract.Page
	err   error
	calls int
}

func (f *fakeExtractor) ExtractPages(context.Context, []byte) ([]extract.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pages, f.err
}

type recordingIndex struct {
	mu    sync.Mutex
	texts []string
	metas []vectorstore.PageMeta
	err   error
}

func (r *recordingIndex) Add(_ context.Context, text string, meta vectorstore.PageMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.texts = append(r.texts, text)
	r.metas = append(r.metas, meta)
	return nil
}

func (r *recordingIndex) AddWithEmbedding(_ context.Context, text string, _ []float32, meta vectorstore.PageMeta) error {
	return r.Add(context.Background(), text, meta)
}

func (r *recordingIndex) Search(context.Context, string, int) ([]vectorstore.Passage, error) {
	return nil, nil
}

func (r *recordingIndex) Reset(context.Context) error { return nil }

func (r *recordingIndex) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

var pdfBytes = []byte("%PDF-1.4\nfake body")

func newTestService(ex *fakeExtractor, idx *recordingIndex) (*Service, *doccache.Cache) {
	cache := doccache.New(time.Hour)
	return NewService(cache, ex, idx, nil), cache
}

func TestIngest_IndexesAndCaches(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{
		{Number: 1, Text: "Patient has elevated glucose."},
		{Number: 2, Text: "Insulin adjusted."},
	}}
	idx := &recordingIndex{}
	svc, cache := newTestService(ex, idx)

	res, err := svc.Ingest(context.Background(), pdfBytes, "case.pdf")
	require.NoError(t, err)

	assert.False(t, res.Deduplicated)
	assert.Equal(t, 2, res.PagesIndexed)
	assert.Equal(t, doccache.Key(pdfBytes), res.Key)

	require.Len(t, idx.metas, 2)
	assert.Equal(t, "case.pdf", idx.metas[0].Filename)
	assert.Equal(t, 1, idx.metas[0].Page)
	assert.Equal(t, res.Key, idx.metas[0].DocID)

	pages, ok := cache.Get(res.Key)
	require.True(t, ok)
	assert.Len(t, pages, 2)
	assert.Equal(t, "case.pdf", pages[0].Filename)
}

func TestIngest_DeduplicatesByContent(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "text body here"}}}
	idx := &recordingIndex{}
	svc, _ := newTestService(ex, idx)

	first, err := svc.Ingest(context.Background(), pdfBytes, "a.pdf")
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)

	// Same bytes under a different filename.
	second, err := svc.Ingest(context.Background(), pdfBytes, "renamed.pdf")
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, 0, second.PagesIndexed)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, ex.calls, "extraction runs once")
	assert.Len(t, idx.texts, 1, "no new vectors on the duplicate")
}

func TestIngest_ConcurrentDuplicatesIndexOnce(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "text body here"}}}
	idx := &recordingIndex{}
	svc, _ := newTestService(ex, idx)

	const callers = 8
	results := make([]Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(context.Background(), pdfBytes, "case.pdf")
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, doccache.Key(pdfBytes), results[i].Key)
		if results[i].Deduplicated {
			assert.Equal(t, 0, results[i].PagesIndexed)
		} else {
			fresh++
			assert.Equal(t, 1, results[i].PagesIndexed)
		}
	}
	assert.Equal(t, 1, fresh, "exactly one caller does the indexing")
	assert.Equal(t, 1, ex.calls, "extraction runs once")
	assert.Equal(t, 1, idx.Count(), "identical uploads index a single vector set")
}

func TestIngest_RejectsNonPDF(t *testing.T) {
	ex := &fakeExtractor{}
	idx := &recordingIndex{}
	svc, cache := newTestService(ex, idx)

	_, err := svc.Ingest(context.Background(), []byte("plain text file"), "notes.txt")
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.Zero(t, ex.calls)
	assert.Zero(t, cache.Len(), "no side effects on rejected input")
}

func TestIngest_EmptyPagesSkippedButNumbersKept(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: "second page text"},
	}}
	idx := &recordingIndex{}
	svc, cache := newTestService(ex, idx)

	res, err := svc.Ingest(context.Background(), pdfBytes, "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, 1, res.PagesIndexed)
	require.Len(t, idx.metas, 1)
	assert.Equal(t, 2, idx.metas[0].Page)

	pages, ok := cache.Get(res.Key)
	require.True(t, ok)
	assert.Len(t, pages, 2, "cache keeps every page for alignment")
}

func TestIngest_NoTextIsError(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: ""}}}
	idx := &recordingIndex{}
	svc, cache := newTestService(ex, idx)

	_, err := svc.Ingest(context.Background(), pdfBytes, "scan.pdf")
	assert.ErrorIs(t, err, ErrNoPages)
	assert.Zero(t, cache.Len())
}

func TestIngest_ExtractionFailureSurfaced(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("pdftotext exploded")}
	idx := &recordingIndex{}
	svc, cache := newTestService(ex, idx)

	_, err := svc.Ingest(context.Background(), pdfBytes, "bad.pdf")
	require.Error(t, err)
	assert.Zero(t, cache.Len(), "failed ingest leaves no cache entry")
}

func TestIngest_IndexFailureLeavesNoCacheEntry(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "body"}}}
	idx := &recordingIndex{err: vectorstore.ErrDimensionMismatch}
	svc, cache := newTestService(ex, idx)

	_, err := svc.Ingest(context.Background(), pdfBytes, "case.pdf")
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Zero(t, cache.Len(), "retry must re-run the whole ingest")
}
