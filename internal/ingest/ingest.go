// Package ingest turns uploaded PDFs into indexed, cached pages.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/docqd/internal/doccache"
	"github.com/fyrsmithlabs/docqd/internal/extract"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docqd.ingest")

var (
	// ErrNotPDF indicates an upload whose bytes are not a PDF. Rejected
	// immediately, no side effects.
	ErrNotPDF = errors.New("upload is not a PDF")

	// ErrNoPages indicates a PDF from which no indexable text was
	// extracted.
	ErrNoPages = errors.New("no extractable text")
)

var pdfMagic = []byte("%PDF-")

// PageExtractor extracts per-page text from raw PDF bytes.
type PageExtractor interface {
	ExtractPages(ctx context.Context, raw []byte) ([]extract.Page, error)
}

// Result reports the outcome of one ingest call.
type Result struct {
	// Deduplicated reports that byte-identical content was already
	// ingested; no vectors were added.
	Deduplicated bool `json:"deduplicated"`

	// PagesIndexed is the number of pages written to the index.
	PagesIndexed int `json:"pages_indexed"`

	// Key is the content-addressed digest of the upload.
	Key string `json:"key"`
}

// Service ingests documents: dedup by content digest, extract page text,
// index each page, then cache the pages.
type Service struct {
	cache     *doccache.Cache
	extractor PageExtractor
	index     vectorstore.Index
	logger    *zap.Logger

	// mu guards keyLocks. Ingests of the same content key are
	// serialized so concurrent identical uploads index exactly once;
	// distinct keys proceed in parallel.
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewService creates an ingest service.
func NewService(cache *doccache.Cache, extractor PageExtractor, index vectorstore.Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:     cache,
		extractor: extractor,
		index:     index,
		logger:    logger,
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockKey(key string) func() {
	s.mu.Lock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Ingest processes one uploaded file. Content-identical uploads, whatever
// their filename, index pages exactly once: repeats report Deduplicated
// with zero pages added. The cache entry is written only after every page
// indexed, so a failed ingest is retried from scratch rather than half
// remembered.
func (s *Service) Ingest(ctx context.Context, raw []byte, filename string) (Result, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("filename", filename))

	if !bytes.HasPrefix(raw, pdfMagic) {
		return Result{}, ErrNotPDF
	}

	key := doccache.Key(raw)
	span.SetAttributes(attribute.String("key", key))

	unlock := s.lockKey(key)
	defer unlock()

	if _, ok := s.cache.Get(key); ok {
		s.logger.Info("duplicate upload skipped",
			zap.String("filename", filename), zap.String("key", key))
		return Result{Deduplicated: true, PagesIndexed: 0, Key: key}, nil
	}

	pages, err := s.extractor.ExtractPages(ctx, raw)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", filename, err)
	}

	indexed := 0
	cached := make([]doccache.Page, 0, len(pages))
	for _, page := range pages {
		cached = append(cached, doccache.Page{
			Text:     page.Text,
			Number:   page.Number,
			Filename: filename,
		})
		if page.Text == "" {
			continue
		}
		meta := vectorstore.PageMeta{
			DocID:    key,
			Filename: filename,
			Page:     page.Number,
		}
		if err := s.index.Add(ctx, page.Text, meta); err != nil {
			return Result{}, fmt.Errorf("index page %d of %s: %w", page.Number, filename, err)
		}
		indexed++
	}
	if indexed == 0 {
		return Result{}, fmt.Errorf("%w in %s", ErrNoPages, filename)
	}

	s.cache.Put(key, cached)
	s.logger.Info("document ingested",
		zap.String("filename", filename),
		zap.String("key", key),
		zap.Int("pages_indexed", indexed))

	return Result{Deduplicated: false, PagesIndexed: indexed, Key: key}, nil
}
