package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docqd.vectorstore")

// Config holds configuration for the chromem-go backed index.
type Config struct {
	// Path is the directory for persistent storage.
	Path string

	// Collection is the collection name.
	Collection string

	// VectorSize is the fixed embedding dimension.
	VectorSize int

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "docqd_pages"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex implements Index on top of chromem-go.
//
// chromem-go is an embeddable vector database: pure Go, in-memory, with
// automatic gob persistence to disk. Search is exact nearest-neighbor over
// the full stored set, which is the retrieval contract here — correctness
// over scale, acceptable for corpora of thousands of pages.
//
// Distances are reported as 1 - cosine similarity, so they are
// non-negative and ascending-is-better.
type ChromemIndex struct {
	db       *chromem.DB
	embedder Embedder
	config   Config
	logger   *zap.Logger

	// mu sequences Reset against Add/Search so a partially-cleared
	// index is never observed. Add and Search share the read side.
	mu         sync.RWMutex
	collection *chromem.Collection
}

// Create opens the index at cfg.Path, creating it if absent. Used by the
// offline index builder.
func Create(cfg Config, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	return newIndex(cfg, embedder, logger, true)
}

// Open opens an existing index at cfg.Path. Returns ErrMissingIndex when
// no persisted collection exists there; the serving process treats that as
// fatal at boot rather than serving against an empty index unknowingly.
func Open(cfg Config, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	return newIndex(cfg, embedder, logger, false)
}

func newIndex(cfg Config, embedder Embedder, logger *zap.Logger, create bool) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	cfg.Path = path

	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingIndex, path)
		}
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	idx := &ChromemIndex{
		db:       db,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}

	if create {
		idx.collection, err = db.GetOrCreateCollection(cfg.Collection, nil, idx.embeddingFunc())
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
		}
	} else {
		idx.collection = db.GetCollection(cfg.Collection, idx.embeddingFunc())
		if idx.collection == nil {
			return nil, fmt.Errorf("%w: collection %s at %s", ErrMissingIndex, cfg.Collection, path)
		}
	}

	logger.Info("vector index opened",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize),
		zap.Int("records", idx.collection.Count()),
	)

	return idx, nil
}

func (x *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return x.embedder.EmbedQuery(ctx, text)
	}
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Add embeds text and appends it plus metadata to the index.
func (x *ChromemIndex) Add(ctx context.Context, text string, meta PageMeta) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	vecs, err := x.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbeddingFailed, len(vecs))
	}
	return x.AddWithEmbedding(ctx, text, vecs[0], meta)
}

// AddWithEmbedding appends a precomputed embedding plus metadata.
func (x *ChromemIndex) AddWithEmbedding(ctx context.Context, text string, embedding []float32, meta PageMeta) error {
	ctx, span := tracer.Start(ctx, "vectorstore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("filename", meta.Filename),
		attribute.Int("page", meta.Page),
	)

	if len(embedding) != x.config.VectorSize {
		err := fmt.Errorf("%w: got %d, index dimension is %d",
			ErrDimensionMismatch, len(embedding), x.config.VectorSize)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	meta.SourceText = text

	x.mu.RLock()
	defer x.mu.RUnlock()

	doc := chromem.Document{
		ID:        uuid.NewString(),
		Metadata:  meta.toMap(),
		Embedding: embedding,
		Content:   text,
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document: %w", err)
	}

	x.logger.Debug("page indexed",
		zap.String("filename", meta.Filename),
		zap.Int("page", meta.Page),
	)
	return nil
}

// Search returns up to k passages ordered by ascending distance.
func (x *ChromemIndex) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	queryVec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(queryVec) != x.config.VectorSize {
		err := fmt.Errorf("%w: query embedding has %d, index dimension is %d",
			ErrDimensionMismatch, len(queryVec), x.config.VectorSize)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	count := x.collection.Count()
	if count == 0 {
		return []Passage{}, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return []Passage{}, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, queryVec, k, nil, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying index: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{
			Meta:     metaFromMap(r.Metadata, r.Content),
			Distance: 1 - r.Similarity,
		})
	}
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Distance < passages[j].Distance
	})

	span.SetAttributes(attribute.Int("results", len(passages)))
	return passages, nil
}

// Reset discards all records. Exclusive with Add and Search.
func (x *ChromemIndex) Reset(ctx context.Context) error {
	_, span := tracer.Start(ctx, "vectorstore.Reset")
	defer span.End()

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(x.config.Collection); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection: %w", err)
	}
	collection, err := x.db.GetOrCreateCollection(x.config.Collection, nil, x.embeddingFunc())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recreating collection: %w", err)
	}
	x.collection = collection

	x.logger.Info("vector index reset", zap.String("collection", x.config.Collection))
	return nil
}

// Count returns the number of indexed records.
func (x *ChromemIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.collection.Count()
}
