// Package watcher auto-ingests PDFs dropped into a watched directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/docqd/internal/ingest"
	"go.uber.org/zap"
)

// ErrInvalidConfig indicates missing watcher configuration.
var ErrInvalidConfig = errors.New("invalid watcher config")

// Ingester processes one dropped file.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, filename string) (ingest.Result, error)
}

// Config holds watcher configuration.
type Config struct {
	// Dir is the drop directory to watch. Created if absent.
	Dir string

	// SettleDelay is how long a new file must sit unchanged before it
	// is read, so half-written files are not ingested.
	SettleDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SettleDelay == 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrInvalidConfig)
	}
	return nil
}

// Watcher ingests PDFs that appear in the drop directory.
type Watcher struct {
	config   Config
	ingester Ingester
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a watcher.
func New(cfg Config, ingester Ingester, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Watcher{
		config:   cfg,
		ingester: ingester,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run watches the drop directory until ctx is cancelled. PDFs already in
// the directory at startup are ingested first; content dedup makes that
// idempotent across restarts.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.config.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Dir, err)
	}

	w.scanExisting(ctx)
	w.logger.Info("watching drop directory", zap.String("dir", w.config.Dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isPDF(ev.Name) {
				continue
			}
			go w.settleAndIngest(ctx, ev.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		w.logger.Warn("scan drop dir failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isPDF(entry.Name()) {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.config.Dir, entry.Name()))
	}
}

// settleAndIngest waits for the file to stop growing before reading it.
// Repeated events for the same path while one is pending are coalesced.
func (w *Watcher) settleAndIngest(ctx context.Context, path string) {
	w.mu.Lock()
	if _, busy := w.inFlight[path]; busy {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	timer := time.NewTimer(w.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	w.ingestFile(ctx, path)
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read dropped file failed", zap.String("path", path), zap.Error(err))
		return
	}

	res, err := w.ingester.Ingest(ctx, raw, filepath.Base(path))
	if err != nil {
		w.logger.Warn("auto-ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	if res.Deduplicated {
		w.logger.Debug("dropped file already indexed", zap.String("path", path))
		return
	}
	w.logger.Info("dropped file ingested",
		zap.String("path", path), zap.Int("pages_indexed", res.PagesIndexed))
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
