// Package retrieval provides the uniform search gateway over the vector
// index. Both the interactive agent and the batch notes flow retrieve
// through it, so retrieval semantics never diverge between them.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrEmptyQuery indicates an empty search query.
var ErrEmptyQuery = errors.New("empty search query")

// Config holds gateway configuration.
type Config struct {
	// DefaultK is used when the caller requests no particular k.
	DefaultK int

	// MaxK clamps caller-requested passage counts.
	MaxK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultK == 0 {
		c.DefaultK = 6
	}
	if c.MaxK == 0 {
		c.MaxK = 20
	}
}

// Gateway is a stateless search adapter over the vector index.
type Gateway struct {
	index  vectorstore.Index
	config Config
	logger *zap.Logger
}

// NewGateway creates a gateway over the given index.
func NewGateway(index vectorstore.Index, cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Gateway{index: index, config: cfg, logger: logger}
}

// Search returns up to k passages for the query, ordered by ascending
// distance. k is clamped to [1, MaxK]; non-positive k means DefaultK.
func (g *Gateway) Search(ctx context.Context, text string, k int) ([]vectorstore.Passage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}

	k = g.ClampK(k)

	passages, err := g.index.Search(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	g.logger.Debug("retrieval",
		zap.Int("k", k),
		zap.Int("results", len(passages)),
	)
	return passages, nil
}

// ClampK normalizes a requested passage count to [1, MaxK], substituting
// DefaultK for non-positive requests.
func (g *Gateway) ClampK(k int) int {
	if k <= 0 {
		k = g.config.DefaultK
	}
	if k > g.config.MaxK {
		k = g.config.MaxK
	}
	return k
}
