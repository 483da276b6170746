// Package planner expands topic batches into focused retrieval queries.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docqd/internal/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docqd.planner")

var (
	// ErrEmptyBatch indicates an expansion request with no topic text.
	ErrEmptyBatch = errors.New("topic batch is required")

	// ErrPlanParse indicates generation output that is not a strict
	// list literal. The output contract was violated, not a structural
	// fault; callers should retry the same request.
	ErrPlanParse = errors.New("query plan is not a parseable list")
)

const planSystemPrompt = `You convert study topics into search queries for a document index.
Return ONLY a JSON array of strings, one focused search query per element.
No prose, no code fences, no keys. Example: ["first query", "second query"]`

// Config holds query expansion configuration.
type Config struct {
	// MaxQueries caps the sub-queries produced per batch.
	MaxQueries int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxQueries == 0 {
		c.MaxQueries = 10
	}
}

// Planner produces query plans with a single generation call per batch.
type Planner struct {
	llm    llm.Client
	config Config
	logger *zap.Logger
}

// NewPlanner creates a planner over the generation collaborator.
func NewPlanner(client llm.Client, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Planner{llm: client, config: cfg, logger: logger}
}

// Expand turns one topic batch into an ordered list of at most maxQueries
// distinct query strings. maxQueries values outside (0, Config.MaxQueries]
// are clamped to the configured cap.
func (p *Planner) Expand(ctx context.Context, topicBatch string, maxQueries int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "planner.Expand")
	defer span.End()

	if strings.TrimSpace(topicBatch) == "" {
		return nil, ErrEmptyBatch
	}
	if maxQueries <= 0 || maxQueries > p.config.MaxQueries {
		maxQueries = p.config.MaxQueries
	}
	span.SetAttributes(attribute.Int("max_queries", maxQueries))

	prompt := fmt.Sprintf("Topics:\n%s\n\nProduce at most %d search queries.", topicBatch, maxQueries)
	out, err := p.llm.Complete(ctx, planSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("expand queries: %w", err)
	}

	queries, err := ParseQueryList(out)
	if err != nil {
		p.logger.Warn("query plan output violated its contract",
			zap.String("output", truncateForLog(out)), zap.Error(err))
		return nil, err
	}

	queries = dedupe(queries)
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	span.SetAttributes(attribute.Int("queries", len(queries)))
	return queries, nil
}

// ParseQueryList parses generation output as a strict JSON list of
// strings. A plain code fence around the list is tolerated; a fence with
// a language tag, surrounding prose, or any non-list shape is ErrPlanParse.
func ParseQueryList(out string) ([]string, error) {
	text := strings.TrimSpace(out)

	if strings.HasPrefix(text, "```") {
		stripped, err := stripFence(text)
		if err != nil {
			return nil, err
		}
		text = stripped
	}

	if !strings.HasPrefix(text, "[") {
		return nil, fmt.Errorf("%w: output does not start with a list", ErrPlanParse)
	}

	var queries []string
	if err := json.Unmarshal([]byte(text), &queries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}
	return queries, nil
}

func stripFence(text string) (string, error) {
	body, ok := strings.CutPrefix(text, "```")
	if !ok {
		return "", fmt.Errorf("%w: unterminated code fence", ErrPlanParse)
	}
	nl := strings.Index(body, "\n")
	if nl < 0 {
		return "", fmt.Errorf("%w: unterminated code fence", ErrPlanParse)
	}
	if tag := strings.TrimSpace(body[:nl]); tag != "" {
		return "", fmt.Errorf("%w: code fence carries a language tag %q", ErrPlanParse, tag)
	}
	body = body[nl+1:]
	end := strings.LastIndex(body, "```")
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated code fence", ErrPlanParse)
	}
	return strings.TrimSpace(body[:end]), nil
}

func dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
