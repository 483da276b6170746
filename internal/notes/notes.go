// Package notes synthesizes study notes for topic batches.
//
// Each batch costs exactly two generation calls: one query plan and one
// synthesis over the retrieved context. Retrieved and generated content
// is never written back to the index.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docqd/internal/llm"
	"github.com/fyrsmithlabs/docqd/internal/planner"
	"github.com/fyrsmithlabs/docqd/internal/retrieval"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docqd.notes")

// ErrNoTopics indicates a request with no usable topic strings.
var ErrNoTopics = errors.New("at least one topic is required")

const notesSystemPrompt = `You write structured study notes in Markdown from retrieved document passages.
Cover every requested topic with its own heading. Ground every claim in the
provided context and cite sources like (filename p.3). If the context does not
cover a topic, say so under that topic's heading instead of inventing content.`

// Config holds notes synthesis configuration.
type Config struct {
	// PassagesPerQuery is the retrieval depth for each planned sub-query.
	PassagesPerQuery int

	// BatchSize is the default number of topics per batch.
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.PassagesPerQuery == 0 {
		c.PassagesPerQuery = 4
	}
	if c.BatchSize == 0 {
		c.BatchSize = 2
	}
}

// Synthesizer turns topic lists into cited Markdown notes.
type Synthesizer struct {
	planner *planner.Planner
	gateway *retrieval.Gateway
	llm     llm.Client
	config  Config
	logger  *zap.Logger
}

// NewSynthesizer creates a synthesizer over its collaborators.
func NewSynthesizer(p *planner.Planner, gateway *retrieval.Gateway, client llm.Client, cfg Config, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Synthesizer{planner: p, gateway: gateway, llm: client, config: cfg, logger: logger}
}

// GenerateNotes produces Markdown notes for topics, processed in batches
// of batchSize. Batches run sequentially; a failing batch fails the whole
// request with no partial result.
func (s *Synthesizer) GenerateNotes(ctx context.Context, topics []string, basePrompt string, batchSize int) (string, error) {
	ctx, span := tracer.Start(ctx, "notes.GenerateNotes")
	defer span.End()

	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return "", ErrNoTopics
	}
	if batchSize <= 0 {
		batchSize = s.config.BatchSize
	}
	span.SetAttributes(
		attribute.Int("topics", len(cleaned)),
		attribute.Int("batch_size", batchSize),
	)

	var sections []string
	for start := 0; start < len(cleaned); start += batchSize {
		end := start + batchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}
		section, err := s.batch(ctx, cleaned[start:end], basePrompt)
		if err != nil {
			return "", fmt.Errorf("notes batch starting at topic %d: %w", start, err)
		}
		sections = append(sections, strings.TrimSpace(section))
	}
	return strings.Join(sections, "\n\n"), nil
}

// batch plans once, retrieves per sub-query, and synthesizes with a
// single generation call covering every topic in the batch.
func (s *Synthesizer) batch(ctx context.Context, topics []string, basePrompt string) (string, error) {
	topicText := strings.Join(topics, "\n")

	queries, err := s.expandWithRetry(ctx, topicText)
	if err != nil {
		return "", err
	}

	var passages []vectorstore.Passage
	for _, q := range queries {
		found, err := s.gateway.Search(ctx, q, s.config.PassagesPerQuery)
		if err != nil {
			return "", fmt.Errorf("retrieve %q: %w", q, err)
		}
		passages = append(passages, found...)
	}

	prompt := buildNotesPrompt(basePrompt, topics, passages)
	out, err := s.llm.Complete(ctx, notesSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesize notes: %w", err)
	}
	return out, nil
}

// expandWithRetry re-issues the plan request once when the generation
// collaborator violates its list-literal output contract.
func (s *Synthesizer) expandWithRetry(ctx context.Context, topicText string) ([]string, error) {
	queries, err := s.planner.Expand(ctx, topicText, 0)
	if errors.Is(err, planner.ErrPlanParse) {
		s.logger.Warn("query plan unparseable, retrying once", zap.Error(err))
		queries, err = s.planner.Expand(ctx, topicText, 0)
	}
	if err != nil {
		return nil, err
	}
	return queries, nil
}

func buildNotesPrompt(basePrompt string, topics []string, passages []vectorstore.Passage) string {
	var b strings.Builder
	if strings.TrimSpace(basePrompt) != "" {
		b.WriteString(strings.TrimSpace(basePrompt))
		b.WriteString("\n\n")
	}
	b.WriteString("Topics to cover:\n")
	for _, t := range topics {
		b.WriteString("- " + t + "\n")
	}
	b.WriteString("\nRetrieved context:\n")
	if len(passages) == 0 {
		b.WriteString("No relevant passages were found.\n")
		return b.String()
	}
	for _, p := range passages {
		fmt.Fprintf(&b, "Document: %s (Page %d)\nContent: %s\n---\n",
			p.Meta.Filename, p.Meta.Page, p.Meta.SourceText)
	}
	return b.String()
}
