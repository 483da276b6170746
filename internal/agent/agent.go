// Package agent implements the tool-calling control loop for docqd.
//
// One exchange walks a reasoning/action/observation cycle against the
// generation collaborator, bounded by a configured maximum number of
// iterations. Collaborator failures and malformed steps are recovered as
// observations and count against the bound; exhausting the bound forces a
// best-effort answer rather than an error.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/docqd/internal/conversation"
	"github.com/fyrsmithlabs/docqd/internal/llm"
	"github.com/fyrsmithlabs/docqd/internal/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docqd.agent")

// ErrEmptyMessage indicates an exchange with no user message. Rejected
// immediately, no side effects.
var ErrEmptyMessage = errors.New("message is required")

// degradedAnswer is returned when even the forced synthesis call fails.
const degradedAnswer = "I could not finish reasoning about this question. Please try again or rephrase it."

// Config holds control-loop configuration.
type Config struct {
	// MaxIterations bounds reasoning/action cycles per exchange.
	MaxIterations int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 8
	}
}

// Request is one exchange against the agent.
type Request struct {
	// Message is the user's question.
	Message string

	// SessionID selects the conversation; empty mints a new session.
	SessionID string

	// InlineDocument is optional user-supplied document text. It is
	// ephemeral context for this exchange only and is never indexed.
	InlineDocument string

	// TopK is the requested citation count; clamped by the gateway.
	TopK int
}

// Citation points at a passage retrieved for the user's original message.
type Citation struct {
	Filename string  `json:"filename"`
	Page     int     `json:"page"`
	Score    float32 `json:"score"`
}

// Response is the completed exchange.
type Response struct {
	SessionID string     `json:"session_id"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`

	// Forced reports that the iteration bound was hit and the answer
	// was synthesized from accumulated observations.
	Forced bool `json:"forced,omitempty"`
}

// Orchestrator drives the control loop.
type Orchestrator struct {
	llm      llm.Client
	gateway  *retrieval.Gateway
	sessions *conversation.Store
	config   Config
	logger   *zap.Logger
}

// NewOrchestrator creates the control loop over its collaborators.
func NewOrchestrator(client llm.Client, gateway *retrieval.Gateway, sessions *conversation.Store, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Orchestrator{
		llm:      client,
		gateway:  gateway,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// Answer runs one exchange to completion and returns the cited answer.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Response, error) {
	return o.run(ctx, req, nil)
}

// emitFunc forwards one event; returning an error stops the exchange.
type emitFunc func(Event) error

func (o *Orchestrator) run(ctx context.Context, req Request, emit emitFunc) (Response, error) {
	ctx, span := tracer.Start(ctx, "agent.Answer")
	defer span.End()

	if strings.TrimSpace(req.Message) == "" {
		return Response{}, ErrEmptyMessage
	}
	if emit == nil {
		emit = func(Event) error { return nil }
	}

	sessionID := o.sessions.EnsureSession(req.SessionID)
	topK := o.gateway.ClampK(req.TopK)
	history := o.sessions.History(sessionID)

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("top_k", topK),
	)

	var scratchpad strings.Builder
	var answer string
	forced := false

	for i := 0; i < o.config.MaxIterations && answer == ""; i++ {
		prompt := buildPrompt(history, req.InlineDocument, req.Message, scratchpad.String())

		out, err := o.llm.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			o.logger.Warn("generation call failed inside loop",
				zap.Int("iteration", i), zap.Error(err))
			obs := "The previous reasoning attempt failed. Try again."
			scratchpad.WriteString("Observation: " + obs + "\n")
			if err := emit(Event{Type: EventObservation, Observation: obs}); err != nil {
				return Response{}, err
			}
			continue
		}

		step, err := ParseStep(out)
		if err != nil {
			o.logger.Debug("malformed step recovered", zap.Int("iteration", i), zap.Error(err))
			obs := "No valid action was parsed. Respond using the required format."
			scratchpad.WriteString(strings.TrimSpace(out) + "\nObservation: " + obs + "\n")
			if err := emit(Event{Type: EventObservation, Observation: obs}); err != nil {
				return Response{}, err
			}
			continue
		}

		if step.Thought != "" {
			if err := emit(Event{Type: EventThought, Thought: step.Thought}); err != nil {
				return Response{}, err
			}
		}

		if step.Kind == StepFinal {
			answer = step.Answer
			break
		}

		if err := emit(Event{Type: EventAction, Tool: step.Tool, Query: step.Input}); err != nil {
			return Response{}, err
		}

		obs := o.observe(ctx, step.Input, topK)
		fmt.Fprintf(&scratchpad, "Thought: %s\nAction: %s\nAction Input: %s\nObservation: %s\n",
			step.Thought, step.Tool, step.Input, obs)
		if err := emit(Event{Type: EventObservation, Observation: obs}); err != nil {
			return Response{}, err
		}
	}

	if answer == "" {
		forced = true
		answer = o.forceAnswer(ctx, req, history, scratchpad.String())
	}

	citations := o.citations(ctx, req.Message, topK)

	o.sessions.Append(sessionID,
		conversation.Turn{Role: conversation.RoleHuman, Text: req.Message, At: time.Now()},
		conversation.Turn{Role: conversation.RoleAssistant, Text: answer, At: time.Now()},
	)

	resp := Response{
		SessionID: sessionID,
		Answer:    answer,
		Citations: citations,
		Forced:    forced,
	}
	if err := emit(Event{Type: EventAnswer, Answer: answer, Citations: citations, SessionID: sessionID}); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// observe dispatches the retrieval tool and renders the result as
// observation text. Search failures are themselves observations.
func (o *Orchestrator) observe(ctx context.Context, query string, topK int) string {
	passages, err := o.gateway.Search(ctx, query, topK)
	if err != nil {
		o.logger.Warn("tool search failed", zap.String("query", query), zap.Error(err))
		return "The search failed. Try a different query."
	}
	return renderObservation(passages)
}

// forceAnswer synthesizes a best-effort answer from accumulated
// observations once the iteration bound is exhausted.
func (o *Orchestrator) forceAnswer(ctx context.Context, req Request, history []conversation.Turn, scratchpad string) string {
	prompt := buildPrompt(history, req.InlineDocument, req.Message, scratchpad) + "\n" + forcedAnswerPrompt

	out, err := o.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		o.logger.Warn("forced answer call failed", zap.Error(err))
		return degradedAnswer
	}

	out = strings.TrimSpace(out)
	if idx := markerIndex(out, markerFinal); idx >= 0 {
		out = strings.TrimSpace(out[idx+len(markerFinal):])
	}
	if out == "" {
		return degradedAnswer
	}
	return out
}

// citations recomputes retrieval on the original user message, not on
// intermediate tool queries, and truncates to the requested top-k.
func (o *Orchestrator) citations(ctx context.Context, message string, topK int) []Citation {
	passages, err := o.gateway.Search(ctx, message, topK)
	if err != nil {
		o.logger.Warn("citation search failed", zap.Error(err))
		return []Citation{}
	}

	citations := make([]Citation, 0, len(passages))
	for _, p := range passages {
		citations = append(citations, Citation{
			Filename: p.Meta.Filename,
			Page:     p.Meta.Page,
			Score:    p.Distance,
		})
	}
	if len(citations) > topK {
		citations = citations[:topK]
	}
	return citations
}
