package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// EventType tags the discrete events of a streaming exchange.
type EventType string

const (
	// EventThought is emitted when a reasoning step is produced.
	EventThought EventType = "thought"

	// EventAction is emitted when a tool invocation is dispatched.
	EventAction EventType = "action"

	// EventObservation is emitted when a tool result (or a local
	// recovery note) is fed back into the loop.
	EventObservation EventType = "observation"

	// EventAnswer is the terminal event carrying the cited answer.
	EventAnswer EventType = "answer"
)

// Event is one state transition of a streaming exchange.
type Event struct {
	Type        EventType  `json:"type"`
	Thought     string     `json:"thought,omitempty"`
	Tool        string     `json:"tool,omitempty"`
	Query       string     `json:"query,omitempty"`
	Observation string     `json:"observation,omitempty"`
	Answer      string     `json:"answer,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
}

// Stream runs one exchange emitting one event per state transition.
//
// The channel is closed when the exchange ends. Cancelling ctx stops
// event emission; a conversation turn already committed by the loop is
// left as-is, there is no rollback.
func (o *Orchestrator) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	events := make(chan Event)
	emit := func(ev Event) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(events)
		if _, err := o.run(ctx, req, emit); err != nil && ctx.Err() == nil {
			o.logger.Warn("streaming exchange failed", zap.Error(err))
		}
	}()

	return events, nil
}
