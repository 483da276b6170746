package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedStep indicates generation output that carries neither a
// parseable action nor a final answer. The control loop recovers this
// locally; it never aborts an exchange.
var ErrMalformedStep = errors.New("malformed reasoning step")

// SearchTool is the only tool the loop can dispatch.
const SearchTool = "search"

// StepKind tags the variants of a parsed reasoning step.
type StepKind int

const (
	// StepAction is a tool invocation with an input string.
	StepAction StepKind = iota

	// StepFinal carries the final answer for the exchange.
	StepFinal
)

// Step is one parsed reasoning step from the generation collaborator.
type Step struct {
	Kind    StepKind
	Thought string

	// Tool and Input are set for StepAction.
	Tool  string
	Input string

	// Answer is set for StepFinal.
	Answer string
}

// Step markers in the generation output.
const (
	markerThought     = "Thought:"
	markerAction      = "Action:"
	markerActionInput = "Action Input:"
	markerFinal       = "Final Answer:"
)

// ParseStep parses one generation response into a tagged step.
//
// Recognized shapes:
//
//	Thought: <free text>
//	Action: search
//	Action Input: <query>
//
//	Thought: <free text>
//	Final Answer: <multi-line answer>
//
// The thought is optional in both. Anything else is ErrMalformedStep,
// including an action naming an unknown tool or missing its input.
func ParseStep(text string) (Step, error) {
	step := Step{}

	if idx := markerIndex(text, markerFinal); idx >= 0 {
		step.Kind = StepFinal
		step.Thought = extractThought(text[:idx])
		step.Answer = strings.TrimSpace(text[idx+len(markerFinal):])
		if step.Answer == "" {
			return Step{}, fmt.Errorf("%w: empty final answer", ErrMalformedStep)
		}
		return step, nil
	}

	actionIdx := markerIndex(text, markerAction)
	if actionIdx < 0 {
		return Step{}, fmt.Errorf("%w: no action or final answer", ErrMalformedStep)
	}

	step.Kind = StepAction
	step.Thought = extractThought(text[:actionIdx])

	rest := text[actionIdx+len(markerAction):]
	inputIdx := markerIndex(rest, markerActionInput)
	if inputIdx < 0 {
		return Step{}, fmt.Errorf("%w: action without input", ErrMalformedStep)
	}

	step.Tool = strings.TrimSpace(rest[:inputIdx])
	step.Input = firstBlock(rest[inputIdx+len(markerActionInput):])

	if step.Tool != SearchTool {
		return Step{}, fmt.Errorf("%w: unknown tool %q", ErrMalformedStep, step.Tool)
	}
	if step.Input == "" {
		return Step{}, fmt.Errorf("%w: empty action input", ErrMalformedStep)
	}
	return step, nil
}

// markerIndex finds a marker at the start of a line, so prose that merely
// mentions "Action:" mid-sentence does not match.
func markerIndex(text, marker string) int {
	if strings.HasPrefix(text, marker) {
		return 0
	}
	idx := strings.Index(text, "\n"+marker)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

func extractThought(prefix string) string {
	idx := markerIndex(prefix, markerThought)
	if idx < 0 {
		return strings.TrimSpace(prefix)
	}
	return strings.TrimSpace(prefix[idx+len(markerThought):])
}

// firstBlock returns text up to the first blank line or Observation
// marker, trimmed. Models sometimes hallucinate an observation after
// their action; it is never theirs to produce.
func firstBlock(text string) string {
	if idx := markerIndex(text, "Observation:"); idx >= 0 {
		text = text[:idx]
	}
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
