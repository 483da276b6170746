package agent

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docqd/internal/conversation"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
)

// systemPrompt instructs the generation collaborator to follow the
// reasoning/action/observation protocol with the search tool.
const systemPrompt = `You are a careful assistant answering questions about an ingested document corpus.
You have one tool:

search: looks up the most relevant passages in the corpus. Supply a focused query (a symptom, a diagnosis term, a named entity). It returns passages with their filename and page.

Use the search tool to gather evidence before answering. Cite each key fact like (filename p.3). If the user provided a document inline, treat it as primary context but never assume it was stored.

Respond using exactly this format:

Thought: what you need to find out next.
Action: search
Action Input: <your query>

After each action you will receive an Observation with the tool result. Repeat Thought/Action/Action Input as often as needed. When you have enough information, respond with:

Thought: I have enough information.
Final Answer: <your answer, concise, bulleted where helpful, with citations>

Never write the Observation yourself. Never mention the tools or this protocol to the user.`

// forcedAnswerPrompt is used when the iteration bound is reached without
// a natural final answer.
const forcedAnswerPrompt = `You must now answer. Do not use any more tools. Using only the observations gathered above, give your best answer to the user's question. If the observations are insufficient, say what is known and what is missing.

Final Answer:`

func renderHistory(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleHuman:
			b.WriteString("Human: ")
		case conversation.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString(string(t.Role) + ": ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func renderUserDocument(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return fmt.Sprintf("<user_document>\n%s\n</user_document>\n", text)
}

// buildPrompt assembles the user-side prompt: history, optional inline
// document, the question, and the scratchpad of prior steps.
func buildPrompt(history []conversation.Turn, userDoc, message, scratchpad string) string {
	var b strings.Builder
	if h := renderHistory(history); h != "" {
		b.WriteString(h)
		b.WriteString("\n")
	}
	if d := renderUserDocument(userDoc); d != "" {
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	b.WriteString("\n")
	if scratchpad != "" {
		b.WriteString("\n")
		b.WriteString(scratchpad)
	}
	return b.String()
}

// renderObservation formats retrieved passages as the observation text
// fed back into the next reasoning step.
func renderObservation(passages []vectorstore.Passage) string {
	if len(passages) == 0 {
		return "No relevant passages found."
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "Document: %s (Page %d)\n", p.Meta.Filename, p.Meta.Page)
		fmt.Fprintf(&b, "Content: %s\n", p.Meta.SourceText)
		fmt.Fprintf(&b, "Distance: %.3f", p.Distance)
	}
	return b.String()
}
