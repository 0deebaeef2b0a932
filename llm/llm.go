// Package llm defines the minimal chat-completion contract the rest of the
// application depends on. Provider adapters (see llm/openaillm) translate
// these types to their SDK and classify every backend reply exactly once, so
// callers never inspect raw provider payloads.
package llm

import (
	"context"
	"strings"
)

// Message is one role-tagged entry of a conversation turn sequence.
type Message struct {
	// Role is one of "system", "user", "assistant" or "tool".
	Role    string
	Content string
	// Name carries the tool name on "tool" messages.
	Name string
	// ToolCallID links a "tool" message to the assistant tool call it answers.
	ToolCallID string
	// ToolCalls is set on the "assistant" message that requested tool
	// execution; it must be resubmitted ahead of the tool results.
	ToolCalls []ToolCall
}

// ToolCall is a structured tool invocation requested by the model.
// RawArguments is the provider's JSON-encoded argument string, passed through
// verbatim; parsing it is the caller's concern.
type ToolCall struct {
	ID           string
	Name         string
	RawArguments string
}

// ToolSpec describes one callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the argument shape.
	Parameters map[string]any
}

// Request is one chat round-trip: the full turn sequence plus the static
// tool catalog.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// ReplyKind tags what the model asked for. The adapter decides the kind at
// the response boundary; callers switch on it instead of duck-typing fields.
type ReplyKind int

const (
	// KindText is a plain textual answer (possibly empty).
	KindText ReplyKind = iota
	// KindToolCalls means the model requested one or more tool invocations.
	KindToolCalls
)

// Reply is a single classified model response.
type Reply struct {
	Kind      ReplyKind
	Text      string
	ToolCalls []ToolCall
}

// Classify builds a tagged Reply from the parts of a provider response. Any
// tool call wins over text; empty text with no calls stays KindText so the
// caller can apply its empty-answer policy.
func Classify(text string, calls []ToolCall) Reply {
	if len(calls) > 0 {
		return Reply{
			Kind:      KindToolCalls,
			Text:      strings.TrimSpace(text),
			ToolCalls: append([]ToolCall(nil), calls...),
		}
	}
	return Reply{Kind: KindText, Text: strings.TrimSpace(text)}
}

// Client is a chat-completion backend. Implementations own their retry and
// timeout policy; a returned error means the request failed after that policy
// was exhausted.
type Client interface {
	Chat(ctx context.Context, req Request) (Reply, error)
}
