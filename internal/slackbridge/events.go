// Package slackbridge connects Slack to the conversation pipeline: it parses
// inbound Events API payloads (HTTP webhook or Socket Mode), deduplicates and
// schedules mention handling, and posts answers back into the thread.
package slackbridge

import (
	"strings"
)

// Recognized top-level Events API payload types.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"
)

const eventTypeAppMention = "app_mention"

// EventEnvelope is the top level of an Events API payload.
type EventEnvelope struct {
	Type      string      `json:"type,omitempty"`
	Challenge string      `json:"challenge,omitempty"`
	EventID   string      `json:"event_id,omitempty"`
	Event     *InnerEvent `json:"event,omitempty"`
}

// InnerEvent is the nested event of an event_callback payload.
type InnerEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// MentionEvent is one bot mention ready for scheduling: dedup id, normalized
// text and the thread to answer in.
type MentionEvent struct {
	EventID  string
	Text     string
	ThreadTS string
}

// NormalizeMentionText strips the leading bot mention and surrounding
// whitespace. The result is both what the model sees and the response-cache
// key.
func NormalizeMentionText(text, botUserID string) string {
	text = strings.TrimSpace(text)
	botUserID = strings.TrimSpace(botUserID)
	if botUserID != "" {
		text = strings.TrimPrefix(text, "<@"+botUserID+">")
	}
	return strings.TrimSpace(text)
}

// MentionFromEnvelope extracts a MentionEvent from an event_callback payload.
// Non-mention events, bot-authored messages, message subtypes and mentions
// with no text left after normalization report ok=false.
func MentionFromEnvelope(env EventEnvelope, botUserID string) (MentionEvent, bool) {
	if strings.TrimSpace(env.Type) != TypeEventCallback || env.Event == nil {
		return MentionEvent{}, false
	}
	inner := env.Event
	if strings.TrimSpace(inner.Type) != eventTypeAppMention {
		return MentionEvent{}, false
	}
	if strings.TrimSpace(inner.Subtype) != "" || strings.TrimSpace(inner.BotID) != "" {
		return MentionEvent{}, false
	}
	text := NormalizeMentionText(inner.Text, botUserID)
	if text == "" {
		return MentionEvent{}, false
	}
	threadTS := strings.TrimSpace(inner.ThreadTS)
	if threadTS == "" {
		threadTS = strings.TrimSpace(inner.TS)
	}
	return MentionEvent{
		EventID:  strings.TrimSpace(env.EventID),
		Text:     text,
		ThreadTS: threadTS,
	}, true
}
