package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/iwapim/pimbot/internal/respcache"
	"github.com/iwapim/pimbot/llm"
	"github.com/iwapim/pimbot/tools"
)

type scriptedClient struct {
	replies  []llm.Reply
	errs     []error
	requests []llm.Request
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.Request) (llm.Reply, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i >= len(c.replies) {
		return llm.Reply{}, errors.New("unexpected model call")
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return c.replies[i], err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(testLogger())
	err := reg.Register(llm.ToolSpec{Name: "get_product_details"}, func(ctx context.Context, args map[string]any) tools.Result {
		return tools.Result{Payload: map[string]any{
			"details": []map[string]any{{"iwasku": args["iwasku"], "name": "Widget"}},
		}}
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg
}

func TestRunPlainTextReply(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{{Kind: llm.KindText, Text: "AHM-005 is an end table."}}}
	cache := respcache.New(respcache.Options{Capacity: 8})
	e := New(client, newTestRegistry(t), cache, Config{Model: "gpt-4o", SystemPrompt: "sys"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "what is AHM-005")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "AHM-005 is an end table." {
		t.Fatalf("Run() = %q, want model text unchanged", got)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model calls = %d, want 1", len(client.requests))
	}
	if cached, ok := cache.Get("what is AHM-005"); !ok || cached != got {
		t.Fatalf("cache.Get() = %q, %v; want answer cached", cached, ok)
	}
}

func TestRunCacheHitSkipsModel(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{}
	cache := respcache.New(respcache.Options{Capacity: 8})
	cache.Put("what is AHM-005", "cached answer")
	e := New(client, newTestRegistry(t), cache, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "what is AHM-005")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "cached answer" {
		t.Fatalf("Run() = %q, want cached answer", got)
	}
	if len(client.requests) != 0 {
		t.Fatalf("model calls = %d, want 0 on cache hit", len(client.requests))
	}
}

func TestRunToolRoundThenFollowup(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{
		{Kind: llm.KindToolCalls, ToolCalls: []llm.ToolCall{{
			ID:           "call_1",
			Name:         "get_product_details",
			RawArguments: `{"iwasku":"X123"}`,
		}}},
		{Kind: llm.KindText, Text: "X123 is the Widget."},
	}}
	cache := respcache.New(respcache.Options{Capacity: 8})
	e := New(client, newTestRegistry(t), cache, Config{Model: "gpt-4o", SystemPrompt: "sys"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "tell me about X123")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "X123 is the Widget." {
		t.Fatalf("Run() = %q, want follow-up text", got)
	}
	if len(client.requests) != 2 {
		t.Fatalf("model calls = %d, want exactly 2", len(client.requests))
	}

	second := client.requests[1].Messages
	// system, user, assistant tool request, exactly one tool result.
	if len(second) != 4 {
		t.Fatalf("follow-up messages = %d, want 4", len(second))
	}
	assistant := second[2]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 {
		t.Fatalf("follow-up[2] = %+v, want assistant message with 1 tool call", assistant)
	}
	toolMsg := second[3]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Name != "get_product_details" {
		t.Fatalf("follow-up[3] = %+v, want tool result for call_1", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, `"iwasku":"X123"`) || !strings.Contains(toolMsg.Content, `"name":"Widget"`) {
		t.Fatalf("tool result content = %s, want serialized details", toolMsg.Content)
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{
		{Kind: llm.KindToolCalls, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "foo", RawArguments: `{}`}}},
		{Kind: llm.KindText, Text: "that tool does not exist"},
	}}
	e := New(client, newTestRegistry(t), nil, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "use foo please")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "that tool does not exist" {
		t.Fatalf("Run() = %q, want follow-up text", got)
	}
	toolMsg := client.requests[1].Messages[3]
	if toolMsg.Content != `{"error":"foo is not recognized"}` {
		t.Fatalf("tool result = %s, want unrecognized-tool error object", toolMsg.Content)
	}
}

func TestRunMalformedToolArguments(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{
		{Kind: llm.KindToolCalls, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_product_details", RawArguments: `{not json`}}},
		{Kind: llm.KindText, Text: "sorry, bad arguments"},
	}}
	e := New(client, newTestRegistry(t), nil, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "details please")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "sorry, bad arguments" {
		t.Fatalf("Run() = %q, want follow-up text", got)
	}
	toolMsg := client.requests[1].Messages[3]
	if toolMsg.Content != `{"error":"invalid arguments"}` {
		t.Fatalf("tool result = %s, want invalid-arguments error object", toolMsg.Content)
	}
}

func TestRunModelFailureFallsBack(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{
		replies: []llm.Reply{{}},
		errs:    []error{errors.New("backend unavailable")},
	}
	cache := respcache.New(respcache.Options{Capacity: 8})
	e := New(client, newTestRegistry(t), cache, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != FallbackText {
		t.Fatalf("Run() = %q, want fallback text", got)
	}
	if cache.Len() != 0 {
		t.Fatalf("cache.Len() = %d, want 0 (fallback must not be cached)", cache.Len())
	}
}

func TestRunEmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{{Kind: llm.KindText, Text: "  "}}}
	cache := respcache.New(respcache.Options{Capacity: 8})
	e := New(client, newTestRegistry(t), cache, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != FallbackText {
		t.Fatalf("Run() = %q, want fallback text", got)
	}
	if cache.Len() != 0 {
		t.Fatalf("cache.Len() = %d, want 0", cache.Len())
	}
}

func TestRunFollowupToolRequestNotExecuted(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{replies: []llm.Reply{
		{Kind: llm.KindToolCalls, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_product_details", RawArguments: `{"iwasku":"X123"}`}}},
		{Kind: llm.KindToolCalls, Text: "let me check again", ToolCalls: []llm.ToolCall{{ID: "call_2", Name: "get_product_details", RawArguments: `{}`}}},
	}}
	e := New(client, newTestRegistry(t), nil, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	got, err := e.Run(context.Background(), "about X123")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "let me check again" {
		t.Fatalf("Run() = %q, want follow-up text despite tool request", got)
	}
	if len(client.requests) != 2 {
		t.Fatalf("model calls = %d, want 2 (no third round)", len(client.requests))
	}
}

func TestRunCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{
		replies: []llm.Reply{{}},
		errs:    []error{context.Canceled},
	}
	e := New(client, newTestRegistry(t), nil, Config{Model: "gpt-4o"}, WithLogger(testLogger()))

	if _, err := e.Run(ctx, "anything"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
