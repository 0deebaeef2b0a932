// Package agent runs the conversation turn protocol: submit the user text
// and tool catalog to the model, execute any requested tools, feed the
// results back, and return the final answer. One Engine is shared by all
// in-flight conversations; per-run state lives on the stack.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/iwapim/pimbot/internal/respcache"
	"github.com/iwapim/pimbot/llm"
	"github.com/iwapim/pimbot/tools"
)

// FallbackText is the only failure string end users ever see. Internal
// faults go to the log, never into the thread.
const FallbackText = "I'm sorry, I couldn't process your request at the moment."

const invalidArgumentsError = "invalid arguments"

// Config holds the per-deployment knobs of the Engine.
type Config struct {
	Model        string
	SystemPrompt string
	// FallbackText overrides the default user-facing failure message.
	FallbackText string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// Engine is the conversation orchestrator.
type Engine struct {
	client   llm.Client
	registry *tools.Registry
	cache    *respcache.Cache
	cfg      Config
	log      *slog.Logger
}

// New creates an Engine. The cache may be nil to disable answer caching.
func New(client llm.Client, registry *tools.Registry, cache *respcache.Cache, cfg Config, opts ...Option) *Engine {
	if strings.TrimSpace(cfg.FallbackText) == "" {
		cfg.FallbackText = FallbackText
	}
	e := &Engine{
		client:   client,
		registry: registry,
		cache:    cache,
		cfg:      cfg,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one conversation turn for the normalized mention text and
// returns the answer to post. Backend failures after the client's own retry
// budget are absorbed into the fixed fallback text; the returned error is
// non-nil only when ctx ended before an answer was produced.
//
// The protocol performs at most one tool round: tool invocations requested
// by the first model reply are executed and their results resubmitted for
// exactly one follow-up call. Tool requests on the follow-up reply are not
// executed. This bound is deliberate, not adaptive.
func (e *Engine) Run(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return e.cfg.FallbackText, nil
	}

	if cached, ok := e.cache.Get(text); ok {
		e.log.Info("agent_cache_hit", "chars", len(cached))
		return cached, nil
	}

	messages := []llm.Message{
		{Role: "system", Content: e.cfg.SystemPrompt},
		{Role: "user", Content: text},
	}
	catalog := e.registry.Specs()

	reply, err := e.client.Chat(ctx, llm.Request{Model: e.cfg.Model, Messages: messages, Tools: catalog})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.log.Error("agent_model_call_error", "error", err.Error())
		return e.cfg.FallbackText, nil
	}

	if reply.Kind == llm.KindToolCalls {
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})
		for _, call := range reply.ToolCalls {
			res := e.execute(ctx, call)
			e.log.Info("agent_tool_result", "tool", call.Name, "ok", res.OK())
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    res.JSON(),
			})
		}

		reply, err = e.client.Chat(ctx, llm.Request{Model: e.cfg.Model, Messages: messages, Tools: catalog})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.log.Error("agent_followup_call_error", "error", err.Error())
			return e.cfg.FallbackText, nil
		}
		if reply.Kind == llm.KindToolCalls {
			// Single-round protocol: a second batch of tool requests is not
			// executed. Use whatever text came with it.
			e.log.Warn("agent_followup_tool_request_ignored", "tools", len(reply.ToolCalls))
		}
	}

	answer := strings.TrimSpace(reply.Text)
	if answer == "" {
		e.log.Warn("agent_empty_reply")
		return e.cfg.FallbackText, nil
	}

	e.cache.Put(text, answer)
	return answer, nil
}

// execute parses one tool call's arguments and dispatches it. Malformed
// argument JSON becomes an error result for that invocation only; the rest
// of the round continues.
func (e *Engine) execute(ctx context.Context, call llm.ToolCall) tools.Result {
	args := map[string]any{}
	raw := strings.TrimSpace(call.RawArguments)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			e.log.Warn("agent_tool_arguments_invalid", "tool", call.Name, "error", err.Error())
			return tools.ErrorResult(invalidArgumentsError)
		}
	}
	return e.registry.Dispatch(ctx, call.Name, args)
}
