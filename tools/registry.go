// Package tools maps tool names to executable handlers and their declared
// input schemas. The registry does name resolution and panic containment
// only; handlers are expected to convert their own downstream failures into
// error results so a broken tool never aborts a conversation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/iwapim/pimbot/llm"
)

// Handler executes one tool invocation with already-parsed arguments. The
// returned Result is serialized verbatim into the conversation.
type Handler func(ctx context.Context, args map[string]any) Result

// Result is the outcome of a tool invocation: either a JSON-serializable
// payload or an error message. Errors flow back into the conversation as
// normal turns so the model can react to them.
type Result struct {
	Payload any
	Err     string
}

// ErrorResult builds an error outcome.
func ErrorResult(format string, args ...any) Result {
	return Result{Err: fmt.Sprintf(format, args...)}
}

// OK reports whether the invocation produced a payload.
func (r Result) OK() bool {
	return r.Err == ""
}

// JSON renders the result as the JSON string fed back to the model. Payloads
// that fail to marshal degrade to an error object rather than propagating.
func (r Result) JSON() string {
	if r.Err != "" {
		raw, err := json.Marshal(map[string]string{"error": r.Err})
		if err != nil {
			return `{"error":"tool result serialization failed"}`
		}
		return string(raw)
	}
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		return `{"error":"tool result serialization failed"}`
	}
	return string(raw)
}

// Registry holds the static tool catalog. Registration happens at startup;
// Dispatch and Specs are safe for concurrent use afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	specs    map[string]llm.ToolSpec
	log      *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		specs:    make(map[string]llm.ToolSpec),
		log:      logger,
	}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// handler.
func (r *Registry) Register(spec llm.ToolSpec, h Handler) error {
	if r == nil {
		return fmt.Errorf("registry is not initialized")
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if h == nil {
		return fmt.Errorf("tool %s handler is required", name)
	}
	spec.Name = name
	r.mu.Lock()
	r.handlers[name] = h
	r.specs[name] = spec
	r.mu.Unlock()
	return nil
}

// Specs returns the tool catalog in stable name order, ready to hand to the
// model on every request.
func (r *Registry) Specs() []llm.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]llm.ToolSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch resolves name and runs the handler. Unknown names and handler
// panics become error results, never failures of the caller.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (res Result) {
	if r == nil {
		return ErrorResult("tool registry is not initialized")
	}
	name = strings.TrimSpace(name)

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("tool_unknown", "tool", name)
		return ErrorResult("%s is not recognized", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool_panic", "tool", name, "panic", fmt.Sprint(rec))
			res = ErrorResult("%s failed: %v", name, rec)
		}
	}()
	return h(ctx, args)
}
