package tools

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/iwapim/pimbot/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger())
	err := reg.Register(llm.ToolSpec{Name: "get_product_details"}, func(ctx context.Context, args map[string]any) Result {
		return Result{Payload: map[string]any{"details": args["product_id"]}}
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := reg.Dispatch(context.Background(), "get_product_details", map[string]any{"product_id": "X123"})
	if !res.OK() {
		t.Fatalf("Dispatch() err = %q, want ok", res.Err)
	}
	if got := res.JSON(); got != `{"details":"X123"}` {
		t.Fatalf("Result.JSON() = %s, want {\"details\":\"X123\"}", got)
	}
}

func TestRegistryDispatchUnknownName(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger())
	res := reg.Dispatch(context.Background(), "foo", nil)
	if res.OK() {
		t.Fatalf("Dispatch() ok, want error result")
	}
	if res.Err != "foo is not recognized" {
		t.Fatalf("Dispatch() err = %q, want %q", res.Err, "foo is not recognized")
	}
	if got := res.JSON(); got != `{"error":"foo is not recognized"}` {
		t.Fatalf("Result.JSON() = %s, want error object", got)
	}
}

func TestRegistryDispatchRecoversPanic(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger())
	if err := reg.Register(llm.ToolSpec{Name: "boom"}, func(ctx context.Context, args map[string]any) Result {
		panic("downstream gone")
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := reg.Dispatch(context.Background(), "boom", nil)
	if res.OK() {
		t.Fatalf("Dispatch() ok, want error result")
	}
	if !strings.Contains(res.Err, "downstream gone") {
		t.Fatalf("Dispatch() err = %q, want panic message inside", res.Err)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger())
	if err := reg.Register(llm.ToolSpec{Name: "  "}, func(ctx context.Context, args map[string]any) Result { return Result{} }); err == nil {
		t.Fatalf("Register() with blank name error = nil, want error")
	}
	if err := reg.Register(llm.ToolSpec{Name: "x"}, nil); err == nil {
		t.Fatalf("Register() with nil handler error = nil, want error")
	}
}

func TestRegistrySpecsStableOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testLogger())
	noop := func(ctx context.Context, args map[string]any) Result { return Result{} }
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(llm.ToolSpec{Name: name}, noop); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	specs := reg.Specs()
	if len(specs) != 3 {
		t.Fatalf("Specs() len = %d, want 3", len(specs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, spec := range specs {
		if spec.Name != want[i] {
			t.Fatalf("Specs()[%d] = %s, want %s", i, spec.Name, want[i])
		}
	}
}
