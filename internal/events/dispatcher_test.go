package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

type scriptedInvoker struct {
	responses map[string][]json.RawMessage // extensionID -> queue of responses
	calls     []string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, extensionID string, event Name, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	s.calls = append(s.calls, extensionID)
	q := s.responses[extensionID]
	if len(q) == 0 {
		return json.RawMessage(`null`), nil
	}
	resp := q[0]
	s.responses[extensionID] = q[1:]
	return resp, nil
}

type staticHooks struct {
	order []string
}

func (h staticHooks) Hooks(event Name) []string { return h.order }

func TestToolCallFirstBlockWins(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string][]json.RawMessage{
		"ext-a": {json.RawMessage(`null`)},
		"ext-b": {json.RawMessage(`{"block":true,"reason":"nope"}`)},
		"ext-c": {json.RawMessage(`{"block":true,"reason":"too late"}`)},
	}}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a", "ext-b", "ext-c"}}, slog.Default())

	blocked, reason := d.DispatchToolCall(context.Background(), ToolCallPayload{ToolName: "bash"})
	if !blocked || reason != "nope" {
		t.Fatalf("blocked=%v reason=%q, want true/nope", blocked, reason)
	}
}

func TestToolResultRewritesComposeInOrder(t *testing.T) {
	c1 := any("first")
	c2 := any("second")
	inv := &scriptedInvoker{responses: map[string][]json.RawMessage{
		"ext-a": {mustMarshal(ToolResultRewrite{Content: &c1})},
		"ext-b": {mustMarshal(ToolResultRewrite{Content: &c2})},
	}}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a", "ext-b"}}, slog.Default())

	result := d.DispatchToolResult(context.Background(), ToolResultPayload{Content: "original", Details: "kept"})
	if result.Content != "second" {
		t.Fatalf("content = %v, want second", result.Content)
	}
	if result.Details != "kept" {
		t.Fatalf("details = %v, want kept (content-only rewrite must not clear details)", result.Details)
	}
}

func TestInputFirstBlockWinsElseLastContentWins(t *testing.T) {
	c1 := "rewritten once"
	c2 := "rewritten twice"
	inv := &scriptedInvoker{responses: map[string][]json.RawMessage{
		"ext-a": {mustMarshal(InputResult{Content: &c1})},
		"ext-b": {mustMarshal(InputResult{Content: &c2})},
	}}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a", "ext-b"}}, slog.Default())

	final, blocked, _ := d.DispatchInput(context.Background(), InputPayload{Content: "original"})
	if blocked {
		t.Fatal("expected not blocked")
	}
	if final.Content != "rewritten twice" {
		t.Fatalf("content = %q, want last non-null override", final.Content)
	}
}

func TestInputBlockStopsFurtherHandlers(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string][]json.RawMessage{
		"ext-a": {mustMarshal(InputResult{Block: true, Reason: "blocked early"})},
		"ext-b": {mustMarshal(InputResult{Content: stringPtr("should not apply")})},
	}}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a", "ext-b"}}, slog.Default())

	final, blocked, reason := d.DispatchInput(context.Background(), InputPayload{Content: "original"})
	if !blocked || reason != "blocked early" {
		t.Fatalf("blocked=%v reason=%q", blocked, reason)
	}
	if final.Content != "original" {
		t.Fatalf("content should remain original once blocked, got %q", final.Content)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected dispatch to stop after first block, calls=%v", inv.calls)
	}
}

func TestSessionGuardAnyCancelCancels(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string][]json.RawMessage{
		"ext-a": {json.RawMessage(`null`)},
		"ext-b": {mustMarshal(SessionGuardResult{Cancel: true})},
	}}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a", "ext-b"}}, slog.Default())

	cancelled := d.DispatchSessionGuard(context.Background(), SessionBeforeSwitch, map[string]string{"session_id": "s1"})
	if !cancelled {
		t.Fatal("expected cancelled=true")
	}
}

func TestHandlerErrorDoesNotFailEvent(t *testing.T) {
	inv := &erroringInvoker{}
	d := NewDispatcher(inv, staticHooks{order: []string{"ext-a"}}, slog.Default())
	if err := d.DispatchBestEffort(context.Background(), Startup, StartupPayload{Version: "1.0"}); err != nil {
		t.Fatalf("best-effort dispatch must not fail on handler error: %v", err)
	}
}

type erroringInvoker struct{}

func (erroringInvoker) Invoke(ctx context.Context, extensionID string, event Name, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	return nil, errBoom
}

var errBoom = errStr("handler threw")

type errStr string

func (e errStr) Error() string { return string(e) }

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func stringPtr(s string) *string { return &s }
