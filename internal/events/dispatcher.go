package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pi-cli/pi/internal/obsmetrics"
)

// Invoker calls a single registered hook for one extension with the
// event's JSON payload and returns the hook's raw JSON response (or nil
// for a null/no-op response). It is the seam between EventDispatcher and
// JsRuntime's host-API bridge.
type Invoker interface {
	Invoke(ctx context.Context, extensionID string, event Name, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
}

// HookSource returns the extension ids subscribed to an event, in
// registration order, per ExtensionRegistry.list_event_hooks.
type HookSource interface {
	Hooks(event Name) []string
}

// Dispatcher is the EventDispatcher of the design.
type Dispatcher struct {
	Invoker Invoker
	Hooks   HookSource
	Timeout time.Duration
	Logger  *slog.Logger

	// Metrics records dispatch latency. Nil disables recording.
	Metrics *obsmetrics.Metrics
}

// NewDispatcher constructs a Dispatcher with DefaultHandlerTimeout unless
// overridden by the caller afterwards.
func NewDispatcher(invoker Invoker, hooks HookSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Invoker: invoker, Hooks: hooks, Timeout: DefaultHandlerTimeout, Logger: logger}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultHandlerTimeout
	}
	return d.Timeout
}

// invokeAll calls every subscribed handler, in registration order,
// passing every handler the same payload; onResponse sees each response
// but cannot change what later handlers receive. Handler errors are logged but never stop the
// loop: a failing hook is skipped and the remaining hooks still run, in
// the same registration order, one at a time.
func (d *Dispatcher) invokeAll(ctx context.Context, event Name, payload json.RawMessage, onResponse func(extensionID string, resp json.RawMessage)) {
	for _, ext := range d.Hooks.Hooks(event) {
		resp, err := d.Invoker.Invoke(ctx, ext, event, payload, d.timeout())
		if err != nil {
			d.Logger.Warn("extension event hook failed",
				"extension_id", ext, "event", event, "error", err)
			continue
		}
		onResponse(ext, resp)
	}
}

// DispatchToolCall applies the tool_call aggregation rule: the first
// non-null {block:true, reason?} from any handler blocks the tool.
func (d *Dispatcher) DispatchToolCall(ctx context.Context, p ToolCallPayload) (blocked bool, reason string) {
	defer d.Metrics.StartEventDispatch()()
	payload, _ := json.Marshal(p)
	d.invokeAll(ctx, ToolCall, payload, func(ext string, resp json.RawMessage) {
		if blocked || len(resp) == 0 || string(resp) == "null" {
			return
		}
		var r ToolCallResult
		if err := json.Unmarshal(resp, &r); err != nil {
			return
		}
		if r.Block {
			blocked = true
			reason = r.Reason
		}
	})
	return blocked, reason
}

// DispatchToolResult applies the tool_result aggregation rule: rewrites
// compose in registration order, later handlers see earlier rewrites, and
// a handler returning only {content} leaves details unchanged: unset
// rewrite fields never clear a prior handler's contribution.
func (d *Dispatcher) DispatchToolResult(ctx context.Context, p ToolResultPayload) ToolResultPayload {
	defer d.Metrics.StartEventDispatch()()
	working := p
	for _, ext := range d.Hooks.Hooks(ToolResult) {
		payload, err := json.Marshal(working)
		if err != nil {
			continue
		}
		resp, err := d.Invoker.Invoke(ctx, ext, ToolResult, payload, d.timeout())
		if err != nil {
			d.Logger.Warn("extension event hook failed",
				"extension_id", ext, "event", ToolResult, "error", err)
			continue
		}
		if len(resp) == 0 || string(resp) == "null" {
			continue
		}
		var rewrite ToolResultRewrite
		if err := json.Unmarshal(resp, &rewrite); err != nil {
			continue
		}
		if rewrite.Content != nil {
			working.Content = *rewrite.Content
		}
		if rewrite.Details != nil {
			working.Details = *rewrite.Details
		}
	}
	return working
}

// DispatchInput applies the input aggregation rule: the first
// {block:true} wins; otherwise the last non-null content override
// becomes the final input.
func (d *Dispatcher) DispatchInput(ctx context.Context, p InputPayload) (final InputPayload, blocked bool, reason string) {
	defer d.Metrics.StartEventDispatch()()
	final = p
	for _, ext := range d.Hooks.Hooks(Input) {
		if blocked {
			break
		}
		payload, err := json.Marshal(p)
		if err != nil {
			continue
		}
		resp, err := d.Invoker.Invoke(ctx, ext, Input, payload, d.timeout())
		if err != nil {
			d.Logger.Warn("extension event hook failed", "extension_id", ext, "event", Input, "error", err)
			continue
		}
		if len(resp) == 0 || string(resp) == "null" {
			continue
		}
		var r InputResult
		if err := json.Unmarshal(resp, &r); err != nil {
			continue
		}
		if r.Block {
			blocked = true
			reason = r.Reason
			break
		}
		if r.Content != nil {
			final.Content = *r.Content
		}
	}
	return final, blocked, reason
}

// DispatchSessionGuard applies the session_before_switch /
// session_before_fork aggregation rule: any {cancel:true} cancels.
func (d *Dispatcher) DispatchSessionGuard(ctx context.Context, event Name, payload any) (cancelled bool) {
	defer d.Metrics.StartEventDispatch()()
	raw, _ := json.Marshal(payload)
	d.invokeAll(ctx, event, raw, func(ext string, resp json.RawMessage) {
		if cancelled || len(resp) == 0 || string(resp) == "null" {
			return
		}
		var r SessionGuardResult
		if err := json.Unmarshal(resp, &r); err != nil {
			return
		}
		if r.Cancel {
			cancelled = true
		}
	})
	return cancelled
}

// DispatchBestEffort delivers a best-effort event (startup, agent_start,
// agent_end, turn_start, turn_end): every handler runs in registration
// order; failures are logged but never fail the event.
func (d *Dispatcher) DispatchBestEffort(ctx context.Context, event Name, payload any) error {
	defer d.Metrics.StartEventDispatch()()
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", event, err)
	}
	d.invokeAll(ctx, event, raw, func(string, json.RawMessage) {})
	return nil
}
