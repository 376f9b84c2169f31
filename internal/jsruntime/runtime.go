// Package jsruntime implements the JsRuntime: the
// embedded JavaScript engine instance, the frozen `pi` host-API global,
// and the promise-resolver table bridging host completions back into
// JavaScript. Grounded on original_source/src/extensions_js.rs's `pi`
// global scaffold and microtask-draining contract, implemented with
// github.com/dop251/goja.
package jsruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/pi-cli/pi/internal/eventloop"
	"github.com/pi-cli/pi/internal/hostcall"
)

// Dispatcher is the seam to the HostCallDispatcher (internal/hostcall).
type Dispatcher interface {
	Dispatch(ctx context.Context, req hostcall.Request) hostcall.Outcome
}

type pendingCall struct {
	resolve func(any)
	reject  func(any)
}

// Runtime owns one goja.Runtime instance for a single loaded extension.
// Extensions do not share a VM: each gets its own Runtime, its own
// EventLoop, and its own promise table, so one extension's failure
// never corrupts another's state.
type Runtime struct {
	vm         *goja.Runtime
	loop       *eventloop.Loop
	dispatcher Dispatcher
	extension  string
	logger     *slog.Logger

	mu       sync.Mutex
	pending  map[string]pendingCall
	timers   map[string]timerEntry
	timerSeq uint64
	handlers map[string]goja.Callable

	registrar Registrar
	piObject  *goja.Object
}

// New constructs a Runtime for extensionID, wired to loop for timer and
// macrotask scheduling and dispatcher for outbound host calls.
func New(extensionID string, loop *eventloop.Loop, dispatcher Dispatcher, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		vm:         goja.New(),
		loop:       loop,
		dispatcher: dispatcher,
		extension:  extensionID,
		logger:     logger,
		pending:    map[string]pendingCall{},
		timers:     map[string]timerEntry{},
		handlers:   map[string]goja.Callable{},
	}
	rt.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return rt
}

// VM exposes the underlying goja runtime for module compile/run calls
// made by internal/loadpipeline.
func (rt *Runtime) VM() *goja.Runtime { return rt.vm }

// Install sets up the `pi` global and the Node-compatible shim subset,
// then freezes `pi` per invariant 7: any later attempt to add or
// replace a property on it throws in strict mode and is silently
// ignored otherwise, which is exactly how JS's own Object.freeze
// behaves once applied, so freezing is delegated to the engine itself.
func (rt *Runtime) Install() error {
	rt.installPi()
	rt.installRegistrations()
	rt.installTimers()
	rt.installConsole()
	rt.installProcess()
	rt.installNodeShims()

	if _, err := rt.vm.RunString("Object.freeze(pi);"); err != nil {
		return fmt.Errorf("jsruntime: freeze pi global: %w", err)
	}
	return nil
}

// Activate runs program and invokes its default export as
// activate(pi, ctx).
func (rt *Runtime) Activate(program *goja.Program, activationCtx any) error {
	v, err := rt.vm.RunProgram(program)
	if err != nil {
		return fmt.Errorf("jsruntime: evaluate module: %w", err)
	}

	var activate goja.Callable
	if obj, ok := v.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(obj.Get("default")); ok {
			activate = fn
		}
	}
	if activate == nil {
		if fn, ok := goja.AssertFunction(rt.vm.Get("activate")); ok {
			activate = fn
		}
	}
	if activate == nil {
		return fmt.Errorf("jsruntime: module has no default export or top-level activate function")
	}

	piVal := rt.vm.Get("pi")
	ctxVal := rt.vm.ToValue(activationCtx)
	if _, err := activate(goja.Undefined(), piVal, ctxVal); err != nil {
		return fmt.Errorf("jsruntime: activate(): %w", err)
	}
	return nil
}

func (rt *Runtime) nextCallID() string {
	return rt.extension + ":" + uuid.NewString()
}

// marshalJSON serializes a JS value to a JSON document using the
// engine's own JSON.stringify, so goja's value-to-JSON coercion rules
// (undefined fields dropped, toJSON() honored, etc.) apply exactly as
// they would for any other JS JSON.stringify call.
func (rt *Runtime) marshalJSON(v goja.Value) ([]byte, error) {
	stringify, ok := goja.AssertFunction(rt.vm.Get("JSON").ToObject(rt.vm).Get("stringify"))
	if !ok {
		return nil, fmt.Errorf("JSON.stringify unavailable")
	}
	result, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(result) {
		return []byte("null"), nil
	}
	return []byte(result.String()), nil
}

// submit builds a HostCallRequest for method/params, records the paired
// promise resolvers, dispatches asynchronously (so the JS thread is
// never blocked on host I/O), and feeds the outcome back through the
// owning EventLoop as a KindHostCallCompletion macrotask.
func (rt *Runtime) submit(method string, paramsValue goja.Value) *goja.Object {
	promise, resolve, reject := rt.vm.NewPromise()

	callID := rt.nextCallID()
	params, err := rt.marshalJSON(paramsValue)
	if err != nil {
		reject(rt.vm.ToValue(map[string]any{"code": "invalid_request", "message": err.Error()}))
		return rt.vm.ToValue(promise).ToObject(rt.vm)
	}

	rt.mu.Lock()
	rt.pending[callID] = pendingCall{resolve: resolve, reject: reject}
	rt.mu.Unlock()

	req := hostcall.Request{
		CallID:      callID,
		Method:      method,
		Params:      params,
		ExtensionID: rt.extension,
	}

	go func() {
		outcome := rt.dispatcher.Dispatch(context.Background(), req)
		rt.loop.Enqueue(eventloop.Macrotask{
			Kind:    eventloop.KindHostCallCompletion,
			CallID:  callID,
			Payload: outcome,
		})
	}()

	return rt.vm.ToValue(promise).ToObject(rt.vm)
}

// HandleOutcome is the EventLoop's onMacrotask callback for
// KindHostCallCompletion: it resolves or rejects the paired promise; the
// promise reactions run when the loop next drains microtasks. Per hostcall
// completion contract, an outcome for an unknown call_id (already
// cancelled, or a duplicate) is logged and dropped.
func (rt *Runtime) HandleOutcome(outcome hostcall.Outcome) {
	rt.mu.Lock()
	pc, ok := rt.pending[outcome.CallID]
	if ok {
		delete(rt.pending, outcome.CallID)
	}
	rt.mu.Unlock()

	if !ok {
		rt.logger.Warn("hostcall outcome for unknown call_id dropped",
			"extension_id", rt.extension, "call_id", outcome.CallID)
		return
	}

	if outcome.IsError {
		pc.reject(rt.vm.ToValue(map[string]any{
			"code":    string(outcome.Error.Code),
			"message": outcome.Error.Message,
		}))
		return
	}

	raw, _ := outcome.Value.(json.RawMessage)
	value, err := rt.parseJSON(raw)
	if err != nil {
		pc.reject(rt.vm.ToValue(map[string]any{
			"code":    string(hostcall.ErrInternal),
			"message": err.Error(),
		}))
		return
	}
	pc.resolve(value)
}

// DrainMicrotasks runs goja's internal job queue to a fixed point and
// reports whether any job ran, matching the EventLoop.Tick contract's
// drain_microtasks() callback.
func (rt *Runtime) DrainMicrotasks() bool {
	ran := false
	for {
		if err := rt.vm.RunJob(); err != nil {
			break
		}
		ran = true
	}
	return ran
}

// OnMacrotask is the EventLoop.Tick onMacrotask callback: it routes a
// popped macrotask to the right handler.
func (rt *Runtime) OnMacrotask(task eventloop.Macrotask) {
	switch task.Kind {
	case eventloop.KindHostCallCompletion:
		outcome, ok := task.Payload.(hostcall.Outcome)
		if !ok {
			rt.logger.Error("malformed host call completion macrotask", "extension_id", rt.extension)
			return
		}
		rt.HandleOutcome(outcome)
	case eventloop.KindTimerFired:
		rt.fireTimer(task.TimerID)
	case eventloop.KindInboundEvent:
		// Inbound lifecycle events are delivered through
		// internal/events.Dispatcher's Invoker seam, not through the
		// macrotask path; this branch exists for loop symmetry and is a
		// no-op here.
	}
}

// Tick advances the owning EventLoop by exactly one tick.
func (rt *Runtime) Tick() {
	rt.loop.Tick(rt.OnMacrotask, rt.DrainMicrotasks)
}
