package jsruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/pi-cli/pi/internal/registry"
)

// Registrar is the seam to the ExtensionRegistry (internal/registry),
// exercised by the nine pi.register* methods an activating extension
// calls during its top-level activate(pi, ctx) invocation.
type Registrar interface {
	Register(kind registry.Kind, extensionID, name string, data any)
	RegisterEventHook(extensionID, event string)
}

// SetRegistrar wires r as the backing ExtensionRegistry for this Runtime's
// registration methods. Must be called before Install; internal/loadpipeline
// owns the Registry shared across every loaded extension's Runtime.
func (rt *Runtime) SetRegistrar(r Registrar) {
	rt.registrar = r
}

// registerArgs describes the shape each pi.register* method extracts from
// its positional JS arguments. Unlike the host-call methods in pi.go,
// these are synchronous: registration either succeeds immediately or the
// extension made a programming error caught as a thrown TypeError.
type registerArgs struct {
	kind registry.Kind
	// build turns (name, rest...) into the value stored against (kind, name).
	build func(name string, rest []goja.Value) any
}

var registerMethods = map[string]registerArgs{
	"registerTool": {
		kind: registry.KindTool,
		build: func(name string, rest []goja.Value) any {
			var schema, description string
			if len(rest) > 0 && !goja.IsUndefined(rest[0]) {
				schema = rest[0].String()
			}
			if len(rest) > 1 && !goja.IsUndefined(rest[1]) {
				description = rest[1].String()
			}
			return registry.Tool{Name: name, Schema: schema, Description: description}
		},
	},
	"registerCommand": {
		kind: registry.KindCommand,
		build: func(name string, rest []goja.Value) any {
			var description string
			if len(rest) > 0 && !goja.IsUndefined(rest[0]) {
				description = rest[0].String()
			}
			return registry.Command{Name: name, Description: description}
		},
	},
	"registerSlashCommand": {
		kind: registry.KindCommand,
		build: func(name string, rest []goja.Value) any {
			var description string
			if len(rest) > 0 && !goja.IsUndefined(rest[0]) {
				description = rest[0].String()
			}
			return registry.Command{Name: name, Description: description}
		},
	},
	"registerFlag": {
		kind: registry.KindFlag,
		build: func(name string, rest []goja.Value) any { return name },
	},
	"registerShortcut": {
		kind: registry.KindShortcut,
		build: func(name string, rest []goja.Value) any { return name },
	},
	"registerProvider": {
		kind: registry.KindProvider,
		build: func(name string, rest []goja.Value) any { return name },
	},
	"registerMessageRenderer": {
		kind: registry.KindRenderer,
		build: func(name string, rest []goja.Value) any { return name },
	},
}

// installRegistrations adds the pi.register* methods, pi.registerEvent,
// pi.registerEventHook, and pi.on onto the already-built pi object
// (installPi runs first; Install freezes pi after this call), completing
// the extension-author API surface.
func (rt *Runtime) installRegistrations() {
	for name, spec := range registerMethods {
		m := name
		s := spec
		rt.piObject.Set(m, func(call goja.FunctionCall) goja.Value {
			argName := call.Argument(0).String()
			data := s.build(argName, call.Arguments[min(1, len(call.Arguments)):])
			if rt.registrar != nil {
				rt.registrar.Register(s.kind, rt.extension, argName, data)
			}
			return goja.Undefined()
		})
	}

	// registerEvent declares a custom extension-defined event type. The
	// dispatch catalog is closed to the ten built-in lifecycle
	// events; a custom event name never reaches EventDispatcher, so this
	// is a declaration extensions can introspect against each other but
	// the host does not act on it beyond logging.
	rt.piObject.Set("registerEvent", func(call goja.FunctionCall) goja.Value {
		rt.logger.Debug("extension declared custom event", "extension_id", rt.extension, "event", call.Argument(0).String())
		return goja.Undefined()
	})

	rt.piObject.Set("registerEventHook", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		if rt.registrar != nil {
			rt.registrar.RegisterEventHook(rt.extension, event)
		}
		return goja.Undefined()
	})

	rt.piObject.Set("on", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(rt.vm.NewTypeError("pi.on(event, handler): handler must be a function"))
		}
		rt.mu.Lock()
		rt.handlers[event] = fn
		rt.mu.Unlock()
		if rt.registrar != nil {
			rt.registrar.RegisterEventHook(rt.extension, event)
		}
		return goja.Undefined()
	})
}

// InvokeHandler calls the handler this extension registered for event (if
// any) with payload, waits for it to settle (synchronously for a plain
// return, by pumping the owning EventLoop for a returned promise) up to
// timeout, and returns its JSON-marshaled response. Must be called only
// from the goroutine that owns this Runtime's EventLoop (internal/
// loadpipeline's per-extension driver): goja.Runtime is not safe for
// concurrent use, and this blocks that goroutine until the handler
// settles or the deadline passes, mirroring the single-JS-thread model
// every extension runs under.
func (rt *Runtime) InvokeHandler(ctx context.Context, event string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	rt.mu.Lock()
	fn, ok := rt.handlers[event]
	rt.mu.Unlock()
	if !ok {
		return nil, nil
	}

	argVal, err := rt.parseJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("jsruntime: decode %s payload: %w", event, err)
	}

	result, err := fn(goja.Undefined(), argVal)
	if err != nil {
		return nil, fmt.Errorf("jsruntime: hook %s threw: %w", event, err)
	}

	settled, err := rt.awaitSettled(ctx, result, timeout)
	if err != nil {
		return nil, err
	}
	return rt.marshalJSON(settled)
}

// awaitSettled resolves v immediately if it is not a Promise; otherwise it
// pumps Tick/DrainMicrotasks (the same driver a dedicated extension
// goroutine would run on its own schedule) until the promise settles or
// the deadline elapses.
func (rt *Runtime) awaitSettled(ctx context.Context, v goja.Value, timeout time.Duration) (goja.Value, error) {
	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("jsruntime: handler promise rejected: %v", promise.Result().Export())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("jsruntime: handler did not settle within %s", timeout)
		}
		rt.Tick()
		if rt.loop.PendingCount() == 0 && rt.loop.QueueLen() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// parseJSON is the inverse of marshalJSON: decode a wire payload into a
// goja.Value via the runtime's own JSON.parse, so extension code sees
// genuine JS objects rather than Go-side reflection wrappers.
func (rt *Runtime) parseJSON(raw json.RawMessage) (goja.Value, error) {
	if len(raw) == 0 {
		return goja.Undefined(), nil
	}
	parse, ok := goja.AssertFunction(rt.vm.Get("JSON").ToObject(rt.vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("JSON.parse unavailable")
	}
	return parse(goja.Undefined(), rt.vm.ToValue(string(raw)))
}
