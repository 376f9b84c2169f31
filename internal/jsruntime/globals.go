package jsruntime

import (
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
)

// installConsole wires console.log/info/warn/error to the runtime's
// slog logger, routing everything through structured logging rather
// than stdout directly.
func (rt *Runtime) installConsole() {
	console := rt.vm.NewObject()
	bind := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "warn":
				rt.logger.Warn(msg, "extension_id", rt.extension, "source", "console")
			case "error":
				rt.logger.Error(msg, "extension_id", rt.extension, "source", "console")
			default:
				rt.logger.Info(msg, "extension_id", rt.extension, "source", "console")
			}
			return goja.Undefined()
		}
	}
	console.Set("log", bind("log"))
	console.Set("info", bind("log"))
	console.Set("warn", bind("warn"))
	console.Set("error", bind("error"))
	rt.vm.Set("console", console)
}

// installProcess installs a Node-compatible process object limited to
// the read-only env view and exit signaling described in: writes
// to process.env are silently discarded in non-strict code (it is a
// frozen snapshot object, not a live proxy over the OS environment), and
// process.exit(code) throws ERR_PROCESS_EXIT after logging the requested
// exit code at warn level; the log line is the only host-side record of
// the code.
func (rt *Runtime) installProcess() {
	process := rt.vm.NewObject()
	env := rt.vm.NewObject()
	for k, v := range FilterEnv(os.Environ()) {
		env.Set(k, v)
	}
	if freeze, ok := goja.AssertFunction(rt.vm.Get("Object").ToObject(rt.vm).Get("freeze")); ok {
		freeze(goja.Undefined(), env)
	}
	process.Set("env", env)
	process.Set("platform", "pi")
	process.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := int64(0)
		if len(call.Arguments) > 0 {
			code = call.Argument(0).ToInteger()
		}
		rt.logger.Warn("extension called process.exit", "extension_id", rt.extension, "code", code)
		panic(rt.vm.NewGoError(fmt.Errorf("ERR_PROCESS_EXIT: extension requested exit(%d)", code)))
	})
	rt.vm.Set("process", process)
}

// installNodeShims installs the minimal Buffer/EventEmitter/http(s)
// subset extensions commonly expect. These are intentionally thin:
// extensions that need real Node compatibility beyond this subset are
// expected to avoid it.
func (rt *Runtime) installNodeShims() {
	rt.installBuffer()
	rt.installEventEmitter()
	rt.installHTTPShim()
}

func (rt *Runtime) installBuffer() {
	buffer := rt.vm.NewObject()
	buffer.Set("from", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		return rt.vm.ToValue(map[string]any{
			"toString": func(goja.FunctionCall) goja.Value { return rt.vm.ToValue(s) },
			"length":   len(s),
		})
	})
	rt.vm.Set("Buffer", buffer)
}

// installEventEmitter exposes a minimal synchronous EventEmitter: on,
// off, and emit, dispatched in registration order within a single
// extension's own VM (this is unrelated to the host EventDispatcher).
func (rt *Runtime) installEventEmitter() {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		listeners := map[string][]goja.Callable{}

		obj := call.This
		obj.Set("on", func(inner goja.FunctionCall) goja.Value {
			name := inner.Argument(0).String()
			if fn, ok := goja.AssertFunction(inner.Argument(1)); ok {
				listeners[name] = append(listeners[name], fn)
			}
			return obj
		})
		obj.Set("off", func(inner goja.FunctionCall) goja.Value {
			name := inner.Argument(0).String()
			delete(listeners, name)
			return obj
		})
		obj.Set("emit", func(inner goja.FunctionCall) goja.Value {
			name := inner.Argument(0).String()
			args := []goja.Value{}
			if len(inner.Arguments) > 1 {
				args = inner.Arguments[1:]
			}
			for _, fn := range listeners[name] {
				_, _ = fn(goja.Undefined(), args...)
			}
			return rt.vm.ToValue(len(listeners[name]) > 0)
		})
		return nil
	}
	rt.vm.Set("EventEmitter", rt.vm.ToValue(ctor))
}

// installHTTPShim gives extensions a Node http/https-shaped request
// function that routes through pi.http contract: "http.request
// routes the body through pi.http and returns a ClientRequest-shaped
// object". Since pi.http is itself promise-based, this shim exposes a
// thin synchronous-looking wrapper whose callback fires once the
// underlying promise resolves.
func (rt *Runtime) installHTTPShim() {
	shim := rt.vm.NewObject()
	requestFn := func(call goja.FunctionCall) goja.Value {
		opts := call.Argument(0)
		var onResponse goja.Callable
		if len(call.Arguments) > 1 {
			onResponse, _ = goja.AssertFunction(call.Argument(1))
		}

		promise := rt.submit("http", opts)
		clientReq := rt.vm.NewObject()
		clientReq.Set("end", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
		clientReq.Set("on", func(inner goja.FunctionCall) goja.Value { return clientReq })

		if onResponse != nil {
			then, _ := goja.AssertFunction(promise.Get("then"))
			_, _ = then(promise, rt.vm.ToValue(func(innerCall goja.FunctionCall) goja.Value {
				_, _ = onResponse(goja.Undefined(), innerCall.Argument(0))
				return goja.Undefined()
			}))
		}
		return clientReq
	}
	shim.Set("request", requestFn)
	shim.Set("get", requestFn)
	rt.vm.Set("http", shim)
	rt.vm.Set("https", shim)
}
