package jsruntime

import (
	"github.com/dop251/goja"
)

// piMethods are the seven methods on the frozen `pi` global.
var piMethods = []string{"tool", "exec", "http", "session", "ui", "events", "log"}

// installPi builds the `pi` object with one submit-backed method per
// entry in piMethods and binds it as a global.
func (rt *Runtime) installPi() {
	pi := rt.vm.NewObject()
	for _, method := range piMethods {
		m := method
		pi.Set(m, func(call goja.FunctionCall) goja.Value {
			wrapped := normalizeParams(rt.vm, m, call.Arguments)
			return rt.submit(m, wrapped)
		})
	}
	rt.piObject = pi
	rt.vm.Set("pi", pi)
}

// normalizeParams adapts each pi.* call's positional JS arguments into the
// single JSON object the wire Request.Params expects, matching each
// method's documented shape:
//
//	pi.tool(name, input)      -> {name, input}
//	pi.exec(cmd, args?)       -> {cmd, args}
//	pi.http(request)          -> request, passed through as-is
//	pi.session(op, args?)     -> {op, args}
//	pi.ui(op, args?)          -> {op, args}
//	pi.events(op, args?)      -> {op, args}
//	pi.log(level, payload)    -> {level, payload}
func normalizeParams(vm *goja.Runtime, method string, args []goja.Value) goja.Value {
	arg := func(i int) goja.Value {
		if i < len(args) {
			return args[i]
		}
		return goja.Undefined()
	}

	switch method {
	case "tool":
		return vm.ToValue(map[string]any{"name": arg(0), "input": arg(1)})
	case "exec":
		return vm.ToValue(map[string]any{"cmd": arg(0), "args": arg(1)})
	case "http":
		return arg(0)
	case "session", "ui", "events":
		return vm.ToValue(map[string]any{"op": arg(0), "args": arg(1)})
	case "log":
		return vm.ToValue(map[string]any{"level": arg(0), "payload": arg(1)})
	default:
		return vm.ToValue(map[string]any{})
	}
}
