package loadpipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// moduleCache memoizes compiled relative-import modules per extension,
// keyed by resolved absolute path, mirroring Node's require cache and the
// js.Registry/AliasRuntime.Require pattern (a per-root require with its
// own module cache) seen in the example pack's goja-based rule engine.
type moduleCache struct {
	mu      sync.Mutex
	modules map[string]goja.Value
}

func newModuleCache() *moduleCache {
	return &moduleCache{modules: map[string]goja.Value{}}
}

// shimModules are the node:*/bare specifiers this runtime resolves
// in-process rather than from disk documented Node-compatible
// shim subset: extensions get the same Buffer/EventEmitter/http globals
// installed by globals.go, addressable by their familiar module names.
var shimModules = map[string]func(vm *goja.Runtime) goja.Value{
	"events": func(vm *goja.Runtime) goja.Value {
		return vm.ToValue(map[string]any{"EventEmitter": vm.Get("EventEmitter")})
	},
	"node:events": func(vm *goja.Runtime) goja.Value {
		return vm.ToValue(map[string]any{"EventEmitter": vm.Get("EventEmitter")})
	},
	"buffer": func(vm *goja.Runtime) goja.Value {
		return vm.ToValue(map[string]any{"Buffer": vm.Get("Buffer")})
	},
	"node:buffer": func(vm *goja.Runtime) goja.Value {
		return vm.ToValue(map[string]any{"Buffer": vm.Get("Buffer")})
	},
	"http": func(vm *goja.Runtime) goja.Value { return vm.Get("http") },
	"https": func(vm *goja.Runtime) goja.Value { return vm.Get("https") },
	"node:http": func(vm *goja.Runtime) goja.Value { return vm.Get("http") },
	"node:https": func(vm *goja.Runtime) goja.Value { return vm.Get("https") },
}

// newRequire builds the Go-backed require(specifier) function bound as
// __pi_require__ and invoked from wrapCommonJS's generated wrapper. It
// resolves three specifier shapes: node:*/bare shim modules, relative
// sibling files under extRoot (read, transformed, and instantiated the
// same way the entry module was), and anything else is an unsupported
// import the extension author must avoid documented scope.
func newRequire(vm *goja.Runtime, extRoot string, cache *moduleCache, logger *slog.Logger) func(goja.FunctionCall) goja.Value {
	if logger == nil {
		logger = slog.Default()
	}
	return func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()

		if shim, ok := shimModules[spec]; ok {
			return shim(vm)
		}
		if strings.HasPrefix(spec, "node:") || !strings.HasPrefix(spec, ".") {
			logger.Warn("extension required an unresolved module, returning empty object",
				"specifier", spec)
			return vm.NewObject()
		}

		resolved := resolveRelative(extRoot, spec)

		cache.mu.Lock()
		if v, ok := cache.modules[resolved]; ok {
			cache.mu.Unlock()
			return v
		}
		cache.mu.Unlock()

		src, err := os.ReadFile(resolved)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("require(%q): %w", spec, err)))
		}
		wrapped := wrapCommonJS(transformSource(string(src)))
		program, err := goja.Compile(resolved, wrapped, false)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("require(%q): compile: %w", spec, err)))
		}
		exports, err := vm.RunProgram(program)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("require(%q): evaluate: %w", spec, err)))
		}

		cache.mu.Lock()
		cache.modules[resolved] = exports
		cache.mu.Unlock()
		return exports
	}
}

func resolveRelative(extRoot, spec string) string {
	candidate := filepath.Join(extRoot, spec)
	for _, ext := range []string{"", ".js", ".ts", ".mjs"} {
		p := candidate + ext
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return candidate
}
