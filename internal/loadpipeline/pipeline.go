// Package loadpipeline implements the LoadPipeline:
// resolve → transform → instantiate → activate → snapshot, one fresh
// jsruntime.Runtime and eventloop.Loop per extension, driven on its own
// goroutine so goja's single-threaded requirement holds even though
// many extensions load and run concurrently. Grounded on
// internal/plugin/loader.go's Loader: DiscoverAll/LoadAll's per-file
// failure isolation, Reload's atomic-replacement discipline, and
// WatchDir's fsnotify debounce loop (see watch.go), generalized from a
// single WASM/gRPC plugin kind to an in-process JS module extension.
package loadpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/pi-cli/pi/internal/eventloop"
	"github.com/pi-cli/pi/internal/jsruntime"
	"github.com/pi-cli/pi/internal/registry"
)

// LoadError reports which extension and which pipeline phase a load
// failure occurred in "Failure semantics": other extensions
// continue loading regardless.
type LoadError struct {
	ExtensionID string
	Phase       string
	Err         error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loadpipeline: extension %q failed at %s: %v", e.ExtensionID, e.Phase, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Extension is a single loaded, activated extension: its own Runtime,
// EventLoop, and dedicated driver goroutine.
type Extension struct {
	ID        string
	Root      string
	EntryPath string
	Manifest  *Manifest
	Runtime   *jsruntime.Runtime
	Loop      *eventloop.Loop
	LoadedAt  time.Time

	invokeCh chan invokeRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

type invokeRequest struct {
	ctx      context.Context
	event    string
	payload  json.RawMessage
	timeout  time.Duration
	resultCh chan invokeResult
}

type invokeResult struct {
	resp json.RawMessage
	err  error
}

// run is the extension's dedicated runtime thread: it alternates
// between pumping the EventLoop (timers, host-call completions) and
// servicing synchronous event-hook invocations, never both at once, so
// the underlying goja.Runtime is touched from exactly one goroutine.
func (ext *Extension) run() {
	defer close(ext.doneCh)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ext.stopCh:
			return
		case req := <-ext.invokeCh:
			resp, err := ext.Runtime.InvokeHandler(req.ctx, req.event, req.payload, req.timeout)
			req.resultCh <- invokeResult{resp: resp, err: err}
		case <-ticker.C:
			ext.Runtime.Tick()
		}
	}
}

// Invoke calls this extension's handler for event with payload, blocking
// until it settles or ctx is cancelled. Satisfies the per-extension half
// of events.Invoker once routed by name (see hooks.go's pipelineInvoker).
func (ext *Extension) Invoke(ctx context.Context, event string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	req := invokeRequest{ctx: ctx, event: event, payload: payload, timeout: timeout, resultCh: make(chan invokeResult, 1)}
	select {
	case ext.invokeCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ext.stopCh:
		return nil, fmt.Errorf("loadpipeline: extension %q stopped", ext.ID)
	}
	select {
	case res := <-req.resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ext *Extension) stop() {
	ext.stopOnce.Do(func() {
		close(ext.stopCh)
		<-ext.doneCh
	})
}

// Pipeline owns every currently loaded extension and the shared
// collaborators each one's Runtime is wired against.
type Pipeline struct {
	Registry   *registry.Registry
	Dispatcher jsruntime.Dispatcher
	Clock      eventloop.Clock
	Logger     *slog.Logger

	mu         sync.RWMutex
	extensions map[string]*Extension
}

// New constructs an empty Pipeline.
func New(reg *registry.Registry, dispatcher jsruntime.Dispatcher, clock eventloop.Clock, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Registry:   reg,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     logger,
		extensions: map[string]*Extension{},
	}
}

// Load runs the five-step pipeline against root (a directory or a single
// entry file) and, on success, starts the extension's driver goroutine
// and registers it for lookup by id.
func (p *Pipeline) Load(ctx context.Context, root string) (*Extension, error) {
	extRoot := root
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		extRoot = filepath.Dir(root)
	}

	manifest, err := loadManifest(extRoot)
	if err != nil {
		return nil, &LoadError{ExtensionID: filepath.Base(extRoot), Phase: "manifest", Err: err}
	}

	id := extensionID(extRoot, manifest)

	entryPath, err := resolveEntry(root, manifest)
	if err != nil {
		return nil, &LoadError{ExtensionID: id, Phase: "resolve", Err: err}
	}

	source, err := os.ReadFile(entryPath)
	if err != nil {
		return nil, &LoadError{ExtensionID: id, Phase: "resolve", Err: err}
	}

	wrapped := wrapCommonJS(transformSource(string(source)))

	loop := eventloop.New(p.Clock)
	rt := jsruntime.New(id, loop, p.Dispatcher, p.Logger)
	rt.SetRegistrar(p.Registry)

	cache := newModuleCache()
	rt.VM().Set("__pi_require__", newRequire(rt.VM(), extRoot, cache, p.Logger))

	if err := rt.Install(); err != nil {
		return nil, &LoadError{ExtensionID: id, Phase: "instantiate", Err: err}
	}

	program, err := goja.Compile(entryPath, wrapped, false)
	if err != nil {
		return nil, &LoadError{ExtensionID: id, Phase: "instantiate", Err: err}
	}

	activationCtx := map[string]any{"extension_id": id, "root": extRoot}
	if err := rt.Activate(program, activationCtx); err != nil {
		return nil, &LoadError{ExtensionID: id, Phase: "activate", Err: err}
	}

	ext := &Extension{
		ID:        id,
		Root:      extRoot,
		EntryPath: entryPath,
		Manifest:  manifest,
		Runtime:   rt,
		Loop:      loop,
		LoadedAt:  time.Now(),
		invokeCh:  make(chan invokeRequest),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go ext.run()

	p.mu.Lock()
	if prior, exists := p.extensions[id]; exists {
		prior.stop()
	}
	p.extensions[id] = ext
	p.mu.Unlock()

	p.Logger.Info("extension loaded", "extension_id", id, "entry", entryPath)
	return ext, nil
}

// LoadAll loads every entry in roots, isolating failures: a
// broken extension is reported but never prevents the rest from loading,
// mirroring Loader.LoadAll's (int, []error) contract.
func (p *Pipeline) LoadAll(ctx context.Context, roots []string) ([]*Extension, []*LoadError) {
	var loaded []*Extension
	var errs []*LoadError
	for _, root := range roots {
		ext, err := p.Load(ctx, root)
		if err != nil {
			if le, ok := err.(*LoadError); ok {
				errs = append(errs, le)
				p.Logger.Error("extension load failed", "extension_id", le.ExtensionID, "phase", le.Phase, "error", le.Err)
				continue
			}
			errs = append(errs, &LoadError{Phase: "unknown", Err: err})
			continue
		}
		loaded = append(loaded, ext)
	}
	return loaded, errs
}

// Get returns the loaded extension by id.
func (p *Pipeline) Get(id string) (*Extension, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ext, ok := p.extensions[id]
	return ext, ok
}

// List returns every currently loaded extension id.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.extensions))
	for id := range p.extensions {
		ids = append(ids, id)
	}
	return ids
}

// Unload stops ext's driver goroutine and removes everything it
// registered from the shared ExtensionRegistry.
func (p *Pipeline) Unload(id string) error {
	p.mu.Lock()
	ext, ok := p.extensions[id]
	if ok {
		delete(p.extensions, id)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("loadpipeline: extension %q not loaded", id)
	}
	ext.stop()
	p.Registry.Unregister(id)
	p.Logger.Info("extension unloaded", "extension_id", id)
	return nil
}

// Reload rebuilds the extension from its original root before tearing
// down the previous instance, so a load failure in the new version never
// leaves the extension unregistered, the same atomic-replacement
// discipline as Manager.ReplacePlugin in internal/plugin/loader.go's
// Reload.
func (p *Pipeline) Reload(ctx context.Context, id string) error {
	p.mu.RLock()
	prior, ok := p.extensions[id]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("loadpipeline: extension %q not loaded", id)
	}

	if _, err := p.Load(ctx, prior.Root); err != nil {
		return err
	}
	prior.stop()
	// The new Runtime activated under the same extension id, so every
	// artifact it registered already won last-write-wins over the prior
	// version's entries (Register's collision rule); there is nothing
	// left to unregister without also destroying what was just loaded.
	return nil
}

func extensionID(root string, manifest *Manifest) string {
	if manifest != nil && manifest.Name != "" {
		return manifest.Name
	}
	base := filepath.Base(root)
	if base != "" && base != "." && base != "/" {
		return base
	}
	return uuid.NewString()
}
