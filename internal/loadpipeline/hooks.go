package loadpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pi-cli/pi/internal/events"
)

// registryHooks adapts *registry.Registry's plain-string Hooks method to
// events.HookSource's events.Name-typed one, the one-line bridge
// registry.go's own doc comment points to: registry stays free of an
// internal/events import (it sits below events in the dependency order),
// and loadpipeline sits above both, so the adapter lives here.
type registryHooks struct {
	reg interface{ Hooks(event string) []string }
}

func (h registryHooks) Hooks(event events.Name) []string {
	return h.reg.Hooks(string(event))
}

// pipelineInvoker implements events.Invoker by routing an event-hook call
// to the named extension's dedicated runtime thread.
type pipelineInvoker struct {
	pipeline *Pipeline
}

func (inv pipelineInvoker) Invoke(ctx context.Context, extensionID string, event events.Name, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	ext, ok := inv.pipeline.Get(extensionID)
	if !ok {
		return nil, fmt.Errorf("loadpipeline: extension %q not loaded", extensionID)
	}
	return ext.Invoke(ctx, string(event), payload, timeout)
}

// NewEventDispatcher builds an events.Dispatcher wired against p's
// Registry (for subscription lookup) and its loaded extensions (for
// invocation) EventDispatcher seam.
func (p *Pipeline) NewEventDispatcher() *events.Dispatcher {
	return events.NewDispatcher(pipelineInvoker{pipeline: p}, registryHooks{reg: p.Registry}, p.Logger)
}
