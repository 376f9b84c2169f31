package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pi-cli/pi/internal/hostcall"
	"github.com/pi-cli/pi/internal/registry"
)

// HookSource is the subset of *registry.Registry the events backend
// introspects: which extensions are subscribed to a lifecycle event, in
// registration order.
type HookSource interface {
	Hooks(event string) []string
}

// EventsBackend backs the "events" host call method: introspection over
// the ten-event lifecycle catalog an extension subscribed to during
// activate via registerEventHook (internal/jsruntime/registrar.go), not
// a channel for emitting ad-hoc events; the lifecycle catalog is closed
// and host-driven.
type EventsBackend struct {
	Hooks HookSource
}

// NewEventsBackend returns an EventsBackend reading subscriptions from r.
func NewEventsBackend(r *registry.Registry) *EventsBackend {
	return &EventsBackend{Hooks: r}
}

type eventsOp struct {
	Op   string `json:"op"`
	Args struct {
		Event string `json:"event"`
	} `json:"args"`
}

// Execute implements hostcall.Backend.
func (b *EventsBackend) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var op eventsOp
	if err := json.Unmarshal(req.Params, &op); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed events op: "+err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(op.Op)) {
	case "list":
		if strings.TrimSpace(op.Args.Event) == "" {
			return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "list requires an event name")
		}
		return json.Marshal(map[string]any{"subscribers": b.Hooks.Hooks(op.Args.Event)})
	default:
		return nil, hostcall.Unsupported(fmt.Sprintf("unknown events op %q", op.Op))
	}
}
