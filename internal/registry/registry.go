// Package registry implements the ExtensionRegistry:
// the authoritative in-memory catalog of everything extensions register
// during activate. Grounded on internal/plugin/manager.go's Manager,
// generalized from a single "plugin" artifact kind to the seven
// registration kinds an extension may declare.
package registry

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Kind is one of the registrable artifact kinds named in
// ExtensionRegistration.
type Kind string

const (
	KindTool     Kind = "tool"
	KindCommand  Kind = "command"
	KindFlag     Kind = "flag"
	KindShortcut Kind = "shortcut"
	KindProvider Kind = "provider"
	KindRenderer Kind = "renderer"
)

// Tool is a named tool registration with its declared JSON-schema params.
type Tool struct {
	Name        string
	ExtensionID string
	Schema      string // JSON schema for Input, validated by internal/hostcall
	Description string
}

// Command is a slash-command or CLI-flag-style registration.
type Command struct {
	Name        string
	ExtensionID string
	Description string
}

// entry is the generic last-write-wins record used for every Kind except
// event hooks.
type entry struct {
	extensionID string
	data        any
}

// Registry is the ExtensionRegistry.
type Registry struct {
	mu sync.RWMutex

	byKindName map[Kind]map[string]entry

	// hookOrder preserves registration order across extensions for each
	// event name; hookSeen records which extensions already hold a slot
	// for each event so re-registering does not move or duplicate it.
	hookOrder map[string][]string
	hookSeen  map[string]map[string]bool

	// owned tracks every (kind, name) and every (event) an extension has
	// registered, so Unregister can cleanly remove everything it owns.
	owned map[string][]ownedKey

	logger *slog.Logger
}

type ownedKey struct {
	kind  Kind
	name  string
	event string // non-empty for hook ownership entries
}

// New constructs an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byKindName: map[Kind]map[string]entry{},
		hookOrder:  map[string][]string{},
		hookSeen:   map[string]map[string]bool{},
		owned:      map[string][]ownedKey{},
		logger:     logger,
	}
}

// Register records a named artifact of the given kind, owned by
// extensionID. If the name already exists for that kind (registered by
// this or another extension), the new registration wins and the prior
// owner is logged as a warning; collisions are reported, never
// prevented.
func (r *Registry) Register(kind Kind, extensionID, name string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byKindName[kind] == nil {
		r.byKindName[kind] = map[string]entry{}
	}
	if prior, ok := r.byKindName[kind][name]; ok && prior.extensionID != extensionID {
		r.logger.Warn("extension registration collision, later registration wins",
			"kind", kind, "name", name, "previous_owner", prior.extensionID, "new_owner", extensionID)
	}
	r.byKindName[kind][name] = entry{extensionID: extensionID, data: data}
	r.owned[extensionID] = append(r.owned[extensionID], ownedKey{kind: kind, name: name})
}

// RegisterEventHook subscribes extensionID to event, in the order first
// seen. Re-registering the same (extensionID, event) pair is a no-op for
// ordering purposes (it does not move the extension's slot).
func (r *Registry) RegisterEventHook(extensionID, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hookSeen[event] == nil {
		r.hookSeen[event] = map[string]bool{}
	}
	if r.hookSeen[event][extensionID] {
		return
	}
	r.hookSeen[event][extensionID] = true
	r.hookOrder[event] = append(r.hookOrder[event], extensionID)
	r.owned[extensionID] = append(r.owned[extensionID], ownedKey{event: event})
}

// Hooks returns the extension ids subscribed to event, in registration
// order. internal/events.HookSource takes its own Name type rather than
// a plain string, so callers wire this through a one-line adapter (see
// internal/loadpipeline's registryHooks) instead of satisfying that
// interface directly here, keeping this package free of an events import.
func (r *Registry) Hooks(event string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.hookOrder[event]))
	copy(out, r.hookOrder[event])
	return out
}

// ListTools returns every registered tool, keyed by name.
func (r *Registry) ListTools() map[string]Tool {
	return listTyped[Tool](r, KindTool)
}

// ListCommands returns every registered slash command.
func (r *Registry) ListCommands() map[string]Command {
	return listTyped[Command](r, KindCommand)
}

func listTyped[T any](r *Registry, kind Kind) map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]T{}
	for name, e := range r.byKindName[kind] {
		if v, ok := e.data.(T); ok {
			out[name] = v
		}
	}
	return out
}

// Lookup returns the owner extension id and data for (kind, name).
func (r *Registry) Lookup(kind Kind, name string) (extensionID string, data any, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKindName[kind][name]
	return e.extensionID, e.data, ok
}

// ToolSchema implements hostcall.SchemaLookup.
func (r *Registry) ToolSchema(name string) (string, bool) {
	_, data, ok := r.Lookup(KindTool, name)
	if !ok {
		return "", false
	}
	tool, ok := data.(Tool)
	if !ok {
		return "", false
	}
	return tool.Schema, true
}

// Unregister removes everything owned by extensionID: named artifacts of
// every kind and its event-hook subscriptions, preserving the relative
// order of remaining extensions for each event.
func (r *Registry) Unregister(extensionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.owned[extensionID] {
		if k.event != "" {
			delete(r.hookSeen[k.event], extensionID)
			filtered := r.hookOrder[k.event][:0:0]
			for _, id := range r.hookOrder[k.event] {
				if id != extensionID {
					filtered = append(filtered, id)
				}
			}
			r.hookOrder[k.event] = filtered
			continue
		}
		if e, ok := r.byKindName[k.kind][k.name]; ok && e.extensionID == extensionID {
			delete(r.byKindName[k.kind], k.name)
		}
	}
	delete(r.owned, extensionID)
}

// MarshalSnapshot returns a JSON-serializable view of everything an
// extension currently owns, for diagnostics.
func (r *Registry) MarshalSnapshot(extensionID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type snapshot struct {
		Tools     []string `json:"tools"`
		Commands  []string `json:"commands"`
		Flags     []string `json:"flags"`
		Shortcuts []string `json:"shortcuts"`
		Providers []string `json:"providers"`
		Renderers []string `json:"renderers"`
		Events    []string `json:"events"`
	}
	var s snapshot
	for _, k := range r.owned[extensionID] {
		if k.event != "" {
			s.Events = append(s.Events, k.event)
			continue
		}
		switch k.kind {
		case KindTool:
			s.Tools = append(s.Tools, k.name)
		case KindCommand:
			s.Commands = append(s.Commands, k.name)
		case KindFlag:
			s.Flags = append(s.Flags, k.name)
		case KindShortcut:
			s.Shortcuts = append(s.Shortcuts, k.name)
		case KindProvider:
			s.Providers = append(s.Providers, k.name)
		case KindRenderer:
			s.Renderers = append(s.Renderers, k.name)
		}
	}
	return json.Marshal(s)
}
