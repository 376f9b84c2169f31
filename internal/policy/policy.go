// Package policy implements a five-layer capability precedence engine,
// grounded on the permission-check pattern in
// internal/plugin/sandbox.go (hasPermission/permissionScope) and
// generalized from a fixed resource-type switch to the closed Capability
// enumeration and per-extension override chain.
package policy

import (
	"strings"

	"github.com/pi-cli/pi/internal/capability"
)

// Decision is the PolicyEngine's verdict for a single authorization check.
type Decision string

const (
	Allow  Decision = "allow"
	Deny   Decision = "deny"
	Prompt Decision = "prompt"
)

// Reason strings are part of the wire contract: downstream conformance
// tooling diffs on these exact spellings, so they must never change.
const (
	ReasonExtensionDeny    = "extension_deny"
	ReasonDenyCaps         = "deny_caps"
	ReasonExtensionAllow   = "extension_allow"
	ReasonDefaultCaps      = "default_caps"
	ReasonNotInDefaultCaps = "not_in_default_caps"
	ReasonPromptRequired   = "prompt_required"
	ReasonPermissive       = "permissive"
	ReasonEmptyCapability  = "empty_capability"
)

// Mode is the global or per-extension fallback behavior once none of the
// explicit allow/deny layers matched.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModePrompt     Mode = "prompt"
	ModePermissive Mode = "permissive"
)

// Override carries an optional mode and explicit allow/deny lists scoped
// to a single extension.
type Override struct {
	Mode  *Mode
	Allow capability.Set
	Deny  capability.Set
}

// Config is the effective policy for a process: global mode plus
// default/deny capability sets plus per-extension overrides.
type Config struct {
	Mode         Mode
	DefaultCaps  capability.Set
	DenyCaps     capability.Set
	PerExtension map[string]Override
}

// Result is the outcome of a single Evaluate call.
type Result struct {
	Decision Decision
	Reason   string
}

// Engine evaluates capability checks against a Config.
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine bound to the given config. The config is
// copied defensively so later mutation by the caller does not affect
// already-running evaluations.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cloneConfig(cfg)}
}

// Config returns a defensive copy of the engine's current configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.cfg)
}

// SetConfig atomically replaces the engine's configuration.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cloneConfig(cfg)
}

// Evaluate implements the five-layer precedence described in
// the design. extensionID may be empty, meaning "no extension
// context"; in that case only the global layers (2, 4, 5) apply.
func (e *Engine) Evaluate(rawCap string, extensionID string) Result {
	cap, ok := capability.Parse(rawCap)
	if !ok {
		if strings.TrimSpace(rawCap) == "" {
			return Result{Decision: Deny, Reason: ReasonEmptyCapability}
		}
		// An unknown-but-non-empty capability string still needs a
		// decision; dispatch (internal/hostcall) maps this to
		// "unsupported" before it ever reaches a user, but the engine
		// itself degrades to deny so a typo never turns into a bypass.
		return Result{Decision: Deny, Reason: ReasonEmptyCapability}
	}

	extensionID = strings.TrimSpace(extensionID)
	override, hasOverride := e.lookupOverride(extensionID)

	// Layer 1: extension deny.
	if hasOverride && override.Deny.Contains(cap) {
		return Result{Decision: Deny, Reason: ReasonExtensionDeny}
	}

	// Layer 2: global deny.
	if e.cfg.DenyCaps.Contains(cap) {
		return Result{Decision: Deny, Reason: ReasonDenyCaps}
	}

	// Layer 3: extension allow.
	if hasOverride && override.Allow.Contains(cap) {
		return Result{Decision: Allow, Reason: ReasonExtensionAllow}
	}

	// Layer 4: default caps.
	if e.cfg.DefaultCaps.Contains(cap) {
		return Result{Decision: Allow, Reason: ReasonDefaultCaps}
	}

	// Layer 5: mode fallback. Extension override mode wins over global.
	mode := e.cfg.Mode
	if hasOverride && override.Mode != nil {
		mode = *override.Mode
	}
	switch mode {
	case ModeStrict:
		return Result{Decision: Deny, Reason: ReasonNotInDefaultCaps}
	case ModePrompt:
		return Result{Decision: Prompt, Reason: ReasonPromptRequired}
	case ModePermissive:
		return Result{Decision: Allow, Reason: ReasonPermissive}
	default:
		return Result{Decision: Deny, Reason: ReasonNotInDefaultCaps}
	}
}

func (e *Engine) lookupOverride(extensionID string) (Override, bool) {
	if extensionID == "" || e.cfg.PerExtension == nil {
		return Override{}, false
	}
	lower := strings.ToLower(extensionID)
	for id, o := range e.cfg.PerExtension {
		if strings.ToLower(strings.TrimSpace(id)) == lower {
			return o, true
		}
	}
	return Override{}, false
}

func cloneConfig(cfg Config) Config {
	out := Config{
		Mode:        cfg.Mode,
		DefaultCaps: cfg.DefaultCaps.Clone(),
		DenyCaps:    cfg.DenyCaps.Clone(),
	}
	if cfg.PerExtension != nil {
		out.PerExtension = make(map[string]Override, len(cfg.PerExtension))
		for k, v := range cfg.PerExtension {
			out.PerExtension[k] = Override{
				Mode:  v.Mode,
				Allow: v.Allow.Clone(),
				Deny:  v.Deny.Clone(),
			}
		}
	}
	return out
}

// ModePtr is a small helper for constructing Override.Mode literals.
func ModePtr(m Mode) *Mode { return &m }
