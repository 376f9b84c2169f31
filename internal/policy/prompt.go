package policy

import (
	"context"
	"fmt"

	"github.com/pi-cli/pi/internal/capability"
	"github.com/pi-cli/pi/internal/obsmetrics"
)

// PromptRequest is the shape handed to an interactive UI sender, grounded
// on original_source/tests/capability_prompt.rs's cap_prompt_request
// helper: {title, message, extension_id, capability}.
type PromptRequest struct {
	Title         string `json:"title"`
	Message       string `json:"message"`
	ExtensionID   string `json:"extension_id"`
	Capability    string `json:"capability"`
}

// Choice is the user's answer to a PromptRequest.
type Choice string

const (
	ChoiceOnceAllow   Choice = "once_allow"
	ChoiceAlwaysAllow Choice = "always_allow"
	ChoiceOnceDeny    Choice = "once_deny"
	ChoiceAlwaysDeny  Choice = "always_deny"
)

// Allowed reports whether the choice resolves to an allow outcome.
func (c Choice) Allowed() bool {
	return c == ChoiceOnceAllow || c == ChoiceAlwaysAllow
}

// Persistent reports whether the choice should be written to the
// PermissionRecord store.
func (c Choice) Persistent() bool {
	return c == ChoiceAlwaysAllow || c == ChoiceAlwaysDeny
}

// UISender is the interface consumed by the PolicyEngine to resolve a
// Prompt decision interactively. The runtime does not couple to any
// specific front-end; a terminal, a headless default, or a websocket
// bridge may all implement this.
type UISender interface {
	RequestUI(ctx context.Context, req PromptRequest) (Choice, error)
}

// CacheStore is the subset of PromptCacheStore consumed by the resolver,
// kept as an interface so policy does not import the storage package
// directly (dependency order: PromptCacheStore -> PolicyEngine).
type CacheStore interface {
	Lookup(extensionID string, cap capability.Capability) (allow bool, found bool)
	Record(extensionID string, cap capability.Capability, allow bool)
}

// Resolver ties an Engine, a prompt CacheStore, and an optional UISender
// together to implement the full prompt-resolution contract of: a
// cache hit returns directly; a cache miss with a UI sender prompts the
// user and persists "always-*" choices; a cache miss with no UI sender
// falls back to deny.
type Resolver struct {
	Engine *Engine
	Cache  CacheStore
	UI     UISender

	// Metrics records policy decisions by reason. Nil disables recording.
	Metrics *obsmetrics.Metrics
}

// ResolveResult is the final allow/deny verdict plus the originating
// policy reason, after any prompt resolution.
type ResolveResult struct {
	Allowed bool
	Reason  string
}

// Authorize evaluates the policy for (rawCap, extensionID) and, if the
// layered evaluation yields Prompt, resolves it via the cache and/or UI
// sender.
func (r *Resolver) Authorize(ctx context.Context, rawCap string, extensionID string) (result ResolveResult) {
	defer func() {
		decision := "deny"
		if result.Allowed {
			decision = "allow"
		}
		r.Metrics.RecordPolicyDecision(decision, result.Reason)
	}()

	decision := r.Engine.Evaluate(rawCap, extensionID)
	switch decision.Decision {
	case Allow:
		return ResolveResult{Allowed: true, Reason: decision.Reason}
	case Deny:
		return ResolveResult{Allowed: false, Reason: decision.Reason}
	case Prompt:
		return r.resolvePrompt(ctx, rawCap, extensionID)
	default:
		return ResolveResult{Allowed: false, Reason: decision.Reason}
	}
}

func (r *Resolver) resolvePrompt(ctx context.Context, rawCap, extensionID string) ResolveResult {
	cap, ok := capability.Parse(rawCap)
	if !ok {
		return ResolveResult{Allowed: false, Reason: ReasonEmptyCapability}
	}

	if r.Cache != nil {
		if allow, found := r.Cache.Lookup(extensionID, cap); found {
			return ResolveResult{Allowed: allow, Reason: ReasonPromptRequired}
		}
	}

	if r.UI == nil {
		return ResolveResult{Allowed: false, Reason: ReasonPromptRequired}
	}

	req := PromptRequest{
		Title:       "Extension permission request",
		Message:     fmt.Sprintf("Extension %q requests capability %q", extensionID, cap),
		ExtensionID: extensionID,
		Capability:  string(cap),
	}
	choice, err := r.UI.RequestUI(ctx, req)
	if err != nil {
		return ResolveResult{Allowed: false, Reason: ReasonPromptRequired}
	}

	if choice.Persistent() && r.Cache != nil {
		r.Cache.Record(extensionID, cap, choice.Allowed())
	}
	return ResolveResult{Allowed: choice.Allowed(), Reason: ReasonPromptRequired}
}
