package hostcall

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pi-cli/pi/internal/capability"
	"github.com/pi-cli/pi/internal/policy"
)

type fakeBackend struct {
	value json.RawMessage
	err   error
}

func (f *fakeBackend) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	return f.value, f.err
}

func newResolver(cfg policy.Config) *policy.Resolver {
	return &policy.Resolver{Engine: policy.NewEngine(cfg)}
}

func TestSafeProfileDeniesExec(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfileSafe)), map[string]Backend{
		"exec": &fakeBackend{value: json.RawMessage(`{}`)},
	}, nil)

	out := d.Dispatch(context.Background(), Request{
		CallID: "c1", Capability: "exec", Method: "exec", Params: json.RawMessage(`{}`),
	})
	if !out.IsError || out.Error.Code != ErrDenied || !strings.Contains(out.Error.Message, "exec") {
		t.Fatalf("got %+v", out)
	}
}

func TestToolNameMapsToCapabilityBashDenied(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfileStandard)), map[string]Backend{
		"tool": &fakeBackend{value: json.RawMessage(`{}`)},
	}, nil)

	out := d.Dispatch(context.Background(), Request{
		CallID: "c1", Capability: "tool", Method: "tool",
		Params: json.RawMessage(`{"name":"bash","input":{"command":"ls"}}`),
	})
	if !out.IsError || out.Error.Code != ErrDenied {
		t.Fatalf("got %+v, want denied", out)
	}
}

func TestExtensionOverrideDenyBeatsGlobalAllowForHTTP(t *testing.T) {
	cfg := policy.ResolveProfile(policy.ProfileStandard)
	cfg.PerExtension = map[string]policy.Override{
		"ext-a": {Deny: capability.NewSet(capability.HTTP)},
	}

	d := NewDispatcher(newResolver(cfg), map[string]Backend{
		"http": &fakeBackend{value: json.RawMessage(`{"status":200}`)},
	}, nil)

	outA := d.Dispatch(context.Background(), Request{
		CallID: "c1", Capability: "http", Method: "http", Params: json.RawMessage(`{}`), ExtensionID: "ext-a",
	})
	if !outA.IsError || outA.Error.Code != ErrDenied {
		t.Fatalf("ext-a should be denied, got %+v", outA)
	}

	outB := d.Dispatch(context.Background(), Request{
		CallID: "c2", Capability: "http", Method: "http", Params: json.RawMessage(`{}`), ExtensionID: "ext-b",
	})
	if outB.IsError {
		t.Fatalf("ext-b should be allowed, got %+v", outB)
	}
}

func TestPromptCacheHitAllowsExec(t *testing.T) {
	cfg := policy.Config{Mode: policy.ModePrompt}
	eng := policy.NewEngine(cfg)
	cache := &fakeCache{values: map[string]bool{"ext-a/exec": true}}
	resolver := &policy.Resolver{Engine: eng, Cache: cache}

	d := NewDispatcher(resolver, map[string]Backend{
		"exec": &fakeBackend{value: json.RawMessage(`{"ok":true}`)},
	}, nil)

	out := d.Dispatch(context.Background(), Request{
		CallID: "c3", Capability: "exec", Method: "exec", Params: json.RawMessage(`{}`), ExtensionID: "ext-a",
	})
	if out.IsError {
		t.Fatalf("expected allow from cache hit, got %+v", out)
	}
}

func TestInvalidRequestEmptyCallID(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfileStandard)), nil, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "  ", Method: "log", Params: json.RawMessage(`{}`)})
	if !out.IsError || out.Error.Code != ErrInvalidRequest {
		t.Fatalf("got %+v", out)
	}
}

func TestNonObjectParamsInvalid(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfilePermissive)), map[string]Backend{
		"log": &fakeBackend{},
	}, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "c1", Method: "log", Params: json.RawMessage(`"nope"`)})
	if !out.IsError || out.Error.Code != ErrInvalidRequest {
		t.Fatalf("got %+v", out)
	}
}

func TestUnknownMethodUnsupported(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfilePermissive)), map[string]Backend{}, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "c1", Method: "teleport", Params: json.RawMessage(`{}`)})
	if !out.IsError || out.Error.Code != ErrUnsupported {
		t.Fatalf("got %+v", out)
	}
}

func TestOneOutcomePerCallID(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfilePermissive)), map[string]Backend{
		"log": &fakeBackend{value: json.RawMessage(`null`)},
	}, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "xyz", Method: "log", Params: json.RawMessage(`{}`)})
	if out.CallID != "xyz" {
		t.Fatalf("outcome call_id = %q, want xyz", out.CallID)
	}
}

func TestBackendNotFoundMapsToOutcomeCode(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfilePermissive)), map[string]Backend{
		"session": &fakeBackend{err: NotFound("no such session")},
	}, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "c1", Method: "session", Params: json.RawMessage(`{}`)})
	if !out.IsError || out.Error.Code != ErrNotFound {
		t.Fatalf("got %+v", out)
	}
}

func TestOpaqueBackendErrorMapsToInternal(t *testing.T) {
	d := NewDispatcher(newResolver(policy.ResolveProfile(policy.ProfilePermissive)), map[string]Backend{
		"session": &fakeBackend{err: errPlain("boom")},
	}, nil)
	out := d.Dispatch(context.Background(), Request{CallID: "c1", Method: "session", Params: json.RawMessage(`{}`)})
	if !out.IsError || out.Error.Code != ErrInternal {
		t.Fatalf("got %+v", out)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

type fakeCache struct {
	values map[string]bool
}

func (f *fakeCache) Lookup(ext string, cap capability.Capability) (bool, bool) {
	v, ok := f.values[ext+"/"+string(cap)]
	return v, ok
}

func (f *fakeCache) Record(ext string, cap capability.Capability, allow bool) {
	if f.values == nil {
		f.values = map[string]bool{}
	}
	f.values[ext+"/"+string(cap)] = allow
}
