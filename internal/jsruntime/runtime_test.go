package jsruntime

import (
	"context"
	"testing"
	"time"

	"github.com/pi-cli/pi/internal/eventloop"
	"github.com/pi-cli/pi/internal/hostcall"
)

func TestEnvAllowedListBeatsNothingUnlisted(t *testing.T) {
	if !EnvAllowed("PATH") {
		t.Fatal("PATH must be allowed")
	}
	if !EnvAllowed("PI_EXTRA") {
		t.Fatal("PI_ prefixed keys must be allowed")
	}
	if EnvAllowed("RANDOM_UNLISTED_KEY") {
		t.Fatal("unlisted keys must be denied by default")
	}
}

func TestEnvDenyPatternsHideSecrets(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "DB_PASSWORD", "AWS_SECRET_ACCESS_KEY", "GITHUB_TOKEN"} {
		if EnvAllowed(key) {
			t.Fatalf("%s must be denied", key)
		}
	}
}

func TestEnvDenyBeatsPIPrefix(t *testing.T) {
	for _, key := range []string{"PI_API_KEY", "PI_TOKEN", "PI_SECRET_X"} {
		if EnvAllowed(key) {
			t.Fatalf("%s must be denied despite the PI_ prefix", key)
		}
	}
}

func TestFilterEnvOnlyKeepsAllowed(t *testing.T) {
	got := FilterEnv([]string{"PATH=/usr/bin", "SECRET_TOKEN=xyz", "PI_MODE=dev"})
	if got["PATH"] != "/usr/bin" || got["PI_MODE"] != "dev" {
		t.Fatalf("expected PATH and PI_MODE kept, got %v", got)
	}
	if _, ok := got["SECRET_TOKEN"]; ok {
		t.Fatalf("SECRET_TOKEN must be filtered out, got %v", got)
	}
}

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(ctx context.Context, req hostcall.Request) hostcall.Outcome {
	return hostcall.Success(req.CallID, req.Params)
}

func newTestRuntime(t *testing.T, d Dispatcher) (*Runtime, *eventloop.Loop) {
	t.Helper()
	clock := eventloop.NewManual()
	loop := eventloop.New(clock)
	rt := New("ext-test", loop, d, nil)
	if err := rt.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return rt, loop
}

func TestPiObjectIsFrozen(t *testing.T) {
	rt, _ := newTestRuntime(t, echoDispatcher{})
	v, err := rt.vm.RunString(`
		try { pi.tool = "overwritten"; } catch (e) {}
		typeof pi.tool;
	`)
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if v.String() != "function" {
		t.Fatalf("pi.tool was overwritten, typeof = %q", v.String())
	}
}

func TestPiToolRoundTripsThroughEventLoop(t *testing.T) {
	rt, loop := newTestRuntime(t, echoDispatcher{})

	_, err := rt.vm.RunString(`
		var lastResult = null;
		pi.tool("search", {query: "x"}).then(function(v) { lastResult = v; });
	`)
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}

	// The host call dispatch happens on its own goroutine; wait for the
	// completion macrotask to land in the loop before ticking.
	deadline := time.Now().Add(2 * time.Second)
	for loop.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	loop.Tick(rt.OnMacrotask, rt.DrainMicrotasks)

	result, err := rt.vm.RunString("lastResult && lastResult.input && lastResult.input.query")
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if result == nil || result.Export() != "x" {
		t.Fatalf("expected resolved promise to be the parsed {name: \"search\", input: {query: \"x\"}} object, got %v", result)
	}
}

func TestSetTimeoutFiresViaEventLoop(t *testing.T) {
	clock := eventloop.NewManual()
	loop := eventloop.New(clock)
	rt := New("ext-test", loop, echoDispatcher{}, nil)
	if err := rt.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := rt.vm.RunString(`
		var fired = false;
		setTimeout(function() { fired = true; }, 10);
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}

	clock.Advance(10)
	loop.Tick(rt.OnMacrotask, rt.DrainMicrotasks)

	v, err := rt.vm.RunString("fired")
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if !v.ToBoolean() {
		t.Fatal("expected timer callback to have fired")
	}
}

func TestClearTimeoutPreventsFiring(t *testing.T) {
	clock := eventloop.NewManual()
	loop := eventloop.New(clock)
	rt := New("ext-test", loop, echoDispatcher{}, nil)
	if err := rt.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := rt.vm.RunString(`
		var fired = false;
		var id = setTimeout(function() { fired = true; }, 10);
		clearTimeout(id);
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}

	clock.Advance(10)
	loop.Tick(rt.OnMacrotask, rt.DrainMicrotasks)

	v, err := rt.vm.RunString("fired")
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if v.ToBoolean() {
		t.Fatal("expected cleared timer not to fire")
	}
}

func TestHandleOutcomeForUnknownCallIDIsDropped(t *testing.T) {
	rt, _ := newTestRuntime(t, echoDispatcher{})
	// Must not panic even though no promise is pending for this call_id.
	rt.HandleOutcome(hostcall.Success("does-not-exist", "value"))
}
