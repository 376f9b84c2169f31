package hostcall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"

	"github.com/pi-cli/pi/internal/capability"
	"github.com/pi-cli/pi/internal/obsmetrics"
	"github.com/pi-cli/pi/internal/policy"
)

// Backend executes one routed method ("tool", "fs", "exec", "env",
// "http", "session", "ui", "events", "log") against the real subsystem.
// Concrete backends live in internal/builtins.
type Backend interface {
	Execute(ctx context.Context, req Request) (json.RawMessage, error)
}

// SchemaLookup resolves a registered tool's declared JSON-schema params,
// grounded on the unused xeipuuv/gojsonschema dependency carried in
// go.mod; this is the first real caller it gets in this codebase.
type SchemaLookup interface {
	ToolSchema(name string) (schema string, ok bool)
}

// Dispatcher is the HostCallDispatcher of the design.
type Dispatcher struct {
	Resolver *policy.Resolver
	Backends map[string]Backend
	Schemas  SchemaLookup
	Logger   *slog.Logger

	// Metrics records host-call counts by capability and outcome. Nil
	// disables recording.
	Metrics *obsmetrics.Metrics

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	// RatePerSecond bounds host calls per (extension, capability) pair.
	// Zero disables rate limiting.
	RatePerSecond float64
	RateBurst     int
}

// NewDispatcher constructs a Dispatcher. logger may be nil, in which case
// slog.Default() is used.
func NewDispatcher(resolver *policy.Resolver, backends map[string]Backend, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Resolver: resolver,
		Backends: backends,
		Logger:   logger,
		limiters: map[string]*rate.Limiter{},
	}
}

// Dispatch runs the full pipeline from: validate, map required
// capability, authorize, execute.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (outcome Outcome) {
	evalCap := req.Capability
	defer func() {
		label := evalCap
		if label == "" {
			label = req.Method
		}
		if outcome.IsError {
			d.Metrics.RecordHostCall(label, string(outcome.Error.Code))
		} else {
			d.Metrics.RecordHostCall(label, "ok")
		}
	}()

	// 1. Validate.
	if strings.TrimSpace(req.CallID) == "" {
		return Failure(req.CallID, ErrInvalidRequest, "call_id must not be empty")
	}
	if strings.TrimSpace(req.Capability) == "" && strings.TrimSpace(req.Method) == "" {
		return Failure(req.CallID, ErrInvalidRequest, "capability and method must not both be empty")
	}
	if strings.TrimSpace(req.Method) == "" {
		return Failure(req.CallID, ErrInvalidRequest, "method must not be empty")
	}
	if len(req.Params) > 0 && !isJSONObject(req.Params) {
		return Failure(req.CallID, ErrInvalidRequest, "params must be a JSON object")
	}

	// 2. Map required capability.
	required, mapped := RequiredCapability(req.Method, req.Params)
	if mapped {
		evalCap = string(required)
	}
	if _, known := capability.Parse(evalCap); !known {
		return Failure(req.CallID, ErrUnsupported, fmt.Sprintf("unrecognized method %q or capability %q", req.Method, evalCap))
	}

	// 3. Authorize.
	if !d.allow(ctx, req, evalCap) {
		return Failure(req.CallID, ErrDenied, fmt.Sprintf("capability %q denied", evalCap))
	}

	if err := d.checkRate(req.ExtensionID, evalCap); err != nil {
		code, msg := classify(err)
		return Failure(req.CallID, code, msg)
	}

	if err := d.validateToolSchema(req); err != nil {
		return Failure(req.CallID, ErrInvalidRequest, err.Error())
	}

	// 4. Execute.
	backend, ok := d.Backends[strings.ToLower(strings.TrimSpace(req.Method))]
	if !ok {
		return Failure(req.CallID, ErrUnsupported, fmt.Sprintf("unrecognized method %q", req.Method))
	}

	value, err := backend.Execute(ctx, req)
	if err != nil {
		code, msg := classify(err)
		if code == ErrInternal {
			d.Logger.Error("hostcall internal failure",
				"call_id", req.CallID, "method", req.Method, "capability", evalCap, "error", msg)
		}
		return Failure(req.CallID, code, msg)
	}
	return Success(req.CallID, value)
}

func (d *Dispatcher) allow(ctx context.Context, req Request, cap string) bool {
	if d.Resolver == nil {
		return false
	}
	res := d.Resolver.Authorize(ctx, cap, req.ExtensionID)
	return res.Allowed
}

func (d *Dispatcher) checkRate(extensionID, cap string) error {
	if d.RatePerSecond <= 0 {
		return nil
	}
	key := extensionID + "/" + cap
	d.limiterMu.Lock()
	lim, ok := d.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.RatePerSecond), d.RateBurst)
		d.limiters[key] = lim
	}
	d.limiterMu.Unlock()

	if !lim.Allow() {
		return Unsupported("rate limit exceeded for " + key)
	}
	return nil
}

func (d *Dispatcher) validateToolSchema(req Request) error {
	if d.Schemas == nil || strings.ToLower(strings.TrimSpace(req.Method)) != "tool" {
		return nil
	}
	var p toolParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil // malformed params are handled by the backend itself
	}
	schema, ok := d.Schemas.ToolSchema(p.Name)
	if !ok || strings.TrimSpace(schema) == "" {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(p.Input)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("tool %q: invalid schema or input: %w", p.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("tool %q: input does not match declared schema: %s", p.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}
