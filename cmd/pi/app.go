package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pi-cli/pi/internal/builtins"
	"github.com/pi-cli/pi/internal/config"
	"github.com/pi-cli/pi/internal/eventloop"
	"github.com/pi-cli/pi/internal/events"
	"github.com/pi-cli/pi/internal/hostcall"
	"github.com/pi-cli/pi/internal/loadpipeline"
	"github.com/pi-cli/pi/internal/obslog"
	"github.com/pi-cli/pi/internal/obsmetrics"
	"github.com/pi-cli/pi/internal/policy"
	"github.com/pi-cli/pi/internal/promptcache"
	"github.com/pi-cli/pi/internal/registry"
)

// app bundles every long-lived collaborator wired for one `pi` process
// invocation: the five-layer policy resolver, the host-call dispatcher,
// the event dispatcher, the extension registry, and the load pipeline
// that drives them. Centralized here, rather than built ad hoc per
// subcommand, since `pi`'s subcommands share one running extension set
// rather than each owning an independent one-shot invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	logBuf   *obslog.Buffer
	metrics  *obsmetrics.Metrics
	registry *registry.Registry
	resolver *policy.Resolver
	dispatch *hostcall.Dispatcher
	events   *events.Dispatcher
	pipeline *loadpipeline.Pipeline
}

// newApp wires every collaborator from cfg. The returned app has no
// extensions loaded yet; call pipeline.LoadAll or pipeline.Install to
// populate it.
func newApp(cfg *config.Config) (*app, error) {
	logger, buf := obslog.New(cfg.LogSlogLevel())
	metrics := obsmetrics.Global()
	reg := registry.New(logger)

	policyCfg := policy.BuildConfig(cfg.Policy)
	engine := policy.NewEngine(policyCfg)
	cache := promptcache.New(cfg.PromptCachePath)
	resolver := &policy.Resolver{
		Engine:  engine,
		Cache:   cache,
		UI:      builtins.HeadlessUISender{},
		Metrics: metrics,
	}

	if err := os.MkdirAll(cfg.ExtensionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("pi: create extensions dir: %w", err)
	}
	sessionDir := filepath.Join(filepath.Dir(cfg.PromptCachePath), "sessions")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("pi: create session dir: %w", err)
	}

	backends := map[string]hostcall.Backend{
		"http":    builtins.NewHTTPTransport(),
		"session": builtins.NewSessionStore(sessionDir),
		"tool":    &builtins.ToolRunner{Root: cfg.ExtensionsDir},
		"exec":    &builtins.ExecRunner{Root: cfg.ExtensionsDir},
		"ui":      builtins.NewUIBackend(resolver, os.Stdout),
		"events":  builtins.NewEventsBackend(reg),
		"log":     builtins.NewLogBackend(logger),
	}

	dispatcher := hostcall.NewDispatcher(resolver, backends, logger)
	dispatcher.RatePerSecond = cfg.RatePerSecond
	dispatcher.RateBurst = cfg.RateBurst
	dispatcher.Metrics = metrics

	pipeline := loadpipeline.New(reg, dispatcher, eventloop.NewWallClock(), logger)
	eventDispatcher := pipeline.NewEventDispatcher()
	eventDispatcher.Metrics = metrics

	return &app{
		cfg:      cfg,
		logger:   logger,
		logBuf:   buf,
		metrics:  metrics,
		registry: reg,
		resolver: resolver,
		dispatch: dispatcher,
		events:   eventDispatcher,
		pipeline: pipeline,
	}, nil
}

// refreshExtensionCount reports the currently loaded extension count to
// the gauge the metrics endpoint exposes.
func (a *app) refreshExtensionCount() {
	a.metrics.SetExtensionsLoaded(len(a.pipeline.List()))
}
