package main

import (
	"fmt"
	"os"

	"maestro/internal/bus"
	"maestro/internal/cache"
	"maestro/internal/config"
	"maestro/internal/contextmgr"
	"maestro/internal/orchestrator"
	"maestro/internal/pressure"
	"maestro/internal/registry"
	"maestro/internal/state"
	"maestro/internal/subproc"
)

// app is the fully wired delegation stack. Every component is an
// explicit instance; construction happens once per command invocation.
type app struct {
	cfg         *config.Config
	registry    *registry.Registry
	watcher     *registry.Watcher
	context     *contextmgr.Manager
	cache       *cache.Cache
	bus         *bus.Bus
	subproc     *subproc.Manager
	coordinator *pressure.Coordinator
	store       *state.DB
	logger      *orchestrator.DebugLogger
	orch        *orchestrator.Orchestrator
}

// buildApp wires the stack from loaded configuration. When withStore is
// true, delegation outcomes are persisted to the project state database.
func buildApp(withStore bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	reg := registry.New(registry.ProjectAgentsDir(cwd), registry.UserAgentsDir())
	if err := reg.Refresh(); err != nil {
		// Malformed descriptor files are skipped, not fatal.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	watcher, err := reg.Watch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: agent auto-refresh disabled: %v\n", err)
	}

	promptCache := cache.New(cache.Options{
		MaxEntries:    cfg.Cache.MaxEntries,
		MaxBytes:      int64(cfg.Cache.MaxMemoryMB) << 20,
		DefaultTTL:    cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})

	procs := subproc.NewManager(subproc.Options{
		ProcessLimitBytes:   uint64(cfg.Subprocess.ProcessLimitMB) << 20,
		AggregateLimitBytes: uint64(cfg.Subprocess.AggregateLimitMB) << 20,
		GracePeriod:         cfg.Subprocess.GracePeriod,
	})
	procs.Run(cfg.Subprocess.SampleInterval)

	sampler := &pressure.SystemSampler{
		CacheBytes:      func() uint64 { return uint64(promptCache.SizeBytes()) },
		SubprocessBytes: procs.AggregateBytes,
	}
	coord := pressure.NewCoordinator(pressure.Options{
		WarningPercent:  cfg.Pressure.WarningPercent,
		CriticalPercent: cfg.Pressure.CriticalPercent,
		Cooldown:        cfg.Pressure.Cooldown,
		Sampler:         sampler,
	})
	coord.RegisterCleanup("prompt_cache", promptCache.HandlePressure)
	coord.RegisterCleanup("subprocesses", procs.HandlePressure)
	coord.Run(cfg.Pressure.TickInterval)

	logger, err := orchestrator.NewDebugLogger(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: debug log disabled: %v\n", err)
		logger = orchestrator.NopLogger()
	}

	var store *state.DB
	if withStore {
		store, err = state.OpenProject(cwd)
		if err == nil {
			err = store.Migrate()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: state persistence disabled: %v\n", err)
			store = nil
		}
	}

	a := &app{
		cfg:         cfg,
		registry:    reg,
		watcher:     watcher,
		context:     contextmgr.NewManager(),
		cache:       promptCache,
		bus:         bus.New(),
		subproc:     procs,
		coordinator: coord,
		store:       store,
		logger:      logger,
	}
	a.orch = orchestrator.New(orchestrator.Options{
		Registry:        a.registry,
		Context:         a.context,
		Bus:             a.bus,
		Subproc:         a.subproc,
		Cache:           a.cache,
		Store:           a.store,
		Logger:          a.logger,
		WorkDir:         cwd,
		DefaultTimeout:  cfg.Orchestrator.DefaultTimeout,
		FallbackEnabled: cfg.Orchestrator.FallbackEnabled,
		ForceSubprocess: cfg.Execution.ForceSubprocess,
	})
	return a, nil
}

// close tears the stack down in dependency order.
func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.coordinator.Stop()
	a.subproc.Stop()
	a.bus.Shutdown()
	a.cache.Close()
	a.logger.Close()
	if a.store != nil {
		a.store.Close()
	}
}
