// Package app wires configuration, storage, the refresh loop, the HTTP API
// and the optional pprof server into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronlens/internal/colors"
	"cronlens/internal/config"
	"cronlens/internal/engine"
	"cronlens/internal/eventbus"
	"cronlens/internal/runtime/supervisor"
	"cronlens/internal/server"
	"cronlens/internal/services/pprof"
	"cronlens/internal/services/refresh"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	colors  *colors.Allocator
	refresh *refresh.Service
	server  *server.Server
	pprof   *pprof.Service

	httpErr chan error
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage
	stSet, err := config.ResolveStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      stSet.Driver,
		Path:        stSet.Path,
		BusyTimeout: stSet.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", stSet.Driver), logx.String("path", stSet.Path))

	// Color allocator primed with whatever the store already holds, so new
	// schedules don't reuse colors of persisted ones.
	alloc := colors.NewAllocator()
	existing, err := store.ListSchedules(context.Background())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, sc := range existing {
		alloc.Reserve(sc.Color)
	}

	if stSet.SeedDemo && len(existing) == 0 {
		if err := seedDemoSchedules(context.Background(), store, alloc, log); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	calSet, err := cfg.Calendar.Resolve()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rf := refresh.New(calSet, store, bus, log.With(logx.String("comp", "refresh")))

	httpSet, err := cfg.HTTP.Resolve()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	srv := server.New(httpSet, store, rf, alloc, bus, log.With(logx.String("comp", "http")))

	ppCfg, err := mapPprofConfig(cfg.Pprof)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ppSvc := pprof.New(ppCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		colors:  alloc,
		refresh: rf,
		server:  srv,
		pprof:   ppSvc,
		httpErr: make(chan error, 1),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		cal, err := cfg.Calendar.Resolve()
		if err != nil {
			return err
		}
		if _, err := engine.LoadTimezone(cal.RunnerTimezone); err != nil {
			return fmt.Errorf("calendar.runner_timezone: %w", err)
		}
		if _, err := engine.LoadTimezone(cal.ProjectionTimezone); err != nil {
			return fmt.Errorf("calendar.projection_timezone: %w", err)
		}
		if _, err := cfg.HTTP.Resolve(); err != nil {
			return err
		}
		if _, err := config.ResolveStorage(cfg.Storage); err != nil {
			return err
		}
		// pprof validation (safe even when disabled)
		if _, err := mapPprofConfig(cfg.Pprof); err != nil {
			return err
		}
		return nil
	})

	a.refresh.Start(a.sup.Context())
	a.server.Start(a.httpErr)
	a.sup.Go("http.serve", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case err := <-a.httpErr:
			return err
		}
	})

	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Debug-level event trace; components subscribe themselves for real work.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					lastApplied = newCfg
					continue
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Debug("config change summary", fields...)
				lastApplied = newCfg

				a.applyReload(c, newCfg, sections)

				a.log.Info("config reloaded", fields...)
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: sections})
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.log.Info("app started")
	return nil
}

// applyReload pushes an already-validated config into the live services.
// Sections that cannot change without a restart only get a warning.
func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	a.logs.Apply(mapLogConfig(cfg.Logging))

	// Validator ran before publish, so Resolve cannot fail here.
	if calSet, err := cfg.Calendar.Resolve(); err == nil {
		a.refresh.Apply(calSet)
	}

	if ppc, err := mapPprofConfig(cfg.Pprof); err == nil {
		a.pprof.Reconfigure(ctx, ppc)
	}

	for _, s := range sections {
		switch s {
		case "http":
			a.log.Warn("http config changed; restart required for changes to take effect")
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 5*time.Second, func(c context.Context) error { return a.server.Stop(c) })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("refresh", 2*time.Second, func(c context.Context) error { a.refresh.Stop(c); return nil })
	step("storage", 2*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLogConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func mapPprofConfig(c config.PprofConfig) (pprof.Config, error) {
	readTO, err := config.ParseDurationOrDefault("pprof.read_timeout", c.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	// WriteTimeout stays 0 unless set: /profile can run 30s+.
	writeTO, err := config.ParseDurationField("pprof.write_timeout", c.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("pprof.idle_timeout", c.IdleTimeout, time.Minute)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:              c.Enabled,
		Addr:                 c.Addr,
		Prefix:               c.Prefix,
		Token:                c.Token,
		AllowInsecure:        c.AllowInsecure,
		ReadTimeout:          readTO,
		WriteTimeout:         writeTO,
		IdleTimeout:          idleTO,
		MutexProfileFraction: c.MutexProfileFraction,
		BlockProfileRate:     c.BlockProfileRate,
		MemProfileRate:       c.MemProfileRate,
	}, nil
}
