// Package app wires the parkpin services together: config, logging, the
// durable store, the delivery sink chain, the notification queue worker and
// the foreground timer manager.
package app

import (
	"context"
	"fmt"
	"strings"

	"parkpin/internal/config"
	"parkpin/internal/eventbus"
	"parkpin/internal/location"
	"parkpin/internal/notify/command"
	"parkpin/internal/notify/queue"
	"parkpin/internal/notify/sink"
	"parkpin/internal/observability/pprof"
	rtsup "parkpin/internal/runtime/supervisor"
	"parkpin/internal/storage"
	"parkpin/internal/timer"
	logx "parkpin/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  *storage.SelfHealing
	chn    *command.Channel
	queue  *queue.Service
	timers *timer.Manager
	cb     *sink.Callback
	src    location.Source
	prof   *pprof.Service

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	storeLog := log.With(logx.String("comp", "storage"))
	store := storage.NewSelfHealing(func(ctx context.Context) (storage.Store, error) {
		return storage.Open(ctx, storeCfg, storeLog)
	}, storeLog)

	cb := sink.NewCallback()
	snk, err := buildSink(cfg.Sinks, cb, log)
	if err != nil {
		return nil, err
	}

	chn := command.NewChannel(cfg.Queue.CommandBuffer)

	qcfg, err := mapQueueConfig(cfg)
	if err != nil {
		return nil, err
	}
	q := queue.New(qcfg, store, snk, chn, bus, log.With(logx.String("comp", "queue")))

	tcfg, err := mapTimersConfig(cfg)
	if err != nil {
		return nil, err
	}
	var src location.Source
	if strings.TrimSpace(cfg.Locations.Path) != "" {
		src = location.NewFileSource(cfg.Locations.Path)
	}
	tm := timer.New(tcfg, chn, src, bus, log.With(logx.String("comp", "timers")))

	prof := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		chn:     chn,
		queue:   q,
		timers:  tm,
		cb:      cb,
		src:     src,
		prof:    prof,
	}, nil
}

// Timers exposes the timer manager so a UI layer can register reminder and
// expiration callbacks and drive schedule/cancel/extend.
func (a *App) Timers() *timer.Manager { return a.timers }

// Commands exposes the queue command channel (schedule/cancel/query/...).
func (a *App) Commands() *command.Channel { return a.chn }

// Bus exposes the event bus a UI subscribes to for toasts/banners.
func (a *App) Bus() eventbus.Bus { return a.bus }

// CallbackSink exposes the foreground fallback sink so a UI can install its
// toast handler.
func (a *App) CallbackSink() *sink.Callback { return a.cb }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.queue.Start(a.sup.Context())
	a.timers.Start(a.sup.Context())
	a.prof.Start(a.sup.Context())

	// Catch-up reconciliation: deadlines saved while we were not running get
	// timers (past ones fire immediately).
	if a.src != nil {
		locs, err := a.src.GetLocations(ctx)
		if err != nil {
			a.log.Warn("initial location sync failed", logx.Err(err))
		} else {
			a.timers.Sync(locs)
		}
	}

	// Hot-reload: follow the config file and re-apply what can change at
	// runtime (currently the logging config).
	a.sup.Go("config.watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				if cfg == nil {
					continue
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.prof.Reconfigure(ctx, mapPprofConfig(cfg))
				a.log.Info("config reloaded", logx.String("path", a.cfgPath))
			}
		}
	})

	a.log.Info("parkpin started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.prof.Stop(ctx)
	a.timers.Stop(ctx)
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("queue stop timed out", logx.Err(err))
	}
	if a.sup != nil {
		_ = a.sup.StopAndWait(ctx)
	}
	_ = a.store.Close()
	_ = a.logs.Close()
	return nil
}
