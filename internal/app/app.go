// Package app assembles the bot: config, logging, storage, the telegram
// adapter, the delivery engine, the tournament broadcaster and the command
// router, with one lifecycle for all of them.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/DeKoSun/Remindly-Pro-Bot/internal/bot"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/config"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/dispatch"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/engine"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/recurrence"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/runtime/supervisor"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/storage"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/tourney"
	kit "github.com/DeKoSun/Remindly-Pro-Bot/internal/transport"
	"github.com/DeKoSun/Remindly-Pro-Bot/internal/transport/telegram"
	logx "github.com/DeKoSun/Remindly-Pro-Bot/pkg/logx"
)

// tokenEnv is the env fallback for the telegram token, so the secret can be
// kept out of the config file.
const tokenEnv = "TELEGRAM_BOT_TOKEN"

const updateBuffer = 128

type App struct {
	cfgm *config.ConfigManager

	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	adapter *telegram.Adapter
	engine  *engine.Service
	tour    *tourney.Service
	router  *bot.Router

	sup     *supervisor.Supervisor
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("svc", "config")))

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, log.With(logx.String("svc", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(tokenEnv))
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{Token: token, PollTimeout: pollTimeout}, log.With(logx.String("svc", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	calc := recurrence.NewCalculator()

	engCfg, tourCfg, dispCfg, err := componentConfigs(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	dispatcher := dispatch.New(dispCfg, adapter, log.With(logx.String("svc", "dispatch")))
	eng := engine.New(engCfg, store, dispatcher, calc, log.With(logx.String("svc", "engine")))
	tour := tourney.New(tourCfg, store, calc, log.With(logx.String("svc", "tourney")))
	router := bot.New(bot.Config{DefaultTimezone: engCfg.DefaultTimezone}, adapter, store, tour, calc, log.With(logx.String("svc", "bot")))

	return &App{
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log.With(logx.String("svc", "app")),
		store:   store,
		adapter: adapter,
		engine:  eng,
		tour:    tour,
		router:  router,
		updates: make(chan kit.Update, updateBuffer),
	}, nil
}

// componentConfigs translates the file-level config (duration strings) into
// the typed configs of the engine, broadcaster and dispatcher.
func componentConfigs(cfg *config.Config) (engine.Config, tourney.Config, dispatch.Config, error) {
	poll, err := config.ParseDurationField("engine.poll_interval", cfg.Engine.PollInterval)
	if err != nil {
		return engine.Config{}, tourney.Config{}, dispatch.Config{}, err
	}
	catchUp, err := config.ParseDurationField("engine.catch_up_window", cfg.Engine.CatchUpWindow)
	if err != nil {
		return engine.Config{}, tourney.Config{}, dispatch.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("engine.send_timeout", cfg.Engine.SendTimeout)
	if err != nil {
		return engine.Config{}, tourney.Config{}, dispatch.Config{}, err
	}
	reconcile, err := config.ParseDurationField("tournaments.reconcile_interval", cfg.Tournaments.ReconcileInterval)
	if err != nil {
		return engine.Config{}, tourney.Config{}, dispatch.Config{}, err
	}

	tz := strings.TrimSpace(cfg.Timezone)
	engCfg := engine.Config{
		PollInterval:    poll,
		BatchSize:       cfg.Engine.BatchSize,
		CatchUpWindow:   catchUp,
		DefaultTimezone: tz,
	}
	tourCfg := tourney.Config{
		Enabled:           cfg.Tournaments.Enabled,
		ReconcileInterval: reconcile,
		DefaultTimezone:   tz,
	}
	dispCfg := dispatch.Config{
		SendTimeout: sendTimeout,
		RatePerSec:  cfg.Engine.RatePerSec,
	}
	return engCfg, tourCfg, dispCfg, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	a.sup.Go0("command-router", func(ctx context.Context) {
		a.router.Run(ctx, a.updates)
	})
	a.engine.Start(a.sup.Context())
	a.tour.Start(a.sup.Context())

	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})
	reloads := a.cfgm.Subscribe(1)
	a.sup.Go0("config-reload", func(ctx context.Context) {
		a.reloadLoop(ctx, reloads)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("bot started")
	return nil
}

// reloadLoop applies published config updates to the running services.
// Token and storage path changes need a restart; everything else hot-swaps.
func (a *App) reloadLoop(ctx context.Context, reloads chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-reloads:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)

			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			engCfg, tourCfg, _, err := componentConfigs(cfg)
			if err != nil {
				a.log.Warn("config reload rejected", logx.Err(err))
				continue
			}
			a.engine.Apply(engCfg)
			a.tour.Apply(tourCfg)
			prev = cfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.engine.Stop(ctx)
	a.tour.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}

	var supErr error
	if a.sup != nil {
		supErr = a.sup.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("bot stopped")
	_ = a.logSvc.Close()
	return supErr
}
