// Package app wires the configuration, logging, telegram transport, booking
// store and the notification scheduler into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roombot/internal/bot"
	"roombot/internal/config"
	"roombot/internal/eventbus"
	"roombot/internal/notify"
	rtsup "roombot/internal/runtime/supervisor"
	"roombot/internal/store"
	"roombot/internal/transport"
	tgadapter "roombot/internal/transport/telegram/adapter"
	logx "roombot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *tgadapter.Adapter
	db       *store.Store
	notes    *notify.FileStore
	notifSvc *notify.Service
	bus      *eventbus.Bus
	sup      *rtsup.Supervisor
	loc      *time.Location

	updates chan transport.Update
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validateConfig)

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	adapter, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	busyTimeout, err := config.DurationOr("database.busy_timeout", cfg.Database.BusyTimeout, 5*time.Second)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	db, err := store.Open(store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The timezone is fixed for the process lifetime. Changing it requires
	// a restart; hot reload deliberately leaves it alone.
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Notifications.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			_ = db.Close()
			logSvc.Close()
			return nil, fmt.Errorf("notifications.timezone: %w", err)
		}
	}

	bus := eventbus.New()
	nlog := log.With(logx.String("comp", "notify"))
	notes := notify.NewFileStore(cfg.Notifications.Path, cfg.Notifications.LegacyPath, nlog)

	sendTimeout, err := config.DurationOr("notifications.send_timeout", cfg.Notifications.SendTimeout, 8*time.Second)
	if err != nil {
		_ = db.Close()
		logSvc.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(adapter,
		transport.ChatTarget{ChatID: cfg.Telegram.GroupChatID, ThreadID: cfg.Telegram.TopicID},
		float64(cfg.Notifications.RatePerSec), sendTimeout, nlog)
	loop := notify.NewLoop(notes, notify.NewCalculator(loc), dispatcher, bus,
		cfg.Notifications.MessagePrefix, nlog)

	svcCfg, err := notifServiceConfig(cfg.Notifications)
	if err != nil {
		_ = db.Close()
		logSvc.Close()
		return nil, err
	}
	notifSvc := notify.NewService(loop, loc, svcCfg, nlog)

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log,
		adapter:  adapter,
		db:       db,
		notes:    notes,
		notifSvc: notifSvc,
		bus:      bus,
		loc:      loc,
		updates:  make(chan transport.Update, 256),
	}, nil
}

func notifServiceConfig(nc config.NotificationsConfig) (notify.ServiceConfig, error) {
	interval, err := config.DurationOr("notifications.poll_interval", nc.PollInterval, 60*time.Second)
	if err != nil {
		return notify.ServiceConfig{}, err
	}
	delay, err := config.DurationOr("notifications.initial_delay", nc.InitialDelay, 10*time.Second)
	if err != nil {
		return notify.ServiceConfig{}, err
	}
	return notify.ServiceConfig{Enabled: nc.Enabled, Interval: interval, InitialDelay: delay}, nil
}

// validateConfig rejects hot-reload candidates that would break running
// components. Startup-only fields (token, database path, timezone) are not
// re-checked here; changes to them take effect on restart.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Notifications.Enabled {
		if strings.TrimSpace(cfg.Notifications.Path) == "" {
			return errors.New("notifications.path is required when enabled")
		}
		if cfg.Telegram.GroupChatID == 0 {
			return errors.New("telegram.group_chat_id is required when notifications are enabled")
		}
	}
	if _, err := config.Duration("notifications.poll_interval", cfg.Notifications.PollInterval); err != nil {
		return err
	}
	if _, err := config.Duration("notifications.initial_delay", cfg.Notifications.InitialDelay); err != nil {
		return err
	}
	if _, err := config.Duration("notifications.send_timeout", cfg.Notifications.SendTimeout); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	sctx := a.sup.Context()

	if err := a.adapter.Start(sctx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	router := bot.NewRouter(a.adapter, a.db, a.log.With(logx.String("comp", "bot")))
	handlers := bot.NewHandlers(a.adapter, a.db, a.notes, a.bus,
		cfg.Booking.WebAppURL, a.loc, a.log.With(logx.String("comp", "bot")))
	handlers.Register(router)

	a.sup.Go("bot.router", func(c context.Context) error {
		return router.Run(c, a.updates)
	})

	if err := a.notifSvc.Start(sctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	a.sup.Go0("config.apply", func(c context.Context) {
		a.applyLoop(c)
	})

	// Debug trace of notification lifecycle events.
	events, unsub := a.bus.Subscribe(32)
	a.sup.Go0("eventbus.trace", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e := <-events:
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.log.Info("application started")
	return nil
}

// applyLoop pushes committed config reloads into the live components.
func (a *App) applyLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			svcCfg, err := notifServiceConfig(cfg.Notifications)
			if err != nil {
				a.log.Warn("reload: bad scheduler config", logx.Err(err))
				continue
			}
			if err := a.notifSvc.Apply(svcCfg); err != nil {
				a.log.Warn("reload: scheduler apply failed", logx.Err(err))
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("shutting down")

	var firstErr error
	if err := a.notifSvc.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
	if err := a.adapter.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.sup != nil {
		if err := a.sup.Wait(ctx); err != nil && firstErr == nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			firstErr = err
		}
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.log.Info("shutdown complete")
	a.logSvc.Close()
	return firstErr
}
