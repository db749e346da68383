package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "roombot/pkg/logx"
)

// ServiceConfig is the runtime-adjustable part of the scheduler.
type ServiceConfig struct {
	Enabled      bool
	Interval     time.Duration
	InitialDelay time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	return c
}

// Service drives the tick loop on a fixed cadence. Ticks are serialized:
// if a tick overruns the interval, the next firing is skipped rather than
// run concurrently. The location is fixed for the process lifetime; Apply
// never changes it.
type Service struct {
	loop *Loop
	loc  *time.Location
	log  logx.Logger

	mu      sync.Mutex
	cfg     ServiceConfig
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	delayT  *time.Timer
}

func NewService(loop *Loop, loc *time.Location, cfg ServiceConfig, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{loop: loop, loc: loc, cfg: cfg.withDefaults(), log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	if !s.cfg.Enabled {
		s.log.Info("notification scheduler disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.c = c

	// Delay the very first pass so startup (adapter connect, config settle)
	// finishes before anything is sent.
	delay := s.cfg.InitialDelay
	s.delayT = time.AfterFunc(delay, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.tick()
		s.mu.Lock()
		if s.c == c && s.started {
			c.Start()
		}
		s.mu.Unlock()
	})

	s.log.Info("notification scheduler started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Duration("initial_delay", delay),
		logx.String("timezone", s.loc.String()))
	return nil
}

func (s *Service) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.loop.Tick(s.ctx); err != nil {
		s.log.Warn("notification tick failed", logx.Err(err))
	}
}

// Apply updates the runtime config. The cron is rebuilt only when the
// cadence or enablement actually changed.
func (s *Service) Apply(cfg ServiceConfig) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	same := cfg.Enabled == s.cfg.Enabled && cfg.Interval == s.cfg.Interval
	s.cfg = cfg
	if !s.started || same {
		return nil
	}

	s.stopCronLocked()
	if !cfg.Enabled {
		s.log.Info("notification scheduler disabled")
		return nil
	}
	// No initial delay on reconfigure; the process is already warm.
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	spec := fmt.Sprintf("@every %s", cfg.Interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.c = c
	c.Start()
	s.log.Info("notification scheduler reconfigured",
		logx.Duration("interval", cfg.Interval))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	done := s.stopCronLocked()
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// stopCronLocked stops the timer and cron, returning the cron's drain
// channel (nil if no cron was running).
func (s *Service) stopCronLocked() <-chan struct{} {
	if s.delayT != nil {
		s.delayT.Stop()
		s.delayT = nil
	}
	if s.c == nil {
		return nil
	}
	done := s.c.Stop().Done()
	s.c = nil
	return done
}

// cronLogger adapts logx to the cron logging interface. Only skip
// notices and schedule errors come through here.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
