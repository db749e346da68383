package notify

import (
	"context"
	"sync"
	"time"

	"roombot/internal/eventbus"
	logx "roombot/pkg/logx"
)

// Sender delivers one announcement. Implemented by Dispatcher.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Loop runs the per-tick evaluation pass. One Tick is one complete
// load -> evaluate -> send -> persist cycle; ticks never overlap.
type Loop struct {
	store  Store
	calc   *Calculator
	send   Sender
	bus    *eventbus.Bus
	log    logx.Logger
	prefix string

	// mu serializes ticks. The cron SkipIfStillRunning chain only covers
	// one cron instance; a scheduler rebuild on hot reload briefly has two
	// timers pointing here, plus the initial-delay timer.
	mu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

func NewLoop(store Store, calc *Calculator, send Sender, bus *eventbus.Bus, prefix string, log logx.Logger) *Loop {
	return &Loop{
		store:  store,
		calc:   calc,
		send:   send,
		bus:    bus,
		prefix: prefix,
		log:    log,
		now:    time.Now,
	}
}

// Tick evaluates every record once. Mutations accumulate in memory and are
// flushed with a single Save at the end, so a crash mid-tick leaves the
// previous snapshot intact. A load or save failure aborts the tick; sends
// already made in a tick whose save fails may repeat next tick.
func (l *Loop) Tick(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		l.log.Error("notification load failed", logx.Err(err))
		return err
	}

	now := l.now()
	changed := false
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		r := &records[i]
		switch l.calc.Evaluate(r, now) {
		case Due:
			if err := l.send.Send(ctx, l.prefix+r.Message); err != nil {
				// No state change: the record stays due and retries on the
				// next tick.
				l.log.Warn("notification send failed",
					logx.String("id", r.ID), logx.Err(err))
				l.bus.Publish(eventbus.Event{Type: eventbus.NotifyFailed, Data: r.ID})
				continue
			}
			// last_sent keeps the fixed deployment offset so the snapshot
			// serializes with one unambiguous representation.
			sent := now.In(l.calc.Location())
			r.SentCount++
			r.LastSent = &sent
			if r.SentCount >= r.RepeatCount {
				r.IsActive = false
				l.bus.Publish(eventbus.Event{Type: eventbus.NotifyExhausted, Data: r.ID})
			}
			changed = true
			l.log.Info("notification sent",
				logx.String("id", r.ID),
				logx.Int("sent_count", r.SentCount),
				logx.Int("repeat_count", r.RepeatCount))
			l.bus.Publish(eventbus.Event{Type: eventbus.NotifySent, Data: r.ID})
		case Exhausted:
			r.IsActive = false
			changed = true
			l.log.Info("notification exhausted, deactivating", logx.String("id", r.ID))
			l.bus.Publish(eventbus.Event{Type: eventbus.NotifyExhausted, Data: r.ID})
		case Invalid, NotDue:
			// nothing to do
		}
	}

	if !changed {
		return nil
	}
	if err := l.store.Save(ctx, records); err != nil {
		l.log.Error("notification save failed", logx.Err(err))
		return err
	}
	return nil
}
