package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roombot/internal/transport"
	logx "roombot/pkg/logx"
)

// ErrDelivery marks transport failures surfaced by the dispatcher.
var ErrDelivery = errors.New("notification delivery error")

// Dispatcher sends announcement text to the configured group chat, paced by
// a token bucket so bursts of due records don't trip Telegram flood limits.
type Dispatcher struct {
	adapter transport.Adapter
	target  transport.ChatTarget
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewDispatcher(adapter transport.Adapter, target transport.ChatTarget, perSec float64, timeout time.Duration, log logx.Logger) *Dispatcher {
	if perSec <= 0 {
		perSec = 3
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Dispatcher{
		adapter: adapter,
		target:  target,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		timeout: timeout,
		log:     log,
	}
}

func (d *Dispatcher) Send(ctx context.Context, text string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.adapter.SendText(sctx, d.target, text, nil)
	if err == nil {
		return nil
	}

	// A stale topic id makes every send fail until config is fixed. Fall
	// back once to the plain chat so the announcement still lands.
	if d.target.ThreadID != 0 && isThreadRoutingErr(err) {
		d.log.Warn("topic send failed, retrying without thread",
			logx.Int("thread_id", d.target.ThreadID), logx.Err(err))
		fallback := transport.ChatTarget{ChatID: d.target.ChatID}
		_, rerr := d.adapter.SendText(sctx, fallback, text, nil)
		if rerr == nil {
			return nil
		}
		err = rerr
	}
	return fmt.Errorf("%w: %v", ErrDelivery, err)
}

func isThreadRoutingErr(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "thread") || strings.Contains(s, "topic")
}
