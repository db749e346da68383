package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"roombot/internal/transport"
	logx "roombot/pkg/logx"
)

type fakeAdapter struct {
	calls []transport.ChatTarget
	errs  []error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.calls = append(f.calls, to)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return transport.MessageRef{}, err
		}
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.calls)}, nil
}

func TestDispatcherTopicFallback(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{errs: []error{errors.New("Bad Request: message thread not found")}}
	d := NewDispatcher(a, transport.ChatTarget{ChatID: -100, ThreadID: 42}, 100, time.Second, logx.Nop())

	if err := d.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (topic then plain chat)", len(a.calls))
	}
	if a.calls[0].ThreadID != 42 || a.calls[1].ThreadID != 0 {
		t.Fatalf("targets = %+v", a.calls)
	}
}

func TestDispatcherFallbackOnlyOnce(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{errs: []error{
		errors.New("Bad Request: TOPIC_CLOSED"),
		errors.New("Bad Request: TOPIC_CLOSED"),
	}}
	d := NewDispatcher(a, transport.ChatTarget{ChatID: -100, ThreadID: 7}, 100, time.Second, logx.Nop())

	err := d.Send(context.Background(), "hello")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("Send error = %v, want ErrDelivery", err)
	}
	if len(a.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (no second fallback)", len(a.calls))
	}
}

func TestDispatcherNoFallbackForOtherErrors(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{errs: []error{errors.New("Too Many Requests: retry after 5")}}
	d := NewDispatcher(a, transport.ChatTarget{ChatID: -100, ThreadID: 42}, 100, time.Second, logx.Nop())

	err := d.Send(context.Background(), "hello")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("Send error = %v, want ErrDelivery", err)
	}
	if len(a.calls) != 1 {
		t.Fatalf("calls = %d, want 1 (no retry for non-routing error)", len(a.calls))
	}
}

func TestDispatcherNoFallbackWithoutThread(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{errs: []error{errors.New("Bad Request: message thread not found")}}
	d := NewDispatcher(a, transport.ChatTarget{ChatID: -100}, 100, time.Second, logx.Nop())

	if err := d.Send(context.Background(), "hello"); !errors.Is(err, ErrDelivery) {
		t.Fatalf("Send error = %v, want ErrDelivery", err)
	}
	if len(a.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(a.calls))
	}
}
