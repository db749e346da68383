package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"roombot/internal/eventbus"
	logx "roombot/pkg/logx"
)

type fakeStore struct {
	records []Record
	loadErr error
	saveErr error
	saves   int
}

func (f *fakeStore) Load(ctx context.Context) ([]Record, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, records []Record) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = records
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestLoop(store Store, send Sender, prefix string) *Loop {
	l := NewLoop(store, NewCalculator(testZone), send, eventbus.New(), prefix, logx.Nop())
	l.now = func() time.Time { return monday(9, 0, 30) }
	return l
}

func TestTickSendsDueRecord(t *testing.T) {
	t.Parallel()
	store := &fakeStore{records: []Record{activeRecord()}}
	send := &fakeSender{}
	l := newTestLoop(store, send, "[booking] ")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(send.sent) != 1 || send.sent[0] != "[booking] standup in room A" {
		t.Fatalf("sent = %q", send.sent)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	r := store.records[0]
	if r.SentCount != 1 || r.LastSent == nil || !r.IsActive {
		t.Fatalf("record after tick: %+v", r)
	}
}

func TestTickIdempotentWhenNothingDue(t *testing.T) {
	t.Parallel()
	r := activeRecord()
	r.DaysOfWeek = []string{"friday"}
	store := &fakeStore{records: []Record{r}}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("sent = %q, want none", send.sent)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0 (no state change, no write)", store.saves)
	}
}

// slowStore stalls Load on a gate and records how many callers are inside
// Load at once.
type slowStore struct {
	fakeStore
	gate    chan struct{}
	entered chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowStore) Load(ctx context.Context) ([]Record, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	return s.fakeStore.Load(ctx)
}

func TestConcurrentTicksNeverOverlap(t *testing.T) {
	t.Parallel()
	st := &slowStore{
		fakeStore: fakeStore{records: []Record{activeRecord()}},
		gate:      make(chan struct{}),
		entered:   make(chan struct{}, 2),
	}
	send := &fakeSender{}
	l := newTestLoop(st, send, "")

	done := make(chan error, 2)
	go func() { done <- l.Tick(context.Background()) }()
	<-st.entered

	// Second tick while the first is still inside Load, as happens when a
	// rebuilt scheduler fires before the old tick drains. It must block
	// until the first tick finishes.
	go func() { done <- l.Tick(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	if n := st.maxSeen.Load(); n != 1 {
		t.Fatalf("concurrent ticks in Load = %d, want 1", n)
	}

	close(st.gate)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if n := st.maxSeen.Load(); n != 1 {
		t.Fatalf("concurrent ticks in Load = %d, want 1", n)
	}
	if len(send.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1 (second tick saw updated state)", len(send.sent))
	}
	if st.saves != 1 {
		t.Fatalf("saves = %d, want 1", st.saves)
	}
}

func TestTickTwiceNoDuplicateSend(t *testing.T) {
	t.Parallel()
	store := &fakeStore{records: []Record{activeRecord()}}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	// Same instant again: the record is no longer due, nothing changes and
	// nothing is written.
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if len(send.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(send.sent))
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
}

func TestTickDeliveryFailureLeavesRecordUnchanged(t *testing.T) {
	t.Parallel()
	store := &fakeStore{records: []Record{activeRecord()}}
	send := &fakeSender{err: errors.New("telegram down")}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0", store.saves)
	}
	if r := store.records[0]; r.SentCount != 0 || r.LastSent != nil {
		t.Fatalf("record mutated despite failed send: %+v", r)
	}
}

func TestTickDeactivatesOnFinalSend(t *testing.T) {
	t.Parallel()
	last := monday(8, 30, 0)
	r := activeRecord()
	r.SentCount = r.RepeatCount - 1
	r.LastSent = &last
	store := &fakeStore{records: []Record{r}}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := store.records[0]
	if got.SentCount != got.RepeatCount {
		t.Fatalf("SentCount = %d, want %d", got.SentCount, got.RepeatCount)
	}
	if got.IsActive {
		t.Fatal("record still active after final repeat")
	}
}

func TestTickDeactivatesAlreadySpentRecord(t *testing.T) {
	t.Parallel()
	last := monday(8, 0, 0)
	r := activeRecord()
	r.SentCount = r.RepeatCount
	r.LastSent = &last
	store := &fakeStore{records: []Record{r}}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("sent = %q, want none", send.sent)
	}
	if store.records[0].IsActive {
		t.Fatal("spent record not deactivated")
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1 (deactivation persisted)", store.saves)
	}
}

func TestTickLoadErrorAborts(t *testing.T) {
	t.Parallel()
	store := &fakeStore{loadErr: ErrStorage}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); !errors.Is(err, ErrStorage) {
		t.Fatalf("Tick error = %v, want ErrStorage", err)
	}
	if len(send.sent) != 0 {
		t.Fatalf("sent = %q, want none", send.sent)
	}
}

func TestTickSaveErrorSurfaces(t *testing.T) {
	t.Parallel()
	store := &fakeStore{records: []Record{activeRecord()}, saveErr: ErrStorage}
	send := &fakeSender{}
	l := newTestLoop(store, send, "")

	if err := l.Tick(context.Background()); !errors.Is(err, ErrStorage) {
		t.Fatalf("Tick error = %v, want ErrStorage", err)
	}
}
