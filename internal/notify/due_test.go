package notify

import (
	"testing"
	"time"
)

var testZone = time.FixedZone("MSK", 3*60*60)

// monday returns 2026-01-05 (a Monday) at the given local wall time.
func monday(hour, min, sec int) time.Time {
	return time.Date(2026, time.January, 5, hour, min, sec, 0, testZone)
}

func activeRecord() Record {
	return Record{
		ID:                    "r1",
		Message:               "standup in room A",
		DaysOfWeek:            []string{"monday"},
		NotificationTime:      Clock{Hour: 9, Minute: 0},
		RepeatCount:           3,
		RepeatIntervalSeconds: 1800,
		IsActive:              true,
	}
}

func TestEvaluateFirstSendWindow(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	tests := []struct {
		name string
		now  time.Time
		want Decision
	}{
		{"three minutes early", monday(8, 57, 59), NotDue},
		{"two minutes early", monday(8, 58, 0), Due},
		{"exactly on time", monday(9, 0, 0), Due},
		{"inside window", monday(9, 1, 30), Due},
		{"window boundary", monday(9, 2, 59), Due},
		{"just past window", monday(9, 3, 0), NotDue},
		{"much later same day", monday(9, 45, 0), NotDue},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := activeRecord()
			if got := calc.Evaluate(&r, tt.now); got != tt.want {
				t.Fatalf("Evaluate at %s = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestEvaluateWrongWeekdayIsInvalid(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)
	r := activeRecord()

	tuesday := monday(9, 0, 0).AddDate(0, 0, 1)
	if got := calc.Evaluate(&r, tuesday); got != Invalid {
		t.Fatalf("Evaluate on tuesday = %s, want %s", got, Invalid)
	}
}

func TestEvaluateRepeatInterval(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	// The evaluation instant stays inside the clock window; only the
	// elapsed time since the previous send varies.
	now := monday(9, 1, 0)
	interval := 1800 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		want    Decision
	}{
		{"one second under grace boundary", interval - intervalGrace - time.Second, NotDue},
		{"exactly at grace boundary", interval - intervalGrace, Due},
		{"full interval elapsed", interval, Due},
		{"a week elapsed", 7 * 24 * time.Hour, Due},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := activeRecord()
			last := now.Add(-tt.elapsed)
			r.SentCount = 1
			r.LastSent = &last
			if got := calc.Evaluate(&r, now); got != tt.want {
				t.Fatalf("Evaluate after %s = %s, want %s", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestEvaluateRepeatOutsideWindow(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	// The interval has long elapsed, but 09:45 is outside the ±2-minute
	// window; repeats wait for the next qualifying window.
	last := monday(9, 1, 0)
	r := activeRecord()
	r.SentCount = 1
	r.LastSent = &last

	if got := calc.Evaluate(&r, monday(9, 45, 0)); got != NotDue {
		t.Fatalf("Evaluate = %s, want %s", got, NotDue)
	}
}

func TestEvaluateScenarioTwoSendsAcrossMondays(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	r := activeRecord()
	r.RepeatCount = 2
	r.RepeatIntervalSeconds = 3600

	if got := calc.Evaluate(&r, monday(9, 1, 0)); got != Due {
		t.Fatalf("first monday 09:01 = %s, want %s", got, Due)
	}
	sent := monday(9, 1, 0)
	r.SentCount = 1
	r.LastSent = &sent

	if got := calc.Evaluate(&r, monday(9, 45, 0)); got != NotDue {
		t.Fatalf("same monday 09:45 = %s, want %s", got, NotDue)
	}

	nextMonday := monday(9, 0, 0).AddDate(0, 0, 7)
	if got := calc.Evaluate(&r, nextMonday); got != Due {
		t.Fatalf("next monday 09:00 = %s, want %s", got, Due)
	}
	r.SentCount = 2
	if got := calc.Evaluate(&r, nextMonday); got != Exhausted {
		t.Fatalf("after final send = %s, want %s", got, Exhausted)
	}
}

func TestEvaluateExhaustedThenInvalid(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	last := monday(9, 0, 0)
	r := activeRecord()
	r.SentCount = r.RepeatCount
	r.LastSent = &last

	if got := calc.Evaluate(&r, monday(9, 1, 0)); got != Exhausted {
		t.Fatalf("spent record = %s, want %s", got, Exhausted)
	}

	r.IsActive = false
	if got := calc.Evaluate(&r, monday(9, 1, 0)); got != Invalid {
		t.Fatalf("deactivated record = %s, want %s", got, Invalid)
	}
}

func TestEvaluateInvalidRecords(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)
	now := monday(9, 0, 0)

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"zero repeat count", func(r *Record) { r.RepeatCount = 0 }},
		{"negative interval", func(r *Record) { r.RepeatIntervalSeconds = -1 }},
		{"unknown weekday", func(r *Record) { r.DaysOfWeek = []string{"someday"} }},
		{"empty id", func(r *Record) { r.ID = "" }},
		{"sent count over budget", func(r *Record) { r.SentCount = r.RepeatCount + 1 }},
		{"inactive", func(r *Record) { r.IsActive = false }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := activeRecord()
			tt.mutate(&r)
			if got := calc.Evaluate(&r, now); got != Invalid {
				t.Fatalf("Evaluate = %s, want %s", got, Invalid)
			}
		})
	}
}

func TestEvaluateEmptyDaySetNeverFires(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	r := activeRecord()
	r.DaysOfWeek = nil
	if got := calc.Evaluate(&r, monday(9, 0, 0)); got != Invalid {
		t.Fatalf("Evaluate = %s, want %s", got, Invalid)
	}
}

func TestEvaluateMissingLastSentResends(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testZone)

	r := activeRecord()
	r.SentCount = 1
	r.LastSent = nil

	if got := calc.Evaluate(&r, monday(9, 1, 0)); got != Due {
		t.Fatalf("Evaluate = %s, want %s", got, Due)
	}
}
