package notify

import "time"

// Decision is the outcome of evaluating one record at one instant.
type Decision int

const (
	NotDue Decision = iota
	Due
	Exhausted
	Invalid
)

func (d Decision) String() string {
	switch d {
	case NotDue:
		return "not_due"
	case Due:
		return "due"
	case Exhausted:
		return "exhausted"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

const (
	// windowMinutes bounds the due check to ±2 minutes around the scheduled
	// minute, so a poll cadence of up to ~4 minutes cannot skip the window.
	windowMinutes = 2

	// intervalGrace compensates for poll-tick jitter on repeat sends: a
	// repeat fires once elapsed >= interval - grace.
	intervalGrace = 120 * time.Second
)

// Calculator decides whether a record is due. It is pure: no clock access,
// no mutation. All wall-clock comparisons happen in the location fixed at
// construction time so that DST and offsets resolve consistently.
type Calculator struct {
	loc *time.Location
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{loc: loc}
}

func (c *Calculator) Location() *time.Location { return c.loc }

// Evaluate classifies the record against now.
//
// Everything is gated on the ±2-minute window around notification_time on a
// qualifying weekday, repeat sends included: with a typical interval of an
// hour or more, repeats land on subsequent qualifying days at the same
// time of day, and repeat_interval_seconds sets the minimum spacing
// between them.
func (c *Calculator) Evaluate(r *Record, now time.Time) Decision {
	if err := r.Validate(); err != nil {
		return Invalid
	}
	local := now.In(c.loc)
	if !r.IsActive || !r.FiresOn(local.Weekday()) {
		return Invalid
	}

	delta := local.Hour()*60 + local.Minute() - r.NotificationTime.MinuteOfDay()
	if delta < -windowMinutes || delta > windowMinutes {
		return NotDue
	}

	// First send fires on the window alone, whatever the interval says.
	if r.SentCount == 0 {
		return Due
	}
	if r.SentCount >= r.RepeatCount {
		return Exhausted
	}

	if r.LastSent == nil {
		// Inconsistent state (sent before but no timestamp); resend rather
		// than stall the remaining repeats.
		return Due
	}
	interval := time.Duration(r.RepeatIntervalSeconds) * time.Second
	if now.Sub(*r.LastSent) >= interval-intervalGrace {
		return Due
	}
	return NotDue
}
