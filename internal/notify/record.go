package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Clock is a time of day persisted as "HH:MM".
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) MinuteOfDay() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Record is the persisted unit of scheduling work. It is mutated only by the
// tick loop (SentCount, LastSent, IsActive); everything else is set at
// creation time by the administrative surface.
type Record struct {
	ID                    string     `json:"id"`
	Message               string     `json:"message"`
	DaysOfWeek            []string   `json:"days_of_week"`
	NotificationTime      Clock      `json:"notification_time"`
	RepeatCount           int        `json:"repeat_count"`
	RepeatIntervalSeconds int        `json:"repeat_interval_seconds"`
	SentCount             int        `json:"sent_count"`
	LastSent              *time.Time `json:"last_sent"`
	IsActive              bool       `json:"is_active"`
}

func NewRecord(message string, days []string, at Clock, repeats, intervalSec int) Record {
	norm := make([]string, 0, len(days))
	for _, d := range days {
		norm = append(norm, strings.ToLower(strings.TrimSpace(d)))
	}
	return Record{
		ID:                    uuid.NewString(),
		Message:               message,
		DaysOfWeek:            norm,
		NotificationTime:      at,
		RepeatCount:           repeats,
		RepeatIntervalSeconds: intervalSec,
		IsActive:              true,
	}
}

// FiresOn reports whether the record may fire on the given weekday.
// An empty day set never fires (defensive, not an error).
func (r *Record) FiresOn(d time.Weekday) bool {
	for _, name := range r.DaysOfWeek {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok && wd == d {
			return true
		}
	}
	return false
}

func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record has empty id")
	}
	if r.RepeatCount <= 0 {
		return fmt.Errorf("record %s: repeat_count must be > 0", r.ID)
	}
	if r.RepeatIntervalSeconds <= 0 {
		return fmt.Errorf("record %s: repeat_interval_seconds must be > 0", r.ID)
	}
	if r.SentCount < 0 || r.SentCount > r.RepeatCount {
		return fmt.Errorf("record %s: sent_count %d out of range 0..%d", r.ID, r.SentCount, r.RepeatCount)
	}
	for _, name := range r.DaysOfWeek {
		if _, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; !ok {
			return fmt.Errorf("record %s: unknown weekday %q", r.ID, name)
		}
	}
	return nil
}
