package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration resolves a config field holding a Go duration string ("30s",
// "2m"). Empty means unset and resolves to zero so callers can apply their
// own default. Negative values are rejected: every duration in this config
// is a timeout or a cadence.
func Duration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	return d, nil
}

// DurationOr is Duration with a fallback for unset fields.
func DurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := Duration(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
