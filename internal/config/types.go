package config

type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	Database      DatabaseConfig      `json:"database"`
	Booking       BookingConfig       `json:"booking"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// GroupChatID is the chat the scheduler posts announcements into.
	GroupChatID int64 `json:"group_chat_id"`
	// TopicID is the forum topic (thread) for announcements; 0 means none.
	TopicID int `json:"topic_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotificationsConfig controls the recurring announcement scheduler.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "60s"
//   - initial_delay: "10s"
//   - rate_per_sec: 3
//   - send_timeout: "8s"
type NotificationsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// LegacyPath points at the old second snapshot ("recurring" set);
	// merged into Path once at load, never written back.
	LegacyPath   string `json:"legacy_path,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	InitialDelay string `json:"initial_delay,omitempty"`
	// Timezone is the fixed reference timezone for all due checks
	// (IANA name, e.g. "Asia/Almaty"). Empty means the host's local zone.
	Timezone      string `json:"timezone,omitempty"`
	MessagePrefix string `json:"message_prefix,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// DatabaseConfig points at the SQLite file holding rooms, bookings and roles.
type DatabaseConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type BookingConfig struct {
	// WebAppURL is the booking web application; /start renders it as a
	// Telegram web-app button with the user id appended.
	WebAppURL string `json:"webapp_url"`
}
