// Package store holds the sqlite-backed booking and role data. Bookings are
// written by the web application; the bot only reads them. Roles gate the
// bot's administrative commands.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "roombot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type Room struct {
	ID       int64
	Name     string
	Capacity int
}

type Booking struct {
	ID       int64
	RoomID   int64
	RoomName string
	UserID   int64
	UserName string
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RoleLevel returns the user's administrative level. Unknown users are
// level 0, not an error.
func (s *Store) RoleLevel(ctx context.Context, userID int64) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT level FROM roles WHERE user_id = ?`, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return level, nil
}

func (s *Store) SetRoleLevel(ctx context.Context, userID int64, level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("role level %d out of range 0..3", level)
	}
	if level == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE user_id = ?`, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roles(user_id, level) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET level=excluded.level`,
		userID, level)
	return err
}

func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, capacity FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Capacity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListBookingsOn returns all bookings that start on the given calendar day
// in the day's own location, ordered by room then start time.
func (s *Store) ListBookingsOn(ctx context.Context, day time.Time) ([]Booking, error) {
	loc := day.Location()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.room_id, r.name, b.user_id, b.user_name, b.title, b.starts_at, b.ends_at
		 FROM bookings b JOIN rooms r ON r.id = b.room_id
		 WHERE b.starts_at >= ? AND b.starts_at < ?
		 ORDER BY r.name, b.starts_at`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var (
			b          Booking
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.RoomID, &b.RoomName, &b.UserID, &b.UserName, &b.Title, &start, &end); err != nil {
			return nil, err
		}
		if b.StartsAt, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("booking %d: bad starts_at %q: %w", b.ID, start, err)
		}
		if b.EndsAt, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("booking %d: bad ends_at %q: %w", b.ID, end, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddRoom and AddBooking exist for provisioning and tests; the regular
// write path is the web application sharing this database file.
func (s *Store) AddRoom(ctx context.Context, name string, capacity int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms(name, capacity) VALUES(?,?)`, name, capacity)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) AddBooking(ctx context.Context, b Booking) (int64, error) {
	if !b.EndsAt.After(b.StartsAt) {
		return 0, errors.New("booking must end after it starts")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings(room_id, user_id, user_name, title, starts_at, ends_at)
		 VALUES(?,?,?,?,?,?)`,
		b.RoomID, b.UserID, b.UserName, b.Title,
		b.StartsAt.UTC().Format(time.RFC3339), b.EndsAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
