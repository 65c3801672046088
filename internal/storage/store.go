package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("not found")

// Store is the on-device durable store: a key/value slot table plus the
// pending activity queue.
type Store struct {
	db *sql.DB

	idMu       sync.Mutex
	lastIDMsec int64
}

func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	if err := s.seedLocalIDs(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_activities (
			local_id       TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			type           TEXT NOT NULL,
			distance_km    REAL NOT NULL DEFAULT 0,
			duration_secs  INTEGER NOT NULL DEFAULT 0,
			start_time     TEXT NOT NULL,
			end_time       TEXT NOT NULL,
			map_polyline   TEXT NOT NULL DEFAULT '',
			elevation_gain REAL NOT NULL DEFAULT 0,
			avg_hr         INTEGER,
			max_hr         INTEGER,
			description    TEXT NOT NULL DEFAULT '',
			sync_status    TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			remote_id      TEXT,
			sync_error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_activities (sync_status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate local store: %w", err)
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`, key, value, formatTime(time.Now()))
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// NewLocalID returns a local activity id derived from now in milliseconds.
// Ids never repeat for the life of the database file: a timestamp at or
// below the last issued one is bumped past it, and the last issued value is
// kept in the kv table so purging the queue does not lower it.
func (s *Store) NewLocalID(now time.Time) string {
	ms := now.UnixMilli()

	s.idMu.Lock()
	defer s.idMu.Unlock()
	if ms <= s.lastIDMsec {
		ms = s.lastIDMsec + 1
	}
	s.lastIDMsec = ms
	if err := s.Put(context.Background(), localIDKey, []byte(strconv.FormatInt(ms, 10))); err != nil {
		logrus.WithError(err).Warn("persist local id high-water mark")
	}
	return localIDPrefix + strconv.FormatInt(ms, 10)
}

const (
	localIDPrefix = "local_"
	localIDKey    = "local_id_seq"
)

func (s *Store) seedLocalIDs(ctx context.Context) error {
	stored, err := s.Get(ctx, localIDKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		if ms, err := strconv.ParseInt(string(stored), 10, 64); err == nil {
			s.lastIDMsec = ms
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT local_id FROM pending_activities`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ms, err := strconv.ParseInt(strings.TrimPrefix(id, localIDPrefix), 10, 64)
		if err == nil && ms > s.lastIDMsec {
			s.lastIDMsec = ms
		}
	}
	return rows.Err()
}

// Fixed-width so that text ordering in SQL matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
