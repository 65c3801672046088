package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/phcodesage/trail-zap/internal/config"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens the on-device database. synchronous(FULL) makes every
// committed write survive an abrupt process kill.
func OpenSQLite(cfg config.Config) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(ON)")

	conn, err := sql.Open("sqlite", "file:"+cfg.LocalDBPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	// One writer keeps snapshot and queue writes strictly ordered.
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping local db: %w", err)
	}
	return conn, nil
}
