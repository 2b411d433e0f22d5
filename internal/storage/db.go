// Package storage owns the sqlite database that keeps registrations,
// inventory offers, rule state and resolver caches across restarts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"corrade/internal/config"

	_ "modernc.org/sqlite"
)

const busyTimeout = 5 * time.Second

// Open creates the parent directory if needed and opens the database with
// the configured pool size. Pragmas ride on the DSN so that every pooled
// connection gets them.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	path := cfg.Database.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path, cfg.Database.WALMode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conns := cfg.Database.MaxConnections
	if conns <= 0 {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string, wal bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	if wal {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Backup writes a consistent snapshot of db into dir with VACUUM INTO and
// returns the snapshot's path. Pending WAL frames are included.
func Backup(ctx context.Context, db *sql.DB, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir backup dir: %w", err)
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	dst := filepath.Join(dir, "corrade-"+ts+".db")
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("backup %s already exists", dst)
	}
	quoted := "'" + strings.ReplaceAll(dst, "'", "''") + "'"
	if _, err := db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return dst, nil
}
