// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"modernc.org/sqlite" // pure Go driver, registers "sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// SQLiteConfig holds connection pool parameters.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig suits a read-mostly catalog.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{BusyTimeout: 5 * time.Second, MaxOpenConns: 8}
}

// Store is the SQLite-backed catalog.
type Store struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the catalog database. The pragmas
// travel in the DSN so every pooled connection gets them.
func OpenSQLite(ctx context.Context, path string, cfg SQLiteConfig) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		issues, err := VerifyIntegrity(ctx, path, false)
		if err != nil {
			return nil, err
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("catalog %s is corrupt: %s", path, strings.Join(issues, "; "))
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

// PingContext reports whether the database is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS media_files (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mod_time TEXT NOT NULL,
		added_at TEXT NOT NULL
	);
	`)
	return err
}

// Lookup implements ports.MediaCatalog.
func (s *Store) Lookup(ctx context.Context, id string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM media_files WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", model.ErrMediaNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("lookup media %s: %w", id, err)
	}
	return path, nil
}

// Upsert inserts or updates a media file. AddedAt is kept from the first insert.
func (s *Store) Upsert(ctx context.Context, it Item) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO media_files (id, path, size_bytes, mod_time, added_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		path = excluded.path,
		size_bytes = excluded.size_bytes,
		mod_time = excluded.mod_time
	`, it.ID, it.Path, it.SizeBytes, it.ModTime.UTC().Format(time.RFC3339Nano), it.AddedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert media %s: %w", it.ID, err)
	}
	return nil
}

// List returns all media files ordered by id.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, size_bytes, mod_time, added_at FROM media_files ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Item
	for rows.Next() {
		var it Item
		var modTime, addedAt string
		if err := rows.Scan(&it.ID, &it.Path, &it.SizeBytes, &modTime, &addedAt); err != nil {
			return nil, err
		}
		it.ModTime, _ = time.Parse(time.RFC3339Nano, modTime)
		it.AddedAt, _ = time.Parse(time.RFC3339Nano, addedAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

// VerifyIntegrity runs quick_check (or integrity_check when full) on a
// read-only connection. It returns the diagnostic rows, nil when healthy.
func VerifyIntegrity(ctx context.Context, path string, full bool) ([]string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("open catalog for verification: %w", err)
	}
	defer func() { _ = db.Close() }()

	pragma := "PRAGMA quick_check;"
	if full {
		pragma = "PRAGMA integrity_check;"
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		if msg, ok := corruption(err); ok {
			return []string{msg}, nil
		}
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		if msg, ok := corruption(err); ok {
			return append(results, msg), nil
		}
		return nil, err
	}

	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

// corruption reports whether err is SQLite refusing to read a damaged file.
// Such a file fails the check rather than the caller.
func corruption(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return se.Error(), true
	}
	return "", false
}
