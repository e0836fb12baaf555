// Package cache persists per-playlist content hashes in a local SQLite
// database so runs can skip playlists whose computed content has not
// changed since the last successful reconcile.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS playlist_state (
	playlist_name TEXT PRIMARY KEY,
	content_hash  TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);`

// Store is a SQLite-backed hash store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored content hash for a playlist, if any.
func (s *Store) Get(ctx context.Context, playlistName string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM playlist_state WHERE playlist_name = ?`,
		playlistName,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cache entry: %w", err)
	}
	return hash, true, nil
}

// Put upserts the content hash for a playlist.
func (s *Store) Put(ctx context.Context, playlistName, hash string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playlist_state (playlist_name, content_hash, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(playlist_name) DO UPDATE SET
		   content_hash = excluded.content_hash,
		   updated_at   = excluded.updated_at`,
		playlistName, hash, updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
