package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // driver, same as teacher's internal/mbtiles

	"github.com/mapcache-go/mapcache/internal/apperr"
)

// SQLite is a Cache backend keyed the way spec.md §3 describes (tileset,
// grid, z/x/y, dimensions), adapted from the teacher's internal/mbtiles
// reader/writer: same pragmas, same "one row per tile" table shape, minus
// the MBTiles-specific metadata table and TMS Y-flip (this cache stores
// tiles under the cache contract's own key, not the MBTiles spec's).
type SQLite struct {
	CacheName string
	db        *sql.DB
	mu        sync.Mutex
}

// NewSQLite opens (or creates) a SQLite-backed cache at path.
func NewSQLite(name, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite cache %q: open %s: %w", name, path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite cache %q: pragma %q: %w", name, pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tiles (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			mtime INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache %q: create schema: %w", name, err)
	}

	return &SQLite{CacheName: name, db: db}, nil
}

func (s *SQLite) Name() string { return s.CacheName }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, tile *Tile) (Result, error) {
	var data []byte
	var mtimeUnix int64
	err := s.db.QueryRowContext(ctx, "SELECT data, mtime FROM tiles WHERE key = ?", tile.Key()).Scan(&data, &mtimeUnix)
	if err == sql.ErrNoRows {
		return Miss, nil
	}
	if err != nil {
		return Failure, apperr.BackendFatal(err, "sqlite cache %q: get", s.CacheName)
	}
	tile.EncodedData = data
	tile.MTime = time.Unix(mtimeUnix, 0).UTC()
	return Success, nil
}

func (s *SQLite) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "sqlite cache %q: tile has no encoded data", s.CacheName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tiles (key, data, mtime) VALUES (?, ?, ?)",
		tile.Key(), tile.EncodedData, time.Now().Unix())
	if err != nil {
		return apperr.BackendFatal(err, "sqlite cache %q: set", s.CacheName)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, tile *Tile) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM tiles WHERE key = ?", tile.Key()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.BackendFatal(err, "sqlite cache %q: exists", s.CacheName)
	}
	return true, nil
}

func (s *SQLite) Delete(ctx context.Context, tile *Tile) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tiles WHERE key = ?", tile.Key())
	if err != nil {
		return apperr.BackendFatal(err, "sqlite cache %q: delete", s.CacheName)
	}
	return nil
}

func (s *SQLite) MultiSet(ctx context.Context, tiles []*Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.BackendFatal(err, "sqlite cache %q: begin multi_set", s.CacheName)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO tiles (key, data, mtime) VALUES (?, ?, ?)")
	if err != nil {
		return apperr.BackendFatal(err, "sqlite cache %q: prepare multi_set", s.CacheName)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, t := range tiles {
		if t.EncodedData == nil {
			return apperr.New(apperr.KindInternal, 500, "sqlite cache %q: tile %s has no encoded data", s.CacheName, t.Key())
		}
		if _, err := stmt.ExecContext(ctx, t.Key(), t.EncodedData, now); err != nil {
			return apperr.BackendFatal(err, "sqlite cache %q: multi_set insert %s", s.CacheName, t.Key())
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.BackendFatal(err, "sqlite cache %q: commit multi_set", s.CacheName)
	}
	return nil
}
