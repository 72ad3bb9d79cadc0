// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	// Import SQLite driver
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool // Tracks whether Close() has been called
	now    func() time.Time
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// memDBCounter gives each in-memory database its own shared-cache name.
var memDBCounter atomic.Int64

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Returns the cache directory path (empty string if using in-memory cache).
//
// Cache behavior:
//   - Location: ~/.cache/bd/wasm/ (platform-specific via os.UserCacheDir)
//   - Version management: wazero keys cache entries by its own version
//   - Fallback: Uses in-memory cache if filesystem cache creation fails
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "bd", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}

	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)

	return cacheDir
}

func init() {
	dir := setupWASMCache()
	debug.Logf("WASM cache: %q\n", dir)
}

// connectionString builds the file: URI with the pragmas every connection needs.
func connectionString(path string) string {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_txlock=immediate"
	switch {
	case path == ":memory:":
		// WAL doesn't work with shared in-memory databases, so use DELETE mode.
		// Each store gets its own name so parallel tests stay isolated.
		return fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&%s",
			memDBCounter.Add(1), pragmas)
	case strings.HasPrefix(path, "file:"):
		if strings.Contains(path, "_pragma=foreign_keys") {
			return path
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + pragmas
	default:
		return "file:" + path + "?_pragma=journal_mode(WAL)&" + pragmas
	}
}

// New opens (creating if needed) the database at path and brings its schema
// up to date. A failed migration is returned as *types.SchemaError and the
// database is left at its previous version.
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", connectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection; force a single one.
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	if isInMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := schemaMigrations().Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := verifySchemaCompatibility(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema probe failed after migration: %w", err)
	}

	if err := checkVersionCompatibility(ctx, db, BinaryVersion); err != nil {
		_ = db.Close()
		return nil, err
	}

	absPath := path
	if !isInMemory && !strings.HasPrefix(path, "file:") {
		absPath, err = filepath.Abs(path)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: absPath,
		now:    nowUTC,
	}, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a write transaction (BEGIN IMMEDIATE via _txlock).
// Everything inside fn must use tx, never s.db.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return fmt.Errorf("storage is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Time handling. Timestamps are stored as fixed-width UTC text so that
// lexical order matches chronological order and nanoseconds survive.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func nowUTC() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nextTimestamp returns a timestamp strictly after prev, using now when it
// is already later.
func nextTimestamp(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}

// SetConfig sets a configuration value
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// GetConfig gets a configuration value; missing keys return "".
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	return getKV(ctx, s.db, "config", key)
}

// SetMetadata sets a metadata value (for internal state like import hashes)
func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata gets a metadata value; missing keys return "".
func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	return getKV(ctx, s.db, "metadata", key)
}

func getKV(ctx context.Context, q querier, table, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s %s: %w", table, key, err)
	}
	return value, nil
}

// issuePrefix returns the configured prefix or ErrNotInitialized.
func issuePrefix(ctx context.Context, q querier) (string, error) {
	prefix, err := getKV(ctx, q, "config", "issue_prefix")
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return "", fmt.Errorf("%w: issue_prefix config is missing (run 'bd init --prefix <prefix>')", types.ErrNotInitialized)
	}
	return strings.TrimSuffix(prefix, "-"), nil
}

// SchemaVersion returns the applied schema level.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	return CurrentSchemaVersion(ctx, s.db)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// IsClosed reports whether Close has been called.
func (s *SQLiteStorage) IsClosed() bool {
	return s.closed.Load()
}

// Path returns the absolute path to the database file
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the underlying *sql.DB connection.
// Callers must not close it.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

// CheckpointWAL checkpoints the WAL file so the main database file carries
// every committed change.
func (s *SQLiteStorage) CheckpointWAL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return err
}
