// Package taxonomy caches the remote classification dictionary locally so
// the mapping layer can resolve class codes without a network round trip
// per entity.
package taxonomy

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added dictionary index on classes
const currentSchemaVersion = 1

// Store is the local dictionary cache, a SQLite database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the cache database at the given path, applying
// pragmas and schema migrations. Idempotent; safe to call on an existing
// database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutClasses replaces the cached contents of one dictionary in a single
// transaction: every pulled class is upserted, classes that vanished from
// the dictionary are pruned, and the pull is stamped for status reporting.
func (s *Store) PutClasses(ctx context.Context, dictionary string, classes []Class) error {
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO classes (code, name, uri, dictionary, pulled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			uri = excluded.uri,
			dictionary = excluded.dictionary,
			pulled_at = excluded.pulled_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	for _, c := range classes {
		if _, err := upsert.ExecContext(ctx, c.Code, c.Name, c.URI, dictionary, stamp); err != nil {
			return fmt.Errorf("upsert class %s: %w", c.Code, err)
		}
	}

	// Anything in this dictionary not touched by this pull no longer
	// exists remotely.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM classes WHERE dictionary = ? AND pulled_at <> ?`,
		dictionary, stamp,
	); err != nil {
		return fmt.Errorf("prune stale classes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pulls (dictionary, pulled_at, class_count)
		VALUES (?, ?, ?)
		ON CONFLICT(dictionary) DO UPDATE SET
			pulled_at = excluded.pulled_at,
			class_count = excluded.class_count
	`, dictionary, stamp, len(classes)); err != nil {
		return fmt.Errorf("record pull: %w", err)
	}

	return tx.Commit()
}

// ClassName resolves a classification code to its display name. A miss is
// normal for codes outside the cached dictionary.
func (s *Store) ClassName(code string) (string, bool) {
	var name string
	if err := s.db.QueryRow(`SELECT name FROM classes WHERE code = ?`, code).Scan(&name); err != nil {
		return "", false
	}
	return name, true
}

// Count returns the number of cached classes across all dictionaries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return n, nil
}

// LastPulledAt returns when any dictionary was most recently refreshed.
// The second return is false when the cache has never been pulled.
func (s *Store) LastPulledAt(ctx context.Context) (time.Time, bool, error) {
	var stamp string
	err := s.db.QueryRowContext(ctx,
		`SELECT pulled_at FROM pulls ORDER BY pulled_at DESC LIMIT 1`,
	).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last pull: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse pull stamp %q: %w", stamp, err)
	}
	return at, true, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the dictionary index for databases created before it was
// part of schema.sql. New databases get it from the schema directly.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_classes_dictionary
		ON classes(dictionary)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
