package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/docsql/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on schemas(name, content_hash)
const currentSchemaVersion = 1

// ErrNotFound is returned when a schema name or version does not exist.
var ErrNotFound = errors.New("schema not found")

// Store persists schema graphs by name.
type Store interface {
	// Load returns the latest version of a schema. The bool is false when
	// no version exists.
	Load(ctx context.Context, name string) (*ir.Schema, bool, error)

	// Save appends a version unless the latest one has the same hash.
	Save(ctx context.Context, name string, s *ir.Schema) (Version, error)

	// Remove deletes every version of a schema. Removing an unknown name
	// returns ErrNotFound.
	Remove(ctx context.Context, name string) error
}

// History is implemented by stores that keep every version.
type History interface {
	// Versions lists the versions of a schema, oldest first.
	Versions(ctx context.Context, name string) ([]Version, error)

	// LoadVersion returns one version of a schema, or ErrNotFound.
	LoadVersion(ctx context.Context, name string, number int) (*ir.Schema, error)

	// List returns the latest version of every schema, ordered by name.
	List(ctx context.Context) ([]Version, error)
}

// Version identifies one saved schema graph.
type Version struct {
	Name   string `db:"name" json:"name"`
	Number int    `db:"version" json:"version"`
	RunID  string `db:"run_id" json:"run_id"`
	Hash   string `db:"content_hash" json:"hash"`
}

// SQLite provides durable schema storage.
// Uses SQLite with WAL mode for concurrent read access.
type SQLite struct {
	db    *sqlx.DB
	runID func() (string, error)
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
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

	return &SQLite{db: db, runID: newRunID}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
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
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the hash lookup index for databases created before it
// was part of schema.sql.
func migrateToV1(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_schemas_hash
		ON schemas(name, content_hash)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
