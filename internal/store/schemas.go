package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/docsql/internal/ir"
)

// record is one row of the schemas table.
type record struct {
	Version
	Format string `db:"format"`
	Body   string `db:"body"`
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// encodeSchema serializes s and computes its content hash.
func encodeSchema(s *ir.Schema) (body, hash string, err error) {
	if s == nil {
		return "", "", errors.New("nil schema")
	}
	hash, err = ir.SchemaHash(s)
	if err != nil {
		return "", "", err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), hash, nil
}

func decodeSchema(format, body string) (*ir.Schema, error) {
	if format != ir.SchemaFormatVersion {
		return nil, fmt.Errorf("unsupported schema format %q", format)
	}
	s := ir.NewSchema()
	if err := json.Unmarshal([]byte(body), s); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return s, nil
}

// Load returns the latest version of a schema.
func (s *SQLite) Load(ctx context.Context, name string) (*ir.Schema, bool, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, `
		SELECT name, version, run_id, content_hash, format, body
		FROM schemas
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load schema %q: %w", name, err)
	}
	schema, err := decodeSchema(rec.Format, rec.Body)
	if err != nil {
		return nil, false, fmt.Errorf("load schema %q: %w", name, err)
	}
	return schema, true, nil
}

// Save appends a new version of a schema. If the latest version already has
// the same content hash, it is returned and nothing is written.
func (s *SQLite) Save(ctx context.Context, name string, schema *ir.Schema) (Version, error) {
	body, hash, err := encodeSchema(schema)
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	}
	defer tx.Rollback()

	var latest Version
	err = tx.GetContext(ctx, &latest, `
		SELECT name, version, run_id, content_hash
		FROM schemas
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	case latest.Hash == hash:
		return latest, nil
	}

	runID, err := s.runID()
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: run id: %w", name, err)
	}
	v := Version{Name: name, Number: latest.Number + 1, RunID: runID, Hash: hash}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO schemas (name, version, run_id, content_hash, format, body)
		VALUES (:name, :version, :run_id, :content_hash, :format, :body)
	`, record{Version: v, Format: ir.SchemaFormatVersion, Body: body})
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	}
	return v, nil
}

// Remove deletes every version of a schema.
func (s *SQLite) Remove(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schemas WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("remove schema %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove schema %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("remove schema %q: %w", name, ErrNotFound)
	}
	return nil
}

// Versions lists the versions of a schema, oldest first. An unknown name
// has no versions.
func (s *SQLite) Versions(ctx context.Context, name string) ([]Version, error) {
	versions := []Version{}
	err := s.db.SelectContext(ctx, &versions, `
		SELECT name, version, run_id, content_hash
		FROM schemas
		WHERE name = ?
		ORDER BY version ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list versions of %q: %w", name, err)
	}
	return versions, nil
}

// LoadVersion returns one version of a schema.
func (s *SQLite) LoadVersion(ctx context.Context, name string, number int) (*ir.Schema, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, `
		SELECT name, version, run_id, content_hash, format, body
		FROM schemas
		WHERE name = ? AND version = ?
	`, name, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load schema %q version %d: %w", name, number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load schema %q version %d: %w", name, number, err)
	}
	return decodeSchema(rec.Format, rec.Body)
}

// List returns the latest version of every schema, ordered by name.
func (s *SQLite) List(ctx context.Context) ([]Version, error) {
	versions := []Version{}
	err := s.db.SelectContext(ctx, &versions, `
		SELECT s.name, s.version, s.run_id, s.content_hash
		FROM schemas s
		JOIN (SELECT name, MAX(version) AS version FROM schemas GROUP BY name) latest
		  ON s.name = latest.name AND s.version = latest.version
		ORDER BY s.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return versions, nil
}

var (
	_ Store   = (*SQLite)(nil)
	_ History = (*SQLite)(nil)
)
