package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainSchema  = "docsql/schema/v1"
	DomainProgram = "docsql/program/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaHash computes the content hash of a schema graph.
// Two schemas are Equal iff their hashes match; the store uses this to
// skip saving an unchanged re-discovery.
func SchemaHash(s *Schema) (string, error) {
	canonical, err := MarshalCanonical(s.canonical())
	if err != nil {
		return "", fmt.Errorf("SchemaHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// ProgramHash computes the content hash of a compiled program.
func ProgramHash(p *Program) (string, error) {
	canonical, err := MarshalCanonical(p.canonical())
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// MustSchemaHash is like SchemaHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSchemaHash(s *Schema) string {
	h, err := SchemaHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (s *Schema) canonical() map[string]any {
	tables := make(map[string]any, len(s.Tables))
	for name, t := range s.Tables {
		tables[name] = t.canonical()
	}
	return map[string]any{
		"format": SchemaFormatVersion,
		"bases":  stringsToAny(s.Bases),
		"tables": tables,
	}
}

func (t Table) canonical() map[string]any {
	cols := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		kinds := make([]any, len(c.Kinds))
		for j, k := range c.Kinds {
			kinds[j] = k.String()
		}
		cols[i] = map[string]any{
			"name":     c.Name,
			"path":     c.Path,
			"type":     c.Type.String(),
			"nullable": c.Nullable,
			"ordinal":  c.Ordinal,
			"role":     string(c.Role),
			"kinds":    kinds,
		}
	}
	m := map[string]any{
		"name":        t.Name,
		"collection":  t.Collection,
		"kind":        string(t.Kind),
		"path":        t.Path,
		"parent":      t.Parent,
		"depth":       t.Depth,
		"array_depth": t.ArrayDepth,
		"columns":     cols,
		"primary_key": stringsToAny(t.PrimaryKey),
		"array_index": t.ArrayIndexColumn,
		"value":       t.ValueColumn,
	}
	if t.ForeignKey != nil {
		m["foreign_key"] = map[string]any{
			"columns":     stringsToAny(t.ForeignKey.Columns),
			"ref_table":   t.ForeignKey.RefTable,
			"ref_columns": stringsToAny(t.ForeignKey.RefColumns),
		}
	}
	return m
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
