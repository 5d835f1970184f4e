package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsql/internal/ir"
)

// Snapshot captures a scenario result for golden comparison: the schema
// graph and, per query, the compiled pipeline and the rows it returned.
// It serializes through ir.MarshalCanonical, so bytes are stable.
func Snapshot(name string, r *Result) ([]byte, error) {
	tables := make([]any, 0, len(r.Schema.Tables))
	for _, tn := range r.Schema.TableNames() {
		t, _ := r.Schema.Table(tn)
		tables = append(tables, tableSnapshot(t))
	}

	queries := make([]any, 0, len(r.Queries))
	for _, q := range r.Queries {
		entry := map[string]any{"name": q.Name}
		if q.Err != nil {
			entry["error"] = q.Err.Error()
		}
		if q.Program != nil {
			entry["collection"] = q.Program.Collection
			entry["pipeline"] = q.Program.Pipeline()
			cols := make([]any, len(q.Program.Columns))
			for i, c := range q.Program.Columns {
				cols[i] = map[string]any{
					"label":    c.Label,
					"field":    c.Field,
					"type":     c.Type.String(),
					"nullable": c.Nullable,
				}
			}
			entry["columns"] = cols
		}
		if q.Err == nil {
			rows := make([]any, len(q.Rows))
			for i, row := range q.Rows {
				rows[i] = ir.Array(row)
			}
			entry["rows"] = rows
		}
		queries = append(queries, entry)
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"tables":   tables,
		"queries":  queries,
	})
}

func tableSnapshot(t ir.Table) map[string]any {
	cols := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = map[string]any{
			"name":     c.Name,
			"path":     c.Path,
			"type":     c.Type.String(),
			"nullable": c.Nullable,
			"role":     string(c.Role),
		}
	}
	out := map[string]any{
		"name":        t.Name,
		"kind":        string(t.Kind),
		"columns":     cols,
		"primary_key": t.PrimaryKey,
	}
	if t.ForeignKey != nil {
		out["foreign_key"] = map[string]any{
			"columns":   t.ForeignKey.Columns,
			"ref_table": t.ForeignKey.RefTable,
		}
	}
	return out
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a result's snapshot against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
