package harness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/docsql/internal/cursor"
	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/engine"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/memdb"
	"github.com/roach88/docsql/internal/native"
	"github.com/roach88/docsql/internal/planspec"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/store"
	"github.com/roach88/docsql/internal/testutil"
)

// schemaName is the name scenarios save their schema under.
const schemaName = "scenario"

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database and schema store,
// with sequential query ids, so repeated runs produce identical results.
//
// Execution flow:
//  1. Load data files and inline collections into memory
//  2. Discover and save the schema
//  3. Evaluate schema assertions
//  4. Compile and run each query, comparing its rows
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	db, err := loadData(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	eng := engine.New(store.NewMemory(), db,
		engine.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)))

	colls, err := discoverTargets(db, scenario.Discovery.Collections)
	if err != nil {
		return nil, err
	}
	method, _ := discovery.ParseScanMethod(scenario.Discovery.ScanMethod)
	opts := discovery.Options{
		SampleSize: scenario.Discovery.SampleSize,
		Method:     method,
		Workers:    1,
	}
	schema, _, err := eng.Discover(ctx, schemaName, colls, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover schema: %w", err)
	}

	result := NewResult()
	result.Schema = schema
	for _, msg := range EvaluateAssertions(schema, scenario.Schema) {
		result.AddError(msg)
	}

	for _, step := range scenario.Queries {
		qr := runQuery(ctx, eng, scenario, step)
		result.Queries = append(result.Queries, qr)
		for _, msg := range checkExpectation(step, qr) {
			result.AddError(fmt.Sprintf("query %s: %s", step.Name, msg))
		}
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"tables", len(schema.Tables),
		"queries", len(result.Queries),
	)
	return result, nil
}

func loadData(s *Scenario) (*memdb.DB, error) {
	db := memdb.New()
	if s.Data != "" {
		loaded, err := memdb.LoadDir(s.resolve(s.Data))
		if err != nil {
			return nil, err
		}
		db = loaded
	}
	for _, name := range slices.Sorted(maps.Keys(s.Collections)) {
		docs, err := toDocuments(s.Collections[name])
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		db.Insert(name, docs...)
	}
	return db, nil
}

func discoverTargets(db *memdb.DB, names []string) ([]native.Collection, error) {
	if len(names) == 0 {
		names = db.Collections()
	}
	known := db.Collections()
	out := make([]native.Collection, 0, len(names))
	for _, name := range names {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("discovery: unknown collection %q", name)
		}
		out = append(out, db.Collection(name))
	}
	return out, nil
}

func (s *Scenario) plan(step QueryStep) (queryir.Node, error) {
	if step.PlanFile != "" {
		return planspec.LoadFile(s.resolve(step.PlanFile))
	}
	return planspec.Parse(step.Name+".cue", []byte(step.Plan))
}

func runQuery(ctx context.Context, eng *engine.Engine, s *Scenario, step QueryStep) QueryResult {
	qr := QueryResult{Name: step.Name}
	plan, err := s.plan(step)
	if err != nil {
		qr.Err = err
		return qr
	}
	prog, err := eng.Compile(ctx, schemaName, plan)
	if err != nil {
		qr.Err = err
		return qr
	}
	qr.Program = prog

	cur, err := eng.Execute(ctx, prog)
	if err != nil {
		qr.Err = err
		return qr
	}
	defer cur.Close(ctx)

	for _, c := range cur.Columns() {
		qr.Columns = append(qr.Columns, c.Label)
	}
	qr.Rows, qr.Err = readRows(ctx, cur)
	return qr
}

func readRows(ctx context.Context, cur *cursor.Cursor) ([][]ir.Value, error) {
	var rows [][]ir.Value
	n := len(cur.Columns())
	for {
		ok, err := cur.Next(ctx)
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		row := make([]ir.Value, n)
		for i := range row {
			if row[i], err = cur.Value(i + 1); err != nil {
				return rows, err
			}
		}
		rows = append(rows, row)
	}
}
