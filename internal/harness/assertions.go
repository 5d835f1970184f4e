package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docsql/internal/ir"
)

// EvaluateAssertions checks schema assertions and returns one message per
// failure.
func EvaluateAssertions(schema *ir.Schema, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(schema, a); err != nil {
			errs = append(errs, fmt.Sprintf("schema[%d] (%s %s): %v", i, a.Type, a.Table, err))
		}
	}
	return errs
}

func evaluateAssertion(schema *ir.Schema, a Assertion) error {
	table, ok := schema.Table(a.Table)
	if a.Type == AssertTableAbsent {
		if ok {
			return fmt.Errorf("table exists")
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("table not found (have %s)", strings.Join(schema.TableNames(), ", "))
	}

	switch a.Type {
	case AssertTableExists:
		return nil
	case AssertColumn:
		return assertColumn(table, a)
	case AssertPrimaryKey:
		if !slices.Equal(table.PrimaryKey, a.Columns) {
			return fmt.Errorf("primary key %v, want %v", table.PrimaryKey, a.Columns)
		}
		return nil
	case AssertForeignKey:
		fk := table.ForeignKey
		if fk == nil {
			return fmt.Errorf("no foreign key")
		}
		if fk.RefTable != a.RefTable {
			return fmt.Errorf("references %s, want %s", fk.RefTable, a.RefTable)
		}
		if len(a.Columns) > 0 && !slices.Equal(fk.Columns, a.Columns) {
			return fmt.Errorf("foreign key columns %v, want %v", fk.Columns, a.Columns)
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertColumn(table ir.Table, a Assertion) error {
	col, ok := table.Column(a.Column)
	if !ok {
		return fmt.Errorf("column %s not found (have %s)", a.Column, strings.Join(table.ColumnNames(), ", "))
	}
	if a.SQLType != "" {
		want, err := ir.ParseSQLType(a.SQLType)
		if err != nil {
			return err
		}
		if col.Type != want {
			return fmt.Errorf("column %s has type %s, want %s", a.Column, col.Type, want)
		}
	}
	if a.Nullable != nil && col.Nullable != *a.Nullable {
		return fmt.Errorf("column %s nullable=%t, want %t", a.Column, col.Nullable, *a.Nullable)
	}
	if a.Path != "" && col.Path != a.Path {
		return fmt.Errorf("column %s has path %s, want %s", a.Column, col.Path, a.Path)
	}
	return nil
}

// checkExpectation compares a query outcome with its step's expectation.
func checkExpectation(step QueryStep, qr QueryResult) []string {
	want := step.Expect
	if want.Error != "" {
		switch {
		case qr.Err == nil:
			return []string{fmt.Sprintf("expected error containing %q, query succeeded", want.Error)}
		case !strings.Contains(qr.Err.Error(), want.Error):
			return []string{fmt.Sprintf("error %q does not contain %q", qr.Err, want.Error)}
		}
		return nil
	}
	if qr.Err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", qr.Err)}
	}

	var errs []string
	if want.Columns != nil && !slices.Equal(qr.Columns, want.Columns) {
		errs = append(errs, fmt.Sprintf("columns %v, want %v", qr.Columns, want.Columns))
	}
	if want.Stages != nil {
		var got []string
		for _, k := range qr.Program.StageKinds() {
			got = append(got, string(k))
		}
		if !slices.Equal(got, want.Stages) {
			errs = append(errs, fmt.Sprintf("stages %v, want %v", got, want.Stages))
		}
	}
	if want.Rows != nil {
		errs = append(errs, compareRows(qr.Rows, want.Rows, want.Unordered)...)
	}
	return errs
}

func compareRows(got [][]ir.Value, want [][]Value, unordered bool) []string {
	if len(got) != len(want) {
		return []string{fmt.Sprintf("got %d rows, want %d: %s", len(got), len(want), formatRows(got))}
	}
	if !unordered {
		var errs []string
		for i := range want {
			if !rowEqual(got[i], want[i]) {
				errs = append(errs, fmt.Sprintf("row %d: got %s, want %s", i+1, formatRow(got[i]), formatWant(want[i])))
			}
		}
		return errs
	}

	used := make([]bool, len(got))
	for i, w := range want {
		found := false
		for j, g := range got {
			if !used[j] && rowEqual(g, w) {
				used[j], found = true, true
				break
			}
		}
		if !found {
			return []string{fmt.Sprintf("row %d %s not in result %s", i+1, formatWant(w), formatRows(got))}
		}
	}
	return nil
}

// rowEqual compares cells by value. Numbers of different kinds are equal
// when their magnitudes are.
func rowEqual(got []ir.Value, want []Value) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		w := want[i].Value
		if w == nil {
			w = ir.Null{}
		}
		if !ir.SameClass(got[i], w) || !ir.Equal(got[i], w) {
			return false
		}
	}
	return true
}

func formatRows(rows [][]ir.Value) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = formatRow(r)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatRow(row []ir.Value) string {
	b, err := ir.MarshalCanonical(ir.Array(row))
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(b)
}

func formatWant(row []Value) string {
	vals := make([]ir.Value, len(row))
	for i, v := range row {
		vals[i] = v.Value
	}
	return formatRow(vals)
}
