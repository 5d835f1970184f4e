package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	storePath := discovered(t)

	out, err := execute(t, "compile", filepath.Join(planDir, "heavy_lines.cue"), "--schema", "shop", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled")
	assert.Contains(t, out, "on collection orders")
	assert.Contains(t, out, "SELECT sku FROM orders_items WHERE qty >= ?")
	assert.Contains(t, out, `{"$unwind":`)
	assert.Contains(t, out, "sku")
	assert.Contains(t, out, "VARCHAR")
}

func TestCompile_OutputFile(t *testing.T) {
	storePath := discovered(t)
	outputFile := filepath.Join(t.TempDir(), "program.json")

	out, err := execute(t, "compile", filepath.Join(planDir, "heavy_lines.cue"),
		"--schema", "shop", "--store", storePath, "-o", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote program to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var prog struct {
		Collection string           `json:"collection"`
		Pipeline   []map[string]any `json:"pipeline"`
		Columns    []struct {
			Label string `json:"label"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(data, &prog))
	assert.Equal(t, "orders", prog.Collection)
	assert.NotEmpty(t, prog.Pipeline)
	require.Len(t, prog.Columns, 1)
	assert.Equal(t, "sku", prog.Columns[0].Label)
}

func TestCompile_Errors(t *testing.T) {
	storePath := discovered(t)
	tests := []struct {
		name    string
		plan    string
		schema  string
		wantOut string
	}{
		{"unknown column", "unknown_column.cue", "shop", "E110"},
		{"invalid plan", "broken.cue", "shop", "E101"},
		{"missing plan file", "missing.cue", "shop", "E005"},
		{"unknown schema", "heavy_lines.cue", "warehouse", "E120"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "compile", filepath.Join(planDir, tt.plan), "--schema", tt.schema, "--store", storePath)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestQuery(t *testing.T) {
	storePath := discovered(t)

	out, err := execute(t, "query", filepath.Join(planDir, "spend.cue"),
		"--schema", "shop", "--data", shopData, "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "spent")
	assert.Regexp(t, `ada\s+42`, out)
	assert.Regexp(t, `bob\s+5`, out)
	assert.Contains(t, out, "(2 row(s))")
}

func TestQuery_JSONMaxRows(t *testing.T) {
	storePath := discovered(t)

	out, err := execute(t, "query", filepath.Join(planDir, "heavy_lines.cue"),
		"--schema", "shop", "--data", shopData, "--store", storePath,
		"--format", "json", "--max-rows", "1")
	require.NoError(t, err)

	var result struct {
		Columns []struct {
			Label string `json:"label"`
			Type  string `json:"type"`
		} `json:"columns"`
		Rows      []json.RawMessage `json:"rows"`
		Truncated bool              `json:"truncated"`
	}
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Columns, 1)
	assert.Equal(t, "sku", result.Columns[0].Label)
	assert.Equal(t, "VARCHAR", result.Columns[0].Type)
	require.Len(t, result.Rows, 1)
	assert.JSONEq(t, `["a"]`, string(result.Rows[0]))
	assert.True(t, result.Truncated)
}

func TestQuery_UnknownSchemaJSON(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "schemas.db")

	out, err := execute(t, "query", filepath.Join(planDir, "heavy_lines.cue"),
		"--data", shopData, "--store", storePath, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSchemaNotFound, resp.Error.Code)
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate",
		filepath.Join(planDir, "heavy_lines.cue"),
		filepath.Join(planDir, "spend.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+filepath.Join(planDir, "heavy_lines.cue")+" (scans [orders_items])")
	assert.Contains(t, out, "(scans [orders customers])")
	assert.Contains(t, out, "SELECT customers.name, SUM(orders.total) AS spent"+
		" FROM orders JOIN customers ON orders.customer = customers._id"+
		" GROUP BY customers.name ORDER BY customers.name")
}

func TestValidate_Invalid(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json",
		filepath.Join(planDir, "unknown_column.cue"),
		filepath.Join(planDir, "broken.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var result ValidationResult
	decodeResponse(t, out, &result)
	assert.False(t, result.Valid)
	require.Len(t, result.Plans, 2)
	// Column references are not checked without a schema.
	assert.True(t, result.Plans[0].Valid)
	assert.Contains(t, result.Plans[0].SQL, "discount")
	assert.False(t, result.Plans[1].Valid)
	assert.Equal(t, ErrCodePlan, result.Plans[1].Code)
	assert.Positive(t, result.Plans[1].Line)
}
