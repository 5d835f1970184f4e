package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "schemas.db")

	out, err := execute(t, "discover", "--data", shopData, "--store", storePath, "--schema", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Saved schema shop version 1 (3 table(s))")
	assert.Contains(t, out, "orders_items")
	assert.Contains(t, out, "array")

	// Identical graph keeps the version.
	out, err = execute(t, "discover", "--data", shopData, "--store", storePath, "--schema", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")
}

func TestDiscover_SelectedCollectionsJSON(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "schemas.db")

	out, err := execute(t, "discover", "customers",
		"--data", shopData, "--store", storePath, "--schema", "people",
		"--scan-method", "full", "--format", "json")
	require.NoError(t, err)

	var result struct {
		Version struct {
			Name    string `json:"name"`
			Version int    `json:"version"`
		} `json:"version"`
		Schema struct {
			Tables []struct {
				Name string `json:"name"`
			} `json:"tables"`
		} `json:"schema"`
	}
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "people", result.Version.Name)
	assert.Equal(t, 1, result.Version.Version)
	require.Len(t, result.Schema.Tables, 1)
	assert.Equal(t, "customers", result.Schema.Tables[0].Name)
}

func TestDiscover_Errors(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "schemas.db")
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"unknown collection", []string{"discover", "invoices"}, ExitFailure, `collection "invoices" not found`},
		{"bad scan method", []string{"discover", "--scan-method", "sideways"}, ExitCommandError, "unknown scan method"},
		{"missing data dir", []string{"discover", "--data", filepath.Join(t.TempDir(), "nope")}, ExitCommandError, "E005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--data", shopData, "--store", storePath}, tt.args...)
			out, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestSchemaCommands(t *testing.T) {
	storePath := discovered(t)

	out, err := execute(t, "schema", "list", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "shop")

	out, err = execute(t, "schema", "show", "shop", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "orders_items (array)")
	assert.Contains(t, out, "items.qty")
	assert.Contains(t, out, "INTEGER")

	out, err = execute(t, "schema", "show", "shop", "--version", "1", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "customers (base)")

	out, err = execute(t, "schema", "history", "shop", "--store", storePath, "--format", "json")
	require.NoError(t, err)
	var versions []struct {
		Version int `json:"version"`
	}
	decodeResponse(t, out, &versions)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)

	out, err = execute(t, "schema", "rm", "shop", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Removed schema shop")

	out, err = execute(t, "schema", "show", "shop", "--store", storePath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E120")

	out, err = execute(t, "schema", "list", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "No schemas saved.")
}

func TestSchemaCommands_UnknownName(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "schemas.db")
	for _, args := range [][]string{
		{"schema", "show", "ghost"},
		{"schema", "show", "ghost", "--version", "2"},
		{"schema", "history", "ghost"},
		{"schema", "rm", "ghost"},
	} {
		out, err := execute(t, append(args, "--store", storePath)...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), "%v", args)
		assert.Contains(t, out, "E120", "%v", args)
	}
}
