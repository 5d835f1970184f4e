package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario loads documents, discovers their schema, checks the schema
// graph and runs plans against it, comparing the rows they return.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Data is a directory of Extended JSON collection files.
	// Relative to the scenario file.
	Data string `yaml:"data,omitempty"`

	// Collections holds inline documents by collection name.
	Collections map[string][]Value `yaml:"collections,omitempty"`

	// Discovery configures the discovery run.
	Discovery DiscoveryStep `yaml:"discovery,omitempty"`

	// Schema asserts on the discovered schema graph.
	Schema []Assertion `yaml:"schema,omitempty"`

	// Queries run plans and check their results.
	Queries []QueryStep `yaml:"queries,omitempty"`

	// dir is the directory relative paths resolve against.
	dir string
}

// DiscoveryStep configures discovery for a scenario.
type DiscoveryStep struct {
	SampleSize int64  `yaml:"sample_size,omitempty"`
	ScanMethod string `yaml:"scan_method,omitempty"`

	// Collections restricts discovery; empty means every collection.
	Collections []string `yaml:"collections,omitempty"`
}

// QueryStep runs one plan.
type QueryStep struct {
	// Name identifies the query in results and golden files.
	Name string `yaml:"name"`

	// Plan is inline CUE source defining a plan struct.
	Plan string `yaml:"plan,omitempty"`

	// PlanFile is a CUE plan file, relative to the scenario file.
	PlanFile string `yaml:"plan_file,omitempty"`

	// Expect specifies the expected outcome.
	Expect Expectation `yaml:"expect"`
}

// Expectation specifies the expected result of a query.
type Expectation struct {
	// Columns lists the expected column labels, in order.
	Columns []string `yaml:"columns,omitempty"`

	// Rows lists the expected rows. Cells compare by value, so 2 matches
	// both an int and a long.
	Rows [][]Value `yaml:"rows,omitempty"`

	// Unordered compares rows as a multiset.
	Unordered bool `yaml:"unordered,omitempty"`

	// Stages lists the expected pipeline stage kinds, in order.
	Stages []string `yaml:"stages,omitempty"`

	// Error is a substring the query error must contain. When set, the
	// query must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks one fact about the discovered schema.
type Assertion struct {
	// Type specifies the assertion type:
	// - "table_exists": Table is present
	// - "table_absent": Table is not present
	// - "column": Column exists, optionally with SQLType and Nullable
	// - "primary_key": Table's primary key equals Columns
	// - "foreign_key": Table references RefTable through Columns
	Type string `yaml:"type"`

	Table    string   `yaml:"table"`
	Column   string   `yaml:"column,omitempty"`
	SQLType  string   `yaml:"sql_type,omitempty"`
	Nullable *bool    `yaml:"nullable,omitempty"`
	Path     string   `yaml:"path,omitempty"`
	Columns  []string `yaml:"columns,omitempty"`
	RefTable string   `yaml:"ref_table,omitempty"`
}

// Assertion type constants.
const (
	AssertTableExists = "table_exists"
	AssertTableAbsent = "table_absent"
	AssertColumn      = "column"
	AssertPrimaryKey  = "primary_key"
	AssertForeignKey  = "foreign_key"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. Relative paths resolve against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = dir

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every .yaml and .yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var out []*Scenario
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenarios in %s", dir)
	}
	return out, nil
}

// resolve makes a scenario-relative path usable.
func (s *Scenario) resolve(path string) string {
	if filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Data == "" && len(s.Collections) == 0 {
		return fmt.Errorf("data or collections is required")
	}
	if len(s.Schema) == 0 && len(s.Queries) == 0 {
		return fmt.Errorf("schema or queries is required and must be non-empty")
	}

	if s.Data != "" {
		if info, err := os.Stat(s.resolve(s.Data)); err != nil || !info.IsDir() {
			return fmt.Errorf("data directory not found: %s", s.Data)
		}
	}
	for name, docs := range s.Collections {
		if _, err := toDocuments(docs); err != nil {
			return fmt.Errorf("collections.%s: %w", name, err)
		}
	}
	if _, err := discovery.ParseScanMethod(s.Discovery.ScanMethod); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	for i, a := range s.Schema {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	var names []string
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if slices.Contains(names, q.Name) {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		names = append(names, q.Name)
		if (q.Plan == "") == (q.PlanFile == "") {
			return fmt.Errorf("queries[%d]: exactly one of plan and plan_file is required", i)
		}
		if q.PlanFile != "" {
			if _, err := os.Stat(s.resolve(q.PlanFile)); os.IsNotExist(err) {
				return fmt.Errorf("queries[%d]: plan file not found: %s", i, q.PlanFile)
			}
		}
		if q.Expect.Error != "" && (len(q.Expect.Rows) > 0 || len(q.Expect.Columns) > 0) {
			return fmt.Errorf("queries[%d].expect: error excludes columns and rows", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("schema[%d]: type is required", index)
	}
	if a.Table == "" {
		return fmt.Errorf("schema[%d]: table is required", index)
	}

	switch a.Type {
	case AssertTableExists, AssertTableAbsent:
	case AssertColumn:
		if a.Column == "" {
			return fmt.Errorf("schema[%d]: column is required for column", index)
		}
		if a.SQLType != "" {
			if _, err := ir.ParseSQLType(a.SQLType); err != nil {
				return fmt.Errorf("schema[%d]: %w", index, err)
			}
		}
	case AssertPrimaryKey:
		if len(a.Columns) == 0 {
			return fmt.Errorf("schema[%d]: columns list is required for primary_key", index)
		}
	case AssertForeignKey:
		if a.RefTable == "" {
			return fmt.Errorf("schema[%d]: ref_table is required for foreign_key", index)
		}
	default:
		return fmt.Errorf("schema[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
