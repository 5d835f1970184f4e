package harness

import "github.com/roach88/docsql/internal/ir"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every schema assertion and query expectation holds.
	Pass bool

	// Schema is the discovered schema graph.
	Schema *ir.Schema

	// Queries holds the outcome of each query step, in scenario order.
	Queries []QueryResult

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string
}

// QueryResult is the outcome of one query step.
type QueryResult struct {
	Name    string
	Program *ir.Program
	Columns []string
	Rows    [][]ir.Value

	// Err is the compile or execution error, if any.
	Err error
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
