package querypipe

import (
	"errors"
	"fmt"
)

// ResolutionErrorCode categorizes resolution failures.
type ResolutionErrorCode string

const (
	// ErrCodeUnknownTable indicates a scan of a table absent from the schema.
	ErrCodeUnknownTable ResolutionErrorCode = "UNKNOWN_TABLE"

	// ErrCodeUnknownColumn indicates a column reference that no scanned
	// table provides.
	ErrCodeUnknownColumn ResolutionErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeAmbiguousColumn indicates an unqualified column provided by
	// more than one scanned table.
	ErrCodeAmbiguousColumn ResolutionErrorCode = "AMBIGUOUS_COLUMN"

	// ErrCodeNotGrouped indicates a column referenced above an aggregation
	// that is not one of its group keys.
	ErrCodeNotGrouped ResolutionErrorCode = "NOT_GROUPED"

	// ErrCodeUnknownAggregate indicates an AggRef with no matching aggregate.
	ErrCodeUnknownAggregate ResolutionErrorCode = "UNKNOWN_AGGREGATE"
)

// ResolutionError reports a plan name that cannot be resolved against the
// schema graph. Resolution errors are caller errors and are never retried.
type ResolutionError struct {
	Code   ResolutionErrorCode
	Table  string // table name or qualifier, if any
	Column string // column or aggregate label, if any
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch {
	case e.Column == "":
		return fmt.Sprintf("%s: table %q", e.Code, e.Table)
	case e.Table == "":
		return fmt.Sprintf("%s: %q", e.Code, e.Column)
	default:
		return fmt.Sprintf("%s: %q.%q", e.Code, e.Table, e.Column)
	}
}

// IsResolutionError reports whether err is or wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// UnsupportedError reports a well-formed plan the translator cannot express
// as a pipeline.
type UnsupportedError struct {
	Construct string
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return "unsupported plan: " + e.Construct
}

func unknownTable(name string) error {
	return &ResolutionError{Code: ErrCodeUnknownTable, Table: name}
}

func unknownColumn(table, column string) error {
	return &ResolutionError{Code: ErrCodeUnknownColumn, Table: table, Column: column}
}
