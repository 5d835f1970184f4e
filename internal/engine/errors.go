package engine

import (
	"errors"
	"fmt"
)

// ErrSchemaNotFound is returned when a named schema has no stored version.
var ErrSchemaNotFound = errors.New("schema not found")

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeSchemaNotFound indicates the named schema is not in the store.
	ErrCodeSchemaNotFound ErrorCode = "SCHEMA_NOT_FOUND"

	// ErrCodeDiscover indicates sampling or inference failed.
	ErrCodeDiscover ErrorCode = "DISCOVER_FAILED"

	// ErrCodeStore indicates the schema store failed.
	ErrCodeStore ErrorCode = "STORE_FAILED"

	// ErrCodeCompile indicates the plan could not be translated.
	ErrCodeCompile ErrorCode = "COMPILE_FAILED"

	// ErrCodeExecute indicates the executor rejected the program.
	ErrCodeExecute ErrorCode = "EXECUTE_FAILED"
)

// Error is an engine operation failure. The cause is preserved for
// errors.Is and errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Schema is the schema the operation used.
	Schema string

	// QueryID correlates the error with the operation's log lines.
	QueryID string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("%s: schema %q: %v (query=%s)", e.Code, e.Schema, e.Err, e.QueryID)
	}
	return fmt.Sprintf("%s: schema %q: %v", e.Code, e.Schema, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is or wraps an engine Error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsSchemaNotFound reports whether err reports a missing schema.
func IsSchemaNotFound(err error) bool {
	return errors.Is(err, ErrSchemaNotFound)
}
