package cursor

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes cursor errors.
type ErrorCode string

const (
	// ErrCodeClosed indicates an operation on a closed cursor.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeBeforeFirst indicates a read before the first Next.
	ErrCodeBeforeFirst ErrorCode = "BEFORE_FIRST"

	// ErrCodeAfterLast indicates a read after the rows ran out.
	ErrCodeAfterLast ErrorCode = "AFTER_LAST"

	// ErrCodeColumnIndex indicates a column index outside 1..len(columns).
	ErrCodeColumnIndex ErrorCode = "COLUMN_INDEX"

	// ErrCodeColumnLabel indicates a label no column carries.
	ErrCodeColumnLabel ErrorCode = "COLUMN_LABEL"

	// ErrCodeForwardOnly indicates a move to the current or an earlier row.
	ErrCodeForwardOnly ErrorCode = "FORWARD_ONLY"

	// ErrCodeOutOfRange indicates a row number below 1.
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// ErrCodeConversion indicates a value with no conversion to the
	// requested representation.
	ErrCodeConversion ErrorCode = "CONVERSION"
)

// Error is a cursor state, navigation or conversion error. These are
// caller errors; the cursor stays usable after one.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // underlying conversion error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is or wraps a cursor Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
