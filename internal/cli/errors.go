package cli

import (
	"errors"
	"os"

	"github.com/roach88/docsql/internal/engine"
	"github.com/roach88/docsql/internal/planspec"
	"github.com/roach88/docsql/internal/querypipe"
	"github.com/roach88/docsql/internal/store"
)

// Error codes for CLI responses.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeConfig         = "E002" // Configuration error
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeWriteFailed    = "E007" // File write error
	ErrCodePlan           = "E101" // Plan does not match #Plan or fails to build
	ErrCodeResolution     = "E110" // Plan references an unknown table or column
	ErrCodeSchemaNotFound = "E120" // No saved schema with that name
	ErrCodeSource         = "E121" // Document source unreachable or failing
	ErrCodeStore          = "E122" // Schema store failure
)

// errorCode classifies an error returned by the engine or the plan loader.
func errorCode(err error) string {
	var compileErr *planspec.CompileError
	switch {
	case errors.As(err, &compileErr):
		return ErrCodePlan
	case querypipe.IsResolutionError(err):
		return ErrCodeResolution
	case engine.IsSchemaNotFound(err), errors.Is(err, store.ErrNotFound):
		return ErrCodeSchemaNotFound
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case errors.Is(err, errStore), engine.HasCode(err, engine.ErrCodeStore):
		return ErrCodeStore
	case errors.Is(err, errSource), engine.HasCode(err, engine.ErrCodeDiscover), engine.HasCode(err, engine.ErrCodeExecute):
		return ErrCodeSource
	}
	return ErrCodeGeneric
}

// fail reports err through the formatter and returns the matching exit
// error: caller mistakes exit 2, everything else 1.
func fail(formatter *OutputFormatter, message string, err error) error {
	code := errorCode(err)
	_ = formatter.Error(code, message+": "+err.Error(), nil)
	exit := ExitFailure
	switch code {
	case ErrCodeConfig, ErrCodeNotFound, ErrCodePlan, ErrCodeResolution, ErrCodeSchemaNotFound:
		exit = ExitCommandError
	}
	return WrapExitError(exit, message, err)
}
