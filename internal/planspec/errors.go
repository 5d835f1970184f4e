package planspec

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError represents a plan error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info, preferring a position in
	// the plan file over one in the embedded definition.
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		pos := positions[0]
		for _, p := range positions {
			if p.Filename() != definitionFile {
				pos = p
				break
			}
		}
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     pos,
		}
	}

	return err
}
