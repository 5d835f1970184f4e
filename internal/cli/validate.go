package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/planspec"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/querysql"
)

// PlanCheck is the validation outcome of one plan file.
type PlanCheck struct {
	File    string   `json:"file"`
	Valid   bool     `json:"valid"`
	Scans   []string `json:"scans,omitempty"`
	SQL     string   `json:"sql,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Line    int      `json:"line,omitempty"`
	Column  int      `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool        `json:"valid"`
	Plans []PlanCheck `json:"plans"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan.cue>...",
		Short: "Check plan files without a schema",
		Long: `Check that CUE plan files match #Plan and build a well-formed plan tree.

Validation needs no schema and no document source; column references
are resolved later, by compile and query.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Plans: make([]PlanCheck, 0, len(files))}
	for _, file := range files {
		check := checkPlan(file)
		if !check.Valid {
			result.Valid = false
		}
		result.Plans = append(result.Plans, check)
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, check := range result.Plans {
			if check.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s (scans %v)\n", check.File, check.Scans)
				if check.SQL != "" {
					fmt.Fprintf(formatter.Writer, "  %s\n", check.SQL)
				}
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", check.File)
			if check.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  line %d, column %d\n", check.Line, check.Column)
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", check.Code, check.Message)
		}
	}

	if !result.Valid {
		return NewExitError(ExitCommandError, "plan validation failed")
	}
	return nil
}

// renderSQL returns the SELECT statement a plan stands for, or "" when the
// plan has no single-statement form.
func renderSQL(plan queryir.Node) string {
	sql, _, err := querysql.NewSQLCompiler().Compile(plan)
	if err != nil {
		slog.Debug("plan has no SQL rendering", "error", err)
		return ""
	}
	return sql
}

// checkPlan loads one plan file.
func checkPlan(file string) PlanCheck {
	check := PlanCheck{File: file}
	plan, err := planspec.LoadFile(file)
	if err != nil {
		check.Code = errorCode(err)
		check.Message = err.Error()
		var compileErr *planspec.CompileError
		if errors.As(err, &compileErr) {
			check.Message = compileErr.Message
			if compileErr.Pos.IsValid() {
				check.Line = compileErr.Pos.Line()
				check.Column = compileErr.Pos.Column()
			}
		}
		return check
	}
	q, err := queryir.Decompose(plan)
	if err != nil {
		check.Code = ErrCodePlan
		check.Message = err.Error()
		return check
	}
	check.Valid = true
	check.Scans = q.Scans()
	check.SQL = renderSQL(plan)
	return check
}
