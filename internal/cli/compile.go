package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/planspec"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema string
	Output string // output file path
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <plan.cue>",
		Short: "Compile a plan to an aggregation pipeline",
		Long: `Compile a CUE plan against a saved schema and print the aggregation
pipeline together with the metadata of its output columns.

Nothing is executed; no document source is contacted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "default", "schema to resolve tables against")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled program to a file")

	return cmd
}

func runCompile(opts *CompileOptions, planFile string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	plan, err := planspec.LoadFile(planFile)
	if err != nil {
		return fail(formatter, "loading plan", err)
	}
	formatter.VerboseLog("Loaded plan %s", planFile)

	sess, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	prog, err := sess.engine.Compile(ctx, opts.Schema, plan)
	if err != nil {
		return fail(formatter, "compilation failed", err)
	}

	if opts.Output != "" {
		if err := writeProgram(prog, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitFailure, "writing output file", err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(prog)
	}
	return outputProgram(formatter, prog, renderSQL(plan), opts.Output)
}

// outputProgram prints a program as text: the SQL form of the plan, one
// stage per line, then the column table.
func outputProgram(formatter *OutputFormatter, prog *ir.Program, sql, outputFile string) error {
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d stage(s) on collection %s\n\n", len(prog.Stages), prog.Collection)

	if sql != "" {
		fmt.Fprintln(w, "SQL:")
		fmt.Fprintf(w, "  %s\n\n", sql)
	}

	fmt.Fprintln(w, "Pipeline:")
	for _, stage := range prog.Pipeline() {
		data, err := ir.MarshalCanonical(stage)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Columns:")
	rows := make([][]string, len(prog.Columns))
	for i, c := range prog.Columns {
		rows[i] = []string{"  " + strconv.Itoa(c.Ordinal), c.Label, c.Type.String(), nullability(c.Nullable), c.Field}
	}
	if err := formatter.Table([]string{"  #", "LABEL", "TYPE", "NULL", "FIELD"}, rows); err != nil {
		return err
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote program to %s\n", outputFile)
	}
	return nil
}

// writeProgram writes a program to a file in canonical JSON.
func writeProgram(prog *ir.Program, filename string) error {
	data, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("marshaling program: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
