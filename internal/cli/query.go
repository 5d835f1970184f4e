package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/cursor"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/planspec"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Schema  string
	MaxRows int // 0 means no limit
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Columns   []ir.ColumnMeta   `json:"columns"`
	Rows      []json.RawMessage `json:"rows"`
	Truncated bool              `json:"truncated,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <plan.cue>",
		Short: "Run a plan and print its rows",
		Long: `Compile a CUE plan against a saved schema, run the pipeline on the
document source and print the result rows.

Examples:
  docsql query plans/top_customers.cue --schema shop
  docsql query plans/items.cue --data ./dump --format json --max-rows 100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "default", "schema to resolve tables against")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "stop after this many rows (0 for all)")

	return cmd
}

func runQuery(opts *QueryOptions, planFile string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	plan, err := planspec.LoadFile(planFile)
	if err != nil {
		return fail(formatter, "loading plan", err)
	}

	sess, err := openSession(ctx, opts.RootOptions, true)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	cur, err := sess.engine.Query(ctx, opts.Schema, plan)
	if err != nil {
		return fail(formatter, "query failed", err)
	}
	defer cur.Close(ctx)

	rows, truncated, err := readRows(cmd, cur, opts.MaxRows)
	if err != nil {
		return fail(formatter, "reading rows", fmt.Errorf("%w: %w", errSource, err))
	}
	formatter.VerboseLog("Read %d row(s)", len(rows))

	if formatter.JSON() {
		result := QueryResult{Columns: cur.Columns(), Rows: make([]json.RawMessage, len(rows)), Truncated: truncated}
		for i, row := range rows {
			data, err := ir.MarshalCanonical(ir.Array(row))
			if err != nil {
				return err
			}
			result.Rows[i] = data
		}
		return formatter.Success(result)
	}

	header := make([]string, len(cur.Columns()))
	for i, c := range cur.Columns() {
		header[i] = c.Label
	}
	text := make([][]string, len(rows))
	for i, row := range rows {
		text[i] = make([]string, len(row))
		for j, v := range row {
			text[i][j] = cellText(v)
		}
	}
	if err := formatter.Table(header, text); err != nil {
		return err
	}
	suffix := ""
	if truncated {
		suffix = ", truncated"
	}
	fmt.Fprintf(formatter.Writer, "(%d row(s)%s)\n", len(rows), suffix)
	return nil
}

// readRows drains the cursor. It stops after limit rows when limit > 0 and
// reports whether more rows remained.
func readRows(cmd *cobra.Command, cur *cursor.Cursor, limit int) ([][]ir.Value, bool, error) {
	ctx := cmd.Context()
	var rows [][]ir.Value
	for {
		ok, err := cur.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return rows, false, nil
		}
		if limit > 0 && len(rows) == limit {
			return rows, true, nil
		}
		row := make([]ir.Value, len(cur.Columns()))
		for i := range row {
			if row[i], err = cur.Value(i + 1); err != nil {
				return nil, false, err
			}
		}
		rows = append(rows, row)
	}
}

// cellText renders one value for the text table.
func cellText(v ir.Value) string {
	if ir.IsNull(v) {
		return "NULL"
	}
	s, _, err := coerce.ToString(v)
	if err != nil {
		return v.Kind().String()
	}
	return s
}
