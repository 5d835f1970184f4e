package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/store"
)

// DiscoverOptions holds flags for the discover command.
type DiscoverOptions struct {
	*RootOptions
	Schema     string
	SampleSize int64
	ScanMethod string
	Workers    int
}

// DiscoverResult is the JSON payload of the discover command.
type DiscoverResult struct {
	Version store.Version `json:"version"`
	Schema  *ir.Schema    `json:"schema"`
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiscoverOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "discover [collection...]",
		Short: "Sample collections and save their schema graph",
		Long: `Sample documents from each collection, infer its tables and save the
merged schema graph as a new version of the named schema.

With no collection arguments every collection of the source is sampled.
Saving a graph identical to the latest version keeps that version.

Examples:
  docsql discover --schema shop
  docsql discover orders customers --schema shop --sample-size 5000
  docsql discover --data ./dump --scan-method random`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "default", "name to save the schema under")
	cmd.Flags().Int64Var(&opts.SampleSize, "sample-size", 0, "documents sampled per collection (default from config)")
	cmd.Flags().StringVar(&opts.ScanMethod, "scan-method", "", "forward, reverse, full or random (default from config)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "collections sampled in parallel (default from config)")

	return cmd
}

func runDiscover(opts *DiscoverOptions, names []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	discOpts := opts.Config.DiscoveryOptions()
	if opts.SampleSize > 0 {
		discOpts.SampleSize = opts.SampleSize
	}
	if opts.Workers > 0 {
		discOpts.Workers = opts.Workers
	}
	if opts.ScanMethod != "" {
		method, err := discovery.ParseScanMethod(opts.ScanMethod)
		if err != nil {
			return outputUsageError(formatter, err)
		}
		discOpts.Method = method
	}

	sess, err := openSession(ctx, opts.RootOptions, true)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	colls, err := sess.src.collections(ctx, names)
	if err != nil {
		return fail(formatter, "listing collections", fmt.Errorf("%w: %w", errSource, err))
	}
	formatter.VerboseLog("Sampling %d collection(s) with %s scan, sample size %d",
		len(colls), discOpts.Method, discOpts.SampleSize)

	schema, version, err := sess.engine.Discover(ctx, opts.Schema, colls, discOpts)
	if err != nil {
		return fail(formatter, "discovery failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(DiscoverResult{Version: version, Schema: schema})
	}
	fmt.Fprintf(formatter.Writer, "✓ Saved schema %s version %d (%d table(s))\n\n",
		version.Name, version.Number, len(schema.Tables))
	return writeTables(formatter, schema)
}

// writeTables lists a schema's tables as text.
func writeTables(formatter *OutputFormatter, schema *ir.Schema) error {
	rows := make([][]string, 0, len(schema.Tables))
	for _, name := range schema.TableNames() {
		t, _ := schema.Table(name)
		parent := "-"
		if t.ForeignKey != nil {
			parent = t.ForeignKey.RefTable
		}
		rows = append(rows, []string{
			t.Name,
			string(t.Kind),
			fmt.Sprint(len(t.Columns)),
			strings.Join(t.PrimaryKey, ","),
			parent,
		})
	}
	return formatter.Table([]string{"TABLE", "KIND", "COLUMNS", "PRIMARY KEY", "PARENT"}, rows)
}

// outputUsageError reports a bad flag or argument.
func outputUsageError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid arguments", err)
}
