package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/engine"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/store"
)

// SchemaOptions holds flags for the schema commands.
type SchemaOptions struct {
	*RootOptions
	Version int // 0 means latest
}

// NewSchemaCommand creates the schema command and its subcommands.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and manage saved schemas",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List saved schemas with their latest version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaList(opts, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show <name>",
		Short:         "Show the tables and columns of a schema",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaShow(opts, args[0], cmd)
		},
	}
	show.Flags().IntVar(&opts.Version, "version", 0, "version to show (default latest)")

	history := &cobra.Command{
		Use:           "history <name>",
		Short:         "List every version of a schema",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaHistory(opts, args[0], cmd)
		},
	}

	rm := &cobra.Command{
		Use:           "rm <name>",
		Short:         "Remove every version of a schema",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaRemove(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show, history, rm)
	return cmd
}

func runSchemaList(opts *SchemaOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	versions, err := sess.db.List(ctx)
	if err != nil {
		return fail(formatter, "listing schemas", fmt.Errorf("%w: %w", errStore, err))
	}
	if formatter.JSON() {
		if versions == nil {
			versions = []store.Version{}
		}
		return formatter.Success(versions)
	}
	if len(versions) == 0 {
		fmt.Fprintln(formatter.Writer, "No schemas saved.")
		return nil
	}
	return formatter.Table([]string{"NAME", "VERSION", "HASH"}, versionRows(versions))
}

func runSchemaShow(opts *SchemaOptions, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	var schema *ir.Schema
	if opts.Version > 0 {
		schema, err = sess.db.LoadVersion(ctx, name, opts.Version)
	} else {
		schema, err = sess.engine.Schema(ctx, name)
	}
	if err != nil {
		return fail(formatter, "loading schema", err)
	}

	if formatter.JSON() {
		return formatter.Success(schema)
	}
	for i, tn := range schema.TableNames() {
		if i > 0 {
			fmt.Fprintln(formatter.Writer)
		}
		t, _ := schema.Table(tn)
		fmt.Fprintf(formatter.Writer, "%s (%s)\n", t.Name, t.Kind)
		rows := make([][]string, len(t.Columns))
		for j, c := range t.Columns {
			rows[j] = []string{c.Name, c.Type.String(), nullability(c.Nullable), string(c.Role), c.Path}
		}
		if err := formatter.Table([]string{"  COLUMN", "TYPE", "NULL", "ROLE", "PATH"}, indent(rows)); err != nil {
			return err
		}
	}
	return nil
}

func runSchemaHistory(opts *SchemaOptions, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	versions, err := sess.db.Versions(ctx, name)
	if err != nil {
		return fail(formatter, "listing versions", err)
	}
	if len(versions) == 0 {
		return fail(formatter, "listing versions", engine.ErrSchemaNotFound)
	}
	if formatter.JSON() {
		return formatter.Success(versions)
	}
	return formatter.Table([]string{"NAME", "VERSION", "HASH"}, versionRows(versions))
}

func runSchemaRemove(opts *SchemaOptions, name string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	sess, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return fail(formatter, "opening session", err)
	}
	defer sess.Close(ctx)

	if err := sess.engine.Store().Remove(ctx, name); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: %w", errStore, err)
		}
		return fail(formatter, "removing schema", err)
	}
	if formatter.JSON() {
		return formatter.Success(map[string]string{"removed": name})
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed schema %s\n", name)
	return nil
}

func versionRows(versions []store.Version) [][]string {
	rows := make([][]string, len(versions))
	for i, v := range versions {
		rows[i] = []string{v.Name, strconv.Itoa(v.Number), shortHash(v.Hash)}
	}
	return rows
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func nullability(nullable bool) string {
	if nullable {
		return "yes"
	}
	return "no"
}

func indent(rows [][]string) [][]string {
	for _, row := range rows {
		row[0] = "  " + row[0]
	}
	return rows
}
