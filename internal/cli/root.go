package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string // overrides data.dir
	StorePath  string // overrides store.path

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsql",
		Short: "docsql - relational views of schemaless documents",
		Long: `Discover relational tables in a document database and query them.

Discovery samples each collection and saves a versioned schema graph:
one base table per collection and one child table per nested array.
Plans written in CUE are compiled against a saved schema into an
aggregation pipeline and their rows are read through a typed cursor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}
			if opts.DataDir != "" {
				cfg.Data.Dir = opts.DataDir
			}
			if opts.StorePath != "" {
				cfg.Store.Path = opts.StorePath
			}
			opts.Config = cfg
			return setupLogging(cmd.ErrOrStderr(), opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./docsql.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "", "read collections from a directory of Extended JSON files instead of MongoDB")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store", "", "schema store database path")

	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setupLogging installs the default slog logger: text on stderr, JSON when
// --format json, Debug level under --verbose.
func setupLogging(w io.Writer, opts *RootOptions) error {
	level, err := opts.Config.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, handlerOpts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter builds the output formatter of a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
