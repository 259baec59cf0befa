package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database string
	Manifest string
	BaseURL  string

	// Settings are read from COHORT_* variables; flags that were set
	// explicitly override them.
	Settings config.Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cohort CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "cohort - multiplayer experiment sessions",
		Long: `Create and run multiplayer, multi-round economic experiment sessions.

Sessions are built from the session configs in an experiment manifest
(cohort.yaml or cohort.cue). Each participant gets a precomputed sequence
of pages across every app and round, and stuck participants can be pushed
forward from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (env COHORT_DB)")
	cmd.PersistentFlags().StringVarP(&opts.Manifest, "manifest", "m", "", "experiment manifest (env COHORT_MANIFEST)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "page server address (env COHORT_BASE_URL)")

	cmd.AddCommand(NewConfigsCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewRoutesCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewRoomsCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))

	return cmd
}

// load reads environment settings, applies flag overrides and installs the
// process logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		settings.Database = o.Database
	}
	if flags.Changed("manifest") {
		settings.Manifest = o.Manifest
	}
	if flags.Changed("base-url") {
		settings.BaseURL = o.BaseURL
	}
	o.Settings = settings

	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
