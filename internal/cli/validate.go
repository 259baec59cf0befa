package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Manifest string   `json:"manifest"`
	Configs  []string `json:"configs,omitempty"`
	Apps     []string `json:"apps,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate an experiment manifest",
		Long: `Validate an experiment manifest without touching the database.

Checks the manifest against its schema, then validates every app, session
config and room: required keys, names, app sequences, monetary fields and
group sizes. Rooms with a participant label file must point at a readable
UTF-8 file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Settings.Manifest
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail("manifest not found", err)
	}
	formatter.VerboseLog("Validating %s", path)

	reg, err := config.LoadRegistry(path)
	if err != nil {
		code := config.ErrorCodeOf(err)
		if code == "" {
			code = config.ErrCodeInvalidManifest
		}
		_ = formatter.Error(string(code), err.Error(), nil)
		// Invalid manifests are validation failures (exit code 1).
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	result := ValidationResult{
		Valid:    true,
		Manifest: path,
		Configs:  reg.ConfigNames(),
		Apps:     reg.Apps().Names(),
	}
	for _, room := range reg.Rooms() {
		if room.HasParticipantLabels() {
			if _, err := room.ParticipantLabels(); err != nil {
				_ = formatter.Error(string(config.ErrCodeInvalidValue), err.Error(), nil)
				return WrapExitError(ExitFailure, "validation failed", err)
			}
		}
		result.Rooms = append(result.Rooms, room.Name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid: %d session config(s), %d app(s), %d room(s)\n",
		path, len(result.Configs), len(result.Apps), len(result.Rooms))
	return nil
}
