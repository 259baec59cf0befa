package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/progress"
	"github.com/roach88/cohort/internal/session"
	"github.com/roach88/cohort/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (group size mismatch, advancement failed, etc.)
	ExitCommandError = 2 // Command error (bad manifest, database not found, etc.)
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric           = "ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeGroupSizeMismatch = "GROUP_SIZE_MISMATCH"
	ErrCodeCreationFailed    = "SESSION_CREATION_FAILED"
	ErrCodeAdvancementFailed = "ADVANCEMENT_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "GROUP_SIZE_MISMATCH", "NOT_FOUND", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit, details := classify(err)
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, message, err)
}

// classify maps a domain error to its output code, exit code and details.
func classify(err error) (string, int, any) {
	var (
		cfgErr  *config.Error
		groupEr *session.GroupSizeError
		create  *session.CreationError
		advance *progress.AdvancementError
	)
	switch {
	case errors.As(err, &groupEr):
		return ErrCodeGroupSizeMismatch, ExitFailure, map[string]any{
			"config": groupEr.Config, "participants": groupEr.Count, "divisor": groupEr.Divisor,
		}
	case errors.As(err, &create):
		var details any
		if create.Hint != "" {
			details = map[string]any{"hint": create.Hint}
		}
		return ErrCodeCreationFailed, ExitFailure, details
	case errors.As(err, &advance):
		return ErrCodeAdvancementFailed, ExitFailure, map[string]any{
			"participant": advance.Participant, "code": advance.Code, "url": advance.URL, "status": advance.StatusCode,
		}
	case config.IsNotFound(err), errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitCommandError, nil
	case errors.As(err, &cfgErr):
		return string(cfgErr.Code), ExitCommandError, map[string]any{"field": cfgErr.Field}
	default:
		return ErrCodeGeneric, ExitCommandError, nil
	}
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW,
		Verbose:   opts.Verbose,
	}
}
