package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParticipantCountRequired is returned when no participant count is given
// and the special category does not imply one.
var ErrParticipantCountRequired = errors.New("participant count is required unless the session is a demo, bots or test session")

// GroupSizeError reports a participant count that the session's apps cannot
// divide into whole groups. It is raised before anything is written.
type GroupSizeError struct {
	Config  string
	Count   int
	Divisor int
}

func (e *GroupSizeError) Error() string {
	return fmt.Sprintf("GROUP_SIZE_MISMATCH: session config %q needs a participant count that is a multiple of %d, got %d",
		e.Config, e.Divisor, e.Count)
}

// CreationError reports a failure after the transaction started. Everything
// written so far has been rolled back.
type CreationError struct {
	Config string

	// Hint suggests a remedy when the cause looks like a schema problem.
	Hint string

	Err error
}

// resetHint is attached when a storage error names a table or column, which
// almost always means the database predates the current schema.
const resetHint = "try resetting the database"

func newCreationError(config string, err error) *CreationError {
	ce := &CreationError{Config: config, Err: err}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "table") || strings.Contains(msg, "column") {
		ce.Hint = resetHint
	}
	return ce
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("SESSION_CREATION_FAILED: create session from %q: %v", e.Config, e.Err)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// IsGroupSizeMismatch reports whether err is (or wraps) a GroupSizeError.
func IsGroupSizeMismatch(err error) bool {
	var ge *GroupSizeError
	return errors.As(err, &ge)
}

// IsCreationFailed reports whether err is (or wraps) a CreationError.
func IsCreationFailed(err error) bool {
	var ce *CreationError
	return errors.As(err, &ce)
}
