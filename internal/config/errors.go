package config

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeMissingKey indicates a required session config key is absent.
	ErrCodeMissingKey ErrorCode = "MISSING_KEY"

	// ErrCodeInvalidName indicates a name that is not alphanumeric/underscore.
	ErrCodeInvalidName ErrorCode = "INVALID_NAME"

	// ErrCodeEmptyAppSequence indicates an app_sequence with no apps.
	ErrCodeEmptyAppSequence ErrorCode = "EMPTY_APP_SEQUENCE"

	// ErrCodeDuplicateApp indicates the same app listed twice in app_sequence.
	ErrCodeDuplicateApp ErrorCode = "DUPLICATE_APP"

	// ErrCodeUnknownApp indicates an app_sequence entry with no registered app.
	ErrCodeUnknownApp ErrorCode = "UNKNOWN_APP"

	// ErrCodeInvalidValue indicates a value of the wrong type or range.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeDuplicateConfig indicates two session configs with the same name.
	ErrCodeDuplicateConfig ErrorCode = "DUPLICATE_CONFIG"

	// ErrCodeInvalidManifest indicates a manifest that cannot be loaded.
	ErrCodeInvalidManifest ErrorCode = "INVALID_MANIFEST"
)

// Error reports an invalid configuration, naming the offending field and value.
// It is always raised before any entity is created.
type Error struct {
	Code ErrorCode

	// Config is the session config name, when known.
	Config string

	// Field is the offending key.
	Field string

	// Value is the offending value, if any.
	Value any

	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		if e.Value != nil {
			msg = fmt.Sprintf("%s (field=%s, value=%v)", msg, e.Field, e.Value)
		} else {
			msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
		}
	}
	if e.Config != "" {
		msg = fmt.Sprintf("session config %q: %s", e.Config, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFoundError reports a session config or room name that does not exist.
type NotFoundError struct {
	Kind string // "session config" or "room"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsConfigError reports whether err is (or wraps) a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrorCodeOf returns the code of a configuration error, or "".
func ErrorCodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
