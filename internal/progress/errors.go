package progress

import (
	"errors"
	"fmt"
)

// AdvancementError reports a forced resubmission that did not go through.
// StatusCode is zero when the request never got a response.
type AdvancementError struct {
	Participant string // participant name, e.g. "P3"
	Code        string // participant code
	URL         string
	StatusCode  int
	Err         error
}

func (e *AdvancementError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("ADVANCEMENT_FAILED: %s (%s) at %s: %v", e.Participant, e.Code, e.URL, e.Err)
	default:
		return fmt.Sprintf("ADVANCEMENT_FAILED: %s (%s) at %s: status %d", e.Participant, e.Code, e.URL, e.StatusCode)
	}
}

func (e *AdvancementError) Unwrap() error {
	return e.Err
}

// IsAdvancementFailed reports whether err is (or wraps) an AdvancementError.
func IsAdvancementFailed(err error) bool {
	var ae *AdvancementError
	return errors.As(err, &ae)
}
