// Package marketplace describes the external worker marketplace that a
// session can recruit participants from. The engine only needs the spare
// multiplier at creation time and the submit address at the end of a run.
package marketplace

import (
	"fmt"
	"math"
	"net/url"
)

const (
	sandboxSubmitURL = "https://workersandbox.mturk.com/mturk/externalSubmit"
	liveSubmitURL    = "https://www.mturk.com/mturk/externalSubmit"
)

// Source is an external participant source.
type Source interface {
	// SpareMultiplier scales the advertised worker count into the number of
	// slots to create, so drop-outs do not starve groups. Always >= 1.
	SpareMultiplier() float64

	// Sandbox reports whether new sessions post to the test marketplace.
	Sandbox() bool

	// SubmitURL is where a worker is sent after their last page.
	SubmitURL(sandbox bool, assignmentID string) string
}

// Static is a Source with fixed settings, typically read from the environment.
type Static struct {
	Multiplier  float64
	SandboxMode bool
}

var _ Source = Static{}

func (s Static) SpareMultiplier() float64 {
	if s.Multiplier < 1 {
		return 1
	}
	return s.Multiplier
}

func (s Static) Sandbox() bool { return s.SandboxMode }

func (s Static) SubmitURL(sandbox bool, assignmentID string) string {
	base := liveSubmitURL
	if sandbox {
		base = sandboxSubmitURL
	}
	return base + "?" + url.Values{"assignmentId": {assignmentID}, "extra_param": {"1"}}.Encode()
}

// Slots converts an advertised worker count into internal participant slots,
// rounding up so the spare margin is never smaller than requested.
func Slots(src Source, advertised int) (int, error) {
	if advertised < 1 {
		return 0, fmt.Errorf("marketplace sessions need at least one worker, got %d", advertised)
	}
	m := src.SpareMultiplier()
	if m < 1 || math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, fmt.Errorf("spare multiplier must be a finite number >= 1, got %v", m)
	}
	return int(math.Ceil(float64(advertised) * m)), nil
}
