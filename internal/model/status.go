package model

// StatusKind is the coarse state shown for a participant.
type StatusKind int

const (
	NotStarted StatusKind = iota
	Waiting
	Playing
)

// Status is a pure projection of a participant's visit and wait flags.
type Status struct {
	Kind StatusKind
	// Reason lists who the participant is waiting for, if known.
	Reason string
}

// StatusOf derives the participant's status without side effects.
func StatusOf(p *Participant) Status {
	if !p.Visited {
		return Status{Kind: NotStarted}
	}
	if p.IsOnWaitPage {
		return Status{Kind: Waiting, Reason: p.WaitingFor}
	}
	return Status{Kind: Playing}
}

func (s Status) String() string {
	switch s.Kind {
	case NotStarted:
		return "Not visited yet"
	case Waiting:
		if s.Reason != "" {
			return "Waiting for " + s.Reason
		}
		return "Waiting"
	default:
		return "Playing"
	}
}
