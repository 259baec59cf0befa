package model

import (
	"fmt"
	"time"
)

// SpecialCategory tags sessions created for demos or automated play.
type SpecialCategory string

const (
	CategoryNone SpecialCategory = ""
	CategoryDemo SpecialCategory = "demo"
	CategoryBots SpecialCategory = "bots"
	CategoryTest SpecialCategory = "test"
)

// ParseSpecialCategory accepts the CLI/API spelling of a category.
func ParseSpecialCategory(s string) (SpecialCategory, error) {
	switch SpecialCategory(s) {
	case CategoryNone, CategoryDemo, CategoryBots, CategoryTest:
		return SpecialCategory(s), nil
	case "none":
		return CategoryNone, nil
	}
	return "", fmt.Errorf("unknown special category %q (want none, demo, bots or test)", s)
}

// NotForMarketplace is the MarketplaceNumParticipants value of a session
// that does not recruit from an external worker marketplace.
const NotForMarketplace = -1

// Session is one experiment run.
type Session struct {
	ID              int64
	Code            string
	ConfigName      string
	Config          map[string]any // frozen, normalized config
	ConfigHash      string
	Label           string
	SpecialCategory SpecialCategory
	PreCreateID     string
	CreatedAt       time.Time
	TimeScheduled   *time.Time
	TimeStarted     *time.Time

	// MarketplaceNumParticipants is the worker count advertised externally;
	// the session itself holds more slots to absorb drop-out.
	MarketplaceNumParticipants int
	MarketplaceSandbox         bool

	Archived bool
	Comment  string
}

// IsDemo reports whether the session was created for a demo.
func (s *Session) IsDemo() bool {
	return s.SpecialCategory == CategoryDemo
}

// IsForMarketplace reports whether participants are recruited externally.
func (s *Session) IsForMarketplace() bool {
	return !s.IsDemo() && s.MarketplaceNumParticipants > 0
}

// AppSequence returns the frozen config's app order.
func (s *Session) AppSequence() []string {
	switch seq := s.Config["app_sequence"].(type) {
	case []string:
		return seq
	case []any:
		out := make([]string, 0, len(seq))
		for _, v := range seq {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// Participant is one human slot in a session.
type Participant struct {
	ID          int64
	SessionID   int64
	Code        string
	IDInSession int
	StartOrder  int
	Label       string

	// IndexInPages is the absolute page pointer; 0 until the start page is visited.
	IndexInPages int
	// MaxPageIndex is the number of pages this participant will ever see.
	MaxPageIndex int

	Visited      bool
	IsOnWaitPage bool
	WaitingFor   string

	CurrentFormPageURL string
	CurrentAppName     string
	CurrentPageName    string
	RoundNumber        int

	MarketplaceWorkerID     string
	MarketplaceAssignmentID string

	TimeStarted *time.Time
}

// StartURL is the address that initializes the participant on first visit.
func (p *Participant) StartURL() string {
	return "/InitializeParticipant/" + p.Code
}

// CurrentPage renders progress as "index/max pages".
func (p *Participant) CurrentPage() string {
	return fmt.Sprintf("%d/%d pages", p.IndexInPages, p.MaxPageIndex)
}

// Name is the human-readable identity used in logs and the monitor.
func (p *Participant) Name() string {
	if p.Label != "" {
		return fmt.Sprintf("P%d (label: %s)", p.IDInSession, p.Label)
	}
	return fmt.Sprintf("P%d", p.IDInSession)
}

// Subsession is one (app, round) pairing; the unit of grouping.
type Subsession struct {
	ID          int64
	SessionID   int64
	AppName     string
	AppIndex    int // position in app_sequence, 0-based
	RoundNumber int
	Vars        map[string]any
}

// Player is a participant's identity within one subsession.
type Player struct {
	ID            int64
	SessionID     int64
	SubsessionID  int64
	ParticipantID int64
	AppName       string
	AppIndex      int
	RoundNumber   int

	// GroupNumber is 1-based within the subsession; 0 until grouped.
	GroupNumber int
	IDInGroup   int

	Vars map[string]any
}

// PageRoute maps (participant, absolute page index) to a concrete page.
type PageRoute struct {
	ParticipantID int64
	PageIndex     int
	AppName       string
	PlayerID      int64
	PageName      string
	URL           string
}
