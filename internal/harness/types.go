package harness

// Event kinds, one per step kind.
const (
	EventCreate  = "create"
	EventPlace   = "place"
	EventAdvance = "advance"
)

// Event records what one step did.
type Event struct {
	Step         int      `json:"step"`
	Kind         string   `json:"kind"`
	Session      string   `json:"session,omitempty"`
	Outcome      string   `json:"outcome,omitempty"`
	Error        string   `json:"error,omitempty"`
	PageIndex    int      `json:"page_index,omitempty"`
	Participants []string `json:"participants,omitempty"`

	// Submitted lists the page URLs posted during the step, sorted.
	Submitted []string `json:"submitted,omitempty"`

	err error
}

// ParticipantState is a participant's position after the last step.
type ParticipantState struct {
	IDInSession  int    `json:"id_in_session"`
	Code         string `json:"code"`
	Visited      bool   `json:"visited"`
	IndexInPages int    `json:"index_in_pages"`
	MaxPageIndex int    `json:"max_page_index"`
	App          string `json:"current_app_name,omitempty"`
	Page         string `json:"current_page_name,omitempty"`
	Round        int    `json:"round_number,omitempty"`
	Status       string `json:"status"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Events holds one entry per step, in order.
	Events []Event `json:"events"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the state of the last created session's participants.
	Final []ParticipantState `json:"final"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Events: []Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step event.
func (r *Result) AddEvent(e Event) {
	r.Events = append(r.Events, e)
}
