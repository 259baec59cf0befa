// Package monitor builds the per-participant table shown while a session is
// running.
//
// A column is either a stored participant field or a value computed from
// the participant and its session. Each cell carries its own error, so a
// column that fails for one participant does not blank the whole table and
// a failed cell is never confused with an empty one.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cohort/internal/model"
	"github.com/roach88/cohort/internal/progress"
	"github.com/roach88/cohort/internal/store"
)

// ColumnKind tags how a column gets its value.
type ColumnKind int

const (
	// StoredField columns read a persisted participant field.
	StoredField ColumnKind = iota
	// Computed columns derive a value and may fail.
	Computed
)

// ComputeFunc derives a computed cell.
type ComputeFunc func(ctx context.Context, sess *model.Session, p *model.Participant) (any, error)

// Column is one monitor column.
type Column struct {
	Name string
	Kind ColumnKind

	field   func(p *model.Participant) any
	compute ComputeFunc
}

// Field declares a stored-field column.
func Field(name string, get func(p *model.Participant) any) Column {
	return Column{Name: name, Kind: StoredField, field: get}
}

// Derived declares a computed column.
func Derived(name string, fn ComputeFunc) Column {
	return Column{Name: name, Kind: Computed, compute: fn}
}

// Cell is one table value. A nil Value with a nil Err is a blank cell.
type Cell struct {
	Value any
	Err   error
}

// String renders the cell for text output.
func (c Cell) String() string {
	switch {
	case c.Err != nil:
		return "#ERR"
	case c.Value == nil:
		return ""
	default:
		return fmt.Sprint(c.Value)
	}
}

// Table is the rendered monitor.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// Build evaluates columns for each participant, in order.
func Build(ctx context.Context, sess *model.Session, participants []*model.Participant, columns []Column) *Table {
	t := &Table{Columns: make([]string, len(columns)), Rows: make([][]Cell, 0, len(participants))}
	for i, c := range columns {
		t.Columns[i] = c.Name
	}
	for _, p := range participants {
		row := make([]Cell, len(columns))
		for i, c := range columns {
			row[i] = c.cell(ctx, sess, p)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (c Column) cell(ctx context.Context, sess *model.Session, p *model.Participant) Cell {
	switch c.Kind {
	case StoredField:
		return Cell{Value: c.field(p)}
	default:
		v, err := c.compute(ctx, sess, p)
		if err != nil {
			return Cell{Err: err}
		}
		return Cell{Value: v}
	}
}

// DefaultColumns are the columns shown for a running session.
func DefaultColumns(tracker *progress.Tracker) []Column {
	return []Column{
		Field("id_in_session", func(p *model.Participant) any { return p.IDInSession }),
		Field("code", func(p *model.Participant) any { return p.Code }),
		Field("label", func(p *model.Participant) any { return blank(p.Label) }),
		Derived("current_page", func(_ context.Context, _ *model.Session, p *model.Participant) (any, error) {
			return p.CurrentPage(), nil
		}),
		Field("current_app_name", func(p *model.Participant) any { return blank(p.CurrentAppName) }),
		Field("round_number", func(p *model.Participant) any {
			if p.RoundNumber == 0 {
				return nil
			}
			return p.RoundNumber
		}),
		Field("current_page_name", func(p *model.Participant) any { return blank(p.CurrentPageName) }),
		Derived("status", func(_ context.Context, _ *model.Session, p *model.Participant) (any, error) {
			return progress.Status(p).String(), nil
		}),
		Derived("url", func(ctx context.Context, sess *model.Session, p *model.Participant) (any, error) {
			return tracker.URLIShouldBeOn(ctx, sess, p)
		}),
		Field("time_started", func(p *model.Participant) any {
			if p.TimeStarted == nil {
				return nil
			}
			return p.TimeStarted.UTC().Format(time.RFC3339)
		}),
	}
}

func blank(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Monitor loads sessions and renders their tables.
type Monitor struct {
	store   *store.Store
	columns []Column
}

// New creates a Monitor over columns.
func New(s *store.Store, columns []Column) *Monitor {
	return &Monitor{store: s, columns: columns}
}

// Session builds the table for the session with the given code.
func (m *Monitor) Session(ctx context.Context, code string) (*Table, error) {
	sess, err := m.store.SessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	participants, err := m.store.Participants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return Build(ctx, sess, participants, m.columns), nil
}
