// Package app defines the experiment-module collaborator: an app declares its
// round count, group-size constraint and page sequence, and supplies the
// group-formation and initialization hooks the session factory calls once per
// subsession.
package app

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/cohort/internal/groupsize"
	"github.com/roach88/cohort/internal/model"
)

// Page is one entry in an app's page sequence.
type Page struct {
	Name string
	// Wait marks a wait page (participants block there until peers arrive).
	Wait bool
}

// App is an experiment module referenced from a session config's app_sequence.
type App interface {
	Name() string
	NumRounds() int
	PlayersPerGroup() groupsize.Spec
	PageSequence() []Page

	// CreateGroups assigns GroupNumber and IDInGroup on every player of the
	// subsession. Players arrive sorted by their participant's start order.
	CreateGroups(ctx context.Context, sub *model.Subsession, players []*model.Player) error

	// Initialize runs once per subsession after grouping. It may set Vars on
	// the subsession and its players; the caller persists them.
	Initialize(ctx context.Context, sub *model.Subsession, players []*model.Player) error
}

var identifierRe = regexp.MustCompile(`^\w+$`)

// Validate checks the structural invariants every app must satisfy.
func Validate(a App) error {
	if !identifierRe.MatchString(a.Name()) {
		return fmt.Errorf("app name %q must be alphanumeric with no spaces (underscores allowed)", a.Name())
	}
	if a.NumRounds() < 1 {
		return fmt.Errorf("app %q: num_rounds must be >= 1, got %d", a.Name(), a.NumRounds())
	}
	seen := make(map[string]bool)
	for i, p := range a.PageSequence() {
		if !identifierRe.MatchString(p.Name) {
			return fmt.Errorf("app %q: page %d has invalid name %q", a.Name(), i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("app %q: page %q appears twice in page_sequence", a.Name(), p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// FormatName renders an app identifier for humans: "public_goods" becomes
// "Public Goods". Dotted import-style names keep only the last segment.
func FormatName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

// GroupSequentially fills groups in player order: with group size k the first
// k players form group 1, the next k group 2, and so on. An unset constraint
// puts every player in a single group.
func GroupSequentially(spec groupsize.Spec, players []*model.Player) error {
	size := groupsize.MinimumMultiple(spec)
	if spec.Kind() == groupsize.Unset {
		size = len(players)
	}
	if size == 0 {
		return nil
	}
	if len(players)%size != 0 {
		return fmt.Errorf("%d players cannot be split into groups of %d", len(players), size)
	}
	for i, p := range players {
		p.GroupNumber = i/size + 1
		p.IDInGroup = i%size + 1
	}
	return nil
}

// Registry resolves app identifiers. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	apps  map[string]App
	order []string
}

// NewRegistry validates and indexes apps. Duplicate names are rejected.
func NewRegistry(apps ...App) (*Registry, error) {
	r := &Registry{apps: make(map[string]App, len(apps))}
	for _, a := range apps {
		if err := Validate(a); err != nil {
			return nil, err
		}
		if _, dup := r.apps[a.Name()]; dup {
			return nil, fmt.Errorf("app %q registered twice", a.Name())
		}
		r.apps[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r, nil
}

// Lookup returns the app registered under name.
func (r *Registry) Lookup(name string) (App, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.apps[name]
	return a, ok
}

// Names returns registered app names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.order)
}
