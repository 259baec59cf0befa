package app

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/cohort/internal/groupsize"
	"github.com/roach88/cohort/internal/model"
)

// Descriptor is an App declared in the experiment manifest. It groups
// players sequentially by start order and initializes vars from defaults.
type Descriptor struct {
	AppName        string
	Rounds         int
	GroupSpec      groupsize.Spec
	Pages          []Page
	Doc            string
	SubsessionVars map[string]any
	PlayerVars     map[string]any
}

var _ App = (*Descriptor)(nil)

func (d *Descriptor) Name() string                    { return d.AppName }
func (d *Descriptor) NumRounds() int                  { return d.Rounds }
func (d *Descriptor) PlayersPerGroup() groupsize.Spec { return d.GroupSpec }
func (d *Descriptor) PageSequence() []Page            { return slices.Clone(d.Pages) }

func (d *Descriptor) CreateGroups(_ context.Context, _ *model.Subsession, players []*model.Player) error {
	return GroupSequentially(d.GroupSpec, players)
}

func (d *Descriptor) Initialize(_ context.Context, sub *model.Subsession, players []*model.Player) error {
	if len(d.SubsessionVars) > 0 {
		if sub.Vars == nil {
			sub.Vars = make(map[string]any, len(d.SubsessionVars))
		}
		maps.Copy(sub.Vars, d.SubsessionVars)
	}
	if len(d.PlayerVars) > 0 {
		for _, p := range players {
			if p.Vars == nil {
				p.Vars = make(map[string]any, len(d.PlayerVars))
			}
			maps.Copy(p.Vars, d.PlayerVars)
		}
	}
	return nil
}
