package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/app"
	"github.com/roach88/cohort/internal/groupsize"
	"github.com/roach88/cohort/internal/model"
)

func TestScriptedApp_RecordsAndDelegates(t *testing.T) {
	a := &ScriptedApp{Descriptor: app.Descriptor{AppName: "pairs", Rounds: 1, GroupSpec: groupsize.Of(2)}}
	sub := &model.Subsession{RoundNumber: 1}
	players := []*model.Player{{}, {}}

	require.NoError(t, a.CreateGroups(context.Background(), sub, players))
	require.NoError(t, a.Initialize(context.Background(), sub, players))

	assert.Equal(t, 1, players[1].GroupNumber)
	assert.Equal(t, 2, players[1].IDInGroup)
	assert.Equal(t, []HookCall{
		{Hook: "groups", Round: 1, PlayerCount: 2},
		{Hook: "init", Round: 1, PlayerCount: 2},
	}, a.Calls())
}

func TestScriptedApp_Errors(t *testing.T) {
	boom := errors.New("boom")
	a := &ScriptedApp{Descriptor: app.Descriptor{AppName: "x", Rounds: 1}, InitErr: boom}
	err := a.Initialize(context.Background(), &model.Subsession{}, nil)
	assert.ErrorIs(t, err, boom)
}
