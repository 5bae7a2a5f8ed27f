package toolkit

import (
	"path/filepath"
	"strings"
	"testing"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/inp"
	"aquanet/internal/engine/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twinMains = `
[OPTIONS]
UNITS CFS
[TIMES]
DURATION 2:00
RULE TIMESTEP 0:10
[JUNCTIONS]
J 0 2
[RESERVOIRS]
R 100
[PIPES]
A R J 500 10 100
B R J 500 10 100
`

func openTwinMains(t *testing.T) *Project {
	t.Helper()
	net, err := inp.Read(strings.NewReader(twinMains))
	require.NoError(t, err)
	p, err := NewProject(net)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRuleEditing(t *testing.T) {
	p := openTwinMains(t)
	assert.Zero(t, p.RuleCount())

	err := p.AddRules("RULE 1\nIF SYSTEM TIME >= 1\nTHEN PIPE B STATUS IS CLOSED\n\nRULE 2\nIF PIPE C FLOW > 1\nTHEN PIPE B STATUS IS OPEN\n")
	var pe *inp.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, errors.ErrUndefinedLink, pe.Errors[0].Code)
	assert.Zero(t, p.RuleCount(), "a bad rule adds nothing")

	require.NoError(t, p.AddRules("RULE first\nIF SYSTEM TIME >= 1\nTHEN PIPE B STATUS IS CLOSED\nRULE second\nIF NODE J PRESSURE < 10\nTHEN PIPE B STATUS IS OPEN\n"))
	assert.Equal(t, 2, p.RuleCount())
	err = p.AddRules("RULE FIRST\nIF SYSTEM TIME >= 1\nTHEN PIPE A STATUS IS OPEN\n")
	assert.Equal(t, errors.ErrDuplicateID, errors.CodeOf(err))

	require.NoError(t, p.DeleteRule(1))
	id, err := p.RuleID(1)
	require.NoError(t, err)
	assert.Equal(t, "second", id)
	assert.Equal(t, errors.ErrUndefinedRule, errors.CodeOf(p.DeleteRule(2)))

	path := filepath.Join(t.TempDir(), "twin.inp")
	require.NoError(t, p.SaveInputFile(path))
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.RuleCount())
}

func TestRuleActsDuringHydraulicRun(t *testing.T) {
	p := openTwinMains(t)
	require.NoError(t, p.AddRules(`
RULE shut-b
IF SYSTEM TIME >= 0:05
THEN PIPE B STATUS IS CLOSED
`))
	a := index(t, p.LinkIndex, "A")
	b := index(t, p.LinkIndex, "B")

	hs, err := p.OpenHydraulics()
	require.NoError(t, err)
	require.NoError(t, hs.Init(false))

	step, err := hs.RunStep()
	require.NoError(t, err)
	flow, err := step.LinkValue(a, network.LinkFlow)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, flow, 1e-6, "both mains carry half the demand")

	dt, err := hs.NextStep()
	require.NoError(t, err)
	assert.Equal(t, int64(600), dt, "the clock stops at the rule step that acted")

	step, err = hs.RunStep()
	require.NoError(t, err)
	status, err := step.LinkValue(b, network.LinkStatusNow)
	require.NoError(t, err)
	assert.Zero(t, status)
	flow, err = step.LinkValue(a, network.LinkFlow)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, flow, 1e-6)
}
