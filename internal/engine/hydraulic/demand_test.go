package hydraulic

import (
	"strings"
	"testing"

	"aquanet/internal/engine/inp"
	"aquanet/internal/engine/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemandCategoriesFollowOwnPatterns(t *testing.T) {
	net, err := inp.Read(strings.NewReader(`
[OPTIONS]
UNITS CFS
[TIMES]
DURATION 1:00
HYDRAULIC TIMESTEP 1:00
PATTERN TIMESTEP 1:00
[JUNCTIONS]
J1 0 0
[RESERVOIRS]
R 100
[PIPES]
P1 R J1 1000 12 100
[PATTERNS]
PA 1 0
PB 0 1
[DEMANDS]
J1 10 PA
J1 10 PB
`))
	require.NoError(t, err)
	require.NoError(t, net.Validate())
	e, err := New(net)
	require.NoError(t, err)

	j, _ := net.NodeIndex("J1")
	var demands []float64
	for {
		_, err := e.Run()
		require.NoError(t, err)
		demands = append(demands, e.Snapshot().Demand[j-1])
		if e.Next() == 0 {
			break
		}
	}
	require.Len(t, demands, 2)
	assert.InDelta(t, 10.0, demands[0], 1e-9)
	assert.InDelta(t, 10.0, demands[1], 1e-9)
}

func TestDemandMultiplierScalesEveryCategory(t *testing.T) {
	b := newBuilder(t)
	b.net.Options.DemandMultiplier = 2
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.net.Node(j).AddDemand(network.Demand{Base: 0.5, Name: "leakage"})
	b.pipe("P", r, j, 1000, 12)
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)
	snap := e.Snapshot()
	assert.InDelta(t, 3.0, snap.Demand[j-1], 1e-9)
	assert.InDelta(t, 3.0, snap.Flow[0], 1e-6)
}
