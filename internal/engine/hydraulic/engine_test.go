package hydraulic

import (
	"math"
	"path/filepath"
	"testing"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/inp"
	"aquanet/internal/engine/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpmPerCFS = 448.831

type netBuilder struct {
	t   *testing.T
	net *network.Network
}

func newBuilder(t *testing.T) *netBuilder {
	n := network.New()
	n.Options.FlowUnits = network.CFS
	return &netBuilder{t: t, net: n}
}

func (b *netBuilder) node(n *network.Node) int {
	b.t.Helper()
	idx, err := b.net.AddNode(n)
	require.NoError(b.t, err)
	return idx
}

func (b *netBuilder) pipe(id string, from, to int, length, diam float64) int {
	b.t.Helper()
	idx, err := b.net.AddLink(&network.Link{
		ID: id, Kind: network.Pipe, From: from, To: to,
		Length: length, Diameter: diam, Roughness: 100, InitStatus: network.StatusOpen,
	})
	require.NoError(b.t, err)
	return idx
}

func (b *netBuilder) link(l *network.Link) int {
	b.t.Helper()
	idx, err := b.net.AddLink(l)
	require.NoError(b.t, err)
	return idx
}

func (b *netBuilder) engine() *Engine {
	b.t.Helper()
	require.NoError(b.t, b.net.Validate())
	e, err := New(b.net)
	require.NoError(b.t, err)
	return e
}

func TestSinglePipeMatchesHazenWilliams(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.pipe("P", r, j, 1000, 12)
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	// h = 4.727 L q^1.852 / (C^1.852 d^4.871)
	hloss := 4.727 * 1000 / math.Pow(100, 1.852)
	snap := e.Snapshot()
	assert.InDelta(t, 1.0, snap.Flow[0], 1e-6)
	assert.InDelta(t, 100-hloss, snap.Head[j-1], 1e-4)
	assert.InDelta(t, 99.0655, snap.Head[j-1], 1e-3)
	assert.InDelta(t, -1.0, snap.Demand[r-1], 1e-6, "reservoir supplies the demand")
	assert.InDelta(t, 1.0, snap.Demand[j-1], 1e-9)
	assert.Equal(t, Open, snap.Status[0])
}

func TestParallelPipesSplitFlow(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 50})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 2})
	b.pipe("A", r, j, 500, 10)
	b.pipe("B", r, j, 500, 10)
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)
	snap := e.Snapshot()
	assert.InDelta(t, 1.0, snap.Flow[0], 1e-4)
	assert.InDelta(t, 1.0, snap.Flow[1], 1e-4)

	require.NoError(t, e.SetLinkStatus(2, false))
	_, err = e.Run()
	require.NoError(t, err)
	snap = e.Snapshot()
	assert.InDelta(t, 2.0, snap.Flow[0], 1e-4)
	assert.Less(t, math.Abs(snap.Flow[1]), 1e-3)
	assert.Equal(t, Closed, snap.Status[1])
}

func TestDarcyWeisbachTurbulentLoss(t *testing.T) {
	b := newBuilder(t)
	b.net.Options.HeadLoss = network.DarcyWeisbach
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	idx := b.pipe("P", r, j, 1000, 12)
	b.net.Links[idx-1].Roughness = 0.85 // millifeet
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)

	d, area := 1.0, math.Pi/4
	re := 1.0 / area * d / 1.1e-5
	f := swameeJain(0.00085/d, re)
	want := f * 1000 / d / (2 * 32.2) * math.Pow(1/area, 2)
	assert.InDelta(t, 100-want, e.Snapshot().Head[j-1], 1e-3)
}

func TestPumpOnePointCurve(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 0})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	c := b.net.AddCurve("C")
	b.net.Curves[c-1].Kind = network.CurvePump
	b.net.Curves[c-1].X = []float64{1}
	b.net.Curves[c-1].Y = []float64{100}
	b.link(&network.Link{ID: "PU", Kind: network.Pump, From: r, To: j, HeadCurve: c, InitSetting: 1, InitStatus: network.StatusOpen})
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	snap := e.Snapshot()
	assert.InDelta(t, 1.0, snap.Flow[0], 1e-6)
	assert.InDelta(t, 100.0, snap.Head[j-1], 1e-3)

	// at half speed the shutoff head drops to a quarter
	require.NoError(t, e.SetLinkSetting(1, 0.5))
	_, err = e.Run()
	require.NoError(t, err)
	want := 0.25*133.334 - 33.334*1.0
	assert.InDelta(t, want, e.Snapshot().Head[j-1], 1e-2)
}

func TestPressureReducingValveHoldsSetting(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 200})
	j1 := b.node(&network.Node{ID: "J1", Kind: network.Junction})
	j2 := b.node(&network.Node{ID: "J2", Kind: network.Junction, BaseDemand: 1})
	b.pipe("P", r, j1, 1000, 12)
	// 50 ft of pressure head
	setting := 50 * 0.4333
	b.link(&network.Link{ID: "V", Kind: network.PRV, From: j1, To: j2, Diameter: 12, InitSetting: setting, InitStatus: network.StatusActive})
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	assert.NotContains(t, res.Warnings, errors.WarnValves)
	snap := e.Snapshot()
	assert.Equal(t, Active, snap.Status[1])
	assert.InDelta(t, 50.0, snap.Head[j2-1], 1e-3)
	assert.InDelta(t, 1.0, snap.Flow[1], 1e-4)
	assert.InDelta(t, 1.0, snap.Flow[0], 1e-4)
	assert.InDelta(t, setting, UserSetting(network.PRV, snap.Setting[1], b.net.Units()), 1e-9)
}

func TestFlowControlValveLimitsFlow(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j1 := b.node(&network.Node{ID: "J1", Kind: network.Junction})
	r2 := b.node(&network.Node{ID: "R2", Kind: network.Reservoir, Elevation: 0})
	b.pipe("P1", r, j1, 1000, 12)
	b.link(&network.Link{ID: "V", Kind: network.FCV, From: j1, To: r2, Diameter: 12, InitSetting: 0.5, InitStatus: network.StatusActive})
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)
	snap := e.Snapshot()
	assert.InDelta(t, 0.5, snap.Flow[1], 1e-3)
	assert.InDelta(t, 0.5, snap.Flow[0], 1e-3)
}

func TestEmitterDischarge(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	// q = K p^0.5 with K = 0.1 cfs/psi^0.5
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, Emitter: 0.1})
	b.pipe("P", r, j, 10, 24)
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)
	snap := e.Snapshot()
	p := snap.Head[j-1] * 0.4333
	assert.InDelta(t, 0.1*math.Sqrt(p), snap.Demand[j-1], 1e-3)
	assert.InDelta(t, snap.Flow[0], snap.Demand[j-1], 1e-6)
}

func TestPressureDrivenDemandIsReduced(t *testing.T) {
	b := newBuilder(t)
	b.net.Options.DemandModel = network.PressureDriven
	b.net.Options.MinPressure = 0
	b.net.Options.ReqPressure = 40
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 50})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 5})
	b.pipe("P", r, j, 5000, 6)
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	snap := e.Snapshot()
	assert.Less(t, snap.Demand[j-1], 5.0)
	assert.Greater(t, snap.Demand[j-1], 0.0)
	assert.Equal(t, 5.0, snap.FullDemand[j-1])
	assert.Equal(t, 1, res.DeficientNodes)
	assert.Greater(t, res.DemandReduction, 0.0)
	assert.NotContains(t, res.Warnings, errors.WarnPressures)

	// delivered demand follows the pressure relation
	p := snap.Head[j-1] * 0.4333
	assert.InDelta(t, 5*math.Sqrt(p/40), snap.Demand[j-1], 1e-2)
}

func TestClosedSupplyRaisesWarnings(t *testing.T) {
	b := newBuilder(t)
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	idx := b.pipe("P", r, j, 1000, 12)
	b.net.Links[idx-1].InitStatus = network.StatusClosed
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, errors.WarnDisconnected)
	assert.Contains(t, res.Warnings, errors.WarnPressures)
	assert.Equal(t, errors.WarnDisconnected, res.Warning())
}

func TestTankDrainsOverSteps(t *testing.T) {
	b := newBuilder(t)
	b.net.Times.Duration = 7200
	tk := b.node(&network.Node{ID: "T", Kind: network.Tank, Elevation: 100, Tank: &network.TankData{
		InitLevel: 10, MaxLevel: 20, Diameter: 50,
	}})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.pipe("P", tk, j, 100, 12)
	e := b.engine()

	area := math.Pi * 50 * 50 / 4
	var steps []int64
	for {
		_, err := e.Run()
		require.NoError(t, err)
		snap := e.Snapshot()
		drop := float64(snap.Time) / area
		assert.InDelta(t, 110-drop, snap.Head[tk-1], 1e-6, "t=%d", snap.Time)
		assert.InDelta(t, -1.0, snap.Demand[tk-1], 1e-6)
		step := e.Next()
		steps = append(steps, step)
		if step == 0 {
			break
		}
	}
	assert.Equal(t, []int64{3600, 3600, 0}, steps)
	assert.True(t, e.Done())
	assert.Equal(t, int64(0), e.Next())
}

func TestZeroDurationSolvesOnce(t *testing.T) {
	b := newBuilder(t)
	b.net.Times.Duration = 0
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.pipe("P", r, j, 1000, 12)
	e := b.engine()

	_, err := e.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.Next())
}

func TestTimeStepStopsAtPatternAndControls(t *testing.T) {
	b := newBuilder(t)
	b.net.Times.Duration = 4 * 3600
	b.net.Times.PatternStep = 1800
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.pipe("A", r, j, 1000, 12)
	bIdx := b.pipe("B", r, j, 1000, 12)
	b.net.Controls = append(b.net.Controls, &network.Control{
		Link: bIdx, Status: network.StatusClosed, Setting: network.Missing,
		Kind: network.ControlTimer, Time: 2700, Enabled: true,
	})
	e := b.engine()

	var times []int64
	for {
		_, err := e.Run()
		require.NoError(t, err)
		times = append(times, e.Time())
		if e.Next() == 0 {
			break
		}
	}
	assert.Equal(t, []int64{0, 1800, 2700, 3600, 5400, 7200, 9000, 10800, 12600, 14400}, times)
	assert.Equal(t, Closed, e.Snapshot().Status[bIdx-1])
}

func TestUnbalancedStopHalts(t *testing.T) {
	b := newBuilder(t)
	b.net.Options.Trials = 1
	b.net.Options.Accuracy = 1e-12
	b.net.Times.Duration = 3600
	r := b.node(&network.Node{ID: "R", Kind: network.Reservoir, Elevation: 100})
	j := b.node(&network.Node{ID: "J", Kind: network.Junction, BaseDemand: 1})
	b.pipe("P", r, j, 1000, 12)
	e := b.engine()

	res, err := e.Run()
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, errors.WarnUnbalanced, res.Warning())
	assert.Equal(t, int64(0), e.Next())
}

func loadNet1(t *testing.T) *network.Network {
	t.Helper()
	n, err := inp.ReadFile(filepath.Join("..", "inp", "testdata", "net1.inp"))
	require.NoError(t, err)
	return n
}

func TestNet1ExtendedPeriod(t *testing.T) {
	net := loadNet1(t)
	e, err := New(net)
	require.NoError(t, err)

	pump, _ := net.LinkIndex("9")
	n10, _ := net.NodeIndex("10")
	tank, _ := net.NodeIndex("2")
	tk := net.Node(tank).Tank

	var solutions int
	for {
		res, err := e.Run()
		require.NoError(t, err)
		assert.NotContains(t, res.Warnings, errors.WarnUnbalanced, "t=%d", res.Time)
		snap := e.Snapshot()
		solutions++

		if snap.Time == 0 {
			assert.InDelta(t, 1866.2, snap.Flow[pump-1]*gpmPerCFS, 5.0)
			assert.InDelta(t, 1004.35, snap.Head[n10-1], 1.0)
		}

		// continuity: supply equals consumption
		var balance float64
		for _, d := range snap.Demand {
			balance += d
		}
		assert.InDelta(t, 0, balance, 1e-4, "t=%d", snap.Time)

		level := snap.Head[tank-1] - net.Node(tank).Elevation
		assert.GreaterOrEqual(t, level, tk.MinLevel-1e-6)
		assert.LessOrEqual(t, level, tk.MaxLevel+1e-6)

		step := e.Next()
		if step == 0 {
			break
		}
		assert.Positive(t, step)
	}
	assert.GreaterOrEqual(t, solutions, 25)
	assert.Equal(t, net.Times.Duration, e.Time())
}
