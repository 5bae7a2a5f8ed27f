package timeseries

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"aquanet/internal/engine/network"
	"aquanet/internal/engine/toolkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openNet1(t *testing.T) *toolkit.Project {
	t.Helper()
	p, err := toolkit.Open("../inp/testdata/net1.inp")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestComputedHydraulicTimeSeries(t *testing.T) {
	p := openNet1(t)
	h, err := ComputedHydraulicTimeSeries(context.Background(), p)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(h.Time), 25)
	assert.Zero(t, h.Time[0])
	assert.Equal(t, int64(86400), h.Time[len(h.Time)-1])
	for _, tbl := range h.Tables() {
		assert.Len(t, tbl.Rows, len(h.Time), tbl.Name)
	}
	assert.Len(t, h.Pressure[0], p.NodeCount())
	assert.Len(t, h.Flow[0], p.LinkCount())

	pump, err := p.LinkIndex("9")
	require.NoError(t, err)
	assert.InDelta(t, 1866.2, h.Flow[0][pump-1], 5.0)

	tank, err := p.NodeIndex("2")
	require.NoError(t, err)
	for i := range h.Time {
		assert.Positive(t, h.TankVolume[i][tank-1])
	}

	// the protocol session is released
	hs, err := p.OpenHydraulics()
	require.NoError(t, err)
	require.NoError(t, hs.Close())
}

func TestComputedQualityTimeSeries(t *testing.T) {
	p := openNet1(t)
	q, err := ComputedQualityTimeSeries(context.Background(), p)
	require.NoError(t, err)

	require.NotEmpty(t, q.Time)
	assert.Len(t, q.NodeQuality, len(q.Time))
	assert.Len(t, q.LinkQuality[0], p.LinkCount())
	reservoir, err := p.NodeIndex("9")
	require.NoError(t, err)
	last := q.NodeQuality[len(q.NodeQuality)-1]
	assert.InDelta(t, 1.0, last[reservoir-1], 1e-6)
	for _, c := range last {
		assert.GreaterOrEqual(t, c, -1e-9)
		assert.LessOrEqual(t, c, 1+1e-6)
	}
}

func TestComputedTimeSeriesMatchesStepwise(t *testing.T) {
	stepwise, err := ComputedHydraulicTimeSeries(context.Background(), openNet1(t))
	require.NoError(t, err)

	p := openNet1(t)
	r, err := ComputedTimeSeries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, r.Time, 25)
	require.Len(t, r.Energy, 1)

	// every report time is also a hydraulic solution time
	at := make(map[int64]int, len(stepwise.Time))
	for i, ts := range stepwise.Time {
		at[ts] = i
	}
	for i, ts := range r.Time {
		j, ok := at[ts]
		require.True(t, ok, "t=%d", ts)
		for n := range r.NodeHead[i] {
			assert.InDelta(t, stepwise.Head[j][n], r.NodeHead[i][n], 1e-3, "t=%d node %d", ts, n+1)
		}
		for k := range r.LinkFlow[i] {
			assert.InDelta(t, stepwise.Flow[j][k], r.LinkFlow[i][k], 1e-2, "t=%d link %d", ts, k+1)
		}
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ComputedHydraulicTimeSeries(ctx, openNet1(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisp(t *testing.T) {
	h := &Hydraulic{
		Time:     []int64{0, 3600},
		Pressure: [][]float64{{1, 2}, {3, -4}},
		Flow:     [][]float64{{5}, {6}},
	}
	var buf bytes.Buffer
	require.NoError(t, Disp(&buf, h))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(h.Tables()))
	assert.Contains(t, lines[0], "pressure")
	assert.Contains(t, lines[0], "2 x 2")
	assert.Contains(t, lines[0], "-4.0000")

	sums := Summarize(h)
	assert.Equal(t, Summary{Name: "flow", Steps: 2, Entities: 1, Min: 5, Max: 6}, sums[5])
	assert.Equal(t, Summary{Name: "head"}, sums[1])
}

func TestZeroDurationSingleRow(t *testing.T) {
	p := openNet1(t)
	require.NoError(t, p.SetTimeParam(toolkit.TimeDuration, 0))
	h, err := ComputedHydraulicTimeSeries(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, h.Time)

	v, err := p.NodeValue(1, network.NodeElevation)
	require.NoError(t, err)
	assert.Equal(t, 710.0, v)
}
