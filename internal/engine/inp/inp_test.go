package inp

import (
	"bytes"
	stderrors "errors"
	"path/filepath"
	"strings"
	"testing"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadNet1(t *testing.T) *network.Network {
	t.Helper()
	n, err := ReadFile(filepath.Join("testdata", "net1.inp"))
	require.NoError(t, err)
	return n
}

func TestReadNet1(t *testing.T) {
	n := loadNet1(t)

	assert.Len(t, n.Nodes, 9)
	assert.Len(t, n.Links, 10)
	assert.Equal(t, 7, n.CountByKind(network.Junction))
	assert.Equal(t, 1, n.CountByKind(network.Reservoir))
	assert.Equal(t, 1, n.CountByKind(network.Tank))
	assert.Len(t, n.Title, 2)

	idx, ok := n.NodeIndex("9")
	require.True(t, ok)
	assert.Equal(t, 8, idx, "junctions are indexed before reservoirs and tanks")

	j11 := n.Node(2)
	assert.Equal(t, "11", j11.ID)
	assert.Equal(t, 150.0, j11.BaseDemand)
	assert.Equal(t, 1, j11.DemandPattern)
	assert.Equal(t, "pump discharge", n.Node(1).Comment)

	assert.Len(t, n.Patterns[0].Multipliers, 12)
	assert.Equal(t, network.CurvePump, n.Curves[0].Kind)

	pumpIdx, ok := n.LinkIndex("9")
	require.True(t, ok)
	pump := n.Link(pumpIdx)
	assert.Equal(t, network.Pump, pump.Kind)
	assert.Equal(t, 1, pump.HeadCurve)
	assert.Equal(t, 1.0, pump.InitSetting)

	tank := n.Node(9).Tank
	require.NotNil(t, tank)
	assert.Equal(t, 120.0, tank.InitLevel)
	assert.Equal(t, -0.5, tank.Bulk, "tank bulk falls back to the global coefficient")

	p113, _ := n.LinkIndex("113")
	assert.Equal(t, -0.5, n.Link(p113).Wall)
	p10, _ := n.LinkIndex("10")
	assert.Equal(t, -1.0, n.Link(p10).Wall)

	require.Len(t, n.Controls, 2)
	assert.Equal(t, network.ControlLowLevel, n.Controls[0].Kind)
	assert.Equal(t, 110.0, n.Controls[0].Level)
	assert.Equal(t, network.StatusClosed, n.Controls[1].Status)

	assert.Equal(t, int64(86400), n.Times.Duration)
	assert.Equal(t, int64(300), n.Times.QualStep)
	assert.Equal(t, int64(7200), n.Times.PatternStep)
	assert.Equal(t, int64(0), n.Times.StartClock)

	assert.Equal(t, network.GPM, n.Options.FlowUnits)
	assert.Equal(t, 40, n.Options.Trials)
	assert.Equal(t, network.UnbalancedContinue, n.Options.Unbalanced)
	assert.Equal(t, 10, n.Options.ExtraTrials)
	assert.Equal(t, network.QualityChem, n.Options.Quality)
	assert.Equal(t, "Chlorine", n.Options.ChemName)

	require.NoError(t, n.Validate())
}

func TestRoundTrip(t *testing.T) {
	n := loadNet1(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, n))

	reloaded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, n, reloaded)
}

func TestRoundTripFile(t *testing.T) {
	n := loadNet1(t)
	require.NoError(t, n.SetLinkValue(1, network.LinkDiameter, 16))
	require.NoError(t, n.SetNodeValue(3, network.NodeEmitter, 0.25))

	path := filepath.Join(t.TempDir(), "saved.inp")
	require.NoError(t, WriteFile(path, n))

	reloaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16.0, reloaded.Links[0].Diameter)
	assert.Equal(t, 0.25, reloaded.Nodes[2].Emitter)
	assert.Equal(t, n, reloaded)
}

func TestRoundTripValvesAndSources(t *testing.T) {
	src := `
[JUNCTIONS]
A 10 5
B 5 5
C 0 5
[RESERVOIRS]
"Lake Side" 100 HEADPAT
[PIPES]
P1 "Lake Side" A 100 12 0.01 0.5 CV
[VALVES]
V1 A B 12 PRV 40
V2 B C 12 GPV HL 0.2
[CURVES]
HL 0 0
HL 10 5
[PATTERNS]
HEADPAT 1 1.1
[STATUS]
V1 OPEN
[SOURCES]
A SETPOINT 2 HEADPAT
[EMITTERS]
C 0.5
[CONTROLS]
LINK V1 55 AT TIME 6:30
LINK V1 CLOSED AT CLOCKTIME 3 PM
[OPTIONS]
UNITS LPS
HEADLOSS D-W
DEMAND MODEL PDA
MINIMUM PRESSURE 5
REQUIRED PRESSURE 20
QUALITY TRACE "Lake Side"
[END]
`
	n, err := Read(strings.NewReader(src))
	require.NoError(t, err)

	v1 := n.Links[1]
	assert.Equal(t, network.PRV, v1.Kind)
	assert.Equal(t, network.StatusOpen, v1.InitStatus)
	assert.Equal(t, network.GPV, n.Links[2].Kind)
	assert.Equal(t, network.CurveHeadloss, n.Curves[0].Kind)
	assert.Equal(t, network.CVPipe, n.Links[0].Kind)
	assert.Equal(t, "Lake Side", n.Node(4).ID)
	assert.Equal(t, network.SourceSetpoint, n.Node(1).Source.Kind)
	assert.Equal(t, int64(6*3600+1800), n.Controls[0].Time)
	assert.Equal(t, 55.0, n.Controls[0].Setting)
	assert.Equal(t, int64(15*3600), n.Controls[1].Time)
	assert.Equal(t, network.PressureDriven, n.Options.DemandModel)
	assert.Equal(t, network.QualityTrace, n.Options.Quality)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, n))
	reloaded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, n, reloaded)
}

func TestReadErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		code errors.EngineCode
	}{
		{"undefined node", "[JUNCTIONS]\nA 1\n[RESERVOIRS]\nR 10\n[PIPES]\nP A X 10 10 100\n", errors.ErrUndefinedNode},
		{"duplicate id", "[JUNCTIONS]\nA 1\nA 2\n", errors.ErrDuplicateID},
		{"bad number", "[JUNCTIONS]\nA abc\n", errors.ErrIllegalNumber},
		{"undefined pattern", "[JUNCTIONS]\nA 1 1 NOPE\n", errors.ErrUndefinedPattern},
		{"curve order", "[CURVES]\nC 2 1\nC 1 0\n", errors.ErrCurveOrder},
		{"bad option", "[OPTIONS]\nUNITS FURLONGS\n", errors.ErrIllegalOption},
		{"tank levels", "[TANKS]\nT 0 50 0 20 10 0\n", errors.ErrTankLevels},
		{"pump curve", "[JUNCTIONS]\nA 1\n[RESERVOIRS]\nR 10\n[PUMPS]\nP R A SPEED 1\n", errors.ErrPumpNoCurve},
		{"cv control", "[JUNCTIONS]\nA 1\n[RESERVOIRS]\nR 10\n[PIPES]\nP R A 10 10 100 0 CV\n[CONTROLS]\nLINK P CLOSED AT TIME 1\n", errors.ErrControlCV},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.src))
			require.Error(t, err)

			var pe *ParseError
			require.True(t, stderrors.As(err, &pe))
			require.NotEmpty(t, pe.Errors)
			assert.Equal(t, tc.code, pe.Errors[0].Code)
			assert.Equal(t, errors.ErrInput, errors.CodeOf(err))
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.inp"))
	assert.Equal(t, errors.ErrOpenInput, errors.CodeOf(err))
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		args []string
		want int64
	}{
		{[]string{"24:00"}, 86400},
		{[]string{"1:30:15"}, 5415},
		{[]string{"1.5"}, 5400},
		{[]string{"30", "MIN"}, 1800},
		{[]string{"2", "days"}, 172800},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.args)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.args)
	}
	_, err := ParseDuration([]string{"5", "FORTNIGHTS"})
	assert.Error(t, err)

	clock, err := ParseClock([]string{"12", "AM"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), clock)
	clock, err = ParseClock([]string{"12:30", "PM"})
	require.NoError(t, err)
	assert.Equal(t, int64(45000), clock)
	assert.Equal(t, "6:05:09", FormatClock(21909))
}
