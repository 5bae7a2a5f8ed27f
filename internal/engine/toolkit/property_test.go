package toolkit

import (
	"math"
	"testing"

	"aquanet/internal/engine/network"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSettersRoundTrip checks that every stored value reads back as written.
func TestSettersRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	p := openNet1(t)

	properties.Property("node elevation", prop.ForAll(
		func(idx int, v float64) bool {
			if err := p.SetNodeValue(idx, network.NodeElevation, v); err != nil {
				return false
			}
			got, err := p.NodeValue(idx, network.NodeElevation)
			return err == nil && got == v
		},
		gen.IntRange(1, 9),
		gen.Float64Range(-500, 5000),
	))

	properties.Property("junction base demand", prop.ForAll(
		func(idx int, v float64) bool {
			kind, err := p.NodeKind(idx)
			if err != nil {
				return false
			}
			if kind != network.Junction {
				return true
			}
			if err := p.SetNodeValue(idx, network.NodeBaseDemand, v); err != nil {
				return false
			}
			got, err := p.NodeValue(idx, network.NodeBaseDemand)
			return err == nil && math.Abs(got-v) < 1e-9
		},
		gen.IntRange(1, 9),
		gen.Float64Range(0, 2000),
	))

	properties.Property("pipe roughness", prop.ForAll(
		func(idx int, v float64) bool {
			kind, err := p.LinkKind(idx)
			if err != nil {
				return false
			}
			if !kind.IsPipe() {
				return p.SetLinkValue(idx, network.LinkRoughness, v) != nil
			}
			if err := p.SetLinkValue(idx, network.LinkRoughness, v); err != nil {
				return false
			}
			got, err := p.LinkValue(idx, network.LinkRoughness)
			return err == nil && got == v
		},
		gen.IntRange(1, 10),
		gen.Float64Range(1, 150),
	))

	properties.Property("pattern multiplier", prop.ForAll(
		func(period int, v float64) bool {
			if err := p.SetPatternValue(1, period, v); err != nil {
				return false
			}
			got, err := p.PatternValue(1, period)
			return err == nil && got == v
		},
		gen.IntRange(1, 12),
		gen.Float64Range(0, 3),
	))

	properties.Property("time steps", prop.ForAll(
		func(code int, v int64) bool {
			param := []TimeParameter{TimeDuration, TimeHydStep, TimeQualStep, TimePatternStep, TimeReportStep, TimeReportStart}[code]
			if err := p.SetTimeParam(param, v); err != nil {
				return false
			}
			got, err := p.TimeParam(param)
			return err == nil && got == v
		},
		gen.IntRange(0, 5),
		gen.Int64Range(1, 7*86400),
	))

	properties.TestingRun(t)
}

// TestDemandBalanceHolds solves Net1 under varied demand and checks that
// supply always matches consumption at the first solution.
func TestDemandBalanceHolds(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10

	properties := gopter.NewProperties(parameters)

	properties.Property("supply equals consumption", prop.ForAll(
		func(mult float64) bool {
			p := openNet1(t)
			defer p.Close()
			if err := p.SetOption(OptDemandMult, mult); err != nil {
				return false
			}
			hs, err := p.OpenHydraulics()
			if err != nil {
				return false
			}
			if err := hs.Init(false); err != nil {
				return false
			}
			step, err := hs.RunStep()
			if err != nil {
				return false
			}
			demands, err := step.NodeValues(network.NodeDemand)
			if err != nil {
				return false
			}
			var balance float64
			for _, d := range demands {
				balance += d
			}
			return math.Abs(balance) < 0.1
		},
		gen.Float64Range(0.5, 1.5),
	))

	properties.TestingRun(t)
}
