package toolkit

import (
	"math"

	"aquanet/internal/engine/hydraulic"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
)

const (
	pumpEfficiencyPercent = 75
	gallonsPerFt3         = 7.48052
	m3PerFt3              = 0.0283168
)

// energyMeter integrates pump power over the hydraulic periods of a run.
type energyMeter struct {
	net    *network.Network
	pumps  []int // 0-based link indices
	online []float64
	kwh    []float64
	peak   []float64
	volume []float64 // ft3 pumped
	total  float64
}

func newEnergyMeter(net *network.Network) *energyMeter {
	m := &energyMeter{net: net}
	for k, l := range net.Links {
		if l.Kind == network.Pump {
			m.pumps = append(m.pumps, k)
		}
	}
	n := len(m.pumps)
	m.online = make([]float64, n)
	m.kwh = make([]float64, n)
	m.peak = make([]float64, n)
	m.volume = make([]float64, n)
	return m
}

// add accounts for dt seconds under the flows of s.
func (m *energyMeter) add(s *hydraulic.Snapshot, dt int64) {
	sec := float64(dt)
	m.total += sec
	sg := m.net.Options.SpecificGravity
	for i, k := range m.pumps {
		if !s.Status[k].IsOpen() {
			continue
		}
		l := m.net.Links[k]
		q := s.Flow[k]
		kw := hydraulic.PumpPower(q, s.Head[l.To-1]-s.Head[l.From-1], sg)
		m.online[i] += sec
		m.kwh[i] += kw * sec / 3600
		m.peak[i] = math.Max(m.peak[i], kw)
		m.volume[i] += math.Abs(q) * sec
	}
}

func (m *energyMeter) summary() []outfile.PumpEnergy {
	out := make([]outfile.PumpEnergy, len(m.pumps))
	si := m.net.Options.FlowUnits.IsSI()
	for i, k := range m.pumps {
		e := outfile.PumpEnergy{Link: int32(k + 1), Efficiency: pumpEfficiencyPercent, PeakKW: float32(m.peak[i])}
		if m.total > 0 {
			e.Utilization = float32(100 * m.online[i] / m.total)
		}
		if m.online[i] > 0 {
			e.AverageKW = float32(m.kwh[i] / (m.online[i] / 3600))
		}
		// kWh per million gallons, or per cubic meter for SI units
		vol := m.volume[i] * gallonsPerFt3 / 1e6
		if si {
			vol = m.volume[i] * m3PerFt3
		}
		if vol > 0 {
			e.KWhPerVolume = float32(m.kwh[i] / vol)
		}
		out[i] = e
	}
	return out
}
