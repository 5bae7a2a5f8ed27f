package hydraulic

import (
	"math"
	"slices"
)

// Snapshot is a copy of one hydraulic solution in engine units.
type Snapshot struct {
	Time int64
	// Demand is the delivered demand plus emitter discharge at junctions and
	// the net inflow at reservoirs and tanks.
	Demand     []float64
	FullDemand []float64
	// Deficit is the required demand a pressure-deficient junction could not
	// receive.
	Deficit    []float64
	Head       []float64
	Volume     []float64
	Flow       []float64
	Status     []Status
	Setting    []float64
}

// Snapshot copies the current solution.
func (e *Engine) Snapshot() *Snapshot {
	s := &Snapshot{
		Time:       e.htime,
		Demand:     make([]float64, len(e.head)),
		Deficit:    make([]float64, len(e.head)),
		FullDemand: slices.Clone(e.demand),
		Head:       slices.Clone(e.head),
		Volume:     slices.Clone(e.volume),
		Flow:       slices.Clone(e.flow),
		Status:     slices.Clone(e.status),
		Setting:    slices.Clone(e.setting),
	}
	for i := range e.m.nodes {
		if e.m.nodes[i].fixed {
			s.Demand[i] = e.inflow[i]
		} else {
			s.Demand[i] = e.dflow[i] + e.eflow[i]
			s.Deficit[i] = math.Max(0, e.demand[i]-e.dflow[i])
		}
	}
	return s
}

// PumpPower is the electrical power in kW drawn by a pump lifting flow q
// (cfs) through head gain dh (ft), assuming a fixed wire-to-water
// efficiency.
func PumpPower(q, dh, specificGravity float64) float64 {
	return math.Abs(q) * math.Max(dh, 0) * specificGravity / hpFactor * hpToKW / pumpEfficiency
}
