package quality

import (
	"math"

	"aquanet/internal/engine/network"
)

// transport moves one step's worth of water through every link, visiting
// nodes in flow order.
func (e *Engine) transport(step int64) {
	dt := float64(step)
	for _, i := range e.order {
		var vin, mass float64
		for _, k := range e.in[i] {
			if e.flow[k] == 0 {
				continue
			}
			if _, down := e.ends(k); down != i {
				continue
			}
			v := math.Abs(e.flow[k]) * dt
			mass += e.release(k, v)
			vin += v
		}

		var vout float64
		for _, k := range e.in[i] {
			if e.flow[k] == 0 {
				continue
			}
			if up, _ := e.ends(k); up == i {
				vout += math.Abs(e.flow[k]) * dt
			}
		}

		var c float64
		switch {
		case e.isTank[i]:
			c = e.mixTank(i, vin, mass, vout)
		case e.fixed[i]:
			c = e.baseQuality(i)
		default:
			// external inflow (negative demand) enters clean
			if d := e.demand[i]; d < 0 {
				vin -= d * dt
			}
			if vin > 0 {
				c = mass / vin
			} else {
				c = e.noFlowQuality(i)
			}
			vout = vin
		}
		c = e.addSource(i, c, vout, dt)
		if i == e.trace {
			c = 100
		}
		e.nodeQual[i] = c

		for _, k := range e.in[i] {
			if e.flow[k] == 0 {
				continue
			}
			if up, _ := e.ends(k); up == i {
				e.push(k, math.Abs(e.flow[k])*dt, c)
			}
		}
	}
}

// release removes volume v from the leading end of link k and returns the
// mass it carried.
func (e *Engine) release(k int, v float64) float64 {
	segs := e.segs[k]
	var mass, last float64
	if len(segs) == 0 {
		up, _ := e.ends(k)
		last = e.nodeQual[up]
	}
	for v > 0 && len(segs) > 0 {
		s := &segs[0]
		last = s.c
		if s.v <= v {
			mass += s.c * s.v
			v -= s.v
			segs = segs[1:]
			continue
		}
		mass += s.c * v
		s.v -= v
		v = 0
	}
	// volumes disagree slightly when a zero-volume link sits on a flow loop
	mass += last * v
	e.segs[k] = segs
	return mass
}

// push adds a parcel of volume v at concentration c to the trailing end of
// link k, merging it with the last parcel when their qualities are within
// tolerance.
func (e *Engine) push(k int, v, c float64) {
	if v <= 0 {
		return
	}
	segs := e.segs[k]
	if n := len(segs); n > 0 && math.Abs(segs[n-1].c-c) < e.ctol {
		s := &segs[n-1]
		s.c = (s.c*s.v + c*v) / (s.v + v)
		s.v += v
		return
	}
	e.segs[k] = append(segs, segment{v: v, c: c})
}

func (e *Engine) mixTank(i int, vin, mass, vout float64) float64 {
	v := e.tankVol[i]
	c := e.tankC[i]
	if vin > 0 && v+vin > 0 {
		c = (c*v + mass) / (v + vin)
	}
	e.tankVol[i] = math.Max(0, v+vin-vout)
	e.tankC[i] = c
	return c
}

// baseQuality is the quality of water supplied by a reservoir.
func (e *Engine) baseQuality(i int) float64 {
	if e.kind == network.QualityChem {
		return e.net.Nodes[i].InitQuality
	}
	return 0
}

// noFlowQuality averages the parcels touching a node that nothing flows
// into.
func (e *Engine) noFlowQuality(i int) float64 {
	var sum float64
	var n int
	for _, k := range e.in[i] {
		segs := e.segs[k]
		if len(segs) == 0 {
			continue
		}
		if _, down := e.ends(k); down == i {
			sum += segs[0].c
		} else {
			sum += segs[len(segs)-1].c
		}
		n++
	}
	if n == 0 {
		return e.nodeQual[i]
	}
	return sum / float64(n)
}

// addSource applies node i's water quality source to water of quality c
// leaving the node. vout is the outflow volume over the step.
func (e *Engine) addSource(i int, c, vout, dt float64) float64 {
	src := e.net.Nodes[i].Source
	if src == nil || e.kind != network.QualityChem || vout/dt <= qzero {
		return c
	}
	s := src.Strength * e.sourcePattern(src.Pattern)
	switch src.Kind {
	case network.SourceConcen:
		if e.fixed[i] {
			return s
		}
		if d := e.demand[i]; d < 0 {
			return c + s*(-d*dt)/vout
		}
	case network.SourceMass:
		// strength is mass per minute
		return c + s/60*dt/(vout*litersPerFt3)
	case network.SourceSetpoint:
		return math.Max(c, s)
	case network.SourceFlowPaced:
		return c + s
	}
	return c
}

func (e *Engine) sourcePattern(idx int) float64 {
	p := e.net.Pattern(idx)
	if p == nil {
		return 1
	}
	t := e.net.Times
	if t.PatternStep <= 0 {
		return p.Multiplier(0)
	}
	return p.Multiplier((e.qtime + t.PatternStart) / t.PatternStep)
}
