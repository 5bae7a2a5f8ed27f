package quality

import (
	"math"

	"aquanet/internal/engine/network"
)

// wallRate is the wall coefficient of link k at flow q once limited by mass
// transfer to the pipe wall. For first-order wall kinetics it is a rate in
// 1/s; for zero-order kinetics it is the mass transfer coefficient in ft/s.
func (e *Engine) wallRate(k int, q float64) float64 {
	d := e.diameter[k]
	if e.kind != network.QualityChem || e.kw[k] == 0 || d <= 0 || e.length[k] <= 0 {
		return 0
	}
	opts := &e.net.Options
	diffus := opts.Diffusivity * diffusivityCl2
	if diffus <= 0 {
		if opts.WallOrder == 0 {
			return 1e30 // no transfer limit
		}
		return 4 / d * e.kw[k]
	}
	viscos := viscosityWater * opts.Viscosity
	sc := viscos / diffus
	u := math.Abs(q) / (math.Pi * d * d / 4)
	re := u * d / viscos
	var sh float64
	switch {
	case re < 1:
		sh = 2
	case re >= 2300:
		sh = 0.0149 * math.Pow(re, 0.88) * math.Pow(sc, 0.333)
	default:
		y := d / e.length[k] * re * sc
		sh = 3.65 + 0.0668*y/(1+0.04*math.Pow(y, 0.667))
	}
	kf := sh * diffus / d
	if opts.WallOrder == 0 {
		return kf
	}
	kw := e.kw[k]
	return 4 / d * kw * kf / (kf + math.Abs(kw))
}

// bulkRate is the bulk reaction rate (concentration per second) at
// concentration c for an n-th order reaction with coefficient kb.
func (e *Engine) bulkRate(kb, c, order float64) float64 {
	if kb == 0 {
		return 0
	}
	climit := e.net.Options.LimitingConc
	var f float64
	switch {
	case order == 0:
		f = 1
	case order < 0:
		// Michaelis-Menten kinetics
		c1 := climit + math.Copysign(c, kb)
		if c1 == 0 {
			c1 = math.Copysign(1e-6, kb)
		}
		f = c / c1
	case climit > 0:
		c1 := math.Max(0, climit-c)
		if kb < 0 {
			c1 = math.Max(0, c-climit)
		}
		f = c1 * math.Pow(c, order-1)
	default:
		f = math.Pow(math.Max(c, 0), order)
	}
	if kb > 0 {
		return math.Max(0, kb*f)
	}
	return math.Min(0, kb*f)
}

// pipeReact advances concentration c inside link k by dt seconds.
func (e *Engine) pipeReact(k int, c, dt float64) float64 {
	opts := &e.net.Options
	if opts.BulkOrder == 1 && opts.WallOrder == 1 && opts.LimitingConc == 0 {
		return c * math.Exp((e.kb[k]+e.kwall[k])*dt)
	}
	rate := e.bulkRate(e.kb[k], c, opts.BulkOrder)
	if kw := e.kw[k]; kw != 0 && e.diameter[k] > 0 {
		if opts.WallOrder == 0 {
			// kw is a mass flux to the wall, capped by what mass transfer
			// can deliver
			flux := math.Min(math.Abs(kw), e.kwall[k]*c*litersPerFt3)
			rate += math.Copysign(flux, kw) * 4 / e.diameter[k] / litersPerFt3
		} else {
			rate += e.kwall[k] * c
		}
	}
	return math.Max(0, c+rate*dt)
}

func (e *Engine) tankReact(i int, c, dt float64) float64 {
	opts := &e.net.Options
	kb := e.tankKb[i]
	if opts.TankOrder == 1 && opts.LimitingConc == 0 {
		return c * math.Exp(kb*dt)
	}
	return math.Max(0, c+e.bulkRate(kb, c, opts.TankOrder)*dt)
}

// react ages or reacts every parcel and every tank's contents over dt.
func (e *Engine) react(step int64) {
	dt := float64(step)
	switch e.kind {
	case network.QualityAge:
		hours := dt / secondsPerHour
		for k := range e.segs {
			for j := range e.segs[k] {
				e.segs[k][j].c += hours
			}
		}
		for i := range e.tankC {
			if e.isTank[i] {
				e.tankC[i] += hours
			}
		}
	case network.QualityChem:
		for k := range e.segs {
			if e.kb[k] == 0 && e.kw[k] == 0 {
				continue
			}
			for j := range e.segs[k] {
				e.segs[k][j].c = e.pipeReact(k, e.segs[k][j].c, dt)
			}
		}
		for i := range e.tankC {
			if e.isTank[i] && e.tankKb[i] != 0 {
				e.tankC[i] = e.tankReact(i, e.tankC[i], dt)
			}
		}
	}
}
