package hydraulic

import (
	"math"

	"aquanet/internal/engine/network"
)

// linkCoeffs fills p (inverse head loss gradient) and y (flow correction)
// for every link at the current flows.
func (e *Engine) linkCoeffs() {
	for k := range e.m.links {
		l := &e.m.links[k]
		switch {
		case l.kind.IsPipe():
			e.pipeCoeff(k)
		case l.kind == network.Pump:
			e.pumpCoeff(k)
		case l.kind == network.PBV:
			e.pbvCoeff(k)
		case l.kind == network.TCV:
			e.tcvCoeff(k)
		case l.kind == network.GPV:
			e.gpvCoeff(k)
		case l.kind == network.FCV:
			e.fcvCoeff(k)
		default:
			// PRV and PSV; active ones are pinned during assembly
			if e.status[k] == Active {
				e.p[k], e.y[k] = 0, 0
			} else {
				e.valveCoeff(k, l.km)
			}
		}
	}
}

func (e *Engine) closedCoeff(k int) {
	e.p[k] = 1 / cbig
	e.y[k] = e.flow[k]
}

func (e *Engine) pipeCoeff(k int) {
	if e.status[k] <= Closed {
		e.closedCoeff(k)
		return
	}
	l := &e.m.links[k]
	q := e.flow[k]
	aq := math.Abs(q)
	f := 1.0
	if e.m.net.Options.HeadLoss == network.DarcyWeisbach {
		f = e.m.friction(l, aq)
	}
	r1 := f*l.r + l.km
	if r1*aq < rqtol {
		e.p[k] = 1 / rqtol
		e.y[k] = q / e.m.headExp
		return
	}
	var hloss, hgrad float64
	if e.m.net.Options.HeadLoss == network.DarcyWeisbach {
		hloss = r1 * aq * aq
		hgrad = 2 * r1 * aq
	} else {
		n := e.m.headExp
		hgrad = n * l.r * math.Pow(aq, n-1)
		hloss = hgrad * aq / n
		if l.km > 0 {
			hloss += l.km * aq * aq
			hgrad += 2 * l.km * aq
		}
	}
	e.p[k] = 1 / hgrad
	e.y[k] = math.Copysign(hloss/hgrad, q)
}

// friction is the Darcy-Weisbach factor at flow q: laminar below Re 2000,
// Swamee-Jain above 4000 and linear in between.
func (m *model) friction(l *linkModel, q float64) float64 {
	re := q / l.area * l.diameter / m.viscos
	switch {
	case re < 1:
		return 64
	case re <= 2000:
		return 64 / re
	case re >= 4000:
		return swameeJain(l.rough/l.diameter, re)
	}
	f2 := 64.0 / 2000
	f4 := swameeJain(l.rough/l.diameter, 4000)
	return f2 + (f4-f2)*(re-2000)/2000
}

func swameeJain(relRough, re float64) float64 {
	x := math.Log10(relRough/3.7 + 5.74/math.Pow(re, 0.9))
	return 0.25 / (x * x)
}

func (e *Engine) pumpCoeff(k int) {
	s := e.setting[k]
	if e.status[k] <= Closed || s == 0 {
		e.closedCoeff(k)
		return
	}
	p := e.m.links[k].pump
	q := e.flow[k]
	aq := math.Max(math.Abs(q), tiny)
	var hloss, hgrad float64
	switch p.curve {
	case constHP:
		// head gain 8.814*hp/q, power scales with speed cubed
		w := hpFactor * p.hp * s * s * s
		hloss = -w / aq
		hgrad = w / (aq * aq)
	case customCurve:
		h0, r := segment(p.x, p.y, aq/s)
		// r is the (negative) slope of the head gain curve
		hgrad = -r * s
		hloss = -h0*s*s + hgrad*q
	default:
		h0 := s * s * p.h0
		r := p.r * math.Pow(s, 2-p.n)
		hgrad = p.n * r * math.Pow(aq, p.n-1)
		hloss = r*math.Pow(aq, p.n) - h0
	}
	if hgrad < rqtol {
		hgrad = rqtol
	}
	e.p[k] = 1 / hgrad
	e.y[k] = hloss / hgrad
}

// segment returns the intercept and slope of the curve segment containing x.
func segment(xs, ys []float64, x float64) (h0, r float64) {
	n := len(xs)
	if n == 1 {
		return ys[0], 0
	}
	i := 1
	for i < n-1 && x > xs[i] {
		i++
	}
	dx := xs[i] - xs[i-1]
	if dx == 0 {
		return ys[i], 0
	}
	r = (ys[i] - ys[i-1]) / dx
	h0 = ys[i] - r*xs[i]
	return h0, r
}

// valveCoeff treats an open valve as a short pipe carrying only a minor loss.
func (e *Engine) valveCoeff(k int, km float64) {
	if e.status[k] <= Closed {
		e.closedCoeff(k)
		return
	}
	q := e.flow[k]
	if km > 0 {
		e.p[k] = 1 / math.Max(2*km*math.Abs(q), rqtol)
		e.y[k] = q / 2
		return
	}
	e.p[k] = 1 / rqtol
	e.y[k] = q
}

func (e *Engine) tcvCoeff(k int) {
	l := &e.m.links[k]
	km := l.km
	if e.setting[k] != network.Missing && l.diameter > 0 {
		km = 0.02517 * e.setting[k] / math.Pow(l.diameter, 4)
	}
	e.valveCoeff(k, km)
}

func (e *Engine) pbvCoeff(k int) {
	l := &e.m.links[k]
	set := e.setting[k]
	if set == network.Missing || set == 0 || e.status[k] <= Closed {
		e.valveCoeff(k, l.km)
		return
	}
	if q := e.flow[k]; l.km*q*q > set {
		e.valveCoeff(k, l.km)
		return
	}
	e.p[k] = cbig
	e.y[k] = set * cbig
}

func (e *Engine) fcvCoeff(k int) {
	if e.status[k] != Active {
		e.valveCoeff(k, e.m.links[k].km)
		return
	}
	e.p[k] = 1 / cbig
	e.y[k] = e.flow[k] - e.setting[k]
}

func (e *Engine) gpvCoeff(k int) {
	l := &e.m.links[k]
	if e.status[k] <= Closed || len(l.gpvX) == 0 {
		e.valveCoeff(k, l.km)
		return
	}
	q := e.flow[k]
	aq := math.Max(math.Abs(q), tiny)
	h0, r := segment(l.gpvX, l.gpvY, aq)
	h0 = math.Max(h0, 0)
	r = math.Max(r, tiny)
	e.p[k] = 1 / r
	e.y[k] = math.Copysign(h0/r+aq, q)
}

// emitterCoeff returns p and y for the virtual link from junction i to the
// atmosphere.
func (e *Engine) emitterCoeff(i int) (p, y float64) {
	nd := &e.m.nodes[i]
	ke := math.Max(csmall, nd.emitterR)
	q := e.eflow[i]
	aq := math.Max(math.Abs(q), tiny)
	z := ke * math.Pow(aq, e.m.qexp)
	g := e.m.qexp * z / aq
	if g < rqtol {
		p = 1 / rqtol
	} else {
		p = 1 / g
	}
	return p, math.Copysign(z*p, q)
}

// demandHeadLoss is the pressure-demand relation for junction i seen as a
// head loss through a virtual link, with barriers outside [0, full demand].
func (e *Engine) demandHeadLoss(i int) (hloss, hgrad float64) {
	dp := e.m.pdaReq - e.m.pdaMin
	n := 1 / e.m.pdaExp
	d := e.dflow[i]
	full := e.demand[i]
	ratio := d / full
	switch {
	case ratio <= 0:
		return cbig * d, cbig
	case ratio < 1:
		hgrad = n * dp * math.Pow(ratio, n-1) / full
		if hgrad < rqtol {
			return rqtol * d, rqtol
		}
		return hgrad * d / n, hgrad
	}
	return dp + cbig*(d-full), cbig
}
