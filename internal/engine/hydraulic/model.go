// Package hydraulic solves extended-period network hydraulics with the global
// gradient algorithm. All quantities inside the package are in feet, cubic
// feet per second and seconds; node and link slices are 0-based.
package hydraulic

import (
	"math"

	"aquanet/internal/engine/network"
)

const (
	cbig   = 1.0e8
	csmall = 1.0e-6
	rqtol  = 1.0e-7
	qzero  = 1.0e-6
	htol   = 0.0005
	qtol   = 0.0001
	tiny   = 1.0e-6

	viscosityWater = 1.1e-5 // ft2/s at 20 C
	hpToKW         = 0.7457
	pumpEfficiency = 0.75
	// ft*lbf/s per horsepower divided by the unit weight of water
	hpFactor = 8.814
)

type pumpCurve int

const (
	constHP pumpCurve = iota
	powerFunc
	customCurve
)

type pumpModel struct {
	curve pumpCurve
	h0    float64 // shutoff head at full speed
	r     float64
	n     float64
	qmax  float64
	q0    float64 // design flow
	hp    float64
	x, y  []float64 // custom curve in internal units
}

type tankModel struct {
	area        float64
	hmin, hmax  float64 // heads
	vmin, vmax  float64
	v0          float64
	curveH      []float64 // volume curve: head
	curveV      []float64 // volume curve: volume
	canOverflow bool
}

type nodeModel struct {
	elev     float64
	fixed    bool
	tank     *tankModel
	demands  []demandModel
	emitterR float64
}

// demandModel is one demand category in engine flow units.
type demandModel struct {
	base    float64
	pattern int // 1-based, 0 for none
}

type linkModel struct {
	kind     network.LinkKind
	n1, n2   int
	diameter float64
	length   float64
	area     float64
	r        float64 // resistance coefficient for the head loss formula
	rough    float64
	km       float64 // minor loss coefficient
	pump     *pumpModel
	gpvX     []float64
	gpvY     []float64
}

// model is the static, unit-converted view of a network. It is rebuilt from
// the network before every solution so edits between steps take effect.
type model struct {
	net   *network.Network
	units network.Units
	nodes []nodeModel
	links []linkModel

	headExp  float64 // 1.852 for H-W, 2 otherwise
	viscos   float64
	qexp     float64 // emitter exponent 1/gamma
	pdaMin   float64 // ft of pressure
	pdaReq   float64
	pdaExp   float64
	pdaModel bool
}

func newModel(net *network.Network) *model {
	m := &model{net: net}
	m.nodes = make([]nodeModel, len(net.Nodes))
	m.links = make([]linkModel, len(net.Links))
	m.load()
	return m
}

func (m *model) load() {
	net := m.net
	opts := net.Options
	u := net.Units()
	m.units = u

	m.headExp = 2.0
	if opts.HeadLoss == network.HazenWilliams {
		m.headExp = 1.852
	}
	m.viscos = viscosityWater * opts.Viscosity
	m.qexp = 1.0 / opts.EmitterExponent
	m.pdaModel = opts.DemandModel == network.PressureDriven
	m.pdaMin = opts.MinPressure / u.Pressure
	m.pdaReq = opts.ReqPressure / u.Pressure
	m.pdaExp = opts.PressureExp
	if m.pdaExp <= 0 {
		m.pdaExp = 0.5
	}
	if m.pdaReq-m.pdaMin < 0.1 {
		m.pdaReq = m.pdaMin + 0.1
	}

	defPat := net.DefaultPatternIndex()
	for i, node := range net.Nodes {
		nm := &m.nodes[i]
		nm.elev = node.Elevation / u.Length
		nm.fixed = node.Kind != network.Junction
		nm.tank = nil
		nm.emitterR = 0
		nm.demands = nm.demands[:0]
		if node.Kind == network.Junction {
			for _, d := range node.Demands() {
				dm := demandModel{base: d.Base / u.Flow, pattern: d.Pattern}
				if dm.pattern == 0 {
					dm.pattern = defPat
				}
				nm.demands = append(nm.demands, dm)
			}
		}
		if node.Kind == network.Junction && node.Emitter > 0 {
			nm.emitterR = math.Pow(u.Flow/node.Emitter, m.qexp) / u.Pressure
		}
		if node.Kind == network.Tank {
			nm.tank = m.loadTank(node)
		}
	}
	for k, link := range net.Links {
		m.links[k] = m.loadLink(link)
	}
}

func (m *model) loadTank(node *network.Node) *tankModel {
	u := m.units
	t := node.Tank
	elev := node.Elevation / u.Length
	d := t.Diameter / u.Length
	tm := &tankModel{
		area:        math.Pi * d * d / 4,
		hmin:        elev + t.MinLevel/u.Length,
		hmax:        elev + t.MaxLevel/u.Length,
		canOverflow: t.CanOverflow,
	}
	if c := m.net.Curve(t.VolumeCurve); c != nil {
		tm.curveH = make([]float64, len(c.X))
		tm.curveV = make([]float64, len(c.Y))
		for i := range c.X {
			tm.curveH[i] = elev + c.X[i]/u.Length
			tm.curveV[i] = c.Y[i] / u.Volume
		}
		// effective area from the curve's overall slope, used for time steps
		if n := len(c.X); n > 1 && tm.curveH[n-1] > tm.curveH[0] {
			tm.area = (tm.curveV[n-1] - tm.curveV[0]) / (tm.curveH[n-1] - tm.curveH[0])
		}
		tm.vmin = network.Interpolate(tm.curveH, tm.curveV, tm.hmin)
		tm.vmax = network.Interpolate(tm.curveH, tm.curveV, tm.hmax)
		tm.v0 = network.Interpolate(tm.curveH, tm.curveV, elev+t.InitLevel/u.Length)
		return tm
	}
	tm.vmin = t.BaseVolume() / u.Volume
	tm.vmax = tm.vmin + tm.area*(tm.hmax-tm.hmin)
	tm.v0 = tm.vmin + tm.area*(t.InitLevel-t.MinLevel)/u.Length
	return tm
}

// volume returns the stored volume at head h.
func (t *tankModel) volume(h float64) float64 {
	if t.curveH != nil {
		return network.Interpolate(t.curveH, t.curveV, h)
	}
	return t.vmin + t.area*(h-t.hmin)
}

// head returns the water surface elevation for stored volume v.
func (t *tankModel) head(v float64) float64 {
	if t.curveH != nil {
		return network.Interpolate(t.curveV, t.curveH, v)
	}
	if t.area <= 0 {
		return t.hmin
	}
	return t.hmin + (v-t.vmin)/t.area
}

func (m *model) loadLink(link *network.Link) linkModel {
	u := m.units
	lm := linkModel{
		kind: link.Kind,
		n1:   link.From - 1,
		n2:   link.To - 1,
	}
	if link.Kind == network.Pump {
		lm.pump = m.loadPump(link)
		return lm
	}
	lm.diameter = link.Diameter / u.Diameter
	lm.area = math.Pi * lm.diameter * lm.diameter / 4
	if lm.diameter > 0 {
		lm.km = 0.02517 * link.MinorLoss / math.Pow(lm.diameter, 4)
	}
	if link.Kind == network.GPV {
		if c := m.net.Curve(int(link.InitSetting)); c != nil {
			lm.gpvX = make([]float64, len(c.X))
			lm.gpvY = make([]float64, len(c.Y))
			for i := range c.X {
				lm.gpvX[i] = c.X[i] / u.Flow
				lm.gpvY[i] = c.Y[i] / u.Length
			}
		}
		return lm
	}
	if !link.Kind.IsPipe() {
		return lm
	}
	lm.length = link.Length / u.Length
	d := lm.diameter
	switch m.net.Options.HeadLoss {
	case network.HazenWilliams:
		lm.rough = link.Roughness
		lm.r = 4.727 * lm.length / math.Pow(lm.rough, 1.852) / math.Pow(d, 4.871)
	case network.DarcyWeisbach:
		lm.rough = link.Roughness / u.Roughness
		lm.r = lm.length / 2.0 / 32.2 / d / (lm.area * lm.area)
	case network.ChezyManning:
		lm.rough = link.Roughness
		lm.r = 4.66 * lm.rough * lm.rough * lm.length / math.Pow(d, 5.33)
	}
	return lm
}

func (m *model) loadPump(link *network.Link) *pumpModel {
	u := m.units
	pm := &pumpModel{n: 1}
	c := m.net.Curve(link.HeadCurve)
	if c == nil || len(c.X) == 0 {
		pm.curve = constHP
		pm.hp = link.Power
		if u.FlowUnits.IsSI() {
			pm.hp = link.Power / hpToKW
		}
		pm.h0 = cbig
		pm.q0 = 1.0
		return pm
	}
	xs := make([]float64, len(c.X))
	ys := make([]float64, len(c.Y))
	for i := range c.X {
		xs[i] = c.X[i] / u.Flow
		ys[i] = c.Y[i] / u.Length
	}
	switch {
	case len(xs) == 1:
		h0 := 1.33334 * ys[0]
		if r, n, ok := powerCurve(h0, ys[0], 0, xs[0], 2*xs[0]); ok {
			pm.curve, pm.h0, pm.r, pm.n = powerFunc, h0, r, n
			pm.qmax, pm.q0 = 2*xs[0], xs[0]
			return pm
		}
	case len(xs) == 3 && xs[0] == 0:
		if r, n, ok := powerCurve(ys[0], ys[1], ys[2], xs[1], xs[2]); ok {
			pm.curve, pm.h0, pm.r, pm.n = powerFunc, ys[0], r, n
			pm.qmax = math.Pow(ys[0]/r, 1/n)
			pm.q0 = xs[1]
			return pm
		}
	}
	pm.curve = customCurve
	pm.x, pm.y = xs, ys
	pm.qmax = xs[len(xs)-1]
	pm.q0 = (xs[0] + xs[len(xs)-1]) / 2
	pm.h0 = ys[0]
	if len(xs) > 1 && xs[0] > 0 {
		pm.h0 = network.Interpolate(xs, ys, 0)
	}
	return pm
}

// powerCurve fits h = h0 - r*q^n through (0,h0), (q1,h1), (q2,h2).
func powerCurve(h0, h1, h2, q1, q2 float64) (r, n float64, ok bool) {
	if h0 < tiny || h0-h1 < tiny || h1-h2 < tiny || q1 < tiny || q2-q1 < tiny {
		return 0, 0, false
	}
	h4 := h0 - h1
	h5 := h0 - h2
	n = math.Log(h5/h4) / math.Log(q2/q1)
	if n <= 0 || n > 20 {
		return 0, 0, false
	}
	r = h4 / math.Pow(q1, n)
	if r <= 0 {
		return 0, 0, false
	}
	return r, n, true
}

// initialFlow is the flow assumed for an open link before the first solution.
func (l *linkModel) initialFlow() float64 {
	if l.pump != nil {
		return l.pump.q0
	}
	return l.area
}
