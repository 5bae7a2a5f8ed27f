// Package quality transports and reacts a single water quality constituent
// through a network whose hydraulics are already known.
//
// Each link carries an ordered list of water parcels (segments), leading
// parcel first. Every quality step, parcels react in place, then nodes are
// visited in flow order: parcels leaving upstream links are blended at the
// node and a new parcel of the blend enters each downstream link.
package quality

import (
	"math"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"
	"aquanet/internal/engine/network"
)

const (
	litersPerFt3   = 28.317
	diffusivityCl2 = 1.3e-8 // ft2/s, chlorine in water at 20 C
	viscosityWater = 1.1e-5
	qzero          = 1.0e-6
	secondsPerHour = 3600.0
)

type segment struct {
	v float64 // ft3
	c float64
}

// Engine holds the water quality state. Concentrations are kept in the
// project's quality units (mg/L or ug/L for chemicals, hours for age,
// percent for trace).
type Engine struct {
	net  *network.Network
	kind network.QualityKind

	segs     [][]segment
	linkVol  []float64
	diameter []float64 // ft
	length   []float64
	kb       []float64 // bulk coefficient, 1/s
	kw       []float64 // wall coefficient, ft/s
	kwall    []float64 // effective wall rate for the current flows
	tankKb   []float64

	nodeQual []float64
	tankVol  []float64
	tankC    []float64 // mixed tank contents; nodeQual holds what leaves the tank
	isTank   []bool
	fixed    []bool
	trace    int

	flow   []float64 // signed link flow, 0 when closed or stagnant
	dir    []int8    // last direction of flow, +1 when from From to To
	demand []float64
	order  []int
	in     [][]int // links incident to each node

	qtime int64
	qstep int64
	ctol  float64
}

// New prepares a quality engine for net. It does not require a quality
// option to be set; with QualityNone every result is zero.
func New(net *network.Network) (*Engine, error) {
	const op = "quality.New"
	nn, nl := len(net.Nodes), len(net.Links)
	if nn == 0 {
		return nil, errors.Engine(op, errors.ErrNoNetwork)
	}
	e := &Engine{
		net:      net,
		segs:     make([][]segment, nl),
		linkVol:  make([]float64, nl),
		diameter: make([]float64, nl),
		length:   make([]float64, nl),
		kb:       make([]float64, nl),
		kw:       make([]float64, nl),
		kwall:    make([]float64, nl),
		flow:     make([]float64, nl),
		dir:      make([]int8, nl),
		tankKb:   make([]float64, nn),
		nodeQual: make([]float64, nn),
		tankVol:  make([]float64, nn),
		tankC:    make([]float64, nn),
		isTank:   make([]bool, nn),
		fixed:    make([]bool, nn),
		demand:   make([]float64, nn),
		in:       make([][]int, nn),
		trace:    -1,
	}
	for k, l := range net.Links {
		e.in[l.From-1] = append(e.in[l.From-1], k)
		e.in[l.To-1] = append(e.in[l.To-1], k)
	}
	e.Init()
	return e, nil
}

// Init restores initial concentrations and tank volumes and clears all
// parcels. It re-reads reaction coefficients from the network.
func (e *Engine) Init() {
	net := e.net
	u := net.Units()
	opts := &net.Options
	e.kind = opts.Quality
	e.ctol = opts.Tolerance
	e.qstep = net.Times.EffectiveQualStep()
	e.qtime = 0
	e.trace = -1
	if e.kind == network.QualityTrace {
		if idx, ok := net.NodeIndex(opts.TraceNode); ok {
			e.trace = idx - 1
		}
	}

	for i, node := range net.Nodes {
		e.isTank[i] = node.Kind == network.Tank
		e.fixed[i] = node.Kind != network.Junction
		e.nodeQual[i] = 0
		if e.kind == network.QualityChem {
			e.nodeQual[i] = node.InitQuality
		}
		if i == e.trace {
			e.nodeQual[i] = 100
		}
		e.tankC[i] = e.nodeQual[i]
		e.tankVol[i] = 0
		e.tankKb[i] = 0
		if node.Tank != nil {
			e.tankVol[i] = net.TankVolume(node.Tank, node.Tank.InitLevel) / u.Volume
			e.tankKb[i] = network.BulkRate(orGlobal(node.Tank.Bulk, opts.GlobalBulk))
		}
		e.demand[i] = 0
	}

	for k, link := range net.Links {
		e.flow[k] = 0
		e.dir[k] = 1
		e.segs[k] = e.segs[k][:0]
		e.diameter[k] = link.Diameter / u.Diameter
		e.length[k] = 0
		e.linkVol[k] = 0
		if link.Kind.IsPipe() {
			e.length[k] = link.Length / u.Length
			e.linkVol[k] = math.Pi * e.diameter[k] * e.diameter[k] / 4 * e.length[k]
		}
		e.kb[k] = network.BulkRate(orGlobal(link.Bulk, opts.GlobalBulk))
		e.kw[k] = orGlobal(link.Wall, opts.GlobalWall) / u.WallRate
		e.kwall[k] = 0
		if e.linkVol[k] > 0 {
			c := e.nodeQual[link.To-1]
			if e.kind != network.QualityChem {
				c = 0
			}
			e.segs[k] = append(e.segs[k], segment{v: e.linkVol[k], c: c})
		}
	}
}

func orGlobal(v, global float64) float64 {
	if v == network.Missing {
		return global
	}
	return v
}

// Time is the quality clock in seconds.
func (e *Engine) Time() int64 { return e.qtime }

// Step is the quality time step in seconds.
func (e *Engine) Step() int64 { return e.qstep }

// SetHydraulics installs the flows that hold from the snapshot's time until
// the next hydraulic event.
func (e *Engine) SetHydraulics(s *hydraulic.Snapshot) {
	for k := range e.flow {
		q := s.Flow[k]
		if !s.Status[k].IsOpen() || math.Abs(q) < qzero {
			q = 0
		}
		var d int8
		switch {
		case q > 0:
			d = 1
		case q < 0:
			d = -1
		}
		// parcels keep their place along the pipe when the flow reverses
		if d != 0 && d != e.dir[k] {
			reverse(e.segs[k])
			e.dir[k] = d
		}
		e.flow[k] = q
		e.kwall[k] = e.wallRate(k, q)
	}
	for i := range e.demand {
		e.demand[i] = s.Demand[i]
		if e.isTank[i] {
			e.tankVol[i] = s.Volume[i]
		}
	}
	e.sortNodes()
}

func reverse(s []segment) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Advance moves the quality clock forward by dt seconds in quality steps.
func (e *Engine) Advance(dt int64) {
	for dt > 0 {
		step := min(e.qstep, dt)
		e.react(step)
		e.transport(step)
		e.qtime += step
		dt -= step
	}
}

// NodeQuality returns the concentration at node idx (1-based).
func (e *Engine) NodeQuality(idx int) float64 {
	return e.nodeQual[idx-1]
}

// LinkQuality is the volume-weighted average over the link's parcels, or the
// mean of its end nodes when it holds none.
func (e *Engine) LinkQuality(idx int) float64 {
	k := idx - 1
	var vsum, msum float64
	for _, s := range e.segs[k] {
		vsum += s.v
		msum += s.c * s.v
	}
	if vsum > 0 {
		return msum / vsum
	}
	l := e.net.Links[k]
	return (e.nodeQual[l.From-1] + e.nodeQual[l.To-1]) / 2
}

// ends returns the node water enters link k from and the node it leaves to.
func (e *Engine) ends(k int) (up, down int) {
	l := e.net.Links[k]
	if e.dir[k] < 0 {
		return l.To - 1, l.From - 1
	}
	return l.From - 1, l.To - 1
}

// sortNodes orders nodes so that every node follows the nodes feeding it.
// Nodes on flow loops are appended in index order.
func (e *Engine) sortNodes() {
	n := len(e.nodeQual)
	indeg := make([]int, n)
	for k := range e.flow {
		if e.flow[k] == 0 {
			continue
		}
		_, down := e.ends(k)
		indeg[down]++
	}
	e.order = e.order[:0]
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	placed := make([]bool, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		e.order = append(e.order, i)
		placed[i] = true
		for _, k := range e.in[i] {
			if e.flow[k] == 0 {
				continue
			}
			up, down := e.ends(k)
			if up != i {
				continue
			}
			indeg[down]--
			if indeg[down] == 0 {
				queue = append(queue, down)
			}
		}
	}
	for i := 0; i < n; i++ {
		if !placed[i] {
			e.order = append(e.order, i)
		}
	}
}
