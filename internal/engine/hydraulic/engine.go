package hydraulic

import (
	"math"
	"slices"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/linalg"
	"aquanet/internal/engine/network"
)

const secondsPerDay = 86400

// Result describes one hydraulic solution.
type Result struct {
	Time            int64
	Iterations      int
	RelativeError   float64
	Warnings        []errors.EngineCode
	DeficientNodes  int
	DemandReduction float64 // percent of required demand not delivered
	// Halted is set when an unbalanced solution stops the simulation.
	Halted bool
}

// Warning returns the most severe advisory code, or OK.
func (r Result) Warning() errors.EngineCode {
	if len(r.Warnings) == 0 {
		return errors.OK
	}
	return r.Warnings[0]
}

// Engine carries the hydraulic state of one network through an extended
// period simulation. It is not safe for concurrent use.
type Engine struct {
	net *network.Network
	m   *model

	sys         *linalg.System
	row         []int // node -> unknown, -1 for fixed-grade nodes
	unknownNode []int
	adj         [][]int // links incident to each node

	head    []float64
	demand  []float64 // required demand
	dflow   []float64 // delivered demand
	eflow   []float64 // emitter discharge
	inflow  []float64 // net inflow at fixed-grade nodes
	volume  []float64
	flow    []float64
	status  []Status
	setting []float64
	p, y    []float64

	htime  int64
	halted bool
	done   bool
	solved bool
	last   Result
}

// New prepares an engine for net. The network topology must not change for
// the engine's lifetime; property edits are picked up on every Run.
func New(net *network.Network) (*Engine, error) {
	const op = "hydraulic.New"
	if len(net.Nodes) == 0 {
		return nil, errors.Engine(op, errors.ErrNoNetwork)
	}
	nn, nl := len(net.Nodes), len(net.Links)
	e := &Engine{
		net:     net,
		m:       newModel(net),
		row:     make([]int, nn),
		adj:     make([][]int, nn),
		head:    make([]float64, nn),
		demand:  make([]float64, nn),
		dflow:   make([]float64, nn),
		eflow:   make([]float64, nn),
		inflow:  make([]float64, nn),
		volume:  make([]float64, nn),
		flow:    make([]float64, nl),
		status:  make([]Status, nl),
		setting: make([]float64, nl),
		p:       make([]float64, nl),
		y:       make([]float64, nl),
	}
	for i := range e.m.nodes {
		e.row[i] = -1
		if !e.m.nodes[i].fixed {
			e.row[i] = len(e.unknownNode)
			e.unknownNode = append(e.unknownNode, i)
		}
	}
	if len(e.unknownNode) == 0 {
		return nil, errors.Enginef(op, errors.ErrNotEnoughNodes, "no junctions")
	}
	var pairs [][2]int
	for k, l := range e.m.links {
		e.adj[l.n1] = append(e.adj[l.n1], k)
		e.adj[l.n2] = append(e.adj[l.n2], k)
		if r1, r2 := e.row[l.n1], e.row[l.n2]; r1 >= 0 && r2 >= 0 {
			pairs = append(pairs, [2]int{r1, r2})
		}
	}
	sys, err := linalg.NewSystem(len(e.unknownNode), pairs)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrHydSolve, "%v", err)
	}
	e.sys = sys
	e.Init()
	return e, nil
}

// Init resets the clock, tank volumes, link statuses and flows.
func (e *Engine) Init() {
	e.m.load()
	e.htime = 0
	e.halted, e.done, e.solved = false, false, false
	e.last = Result{}
	for i := range e.m.nodes {
		nd := &e.m.nodes[i]
		e.head[i] = nd.elev
		e.demand[i], e.dflow[i], e.inflow[i], e.volume[i] = 0, 0, 0, 0
		e.eflow[i] = 0
		if nd.emitterR > 0 {
			e.eflow[i] = 1
		}
		if nd.tank != nil {
			e.volume[i] = nd.tank.v0
			e.head[i] = nd.tank.head(nd.tank.v0)
		}
	}
	for k, link := range e.net.Links {
		e.status[k] = fromLinkStatus(link.InitStatus)
		e.setting[k] = 0
		switch {
		case link.Kind == network.Pump:
			e.setting[k] = link.InitSetting
			if e.status[k] == Active {
				e.status[k] = Open
			}
			if link.InitSetting == 0 {
				e.status[k] = Closed
			}
		case link.Kind == network.GPV:
			e.setting[k] = link.InitSetting
			if e.status[k] == Active {
				e.status[k] = Open
			}
		case link.Kind.IsValve():
			e.setting[k] = network.Missing
			if link.InitStatus == network.StatusActive {
				e.setting[k] = e.internalSetting(k, link.InitSetting)
			}
		}
		e.resetFlow(k)
	}
}

func (e *Engine) resetFlow(k int) {
	if e.status[k] <= Closed {
		e.flow[k] = qzero
		return
	}
	l := &e.m.links[k]
	if l.pump != nil {
		e.flow[k] = l.pump.q0 * math.Max(e.setting[k], tiny)
		return
	}
	e.flow[k] = l.initialFlow()
}

// internalSetting converts a valve or pump setting from user units.
func (e *Engine) internalSetting(k int, v float64) float64 {
	if v == network.Missing {
		return v
	}
	switch e.m.links[k].kind {
	case network.PRV, network.PSV, network.PBV:
		return v / e.m.units.Pressure
	case network.FCV:
		return v / e.m.units.Flow
	}
	return v
}

// UserSetting converts an engine setting for a link of the given kind back
// into user units.
func UserSetting(kind network.LinkKind, v float64, u network.Units) float64 {
	if v == network.Missing {
		return v
	}
	switch kind {
	case network.PRV, network.PSV, network.PBV:
		return v * u.Pressure
	case network.FCV:
		return v * u.Flow
	}
	return v
}

// Time is the current hydraulic clock in seconds.
func (e *Engine) Time() int64 { return e.htime }

// Done reports whether the simulation horizon has been exhausted.
func (e *Engine) Done() bool { return e.done }

// Solved reports whether a solution exists for the current time.
func (e *Engine) Solved() bool { return e.solved }

func (e *Engine) Last() Result { return e.last }

// Run solves the network at the current time.
func (e *Engine) Run() (Result, error) {
	e.m.load()
	e.applyPatterns()
	e.applyControls()

	st, err := e.solve()
	if err != nil {
		e.solved = false
		return Result{Time: e.htime}, err
	}
	e.finishSolution()

	opts := &e.m.net.Options
	res := Result{
		Time:          e.htime,
		Iterations:    st.iterations,
		RelativeError: st.relErr,
	}
	res.DeficientNodes, res.DemandReduction = e.deficiency()
	res.Warnings = e.warnings(st)
	if st.relErr > opts.Accuracy && opts.Unbalanced == network.UnbalancedStop {
		e.halted = true
		res.Halted = true
	}
	e.solved = true
	e.last = res
	return res, nil
}

// Next advances the clock to the next solution time and returns the
// interval, or 0 once the simulation has ended.
func (e *Engine) Next() int64 {
	dur := e.net.Times.Duration
	if e.halted || e.done || e.htime >= dur {
		e.done = true
		return 0
	}
	step := e.timeStep()
	if len(e.net.Rules) > 0 {
		step = e.ruleTimeStep(step)
	} else {
		e.updateTanks(step)
	}
	e.htime += step
	e.solved = false
	return step
}

// applyPatterns sets demands, reservoir heads and pump speeds for the
// current pattern period, and tank heads from their volumes.
func (e *Engine) applyPatterns() {
	net := e.net
	period := int64(0)
	if ps := net.Times.PatternStep; ps > 0 {
		period = (e.htime + net.Times.PatternStart) / ps
	}
	mult := net.Options.DemandMultiplier
	for i, node := range net.Nodes {
		nd := &e.m.nodes[i]
		switch node.Kind {
		case network.Junction:
			var d float64
			for _, dm := range nd.demands {
				d += dm.base * net.Pattern(dm.pattern).Multiplier(period)
			}
			e.demand[i] = d * mult
			e.dflow[i] = e.demand[i]
		case network.Reservoir:
			e.head[i] = nd.elev
			if node.DemandPattern > 0 {
				e.head[i] = nd.elev * net.Pattern(node.DemandPattern).Multiplier(period)
			}
		case network.Tank:
			e.head[i] = nd.tank.head(e.volume[i])
		}
	}
	for k, link := range net.Links {
		if link.Kind != network.Pump || link.SpeedPattern == 0 {
			continue
		}
		v := net.Pattern(link.SpeedPattern).Multiplier(period)
		e.setPumpSpeed(k, v)
	}
}

func (e *Engine) setPumpSpeed(k int, v float64) {
	e.setting[k] = v
	switch {
	case v > 0 && e.status[k] <= Closed:
		e.status[k] = Open
		e.resetFlow(k)
	case v == 0 && e.status[k] > Closed:
		e.status[k] = Closed
		e.flow[k] = qzero
	}
}

// applyControls fires simple controls whose condition holds at the current
// time.
func (e *Engine) applyControls() {
	clock := (e.htime + e.net.Times.StartClock) % secondsPerDay
	for _, c := range e.net.Controls {
		if !c.Enabled || c.Link <= 0 {
			continue
		}
		fire := false
		switch c.Kind {
		case network.ControlTimer:
			fire = c.Time == e.htime
		case network.ControlTimeOfDay:
			fire = c.Time == clock
		default:
			fire = e.levelControlFires(c)
		}
		if fire {
			e.applyAction(c.Link-1, c.Status, c.Setting)
		}
	}
}

func (e *Engine) levelControlFires(c *network.Control) bool {
	if c.Node <= 0 {
		return false
	}
	n := c.Node - 1
	nd := &e.m.nodes[n]
	if t := nd.tank; t != nil {
		v1 := e.volume[n]
		v2 := t.volume(nd.elev + c.Level/e.m.units.Length)
		vplus := math.Abs(e.inflow[n])
		if c.Kind == network.ControlLowLevel {
			return v1 <= v2+vplus
		}
		return v1 >= v2-vplus
	}
	if nd.fixed {
		return false
	}
	grade := nd.elev + c.Level/e.m.units.Pressure
	if c.Kind == network.ControlLowLevel {
		return e.head[n] < grade
	}
	return e.head[n] > grade
}

// applyAction imposes a control's status and setting on link k and reports
// whether anything changed.
func (e *Engine) applyAction(k int, status network.LinkStatus, setting float64) bool {
	l := &e.m.links[k]
	old := e.status[k]
	target := fromLinkStatus(status)
	want := e.internalSetting(k, setting)
	changed := false
	switch {
	case l.kind.IsPipe():
		changed = old != target
	case l.kind == network.Pump:
		changed = e.setting[k] != want
	default:
		changed = e.setting[k] != want || want == network.Missing && old != target
	}
	if !changed {
		return false
	}
	if l.kind == network.Pump && target == Active {
		target = Open
	}
	e.status[k] = target
	if !l.kind.IsPipe() {
		e.setting[k] = want
	}
	if target != old {
		e.resetFlow(k)
	}
	return true
}

// SetLinkStatus opens or closes link idx (1-based) for the following
// solutions.
func (e *Engine) SetLinkStatus(idx int, open bool) error {
	const op = "hydraulic.SetLinkStatus"
	k := idx - 1
	if k < 0 || k >= len(e.m.links) {
		return errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	l := &e.m.links[k]
	if l.kind == network.CVPipe {
		return errors.Enginef(op, errors.ErrControlCV, "link %s", e.net.Links[k].ID)
	}
	old := e.status[k]
	if open {
		e.status[k] = Open
		if l.kind == network.Pump {
			e.setting[k] = 1
		}
	} else {
		e.status[k] = Closed
		if l.kind == network.Pump {
			e.setting[k] = 0
		}
	}
	if l.kind.IsValve() && l.kind != network.GPV {
		e.setting[k] = network.Missing
	}
	if old.IsOpen() != e.status[k].IsOpen() {
		e.resetFlow(k)
	}
	return nil
}

// SetLinkSetting changes a pump speed or valve setting (user units) for the
// following solutions. Pipes ignore it.
func (e *Engine) SetLinkSetting(idx int, v float64) error {
	const op = "hydraulic.SetLinkSetting"
	k := idx - 1
	if k < 0 || k >= len(e.m.links) {
		return errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	if v < 0 || math.IsNaN(v) {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	l := &e.m.links[k]
	switch {
	case l.kind.IsPipe():
		return nil
	case l.kind == network.Pump:
		e.setPumpSpeed(k, v)
	case l.kind == network.GPV:
		if int(v) < 1 || int(v) > len(e.net.Curves) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "index %d", int(v))
		}
		e.setting[k] = v
	default:
		if e.status[k] <= Closed {
			e.status[k] = Active
			e.resetFlow(k)
		}
		e.setting[k] = e.internalSetting(k, v)
		if l.kind == network.TCV {
			e.status[k] = Open
		} else {
			e.status[k] = Active
		}
	}
	return nil
}

// finishSolution records fixed-grade inflows and flags pumps running past
// the end of their curves.
func (e *Engine) finishSolution() {
	for i := range e.m.nodes {
		if !e.m.nodes[i].fixed {
			continue
		}
		e.inflow[i] = -e.outflowExcept(i, -1)
	}
	for k := range e.m.links {
		l := &e.m.links[k]
		if l.pump == nil || l.pump.curve == constHP || e.status[k] <= Closed {
			continue
		}
		if e.flow[k] > l.pump.qmax*e.setting[k]+qtol {
			e.status[k] = XFlow
		}
	}
}

func (e *Engine) deficiency() (int, float64) {
	if !e.m.pdaModel {
		return 0, 0
	}
	count := 0
	var need, short float64
	for i := range e.m.nodes {
		if !e.pressureDriven(i) {
			continue
		}
		need += e.demand[i]
		if d := e.demand[i] - e.dflow[i]; d > qtol {
			count++
			short += d
		}
	}
	if need <= 0 {
		return count, 0
	}
	return count, short / need * 100
}

// warnings lists the advisory codes raised by the current solution in
// ascending order.
func (e *Engine) warnings(st solveStats) []errors.EngineCode {
	opts := &e.m.net.Options
	var out []errors.EngineCode
	add := func(c errors.EngineCode) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	if st.relErr > opts.Accuracy {
		add(errors.WarnUnbalanced)
	} else if st.iterations > max(opts.Trials, 1) {
		add(errors.WarnUnstable)
	}
	if e.disconnected() {
		add(errors.WarnDisconnected)
	}
	for k := range e.m.links {
		switch e.status[k] {
		case XHead, XFlow:
			if e.m.links[k].kind == network.Pump {
				add(errors.WarnPumps)
			}
		case XFCV, XPressure:
			add(errors.WarnValves)
		}
	}
	if !e.m.pdaModel {
		for i := range e.m.nodes {
			if e.row[i] >= 0 && e.demand[i] > 0 && e.head[i] < e.m.nodes[i].elev {
				add(errors.WarnPressures)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

// timeStep is the interval to the next event: the hydraulic step, a pattern
// or report boundary, a tank filling or draining, or a control firing.
func (e *Engine) timeStep() int64 {
	times := e.net.Times
	t0 := e.htime
	step := times.HydStep
	if step <= 0 {
		step = times.Duration - t0
	}
	shorten := func(t int64) {
		if t > 0 && t < step {
			step = t
		}
	}
	if ps := times.PatternStep; ps > 0 {
		n := (t0+times.PatternStart)/ps + 1
		shorten(n*ps - times.PatternStart - t0)
	}
	shorten(NextReportTime(times, t0) - t0)
	e.tankTimeStep(shorten)
	e.controlTimeStep(shorten)
	if rem := times.Duration - t0; rem < step {
		step = rem
	}
	return step
}

// NextReportTime is the first reporting instant strictly after t.
func NextReportTime(times network.Times, t int64) int64 {
	rs := times.ReportStart
	if t < rs {
		return rs
	}
	rstep := times.ReportStep
	if rstep <= 0 {
		rstep = times.HydStep
	}
	if rstep <= 0 {
		return times.Duration
	}
	return rs + ((t-rs)/rstep+1)*rstep
}

func (e *Engine) tankTimeStep(shorten func(int64)) {
	for i := range e.m.nodes {
		t := e.m.nodes[i].tank
		if t == nil {
			continue
		}
		q := e.inflow[i]
		if math.Abs(q) <= qzero {
			continue
		}
		var v float64
		switch {
		case q > 0 && e.head[i] < t.hmax:
			v = t.vmax - e.volume[i]
		case q < 0 && e.head[i] > t.hmin:
			v = t.vmin - e.volume[i]
		default:
			continue
		}
		shorten(int64(math.Round(v / q)))
	}
}

func (e *Engine) controlTimeStep(shorten func(int64)) {
	clock := (e.htime + e.net.Times.StartClock) % secondsPerDay
	for _, c := range e.net.Controls {
		if !c.Enabled || c.Link <= 0 {
			continue
		}
		var t int64
		switch c.Kind {
		case network.ControlTimer:
			if c.Time > e.htime {
				t = c.Time - e.htime
			}
		case network.ControlTimeOfDay:
			if c.Time >= clock {
				t = c.Time - clock
			} else {
				t = secondsPerDay - clock + c.Time
			}
		default:
			t = e.tankControlTime(c)
		}
		if t <= 0 {
			continue
		}
		k := c.Link - 1
		l := &e.m.links[k]
		if !l.kind.IsPipe() && e.setting[k] != e.internalSetting(k, c.Setting) ||
			e.status[k].IsOpen() != (c.Status != network.StatusClosed) {
			shorten(t)
		}
	}
}

func (e *Engine) tankControlTime(c *network.Control) int64 {
	if c.Node <= 0 {
		return 0
	}
	n := c.Node - 1
	nd := &e.m.nodes[n]
	if nd.tank == nil {
		return 0
	}
	q := e.inflow[n]
	if math.Abs(q) <= qzero {
		return 0
	}
	grade := nd.elev + c.Level/e.m.units.Length
	h := e.head[n]
	if h < grade && c.Kind == network.ControlHighLevel && q > 0 ||
		h > grade && c.Kind == network.ControlLowLevel && q < 0 {
		v := nd.tank.volume(grade) - e.volume[n]
		return int64(math.Round(v / q))
	}
	return 0
}

func (e *Engine) updateTanks(dt int64) {
	for i := range e.m.nodes {
		t := e.m.nodes[i].tank
		if t == nil {
			continue
		}
		q := e.inflow[i]
		v := e.volume[i] + q*float64(dt)
		switch {
		case q > 0 && v+q >= t.vmax:
			v = t.vmax
		case q < 0 && v+q <= t.vmin:
			v = t.vmin
		}
		v = math.Max(t.vmin, math.Min(t.vmax, v))
		e.volume[i] = v
		e.head[i] = t.head(v)
	}
}
