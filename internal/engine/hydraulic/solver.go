package hydraulic

import (
	stderrors "errors"
	"math"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/linalg"
	"aquanet/internal/engine/network"
)

type solveStats struct {
	iterations int
	relErr     float64
}

// solve runs Newton trials on the current state until flows converge and no
// status changes, or the trial limit is reached.
func (e *Engine) solve() (solveStats, error) {
	const op = "hydraulic.solve"
	opts := &e.m.net.Options
	trials := max(opts.Trials, 1)
	maxTrials := trials
	if opts.Unbalanced == network.UnbalancedContinue && opts.ExtraTrials > 0 {
		maxTrials += opts.ExtraTrials
	}
	checkFreq := max(opts.CheckFreq, 1)
	nextCheck := checkFreq
	relax := 1.0
	var st solveStats
	rescued := 0
	for {
		e.linkCoeffs()
		e.assemble()
		x, err := e.sys.Solve()
		if err != nil {
			var se *linalg.SingularError
			if stderrors.As(err, &se) {
				node := e.unknownNode[se.Row]
				if rescued < len(e.m.links) && e.badValve(node) {
					rescued++
					continue
				}
				return st, errors.Enginef(op, errors.ErrHydSolve, "ill-conditioned at node %s, t=%ds",
					e.m.net.Nodes[node].ID, e.htime)
			}
			return st, errors.Enginef(op, errors.ErrHydSolve, "%v", err)
		}
		for r, i := range e.unknownNode {
			e.head[i] = x[r]
		}
		st.relErr = e.newFlows(relax)
		st.iterations++

		relax = 1
		valveChange := false
		if opts.DampLimit > 0 {
			if st.relErr <= opts.DampLimit {
				relax = 0.6
				valveChange = e.valveStatus()
			}
		} else {
			valveChange = e.valveStatus()
		}

		if st.relErr <= opts.Accuracy {
			if st.iterations > trials {
				break
			}
			changed := valveChange
			if e.linkStatus() {
				changed = true
			}
			if e.pressureSwitch() {
				changed = true
			}
			if !changed {
				break
			}
			nextCheck = st.iterations + checkFreq
		} else if st.iterations <= opts.MaxCheck && st.iterations == nextCheck {
			e.linkStatus()
			nextCheck += checkFreq
		}
		if st.iterations >= maxTrials {
			break
		}
	}
	return st, nil
}

// assemble builds the linearised nodal equations for the unknown heads.
func (e *Engine) assemble() {
	s := e.sys
	s.Reset()
	for k := range e.m.links {
		l := &e.m.links[k]
		p, y, q := e.p[k], e.y[k], e.flow[k]
		r1, r2 := e.row[l.n1], e.row[l.n2]
		if p != 0 {
			switch {
			case r1 >= 0 && r2 >= 0:
				s.AddDiag(r1, p)
				s.AddDiag(r2, p)
				s.AddOffDiag(r1, r2, -p)
			case r1 >= 0:
				s.AddDiag(r1, p)
				s.AddRHS(r1, p*e.head[l.n2])
			case r2 >= 0:
				s.AddDiag(r2, p)
				s.AddRHS(r2, p*e.head[l.n1])
			}
		}
		if r1 >= 0 {
			s.AddRHS(r1, -(q - y))
		}
		if r2 >= 0 {
			s.AddRHS(r2, q-y)
		}
	}

	for i := range e.m.nodes {
		r := e.row[i]
		if r < 0 {
			continue
		}
		nd := &e.m.nodes[i]
		if e.pressureDriven(i) {
			hloss, hgrad := e.demandHeadLoss(i)
			s.AddDiag(r, 1/hgrad)
			s.AddRHS(r, (hloss+nd.elev+e.m.pdaMin)/hgrad-e.dflow[i])
		} else {
			s.AddRHS(r, -e.dflow[i])
		}
		if nd.emitterR > 0 {
			p, y := e.emitterCoeff(i)
			s.AddDiag(r, p)
			s.AddRHS(r, y+p*nd.elev-e.eflow[i])
		}
	}

	// active pressure valves hold the head at their controlled node
	for k := range e.m.links {
		if e.status[k] != Active {
			continue
		}
		l := &e.m.links[k]
		var n int
		switch l.kind {
		case network.PRV:
			n = l.n2
		case network.PSV:
			n = l.n1
		default:
			continue
		}
		if r := e.row[n]; r >= 0 {
			s.AddDiag(r, cbig)
			s.AddRHS(r, cbig*(e.m.nodes[n].elev+e.setting[k]))
		}
	}
}

func (e *Engine) pressureDriven(i int) bool {
	return e.m.pdaModel && e.row[i] >= 0 && e.demand[i] > 0
}

func (e *Engine) pinnedValve(k int) bool {
	kind := e.m.links[k].kind
	return e.status[k] == Active && (kind == network.PRV || kind == network.PSV)
}

// newFlows applies the Newton correction to link, emitter and demand flows
// and returns the relative flow change.
func (e *Engine) newFlows(relax float64) float64 {
	var qsum, dqsum float64
	for k := range e.m.links {
		if e.pinnedValve(k) {
			continue
		}
		l := &e.m.links[k]
		dh := e.head[l.n1] - e.head[l.n2]
		dq := (e.y[k] - e.p[k]*dh) * relax
		if l.pump != nil && l.pump.curve == constHP && dq > e.flow[k] {
			dq = e.flow[k] / 2
		}
		e.flow[k] -= dq
		qsum += math.Abs(e.flow[k])
		dqsum += math.Abs(dq)
	}

	for i := range e.m.nodes {
		nd := &e.m.nodes[i]
		if e.row[i] < 0 {
			continue
		}
		if nd.emitterR > 0 {
			p, y := e.emitterCoeff(i)
			dq := (y - p*(e.head[i]-nd.elev)) * relax
			e.eflow[i] -= dq
			qsum += math.Abs(e.eflow[i])
			dqsum += math.Abs(dq)
		}
		if e.pressureDriven(i) {
			hloss, hgrad := e.demandHeadLoss(i)
			dh := e.head[i] - nd.elev - e.m.pdaMin
			dq := (hloss - dh) / hgrad * relax
			if full := e.demand[i]; math.Abs(dq) > full {
				dq = math.Copysign(full, dq)
			}
			e.dflow[i] -= dq
			qsum += math.Abs(e.dflow[i])
			dqsum += math.Abs(dq)
		}
	}

	// flow through an active pressure valve is whatever balances the node
	// whose head it holds
	for k := range e.m.links {
		if !e.pinnedValve(k) {
			continue
		}
		l := &e.m.links[k]
		var q float64
		if l.kind == network.PRV {
			q = e.outflowExcept(l.n2, k)
		} else {
			q = -e.outflowExcept(l.n1, k)
		}
		dq := e.flow[k] - q
		e.flow[k] = q
		qsum += math.Abs(q)
		dqsum += math.Abs(dq)
	}

	if qsum > e.m.net.Options.Accuracy {
		return dqsum / qsum
	}
	return dqsum
}

// outflowExcept is the flow leaving node n through everything but link skip,
// including consumer demand and emitter discharge.
func (e *Engine) outflowExcept(n, skip int) float64 {
	out := e.dflow[n] + e.eflow[n]
	for _, k := range e.adj[n] {
		if k == skip {
			continue
		}
		if e.m.links[k].n1 == n {
			out += e.flow[k]
		} else {
			out -= e.flow[k]
		}
	}
	return out
}

// pressureSwitch fires level controls attached to junctions once a trial has
// converged.
func (e *Engine) pressureSwitch() bool {
	changed := false
	for _, c := range e.m.net.Controls {
		if !c.Enabled || c.Node <= 0 {
			continue
		}
		n := c.Node - 1
		if e.row[n] < 0 {
			continue
		}
		grade := e.m.nodes[n].elev + c.Level/e.m.units.Pressure
		fire := c.Kind == network.ControlLowLevel && e.head[n] <= grade+htol ||
			c.Kind == network.ControlHighLevel && e.head[n] >= grade-htol
		if fire && e.applyAction(c.Link-1, c.Status, c.Setting) {
			changed = true
		}
	}
	return changed
}

// disconnected reports whether any junction with positive demand cannot be
// reached from a fixed-grade node through open links.
func (e *Engine) disconnected() bool {
	marked := make([]bool, len(e.m.nodes))
	var stack []int
	for i := range e.m.nodes {
		if e.m.nodes[i].fixed {
			marked[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, k := range e.adj[i] {
			l := &e.m.links[k]
			j := l.n1
			if j == i {
				j = l.n2
			}
			if marked[j] || e.status[k] <= Closed {
				continue
			}
			switch l.kind {
			case network.CVPipe, network.PRV, network.PSV:
				if j == l.n1 {
					continue
				}
			}
			marked[j] = true
			stack = append(stack, j)
		}
	}
	for i := range e.m.nodes {
		if !marked[i] && e.demand[i] > 0 {
			return true
		}
	}
	return false
}
