package hydraulic

import (
	"math"

	"aquanet/internal/engine/network"
)

// ruleTol is the comparison tolerance for rule premise values.
const ruleTol = 1e-3

// ruleTimeStep walks the interval tstep in rule-step increments, moving tank
// levels and checking rules after each one. It stops at the first increment
// where a rule changes a link and returns the time actually covered.
func (e *Engine) ruleTimeStep(tstep int64) int64 {
	if tstep <= 0 {
		return tstep
	}
	rs := e.net.Times.RuleStep
	if rs <= 0 || rs > tstep {
		rs = tstep
	}
	t0 := e.htime
	tmax := t0 + tstep
	dt := rs - t0%rs
	if dt > tstep {
		dt = tstep
	}
	t := t0
	for dt > 0 {
		e.updateTanks(dt)
		t += dt
		if e.checkRules(t, dt) {
			break
		}
		dt = min(rs, tmax-t)
	}
	return t - t0
}

type ruleAction struct {
	network.RuleAction
	priority float64
}

// checkRules evaluates every rule at time t, dt seconds after the previous
// check, and applies the resulting actions. Where two rules act on the same
// link the higher priority wins, then the earlier rule. It reports whether
// any link changed.
func (e *Engine) checkRules(t, dt int64) bool {
	var actions []ruleAction
	add := func(a network.RuleAction, priority float64) {
		for i := range actions {
			if actions[i].Link == a.Link {
				if priority > actions[i].priority {
					actions[i] = ruleAction{a, priority}
				}
				return
			}
		}
		actions = append(actions, ruleAction{a, priority})
	}
	for _, r := range e.net.Rules {
		list := r.Else
		if e.premisesHold(r.Premises, t, dt) {
			list = r.Then
		}
		for _, a := range list {
			add(a, r.Priority)
		}
	}
	changed := false
	for _, a := range actions {
		if e.takeRuleAction(a.RuleAction) {
			changed = true
		}
	}
	return changed
}

// premisesHold combines premises left to right: OR keeps a true result, AND
// requires every earlier term to hold.
func (e *Engine) premisesHold(ps []network.Premise, t, dt int64) bool {
	result := true
	for i, p := range ps {
		if i > 0 && p.Or {
			if !result {
				result = e.premise(p, t, dt)
			}
			continue
		}
		if !result {
			return false
		}
		result = e.premise(p, t, dt)
	}
	return result
}

func (e *Engine) premise(p network.Premise, t, dt int64) bool {
	switch p.Variable {
	case network.RuleTime:
		return timeHolds(p, float64(t-dt), float64(t))
	case network.RuleClockTime:
		start := e.net.Times.StartClock
		t1 := float64((t - dt + start) % secondsPerDay)
		t2 := float64((t + start) % secondsPerDay)
		if p.Operator == network.OpEqual || p.Operator == network.OpNotEqual {
			in := t1 < p.Value && p.Value <= t2
			if t2 < t1 {
				in = p.Value > t1 || p.Value <= t2
			}
			return in == (p.Operator == network.OpEqual)
		}
		return p.Operator.Compare(t2, p.Value, 0)
	case network.RuleStatus:
		return (linkStatusClass(e.status[p.Index-1]) == p.Status) == (p.Operator == network.OpEqual)
	}
	x, ok := e.premiseValue(p)
	if !ok {
		return false
	}
	tol := ruleTol
	if p.Variable.IsTime() {
		tol = 0
	}
	return p.Operator.Compare(x, p.Value, tol)
}

// timeHolds treats "=" as "passed during (t1, t2]" since checks only happen
// every rule step.
func timeHolds(p network.Premise, t1, t2 float64) bool {
	if p.Operator == network.OpEqual || p.Operator == network.OpNotEqual {
		in := t1 < p.Value && p.Value <= t2
		return in == (p.Operator == network.OpEqual)
	}
	return p.Operator.Compare(t2, p.Value, 0)
}

// premiseValue reads the tested quantity in reporting units.
func (e *Engine) premiseValue(p network.Premise) (float64, bool) {
	u := e.m.units
	if p.Object == network.RuleLink {
		k := p.Index - 1
		switch p.Variable {
		case network.RuleFlow:
			return e.flow[k] * u.Flow, true
		case network.RuleSetting:
			if e.setting[k] == network.Missing {
				return 0, false
			}
			return UserSetting(e.m.links[k].kind, e.setting[k], u), true
		}
		return 0, false
	}
	i := p.Index - 1
	nd := &e.m.nodes[i]
	switch p.Variable {
	case network.RuleDemand:
		if nd.fixed {
			return e.inflow[i] * u.Flow, true
		}
		return (e.dflow[i] + e.eflow[i]) * u.Flow, true
	case network.RuleHead:
		return e.head[i] * u.Length, true
	case network.RuleLevel:
		return (e.head[i] - nd.elev) * u.Length, true
	case network.RulePressure:
		return (e.head[i] - nd.elev) * u.Pressure, true
	case network.RuleFillTime:
		if nd.tank == nil || e.inflow[i] <= qzero {
			return 0, false
		}
		return (nd.tank.vmax - e.volume[i]) / e.inflow[i], true
	case network.RuleDrainTime:
		if nd.tank == nil || e.inflow[i] >= -qzero {
			return 0, false
		}
		return (nd.tank.vmin - e.volume[i]) / e.inflow[i], true
	}
	return 0, false
}

func linkStatusClass(s Status) network.LinkStatus {
	switch {
	case !s.IsOpen():
		return network.StatusClosed
	case s == Active || s == XFCV || s == XPressure:
		return network.StatusActive
	}
	return network.StatusOpen
}

// takeRuleAction applies a to its link unless the link already matches.
func (e *Engine) takeRuleAction(a network.RuleAction) bool {
	k := a.Link - 1
	l := &e.m.links[k]
	if a.Setting != network.Missing {
		if e.setting[k] != network.Missing && math.Abs(e.setting[k]-e.internalSetting(k, a.Setting)) < 1e-9 &&
			(l.kind == network.Pump || e.status[k].IsOpen()) {
			return false
		}
		return e.SetLinkSetting(a.Link, a.Setting) == nil
	}
	open := a.Status != network.StatusClosed
	if l.kind.IsValve() && l.kind != network.GPV && open {
		if e.status[k] == Open && e.setting[k] == network.Missing {
			return false
		}
	} else if e.status[k].IsOpen() == open {
		return false
	}
	return e.SetLinkStatus(a.Link, open) == nil
}
