package hydraulic

import (
	"math"

	"aquanet/internal/engine/network"
)

// Status is the solver's view of a link. Values at or below Closed carry no
// flow.
type Status int

const (
	XHead      Status = iota // pump cannot deliver the head required
	TempClosed               // closed to keep a tank within its levels
	Closed
	Open
	Active
	XFlow     // pump running past the end of its curve
	XFCV      // flow control valve cannot supply its setting
	XPressure // pressure valve cannot hold its setting
	Filling
	Emptying
)

var statusNames = [...]string{
	"XHEAD", "TEMPCLOSED", "CLOSED", "OPEN", "ACTIVE",
	"XFLOW", "XFCV", "XPRESSURE", "FILLING", "EMPTYING",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// IsOpen reports whether the link carries flow.
func (s Status) IsOpen() bool { return s > Closed }

func fromLinkStatus(s network.LinkStatus) Status {
	switch s {
	case network.StatusClosed:
		return Closed
	case network.StatusActive:
		return Active
	}
	return Open
}

// linkStatus re-examines check valves, pumps, flow control valves and links
// attached to tanks after a converged trial. It reports whether any status
// changed.
func (e *Engine) linkStatus() bool {
	changed := false
	for k := range e.m.links {
		l := &e.m.links[k]
		dh := e.head[l.n1] - e.head[l.n2]
		old := e.status[k]
		if old == XHead || old == TempClosed {
			e.status[k] = Open
		}
		switch {
		case l.kind == network.CVPipe:
			e.status[k] = cvStatus(e.status[k], dh, e.flow[k])
		case l.kind == network.Pump && e.status[k] >= Open && e.setting[k] > 0:
			e.status[k] = e.pumpStatus(k, -dh)
		case l.kind == network.FCV && e.setting[k] != network.Missing:
			e.status[k] = e.fcvStatus(k, old)
		}
		if e.m.nodes[l.n1].tank != nil || e.m.nodes[l.n2].tank != nil {
			e.tankStatus(k)
		}
		if old != e.status[k] {
			changed = true
		}
	}
	return changed
}

func cvStatus(s Status, dh, q float64) Status {
	if math.Abs(dh) > htol {
		switch {
		case dh < -htol:
			return Closed
		case q < -qtol:
			return Closed
		}
		return Open
	}
	if q < -qtol {
		return Closed
	}
	return s
}

func (e *Engine) pumpStatus(k int, dh float64) Status {
	p := e.m.links[k].pump
	hmax := math.Inf(1)
	if p.curve != constHP {
		s := e.setting[k]
		hmax = s * s * p.h0
	}
	if dh > hmax+htol {
		return XHead
	}
	return Open
}

func (e *Engine) fcvStatus(k int, s Status) Status {
	l := &e.m.links[k]
	switch {
	case e.head[l.n1]-e.head[l.n2] < -htol:
		return XFCV
	case e.flow[k] < -qtol:
		return XFCV
	case s == XFCV && e.flow[k] >= e.setting[k]:
		return Active
	}
	return s
}

// tankStatus closes a link that would overfill a full tank or drain an empty
// one.
func (e *Engine) tankStatus(k int) {
	if e.status[k] <= Closed {
		return
	}
	l := &e.m.links[k]
	n1, n2 := l.n1, l.n2
	q := e.flow[k]
	if e.m.nodes[n1].tank == nil {
		n1, n2 = n2, n1
		q = -q
	}
	t := e.m.nodes[n1].tank
	if t == nil {
		return
	}
	h := e.head[n1] - e.head[n2]
	if e.head[n1] >= t.hmax-htol && !t.canOverflow {
		if l.kind == network.Pump {
			if l.n2 == n1 {
				e.status[k] = TempClosed
			}
		} else if cvStatus(Open, h, q) == Closed {
			e.status[k] = TempClosed
		}
	}
	if e.head[n1] <= t.hmin+htol {
		if l.kind == network.Pump {
			if l.n1 == n1 {
				e.status[k] = TempClosed
			}
		} else if cvStatus(Closed, h, q) == Open {
			e.status[k] = TempClosed
		}
	}
}

// valveStatus updates pressure reducing and sustaining valves that are not
// fixed open or closed.
func (e *Engine) valveStatus() bool {
	changed := false
	for k := range e.m.links {
		l := &e.m.links[k]
		if e.setting[k] == network.Missing {
			continue
		}
		old := e.status[k]
		switch l.kind {
		case network.PRV:
			hset := e.m.nodes[l.n2].elev + e.setting[k]
			e.status[k] = e.prvStatus(k, old, hset)
		case network.PSV:
			hset := e.m.nodes[l.n1].elev + e.setting[k]
			e.status[k] = e.psvStatus(k, old, hset)
		default:
			continue
		}
		if old != e.status[k] {
			changed = true
		}
	}
	return changed
}

func (e *Engine) prvStatus(k int, s Status, hset float64) Status {
	l := &e.m.links[k]
	q := e.flow[k]
	h1, h2 := e.head[l.n1], e.head[l.n2]
	hml := l.km * q * q
	switch s {
	case Active:
		switch {
		case q < -qtol:
			return Closed
		case h1-hml < hset-htol:
			return Open
		}
		return Active
	case Open:
		switch {
		case q < -qtol:
			return Closed
		case h2 >= hset+htol:
			return Active
		}
		return Open
	case Closed:
		switch {
		case h1 >= hset+htol && h2 < hset-htol:
			return Active
		case h1 < hset-htol && h1 > h2+htol:
			return Open
		}
		return Closed
	case XPressure:
		if q < -qtol {
			return Closed
		}
	}
	return s
}

func (e *Engine) psvStatus(k int, s Status, hset float64) Status {
	l := &e.m.links[k]
	q := e.flow[k]
	h1, h2 := e.head[l.n1], e.head[l.n2]
	hml := l.km * q * q
	switch s {
	case Active:
		switch {
		case q < -qtol:
			return Closed
		case h2+hml > hset+htol:
			return Open
		}
		return Active
	case Open:
		switch {
		case q < -qtol:
			return Closed
		case h1 < hset-htol:
			return Active
		}
		return Open
	case Closed:
		switch {
		case h2 > hset+htol && h1 > h2+htol:
			return Open
		case h1 >= hset+htol && h1 > h2+htol:
			return Active
		}
		return Closed
	case XPressure:
		if q < -qtol {
			return Closed
		}
	}
	return s
}

// badValve relieves a singular system caused by an active control valve
// attached to node n. It reports whether such a valve was found.
func (e *Engine) badValve(n int) bool {
	for k := range e.m.links {
		l := &e.m.links[k]
		if l.n1 != n && l.n2 != n {
			continue
		}
		if e.status[k] != Active {
			continue
		}
		switch l.kind {
		case network.PRV, network.PSV:
			e.status[k] = XPressure
			return true
		case network.FCV:
			e.status[k] = XFCV
			return true
		}
	}
	return false
}
