package toolkit

import (
	"math"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/engine/quality"
)

// frame reads simulation results out of one hydraulic solution and, when a
// quality run is active, the quality state, converting to reporting units.
type frame struct {
	net  *network.Network
	u    network.Units
	snap *hydraulic.Snapshot
	qual *quality.Engine
}

func newFrame(net *network.Network, snap *hydraulic.Snapshot, qual *quality.Engine) frame {
	return frame{net: net, u: net.Units(), snap: snap, qual: qual}
}

func (f frame) node(idx int, prop network.NodeProperty) (float64, error) {
	const op = "toolkit.node"
	node := f.net.Node(idx)
	if node == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedNode, "index %d", idx)
	}
	if prop == network.NodeQuality {
		if f.qual == nil {
			return 0, errors.Engine(op, errors.ErrQualNotOpen)
		}
		return f.qual.NodeQuality(idx), nil
	}
	if prop == network.NodeSourceMass {
		return 0, errors.Enginef(op, errors.ErrIllegalParameter, "source mass inflow is not tracked")
	}
	if f.snap == nil {
		return 0, errors.Engine(op, errors.ErrNoHydraulics)
	}
	i := idx - 1
	s := f.snap
	switch prop {
	case network.NodeDemand:
		return s.Demand[i] * f.u.Flow, nil
	case network.NodeHead:
		return s.Head[i] * f.u.Length, nil
	case network.NodePressure:
		return (s.Head[i] - node.Elevation/f.u.Length) * f.u.Pressure, nil
	case network.NodeTankVolume:
		if node.Kind != network.Tank {
			return 0, nil
		}
		return s.Volume[i] * f.u.Volume, nil
	case network.NodeDemandDeficit:
		return s.Deficit[i] * f.u.Flow, nil
	}
	return 0, errors.Enginef(op, errors.ErrIllegalParameter, "node property %d", prop)
}

func (f frame) link(idx int, prop network.LinkProperty) (float64, error) {
	const op = "toolkit.link"
	link := f.net.Link(idx)
	if link == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	if prop == network.LinkQuality {
		if f.qual == nil {
			return 0, errors.Engine(op, errors.ErrQualNotOpen)
		}
		return f.qual.LinkQuality(idx), nil
	}
	if f.snap == nil {
		return 0, errors.Engine(op, errors.ErrNoHydraulics)
	}
	k := idx - 1
	s := f.snap
	open := s.Status[k].IsOpen()
	q := s.Flow[k]
	dh := s.Head[link.From-1] - s.Head[link.To-1]

	switch prop {
	case network.LinkFlow:
		if !open {
			return 0, nil
		}
		return q * f.u.Flow, nil
	case network.LinkVelocity:
		if !open || link.Kind == network.Pump {
			return 0, nil
		}
		d := link.Diameter / f.u.Diameter
		return math.Abs(q) / (math.Pi * d * d / 4) * f.u.Velocity, nil
	case network.LinkHeadLoss:
		if !open {
			return 0, nil
		}
		if link.Kind.IsPipe() {
			return 1000 * math.Abs(dh) / (link.Length / f.u.Length), nil
		}
		if link.Kind == network.Pump {
			return dh * f.u.Length, nil
		}
		return math.Abs(dh) * f.u.Length, nil
	case network.LinkStatusNow:
		if open {
			return 1, nil
		}
		return 0, nil
	case network.LinkSetting:
		switch {
		case link.Kind.IsPipe():
			return link.Roughness, nil
		case link.Kind == network.Pump:
			return s.Setting[k], nil
		}
		v := hydraulic.UserSetting(link.Kind, s.Setting[k], f.u)
		if v == network.Missing {
			return 0, nil
		}
		return v, nil
	case network.LinkEnergy:
		if link.Kind != network.Pump || !open {
			return 0, nil
		}
		return hydraulic.PumpPower(q, -dh, f.net.Options.SpecificGravity), nil
	}
	return 0, errors.Enginef(op, errors.ErrIllegalParameter, "link property %d", prop)
}

// period fills one reporting period of the results file.
func (f frame) period(p *outfile.Period) {
	for i := range f.net.Nodes {
		idx := i + 1
		p.NodeDemand[i] = f32(f.node(idx, network.NodeDemand))
		p.NodeHead[i] = f32(f.node(idx, network.NodeHead))
		p.NodePressure[i] = f32(f.node(idx, network.NodePressure))
		if f.qual != nil {
			p.NodeQuality[i] = float32(f.qual.NodeQuality(idx))
		}
	}
	for k := range f.net.Links {
		idx := k + 1
		p.LinkFlow[k] = f32(f.link(idx, network.LinkFlow))
		p.LinkVelocity[k] = f32(f.link(idx, network.LinkVelocity))
		p.LinkHeadloss[k] = f32(f.link(idx, network.LinkHeadLoss))
		if f.qual != nil {
			p.LinkQuality[k] = float32(f.qual.LinkQuality(idx))
		}
		p.LinkStatus[k] = float32(f.snap.Status[k])
		p.LinkSetting[k] = f32(f.link(idx, network.LinkSetting))
	}
}

func f32(v float64, err error) float32 {
	if err != nil {
		return 0
	}
	return float32(v)
}
