package network

import (
	"aquanet/internal/core/errors"
)

// Validate checks the structural rules every analysis depends on and returns
// the first violation as an engine error.
func (n *Network) Validate() error {
	const op = "network.Validate"
	if len(n.Nodes) < 2 {
		return errors.Engine(op, errors.ErrNotEnoughNodes)
	}
	if n.CountByKind(Reservoir)+n.CountByKind(Tank) == 0 {
		return errors.Engine(op, errors.ErrNoFixedGrade)
	}
	for _, node := range n.Nodes {
		if node.DemandPattern < 0 || node.DemandPattern > len(n.Patterns) {
			return errors.Enginef(op, errors.ErrUndefinedPattern, "node %s", node.ID)
		}
		for _, d := range node.ExtraDemands {
			if d.Pattern < 0 || d.Pattern > len(n.Patterns) {
				return errors.Enginef(op, errors.ErrUndefinedPattern, "demand category at node %s", node.ID)
			}
		}
		if node.Source != nil && (node.Source.Pattern < 0 || node.Source.Pattern > len(n.Patterns)) {
			return errors.Enginef(op, errors.ErrUndefinedPattern, "source at node %s", node.ID)
		}
		if node.Kind != Tank {
			continue
		}
		t := node.Tank
		if t.VolumeCurve < 0 || t.VolumeCurve > len(n.Curves) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "tank %s", node.ID)
		}
		if t.MinLevel > t.MaxLevel || t.InitLevel < t.MinLevel || t.InitLevel > t.MaxLevel {
			return errors.Enginef(op, errors.ErrTankLevels, "tank %s", node.ID)
		}
	}
	for _, link := range n.Links {
		if link.From == link.To {
			return errors.Enginef(op, errors.ErrIllegalLinkProp, "link %s connects a node to itself", link.ID)
		}
		switch {
		case link.Kind == Pump:
			if link.HeadCurve == 0 && link.Power <= 0 {
				return errors.Enginef(op, errors.ErrPumpNoCurve, "pump %s", link.ID)
			}
			if link.HeadCurve > len(n.Curves) {
				return errors.Enginef(op, errors.ErrPumpNoCurve, "pump %s", link.ID)
			}
			if link.SpeedPattern < 0 || link.SpeedPattern > len(n.Patterns) {
				return errors.Enginef(op, errors.ErrUndefinedPattern, "pump %s", link.ID)
			}
			if link.HeadCurve > 0 {
				if err := checkPumpCurve(n.Curves[link.HeadCurve-1]); err != nil {
					return errors.Enginef(op, errors.ErrPumpCurve, "pump %s: %v", link.ID, err)
				}
			}
		case link.Kind == GPV:
			idx := int(link.InitSetting)
			if idx < 1 || idx > len(n.Curves) {
				return errors.Enginef(op, errors.ErrUndefinedCurve, "valve %s", link.ID)
			}
		case link.Kind.IsValve():
			if err := n.checkValveEnds(link); err != nil {
				return err
			}
		default:
			if link.Length <= 0 || link.Diameter <= 0 || link.Roughness <= 0 {
				return errors.Enginef(op, errors.ErrIllegalLinkProp, "pipe %s", link.ID)
			}
		}
	}
	for _, curve := range n.Curves {
		if len(curve.X) == 0 || len(curve.X) != len(curve.Y) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "curve %s has no points", curve.ID)
		}
		for i := 1; i < len(curve.X); i++ {
			if curve.X[i] <= curve.X[i-1] {
				return errors.Enginef(op, errors.ErrCurveOrder, "curve %s", curve.ID)
			}
		}
	}
	for i, ctrl := range n.Controls {
		link := n.Link(ctrl.Link)
		if link == nil {
			return errors.Enginef(op, errors.ErrUndefinedLink, "control %d", i+1)
		}
		if link.Kind == CVPipe {
			return errors.Enginef(op, errors.ErrControlCV, "control %d", i+1)
		}
		if (ctrl.Kind == ControlLowLevel || ctrl.Kind == ControlHighLevel) && n.Node(ctrl.Node) == nil {
			return errors.Enginef(op, errors.ErrUndefinedNode, "control %d", i+1)
		}
	}
	for _, r := range n.Rules {
		if err := n.checkRule(r); err != nil {
			return errors.Enginef(op, errors.CodeOf(err), "rule %s: %v", r.ID, err)
		}
	}
	if n.Options.Quality == QualityTrace {
		if _, ok := n.NodeIndex(n.Options.TraceNode); !ok {
			return errors.Enginef(op, errors.ErrUndefinedTrace, "%q", n.Options.TraceNode)
		}
	}
	return nil
}

func (n *Network) checkRule(r *Rule) error {
	const op = "network.checkRule"
	if len(r.Premises) == 0 || len(r.Then) == 0 {
		return errors.Engine(op, errors.ErrSyntax)
	}
	for _, p := range r.Premises {
		switch p.Object {
		case RuleNode:
			node := n.Node(p.Index)
			if node == nil {
				return errors.Enginef(op, errors.ErrUndefinedNode, "index %d", p.Index)
			}
			if (p.Variable == RuleFillTime || p.Variable == RuleDrainTime) && node.Kind != Tank {
				return errors.Enginef(op, errors.ErrUndefinedNode, "%s needs a tank", p.Variable)
			}
		case RuleLink:
			if n.Link(p.Index) == nil {
				return errors.Enginef(op, errors.ErrUndefinedLink, "index %d", p.Index)
			}
		}
	}
	for _, a := range append(append([]RuleAction(nil), r.Then...), r.Else...) {
		link := n.Link(a.Link)
		if link == nil {
			return errors.Enginef(op, errors.ErrUndefinedLink, "index %d", a.Link)
		}
		if link.Kind == CVPipe {
			return errors.Engine(op, errors.ErrControlCV)
		}
	}
	return nil
}

// PRVs regulate their downstream node and PSVs their upstream node, so the
// regulated end must be a junction.
func (n *Network) checkValveEnds(link *Link) error {
	var regulated *Node
	switch link.Kind {
	case PRV:
		regulated = n.Node(link.To)
	case PSV:
		regulated = n.Node(link.From)
	default:
		return nil
	}
	if regulated.Kind != Junction {
		return errors.Enginef("network.Validate", errors.ErrValveConnection, "valve %s", link.ID)
	}
	return nil
}

func checkPumpCurve(c *Curve) error {
	if len(c.X) == 0 {
		return errPumpCurve("no points")
	}
	for i := 1; i < len(c.Y); i++ {
		if c.Y[i] >= c.Y[i-1] {
			return errPumpCurve("head must decrease with flow")
		}
	}
	return nil
}

type errPumpCurve string

func (e errPumpCurve) Error() string { return string(e) }
