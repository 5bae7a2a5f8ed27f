package network

import (
	"math"

	"aquanet/internal/core/errors"
)

// NodeProperty codes follow the toolkit's numbering so scripts written
// against the native API keep their meaning.
type NodeProperty int

const (
	NodeElevation     NodeProperty = 0
	NodeBaseDemand    NodeProperty = 1
	NodePattern       NodeProperty = 2
	NodeEmitter       NodeProperty = 3
	NodeInitQual      NodeProperty = 4
	NodeSourceQual    NodeProperty = 5
	NodeSourcePat     NodeProperty = 6
	NodeSourceType    NodeProperty = 7
	NodeTankLevel     NodeProperty = 8
	NodeDemand        NodeProperty = 9
	NodeHead          NodeProperty = 10
	NodePressure      NodeProperty = 11
	NodeQuality       NodeProperty = 12
	NodeSourceMass    NodeProperty = 13
	NodeInitVolume    NodeProperty = 14
	NodeTankDiam      NodeProperty = 17
	NodeMinVolume     NodeProperty = 18
	NodeVolCurve      NodeProperty = 19
	NodeMinLevel      NodeProperty = 20
	NodeMaxLevel      NodeProperty = 21
	NodeTankKbulk     NodeProperty = 23
	NodeTankVolume    NodeProperty = 24
	NodeMaxVolume     NodeProperty = 25
	NodeCanOverflow   NodeProperty = 26
	NodeDemandDeficit NodeProperty = 27
)

// IsDynamic reports whether the property is a simulation result rather than
// a stored input value.
func (p NodeProperty) IsDynamic() bool {
	switch p {
	case NodeDemand, NodeHead, NodePressure, NodeQuality, NodeSourceMass, NodeTankVolume, NodeDemandDeficit:
		return true
	}
	return false
}

type LinkProperty int

const (
	LinkDiameter    LinkProperty = 0
	LinkLength      LinkProperty = 1
	LinkRoughness   LinkProperty = 2
	LinkMinorLoss   LinkProperty = 3
	LinkInitStatus  LinkProperty = 4
	LinkInitSetting LinkProperty = 5
	LinkKBulk       LinkProperty = 6
	LinkKWall       LinkProperty = 7
	LinkFlow        LinkProperty = 8
	LinkVelocity    LinkProperty = 9
	LinkHeadLoss    LinkProperty = 10
	LinkStatusNow   LinkProperty = 11
	LinkSetting     LinkProperty = 12
	LinkEnergy      LinkProperty = 13
	LinkQuality     LinkProperty = 14
	LinkPattern     LinkProperty = 15
	LinkPumpHCurve  LinkProperty = 19
)

func (p LinkProperty) IsDynamic() bool {
	switch p {
	case LinkFlow, LinkVelocity, LinkHeadLoss, LinkStatusNow, LinkSetting, LinkEnergy, LinkQuality:
		return true
	}
	return false
}

// TankVolume returns the stored volume of a tank at the given level, in user
// volume units.
func (n *Network) TankVolume(t *TankData, level float64) float64 {
	if t.VolumeCurve > 0 {
		c := n.Curves[t.VolumeCurve-1]
		return Interpolate(c.X, c.Y, level)
	}
	area := math.Pi * t.Diameter * t.Diameter / 4
	return t.BaseVolume() + area*(level-t.MinLevel)
}

// NodeValue reads a stored node property in user units.
func (n *Network) NodeValue(idx int, prop NodeProperty) (float64, error) {
	const op = "network.NodeValue"
	node := n.Node(idx)
	if node == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedNode, "index %d", idx)
	}
	switch prop {
	case NodeElevation:
		return node.Elevation, nil
	case NodeBaseDemand:
		return node.BaseDemand, nil
	case NodePattern:
		return float64(node.DemandPattern), nil
	case NodeEmitter:
		return node.Emitter, nil
	case NodeInitQual:
		return node.InitQuality, nil
	case NodeSourceQual, NodeSourcePat, NodeSourceType:
		if node.Source == nil {
			return 0, errors.Enginef(op, errors.ErrUndefinedSource, "node %s", node.ID)
		}
		switch prop {
		case NodeSourceQual:
			return node.Source.Strength, nil
		case NodeSourcePat:
			return float64(node.Source.Pattern), nil
		}
		return float64(node.Source.Kind), nil
	}
	if prop.IsDynamic() {
		return 0, errors.Enginef(op, errors.ErrHydNotOpen, "property %d needs a solved step", prop)
	}
	if node.Kind != Tank {
		switch prop {
		case NodeTankLevel, NodeInitVolume, NodeTankDiam, NodeMinVolume, NodeVolCurve,
			NodeMinLevel, NodeMaxLevel, NodeTankKbulk, NodeMaxVolume, NodeCanOverflow:
			return 0, nil
		}
		return 0, errors.Enginef(op, errors.ErrIllegalParameter, "node property %d", prop)
	}
	t := node.Tank
	switch prop {
	case NodeTankLevel:
		return t.InitLevel, nil
	case NodeInitVolume:
		return n.TankVolume(t, t.InitLevel), nil
	case NodeTankDiam:
		return t.Diameter, nil
	case NodeMinVolume:
		return t.MinVolume, nil
	case NodeVolCurve:
		return float64(t.VolumeCurve), nil
	case NodeMinLevel:
		return t.MinLevel, nil
	case NodeMaxLevel:
		return t.MaxLevel, nil
	case NodeTankKbulk:
		return t.Bulk, nil
	case NodeMaxVolume:
		return n.TankVolume(t, t.MaxLevel), nil
	case NodeCanOverflow:
		if t.CanOverflow {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Enginef(op, errors.ErrIllegalParameter, "node property %d", prop)
}

// SetNodeValue writes a stored node property given in user units.
func (n *Network) SetNodeValue(idx int, prop NodeProperty, value float64) error {
	const op = "network.SetNodeValue"
	node := n.Node(idx)
	if node == nil {
		return errors.Enginef(op, errors.ErrUndefinedNode, "index %d", idx)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	switch prop {
	case NodeElevation:
		node.Elevation = value
		return nil
	case NodeBaseDemand:
		if node.Kind != Junction {
			return errors.Enginef(op, errors.ErrIllegalParameter, "base demand on %s %s", node.Kind, node.ID)
		}
		node.BaseDemand = value
		return nil
	case NodePattern:
		pat := int(value)
		if pat < 0 || pat > len(n.Patterns) {
			return errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", pat)
		}
		if node.Kind == Tank {
			return errors.Enginef(op, errors.ErrIllegalParameter, "pattern on tank %s", node.ID)
		}
		node.DemandPattern = pat
		return nil
	case NodeEmitter:
		if value < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		if node.Kind != Junction {
			return errors.Enginef(op, errors.ErrIllegalParameter, "emitter on %s %s", node.Kind, node.ID)
		}
		node.Emitter = value
		return nil
	case NodeInitQual:
		if value < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		node.InitQuality = value
		return nil
	case NodeSourceQual, NodeSourcePat, NodeSourceType:
		if node.Source == nil {
			node.Source = &Source{Kind: SourceConcen}
		}
		switch prop {
		case NodeSourceQual:
			if value < 0 {
				return errors.Engine(op, errors.ErrIllegalNumber)
			}
			node.Source.Strength = value
		case NodeSourcePat:
			pat := int(value)
			if pat < 0 || pat > len(n.Patterns) {
				return errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", pat)
			}
			node.Source.Pattern = pat
		default:
			kind := SourceKind(int(value))
			if kind < SourceConcen || kind > SourceFlowPaced {
				return errors.Engine(op, errors.ErrIllegalNumber)
			}
			node.Source.Kind = kind
		}
		return nil
	}
	if prop.IsDynamic() {
		return errors.Enginef(op, errors.ErrIllegalParameter, "property %d is read-only", prop)
	}
	if node.Kind != Tank {
		return errors.Enginef(op, errors.ErrIllegalParameter, "tank property %d on %s %s", prop, node.Kind, node.ID)
	}
	t := node.Tank
	switch prop {
	case NodeTankLevel:
		if value < t.MinLevel || value > t.MaxLevel {
			return errors.Enginef(op, errors.ErrTankLevels, "tank %s", node.ID)
		}
		t.InitLevel = value
	case NodeTankDiam:
		if value <= 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		t.Diameter = value
	case NodeMinVolume:
		if value < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		t.MinVolume = value
	case NodeVolCurve:
		c := int(value)
		if c < 0 || c > len(n.Curves) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "index %d", c)
		}
		t.VolumeCurve = c
	case NodeMinLevel:
		if value < 0 || value > t.InitLevel {
			return errors.Enginef(op, errors.ErrTankLevels, "tank %s", node.ID)
		}
		t.MinLevel = value
	case NodeMaxLevel:
		if value < t.InitLevel {
			return errors.Enginef(op, errors.ErrTankLevels, "tank %s", node.ID)
		}
		t.MaxLevel = value
	case NodeTankKbulk:
		t.Bulk = value
	case NodeCanOverflow:
		t.CanOverflow = value != 0
	default:
		return errors.Enginef(op, errors.ErrIllegalParameter, "node property %d", prop)
	}
	return nil
}

// LinkValue reads a stored link property in user units.
func (n *Network) LinkValue(idx int, prop LinkProperty) (float64, error) {
	const op = "network.LinkValue"
	link := n.Link(idx)
	if link == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	switch prop {
	case LinkDiameter:
		return link.Diameter, nil
	case LinkLength:
		return link.Length, nil
	case LinkRoughness:
		return link.Roughness, nil
	case LinkMinorLoss:
		return link.MinorLoss, nil
	case LinkInitStatus:
		if link.InitStatus == StatusClosed {
			return 0, nil
		}
		return 1, nil
	case LinkInitSetting:
		if link.Kind.IsPipe() {
			return link.Roughness, nil
		}
		return link.InitSetting, nil
	case LinkKBulk:
		return link.Bulk, nil
	case LinkKWall:
		return link.Wall, nil
	case LinkPattern:
		return float64(link.SpeedPattern), nil
	case LinkPumpHCurve:
		return float64(link.HeadCurve), nil
	}
	if prop.IsDynamic() {
		return 0, errors.Enginef(op, errors.ErrHydNotOpen, "property %d needs a solved step", prop)
	}
	return 0, errors.Enginef(op, errors.ErrIllegalParameter, "link property %d", prop)
}

// SetLinkValue writes a stored link property given in user units.
func (n *Network) SetLinkValue(idx int, prop LinkProperty, value float64) error {
	const op = "network.SetLinkValue"
	link := n.Link(idx)
	if link == nil {
		return errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	positive := func(dst *float64) error {
		if value <= 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		*dst = value
		return nil
	}
	switch prop {
	case LinkDiameter:
		if link.Kind == Pump {
			return errors.Enginef(op, errors.ErrIllegalParameter, "diameter on pump %s", link.ID)
		}
		return positive(&link.Diameter)
	case LinkLength:
		if !link.Kind.IsPipe() {
			return errors.Enginef(op, errors.ErrIllegalParameter, "length on %s %s", link.Kind, link.ID)
		}
		return positive(&link.Length)
	case LinkRoughness, LinkInitSetting:
		if link.Kind.IsPipe() {
			return positive(&link.Roughness)
		}
		if prop == LinkRoughness {
			return errors.Enginef(op, errors.ErrIllegalParameter, "roughness on %s %s", link.Kind, link.ID)
		}
		if value < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		if link.Kind == GPV && (int(value) < 1 || int(value) > len(n.Curves)) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "index %d", int(value))
		}
		link.InitSetting = value
		return nil
	case LinkMinorLoss:
		if link.Kind == Pump {
			return errors.Enginef(op, errors.ErrIllegalParameter, "minor loss on pump %s", link.ID)
		}
		if value < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		link.MinorLoss = value
		return nil
	case LinkInitStatus:
		if link.Kind == CVPipe {
			return errors.Enginef(op, errors.ErrControlCV, "link %s", link.ID)
		}
		if value != 0 && value != 1 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		link.InitStatus = StatusClosed
		if value == 1 {
			link.InitStatus = StatusOpen
		}
		return nil
	case LinkKBulk:
		link.Bulk = value
		return nil
	case LinkKWall:
		link.Wall = value
		return nil
	case LinkPattern:
		if link.Kind != Pump {
			return errors.Enginef(op, errors.ErrIllegalParameter, "speed pattern on %s %s", link.Kind, link.ID)
		}
		pat := int(value)
		if pat < 0 || pat > len(n.Patterns) {
			return errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", pat)
		}
		link.SpeedPattern = pat
		return nil
	case LinkPumpHCurve:
		if link.Kind != Pump {
			return errors.Enginef(op, errors.ErrIllegalParameter, "head curve on %s %s", link.Kind, link.ID)
		}
		c := int(value)
		if c < 1 || c > len(n.Curves) {
			return errors.Enginef(op, errors.ErrUndefinedCurve, "index %d", c)
		}
		link.HeadCurve = c
		return nil
	}
	return errors.Enginef(op, errors.ErrIllegalParameter, "link property %d", prop)
}

// SetPatternValue sets the multiplier at a 1-based period of a pattern.
func (n *Network) SetPatternValue(idx, period int, value float64) error {
	const op = "network.SetPatternValue"
	pat := n.Pattern(idx)
	if pat == nil {
		return errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", idx)
	}
	if period < 1 || period > len(pat.Multipliers) {
		return errors.Enginef(op, errors.ErrIllegalParameter, "period %d", period)
	}
	pat.Multipliers[period-1] = value
	return nil
}

func (n *Network) PatternValue(idx, period int) (float64, error) {
	const op = "network.PatternValue"
	pat := n.Pattern(idx)
	if pat == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", idx)
	}
	if period < 1 || period > len(pat.Multipliers) {
		return 0, errors.Enginef(op, errors.ErrIllegalParameter, "period %d", period)
	}
	return pat.Multipliers[period-1], nil
}

// Interpolate evaluates a piecewise-linear curve, extrapolating from the end
// segments.
func Interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	switch n {
	case 0:
		return 0
	case 1:
		return ys[0]
	}
	i := 1
	for i < n-1 && x > xs[i] {
		i++
	}
	dx := xs[i] - xs[i-1]
	if dx == 0 {
		return ys[i]
	}
	return ys[i-1] + (x-xs[i-1])*(ys[i]-ys[i-1])/dx
}
