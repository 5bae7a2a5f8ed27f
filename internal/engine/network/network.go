// Package network holds the in-memory water distribution model: nodes,
// links, patterns, curves, simple controls, analysis options and time
// parameters. Values are stored in the project's reporting units exactly as
// read from (or written to) an input file; solvers convert through Units.
package network

import (
	"fmt"
	"math"
	"strings"
)

type Source struct {
	Kind     SourceKind
	Strength float64
	Pattern  int // 1-based pattern index, 0 for none
}

// Demand is one demand category of a junction.
type Demand struct {
	Base    float64
	Pattern int // 1-based, 0 for the default pattern
	Name    string
}

type TankData struct {
	InitLevel   float64
	MinLevel    float64
	MaxLevel    float64
	Diameter    float64
	MinVolume   float64
	VolumeCurve int // 1-based curve index, 0 for cylindrical
	Bulk        float64
	CanOverflow bool
	// MixModel and MixFraction are kept for round trips; the quality solver
	// treats every tank as completely mixed.
	MixModel    MixModel
	MixFraction float64
}

// BaseVolume is the stored volume at the minimum level of a cylindrical tank.
// A zero MinVolume means the tank is a full cylinder down to its floor.
func (t *TankData) BaseVolume() float64 {
	if t.MinVolume > 0 {
		return t.MinVolume
	}
	return math.Pi * t.Diameter * t.Diameter / 4 * t.MinLevel
}

type Node struct {
	ID            string
	Kind          NodeKind
	Elevation     float64
	// BaseDemand, DemandPattern and DemandName describe the first demand
	// category; ExtraDemands holds the rest.
	BaseDemand    float64
	DemandPattern int // demand pattern for junctions, head pattern for reservoirs
	DemandName    string
	ExtraDemands  []Demand
	Emitter       float64
	InitQuality   float64
	Source        *Source
	Tank          *TankData
	Comment       string
}

type Link struct {
	ID         string
	Kind       LinkKind
	From       int // 1-based node index
	To         int
	Length     float64
	Diameter   float64
	Roughness  float64
	MinorLoss  float64
	InitStatus LinkStatus
	// InitSetting is the relative speed for pumps and the control setting
	// for valves (a curve index for GPVs). Unused for pipes.
	InitSetting  float64
	Bulk         float64
	Wall         float64
	HeadCurve    int // pumps: 1-based head curve index
	SpeedPattern int // pumps: 1-based speed pattern index
	Power        float64
	Comment      string
}

// Demands lists every demand category, the first one leading.
func (n *Node) Demands() []Demand {
	out := make([]Demand, 0, 1+len(n.ExtraDemands))
	out = append(out, Demand{Base: n.BaseDemand, Pattern: n.DemandPattern, Name: n.DemandName})
	return append(out, n.ExtraDemands...)
}

// AddDemand appends a demand category.
func (n *Node) AddDemand(d Demand) {
	n.ExtraDemands = append(n.ExtraDemands, d)
}

type Pattern struct {
	ID          string
	Multipliers []float64
}

// Multiplier returns the factor for the given pattern period, wrapping around.
func (p *Pattern) Multiplier(period int64) float64 {
	if p == nil || len(p.Multipliers) == 0 {
		return 1.0
	}
	n := int64(len(p.Multipliers))
	idx := period % n
	if idx < 0 {
		idx += n
	}
	return p.Multipliers[idx]
}

type Curve struct {
	ID   string
	Kind CurveKind
	X    []float64
	Y    []float64
}

type Control struct {
	Link    int // 1-based link index
	Status  LinkStatus
	Setting float64 // Missing when the action is a status change
	Kind    ControlKind
	Node    int     // level controls only
	Level   float64 // tank level or junction pressure threshold
	Time    int64   // seconds, for timer and time-of-day controls
	Enabled bool
}

type Network struct {
	Title    []string
	Nodes    []*Node
	Links    []*Link
	Patterns []*Pattern
	Curves   []*Curve
	Controls []*Control
	Rules    []*Rule
	Options  Options
	Times    Times

	nodeIndex    map[string]int
	linkIndex    map[string]int
	patternIndex map[string]int
	curveIndex   map[string]int
}

func New() *Network {
	return &Network{
		Options:      DefaultOptions(),
		Times:        DefaultTimes(),
		nodeIndex:    make(map[string]int),
		linkIndex:    make(map[string]int),
		patternIndex: make(map[string]int),
		curveIndex:   make(map[string]int),
	}
}

func key(id string) string { return strings.ToUpper(id) }

// AddNode appends a node and returns its 1-based index.
func (n *Network) AddNode(node *Node) (int, error) {
	if node.ID == "" {
		return 0, fmt.Errorf("node id must not be empty")
	}
	if _, ok := n.nodeIndex[key(node.ID)]; ok {
		return 0, fmt.Errorf("duplicate node id %q", node.ID)
	}
	if node.Kind == Tank && node.Tank == nil {
		node.Tank = &TankData{Bulk: Missing}
	}
	n.Nodes = append(n.Nodes, node)
	idx := len(n.Nodes)
	n.nodeIndex[key(node.ID)] = idx
	return idx, nil
}

func (n *Network) AddLink(link *Link) (int, error) {
	if link.ID == "" {
		return 0, fmt.Errorf("link id must not be empty")
	}
	if _, ok := n.linkIndex[key(link.ID)]; ok {
		return 0, fmt.Errorf("duplicate link id %q", link.ID)
	}
	if link.From < 1 || link.From > len(n.Nodes) || link.To < 1 || link.To > len(n.Nodes) {
		return 0, fmt.Errorf("link %q references an undefined node", link.ID)
	}
	n.Links = append(n.Links, link)
	idx := len(n.Links)
	n.linkIndex[key(link.ID)] = idx
	return idx, nil
}

// AddPattern returns the index of the pattern with this id, creating it when absent.
func (n *Network) AddPattern(id string) int {
	if idx, ok := n.patternIndex[key(id)]; ok {
		return idx
	}
	n.Patterns = append(n.Patterns, &Pattern{ID: id})
	idx := len(n.Patterns)
	n.patternIndex[key(id)] = idx
	return idx
}

func (n *Network) AddCurve(id string) int {
	if idx, ok := n.curveIndex[key(id)]; ok {
		return idx
	}
	n.Curves = append(n.Curves, &Curve{ID: id, Kind: CurveGeneric})
	idx := len(n.Curves)
	n.curveIndex[key(id)] = idx
	return idx
}

func (n *Network) NodeIndex(id string) (int, bool) {
	idx, ok := n.nodeIndex[key(id)]
	return idx, ok
}

func (n *Network) LinkIndex(id string) (int, bool) {
	idx, ok := n.linkIndex[key(id)]
	return idx, ok
}

func (n *Network) PatternIndex(id string) (int, bool) {
	idx, ok := n.patternIndex[key(id)]
	return idx, ok
}

func (n *Network) CurveIndex(id string) (int, bool) {
	idx, ok := n.curveIndex[key(id)]
	return idx, ok
}

// Node returns the node at a 1-based index, or nil when out of range.
func (n *Network) Node(idx int) *Node {
	if idx < 1 || idx > len(n.Nodes) {
		return nil
	}
	return n.Nodes[idx-1]
}

func (n *Network) Link(idx int) *Link {
	if idx < 1 || idx > len(n.Links) {
		return nil
	}
	return n.Links[idx-1]
}

func (n *Network) Pattern(idx int) *Pattern {
	if idx < 1 || idx > len(n.Patterns) {
		return nil
	}
	return n.Patterns[idx-1]
}

func (n *Network) Curve(idx int) *Curve {
	if idx < 1 || idx > len(n.Curves) {
		return nil
	}
	return n.Curves[idx-1]
}

func (n *Network) CountByKind(kind NodeKind) int {
	count := 0
	for _, node := range n.Nodes {
		if node.Kind == kind {
			count++
		}
	}
	return count
}

func (n *Network) Units() Units {
	return NewUnits(n.Options.FlowUnits, n.Options.SpecificGravity)
}

// DefaultPatternIndex resolves the pattern applied to junctions without one.
func (n *Network) DefaultPatternIndex() int {
	if n.Options.DefaultPattern == "" {
		return 0
	}
	idx, _ := n.PatternIndex(n.Options.DefaultPattern)
	return idx
}

// Clone returns a deep copy that shares no mutable state with n.
func (n *Network) Clone() *Network {
	c := New()
	c.Title = append([]string(nil), n.Title...)
	for _, r := range n.Rules {
		c.Rules = append(c.Rules, r.Clone())
	}
	c.Options = n.Options
	c.Times = n.Times
	for _, node := range n.Nodes {
		cp := *node
		cp.ExtraDemands = append([]Demand(nil), node.ExtraDemands...)
		if node.Source != nil {
			src := *node.Source
			cp.Source = &src
		}
		if node.Tank != nil {
			tank := *node.Tank
			cp.Tank = &tank
		}
		c.Nodes = append(c.Nodes, &cp)
		c.nodeIndex[key(cp.ID)] = len(c.Nodes)
	}
	for _, link := range n.Links {
		cp := *link
		c.Links = append(c.Links, &cp)
		c.linkIndex[key(cp.ID)] = len(c.Links)
	}
	for _, pat := range n.Patterns {
		c.Patterns = append(c.Patterns, &Pattern{ID: pat.ID, Multipliers: append([]float64(nil), pat.Multipliers...)})
		c.patternIndex[key(pat.ID)] = len(c.Patterns)
	}
	for _, curve := range n.Curves {
		c.Curves = append(c.Curves, &Curve{
			ID:   curve.ID,
			Kind: curve.Kind,
			X:    append([]float64(nil), curve.X...),
			Y:    append([]float64(nil), curve.Y...),
		})
		c.curveIndex[key(curve.ID)] = len(c.Curves)
	}
	for _, ctrl := range n.Controls {
		cp := *ctrl
		c.Controls = append(c.Controls, &cp)
	}
	return c
}
