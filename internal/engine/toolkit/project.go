// Package toolkit is the engine's public surface. A Project owns one loaded
// network; property getters and setters take toolkit property codes and
// 1-based indices, and analyses run through the stepwise HydraulicSession
// and QualitySession protocols or the complete-run helpers.
//
// A Project is not safe for concurrent use. Run independent simulations on
// clones.
package toolkit

import (
	"log/slog"
	"math"
	"os"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/inp"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/engine/quality"
)

type Project struct {
	net  *network.Network
	path string

	hyd  *HydraulicSession
	qual *QualitySession

	hydFile     string
	ownsHydFile bool
	hydReady    bool
	hydExternal bool

	outFile     string
	ownsOutFile bool
	outReady    bool

	warning errors.EngineCode
}

// Open reads and validates an input file.
func Open(path string) (*Project, error) {
	net, err := inp.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := NewProject(net)
	if err != nil {
		return nil, err
	}
	p.path = path
	return p, nil
}

// NewProject wraps an in-memory network. The project takes ownership of net.
func NewProject(net *network.Network) (*Project, error) {
	if net == nil || len(net.Nodes) == 0 {
		return nil, errors.Engine("toolkit.NewProject", errors.ErrNoNetwork)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return &Project{net: net}, nil
}

// Close ends any open sessions and removes the project's scratch files.
// Calling Close more than once is harmless.
func (p *Project) Close() error {
	if p.net == nil {
		return nil
	}
	if p.qual != nil {
		_ = p.qual.Close()
	}
	if p.hyd != nil {
		_ = p.hyd.Close()
	}
	for _, f := range []struct {
		path  string
		owned bool
	}{{p.hydFile, p.ownsHydFile}, {p.outFile, p.ownsOutFile}} {
		if f.owned && f.path != "" {
			if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove scratch file", "path", f.path, "error", err)
			}
		}
	}
	p.net = nil
	return nil
}

func (p *Project) live(op string) error {
	if p.net == nil {
		return errors.Engine(op, errors.ErrNoNetwork)
	}
	return nil
}

// Clone returns an independent project over a deep copy of the network.
// Sessions, results and scratch files are not shared.
func (p *Project) Clone() (*Project, error) {
	if err := p.live("toolkit.Clone"); err != nil {
		return nil, err
	}
	return &Project{net: p.net.Clone(), path: p.path}, nil
}

// Network exposes the underlying model. Edits are visible to the next
// solution.
func (p *Project) Network() *network.Network { return p.net }

// Path is the input file the project was opened from, if any.
func (p *Project) Path() string { return p.path }

// SaveInputFile writes the network, including edits, as an input file.
func (p *Project) SaveInputFile(path string) error {
	const op = "toolkit.SaveInputFile"
	if err := p.live(op); err != nil {
		return err
	}
	if path != "" && (path == p.hydFile || path == p.outFile) {
		return errors.Enginef(op, errors.ErrSameFiles, "%s", path)
	}
	return inp.WriteFile(path, p.net)
}

// Warning is the most severe advisory code raised since the project was
// opened or the last complete run started.
func (p *Project) Warning() errors.EngineCode { return p.warning }

func (p *Project) noteWarning(code errors.EngineCode) {
	if code > p.warning {
		p.warning = code
	}
}

// ErrorMessage is the toolkit's error-lookup call.
func ErrorMessage(code errors.EngineCode) string { return code.Message() }

func (p *Project) NodeCount() int    { return p.count(func(n *network.Network) int { return len(n.Nodes) }) }
func (p *Project) LinkCount() int    { return p.count(func(n *network.Network) int { return len(n.Links) }) }
func (p *Project) PatternCount() int { return p.count(func(n *network.Network) int { return len(n.Patterns) }) }
func (p *Project) CurveCount() int   { return p.count(func(n *network.Network) int { return len(n.Curves) }) }
func (p *Project) ControlCount() int { return p.count(func(n *network.Network) int { return len(n.Controls) }) }

// TankCount counts tanks and reservoirs, as the native toolkit does.
func (p *Project) TankCount() int {
	return p.count(func(n *network.Network) int {
		return n.CountByKind(network.Tank) + n.CountByKind(network.Reservoir)
	})
}

func (p *Project) count(f func(*network.Network) int) int {
	if p.net == nil {
		return 0
	}
	return f(p.net)
}

func (p *Project) NodeIndex(id string) (int, error) {
	const op = "toolkit.NodeIndex"
	if err := p.live(op); err != nil {
		return 0, err
	}
	idx, ok := p.net.NodeIndex(id)
	if !ok {
		return 0, errors.Enginef(op, errors.ErrUndefinedNode, "%q", id)
	}
	return idx, nil
}

func (p *Project) NodeID(idx int) (string, error) {
	const op = "toolkit.NodeID"
	if err := p.live(op); err != nil {
		return "", err
	}
	node := p.net.Node(idx)
	if node == nil {
		return "", errors.Enginef(op, errors.ErrUndefinedNode, "index %d", idx)
	}
	return node.ID, nil
}

func (p *Project) NodeKind(idx int) (network.NodeKind, error) {
	const op = "toolkit.NodeKind"
	if err := p.live(op); err != nil {
		return 0, err
	}
	node := p.net.Node(idx)
	if node == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedNode, "index %d", idx)
	}
	return node.Kind, nil
}

func (p *Project) LinkIndex(id string) (int, error) {
	const op = "toolkit.LinkIndex"
	if err := p.live(op); err != nil {
		return 0, err
	}
	idx, ok := p.net.LinkIndex(id)
	if !ok {
		return 0, errors.Enginef(op, errors.ErrUndefinedLink, "%q", id)
	}
	return idx, nil
}

func (p *Project) LinkID(idx int) (string, error) {
	const op = "toolkit.LinkID"
	if err := p.live(op); err != nil {
		return "", err
	}
	link := p.net.Link(idx)
	if link == nil {
		return "", errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	return link.ID, nil
}

func (p *Project) LinkKind(idx int) (network.LinkKind, error) {
	const op = "toolkit.LinkKind"
	if err := p.live(op); err != nil {
		return 0, err
	}
	link := p.net.Link(idx)
	if link == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	return link.Kind, nil
}

// LinkNodes returns the start and end node indices of a link.
func (p *Project) LinkNodes(idx int) (from, to int, err error) {
	const op = "toolkit.LinkNodes"
	if err := p.live(op); err != nil {
		return 0, 0, err
	}
	link := p.net.Link(idx)
	if link == nil {
		return 0, 0, errors.Enginef(op, errors.ErrUndefinedLink, "index %d", idx)
	}
	return link.From, link.To, nil
}

func (p *Project) PatternIndex(id string) (int, error) {
	const op = "toolkit.PatternIndex"
	if err := p.live(op); err != nil {
		return 0, err
	}
	idx, ok := p.net.PatternIndex(id)
	if !ok {
		return 0, errors.Enginef(op, errors.ErrUndefinedPattern, "%q", id)
	}
	return idx, nil
}

func (p *Project) PatternLen(idx int) (int, error) {
	const op = "toolkit.PatternLen"
	if err := p.live(op); err != nil {
		return 0, err
	}
	pat := p.net.Pattern(idx)
	if pat == nil {
		return 0, errors.Enginef(op, errors.ErrUndefinedPattern, "index %d", idx)
	}
	return len(pat.Multipliers), nil
}

func (p *Project) PatternValue(idx, period int) (float64, error) {
	if err := p.live("toolkit.PatternValue"); err != nil {
		return 0, err
	}
	return p.net.PatternValue(idx, period)
}

func (p *Project) SetPatternValue(idx, period int, v float64) error {
	const op = "toolkit.SetPatternValue"
	if err := p.live(op); err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	return p.net.SetPatternValue(idx, period, v)
}

// NodeValue reads a node property. Input properties come straight from the
// network. Results come from the latest hydraulic solution (engine code 103
// without an open hydraulic session, 104 before its first RunStep) or the
// quality session (105 when none is open).
func (p *Project) NodeValue(idx int, prop network.NodeProperty) (float64, error) {
	const op = "toolkit.NodeValue"
	if err := p.live(op); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return p.net.NodeValue(idx, prop)
	}
	f, err := p.frame(op, prop == network.NodeQuality)
	if err != nil {
		return 0, err
	}
	return f.node(idx, prop)
}

// LinkValue reads a link property; see NodeValue for result properties.
func (p *Project) LinkValue(idx int, prop network.LinkProperty) (float64, error) {
	const op = "toolkit.LinkValue"
	if err := p.live(op); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return p.net.LinkValue(idx, prop)
	}
	f, err := p.frame(op, prop == network.LinkQuality)
	if err != nil {
		return 0, err
	}
	return f.link(idx, prop)
}

// frame picks the solution result getters read from.
func (p *Project) frame(op string, quality bool) (frame, error) {
	if quality {
		qs := p.qual
		if qs == nil {
			return frame{}, errors.Engine(op, errors.ErrQualNotOpen)
		}
		if qs.state != stateStepping {
			return frame{}, errors.Enginef(op, errors.ErrNoHydraulics, "quality RunStep has not been called")
		}
		return newFrame(p.net, qs.installed, qs.eng), nil
	}
	qual := p.qualityEngine()
	if hs := p.hyd; hs != nil {
		if hs.current == nil {
			return frame{}, errors.Enginef(op, errors.ErrNoHydraulics, "hydraulic RunStep has not been called")
		}
		return newFrame(p.net, hs.current.snap, qual), nil
	}
	// a quality run replaying saved hydraulics still has a solution in force
	if qs := p.qual; qs != nil && qs.replay != nil && qs.installed != nil {
		return newFrame(p.net, qs.installed, qual), nil
	}
	return frame{}, errors.Engine(op, errors.ErrHydNotOpen)
}

func (p *Project) qualityEngine() *quality.Engine {
	if p.qual == nil || p.qual.state != stateStepping {
		return nil
	}
	return p.qual.eng
}

func (p *Project) SetNodeValue(idx int, prop network.NodeProperty, v float64) error {
	if err := p.live("toolkit.SetNodeValue"); err != nil {
		return err
	}
	return p.net.SetNodeValue(idx, prop, v)
}

// SetLinkValue writes a link property. While a hydraulic session is open,
// LinkStatusNow and LinkSetting override the link for the following
// solutions; otherwise they set its initial status and setting.
func (p *Project) SetLinkValue(idx int, prop network.LinkProperty, v float64) error {
	const op = "toolkit.SetLinkValue"
	if err := p.live(op); err != nil {
		return err
	}
	switch prop {
	case network.LinkStatusNow:
		if p.hyd != nil {
			return p.hyd.eng.SetLinkStatus(idx, v != 0)
		}
		return p.net.SetLinkValue(idx, network.LinkInitStatus, v)
	case network.LinkSetting:
		if p.hyd != nil {
			return p.hyd.eng.SetLinkSetting(idx, v)
		}
		return p.net.SetLinkValue(idx, network.LinkInitSetting, v)
	}
	return p.net.SetLinkValue(idx, prop, v)
}

// hydPath returns the hydraulics file, creating a scratch file on first use.
func (p *Project) hydPath() (string, error) {
	if p.hydFile != "" {
		return p.hydFile, nil
	}
	f, err := os.CreateTemp("", "aquanet-*.hyd")
	if err != nil {
		return "", errors.Enginef("toolkit.hydPath", errors.ErrOpenHydFile, "%v", err)
	}
	_ = f.Close()
	p.hydFile, p.ownsHydFile = f.Name(), true
	return p.hydFile, nil
}

func (p *Project) outPath() (string, error) {
	if p.outFile != "" {
		return p.outFile, nil
	}
	f, err := os.CreateTemp("", "aquanet-*.out")
	if err != nil {
		return "", errors.Enginef("toolkit.outPath", errors.ErrOpenOutput, "%v", err)
	}
	_ = f.Close()
	p.outFile, p.ownsOutFile = f.Name(), true
	return p.outFile, nil
}

// prolog describes the network for the results file.
func (p *Project) prolog() *outfile.Prolog {
	net := p.net
	u := net.Units()
	t := net.Times
	pro := &outfile.Prolog{
		Nodes:       int32(len(net.Nodes)),
		Links:       int32(len(net.Links)),
		Quality:     int32(net.Options.Quality),
		FlowUnits:   int32(net.Options.FlowUnits),
		ReportStart: int32(t.ReportStart),
		ReportStep:  int32(t.ReportStep),
		Duration:    int32(t.Duration),
		InputFile:   p.path,
		ChemName:    net.Options.ChemName,
		ChemUnits:   net.Options.ChemUnits,
	}
	if u.FlowUnits.IsSI() {
		pro.PressureUnits = 1
	}
	if idx, ok := net.NodeIndex(net.Options.TraceNode); ok && net.Options.Quality == network.QualityTrace {
		pro.TraceNode = int32(idx)
	}
	for i := 0; i < len(net.Title) && i < len(pro.Title); i++ {
		pro.Title[i] = net.Title[i]
	}
	pro.NodeIDs = make([]string, 0, len(net.Nodes))
	pro.Elevation = make([]float32, 0, len(net.Nodes))
	for i, node := range net.Nodes {
		pro.NodeIDs = append(pro.NodeIDs, node.ID)
		pro.Elevation = append(pro.Elevation, float32(node.Elevation))
		switch node.Kind {
		case network.Tank:
			pro.Tanks++
			pro.TankNodes = append(pro.TankNodes, int32(i+1))
			pro.TankAreas = append(pro.TankAreas, float32(math.Pi*node.Tank.Diameter*node.Tank.Diameter/4))
		case network.Reservoir:
			pro.Tanks++
			pro.TankNodes = append(pro.TankNodes, int32(i+1))
			pro.TankAreas = append(pro.TankAreas, 0)
		}
	}
	for _, link := range net.Links {
		pro.LinkIDs = append(pro.LinkIDs, link.ID)
		pro.LinkFrom = append(pro.LinkFrom, int32(link.From))
		pro.LinkTo = append(pro.LinkTo, int32(link.To))
		pro.LinkKind = append(pro.LinkKind, int32(link.Kind))
		pro.Length = append(pro.Length, float32(link.Length))
		pro.Diameter = append(pro.Diameter, float32(link.Diameter))
		switch {
		case link.Kind == network.Pump:
			pro.Pumps++
		case link.Kind.IsValve():
			pro.Valves++
		}
	}
	return pro
}

// isReportTime reports whether results at t belong in the results file.
func isReportTime(times network.Times, t int64) bool {
	if t < times.ReportStart || t > times.Duration {
		return false
	}
	if times.ReportStep <= 0 {
		return t == times.ReportStart
	}
	return (t-times.ReportStart)%times.ReportStep == 0
}
