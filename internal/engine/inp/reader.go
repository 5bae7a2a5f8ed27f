// # internal/engine/inp/reader.go
package inp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
)

// LineError describes one rejected input line.
type LineError struct {
	Line    int
	Section string
	Code    errors.EngineCode
	Text    string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d [%s]: error %d: %s: %q", e.Line, e.Section, int(e.Code), e.Code.Message(), e.Text)
}

// ParseError collects every rejected line of an input file. It unwraps to
// engine code 200 so callers can treat it like any other engine failure.
type ParseError struct {
	Errors []LineError
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d input error(s)", len(e.Errors))
	for i, le := range e.Errors {
		if i == 10 {
			fmt.Fprintf(&b, "; ...")
			break
		}
		b.WriteString("; ")
		b.WriteString(le.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return &errors.EngineError{Code: errors.ErrInput, Op: "inp.Read"}
}

type line struct {
	num     int
	fields  []string
	comment string
	raw     string
}

type section struct {
	name  string
	lines []line
}

type reader struct {
	net     *network.Network
	errs    []LineError
	current string
	// demandSeen marks junctions whose demand was replaced by [DEMANDS].
	demandSeen map[int]bool
	rules      ruleState
}

// ReadFile loads a network from an input file on disk.
func ReadFile(path string) (*network.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Enginef("inp.ReadFile", errors.ErrOpenInput, "%s: %v", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses an input stream. Node sections are applied before link
// sections so references may appear in any order in the file.
func Read(r io.Reader) (*network.Network, error) {
	sections, err := split(r)
	if err != nil {
		return nil, errors.Enginef("inp.Read", errors.ErrOpenInput, "%v", err)
	}
	rd := &reader{net: network.New(), demandSeen: make(map[int]bool)}

	// OPTIONS and TIMES first: they carry the default pattern and units.
	rd.apply(sections, map[string]func(line){
		"OPTIONS": rd.option,
		"TIMES":   rd.times,
	})
	rd.apply(sections, map[string]func(line){"TITLE": rd.title})
	rd.apply(sections, map[string]func(line){"PATTERNS": rd.pattern})
	rd.apply(sections, map[string]func(line){"CURVES": rd.curve})
	rd.apply(sections, map[string]func(line){"JUNCTIONS": rd.junction})
	rd.apply(sections, map[string]func(line){
		"RESERVOIRS": rd.reservoir,
		"TANKS":      rd.tank,
	})
	rd.apply(sections, map[string]func(line){
		"PIPES":  rd.pipe,
		"PUMPS":  rd.pump,
		"VALVES": rd.valve,
	})
	rd.apply(sections, map[string]func(line){
		"DEMANDS":   rd.demand,
		"EMITTERS":  rd.emitter,
		"STATUS":    rd.status,
		"CONTROLS":  rd.control,
		"QUALITY":   rd.quality,
		"SOURCES":   rd.source,
		"REACTIONS": rd.reaction,
		"MIXING":    rd.mixing,
		"RULES":     rd.rule,
	})
	rd.finish()

	if len(rd.errs) > 0 {
		return nil, &ParseError{Errors: rd.errs}
	}
	return rd.net, nil
}

func split(r io.Reader) ([]section, error) {
	var sections []section
	cur := -1
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	num := 0
	for sc.Scan() {
		num++
		raw := strings.TrimRight(sc.Text(), "\r")
		text, comment := raw, ""
		if i := strings.IndexByte(raw, ';'); i >= 0 {
			text, comment = raw[:i], strings.TrimSpace(raw[i+1:])
		}
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "[") {
			end := strings.IndexByte(trimmed, ']')
			if end < 0 {
				end = len(trimmed)
			}
			sections = append(sections, section{name: strings.ToUpper(strings.TrimSpace(trimmed[1:end]))})
			cur = len(sections) - 1
			continue
		}
		if cur < 0 {
			continue
		}
		if sections[cur].name == "TITLE" {
			if strings.TrimSpace(raw) != "" {
				sections[cur].lines = append(sections[cur].lines, line{num: num, raw: raw})
			}
			continue
		}
		fields := tokenize(trimmed)
		if len(fields) == 0 {
			continue
		}
		sections[cur].lines = append(sections[cur].lines, line{num: num, fields: fields, comment: comment, raw: raw})
	}
	return sections, sc.Err()
}

// tokenize splits on whitespace, keeping double-quoted tokens intact.
func tokenize(s string) []string {
	var out []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end >= 0 {
				out = append(out, s[1:end+1])
				s = s[end+2:]
				continue
			}
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return append(out, s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
}

func (rd *reader) apply(sections []section, handlers map[string]func(line)) {
	for _, sec := range sections {
		h, ok := handlers[sec.name]
		if !ok {
			continue
		}
		rd.current = sec.name
		for _, ln := range sec.lines {
			h(ln)
		}
	}
}

func (rd *reader) fail(ln line, code errors.EngineCode) {
	text := ln.raw
	if text == "" {
		text = strings.Join(ln.fields, " ")
	}
	rd.errs = append(rd.errs, LineError{Line: ln.num, Section: rd.current, Code: code, Text: strings.TrimSpace(text)})
}

func (rd *reader) number(ln line, s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		rd.fail(ln, errors.ErrIllegalNumber)
		return 0, false
	}
	return v, true
}

func (rd *reader) need(ln line, n int) bool {
	if len(ln.fields) < n {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	return true
}

func (rd *reader) nodeRef(ln line, id string) (int, bool) {
	idx, ok := rd.net.NodeIndex(id)
	if !ok {
		rd.fail(ln, errors.ErrUndefinedNode)
	}
	return idx, ok
}

func (rd *reader) linkRef(ln line, id string) (int, bool) {
	idx, ok := rd.net.LinkIndex(id)
	if !ok {
		rd.fail(ln, errors.ErrUndefinedLink)
	}
	return idx, ok
}

func (rd *reader) patternRef(ln line, id string) (int, bool) {
	if id == "" || id == "*" {
		return 0, true
	}
	idx, ok := rd.net.PatternIndex(id)
	if !ok {
		rd.fail(ln, errors.ErrUndefinedPattern)
	}
	return idx, ok
}

func (rd *reader) curveRef(ln line, id string, kind network.CurveKind) (int, bool) {
	idx, ok := rd.net.CurveIndex(id)
	if !ok {
		rd.fail(ln, errors.ErrUndefinedCurve)
		return 0, false
	}
	rd.net.Curves[idx-1].Kind = kind
	return idx, true
}

func (rd *reader) title(ln line) {
	rd.net.Title = append(rd.net.Title, strings.TrimSpace(ln.raw))
}

func (rd *reader) addNode(ln line, node *network.Node) {
	if _, err := rd.net.AddNode(node); err != nil {
		rd.fail(ln, errors.ErrDuplicateID)
	}
}

// ID Elev [Demand] [Pattern]
func (rd *reader) junction(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	f := ln.fields
	node := &network.Node{ID: f[0], Kind: network.Junction, Comment: ln.comment}
	var ok bool
	if node.Elevation, ok = rd.number(ln, f[1]); !ok {
		return
	}
	if len(f) > 2 {
		if node.BaseDemand, ok = rd.number(ln, f[2]); !ok {
			return
		}
	}
	if len(f) > 3 {
		if node.DemandPattern, ok = rd.patternRef(ln, f[3]); !ok {
			return
		}
	}
	rd.addNode(ln, node)
}

// ID Head [Pattern]
func (rd *reader) reservoir(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	f := ln.fields
	node := &network.Node{ID: f[0], Kind: network.Reservoir, Comment: ln.comment}
	var ok bool
	if node.Elevation, ok = rd.number(ln, f[1]); !ok {
		return
	}
	if len(f) > 2 {
		if node.DemandPattern, ok = rd.patternRef(ln, f[2]); !ok {
			return
		}
	}
	rd.addNode(ln, node)
}

// ID Elev InitLvl MinLvl MaxLvl Diam MinVol [VolCurve] [Overflow]
func (rd *reader) tank(ln line) {
	if !rd.need(ln, 7) {
		return
	}
	f := ln.fields
	var vals [6]float64
	for i := range vals {
		v, ok := rd.number(ln, f[i+1])
		if !ok {
			return
		}
		vals[i] = v
	}
	tank := &network.TankData{
		InitLevel: vals[1],
		MinLevel:  vals[2],
		MaxLevel:  vals[3],
		Diameter:  vals[4],
		MinVolume: vals[5],
		Bulk:      network.Missing,
	}
	if len(f) > 7 && f[7] != "*" {
		idx, ok := rd.curveRef(ln, f[7], network.CurveVolume)
		if !ok {
			return
		}
		tank.VolumeCurve = idx
	}
	if len(f) > 8 {
		tank.CanOverflow = strings.EqualFold(f[8], "YES")
	}
	if tank.MinLevel > tank.MaxLevel || tank.InitLevel < tank.MinLevel || tank.InitLevel > tank.MaxLevel {
		rd.fail(ln, errors.ErrTankLevels)
		return
	}
	rd.addNode(ln, &network.Node{ID: f[0], Kind: network.Tank, Elevation: vals[0], Tank: tank, Comment: ln.comment})
}

func (rd *reader) addLink(ln line, link *network.Link, from, to string) {
	var ok bool
	if link.From, ok = rd.nodeRef(ln, from); !ok {
		return
	}
	if link.To, ok = rd.nodeRef(ln, to); !ok {
		return
	}
	if _, exists := rd.net.LinkIndex(link.ID); exists {
		rd.fail(ln, errors.ErrDuplicateID)
		return
	}
	if _, err := rd.net.AddLink(link); err != nil {
		rd.fail(ln, errors.ErrIllegalLinkProp)
	}
}

// ID Node1 Node2 Length Diam Roughness [MinorLoss] [Status]
func (rd *reader) pipe(ln line) {
	if !rd.need(ln, 6) {
		return
	}
	f := ln.fields
	link := &network.Link{
		ID:         f[0],
		Kind:       network.Pipe,
		InitStatus: network.StatusOpen,
		Bulk:       network.Missing,
		Wall:       network.Missing,
		Comment:    ln.comment,
	}
	var ok bool
	if link.Length, ok = rd.number(ln, f[3]); !ok {
		return
	}
	if link.Diameter, ok = rd.number(ln, f[4]); !ok {
		return
	}
	if link.Roughness, ok = rd.number(ln, f[5]); !ok {
		return
	}
	if link.Length <= 0 || link.Diameter <= 0 || link.Roughness <= 0 {
		rd.fail(ln, errors.ErrIllegalLinkProp)
		return
	}
	rest := f[6:]
	if len(rest) > 0 {
		if v, err := strconv.ParseFloat(rest[0], 64); err == nil {
			link.MinorLoss = v
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		switch strings.ToUpper(rest[0]) {
		case "CV":
			link.Kind = network.CVPipe
		case "CLOSED":
			link.InitStatus = network.StatusClosed
		case "OPEN":
		default:
			rd.fail(ln, errors.ErrSyntax)
			return
		}
	}
	if link.MinorLoss < 0 {
		rd.fail(ln, errors.ErrIllegalLinkProp)
		return
	}
	rd.addLink(ln, link, f[1], f[2])
}

// ID Node1 Node2 {HEAD curve | POWER hp | SPEED s | PATTERN id}...
func (rd *reader) pump(ln line) {
	if !rd.need(ln, 4) {
		return
	}
	f := ln.fields
	link := &network.Link{
		ID:          f[0],
		Kind:        network.Pump,
		InitStatus:  network.StatusOpen,
		InitSetting: 1.0,
		Comment:     ln.comment,
	}
	for i := 3; i < len(f); i += 2 {
		if i+1 >= len(f) {
			rd.fail(ln, errors.ErrSyntax)
			return
		}
		kw, val := strings.ToUpper(f[i]), f[i+1]
		var ok bool
		switch kw {
		case "HEAD":
			if link.HeadCurve, ok = rd.curveRef(ln, val, network.CurvePump); !ok {
				return
			}
		case "POWER":
			if link.Power, ok = rd.number(ln, val); !ok {
				return
			}
		case "SPEED":
			if link.InitSetting, ok = rd.number(ln, val); !ok {
				return
			}
			if link.InitSetting < 0 {
				rd.fail(ln, errors.ErrIllegalLinkProp)
				return
			}
		case "PATTERN":
			if link.SpeedPattern, ok = rd.patternRef(ln, val); !ok {
				return
			}
		default:
			rd.fail(ln, errors.ErrSyntax)
			return
		}
	}
	if link.HeadCurve == 0 && link.Power <= 0 {
		rd.fail(ln, errors.ErrPumpNoCurve)
		return
	}
	rd.addLink(ln, link, f[1], f[2])
}

// ID Node1 Node2 Diam Type Setting [MinorLoss]
func (rd *reader) valve(ln line) {
	if !rd.need(ln, 6) {
		return
	}
	f := ln.fields
	kind, ok := network.ParseValveKind(f[4])
	if !ok {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	link := &network.Link{
		ID:         f[0],
		Kind:       kind,
		InitStatus: network.StatusActive,
		Comment:    ln.comment,
	}
	if link.Diameter, ok = rd.number(ln, f[3]); !ok {
		return
	}
	if link.Diameter <= 0 {
		rd.fail(ln, errors.ErrIllegalLinkProp)
		return
	}
	if kind == network.GPV {
		idx, ok := rd.curveRef(ln, f[5], network.CurveHeadloss)
		if !ok {
			return
		}
		link.InitSetting = float64(idx)
		link.InitStatus = network.StatusOpen
	} else if link.InitSetting, ok = rd.number(ln, f[5]); !ok {
		return
	}
	if len(f) > 6 {
		if link.MinorLoss, ok = rd.number(ln, f[6]); !ok {
			return
		}
	}
	rd.addLink(ln, link, f[1], f[2])
}

// Junction Demand [Pattern] [;Category]
func (rd *reader) demand(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	f := ln.fields
	idx, ok := rd.nodeRef(ln, f[0])
	if !ok {
		return
	}
	node := rd.net.Node(idx)
	if node.Kind != network.Junction {
		rd.fail(ln, errors.ErrUndefinedNode)
		return
	}
	d, ok := rd.number(ln, f[1])
	if !ok {
		return
	}
	pat := 0
	if len(f) > 2 {
		if pat, ok = rd.patternRef(ln, f[2]); !ok {
			return
		}
	}
	// the first entry replaces the [JUNCTIONS] demand, later ones add categories
	if !rd.demandSeen[idx] {
		rd.demandSeen[idx] = true
		node.BaseDemand = d
		node.DemandPattern = pat
		node.DemandName = ln.comment
		return
	}
	node.AddDemand(network.Demand{Base: d, Pattern: pat, Name: ln.comment})
}

func (rd *reader) emitter(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	idx, ok := rd.nodeRef(ln, ln.fields[0])
	if !ok {
		return
	}
	v, ok := rd.number(ln, ln.fields[1])
	if !ok {
		return
	}
	node := rd.net.Node(idx)
	if node.Kind != network.Junction || v < 0 {
		rd.fail(ln, errors.ErrIllegalNodeProp)
		return
	}
	node.Emitter = v
}

// Link OPEN|CLOSED|ACTIVE|setting
func (rd *reader) status(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	idx, ok := rd.linkRef(ln, ln.fields[0])
	if !ok {
		return
	}
	link := rd.net.Link(idx)
	switch strings.ToUpper(ln.fields[1]) {
	case "OPEN":
		if link.Kind == network.CVPipe {
			rd.fail(ln, errors.ErrControlCV)
			return
		}
		link.InitStatus = network.StatusOpen
		if link.Kind == network.Pump {
			link.InitSetting = 1.0
		}
	case "CLOSED":
		if link.Kind == network.CVPipe {
			rd.fail(ln, errors.ErrControlCV)
			return
		}
		link.InitStatus = network.StatusClosed
	case "ACTIVE":
		if !link.Kind.IsValve() {
			rd.fail(ln, errors.ErrIllegalLinkProp)
			return
		}
		link.InitStatus = network.StatusActive
	default:
		v, ok := rd.number(ln, ln.fields[1])
		if !ok {
			return
		}
		switch {
		case link.Kind == network.Pump:
			if v < 0 {
				rd.fail(ln, errors.ErrIllegalLinkProp)
				return
			}
			link.InitSetting = v
			link.InitStatus = network.StatusOpen
			if v == 0 {
				link.InitStatus = network.StatusClosed
			}
		case link.Kind.IsValve() && link.Kind != network.GPV:
			link.InitSetting = v
			link.InitStatus = network.StatusActive
		default:
			rd.fail(ln, errors.ErrIllegalLinkProp)
		}
	}
}

// LINK id status IF NODE id ABOVE|BELOW value
// LINK id status AT TIME t
// LINK id status AT CLOCKTIME t [AM|PM]
func (rd *reader) control(ln line) {
	f := ln.fields
	if len(f) < 6 || !strings.EqualFold(f[0], "LINK") {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	idx, ok := rd.linkRef(ln, f[1])
	if !ok {
		return
	}
	link := rd.net.Link(idx)
	if link.Kind == network.CVPipe {
		rd.fail(ln, errors.ErrControlCV)
		return
	}
	ctrl := &network.Control{Link: idx, Setting: network.Missing, Enabled: true}
	switch strings.ToUpper(f[2]) {
	case "OPEN":
		ctrl.Status = network.StatusOpen
		if link.Kind == network.Pump {
			ctrl.Setting = 1.0
		}
	case "CLOSED":
		ctrl.Status = network.StatusClosed
		if link.Kind == network.Pump {
			ctrl.Setting = 0
		}
	default:
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		if link.Kind.IsPipe() || link.Kind == network.GPV || v < 0 {
			rd.fail(ln, errors.ErrIllegalLinkProp)
			return
		}
		ctrl.Setting = v
		ctrl.Status = network.StatusActive
		if link.Kind == network.Pump {
			ctrl.Status = network.StatusOpen
			if v == 0 {
				ctrl.Status = network.StatusClosed
			}
		}
	}
	switch strings.ToUpper(f[3]) {
	case "IF":
		if len(f) < 8 || !strings.EqualFold(f[4], "NODE") {
			rd.fail(ln, errors.ErrSyntax)
			return
		}
		if ctrl.Node, ok = rd.nodeRef(ln, f[5]); !ok {
			return
		}
		switch strings.ToUpper(f[6]) {
		case "ABOVE":
			ctrl.Kind = network.ControlHighLevel
		case "BELOW":
			ctrl.Kind = network.ControlLowLevel
		default:
			rd.fail(ln, errors.ErrSyntax)
			return
		}
		if ctrl.Level, ok = rd.number(ln, f[7]); !ok {
			return
		}
	case "AT":
		var err error
		switch strings.ToUpper(f[4]) {
		case "TIME":
			ctrl.Kind = network.ControlTimer
			ctrl.Time, err = ParseDuration(f[5:])
		case "CLOCKTIME":
			ctrl.Kind = network.ControlTimeOfDay
			ctrl.Time, err = ParseClock(f[5:])
		default:
			err = fmt.Errorf("unknown time keyword %q", f[4])
		}
		if err != nil {
			rd.fail(ln, errors.ErrSyntax)
			return
		}
	default:
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	rd.net.Controls = append(rd.net.Controls, ctrl)
}

func (rd *reader) quality(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	idx, ok := rd.nodeRef(ln, ln.fields[0])
	if !ok {
		return
	}
	v, ok := rd.number(ln, ln.fields[1])
	if !ok {
		return
	}
	if v < 0 {
		rd.fail(ln, errors.ErrIllegalNodeProp)
		return
	}
	rd.net.Node(idx).InitQuality = v
}

// Node Type Strength [Pattern]
func (rd *reader) source(ln line) {
	if !rd.need(ln, 3) {
		return
	}
	f := ln.fields
	idx, ok := rd.nodeRef(ln, f[0])
	if !ok {
		return
	}
	kind, ok := network.ParseSourceKind(f[1])
	if !ok {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	src := &network.Source{Kind: kind}
	if src.Strength, ok = rd.number(ln, f[2]); !ok {
		return
	}
	if len(f) > 3 {
		if src.Pattern, ok = rd.patternRef(ln, f[3]); !ok {
			return
		}
	}
	rd.net.Node(idx).Source = src
}

func (rd *reader) reaction(ln line) {
	f := ln.fields
	if !rd.need(ln, 3) {
		return
	}
	kw := strings.ToUpper(f[0])
	opts := &rd.net.Options
	switch kw {
	case "ORDER":
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		switch strings.ToUpper(f[1]) {
		case "BULK":
			opts.BulkOrder = v
		case "WALL":
			if v != 0 && v != 1 {
				rd.fail(ln, errors.ErrIllegalOption)
				return
			}
			opts.WallOrder = v
		case "TANK":
			opts.TankOrder = v
		default:
			rd.fail(ln, errors.ErrSyntax)
		}
	case "GLOBAL":
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		switch strings.ToUpper(f[1]) {
		case "BULK":
			opts.GlobalBulk = v
		case "WALL":
			opts.GlobalWall = v
		default:
			rd.fail(ln, errors.ErrSyntax)
		}
	case "BULK", "WALL":
		idx, ok := rd.linkRef(ln, f[1])
		if !ok {
			return
		}
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		if kw == "BULK" {
			rd.net.Link(idx).Bulk = v
		} else {
			rd.net.Link(idx).Wall = v
		}
	case "TANK":
		idx, ok := rd.nodeRef(ln, f[1])
		if !ok {
			return
		}
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		node := rd.net.Node(idx)
		if node.Kind != network.Tank {
			rd.fail(ln, errors.ErrUndefinedNode)
			return
		}
		node.Tank.Bulk = v
	case "LIMITING":
		v, ok := rd.number(ln, f[len(f)-1])
		if !ok {
			return
		}
		opts.LimitingConc = v
	case "ROUGHNESS":
		if !strings.EqualFold(f[1], "CORRELATION") {
			rd.fail(ln, errors.ErrSyntax)
			return
		}
		v, ok := rd.number(ln, f[2])
		if !ok {
			return
		}
		opts.RoughnessCorrelation = v
	default:
		rd.fail(ln, errors.ErrSyntax)
	}
}

// Tank MIXED|2COMP [fraction]|FIFO|LIFO
func (rd *reader) mixing(ln line) {
	if !rd.need(ln, 2) {
		return
	}
	idx, ok := rd.nodeRef(ln, ln.fields[0])
	if !ok {
		return
	}
	node := rd.net.Node(idx)
	if node.Kind != network.Tank {
		rd.fail(ln, errors.ErrUndefinedNode)
		return
	}
	model, ok := network.ParseMixModel(ln.fields[1])
	if !ok {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	node.Tank.MixModel = model
	node.Tank.MixFraction = 0
	if model == network.MixTwoCompartment {
		node.Tank.MixFraction = 1
		if len(ln.fields) > 2 {
			v, ok := rd.number(ln, ln.fields[2])
			if !ok {
				return
			}
			if v < 0 || v > 1 {
				rd.fail(ln, errors.ErrIllegalNodeProp)
				return
			}
			node.Tank.MixFraction = v
		}
	}
}

func (rd *reader) pattern(ln line) {
	f := ln.fields
	idx := rd.net.AddPattern(f[0])
	pat := rd.net.Patterns[idx-1]
	for _, s := range f[1:] {
		v, ok := rd.number(ln, s)
		if !ok {
			return
		}
		pat.Multipliers = append(pat.Multipliers, v)
	}
}

func (rd *reader) curve(ln line) {
	if !rd.need(ln, 3) {
		return
	}
	f := ln.fields
	idx := rd.net.AddCurve(f[0])
	c := rd.net.Curves[idx-1]
	x, ok := rd.number(ln, f[1])
	if !ok {
		return
	}
	y, ok := rd.number(ln, f[2])
	if !ok {
		return
	}
	if n := len(c.X); n > 0 && x <= c.X[n-1] {
		rd.fail(ln, errors.ErrCurveOrder)
		return
	}
	c.X = append(c.X, x)
	c.Y = append(c.Y, y)
}

// finish resolves values that depend on the whole file.
func (rd *reader) finish() {
	rd.endRule()
	if rd.net.Options.ReqPressure < rd.net.Options.MinPressure {
		rd.net.Options.ReqPressure = rd.net.Options.MinPressure
	}
	opts := rd.net.Options
	for _, link := range rd.net.Links {
		if link.Bulk == network.Missing {
			link.Bulk = opts.GlobalBulk
		}
		if link.Wall == network.Missing {
			link.Wall = wallCoeff(link, opts)
		}
	}
	var unmixed []string
	for _, node := range rd.net.Nodes {
		if node.Tank == nil {
			continue
		}
		if node.Tank.Bulk == network.Missing {
			node.Tank.Bulk = opts.GlobalBulk
		}
		if node.Tank.MixModel != network.MixComplete {
			unmixed = append(unmixed, node.ID+" "+node.Tank.MixModel.String())
		}
	}
	if len(unmixed) > 0 {
		slog.Warn("tank mixing models other than MIXED are simulated as complete mixing", "tanks", unmixed)
	}
	if opts.Quality == network.QualityTrace {
		if _, ok := rd.net.NodeIndex(opts.TraceNode); !ok {
			rd.errs = append(rd.errs, LineError{Section: "OPTIONS", Code: errors.ErrUndefinedTrace, Text: opts.TraceNode})
		}
	}
}

// wallCoeff is the global wall coefficient, or the roughness correlation
// divided by (H-W), over the log relative roughness of (D-W) or times (C-M)
// the pipe roughness when a correlation is set.
func wallCoeff(link *network.Link, opts network.Options) float64 {
	rf := opts.RoughnessCorrelation
	if rf == 0 || !link.Kind.IsPipe() {
		return opts.GlobalWall
	}
	if link.Roughness <= 0 || link.Diameter <= 0 {
		return 0
	}
	switch opts.HeadLoss {
	case network.DarcyWeisbach:
		if link.Roughness == link.Diameter {
			return 0
		}
		return rf / math.Abs(math.Log(link.Roughness/link.Diameter))
	case network.ChezyManning:
		return rf * link.Roughness
	}
	return rf / link.Roughness
}
