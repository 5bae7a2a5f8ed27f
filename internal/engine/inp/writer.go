package inp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
)

// WriteFile saves a network to an input file that Read loads back unchanged.
func WriteFile(path string, n *network.Network) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Enginef("inp.WriteFile", errors.ErrWriteInput, "%s: %v", path, err)
	}
	if err := Write(f, n); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Enginef("inp.WriteFile", errors.ErrWriteInput, "%s: %v", path, err)
	}
	return nil
}

type writer struct {
	w   *bufio.Writer
	net *network.Network
}

func Write(out io.Writer, n *network.Network) error {
	w := &writer{w: bufio.NewWriter(out), net: n}
	w.title()
	w.junctions()
	w.reservoirs()
	w.tanks()
	w.pipes()
	w.pumps()
	w.valves()
	w.demands()
	w.emitters()
	w.status()
	w.patterns()
	w.curves()
	w.controls()
	w.rules()
	w.quality()
	w.sources()
	w.reactions()
	w.mixing()
	w.times()
	w.options()
	fmt.Fprintln(w.w, "[END]")
	if err := w.w.Flush(); err != nil {
		return errors.Enginef("inp.Write", errors.ErrWriteInput, "%v", err)
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func quote(id string) string {
	if strings.ContainsAny(id, " \t") {
		return `"` + id + `"`
	}
	return id
}

func (w *writer) header(name string) {
	fmt.Fprintf(w.w, "\n[%s]\n", name)
}

func (w *writer) row(cols ...string) {
	for i, c := range cols {
		if i > 0 {
			w.w.WriteByte(' ')
		}
		fmt.Fprintf(w.w, "%-16s", c)
	}
}

func (w *writer) end(comment string) {
	if comment != "" {
		fmt.Fprintf(w.w, " ;%s", comment)
	}
	w.w.WriteByte('\n')
}

func (w *writer) patternID(idx int) string {
	if p := w.net.Pattern(idx); p != nil {
		return quote(p.ID)
	}
	return ""
}

func (w *writer) title() {
	fmt.Fprintln(w.w, "[TITLE]")
	for _, t := range w.net.Title {
		fmt.Fprintln(w.w, t)
	}
}

func (w *writer) junctions() {
	w.header("JUNCTIONS")
	for _, n := range w.net.Nodes {
		if n.Kind != network.Junction {
			continue
		}
		w.row(quote(n.ID), num(n.Elevation), num(n.BaseDemand), w.patternID(n.DemandPattern))
		w.end(n.Comment)
	}
}

// demands repeats the first category so a reload sees every category in
// order; junctions with a single unnamed category are skipped.
func (w *writer) demands() {
	w.header("DEMANDS")
	for _, n := range w.net.Nodes {
		if n.Kind != network.Junction || len(n.ExtraDemands) == 0 && n.DemandName == "" {
			continue
		}
		for _, d := range n.Demands() {
			w.row(quote(n.ID), num(d.Base), w.patternID(d.Pattern))
			w.end(d.Name)
		}
	}
}

func (w *writer) reservoirs() {
	w.header("RESERVOIRS")
	for _, n := range w.net.Nodes {
		if n.Kind != network.Reservoir {
			continue
		}
		w.row(quote(n.ID), num(n.Elevation), w.patternID(n.DemandPattern))
		w.end(n.Comment)
	}
}

func (w *writer) tanks() {
	w.header("TANKS")
	for _, n := range w.net.Nodes {
		if n.Kind != network.Tank {
			continue
		}
		t := n.Tank
		curve := "*"
		if c := w.net.Curve(t.VolumeCurve); c != nil {
			curve = quote(c.ID)
		}
		overflow := "NO"
		if t.CanOverflow {
			overflow = "YES"
		}
		w.row(quote(n.ID), num(n.Elevation), num(t.InitLevel), num(t.MinLevel), num(t.MaxLevel),
			num(t.Diameter), num(t.MinVolume), curve, overflow)
		w.end(n.Comment)
	}
}

func (w *writer) nodeID(idx int) string {
	return quote(w.net.Node(idx).ID)
}

func (w *writer) pipes() {
	w.header("PIPES")
	for _, l := range w.net.Links {
		if !l.Kind.IsPipe() {
			continue
		}
		status := "OPEN"
		switch {
		case l.Kind == network.CVPipe:
			status = "CV"
		case l.InitStatus == network.StatusClosed:
			status = "CLOSED"
		}
		w.row(quote(l.ID), w.nodeID(l.From), w.nodeID(l.To), num(l.Length), num(l.Diameter),
			num(l.Roughness), num(l.MinorLoss), status)
		w.end(l.Comment)
	}
}

func (w *writer) pumps() {
	w.header("PUMPS")
	for _, l := range w.net.Links {
		if l.Kind != network.Pump {
			continue
		}
		cols := []string{quote(l.ID), w.nodeID(l.From), w.nodeID(l.To)}
		if c := w.net.Curve(l.HeadCurve); c != nil {
			cols = append(cols, "HEAD", quote(c.ID))
		}
		if l.Power > 0 {
			cols = append(cols, "POWER", num(l.Power))
		}
		if l.InitSetting != 1 {
			cols = append(cols, "SPEED", num(l.InitSetting))
		}
		if l.SpeedPattern > 0 {
			cols = append(cols, "PATTERN", w.patternID(l.SpeedPattern))
		}
		w.row(cols...)
		w.end(l.Comment)
	}
}

func (w *writer) valves() {
	w.header("VALVES")
	for _, l := range w.net.Links {
		if !l.Kind.IsValve() {
			continue
		}
		setting := num(l.InitSetting)
		if l.Kind == network.GPV {
			setting = "*"
			if c := w.net.Curve(int(l.InitSetting)); c != nil {
				setting = quote(c.ID)
			}
		}
		w.row(quote(l.ID), w.nodeID(l.From), w.nodeID(l.To), num(l.Diameter), l.Kind.String(), setting, num(l.MinorLoss))
		w.end(l.Comment)
	}
}

func (w *writer) emitters() {
	w.header("EMITTERS")
	for _, n := range w.net.Nodes {
		if n.Emitter > 0 {
			w.row(quote(n.ID), num(n.Emitter))
			w.end("")
		}
	}
}

func (w *writer) status() {
	w.header("STATUS")
	for _, l := range w.net.Links {
		switch {
		case l.Kind == network.Pump && l.InitStatus == network.StatusClosed:
			w.row(quote(l.ID), "CLOSED")
		case l.Kind.IsValve() && l.Kind != network.GPV && l.InitStatus != network.StatusActive:
			w.row(quote(l.ID), l.InitStatus.String())
		case l.Kind == network.GPV && l.InitStatus == network.StatusClosed:
			w.row(quote(l.ID), "CLOSED")
		default:
			continue
		}
		w.end("")
	}
}

func (w *writer) patterns() {
	w.header("PATTERNS")
	for _, p := range w.net.Patterns {
		for i := 0; i < len(p.Multipliers); i += 6 {
			end := i + 6
			if end > len(p.Multipliers) {
				end = len(p.Multipliers)
			}
			cols := []string{quote(p.ID)}
			for _, m := range p.Multipliers[i:end] {
				cols = append(cols, num(m))
			}
			w.row(cols...)
			w.end("")
		}
	}
}

func (w *writer) curves() {
	w.header("CURVES")
	for _, c := range w.net.Curves {
		fmt.Fprintf(w.w, ";%s:\n", c.Kind)
		for i := range c.X {
			w.row(quote(c.ID), num(c.X[i]), num(c.Y[i]))
			w.end("")
		}
	}
}

func (w *writer) controls() {
	w.header("CONTROLS")
	for _, c := range w.net.Controls {
		link := w.net.Link(c.Link)
		action := c.Status.String()
		if c.Setting != network.Missing {
			action = num(c.Setting)
			if link.Kind == network.Pump && (c.Setting == 1 && c.Status == network.StatusOpen || c.Setting == 0) {
				action = c.Status.String()
			}
		}
		fmt.Fprintf(w.w, "LINK %s %s ", quote(link.ID), action)
		switch c.Kind {
		case network.ControlLowLevel:
			fmt.Fprintf(w.w, "IF NODE %s BELOW %s\n", w.nodeID(c.Node), num(c.Level))
		case network.ControlHighLevel:
			fmt.Fprintf(w.w, "IF NODE %s ABOVE %s\n", w.nodeID(c.Node), num(c.Level))
		case network.ControlTimer:
			fmt.Fprintf(w.w, "AT TIME %s\n", FormatClock(c.Time))
		case network.ControlTimeOfDay:
			fmt.Fprintf(w.w, "AT CLOCKTIME %s\n", FormatClock(c.Time))
		}
	}
}

func (w *writer) quality() {
	w.header("QUALITY")
	for _, n := range w.net.Nodes {
		if n.InitQuality != 0 {
			w.row(quote(n.ID), num(n.InitQuality))
			w.end("")
		}
	}
}

func (w *writer) sources() {
	w.header("SOURCES")
	for _, n := range w.net.Nodes {
		if n.Source == nil {
			continue
		}
		w.row(quote(n.ID), n.Source.Kind.String(), num(n.Source.Strength), w.patternID(n.Source.Pattern))
		w.end("")
	}
}

func (w *writer) reactions() {
	o := w.net.Options
	w.header("REACTIONS")
	fmt.Fprintf(w.w, "ORDER BULK %s\nORDER WALL %s\nORDER TANK %s\n", num(o.BulkOrder), num(o.WallOrder), num(o.TankOrder))
	fmt.Fprintf(w.w, "GLOBAL BULK %s\nGLOBAL WALL %s\n", num(o.GlobalBulk), num(o.GlobalWall))
	if o.RoughnessCorrelation != 0 {
		fmt.Fprintf(w.w, "ROUGHNESS CORRELATION %s\n", num(o.RoughnessCorrelation))
	}
	if o.LimitingConc != 0 {
		fmt.Fprintf(w.w, "LIMITING POTENTIAL %s\n", num(o.LimitingConc))
	}
	for _, l := range w.net.Links {
		if !l.Kind.IsPipe() {
			continue
		}
		if l.Bulk != o.GlobalBulk {
			fmt.Fprintf(w.w, "BULK %s %s\n", quote(l.ID), num(l.Bulk))
		}
		if l.Wall != o.GlobalWall {
			fmt.Fprintf(w.w, "WALL %s %s\n", quote(l.ID), num(l.Wall))
		}
	}
	for _, n := range w.net.Nodes {
		if n.Tank != nil && n.Tank.Bulk != o.GlobalBulk {
			fmt.Fprintf(w.w, "TANK %s %s\n", quote(n.ID), num(n.Tank.Bulk))
		}
	}
}

func (w *writer) mixing() {
	w.header("MIXING")
	for _, n := range w.net.Nodes {
		if n.Kind == network.Tank {
			if n.Tank.MixModel == network.MixTwoCompartment {
				fmt.Fprintf(w.w, "%s %s %s\n", quote(n.ID), n.Tank.MixModel, num(n.Tank.MixFraction))
				continue
			}
			fmt.Fprintf(w.w, "%s %s\n", quote(n.ID), n.Tank.MixModel)
		}
	}
}

func (w *writer) times() {
	t := w.net.Times
	w.header("TIMES")
	fmt.Fprintf(w.w, "DURATION %s\n", FormatClock(t.Duration))
	fmt.Fprintf(w.w, "HYDRAULIC TIMESTEP %s\n", FormatClock(t.HydStep))
	fmt.Fprintf(w.w, "QUALITY TIMESTEP %s\n", FormatClock(t.QualStep))
	fmt.Fprintf(w.w, "PATTERN TIMESTEP %s\n", FormatClock(t.PatternStep))
	fmt.Fprintf(w.w, "PATTERN START %s\n", FormatClock(t.PatternStart))
	fmt.Fprintf(w.w, "REPORT TIMESTEP %s\n", FormatClock(t.ReportStep))
	fmt.Fprintf(w.w, "REPORT START %s\n", FormatClock(t.ReportStart))
	fmt.Fprintf(w.w, "START CLOCKTIME %s\n", FormatClock(t.StartClock))
	fmt.Fprintf(w.w, "RULE TIMESTEP %s\n", FormatClock(t.RuleStep))
}

func (w *writer) options() {
	o := w.net.Options
	w.header("OPTIONS")
	fmt.Fprintf(w.w, "UNITS %s\n", o.FlowUnits)
	fmt.Fprintf(w.w, "HEADLOSS %s\n", o.HeadLoss)
	fmt.Fprintf(w.w, "SPECIFIC GRAVITY %s\n", num(o.SpecificGravity))
	fmt.Fprintf(w.w, "VISCOSITY %s\n", num(o.Viscosity))
	fmt.Fprintf(w.w, "TRIALS %d\n", o.Trials)
	fmt.Fprintf(w.w, "ACCURACY %s\n", num(o.Accuracy))
	fmt.Fprintf(w.w, "CHECKFREQ %d\n", o.CheckFreq)
	fmt.Fprintf(w.w, "MAXCHECK %d\n", o.MaxCheck)
	fmt.Fprintf(w.w, "DAMPLIMIT %s\n", num(o.DampLimit))
	if o.Unbalanced == network.UnbalancedContinue {
		fmt.Fprintf(w.w, "UNBALANCED CONTINUE %d\n", o.ExtraTrials)
	} else {
		fmt.Fprintln(w.w, "UNBALANCED STOP")
	}
	if o.DefaultPattern != "" {
		fmt.Fprintf(w.w, "PATTERN %s\n", quote(o.DefaultPattern))
	}
	fmt.Fprintf(w.w, "DEMAND MULTIPLIER %s\n", num(o.DemandMultiplier))
	fmt.Fprintf(w.w, "DEMAND MODEL %s\n", o.DemandModel)
	fmt.Fprintf(w.w, "MINIMUM PRESSURE %s\n", num(o.MinPressure))
	fmt.Fprintf(w.w, "REQUIRED PRESSURE %s\n", num(o.ReqPressure))
	fmt.Fprintf(w.w, "PRESSURE EXPONENT %s\n", num(o.PressureExp))
	fmt.Fprintf(w.w, "EMITTER EXPONENT %s\n", num(o.EmitterExponent))
	switch o.Quality {
	case network.QualityNone:
		fmt.Fprintln(w.w, "QUALITY NONE")
	case network.QualityAge:
		fmt.Fprintln(w.w, "QUALITY AGE")
	case network.QualityTrace:
		fmt.Fprintf(w.w, "QUALITY TRACE %s\n", quote(o.TraceNode))
	default:
		fmt.Fprintf(w.w, "QUALITY %s %s\n", quote(o.ChemName), o.ChemUnits)
	}
	fmt.Fprintf(w.w, "DIFFUSIVITY %s\n", num(o.Diffusivity))
	fmt.Fprintf(w.w, "TOLERANCE %s\n", num(o.Tolerance))
}
