package outfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"aquanet/internal/core/errors"
)

// Binary results file layout: a prolog describing the network, a pump energy
// section, one fixed-size block per reporting period, and an epilog that
// repeats the magic number.
const (
	OutMagic   int32 = 516114521
	OutVersion int32 = 20012

	idSize    = 32
	titleSize = 80
	pathSize  = 260

	epilogSize = 4*4 + 3*4
	energySize = 4 + 6*4
)

// Prolog is the static part of a results file.
type Prolog struct {
	Nodes         int32
	Tanks         int32
	Links         int32
	Pumps         int32
	Valves        int32
	Quality       int32 // 0 none, 1 chemical, 2 age, 3 trace
	TraceNode     int32
	FlowUnits     int32
	PressureUnits int32 // 0 psi, 1 meters
	ReportStart   int32
	ReportStep    int32
	Duration      int32

	Title      [3]string
	InputFile  string
	ReportFile string
	ChemName   string
	ChemUnits  string

	NodeIDs   []string
	LinkIDs   []string
	LinkFrom  []int32
	LinkTo    []int32
	LinkKind  []int32
	TankNodes []int32
	TankAreas []float32
	Elevation []float32
	Length    []float32
	Diameter  []float32
}

type header struct {
	Magic, Version                              int32
	Nodes, Tanks, Links, Pumps, Valves          int32
	Quality, TraceNode, FlowUnits, PressureUnit int32
	StatFlag                                    int32
	ReportStart, ReportStep, Duration           int32
}

// PumpEnergy summarises one pump over the whole run.
type PumpEnergy struct {
	Link         int32
	Utilization  float32 // percent of time on line
	Efficiency   float32
	KWhPerVolume float32
	AverageKW    float32
	PeakKW       float32
	CostPerDay   float32
}

// Period holds the results of one reporting period in reporting units.
type Period struct {
	NodeDemand   []float32
	NodeHead     []float32
	NodePressure []float32
	NodeQuality  []float32

	LinkFlow     []float32
	LinkVelocity []float32
	LinkHeadloss []float32
	LinkQuality  []float32
	LinkStatus   []float32
	LinkSetting  []float32
	LinkReaction []float32
	LinkFriction []float32
}

func (p *Period) nodeColumns() [][]float32 {
	return [][]float32{p.NodeDemand, p.NodeHead, p.NodePressure, p.NodeQuality}
}

func (p *Period) linkColumns() [][]float32 {
	return [][]float32{p.LinkFlow, p.LinkVelocity, p.LinkHeadloss, p.LinkQuality,
		p.LinkStatus, p.LinkSetting, p.LinkReaction, p.LinkFriction}
}

// NewPeriod allocates a period sized for the prolog's network.
func NewPeriod(nodes, links int) *Period {
	p := &Period{}
	for _, col := range []*[]float32{&p.NodeDemand, &p.NodeHead, &p.NodePressure, &p.NodeQuality} {
		*col = make([]float32, nodes)
	}
	for _, col := range []*[]float32{&p.LinkFlow, &p.LinkVelocity, &p.LinkHeadloss, &p.LinkQuality,
		&p.LinkStatus, &p.LinkSetting, &p.LinkReaction, &p.LinkFriction} {
		*col = make([]float32, links)
	}
	return p
}

func periodSize(nodes, links int32) int64 {
	return 4 * (4*int64(nodes) + 8*int64(links))
}

type binWriter struct {
	w   io.Writer
	err error
}

func (b *binWriter) put(v any) {
	if b.err == nil {
		b.err = binary.Write(b.w, binary.LittleEndian, v)
	}
}

func (b *binWriter) str(s string, n int) {
	buf := make([]byte, n)
	copy(buf[:n-1], s)
	b.put(buf)
}

// Writer streams a results file.
type Writer struct {
	f        *os.File
	w        *bufio.Writer
	nodes    int32
	links    int32
	pumps    int32
	energyAt int64
	periods  int32
}

// Create writes the prolog and reserves room for the energy section.
func Create(path string, p *Prolog) (*Writer, error) {
	const op = "outfile.Create"
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrOpenOutput, "%v", err)
	}
	var buf bytes.Buffer
	bw := &binWriter{w: &buf}
	bw.put(header{
		Magic: OutMagic, Version: OutVersion,
		Nodes: p.Nodes, Tanks: p.Tanks, Links: p.Links, Pumps: p.Pumps, Valves: p.Valves,
		Quality: p.Quality, TraceNode: p.TraceNode, FlowUnits: p.FlowUnits, PressureUnit: p.PressureUnits,
		ReportStart: p.ReportStart, ReportStep: p.ReportStep, Duration: p.Duration,
	})
	for _, t := range p.Title {
		bw.str(t, titleSize)
	}
	bw.str(p.InputFile, pathSize)
	bw.str(p.ReportFile, pathSize)
	bw.str(p.ChemName, idSize)
	bw.str(p.ChemUnits, idSize)
	for _, id := range p.NodeIDs {
		bw.str(id, idSize)
	}
	for _, id := range p.LinkIDs {
		bw.str(id, idSize)
	}
	bw.put(p.LinkFrom)
	bw.put(p.LinkTo)
	bw.put(p.LinkKind)
	bw.put(p.TankNodes)
	bw.put(p.TankAreas)
	bw.put(p.Elevation)
	bw.put(p.Length)
	bw.put(p.Diameter)
	// energy placeholder, filled in by Finish
	bw.put(make([]byte, int(p.Pumps)*energySize+4))
	if bw.err != nil {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrSaveResults, "%v", bw.err)
	}
	w := &Writer{f: f, w: bufio.NewWriter(f), nodes: p.Nodes, links: p.Links, pumps: p.Pumps}
	w.energyAt = int64(buf.Len()) - int64(p.Pumps)*energySize - 4
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, errors.Enginef(op, errors.ErrSaveResults, "%v", err)
	}
	return w, nil
}

// WritePeriod appends one reporting period.
func (w *Writer) WritePeriod(p *Period) error {
	const op = "outfile.Writer.WritePeriod"
	bw := &binWriter{w: w.w}
	for _, col := range p.nodeColumns() {
		if len(col) != int(w.nodes) {
			return errors.Enginef(op, errors.ErrSaveResults, "node column has %d values, want %d", len(col), w.nodes)
		}
		bw.put(col)
	}
	for _, col := range p.linkColumns() {
		if len(col) != int(w.links) {
			return errors.Enginef(op, errors.ErrSaveResults, "link column has %d values, want %d", len(col), w.links)
		}
		bw.put(col)
	}
	if bw.err != nil {
		return errors.Enginef(op, errors.ErrSaveResults, "%v", bw.err)
	}
	w.periods++
	return nil
}

// Finish writes the epilog, fills in the energy section and closes the file.
// warning is the highest advisory code seen during the run.
func (w *Writer) Finish(energy []PumpEnergy, demandCharge float32, warning int32) error {
	const op = "outfile.Writer.Finish"
	defer w.f.Close()
	bw := &binWriter{w: w.w}
	bw.put([4]float32{}) // average reaction rates: bulk, wall, tank, source
	bw.put([3]int32{w.periods, warning, OutMagic})
	if bw.err == nil {
		bw.err = w.w.Flush()
	}
	if bw.err != nil {
		return errors.Enginef(op, errors.ErrSaveResults, "%v", bw.err)
	}

	if len(energy) != int(w.pumps) {
		return errors.Enginef(op, errors.ErrSaveResults, "energy for %d pumps, want %d", len(energy), w.pumps)
	}
	var buf bytes.Buffer
	eb := &binWriter{w: &buf}
	for i := range energy {
		eb.put(energy[i])
	}
	eb.put(demandCharge)
	if eb.err != nil {
		return errors.Enginef(op, errors.ErrSaveResults, "%v", eb.err)
	}
	if _, err := w.f.WriteAt(buf.Bytes(), w.energyAt); err != nil {
		return errors.Enginef(op, errors.ErrSaveResults, "%v", err)
	}
	return nil
}

// Abort closes the file without an epilog. Readers report such a file as a
// failed run.
func (w *Writer) Abort() error {
	flushErr := w.w.Flush()
	if err := w.f.Close(); err != nil {
		return err
	}
	return flushErr
}

// Periods is the number of periods written so far.
func (w *Writer) Periods() int { return int(w.periods) }
