package outfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"aquanet/internal/core/errors"
)

type binReader struct {
	r   io.Reader
	n   int64
	err error
}

func (b *binReader) get(v any) {
	if b.err != nil {
		return
	}
	b.err = binary.Read(b.r, binary.LittleEndian, v)
	if b.err == nil {
		b.n += int64(binary.Size(v))
	}
}

func (b *binReader) str(n int) string {
	buf := make([]byte, n)
	b.get(buf)
	return strings.TrimRight(string(buf), "\x00")
}

func (b *binReader) ints(n int32) []int32 {
	v := make([]int32, n)
	b.get(v)
	return v
}

func (b *binReader) floats(n int32) []float32 {
	v := make([]float32, n)
	b.get(v)
	return v
}

// Results is an open binary results file.
type Results struct {
	Prolog       Prolog
	Energy       []PumpEnergy
	DemandCharge float32
	Periods      int
	Warning      int32

	f         *os.File
	resultsAt int64
}

// Open reads the prolog, energy section and epilog of a results file.
func Open(path string) (*Results, error) {
	const op = "outfile.Open"
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrOpenOutput, "%v", err)
	}
	res, err := readResults(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return res, nil
}

func readResults(f *os.File) (*Results, error) {
	const op = "outfile.Open"
	st, err := f.Stat()
	if err != nil {
		return nil, errors.Enginef(op, errors.ErrOpenOutput, "%v", err)
	}
	br := &binReader{r: bufio.NewReader(f)}
	var h header
	br.get(&h)
	if br.err != nil || h.Magic != OutMagic {
		return nil, errors.Engine(op, errors.ErrOutInvalid)
	}
	if h.Nodes < 0 || h.Links < 0 || h.Tanks < 0 || h.Pumps < 0 {
		return nil, errors.Engine(op, errors.ErrOutInvalid)
	}
	p := Prolog{
		Nodes: h.Nodes, Tanks: h.Tanks, Links: h.Links, Pumps: h.Pumps, Valves: h.Valves,
		Quality: h.Quality, TraceNode: h.TraceNode, FlowUnits: h.FlowUnits, PressureUnits: h.PressureUnit,
		ReportStart: h.ReportStart, ReportStep: h.ReportStep, Duration: h.Duration,
	}
	for i := range p.Title {
		p.Title[i] = br.str(titleSize)
	}
	p.InputFile = br.str(pathSize)
	p.ReportFile = br.str(pathSize)
	p.ChemName = br.str(idSize)
	p.ChemUnits = br.str(idSize)
	p.NodeIDs = make([]string, h.Nodes)
	for i := range p.NodeIDs {
		p.NodeIDs[i] = br.str(idSize)
	}
	p.LinkIDs = make([]string, h.Links)
	for i := range p.LinkIDs {
		p.LinkIDs[i] = br.str(idSize)
	}
	p.LinkFrom = br.ints(h.Links)
	p.LinkTo = br.ints(h.Links)
	p.LinkKind = br.ints(h.Links)
	p.TankNodes = br.ints(h.Tanks)
	p.TankAreas = br.floats(h.Tanks)
	p.Elevation = br.floats(h.Nodes)
	p.Length = br.floats(h.Links)
	p.Diameter = br.floats(h.Links)

	res := &Results{Prolog: p, f: f}
	res.Energy = make([]PumpEnergy, h.Pumps)
	br.get(res.Energy)
	br.get(&res.DemandCharge)
	if br.err != nil {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "prolog: %v", br.err)
	}
	res.resultsAt = br.n

	if st.Size() < res.resultsAt+epilogSize {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "truncated")
	}
	var tail [3]int32
	if _, err := f.Seek(st.Size()-12, io.SeekStart); err != nil {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "%v", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &tail); err != nil {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "epilog: %v", err)
	}
	if tail[2] != OutMagic {
		return nil, errors.Engine(op, errors.ErrOutRunFailed)
	}
	res.Periods = int(tail[0])
	res.Warning = tail[1]
	if res.resultsAt+int64(res.Periods)*periodSize(h.Nodes, h.Links)+epilogSize != st.Size() {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "period count does not match file size")
	}
	return res, nil
}

// Period reads reporting period i (0-based).
func (r *Results) Period(i int) (*Period, error) {
	const op = "outfile.Results.Period"
	if i < 0 || i >= r.Periods {
		return nil, errors.Enginef(op, errors.ErrNoResults, "period %d of %d", i, r.Periods)
	}
	size := periodSize(r.Prolog.Nodes, r.Prolog.Links)
	sr := io.NewSectionReader(r.f, r.resultsAt+int64(i)*size, size)
	br := &binReader{r: bufio.NewReader(sr)}
	p := NewPeriod(int(r.Prolog.Nodes), int(r.Prolog.Links))
	for _, col := range p.nodeColumns() {
		br.get(col)
	}
	for _, col := range p.linkColumns() {
		br.get(col)
	}
	if br.err != nil {
		return nil, errors.Enginef(op, errors.ErrOutInvalid, "%v", br.err)
	}
	return p, nil
}

// Time is the simulation time of period i in seconds.
func (r *Results) Time(i int) int64 {
	return int64(r.Prolog.ReportStart) + int64(i)*int64(r.Prolog.ReportStep)
}

func (r *Results) Close() error { return r.f.Close() }
