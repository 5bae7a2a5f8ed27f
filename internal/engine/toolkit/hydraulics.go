package toolkit

import (
	stderrors "errors"
	"log/slog"
	"strconv"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/shared/observability"
)

// ErrStaleStep is returned when a step result is read after its session has
// run another step, been re-initialized or been closed.
var ErrStaleStep = stderrors.New("toolkit: step result is stale")

type sessionState int

const (
	stateOpened sessionState = iota
	stateInitialized
	stateStepping
	stateClosed
)

// HydraulicSession drives a stepwise hydraulic analysis:
//
//	hs, _ := p.OpenHydraulics()
//	hs.Init(false)
//	for {
//		step, _ := hs.RunStep()
//		// read results through step
//		if dt, _ := hs.NextStep(); dt == 0 {
//			break
//		}
//	}
//	hs.Close()
type HydraulicSession struct {
	p       *Project
	eng     *hydraulic.Engine
	state   sessionState
	gen     uint64
	current *HydraulicStep
	writer  *outfile.HydWriter
}

// HydraulicStep is the result of one RunStep. Its getters stay valid until
// the session runs another step, is re-initialized or is closed.
type HydraulicStep struct {
	Time       int64
	Iterations int
	// Warnings holds advisory codes 1..6, most severe first.
	Warnings []errors.EngineCode

	s    *HydraulicSession
	gen  uint64
	snap *hydraulic.Snapshot
}

// OpenHydraulics opens the project's hydraulic session.
func (p *Project) OpenHydraulics() (*HydraulicSession, error) {
	const op = "toolkit.OpenHydraulics"
	if err := p.live(op); err != nil {
		return nil, err
	}
	if p.hyd != nil {
		return nil, errors.AddContext(errors.New(errors.CodeConflict, "hydraulic session already open"), errors.CtxOperation, op)
	}
	if p.hydExternal {
		return nil, errors.Engine(op, errors.ErrHydExternal)
	}
	eng, err := hydraulic.New(p.net)
	if err != nil {
		return nil, err
	}
	p.hyd = &HydraulicSession{p: p, eng: eng}
	observability.ActiveSessions.WithLabelValues("hydraulic").Inc()
	return p.hyd, nil
}

// Init resets the clock, tanks and link states. With save set, every
// solution is kept in the project's hydraulics file for a later quality run
// or SaveHydraulicsFile.
func (s *HydraulicSession) Init(save bool) error {
	const op = "toolkit.HydraulicSession.Init"
	if s.state == stateClosed {
		return errors.Engine(op, errors.ErrHydNotOpen)
	}
	s.discardWriter()
	s.eng.Init()
	s.gen++
	s.current = nil
	s.p.warning = errors.OK
	if save {
		path, err := s.p.hydPath()
		if err != nil {
			return err
		}
		w, err := outfile.CreateHyd(path, len(s.p.net.Nodes), len(s.p.net.Links))
		if err != nil {
			return err
		}
		s.writer = w
		s.p.hydReady = false
	}
	s.state = stateInitialized
	return nil
}

// RunStep solves the network at the current clock time. Fatal engine codes
// come back as errors; advisory codes are logged and attached to the step.
func (s *HydraulicSession) RunStep() (*HydraulicStep, error) {
	const op = "toolkit.HydraulicSession.RunStep"
	switch s.state {
	case stateClosed:
		return nil, errors.Engine(op, errors.ErrHydNotOpen)
	case stateOpened:
		return nil, errors.Enginef(op, errors.ErrHydNotOpen, "Init has not been called")
	}
	s.gen++
	s.current = nil
	res, err := s.eng.Run()
	if err != nil {
		return nil, err
	}
	snap := s.eng.Snapshot()
	if s.writer != nil {
		if err := s.writer.Write(snap); err != nil {
			return nil, err
		}
	}
	observability.HydraulicStepsTotal.Inc()
	observability.SolverIterations.Observe(float64(res.Iterations))
	for _, w := range res.Warnings {
		observability.EngineWarningsTotal.WithLabelValues(strconv.Itoa(int(w))).Inc()
		slog.Warn("hydraulic warning", "code", int(w), "message", w.Message(), "time", res.Time)
	}
	if res.Halted {
		slog.Warn("hydraulic run halted on unbalanced solution", "time", res.Time, "relative_error", res.RelativeError)
	}
	s.p.noteWarning(res.Warning())

	s.current = &HydraulicStep{
		Time:       res.Time,
		Iterations: res.Iterations,
		Warnings:   res.Warnings,
		s:          s,
		gen:        s.gen,
		snap:       snap,
	}
	s.state = stateStepping
	return s.current, nil
}

// NextStep advances the clock to the next solution time: the earliest of the
// hydraulic step, a pattern boundary, a reporting time, a tank filling or
// draining and a control trigger. It returns the seconds advanced, and 0 once
// the simulation horizon is exhausted.
func (s *HydraulicSession) NextStep() (int64, error) {
	const op = "toolkit.HydraulicSession.NextStep"
	switch s.state {
	case stateClosed:
		return 0, errors.Engine(op, errors.ErrHydNotOpen)
	case stateOpened, stateInitialized:
		return 0, errors.Enginef(op, errors.ErrNoHydraulics, "RunStep has not been called")
	}
	if !s.eng.Solved() && !s.eng.Done() {
		return 0, errors.Enginef(op, errors.ErrNoHydraulics, "RunStep has not been called at t=%d", s.eng.Time())
	}
	dt := s.eng.Next()
	if dt == 0 && s.writer != nil {
		err := s.writer.Close()
		s.writer = nil
		if err != nil {
			return 0, err
		}
		s.p.hydReady = true
	}
	return dt, nil
}

// Close ends the session. Results of an unfinished saved run are dropped.
func (s *HydraulicSession) Close() error {
	if s.state == stateClosed {
		return nil
	}
	s.discardWriter()
	s.state = stateClosed
	s.gen++
	s.current = nil
	if s.p.hyd == s {
		s.p.hyd = nil
	}
	observability.ActiveSessions.WithLabelValues("hydraulic").Dec()
	return nil
}

func (s *HydraulicSession) discardWriter() {
	if s.writer == nil {
		return
	}
	if err := s.writer.Close(); err != nil {
		slog.Warn("failed to close hydraulics file", "error", err)
	}
	s.writer = nil
	s.p.hydReady = false
}

// Time is the session clock in seconds.
func (s *HydraulicSession) Time() int64 { return s.eng.Time() }

func (st *HydraulicStep) check() error {
	if st.gen != st.s.gen {
		return ErrStaleStep
	}
	return nil
}

// Warning returns the most severe advisory code of the step, or OK.
func (st *HydraulicStep) Warning() errors.EngineCode {
	if len(st.Warnings) == 0 {
		return errors.OK
	}
	return st.Warnings[0]
}

func (st *HydraulicStep) frame() frame {
	return newFrame(st.s.p.net, st.snap, st.s.p.qualityEngine())
}

// NodeValue reads a node property at this step. Input properties are
// answered from the network.
func (st *HydraulicStep) NodeValue(idx int, prop network.NodeProperty) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return st.s.p.net.NodeValue(idx, prop)
	}
	return st.frame().node(idx, prop)
}

func (st *HydraulicStep) LinkValue(idx int, prop network.LinkProperty) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return st.s.p.net.LinkValue(idx, prop)
	}
	return st.frame().link(idx, prop)
}

// NodeValues reads one property for every node, in index order.
func (st *HydraulicStep) NodeValues(prop network.NodeProperty) ([]float64, error) {
	if err := st.check(); err != nil {
		return nil, err
	}
	out := make([]float64, len(st.s.p.net.Nodes))
	f := st.frame()
	for i := range out {
		var err error
		if prop.IsDynamic() {
			out[i], err = f.node(i+1, prop)
		} else {
			out[i], err = st.s.p.net.NodeValue(i+1, prop)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LinkValues reads one property for every link, in index order.
func (st *HydraulicStep) LinkValues(prop network.LinkProperty) ([]float64, error) {
	if err := st.check(); err != nil {
		return nil, err
	}
	out := make([]float64, len(st.s.p.net.Links))
	f := st.frame()
	for k := range out {
		var err error
		if prop.IsDynamic() {
			out[k], err = f.link(k+1, prop)
		} else {
			out[k], err = st.s.p.net.LinkValue(k+1, prop)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
