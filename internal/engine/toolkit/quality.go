package toolkit

import (
	stderrors "errors"
	"io"
	"log/slog"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/hydraulic"
	"aquanet/internal/engine/network"
	"aquanet/internal/engine/outfile"
	"aquanet/internal/engine/quality"
	"aquanet/internal/shared/observability"
)

// QualitySession drives a stepwise water quality analysis. Initialized while
// the project's hydraulic session is open it runs alongside it, taking each
// hydraulic solution as it is computed:
//
//	hs.RunStep(); qs.RunStep(); ...; hs.NextStep(); qs.NextStep()
//
// Otherwise it replays the hydraulics file written by a saved hydraulic run
// (see SolveCompleteHydraulics and UseHydraulicsFile).
type QualitySession struct {
	p     *Project
	eng   *quality.Engine
	state sessionState
	gen   uint64

	current   *QualityStep
	installed *hydraulic.Snapshot // flows driving transport

	// replay mode
	replay   *outfile.HydReader
	cur, nxt *hydraulic.Snapshot

	out        *outfile.Writer
	energy     *energyMeter
	lastReport int64
}

// QualityStep is the result of one quality RunStep. Its getters read the
// live quality state, so they stay valid only until the session advances,
// runs another step, is re-initialized or is closed.
type QualityStep struct {
	Time int64

	s   *QualitySession
	gen uint64
}

// OpenQuality opens the project's water quality session.
func (p *Project) OpenQuality() (*QualitySession, error) {
	const op = "toolkit.OpenQuality"
	if err := p.live(op); err != nil {
		return nil, err
	}
	if p.qual != nil {
		return nil, errors.AddContext(errors.New(errors.CodeConflict, "quality session already open"), errors.CtxOperation, op)
	}
	eng, err := quality.New(p.net)
	if err != nil {
		return nil, err
	}
	p.qual = &QualitySession{p: p, eng: eng}
	observability.ActiveSessions.WithLabelValues("quality").Inc()
	return p.qual, nil
}

// Concurrent reports whether the session follows a live hydraulic session
// rather than a hydraulics file.
func (s *QualitySession) Concurrent() bool { return s.replay == nil }

// Init restores initial quality and rewinds the hydraulics. With save set,
// results at every reporting time go to the project's results file.
func (s *QualitySession) Init(save bool) error {
	const op = "toolkit.QualitySession.Init"
	if s.state == stateClosed {
		return errors.Engine(op, errors.ErrQualNotOpen)
	}
	s.release()
	s.eng.Init()
	s.gen++
	s.current, s.installed = nil, nil
	s.cur, s.nxt = nil, nil

	p := s.p
	if p.hyd == nil {
		if !p.hydReady {
			return errors.Enginef(op, errors.ErrNoHydraulics, "no hydraulic session is open and no hydraulics file is ready")
		}
		r, err := outfile.OpenHyd(p.hydFile, len(p.net.Nodes), len(p.net.Links))
		if err != nil {
			return err
		}
		first, err := r.Next()
		if err != nil {
			r.Close()
			if stderrors.Is(err, io.EOF) {
				return errors.Enginef(op, errors.ErrNoHydraulics, "hydraulics file is empty")
			}
			return err
		}
		s.replay, s.nxt = r, first
	}
	if save {
		path, err := p.outPath()
		if err != nil {
			return err
		}
		w, err := outfile.Create(path, p.prolog())
		if err != nil {
			return err
		}
		s.out = w
		s.energy = newEnergyMeter(p.net)
		s.lastReport = -1
		p.outReady = false
	}
	s.state = stateInitialized
	return nil
}

// RunStep installs the hydraulics in force at the current quality time and
// returns the quality state there. Concurrently with a hydraulic session the
// hydraulic RunStep for the same time must come first (engine code 104
// otherwise).
func (s *QualitySession) RunStep() (*QualityStep, error) {
	const op = "toolkit.QualitySession.RunStep"
	switch s.state {
	case stateClosed:
		return nil, errors.Engine(op, errors.ErrQualNotOpen)
	case stateOpened:
		return nil, errors.Enginef(op, errors.ErrQualNotOpen, "Init has not been called")
	}
	s.gen++
	s.current = nil
	if err := s.sync(op); err != nil {
		return nil, err
	}
	if err := s.report(); err != nil {
		return nil, err
	}
	observability.QualityStepsTotal.Inc()
	s.current = &QualityStep{Time: s.eng.Time(), s: s, gen: s.gen}
	s.state = stateStepping
	return s.current, nil
}

// report writes the current state to the results file at reporting times.
func (s *QualitySession) report() error {
	t := s.eng.Time()
	if s.out == nil || t == s.lastReport || !isReportTime(s.p.net.Times, t) {
		return nil
	}
	period := outfile.NewPeriod(len(s.p.net.Nodes), len(s.p.net.Links))
	s.frame().period(period)
	if err := s.out.WritePeriod(period); err != nil {
		return err
	}
	s.lastReport = t
	return nil
}

// sync makes the hydraulics for the current quality time the ones driving
// transport.
func (s *QualitySession) sync(op string) error {
	t := s.eng.Time()
	var snap *hydraulic.Snapshot
	if s.replay == nil {
		hs := s.p.hyd
		if hs == nil {
			return errors.Enginef(op, errors.ErrHydNotOpen, "hydraulic session closed during a concurrent quality run")
		}
		if hs.current == nil || hs.current.Time != t {
			return errors.Enginef(op, errors.ErrNoHydraulics, "no hydraulic solution at t=%d", t)
		}
		snap = hs.current.snap
	} else {
		for s.nxt != nil && s.nxt.Time <= t {
			s.cur = s.nxt
			next, err := s.replay.Next()
			switch {
			case stderrors.Is(err, io.EOF):
				s.nxt = nil
			case err != nil:
				return err
			default:
				s.nxt = next
			}
		}
		snap = s.cur
	}
	if snap != s.installed {
		s.eng.SetHydraulics(snap)
		s.installed = snap
	}
	return nil
}

// horizon is the time of the next hydraulic change.
func (s *QualitySession) horizon(op string) (int64, error) {
	if s.replay != nil {
		if s.nxt != nil {
			return s.nxt.Time, nil
		}
		return s.p.net.Times.Duration, nil
	}
	if s.p.hyd == nil {
		return 0, errors.Enginef(op, errors.ErrHydNotOpen, "hydraulic session closed during a concurrent quality run")
	}
	return s.p.hyd.eng.Time(), nil
}

// NextStep advances quality to the next hydraulic time and returns the
// seconds advanced, or 0 when the run is over. Concurrently with a hydraulic
// session it is called after the hydraulic NextStep.
func (s *QualitySession) NextStep() (int64, error) {
	const op = "toolkit.QualitySession.NextStep"
	if err := s.stepping(op); err != nil {
		return 0, err
	}
	target, err := s.horizon(op)
	if err != nil {
		return 0, err
	}
	dt := target - s.eng.Time()
	if dt <= 0 {
		if s.replay == nil && !s.p.hyd.eng.Done() {
			return 0, errors.Enginef(op, errors.ErrNoHydraulics, "hydraulic NextStep must come first")
		}
		return 0, s.finish()
	}
	s.advance(dt)
	return dt, nil
}

// Step advances by one quality time step, or less to stop at the next
// hydraulic change, and returns the time left in the simulation. It needs
// replayed hydraulics.
func (s *QualitySession) Step() (int64, error) {
	const op = "toolkit.QualitySession.Step"
	if err := s.stepping(op); err != nil {
		return 0, err
	}
	if s.replay == nil {
		return 0, errors.AddContext(errors.New(errors.CodeNotSupported,
			"single quality steps need saved hydraulics; use NextStep alongside a hydraulic session"), errors.CtxOperation, op)
	}
	if err := s.sync(op); err != nil {
		return 0, err
	}
	target, err := s.horizon(op)
	if err != nil {
		return 0, err
	}
	if dt := min(s.eng.Step(), target-s.eng.Time()); dt > 0 {
		s.advance(dt)
		if err := s.sync(op); err != nil {
			return 0, err
		}
		if err := s.report(); err != nil {
			return 0, err
		}
	}
	left := s.p.net.Times.Duration - s.eng.Time()
	if left <= 0 {
		return 0, s.finish()
	}
	return left, nil
}

func (s *QualitySession) stepping(op string) error {
	switch s.state {
	case stateClosed:
		return errors.Engine(op, errors.ErrQualNotOpen)
	case stateOpened, stateInitialized:
		return errors.Enginef(op, errors.ErrNoHydraulics, "RunStep has not been called")
	}
	return nil
}

func (s *QualitySession) advance(dt int64) {
	s.gen++
	s.current = nil
	if s.energy != nil && s.installed != nil {
		s.energy.add(s.installed, dt)
	}
	s.eng.Advance(dt)
}

// finish completes the results file once the run is over.
func (s *QualitySession) finish() error {
	if s.out == nil {
		return nil
	}
	w := s.out
	s.out = nil
	if err := w.Finish(s.energy.summary(), 0, int32(s.p.warning)); err != nil {
		return err
	}
	s.p.outReady = true
	return nil
}

// Close ends the session. A results file that was not finished is left
// marked as a failed run.
func (s *QualitySession) Close() error {
	if s.state == stateClosed {
		return nil
	}
	s.release()
	s.state = stateClosed
	s.gen++
	s.current, s.installed = nil, nil
	if s.p.qual == s {
		s.p.qual = nil
	}
	observability.ActiveSessions.WithLabelValues("quality").Dec()
	return nil
}

func (s *QualitySession) release() {
	if s.replay != nil {
		if err := s.replay.Close(); err != nil {
			slog.Warn("failed to close hydraulics file", "error", err)
		}
		s.replay = nil
	}
	if s.out != nil {
		if err := s.out.Abort(); err != nil {
			slog.Warn("failed to close results file", "error", err)
		}
		s.out = nil
	}
}

// Time is the quality clock in seconds.
func (s *QualitySession) Time() int64 { return s.eng.Time() }

func (st *QualityStep) check() error {
	if st.gen != st.s.gen {
		return ErrStaleStep
	}
	return nil
}

// NodeQuality is the concentration, age or trace percent at a node.
func (st *QualityStep) NodeQuality(idx int) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	return st.s.frame().node(idx, network.NodeQuality)
}

func (st *QualityStep) LinkQuality(idx int) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	return st.s.frame().link(idx, network.LinkQuality)
}

// NodeValue reads a node property at this step, including the hydraulic
// results in force.
func (st *QualityStep) NodeValue(idx int, prop network.NodeProperty) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return st.s.p.net.NodeValue(idx, prop)
	}
	return st.s.frame().node(idx, prop)
}

func (st *QualityStep) LinkValue(idx int, prop network.LinkProperty) (float64, error) {
	if err := st.check(); err != nil {
		return 0, err
	}
	if !prop.IsDynamic() {
		return st.s.p.net.LinkValue(idx, prop)
	}
	return st.s.frame().link(idx, prop)
}

func (s *QualitySession) frame() frame {
	return newFrame(s.p.net, s.installed, s.eng)
}
