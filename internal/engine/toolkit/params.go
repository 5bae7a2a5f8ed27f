package toolkit

import (
	"math"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
)

// TimeParameter codes follow the native toolkit numbering.
type TimeParameter int

const (
	TimeDuration     TimeParameter = 0
	TimeHydStep      TimeParameter = 1
	TimeQualStep     TimeParameter = 2
	TimePatternStep  TimeParameter = 3
	TimePatternStart TimeParameter = 4
	TimeReportStep   TimeParameter = 5
	TimeReportStart  TimeParameter = 6
	TimeRuleStep     TimeParameter = 7
	TimePeriods      TimeParameter = 9 // read only
	TimeStartClock   TimeParameter = 10
	TimeHydClock     TimeParameter = 11 // read only
	TimeQualClock    TimeParameter = 12 // read only
)

// Option codes follow the native toolkit numbering.
type Option int

const (
	OptTrials       Option = 0
	OptAccuracy     Option = 1
	OptTolerance    Option = 2
	OptEmitExponent Option = 3
	OptDemandMult   Option = 4
	OptSpGravity    Option = 12
	OptViscosity    Option = 13
	OptExtraTrials  Option = 14
	OptCheckFreq    Option = 15
	OptMaxCheck     Option = 16
	OptDampLimit    Option = 17
	OptDiffusivity  Option = 18
	OptBulkOrder    Option = 19
	OptWallOrder    Option = 20
	OptTankOrder    Option = 21
	OptConcenLimit  Option = 22
)

func (t TimeParameter) field(times *network.Times) *int64 {
	switch t {
	case TimeDuration:
		return &times.Duration
	case TimeHydStep:
		return &times.HydStep
	case TimeQualStep:
		return &times.QualStep
	case TimePatternStep:
		return &times.PatternStep
	case TimePatternStart:
		return &times.PatternStart
	case TimeReportStep:
		return &times.ReportStep
	case TimeReportStart:
		return &times.ReportStart
	case TimeRuleStep:
		return &times.RuleStep
	case TimeStartClock:
		return &times.StartClock
	}
	return nil
}

// TimeParam reads a time parameter in seconds.
func (p *Project) TimeParam(param TimeParameter) (int64, error) {
	const op = "toolkit.TimeParam"
	if err := p.live(op); err != nil {
		return 0, err
	}
	times := p.net.Times
	switch param {
	case TimePeriods:
		return int64(p.reportPeriods()), nil
	case TimeHydClock:
		if p.hyd != nil {
			return p.hyd.eng.Time(), nil
		}
		return 0, nil
	case TimeQualClock:
		if p.qual != nil {
			return p.qual.eng.Time(), nil
		}
		return 0, nil
	}
	f := param.field(&times)
	if f == nil {
		return 0, errors.Enginef(op, errors.ErrIllegalParameter, "time parameter %d", param)
	}
	return *f, nil
}

// SetTimeParam changes a time parameter. Time parameters are frozen while
// either analysis session is open.
func (p *Project) SetTimeParam(param TimeParameter, v int64) error {
	const op = "toolkit.SetTimeParam"
	if err := p.live(op); err != nil {
		return err
	}
	if p.hyd != nil || p.qual != nil {
		return errors.Engine(op, errors.ErrTimeParamActive)
	}
	f := param.field(&p.net.Times)
	if f == nil {
		return errors.Enginef(op, errors.ErrIllegalParameter, "time parameter %d", param)
	}
	if v < 0 {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	switch param {
	case TimeHydStep, TimePatternStep, TimeReportStep, TimeQualStep, TimeRuleStep:
		if v == 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
	case TimeStartClock:
		v %= 86400
	}
	*f = v
	// the hydraulics file no longer matches the clock it was solved on
	p.hydReady = false
	return nil
}

// reportPeriods is the number of reporting periods a full run produces.
func (p *Project) reportPeriods() int {
	t := p.net.Times
	if t.ReportStart > t.Duration {
		return 0
	}
	if t.ReportStep <= 0 {
		return 1
	}
	return int((t.Duration-t.ReportStart)/t.ReportStep) + 1
}

// OptionValue reads an analysis option.
func (p *Project) OptionValue(opt Option) (float64, error) {
	const op = "toolkit.OptionValue"
	if err := p.live(op); err != nil {
		return 0, err
	}
	o := &p.net.Options
	switch opt {
	case OptTrials:
		return float64(o.Trials), nil
	case OptAccuracy:
		return o.Accuracy, nil
	case OptTolerance:
		return o.Tolerance, nil
	case OptEmitExponent:
		return o.EmitterExponent, nil
	case OptDemandMult:
		return o.DemandMultiplier, nil
	case OptSpGravity:
		return o.SpecificGravity, nil
	case OptViscosity:
		return o.Viscosity, nil
	case OptExtraTrials:
		if o.Unbalanced == network.UnbalancedStop {
			return -1, nil
		}
		return float64(o.ExtraTrials), nil
	case OptCheckFreq:
		return float64(o.CheckFreq), nil
	case OptMaxCheck:
		return float64(o.MaxCheck), nil
	case OptDampLimit:
		return o.DampLimit, nil
	case OptDiffusivity:
		return o.Diffusivity, nil
	case OptBulkOrder:
		return o.BulkOrder, nil
	case OptWallOrder:
		return o.WallOrder, nil
	case OptTankOrder:
		return o.TankOrder, nil
	case OptConcenLimit:
		return o.LimitingConc, nil
	}
	return 0, errors.Enginef(op, errors.ErrIllegalParameter, "option %d", opt)
}

// SetOption changes an analysis option. Integer options truncate v.
func (p *Project) SetOption(opt Option, v float64) error {
	const op = "toolkit.SetOption"
	if err := p.live(op); err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Engine(op, errors.ErrIllegalNumber)
	}
	o := &p.net.Options
	positive := func(dst *float64) error {
		if v <= 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		*dst = v
		return nil
	}
	switch opt {
	case OptTrials:
		if v < 1 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.Trials = int(v)
	case OptAccuracy:
		if v < 1e-8 || v > 1e-1 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.Accuracy = v
	case OptTolerance:
		if v < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.Tolerance = v
	case OptEmitExponent:
		return positive(&o.EmitterExponent)
	case OptDemandMult:
		return positive(&o.DemandMultiplier)
	case OptSpGravity:
		return positive(&o.SpecificGravity)
	case OptViscosity:
		return positive(&o.Viscosity)
	case OptExtraTrials:
		if v < 0 {
			o.Unbalanced = network.UnbalancedStop
			o.ExtraTrials = 0
		} else {
			o.Unbalanced = network.UnbalancedContinue
			o.ExtraTrials = int(v)
		}
	case OptCheckFreq:
		o.CheckFreq = max(int(v), 1)
	case OptMaxCheck:
		o.MaxCheck = max(int(v), 0)
	case OptDampLimit:
		o.DampLimit = math.Max(v, 0)
	case OptDiffusivity:
		if v < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.Diffusivity = v
	case OptBulkOrder:
		o.BulkOrder = v
	case OptWallOrder:
		if v != 0 && v != 1 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.WallOrder = v
	case OptTankOrder:
		o.TankOrder = v
	case OptConcenLimit:
		if v < 0 {
			return errors.Engine(op, errors.ErrIllegalNumber)
		}
		o.LimitingConc = v
	default:
		return errors.Enginef(op, errors.ErrIllegalParameter, "option %d", opt)
	}
	return nil
}
