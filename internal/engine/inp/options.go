package inp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
)

func (rd *reader) option(ln line) {
	f := ln.fields
	if len(f) < 2 {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	opts := &rd.net.Options
	kw := strings.ToUpper(f[0])
	sub := strings.ToUpper(f[1])
	last := f[len(f)-1]

	numeric := func(dst *float64, min float64) {
		v, ok := rd.number(ln, last)
		if !ok {
			return
		}
		if v < min {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		*dst = v
	}
	integer := func(dst *int) {
		v, ok := rd.number(ln, last)
		if !ok {
			return
		}
		if v < 1 {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		*dst = int(v)
	}

	switch {
	case kw == "UNITS":
		u, ok := network.ParseFlowUnits(f[1])
		if !ok {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		opts.FlowUnits = u
	case kw == "HEADLOSS":
		h, ok := network.ParseHeadLossFormula(f[1])
		if !ok {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		opts.HeadLoss = h
	case kw == "SPECIFIC":
		numeric(&opts.SpecificGravity, math.SmallestNonzeroFloat64)
	case kw == "VISCOSITY":
		numeric(&opts.Viscosity, math.SmallestNonzeroFloat64)
	case kw == "DIFFUSIVITY":
		numeric(&opts.Diffusivity, 0)
	case kw == "TRIALS":
		integer(&opts.Trials)
	case kw == "ACCURACY":
		numeric(&opts.Accuracy, 1e-8)
	case kw == "CHECKFREQ":
		integer(&opts.CheckFreq)
	case kw == "MAXCHECK":
		integer(&opts.MaxCheck)
	case kw == "DAMPLIMIT":
		numeric(&opts.DampLimit, 0)
	case kw == "TOLERANCE":
		numeric(&opts.Tolerance, 0)
	case kw == "UNBALANCED":
		switch sub {
		case "STOP":
			opts.Unbalanced = network.UnbalancedStop
		case "CONTINUE":
			opts.Unbalanced = network.UnbalancedContinue
			if len(f) > 2 {
				v, ok := rd.number(ln, f[2])
				if !ok {
					return
				}
				opts.ExtraTrials = int(v)
			}
		default:
			rd.fail(ln, errors.ErrIllegalOption)
		}
	case kw == "PATTERN":
		opts.DefaultPattern = f[1]
	case kw == "DEMAND" && sub == "MULTIPLIER":
		numeric(&opts.DemandMultiplier, 0)
	case kw == "DEMAND" && sub == "MODEL":
		switch strings.ToUpper(last) {
		case "DDA":
			opts.DemandModel = network.DemandDriven
		case "PDA":
			opts.DemandModel = network.PressureDriven
		default:
			rd.fail(ln, errors.ErrIllegalOption)
		}
	case kw == "MINIMUM" && sub == "PRESSURE":
		numeric(&opts.MinPressure, 0)
	case kw == "REQUIRED" && sub == "PRESSURE":
		numeric(&opts.ReqPressure, 0)
	case kw == "PRESSURE" && sub == "EXPONENT":
		numeric(&opts.PressureExp, 0)
	case kw == "EMITTER" && sub == "EXPONENT":
		numeric(&opts.EmitterExponent, math.SmallestNonzeroFloat64)
	case kw == "QUALITY":
		switch sub {
		case "NONE":
			opts.Quality = network.QualityNone
		case "AGE":
			opts.Quality = network.QualityAge
		case "TRACE":
			if len(f) < 3 {
				rd.fail(ln, errors.ErrSyntax)
				return
			}
			opts.Quality = network.QualityTrace
			opts.TraceNode = f[2]
		case "CHEMICAL":
			opts.Quality = network.QualityChem
			if len(f) > 2 {
				opts.ChemUnits = f[2]
			}
		default:
			opts.Quality = network.QualityChem
			opts.ChemName = f[1]
			if len(f) > 2 {
				opts.ChemUnits = f[2]
			}
		}
	case kw == "MAP", kw == "HYDRAULICS", kw == "BACKFLOW", kw == "HEADERROR", kw == "FLOWCHANGE",
		kw == "SEGMENTS", kw == "DEMAND" && sub == "CHARGE", kw == "EMITTER" && sub == "BACKFLOW":
		// accepted for compatibility, no effect on the analysis
	default:
		rd.fail(ln, errors.ErrIllegalOption)
	}
}

func (rd *reader) times(ln line) {
	f := ln.fields
	if len(f) < 2 {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	t := &rd.net.Times
	kw := strings.ToUpper(f[0])
	var sub string
	if len(f) > 2 {
		sub = strings.ToUpper(f[1])
	}

	set := func(dst *int64, args []string) {
		v, err := ParseDuration(args)
		if err != nil || v < 0 {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		*dst = v
	}
	switch {
	case kw == "DURATION":
		set(&t.Duration, f[1:])
	case kw == "HYDRAULIC":
		set(&t.HydStep, f[2:])
	case kw == "QUALITY":
		set(&t.QualStep, f[2:])
	case kw == "RULE":
		set(&t.RuleStep, f[2:])
	case kw == "PATTERN" && sub == "TIMESTEP":
		set(&t.PatternStep, f[2:])
	case kw == "PATTERN" && sub == "START":
		set(&t.PatternStart, f[2:])
	case kw == "REPORT" && sub == "TIMESTEP":
		set(&t.ReportStep, f[2:])
	case kw == "REPORT" && sub == "START":
		set(&t.ReportStart, f[2:])
	case kw == "START":
		v, err := ParseClock(f[2:])
		if err != nil {
			rd.fail(ln, errors.ErrIllegalOption)
			return
		}
		t.StartClock = v
	case kw == "STATISTIC":
		// report statistics are a report-file concern
	default:
		rd.fail(ln, errors.ErrIllegalOption)
	}
}

var timeUnits = map[string]int64{
	"SEC": 1, "SECOND": 1, "SECONDS": 1,
	"MIN": 60, "MINUTE": 60, "MINUTES": 60,
	"HOUR": 3600, "HOURS": 3600,
	"DAY": 86400, "DAYS": 86400,
}

// ParseDuration converts "h:mm[:ss]", decimal hours or "value UNITS" into
// seconds.
func ParseDuration(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing time value")
	}
	if len(args) > 1 {
		unit, ok := timeUnits[strings.ToUpper(args[1])]
		if !ok {
			return 0, fmt.Errorf("unknown time unit %q", args[1])
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return 0, err
		}
		return int64(math.Round(v * float64(unit))), nil
	}
	return parseHours(args[0])
}

// ParseClock converts a clock time with an optional AM/PM suffix into seconds
// after midnight.
func ParseClock(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing clock time")
	}
	secs, err := parseHours(args[0])
	if err != nil {
		return 0, err
	}
	if len(args) < 2 {
		return secs, nil
	}
	if secs < 3600 || secs >= 13*3600 {
		return 0, fmt.Errorf("12-hour clock time out of range")
	}
	switch strings.ToUpper(args[1]) {
	case "AM":
		if secs >= 12*3600 {
			secs -= 12 * 3600
		}
	case "PM":
		if secs < 12*3600 {
			secs += 12 * 3600
		}
	default:
		return 0, fmt.Errorf("unknown clock suffix %q", args[1])
	}
	return secs, nil
}

func parseHours(s string) (int64, error) {
	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return int64(math.Round(v * 3600)), nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	var secs int64
	scale := []int64{3600, 60, 1}
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad time %q", s)
		}
		secs += v * scale[i]
	}
	return secs, nil
}

// FormatClock renders seconds as h:mm:ss.
func FormatClock(secs int64) string {
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
