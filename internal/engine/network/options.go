package network

type UnbalancedMode int

const (
	UnbalancedStop UnbalancedMode = iota
	UnbalancedContinue
)

// Options mirrors the [OPTIONS] and [REACTIONS] sections.
type Options struct {
	FlowUnits        FlowUnits
	HeadLoss         HeadLossFormula
	SpecificGravity  float64
	Viscosity        float64 // relative to water at 20 C
	Trials           int
	Accuracy         float64
	Unbalanced       UnbalancedMode
	ExtraTrials      int
	CheckFreq        int
	MaxCheck         int
	DampLimit        float64
	DemandMultiplier float64
	DefaultPattern   string
	EmitterExponent  float64

	DemandModel DemandModel
	MinPressure float64
	ReqPressure float64
	PressureExp float64

	Quality      QualityKind
	ChemName     string
	ChemUnits    string
	TraceNode    string
	Diffusivity  float64
	Tolerance    float64
	BulkOrder    float64
	WallOrder    float64
	TankOrder    float64
	GlobalBulk   float64
	GlobalWall   float64
	LimitingConc float64
	// RoughnessCorrelation derives pipe wall coefficients from roughness
	// for pipes without their own; 0 disables it.
	RoughnessCorrelation float64
}

// Times holds the [TIMES] parameters in seconds.
type Times struct {
	Duration     int64
	HydStep      int64
	QualStep     int64
	PatternStep  int64
	PatternStart int64
	ReportStep   int64
	ReportStart  int64
	StartClock   int64
	RuleStep     int64
}

func DefaultOptions() Options {
	return Options{
		FlowUnits:        GPM,
		HeadLoss:         HazenWilliams,
		SpecificGravity:  1.0,
		Viscosity:        1.0,
		Trials:           200,
		Accuracy:         0.001,
		Unbalanced:       UnbalancedStop,
		CheckFreq:        2,
		MaxCheck:         10,
		DemandMultiplier: 1.0,
		DefaultPattern:   "1",
		EmitterExponent:  0.5,
		DemandModel:      DemandDriven,
		MinPressure:      0.0,
		ReqPressure:      0.1,
		PressureExp:      0.5,
		Quality:          QualityNone,
		ChemName:         "Chemical",
		ChemUnits:        "mg/L",
		Diffusivity:      1.0,
		Tolerance:        0.01,
		BulkOrder:        1.0,
		WallOrder:        1.0,
		TankOrder:        1.0,
	}
}

func DefaultTimes() Times {
	return Times{
		HydStep:     3600,
		PatternStep: 3600,
		ReportStep:  3600,
		RuleStep:    360,
	}
}

// EffectiveQualStep resolves an unset or oversized quality step.
func (t Times) EffectiveQualStep() int64 {
	switch {
	case t.QualStep <= 0:
		if step := t.HydStep / 10; step >= 1 {
			return step
		}
		return 1
	case t.HydStep > 0 && t.QualStep > t.HydStep:
		return t.HydStep
	}
	return t.QualStep
}
