package network

import (
	"fmt"
	"strings"
)

// Missing marks an unset numeric property that is resolved to a network-wide
// default once the whole input has been read.
const Missing = -1e10

type NodeKind int

const (
	Junction NodeKind = iota
	Reservoir
	Tank
)

func (k NodeKind) String() string {
	switch k {
	case Junction:
		return "JUNCTION"
	case Reservoir:
		return "RESERVOIR"
	case Tank:
		return "TANK"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

type LinkKind int

const (
	CVPipe LinkKind = iota
	Pipe
	Pump
	PRV
	PSV
	PBV
	FCV
	TCV
	GPV
)

var linkKindNames = [...]string{"CVPIPE", "PIPE", "PUMP", "PRV", "PSV", "PBV", "FCV", "TCV", "GPV"}

func (k LinkKind) String() string {
	if k >= 0 && int(k) < len(linkKindNames) {
		return linkKindNames[k]
	}
	return fmt.Sprintf("LinkKind(%d)", int(k))
}

func (k LinkKind) IsPipe() bool  { return k == CVPipe || k == Pipe }
func (k LinkKind) IsValve() bool { return k >= PRV }

// ParseValveKind maps the [VALVES] type column onto a LinkKind.
func ParseValveKind(s string) (LinkKind, bool) {
	for k := PRV; k <= GPV; k++ {
		if strings.EqualFold(s, linkKindNames[k]) {
			return k, true
		}
	}
	return 0, false
}

// LinkStatus is the user-facing initial status of a link.
type LinkStatus int

const (
	StatusClosed LinkStatus = iota
	StatusOpen
	// StatusActive lets a valve regulate to its setting.
	StatusActive
)

func (s LinkStatus) String() string {
	switch s {
	case StatusClosed:
		return "CLOSED"
	case StatusOpen:
		return "OPEN"
	case StatusActive:
		return "ACTIVE"
	}
	return fmt.Sprintf("LinkStatus(%d)", int(s))
}

type SourceKind int

const (
	SourceConcen SourceKind = iota
	SourceMass
	SourceSetpoint
	SourceFlowPaced
)

var sourceKindNames = [...]string{"CONCEN", "MASS", "SETPOINT", "FLOWPACED"}

func (k SourceKind) String() string {
	if k >= 0 && int(k) < len(sourceKindNames) {
		return sourceKindNames[k]
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

func ParseSourceKind(s string) (SourceKind, bool) {
	for i, name := range sourceKindNames {
		if strings.EqualFold(s, name) {
			return SourceKind(i), true
		}
	}
	return 0, false
}

type CurveKind int

const (
	CurveVolume CurveKind = iota
	CurvePump
	CurveEfficiency
	CurveHeadloss
	CurveGeneric
)

var curveKindNames = [...]string{"VOLUME", "PUMP", "EFFICIENCY", "HEADLOSS", "GENERAL"}

func (k CurveKind) String() string {
	if k >= 0 && int(k) < len(curveKindNames) {
		return curveKindNames[k]
	}
	return fmt.Sprintf("CurveKind(%d)", int(k))
}

func ParseCurveKind(s string) (CurveKind, bool) {
	for i, name := range curveKindNames {
		if strings.EqualFold(s, name) {
			return CurveKind(i), true
		}
	}
	return 0, false
}

type ControlKind int

const (
	ControlLowLevel ControlKind = iota
	ControlHighLevel
	ControlTimer
	ControlTimeOfDay
)

type FlowUnits int

const (
	CFS FlowUnits = iota
	GPM
	MGD
	IMGD
	AFD
	LPS
	LPM
	MLD
	CMH
	CMD
)

var flowUnitNames = [...]string{"CFS", "GPM", "MGD", "IMGD", "AFD", "LPS", "LPM", "MLD", "CMH", "CMD"}

func (u FlowUnits) String() string {
	if u >= 0 && int(u) < len(flowUnitNames) {
		return flowUnitNames[u]
	}
	return fmt.Sprintf("FlowUnits(%d)", int(u))
}

func (u FlowUnits) IsSI() bool { return u >= LPS }

func ParseFlowUnits(s string) (FlowUnits, bool) {
	for i, name := range flowUnitNames {
		if strings.EqualFold(s, name) {
			return FlowUnits(i), true
		}
	}
	return 0, false
}

type HeadLossFormula int

const (
	HazenWilliams HeadLossFormula = iota
	DarcyWeisbach
	ChezyManning
)

var headLossNames = [...]string{"H-W", "D-W", "C-M"}

func (f HeadLossFormula) String() string {
	if f >= 0 && int(f) < len(headLossNames) {
		return headLossNames[f]
	}
	return fmt.Sprintf("HeadLossFormula(%d)", int(f))
}

func ParseHeadLossFormula(s string) (HeadLossFormula, bool) {
	for i, name := range headLossNames {
		if strings.EqualFold(s, name) {
			return HeadLossFormula(i), true
		}
	}
	return 0, false
}

type QualityKind int

const (
	QualityNone QualityKind = iota
	QualityChem
	QualityAge
	QualityTrace
)

func (k QualityKind) String() string {
	switch k {
	case QualityNone:
		return "NONE"
	case QualityChem:
		return "CHEMICAL"
	case QualityAge:
		return "AGE"
	case QualityTrace:
		return "TRACE"
	}
	return fmt.Sprintf("QualityKind(%d)", int(k))
}

type DemandModel int

const (
	DemandDriven DemandModel = iota
	PressureDriven
)

func (m DemandModel) String() string {
	if m == PressureDriven {
		return "PDA"
	}
	return "DDA"
}

// MixModel is a tank's [MIXING] model.
type MixModel int

const (
	MixComplete MixModel = iota
	MixTwoCompartment
	MixFIFO
	MixLIFO
)

var mixModelNames = [...]string{"MIXED", "2COMP", "FIFO", "LIFO"}

func (m MixModel) String() string {
	if m >= 0 && int(m) < len(mixModelNames) {
		return mixModelNames[m]
	}
	return fmt.Sprintf("MixModel(%d)", int(m))
}

// ParseMixModel accepts the section keywords and their MIX1/MIX2 aliases.
func ParseMixModel(s string) (MixModel, bool) {
	switch strings.ToUpper(s) {
	case "MIX1":
		return MixComplete, true
	case "MIX2":
		return MixTwoCompartment, true
	}
	for i, name := range mixModelNames {
		if strings.EqualFold(s, name) {
			return MixModel(i), true
		}
	}
	return 0, false
}
