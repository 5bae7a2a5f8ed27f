package errors

import (
	"errors"
	"fmt"
)

// EngineCode is the integer status returned by every toolkit call.
// 0 is success, 1..6 are advisory warnings, anything above 100 is fatal.
type EngineCode int

const (
	OK EngineCode = 0

	WarnUnbalanced   EngineCode = 1
	WarnUnstable     EngineCode = 2
	WarnDisconnected EngineCode = 3
	WarnPumps        EngineCode = 4
	WarnValves       EngineCode = 5
	WarnPressures    EngineCode = 6

	ErrNoNetwork        EngineCode = 102
	ErrHydNotOpen       EngineCode = 103
	ErrNoHydraulics     EngineCode = 104
	ErrQualNotOpen      EngineCode = 105
	ErrNoResults        EngineCode = 106
	ErrHydExternal      EngineCode = 107
	ErrHydFileActive    EngineCode = 108
	ErrTimeParamActive  EngineCode = 109
	ErrHydSolve         EngineCode = 110
	ErrQualSolve        EngineCode = 120
	ErrInput            EngineCode = 200
	ErrSyntax           EngineCode = 201
	ErrIllegalNumber    EngineCode = 202
	ErrUndefinedNode    EngineCode = 203
	ErrUndefinedLink    EngineCode = 204
	ErrUndefinedPattern EngineCode = 205
	ErrUndefinedCurve   EngineCode = 206
	ErrControlCV        EngineCode = 207
	ErrIllegalNodeProp  EngineCode = 208
	ErrIllegalLinkProp  EngineCode = 211
	ErrUndefinedTrace   EngineCode = 212
	ErrIllegalOption    EngineCode = 213
	ErrDuplicateID      EngineCode = 215
	ErrPumpNoCurve      EngineCode = 216
	ErrValveConnection  EngineCode = 219
	ErrNotEnoughNodes   EngineCode = 223
	ErrNoFixedGrade     EngineCode = 224
	ErrTankLevels       EngineCode = 225
	ErrPumpCurve        EngineCode = 227
	ErrCurveOrder       EngineCode = 230
	ErrUndefinedSource  EngineCode = 240
	ErrUndefinedControl EngineCode = 241
	ErrIllegalParameter EngineCode = 251
	ErrUndefinedRule    EngineCode = 257
	ErrSameFiles        EngineCode = 301
	ErrOpenInput        EngineCode = 302
	ErrOpenOutput       EngineCode = 304
	ErrOpenHydFile      EngineCode = 305
	ErrHydFileMismatch  EngineCode = 306
	ErrReadHydFile      EngineCode = 307
	ErrSaveResults      EngineCode = 308
	ErrWriteInput       EngineCode = 309
	ErrOutRunFailed     EngineCode = 435
	ErrOutInvalid       EngineCode = 436
)

var engineMessages = map[EngineCode]string{
	OK:                  "no error",
	WarnUnbalanced:      "system hydraulically unbalanced",
	WarnUnstable:        "system may be hydraulically unstable",
	WarnDisconnected:    "system disconnected",
	WarnPumps:           "pumps cannot deliver enough flow or head",
	WarnValves:          "valves cannot deliver enough flow",
	WarnPressures:       "system has negative pressures",
	ErrNoNetwork:        "no network data available",
	ErrHydNotOpen:       "hydraulic solver not opened",
	ErrNoHydraulics:     "no hydraulics for water quality analysis",
	ErrQualNotOpen:      "water quality solver not opened",
	ErrNoResults:        "no results saved to report on",
	ErrHydExternal:      "hydraulics supplied from external file",
	ErrHydFileActive:    "cannot use external file while hydraulics solver is active",
	ErrTimeParamActive:  "cannot change time parameter when solver is active",
	ErrHydSolve:         "cannot solve network hydraulic equations",
	ErrQualSolve:        "cannot solve water quality transport equations",
	ErrInput:            "one or more errors detected in input file",
	ErrSyntax:           "syntax error",
	ErrIllegalNumber:    "illegal numeric value",
	ErrUndefinedNode:    "undefined node",
	ErrUndefinedLink:    "undefined link",
	ErrUndefinedPattern: "undefined time pattern",
	ErrUndefinedCurve:   "undefined curve",
	ErrControlCV:        "attempt to control a CV/GPV link",
	ErrIllegalNodeProp:  "reference to undefined node property",
	ErrIllegalLinkProp:  "illegal link property value",
	ErrUndefinedTrace:   "undefined trace node",
	ErrIllegalOption:    "illegal option value",
	ErrDuplicateID:      "duplicate ID label",
	ErrPumpNoCurve:      "reference to undefined pump curve",
	ErrValveConnection:  "illegal valve connection to tank or reservoir",
	ErrNotEnoughNodes:   "not enough nodes in network",
	ErrNoFixedGrade:     "no tanks or reservoirs in network",
	ErrTankLevels:       "invalid lower/upper levels for tank",
	ErrPumpCurve:        "invalid head curve for pump",
	ErrCurveOrder:       "nonincreasing x-values for curve",
	ErrUndefinedSource:  "nonexistent water quality source",
	ErrUndefinedControl: "nonexistent control",
	ErrIllegalParameter: "invalid parameter code",
	ErrUndefinedRule:    "nonexistent rule",
	ErrSameFiles:        "identical file names used for different types of files",
	ErrOpenInput:        "cannot open input file",
	ErrOpenOutput:       "cannot open binary output file",
	ErrOpenHydFile:      "cannot open hydraulics file",
	ErrHydFileMismatch:  "hydraulics file does not match network data",
	ErrReadHydFile:      "cannot read hydraulics file",
	ErrSaveResults:      "cannot save results to binary file",
	ErrWriteInput:       "cannot write input file",
	ErrOutRunFailed:     "run terminated with a fatal error",
	ErrOutInvalid:       "not a valid binary output file",
}

// Message is the toolkit's error-lookup call.
func (c EngineCode) Message() string {
	if msg, ok := engineMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("unknown engine code %d", int(c))
}

func (c EngineCode) IsWarning() bool { return c > 0 && c < 100 }

func (c EngineCode) IsFatal() bool { return c > 100 }

// Severity is "ok", "warning" or "fatal".
func (c EngineCode) Severity() string {
	switch {
	case c == OK:
		return "ok"
	case c.IsWarning():
		return "warning"
	}
	return "fatal"
}

// EngineError carries a fatal engine code out of a toolkit call.
type EngineError struct {
	Code   EngineCode
	Op     string
	Detail string
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine error %d: %s", int(e.Code), e.Code.Message())
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Is matches another *EngineError with the same code so callers can compare
// against a bare &EngineError{Code: ...} sentinel.
func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if errors.As(target, &other) {
		return other.Code == e.Code && other.Op == "" && other.Detail == ""
	}
	return false
}

func Engine(op string, code EngineCode) error {
	return &EngineError{Code: code, Op: op}
}

func Enginef(op string, code EngineCode, format string, args ...interface{}) error {
	return &EngineError{Code: code, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the engine code from err; 0 when err is nil, -1 when err
// did not originate in the engine.
func CodeOf(err error) EngineCode {
	if err == nil {
		return OK
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}
