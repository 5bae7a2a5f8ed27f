// Package errors carries the two error families used across aquanet: coded
// domain errors for the application layers and numbered engine errors for
// the hydraulic and quality solvers (see engine.go).
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported    ErrorCode = "NOT_SUPPORTED"
	// CodeEngine is never stored on a DomainError; CodeFor reports it for
	// solver failures.
	CodeEngine ErrorCode = "ENGINE_ERROR"
)

// Context keys shared by callers that annotate errors.
const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxNetwork   = "network"
	CtxRunID     = "run_id"
	CtxScenario  = "scenario"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

func (e *DomainError) WithContext(key string, value any) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]any, 2)
	}
	e.Context[key] = value
	return e
}

// Error renders "[CODE] message: cause (k=v, ...)" with context keys sorted.
func (e *DomainError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Context) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
	}
	b.WriteByte(')')
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches another DomainError by code alone, so sentinels like
// &DomainError{Code: CodeNotFound} work with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Message == "" && t.Code == e.Code
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext annotates the outermost DomainError in err's chain. Engine and
// plain errors are wrapped first, as CodeEngine-backed or INTERNAL_ERROR.
func AddContext(err error, key string, value any) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	msg := "unexpected failure"
	var ee *EngineError
	if errors.As(err, &ee) {
		msg = ee.Op
	}
	return (&DomainError{Code: CodeInternal, Message: msg, Err: err}).WithContext(key, value)
}

// CodeFor classifies err. The first DomainError in the chain wins; a bare
// solver failure yields CodeEngine and anything else "".
func CodeFor(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		if de.Code == CodeInternal {
			var ee *EngineError
			if errors.As(de.Err, &ee) {
				return CodeEngine
			}
		}
		return de.Code
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return CodeEngine
	}
	return ""
}

func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeFor(err) == code
}
