package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[NOT_FOUND] resource not found" {
			t.Errorf("expected [NOT_FOUND] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		if !IsCode(err, CodeInternal) {
			t.Error("expected IsCode to return true for wrapped CodeInternal")
		}
	})
}

func TestEngineError(t *testing.T) {
	t.Run("Severity", func(t *testing.T) {
		if !WarnPressures.IsWarning() || WarnPressures.IsFatal() {
			t.Error("expected code 6 to be a warning")
		}
		if !ErrHydSolve.IsFatal() || ErrHydSolve.IsWarning() {
			t.Error("expected code 110 to be fatal")
		}
		if OK.IsWarning() || OK.IsFatal() {
			t.Error("expected code 0 to be neither warning nor fatal")
		}
	})

	t.Run("Message", func(t *testing.T) {
		err := Engine("RunStep", ErrHydNotOpen)
		expected := "RunStep: engine error 103: hydraulic solver not opened"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if EngineCode(999).Message() != "unknown engine code 999" {
			t.Errorf("unexpected message for unknown code: %s", EngineCode(999).Message())
		}
	})

	t.Run("IsAndCodeOf", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", Enginef("NodeIndex", ErrUndefinedNode, "id %q", "J9"))
		if !errors.Is(err, &EngineError{Code: ErrUndefinedNode}) {
			t.Error("expected errors.Is to match on engine code")
		}
		if errors.Is(err, &EngineError{Code: ErrUndefinedLink}) {
			t.Error("expected errors.Is to reject a different engine code")
		}
		if CodeOf(err) != ErrUndefinedNode {
			t.Errorf("expected code 203, got %d", CodeOf(err))
		}
		if CodeOf(errors.New("plain")) != -1 {
			t.Error("expected -1 for non-engine errors")
		}
		if !IsCode(err, CodeEngine) {
			t.Error("expected IsCode to recognise engine errors")
		}
	})
}

func TestContextAndClassification(t *testing.T) {
	t.Run("SortedContext", func(t *testing.T) {
		err := AddContext(New(CodeNotFound, "no network"), CtxPath, "a.inp")
		err = AddContext(err, CtxNetwork, "net1")
		expected := "[NOT_FOUND] no network (network=net1, path=a.inp)"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("AddContextKeepsChain", func(t *testing.T) {
		inner := New(CodeConflict, "busy")
		err := AddContext(fmt.Errorf("open: %w", inner), CtxRunID, "r1")
		if !strings.HasPrefix(err.Error(), "open: ") {
			t.Errorf("expected outer wrapper to be returned, got %s", err.Error())
		}
		if inner.Error() != "[CONFLICT] busy (run_id=r1)" {
			t.Errorf("unexpected message: %s", inner.Error())
		}
		if AddContext(nil, CtxPath, "x") != nil {
			t.Error("expected nil passthrough")
		}
	})

	t.Run("CodeFor", func(t *testing.T) {
		engine := AddContext(Engine("Open", ErrUndefinedNode), CtxPath, "net1.inp")
		if CodeFor(engine) != CodeEngine {
			t.Errorf("expected ENGINE_ERROR, got %q", CodeFor(engine))
		}
		if CodeOf(engine) != ErrUndefinedNode {
			t.Errorf("expected engine code to survive annotation, got %d", CodeOf(engine))
		}
		if CodeFor(AddContext(errors.New("boom"), CtxPath, "x")) != CodeInternal {
			t.Error("expected plain errors to be INTERNAL_ERROR")
		}
		if CodeFor(errors.New("plain")) != "" {
			t.Error("expected empty code for unclassified errors")
		}
		if IsCode(nil, "") {
			t.Error("expected nil to match no code")
		}
	})

	t.Run("SentinelIs", func(t *testing.T) {
		err := fmt.Errorf("load: %w", Wrap(errors.New("eof"), CodeValidationError, "bad file"))
		if !errors.Is(err, &DomainError{Code: CodeValidationError}) {
			t.Error("expected errors.Is to match on code")
		}
		if errors.Is(err, &DomainError{Code: CodeNotFound}) {
			t.Error("expected errors.Is to reject another code")
		}
	})
}
