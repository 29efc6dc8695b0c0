package vybiumspindlevm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/protocols"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

func TestVMErrorFormatting(t *testing.T) {
	plain := newError(ErrCodeInvalidInputs, "too many inputs", nil)
	want := "vybium-spindle-vm error [2]: too many inputs"
	if plain.Error() != want {
		t.Errorf("Error() = %q, expected %q", plain.Error(), want)
	}

	cause := errors.New("tape exhausted")
	wrapped := newError(ErrCodeTapeExhausted, "program execution failed", cause)
	want = "vybium-spindle-vm error [9]: program execution failed (caused by: tape exhausted)"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, expected %q", wrapped.Error(), want)
	}
}

func TestVMErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("inner: %w", vm.ErrAssertionFailed)
	err := newError(ErrCodeAssertionFailed, "program execution failed", cause)

	if !errors.Is(err, vm.ErrAssertionFailed) {
		t.Error("wrapped sentinel not reachable through Unwrap")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap did not return the cause")
	}

	bare := newError(ErrCodeUnknown, "no cause", nil)
	if errors.Unwrap(bare) != nil {
		t.Error("Unwrap of a causeless error should be nil")
	}
}

func TestVMErrorIsByCode(t *testing.T) {
	a := newError(ErrCodeInvalidProof, "bad proof bytes", nil)
	b := newError(ErrCodeInvalidProof, "different message", errors.New("cause"))
	c := newError(ErrCodeVerificationFailed, "bad proof bytes", nil)

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
	if errors.Is(a, errors.New("bad proof bytes")) {
		t.Error("a VMError should not match a plain error")
	}
}

func TestExecutionCode(t *testing.T) {
	cases := []struct {
		sentinel error
		code     ErrorCode
	}{
		{vm.ErrStackUnderflow, ErrCodeStackUnderflow},
		{vm.ErrStackOverflow, ErrCodeStackOverflow},
		{vm.ErrAssertionFailed, ErrCodeAssertionFailed},
		{vm.ErrDivideByZero, ErrCodeDivideByZero},
		{vm.ErrInvalidCondition, ErrCodeInvalidCondition},
		{vm.ErrTapeExhausted, ErrCodeTapeExhausted},
		{vm.ErrStepLimit, ErrCodeStepLimit},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("at step 12: %w", tc.sentinel)
		if got := executionCode(wrapped); got != tc.code {
			t.Errorf("executionCode(%v) = %d, expected %d", tc.sentinel, got, tc.code)
		}
	}
	if got := executionCode(errors.New("unrelated")); got != ErrCodeUnknown {
		t.Errorf("executionCode of an unrelated error = %d, expected %d", got, ErrCodeUnknown)
	}
}

func TestVerificationCode(t *testing.T) {
	if got := verificationCode(protocols.ErrProofStructure); got != ErrCodeInvalidProof {
		t.Errorf("structure errors should map to %d, got %d", ErrCodeInvalidProof, got)
	}
	for _, sentinel := range []error{
		protocols.ErrClaimMismatch,
		protocols.ErrConstraintCheck,
		protocols.ErrOpeningCheck,
		protocols.ErrFriCheck,
	} {
		wrapped := fmt.Errorf("query 3: %w", sentinel)
		if got := verificationCode(wrapped); got != ErrCodeVerificationFailed {
			t.Errorf("verificationCode(%v) = %d, expected %d", sentinel, got, ErrCodeVerificationFailed)
		}
	}
}
