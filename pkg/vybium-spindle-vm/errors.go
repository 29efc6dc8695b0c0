package vybiumspindlevm

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/protocols"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// ErrorCode classifies a Vybium Spindle VM error
type ErrorCode int

const (
	// ErrCodeUnknown represents an unclassified error
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeMalformedGraph represents an invalid program structure
	ErrCodeMalformedGraph

	// ErrCodeInvalidInputs represents invalid public inputs or tapes
	ErrCodeInvalidInputs

	// ErrCodeInvalidOptions represents invalid proof options
	ErrCodeInvalidOptions

	// ErrCodeStackUnderflow represents an operation on too few stack values
	ErrCodeStackUnderflow

	// ErrCodeStackOverflow represents a stack past the register ceiling
	ErrCodeStackOverflow

	// ErrCodeAssertionFailed represents an assert on a value other than one
	ErrCodeAssertionFailed

	// ErrCodeDivideByZero represents an inversion of zero
	ErrCodeDivideByZero

	// ErrCodeInvalidCondition represents a non-binary conditional value
	ErrCodeInvalidCondition

	// ErrCodeTapeExhausted represents a read past the end of an input tape
	ErrCodeTapeExhausted

	// ErrCodeStepLimit represents a trace exceeding the configured limit
	ErrCodeStepLimit

	// ErrCodeProverFailed represents a proof generation failure
	ErrCodeProverFailed

	// ErrCodeInvalidProof represents a structurally invalid proof
	ErrCodeInvalidProof

	// ErrCodeVerificationFailed represents a proof that fails verification
	ErrCodeVerificationFailed
)

// VMError represents a Vybium Spindle VM error
type VMError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-spindle-vm error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-spindle-vm error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *VMError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// newError wraps an internal error with a code and a short message.
func newError(code ErrorCode, message string, cause error) *VMError {
	return &VMError{Code: code, Message: message, Cause: cause}
}

// executionCode classifies a VM execution error by its sentinel.
func executionCode(err error) ErrorCode {
	switch {
	case errors.Is(err, vm.ErrStackUnderflow):
		return ErrCodeStackUnderflow
	case errors.Is(err, vm.ErrStackOverflow):
		return ErrCodeStackOverflow
	case errors.Is(err, vm.ErrAssertionFailed):
		return ErrCodeAssertionFailed
	case errors.Is(err, vm.ErrDivideByZero):
		return ErrCodeDivideByZero
	case errors.Is(err, vm.ErrInvalidCondition):
		return ErrCodeInvalidCondition
	case errors.Is(err, vm.ErrTapeExhausted):
		return ErrCodeTapeExhausted
	case errors.Is(err, vm.ErrStepLimit):
		return ErrCodeStepLimit
	default:
		return ErrCodeUnknown
	}
}

// verificationCode classifies a verifier error by its failed stage.
func verificationCode(err error) ErrorCode {
	switch {
	case errors.Is(err, protocols.ErrProofStructure):
		return ErrCodeInvalidProof
	case errors.Is(err, protocols.ErrClaimMismatch),
		errors.Is(err, protocols.ErrConstraintCheck),
		errors.Is(err, protocols.ErrOpeningCheck),
		errors.Is(err, protocols.ErrFriCheck):
		return ErrCodeVerificationFailed
	default:
		return ErrCodeVerificationFailed
	}
}
