// Package protocols implements the proof system around an execution trace:
// low-degree extension and Merkle commitment, constraint composition, the
// DEEP sampling step, FRI, and the prover/verifier pair that shares one
// Fiat-Shamir transcript discipline.
package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

const (
	// DefaultBlowupFactor is the LDE domain expansion.
	DefaultBlowupFactor = 8
	// DefaultNumQueries is the number of spot checks.
	DefaultNumQueries = 54
	// DefaultMaxTraceLength bounds the padded trace height.
	DefaultMaxTraceLength = 1 << 20

	// MaxRemainderSize is the evaluation count at which FRI folding stops.
	MaxRemainderSize = 256

	// NumSegments is the number of composition polynomial columns.
	NumSegments = 8
)

// ProofOptions selects the proof parameters. The zero value is not usable;
// start from DefaultProofOptions.
type ProofOptions struct {
	// BlowupFactor is the LDE expansion, 8 or 16.
	BlowupFactor int
	// NumQueries is the number of queried LDE positions.
	NumQueries int
	// HashFunction drives Merkle commitments and the transcript.
	HashFunction crypto.HashFunc
	// MaxTraceLength rejects programs whose padded trace would exceed it.
	MaxTraceLength int
	// GrindingFactor is reserved; only zero validates.
	GrindingFactor int
}

// DefaultProofOptions returns the standard parameter set.
func DefaultProofOptions() *ProofOptions {
	return &ProofOptions{
		BlowupFactor:   DefaultBlowupFactor,
		NumQueries:     DefaultNumQueries,
		HashFunction:   crypto.HashSHA3,
		MaxTraceLength: DefaultMaxTraceLength,
	}
}

// WithBlowupFactor returns a copy with the given blowup.
func (o *ProofOptions) WithBlowupFactor(blowup int) *ProofOptions {
	c := *o
	c.BlowupFactor = blowup
	return &c
}

// WithNumQueries returns a copy with the given query count.
func (o *ProofOptions) WithNumQueries(n int) *ProofOptions {
	c := *o
	c.NumQueries = n
	return &c
}

// WithHashFunction returns a copy with the given hash function.
func (o *ProofOptions) WithHashFunction(h crypto.HashFunc) *ProofOptions {
	c := *o
	c.HashFunction = h
	return &c
}

// WithMaxTraceLength returns a copy with the given trace bound.
func (o *ProofOptions) WithMaxTraceLength(n int) *ProofOptions {
	c := *o
	c.MaxTraceLength = n
	return &c
}

// Validate checks the parameter set.
func (o *ProofOptions) Validate() error {
	if o.BlowupFactor != 8 && o.BlowupFactor != 16 {
		return fmt.Errorf("blowup factor must be 8 or 16, got %d", o.BlowupFactor)
	}
	if o.NumQueries < 1 || o.NumQueries > 128 {
		return fmt.Errorf("query count must be in [1, 128], got %d", o.NumQueries)
	}
	if err := o.HashFunction.Validate(); err != nil {
		return err
	}
	if o.MaxTraceLength < 16 || !utils.IsPowerOfTwo(o.MaxTraceLength) {
		return fmt.Errorf("max trace length must be a power of two >= 16, got %d", o.MaxTraceLength)
	}
	if o.MaxTraceLength > DefaultMaxTraceLength {
		return fmt.Errorf("max trace length %d exceeds %d", o.MaxTraceLength, DefaultMaxTraceLength)
	}
	if o.GrindingFactor != 0 {
		return fmt.Errorf("grinding factor is reserved, must be zero")
	}
	return nil
}

// SecurityLevel reports the conjectured security in bits: half a bit of
// log2(blowup) per query, capped by the field and hash sizes.
func (o *ProofOptions) SecurityLevel() int {
	bits := o.NumQueries * utils.Log2(o.BlowupFactor) / 2
	if bits > 100 {
		bits = 100
	}
	return bits
}

// hashKindCode maps a hash function to its wire code.
func hashKindCode(h crypto.HashFunc) (uint8, error) {
	switch h {
	case crypto.HashSHA3:
		return 0, nil
	case crypto.HashBLAKE2b:
		return 1, nil
	case crypto.HashSHA256:
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported hash function %q", string(h))
}

// hashKindFromCode is the inverse of hashKindCode.
func hashKindFromCode(code uint8) (crypto.HashFunc, error) {
	switch code {
	case 0:
		return crypto.HashSHA3, nil
	case 1:
		return crypto.HashBLAKE2b, nil
	case 2:
		return crypto.HashSHA256, nil
	}
	return "", fmt.Errorf("unknown hash function code %d", code)
}
