// Package crypto provides the algebraic permutation, hash registry, and
// Merkle commitments used by the VM and the proof system. The Rescue-style
// permutation lives in-tree because its round constants and matrices are also
// needed verbatim by the AIR that constrains it.
package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

const (
	// StateWidth is the permutation state size in field elements.
	StateWidth = 6

	// DigestSize is the digest size in field elements (32 bytes).
	DigestSize = 4

	// NumRounds is the number of permutation rounds.
	NumRounds = 7

	// CycleLength is the round-schedule cycle used by the in-trace hash
	// instruction: rounds 0..6 on phases 0..6, an all-zero schedule on
	// phase 7.
	CycleLength = 8

	// Alpha is the S-box exponent, the smallest integer coprime to p-1.
	Alpha uint64 = 7

	// InvAlpha satisfies Alpha * InvAlpha ≡ 1 (mod p-1), giving the
	// inverse S-box x^(1/7).
	InvAlpha uint64 = 10540996611094048183

	// constantSeed feeds the deterministic round-constant generator.
	constantSeed = "vybium-spindle-rescue-v1"
)

// Digest is a 4-element hash digest.
type Digest [DigestSize]field.Element

// Bytes returns the 32-byte little-endian encoding of the digest.
func (d Digest) Bytes() [32]byte {
	var out [32]byte
	for i, e := range d {
		b := e.Bytes()
		copy(out[i*8:], b[:])
	}
	return out
}

// DigestFromBytes decodes a 32-byte digest encoding.
func DigestFromBytes(b [32]byte) Digest {
	var d Digest
	for i := 0; i < DigestSize; i++ {
		var chunk [8]byte
		copy(chunk[:], b[i*8:(i+1)*8])
		d[i] = field.FromBytes(chunk)
	}
	return d
}

// Equal reports whether two digests are identical.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

var (
	// mds and invMDS are the 6x6 Cauchy MDS matrix and its inverse.
	mds    [StateWidth][StateWidth]field.Element
	invMDS [StateWidth][StateWidth]field.Element

	// ark0[r], ark1[r] are the first- and second-half round constants of
	// round r.
	ark0 [NumRounds][StateWidth]field.Element
	ark1 [NumRounds][StateWidth]field.Element
)

func init() {
	buildMDS()
	buildRoundConstants()
}

// buildMDS constructs the Cauchy matrix M[i][j] = 1/(x_i + y_j) with
// x = 0..5 and y = 6..11, then its inverse by Gaussian elimination. Every
// square submatrix of a Cauchy matrix is nonsingular, so M is MDS.
func buildMDS() {
	denoms := make([]field.Element, 0, StateWidth*StateWidth)
	for i := 0; i < StateWidth; i++ {
		for j := 0; j < StateWidth; j++ {
			denoms = append(denoms, field.New(uint64(i)).Add(field.New(uint64(StateWidth+j))))
		}
	}
	inverses := field.BatchInversion(denoms)
	for i := 0; i < StateWidth; i++ {
		for j := 0; j < StateWidth; j++ {
			mds[i][j] = inverses[i*StateWidth+j]
		}
	}

	inv, err := invertMatrix(mds)
	if err != nil {
		panic(fmt.Sprintf("rescue MDS matrix is singular: %v", err))
	}
	invMDS = inv
}

// invertMatrix inverts a 6x6 matrix over the field by Gauss-Jordan
// elimination.
func invertMatrix(m [StateWidth][StateWidth]field.Element) ([StateWidth][StateWidth]field.Element, error) {
	var aug [StateWidth][2 * StateWidth]field.Element
	for i := 0; i < StateWidth; i++ {
		for j := 0; j < StateWidth; j++ {
			aug[i][j] = m[i][j]
		}
		aug[i][StateWidth+i] = field.One()
	}

	for col := 0; col < StateWidth; col++ {
		pivot := -1
		for row := col; row < StateWidth; row++ {
			if !aug[row][col].IsZero() {
				pivot = row
				break
			}
		}
		if pivot < 0 {
			return m, fmt.Errorf("no pivot in column %d", col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pivotInv := aug[col][col].Inverse()
		for j := 0; j < 2*StateWidth; j++ {
			aug[col][j] = aug[col][j].Mul(pivotInv)
		}
		for row := 0; row < StateWidth; row++ {
			if row == col || aug[row][col].IsZero() {
				continue
			}
			factor := aug[row][col]
			for j := 0; j < 2*StateWidth; j++ {
				aug[row][j] = aug[row][j].Sub(factor.Mul(aug[col][j]))
			}
		}
	}

	var out [StateWidth][StateWidth]field.Element
	for i := 0; i < StateWidth; i++ {
		for j := 0; j < StateWidth; j++ {
			out[i][j] = aug[i][StateWidth+j]
		}
	}
	return out, nil
}

// buildRoundConstants expands a fixed SHA3-256 counter stream into the 84
// round constants, rejection-sampling each 8-byte window into the field.
func buildRoundConstants() {
	var counter uint64
	var pending []byte

	next := func() field.Element {
		for {
			if len(pending) < 8 {
				var block [8]byte
				binary.LittleEndian.PutUint64(block[:], counter)
				counter++
				sum := sha3.Sum256(append([]byte(constantSeed), block[:]...))
				pending = append(pending, sum[:]...)
			}
			v := binary.LittleEndian.Uint64(pending[:8])
			pending = pending[8:]
			if v < field.Modulus {
				return field.New(v)
			}
		}
	}

	for r := 0; r < NumRounds; r++ {
		for i := 0; i < StateWidth; i++ {
			ark0[r][i] = next()
		}
		for i := 0; i < StateWidth; i++ {
			ark1[r][i] = next()
		}
	}
}

// MDS returns the MDS matrix.
func MDS() [StateWidth][StateWidth]field.Element {
	return mds
}

// InvMDS returns the inverse MDS matrix.
func InvMDS() [StateWidth][StateWidth]field.Element {
	return invMDS
}

// RoundConstants returns the first- and second-half constants of round r.
func RoundConstants(r int) ([StateWidth]field.Element, [StateWidth]field.Element) {
	return ark0[r], ark1[r]
}

// ScheduleConstants returns the round constants for a cycle phase. Phases
// 0..6 carry rounds 0..6; phase 7 is the idle all-zero schedule.
func ScheduleConstants(phase int) ([StateWidth]field.Element, [StateWidth]field.Element) {
	phase &= CycleLength - 1
	if phase >= NumRounds {
		var zero [StateWidth]field.Element
		return zero, zero
	}
	return ark0[phase], ark1[phase]
}

// applyMDS multiplies the state by the MDS matrix.
func applyMDS(state *[StateWidth]field.Element) {
	var out [StateWidth]field.Element
	for i := 0; i < StateWidth; i++ {
		acc := field.Zero()
		for j := 0; j < StateWidth; j++ {
			acc = acc.Add(mds[i][j].Mul(state[j]))
		}
		out[i] = acc
	}
	*state = out
}

// ApplyRound runs one full round with the given constants:
// state <- M*state^α + c0, then state <- M*state^(1/α) + c1.
func ApplyRound(state *[StateWidth]field.Element, c0, c1 [StateWidth]field.Element) {
	for i := range state {
		state[i] = state[i].Exp(Alpha)
	}
	applyMDS(state)
	for i := range state {
		state[i] = state[i].Add(c0[i])
	}

	for i := range state {
		state[i] = state[i].Exp(InvAlpha)
	}
	applyMDS(state)
	for i := range state {
		state[i] = state[i].Add(c1[i])
	}
}

// Permute runs the full 7-round permutation in place.
func Permute(state *[StateWidth]field.Element) {
	for r := 0; r < NumRounds; r++ {
		ApplyRound(state, ark0[r], ark1[r])
	}
}

// AccumulatorRound absorbs two elements into sponge slots 0 and 1 and applies
// the fixed round-0 schedule. One such round per absorbed instruction is the
// program-hash accumulator; collision resistance of the chained construction
// is conjectural, as for comparable per-step trace hashes.
func AccumulatorRound(state *[StateWidth]field.Element, a0, a1 field.Element) {
	state[0] = state[0].Add(a0)
	state[1] = state[1].Add(a1)
	ApplyRound(state, ark0[0], ark1[0])
}

// AccumulatorDigest finalizes an accumulator state into a digest by
// truncating to the first four elements.
func AccumulatorDigest(state [StateWidth]field.Element) Digest {
	var d Digest
	copy(d[:], state[:DigestSize])
	return d
}

// HashElements hashes a sequence of field elements with the accumulator,
// absorbing the length first for domain separation.
func HashElements(values []field.Element) Digest {
	var state [StateWidth]field.Element
	AccumulatorRound(&state, field.New(uint64(len(values))), field.Zero())
	for i := 0; i < len(values); i += 2 {
		a0 := values[i]
		a1 := field.Zero()
		if i+1 < len(values) {
			a1 = values[i+1]
		}
		AccumulatorRound(&state, a0, a1)
	}
	return AccumulatorDigest(state)
}
