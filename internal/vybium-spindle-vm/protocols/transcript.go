package protocols

import (
	"encoding/binary"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

// Transcript is the Fiat-Shamir channel. Prover and verifier feed it the
// same absorptions in the same order, so both sides derive identical
// challenges. Absorbing advances the chained state; drawing runs the state
// through the hash in counter mode and rejection-samples field elements, so
// draws are uniform and do not disturb the chain until the next absorption.
type Transcript struct {
	hash    func([]byte) []byte
	state   []byte
	counter uint64
}

// NewTranscript starts a transcript with a domain tag under the given hash.
func NewTranscript(hashFunc crypto.HashFunc) *Transcript {
	digest := hashFunc.Digest()
	return &Transcript{
		hash:  digest,
		state: digest([]byte("vybium-spindle-vm/stark/v1")),
	}
}

// AppendBytes absorbs raw bytes.
func (t *Transcript) AppendBytes(data []byte) {
	buf := make([]byte, 0, len(t.state)+len(data))
	buf = append(buf, t.state...)
	buf = append(buf, data...)
	t.state = t.hash(buf)
	t.counter = 0
}

// AppendUint64 absorbs one little-endian integer.
func (t *Transcript) AppendUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	t.AppendBytes(buf[:])
}

// AppendElements absorbs field elements in canonical little-endian form.
func (t *Transcript) AppendElements(elems []field.Element) {
	buf := make([]byte, 0, 8*len(elems))
	for _, e := range elems {
		b := e.Bytes()
		buf = append(buf, b[:]...)
	}
	t.AppendBytes(buf)
}

// next returns the next counter-mode block.
func (t *Transcript) next() []byte {
	buf := make([]byte, 0, len(t.state)+8)
	buf = append(buf, t.state...)
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], t.counter)
	t.counter++
	buf = append(buf, ctr[:]...)
	return t.hash(buf)
}

// DrawElement samples one field element by rejection, so the result is
// uniform over the field.
func (t *Transcript) DrawElement() field.Element {
	for {
		block := t.next()
		for off := 0; off+8 <= len(block); off += 8 {
			v := binary.LittleEndian.Uint64(block[off : off+8])
			if v < field.Modulus {
				return field.New(v)
			}
		}
	}
}

// DrawElements samples n field elements.
func (t *Transcript) DrawElements(n int) []field.Element {
	out := make([]field.Element, n)
	for i := range out {
		out[i] = t.DrawElement()
	}
	return out
}

// DrawIndices samples count distinct indices in [0, domainSize). The domain
// size must be a power of two; indices come back in draw order.
func (t *Transcript) DrawIndices(count, domainSize int) []int {
	mask := uint64(domainSize - 1)
	seen := make(map[int]bool, count)
	out := make([]int, 0, count)
	for len(out) < count {
		block := t.next()
		for off := 0; off+8 <= len(block) && len(out) < count; off += 8 {
			idx := int(binary.LittleEndian.Uint64(block[off:off+8]) & mask)
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	return out
}
