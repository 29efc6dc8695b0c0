package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// Domain is a multiplicative coset {offset * generator^i : i < length} with
// a power-of-two length.
type Domain struct {
	Offset    field.Element
	Generator field.Element
	Length    int
}

// NewDomain creates the subgroup domain of the given length, offset one.
func NewDomain(length int) (Domain, error) {
	if !utils.IsPowerOfTwo(length) {
		return Domain{}, fmt.Errorf("domain length must be a power of two, got %d", length)
	}
	generator, err := field.PrimitiveRootOfUnity(uint64(length))
	if err != nil {
		return Domain{}, fmt.Errorf("failed to find root of unity: %w", err)
	}
	return Domain{Offset: field.One(), Generator: generator, Length: length}, nil
}

// WithOffset returns a copy of the domain shifted to the given coset.
func (d Domain) WithOffset(offset field.Element) Domain {
	d.Offset = offset
	return d
}

// Halve returns the image of the domain under squaring: half the points,
// squared offset and generator. This is the codeword domain after one FRI
// fold.
func (d Domain) Halve() Domain {
	return Domain{
		Offset:    d.Offset.Square(),
		Generator: d.Generator.Square(),
		Length:    d.Length / 2,
	}
}

// Elements materializes all domain points in index order.
func (d Domain) Elements() []field.Element {
	points := make([]field.Element, d.Length)
	cur := d.Offset
	for i := 0; i < d.Length; i++ {
		points[i] = cur
		cur = cur.Mul(d.Generator)
	}
	return points
}

// At returns the domain point at index i.
func (d Domain) At(i int) field.Element {
	return d.Offset.Mul(d.Generator.Exp(uint64(i)))
}

// StarkDomains pairs the trace domain with its low-degree extension. The
// LDE domain sits on the coset of the field generator, so it never meets
// the trace domain.
type StarkDomains struct {
	Trace  Domain
	LDE    Domain
	Blowup int
}

// NewStarkDomains derives both domains for a padded trace height.
func NewStarkDomains(traceLength, blowup int) (*StarkDomains, error) {
	if !utils.IsPowerOfTwo(traceLength) {
		return nil, fmt.Errorf("trace length must be a power of two, got %d", traceLength)
	}
	if blowup != 8 && blowup != 16 {
		return nil, fmt.Errorf("blowup factor must be 8 or 16, got %d", blowup)
	}
	trace, err := NewDomain(traceLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace domain: %w", err)
	}
	lde, err := NewDomain(traceLength * blowup)
	if err != nil {
		return nil, fmt.Errorf("failed to create LDE domain: %w", err)
	}
	return &StarkDomains{
		Trace:  trace,
		LDE:    lde.WithOffset(field.New(field.Generator)),
		Blowup: blowup,
	}, nil
}
