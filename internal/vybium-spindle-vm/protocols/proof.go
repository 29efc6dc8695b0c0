package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// ProofContext carries the public statement and the trace shape parameters
// the verifier needs to rebuild the constraint system. Everything here is
// absorbed into the transcript before any commitment.
type ProofContext struct {
	LogTraceLength uint8
	CtxDepth       uint8
	StackWidth     uint8
	BlowupFactor   uint8
	NumQueries     uint8
	HashKind       uint8
	ProgramHash    crypto.Digest
	Inputs         []field.Element
	Outputs        []field.Element
}

// TraceLength returns the padded trace height.
func (c *ProofContext) TraceLength() int {
	return 1 << c.LogTraceLength
}

// Layout rebuilds the trace layout the proof was generated against.
func (c *ProofContext) Layout() (vm.TraceLayout, error) {
	return vm.NewTraceLayout(int(c.CtxDepth), int(c.StackWidth))
}

// Options rebuilds the proof options encoded in the context.
func (c *ProofContext) Options() (*ProofOptions, error) {
	hashFunc, err := hashKindFromCode(c.HashKind)
	if err != nil {
		return nil, err
	}
	options := DefaultProofOptions().
		WithBlowupFactor(int(c.BlowupFactor)).
		WithNumQueries(int(c.NumQueries)).
		WithHashFunction(hashFunc)
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// Validate checks the context against the protocol limits.
func (c *ProofContext) Validate() error {
	n := c.TraceLength()
	if n < vm.MinTraceLength || n > DefaultMaxTraceLength {
		return fmt.Errorf("trace length 2^%d is outside [%d, %d]", c.LogTraceLength, vm.MinTraceLength, DefaultMaxTraceLength)
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	if len(c.Inputs) > vm.MaxPublicInputs {
		return fmt.Errorf("too many public inputs: %d exceeds %d", len(c.Inputs), vm.MaxPublicInputs)
	}
	if len(c.Outputs) > vm.MaxOutputs {
		return fmt.Errorf("too many outputs: %d exceeds %d", len(c.Outputs), vm.MaxOutputs)
	}
	return nil
}

// OODFrame holds the out-of-domain evaluations: every trace column at z and
// z*g, and every composition segment at z^NumSegments.
type OODFrame struct {
	TraceAtZ  []field.Element
	TraceAtZg []field.Element
	Segments  []field.Element
}

// FRIQueryProof opens every FRI layer along one query's fold path.
type FRIQueryProof struct {
	Layers []RowOpening
}

// FRIProof is the commit-phase output: one root per folded layer, the final
// remainder as polynomial coefficients, and the per-query layer openings.
type FRIProof struct {
	LayerRoots [][]byte
	Remainder  []field.Element
	Queries    []FRIQueryProof
}

// StarkProof is a complete execution proof. TraceQueries and SegmentQueries
// open the two commitments at the query positions, in draw order.
type StarkProof struct {
	Context        ProofContext
	TraceRoot      []byte
	SegmentRoot    []byte
	OOD            OODFrame
	FRI            FRIProof
	TraceQueries   []RowOpening
	SegmentQueries []RowOpening
}

// Validate checks the structural shape of the proof: lengths, widths and
// query counts, everything that can be rejected before any cryptography.
func (p *StarkProof) Validate() error {
	if err := p.Context.Validate(); err != nil {
		return fmt.Errorf("invalid proof context: %w", err)
	}
	layout, err := p.Context.Layout()
	if err != nil {
		return err
	}
	width := layout.Width()

	if len(p.TraceRoot) != crypto.HashSize || len(p.SegmentRoot) != crypto.HashSize {
		return fmt.Errorf("commitment roots must be %d bytes", crypto.HashSize)
	}
	if len(p.OOD.TraceAtZ) != width || len(p.OOD.TraceAtZg) != width {
		return fmt.Errorf("out-of-domain trace frame has width %d/%d, expected %d",
			len(p.OOD.TraceAtZ), len(p.OOD.TraceAtZg), width)
	}
	if len(p.OOD.Segments) != NumSegments {
		return fmt.Errorf("out-of-domain frame has %d segments, expected %d", len(p.OOD.Segments), NumSegments)
	}

	numQueries := int(p.Context.NumQueries)
	if len(p.TraceQueries) != numQueries || len(p.SegmentQueries) != numQueries || len(p.FRI.Queries) != numQueries {
		return fmt.Errorf("proof opens %d/%d/%d query positions, expected %d",
			len(p.TraceQueries), len(p.SegmentQueries), len(p.FRI.Queries), numQueries)
	}
	for i := range p.TraceQueries {
		if len(p.TraceQueries[i].Values) != width {
			return fmt.Errorf("trace opening %d has %d values, expected %d", i, len(p.TraceQueries[i].Values), width)
		}
		if len(p.SegmentQueries[i].Values) != NumSegments {
			return fmt.Errorf("segment opening %d has %d values, expected %d", i, len(p.SegmentQueries[i].Values), NumSegments)
		}
	}
	for _, root := range p.FRI.LayerRoots {
		if len(root) != crypto.HashSize {
			return fmt.Errorf("FRI layer roots must be %d bytes", crypto.HashSize)
		}
	}
	return nil
}

// SecurityLevel reports the conjectured security of the proof parameters.
func (p *StarkProof) SecurityLevel() int {
	options, err := p.Context.Options()
	if err != nil {
		return 0
	}
	return options.SecurityLevel()
}

// Size returns the serialized proof length in bytes.
func (p *StarkProof) Size() int {
	data, err := p.Serialize()
	if err != nil {
		return 0
	}
	return len(data)
}

func (p *StarkProof) String() string {
	return fmt.Sprintf("stark proof: trace 2^%d x %d, %d queries, %d FRI layers, ~%d bits, %d bytes",
		p.Context.LogTraceLength, int(p.Context.StackWidth), p.Context.NumQueries,
		len(p.FRI.LayerRoots), p.SecurityLevel(), p.Size())
}
