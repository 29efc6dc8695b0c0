package protocols

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

// proofEncodingVersion is bumped on any wire format change.
const proofEncodingVersion = 1

// Serialize encodes the proof with little-endian integers and explicit
// length prefixes. Serialize then Deserialize is byte-exact.
func (p *StarkProof) Serialize() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(proofEncodingVersion)

	c := &p.Context
	buf.Write([]byte{c.LogTraceLength, c.CtxDepth, c.StackWidth, c.BlowupFactor, c.NumQueries, c.HashKind})
	hash := c.ProgramHash.Bytes()
	buf.Write(hash[:])
	if err := writeElementSlice(&buf, c.Inputs); err != nil {
		return nil, err
	}
	if err := writeElementSlice(&buf, c.Outputs); err != nil {
		return nil, err
	}

	buf.Write(p.TraceRoot)
	buf.Write(p.SegmentRoot)

	for _, frame := range [][]field.Element{p.OOD.TraceAtZ, p.OOD.TraceAtZg, p.OOD.Segments} {
		if err := writeElementSlice(&buf, frame); err != nil {
			return nil, err
		}
	}

	if len(p.FRI.LayerRoots) > math.MaxUint8 {
		return nil, fmt.Errorf("too many FRI layers to encode: %d", len(p.FRI.LayerRoots))
	}
	buf.WriteByte(uint8(len(p.FRI.LayerRoots)))
	for _, root := range p.FRI.LayerRoots {
		buf.Write(root)
	}
	if err := writeElementSlice(&buf, p.FRI.Remainder); err != nil {
		return nil, err
	}

	for i := range p.TraceQueries {
		if err := writeOpening(&buf, p.TraceQueries[i]); err != nil {
			return nil, err
		}
		if err := writeOpening(&buf, p.SegmentQueries[i]); err != nil {
			return nil, err
		}
		fq := p.FRI.Queries[i]
		if len(fq.Layers) != len(p.FRI.LayerRoots) {
			return nil, fmt.Errorf("query %d opens %d FRI layers, expected %d", i, len(fq.Layers), len(p.FRI.LayerRoots))
		}
		for _, opening := range fq.Layers {
			if err := writeOpening(&buf, opening); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a proof produced by Serialize and validates its shape.
func Deserialize(data []byte) (*StarkProof, error) {
	r := &proofReader{data: data}
	if version := r.u8(); r.err == nil && version != proofEncodingVersion {
		return nil, fmt.Errorf("unsupported proof encoding version %d", version)
	}

	p := &StarkProof{}
	c := &p.Context
	c.LogTraceLength = r.u8()
	c.CtxDepth = r.u8()
	c.StackWidth = r.u8()
	c.BlowupFactor = r.u8()
	c.NumQueries = r.u8()
	c.HashKind = r.u8()
	var hash [32]byte
	copy(hash[:], r.take(len(hash)))
	c.ProgramHash = crypto.DigestFromBytes(hash)
	c.Inputs = r.elementSlice()
	c.Outputs = r.elementSlice()

	p.TraceRoot = r.hash()
	p.SegmentRoot = r.hash()

	p.OOD.TraceAtZ = r.elementSlice()
	p.OOD.TraceAtZg = r.elementSlice()
	p.OOD.Segments = r.elementSlice()

	numLayers := int(r.u8())
	p.FRI.LayerRoots = make([][]byte, 0, numLayers)
	for i := 0; i < numLayers && r.err == nil; i++ {
		p.FRI.LayerRoots = append(p.FRI.LayerRoots, r.hash())
	}
	p.FRI.Remainder = r.elementSlice()

	numQueries := int(c.NumQueries)
	p.TraceQueries = make([]RowOpening, 0, numQueries)
	p.SegmentQueries = make([]RowOpening, 0, numQueries)
	p.FRI.Queries = make([]FRIQueryProof, 0, numQueries)
	for i := 0; i < numQueries && r.err == nil; i++ {
		p.TraceQueries = append(p.TraceQueries, r.opening())
		p.SegmentQueries = append(p.SegmentQueries, r.opening())
		layers := make([]RowOpening, 0, numLayers)
		for j := 0; j < numLayers && r.err == nil; j++ {
			layers = append(layers, r.opening())
		}
		p.FRI.Queries = append(p.FRI.Queries, FRIQueryProof{Layers: layers})
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("proof has %d trailing bytes", len(r.data)-r.off)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func writeElementSlice(buf *bytes.Buffer, elems []field.Element) error {
	if len(elems) > math.MaxUint16 {
		return fmt.Errorf("element slice too long to encode: %d", len(elems))
	}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(elems)))
	buf.Write(prefix[:])
	for _, e := range elems {
		b := e.Bytes()
		buf.Write(b[:])
	}
	return nil
}

func writeOpening(buf *bytes.Buffer, opening RowOpening) error {
	if err := writeElementSlice(buf, opening.Values); err != nil {
		return err
	}
	if len(opening.Path) > math.MaxUint8 {
		return fmt.Errorf("opening path too long to encode: %d", len(opening.Path))
	}
	buf.WriteByte(uint8(len(opening.Path)))
	for _, node := range opening.Path {
		if len(node.Hash) != crypto.HashSize {
			return fmt.Errorf("proof node hash must be %d bytes", crypto.HashSize)
		}
		buf.Write(node.Hash)
		if node.IsRight {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return nil
}

// proofReader decodes with a sticky error so the call sites stay linear.
type proofReader struct {
	data []byte
	off  int
	err  error
}

func (r *proofReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("proof truncated at byte %d", r.off)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *proofReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *proofReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *proofReader) hash() []byte {
	b := r.take(crypto.HashSize)
	if b == nil {
		return nil
	}
	out := make([]byte, crypto.HashSize)
	copy(out, b)
	return out
}

func (r *proofReader) elementSlice() []field.Element {
	n := int(r.u16())
	if r.err != nil {
		return nil
	}
	out := make([]field.Element, 0, n)
	for i := 0; i < n; i++ {
		var b [8]byte
		copy(b[:], r.take(len(b)))
		if r.err != nil {
			return nil
		}
		out = append(out, field.FromBytes(b))
	}
	return out
}

func (r *proofReader) opening() RowOpening {
	values := r.elementSlice()
	pathLen := int(r.u8())
	if r.err != nil {
		return RowOpening{}
	}
	path := make([]crypto.ProofNode, 0, pathLen)
	for i := 0; i < pathLen; i++ {
		hash := r.hash()
		flag := r.u8()
		if r.err != nil {
			return RowOpening{}
		}
		if flag > 1 {
			r.err = fmt.Errorf("invalid path direction byte %d", flag)
			return RowOpening{}
		}
		path = append(path, crypto.ProofNode{Hash: hash, IsRight: flag == 1})
	}
	return RowOpening{Values: values, Path: path}
}
