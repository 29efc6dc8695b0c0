package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// extendColumns interpolates each column over the trace domain and
// evaluates it on the LDE coset. Columns run in parallel. Returns both the
// coefficient form (needed for out-of-domain evaluation) and the extended
// evaluations.
func extendColumns(columns [][]field.Element, domains *StarkDomains) ([][]field.Element, [][]field.Element, error) {
	coeffs := make([][]field.Element, len(columns))
	lde := make([][]field.Element, len(columns))
	errs := make([]error, len(columns))

	utils.ParallelFor(len(columns), func(c int) {
		poly, err := field.InterpolatePoly(columns[c], field.One())
		if err != nil {
			errs[c] = fmt.Errorf("failed to interpolate column %d: %w", c, err)
			return
		}
		evals, err := field.EvaluatePoly(poly, domains.LDE.Length, domains.LDE.Offset)
		if err != nil {
			errs[c] = fmt.Errorf("failed to extend column %d: %w", c, err)
			return
		}
		coeffs[c] = poly
		lde[c] = evals
	})
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return coeffs, lde, nil
}

// rowLeafBytes encodes one committed row as a Merkle leaf.
func rowLeafBytes(values []field.Element) []byte {
	buf := make([]byte, 0, 8*len(values))
	for _, v := range values {
		b := v.Bytes()
		buf = append(buf, b[:]...)
	}
	return buf
}

// MatrixCommitment is a Merkle commitment to a column matrix, one leaf per
// row. The trace and the composition segments both commit this way.
type MatrixCommitment struct {
	columns [][]field.Element
	tree    *crypto.MerkleTree
}

// CommitMatrix builds the row-leaf tree over extended columns.
func CommitMatrix(columns [][]field.Element, hashFunc crypto.HashFunc) (*MatrixCommitment, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("cannot commit an empty matrix")
	}
	rows := len(columns[0])
	for c, col := range columns {
		if len(col) != rows {
			return nil, fmt.Errorf("column %d has %d rows, expected %d", c, len(col), rows)
		}
	}

	leaves := make([][]byte, rows)
	utils.ParallelFor(rows, func(r int) {
		row := make([]field.Element, len(columns))
		for c := range columns {
			row[c] = columns[c][r]
		}
		leaves[r] = rowLeafBytes(row)
	})

	tree, err := crypto.NewMerkleTree(leaves, hashFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to build commitment tree: %w", err)
	}
	return &MatrixCommitment{columns: columns, tree: tree}, nil
}

// Root returns the Merkle root.
func (m *MatrixCommitment) Root() []byte {
	return m.tree.Root()
}

// NumRows returns the committed row count.
func (m *MatrixCommitment) NumRows() int {
	return m.tree.NumLeaves()
}

// Row copies row r across all columns.
func (m *MatrixCommitment) Row(r int) []field.Element {
	row := make([]field.Element, len(m.columns))
	for c := range m.columns {
		row[c] = m.columns[c][r]
	}
	return row
}

// RowOpening is one opened row of a matrix commitment: the row values and
// the Merkle authentication path for the row's leaf.
type RowOpening struct {
	Values []field.Element
	Path   []crypto.ProofNode
}

// Open returns the row values at r together with the authentication path.
func (m *MatrixCommitment) Open(r int) (RowOpening, error) {
	if r < 0 || r >= m.NumRows() {
		return RowOpening{}, fmt.Errorf("row %d out of range [0, %d)", r, m.NumRows())
	}
	path, err := m.tree.Proof(r)
	if err != nil {
		return RowOpening{}, fmt.Errorf("failed to open row %d: %w", r, err)
	}
	return RowOpening{Values: m.Row(r), Path: path}, nil
}

// pathIndex reconstructs the leaf index encoded by a path's direction bits.
func pathIndex(path []crypto.ProofNode) int {
	idx := 0
	for i, node := range path {
		if !node.IsRight {
			idx |= 1 << i
		}
	}
	return idx
}

// VerifyRowOpening checks an opened row against a commitment root. The path
// must authenticate the exact queried index, not just some committed leaf.
func VerifyRowOpening(root []byte, index, numRows int, opening RowOpening, hashFunc crypto.HashFunc) bool {
	if len(opening.Path) != utils.Log2(numRows) {
		return false
	}
	if pathIndex(opening.Path) != index {
		return false
	}
	return crypto.VerifyMerkleProof(root, rowLeafBytes(opening.Values), opening.Path, hashFunc)
}
