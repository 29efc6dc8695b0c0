package crypto

import (
	"bytes"
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// MerkleTree commits to a list of byte leaves. Leaf hashing runs in parallel;
// the tree itself stores every level so authentication paths are cheap.
type MerkleTree struct {
	root   []byte
	leaves [][]byte
	levels [][][]byte
	hash   func([]byte) []byte
}

// ProofNode is one step of an authentication path.
type ProofNode struct {
	Hash    []byte
	IsRight bool // true if the sibling sits to the right of the running hash
}

// NewMerkleTree builds a tree over the given leaves using the named hash
// function.
func NewMerkleTree(data [][]byte, hashFunc HashFunc) (*MerkleTree, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot create Merkle tree with empty data")
	}
	if err := hashFunc.Validate(); err != nil {
		return nil, err
	}
	digest := hashFunc.Digest()

	leaves := make([][]byte, len(data))
	utils.ParallelFor(len(data), func(i int) {
		leaves[i] = digest(data[i])
	})

	levels := [][][]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][]byte, (len(current)+1)/2)
		utils.ParallelFor(len(next), func(i int) {
			left := current[2*i]
			right := left
			if 2*i+1 < len(current) {
				right = current[2*i+1]
			}
			combined := make([]byte, 0, len(left)+len(right))
			combined = append(combined, left...)
			combined = append(combined, right...)
			next[i] = digest(combined)
		})
		levels = append(levels, next)
		current = next
	}

	return &MerkleTree{
		root:   current[0],
		leaves: leaves,
		levels: levels,
		hash:   digest,
	}, nil
}

// Root returns the Merkle root.
func (mt *MerkleTree) Root() []byte {
	return mt.root
}

// NumLeaves returns the number of committed leaves.
func (mt *MerkleTree) NumLeaves() int {
	return len(mt.leaves)
}

// Proof returns the authentication path for the leaf at index.
func (mt *MerkleTree) Proof(index int) ([]ProofNode, error) {
	if index < 0 || index >= len(mt.leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, len(mt.leaves))
	}

	var proof []ProofNode
	current := index
	for level := 0; level < len(mt.levels)-1; level++ {
		nodes := mt.levels[level]

		sibling := current ^ 1
		isRight := current%2 == 0
		if sibling >= len(nodes) {
			// Odd tail: the node was paired with itself.
			sibling = current
		}
		proof = append(proof, ProofNode{
			Hash:    append([]byte(nil), nodes[sibling]...),
			IsRight: isRight,
		})
		current /= 2
	}
	return proof, nil
}

// VerifyMerkleProof checks an authentication path for leaf data against a
// root.
func VerifyMerkleProof(root, leaf []byte, proof []ProofNode, hashFunc HashFunc) bool {
	digest := hashFunc.Digest()
	hash := digest(leaf)

	for _, node := range proof {
		var combined []byte
		if node.IsRight {
			combined = append(combined, hash...)
			combined = append(combined, node.Hash...)
		} else {
			combined = append(combined, node.Hash...)
			combined = append(combined, hash...)
		}
		hash = digest(combined)
	}
	return bytes.Equal(hash, root)
}
