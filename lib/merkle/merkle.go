// Package merkle builds binary Merkle trees over ordered SHA-256 fingerprints.
//
// Leaves are the fingerprints themselves; they are not hashed again. An
// internal node is SHA-256(left || right). When a level has an odd number of
// nodes the last node is paired with itself, the convention followed by most
// Merkle libraries. The root of an empty tree is checksum.Zero and the root of
// a single-leaf tree is that leaf.
package merkle

import (
	"errors"
	"fmt"

	"github.com/pyropy/chainstore/lib/checksum"
)

var (
	ErrLeafIndexOutOfRange = errors.New("leaf index out of range")
)

// Side tells on which side of the running hash a proof sibling sits.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}

	return "right"
}

// ProofStep is one level of an authentication path.
type ProofStep struct {
	Sibling checksum.Hash `json:"sibling"`
	Side    Side          `json:"side"`
}

// Proof is the authentication path from a leaf up to the root.
type Proof []ProofStep

// Tree keeps every level so proofs can be produced without rehashing.
// levels[0] are the leaves, the last level holds the root.
type Tree struct {
	levels [][]checksum.Hash
}

// Build constructs a tree over leaves in the given order.
func Build(leaves []checksum.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	level := make([]checksum.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]checksum.Hash{level}

	for len(level) > 1 {
		next := make([]checksum.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, checksum.Concat(left, right))
		}

		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root computes the root over leaves without keeping the tree around.
func Root(leaves []checksum.Hash) checksum.Hash {
	return Build(leaves).Root()
}

func (t *Tree) Root() checksum.Hash {
	if len(t.levels) == 0 {
		return checksum.Zero
	}

	return t.levels[len(t.levels)-1][0]
}

// Depth is the number of levels above the leaves.
func (t *Tree) Depth() int {
	if len(t.levels) == 0 {
		return 0
	}

	return len(t.levels) - 1
}

// Prove returns the authentication path for the leaf at index.
func (t *Tree) Prove(index int) (Proof, error) {
	if len(t.levels) == 0 || index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("%w: %d", ErrLeafIndexOutOfRange, index)
	}

	proof := make(Proof, 0, t.Depth())
	for _, level := range t.levels[:len(t.levels)-1] {
		if index%2 == 0 {
			sibling := level[index]
			if index+1 < len(level) {
				sibling = level[index+1]
			}
			proof = append(proof, ProofStep{Sibling: sibling, Side: Right})
		} else {
			proof = append(proof, ProofStep{Sibling: level[index-1], Side: Left})
		}

		index /= 2
	}

	return proof, nil
}

// VerifyProof folds the proof over leaf and compares the result with root.
func VerifyProof(leaf checksum.Hash, proof Proof, root checksum.Hash) bool {
	current := leaf
	for _, step := range proof {
		if step.Side == Left {
			current = checksum.Concat(step.Sibling, current)
		} else {
			current = checksum.Concat(current, step.Sibling)
		}
	}

	return current == root
}

// Verify rebuilds the tree from leaves and compares roots.
func Verify(root checksum.Hash, leaves []checksum.Hash) bool {
	return Root(leaves) == root
}
