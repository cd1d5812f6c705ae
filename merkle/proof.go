package merkle

import (
	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// PathElement holds the siblings of one level and the position of the
// proven node among them.
type PathElement struct {
	Hashes []hasher.Domain
	Index  uint64
}

// Proof is an inclusion proof of Leaf under Root.
type Proof struct {
	Root hasher.Domain
	Leaf hasher.Domain
	Path []PathElement
}

func (p Proof) arity() uint64 {
	if len(p.Path) == 0 {
		return 0
	}
	return uint64(len(p.Path[0].Hashes)) + 1
}

// LeafIndex reconstructs the leaf position encoded by the path.
func (p Proof) LeafIndex() uint64 {
	arity := p.arity()
	var idx, mul uint64 = 0, 1
	for _, el := range p.Path {
		idx += el.Index * mul
		mul *= arity
	}
	return idx
}

// Validate reports whether the path proves leaf i.
func (p Proof) Validate(i uint64) bool {
	return p.wellFormed() && p.LeafIndex() == i
}

// ValidateData reports whether the proof is about leaf.
func (p Proof) ValidateData(leaf hasher.Domain) bool {
	return p.Leaf == leaf
}

// Matches reports whether the path has the arity and depth of a tree with
// the given arity over leafs leaves.
func (p Proof) Matches(arity, leafs uint64) bool {
	if !types.IsPowerOf(leafs, arity) || p.arity() != arity {
		return false
	}
	var depth uint64
	for n := leafs; n > 1; n /= arity {
		depth++
	}
	return uint64(len(p.Path)) == depth
}

func (p Proof) wellFormed() bool {
	arity := p.arity()
	if arity < 2 {
		return false
	}
	for _, el := range p.Path {
		if uint64(len(el.Hashes))+1 != arity || el.Index >= arity {
			return false
		}
	}
	return true
}

// Verify recomputes the root from the leaf and path.
func (p Proof) Verify(h hasher.Hasher) bool {
	if !p.wellFormed() {
		return false
	}

	cur := p.Leaf
	nodes := make([]hasher.Domain, p.arity())
	for _, el := range p.Path {
		copy(nodes, el.Hashes[:el.Index])
		nodes[el.Index] = cur
		copy(nodes[el.Index+1:], el.Hashes[el.Index:])
		cur = h.HashNodes(nodes)
	}
	return cur == p.Root
}

// VerifyProof checks that p proves leaf at position i under root of a tree
// of shape s over leafs leaves. A path of any other depth is rejected, so an
// inner node never passes for a leaf.
func VerifyProof(s Shape, leafs uint64, root, leaf hasher.Domain, i uint64, p Proof) bool {
	return i < leafs && p.Root == root && p.ValidateData(leaf) &&
		p.Matches(s.Arity, leafs) && p.Validate(i) && p.Verify(s.Hasher)
}
