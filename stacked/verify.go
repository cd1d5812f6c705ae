package stacked

import (
	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// Verifier checks vanilla seal proofs against public inputs.
type Verifier struct {
	cfg        types.PoRepConfig
	graph      *Graph
	dataShape  merkle.Shape
	treeShape  merkle.Shape
	treeHasher hasher.Hasher
}

func NewVerifier(cfg types.PoRepConfig) (*Verifier, error) {
	g, err := NewGraph(cfg)
	if err != nil {
		return nil, err
	}
	dataShape, err := merkle.NewShapeByName(types.BinaryArity, cfg.DataHasher)
	if err != nil {
		return nil, err
	}
	treeShape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	if err != nil {
		return nil, err
	}
	return &Verifier{cfg: cfg, graph: g, dataShape: dataShape, treeShape: treeShape, treeHasher: treeShape.Hasher}, nil
}

func (v *Verifier) Graph() *Graph {
	return v.graph
}

// VerifyAllPartitions recomputes every challenge and checks its proof.
func (v *Verifier) VerifyAllPartitions(pub PublicInputs, proofs [][]Proof) bool {
	if uint64(len(proofs)) != v.cfg.Partitions {
		log.Warnw("wrong number of partitions", "got", len(proofs), "want", v.cfg.Partitions)
		return false
	}
	for k, partition := range proofs {
		challenges := SealChallenges(v.cfg, pub.ReplicaID, pub.Seed, uint64(k))
		if len(partition) != len(challenges) {
			return false
		}
		for i, c := range challenges {
			if !v.VerifyChallenge(pub, c, partition[i]) {
				log.Warnw("seal proof failed", "partition", k, "challenge", i, "node", c)
				return false
			}
		}
	}
	return true
}

// VerifyChallenge checks the proof of one challenged node.
func (v *Verifier) VerifyChallenge(pub PublicInputs, challenge uint64, p Proof) bool {
	layers := v.cfg.Layers
	rcp := p.ReplicaColumnProofs
	commC := p.CommC()

	// comm_r binds the column and replica trees
	if types.Commitment(v.treeHasher.HashNodes([]hasher.Domain{commC, p.CommRLast()})) != pub.CommR {
		return false
	}

	nodes := v.cfg.Nodes()
	if !merkle.VerifyProof(v.dataShape, nodes, pub.CommD.Domain(), p.CommDProof.Leaf, challenge, p.CommDProof) {
		return false
	}
	if !merkle.VerifyProof(v.treeShape, nodes, p.CommRLast(), p.CommRLastProof.Leaf, challenge, p.CommRLastProof) {
		return false
	}

	if !v.verifyColumn(commC, challenge, rcp.CX) {
		return false
	}

	base, err := v.graph.BaseParents(challenge)
	if err != nil || len(base) != len(rcp.DrgParents) {
		return false
	}
	for i, parent := range base {
		if !v.verifyColumn(commC, parent, rcp.DrgParents[i]) {
			return false
		}
	}

	var exp []uint64
	if layers > 1 {
		if exp, err = v.graph.ExpanderParents(challenge); err != nil {
			return false
		}
	}
	if len(exp) != len(rcp.ExpParents) {
		return false
	}
	for i, parent := range exp {
		if !v.verifyColumn(commC, parent, rcp.ExpParents[i]) {
			return false
		}
	}

	if uint64(len(p.LabelingProofs)) != layers {
		return false
	}
	for l := uint64(1); l <= layers; l++ {
		lp := p.LabelingProofs[l-1]
		if lp.LayerIndex != l || lp.Node != challenge || !sameNodes(lp.Parents, columnParents(rcp, l)) {
			return false
		}
		if Label(pub.ReplicaID, l, challenge, lp.Parents) != rcp.CX.Column.Rows[l-1] {
			return false
		}
	}

	ep := p.EncodingProof
	if ep.LayerIndex != layers || ep.Node != challenge || !sameNodes(ep.Parents, columnParents(rcp, layers)) {
		return false
	}
	key := Label(pub.ReplicaID, layers, challenge, ep.Parents)
	return Encode(key, p.CommDProof.Leaf) == p.CommRLastProof.Leaf
}

func (v *Verifier) verifyColumn(commC hasher.Domain, node uint64, cp ColumnProof) bool {
	if cp.Column.Index != node || uint64(len(cp.Column.Rows)) != v.cfg.Layers {
		return false
	}
	return merkle.VerifyProof(v.treeShape, v.cfg.Nodes(), commC, cp.Column.Hash(v.treeHasher), node, cp.InclusionProof)
}

func sameNodes(a, b []hasher.Domain) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
