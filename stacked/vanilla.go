package stacked

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type ColumnProof struct {
	Column         Column
	InclusionProof merkle.Proof
}

type ReplicaColumnProof struct {
	CX         ColumnProof
	DrgParents []ColumnProof
	ExpParents []ColumnProof
}

// LabelingProof carries the parent labels that produced the label of Node in
// layer LayerIndex.
type LabelingProof struct {
	LayerIndex uint64
	Node       uint64
	Parents    []hasher.Domain
}

// EncodingProof carries the parents of the last layer label, the key that
// encoded Node.
type EncodingProof struct {
	LayerIndex uint64
	Node       uint64
	Parents    []hasher.Domain
}

// Proof is the vanilla proof of a single challenge.
type Proof struct {
	CommDProof          merkle.Proof
	CommRLastProof      merkle.Proof
	ReplicaColumnProofs ReplicaColumnProof
	LabelingProofs      []LabelingProof
	EncodingProof       EncodingProof
}

// CommC is the column commitment the proof is anchored to.
func (p Proof) CommC() hasher.Domain {
	return p.ReplicaColumnProofs.CX.InclusionProof.Root
}

// CommRLast is the replica commitment the proof is anchored to.
func (p Proof) CommRLast() hasher.Domain {
	return p.CommRLastProof.Root
}

// PublicInputs are the values both prover and verifier hold.
type PublicInputs struct {
	ReplicaID hasher.Domain
	Seed      types.ChallengeSeed
	CommD     types.Commitment
	CommR     types.Commitment
}

// ProverAux holds the built trees and labels of a sealed sector.
type ProverAux struct {
	TreeD     *merkle.Tree
	TreeC     *merkle.Tree
	TreeRLast *merkle.Tree
	Layers    []store.Store
}

// OpenProverAux reopens every tree and label store listed in temp.
func OpenProverAux(ctx context.Context, cfg types.PoRepConfig, provider store.Provider, temp types.TemporaryAux) (*ProverAux, error) {
	nodes := cfg.Nodes()

	dataShape, err := merkle.NewShapeByName(types.BinaryArity, cfg.DataHasher)
	if err != nil {
		return nil, err
	}
	treeShape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	if err != nil {
		return nil, err
	}

	open := func(shape merkle.Shape, sc types.StoreConfig) (*merkle.Tree, error) {
		st, err := store.OpenComplete(ctx, provider, sc)
		if err != nil {
			return nil, xerrors.Errorf("opening %s: %w", sc.ID, err)
		}
		return shape.Open(st, nodes)
	}

	aux := &ProverAux{}
	if aux.TreeD, err = open(dataShape, temp.TreeD); err != nil {
		return nil, err
	}
	if aux.TreeC, err = open(treeShape, temp.TreeC); err != nil {
		return nil, err
	}
	if aux.TreeRLast, err = open(treeShape, temp.TreeRLast); err != nil {
		return nil, err
	}
	if aux.Layers, err = OpenLayers(ctx, temp.Labels, provider); err != nil {
		return nil, err
	}
	return aux, nil
}

func (aux *ProverAux) columnProof(node uint64) (ColumnProof, error) {
	col, err := ReadColumn(aux.Layers, node)
	if err != nil {
		return ColumnProof{}, err
	}
	incl, err := aux.TreeC.GenProof(node)
	if err != nil {
		return ColumnProof{}, err
	}
	if incl.Leaf != col.Hash(aux.TreeC.Shape().Hasher) {
		return ColumnProof{}, types.NewProofAssemblyError("column %d does not match tree_c", node)
	}
	return ColumnProof{Column: col, InclusionProof: incl}, nil
}

// ProveChallenge assembles the proof of one challenged node.
func ProveChallenge(g *Graph, aux *ProverAux, challenge uint64) (Proof, error) {
	if challenge == 0 || challenge >= g.Nodes() {
		return Proof{}, types.NewProofAssemblyError("challenge %d out of range", challenge)
	}

	var p Proof
	var err error
	if p.CommDProof, err = aux.TreeD.GenProof(challenge); err != nil {
		return Proof{}, xerrors.Errorf("comm_d proof: %w", err)
	}
	if p.CommRLastProof, err = aux.TreeRLast.GenProof(challenge); err != nil {
		return Proof{}, xerrors.Errorf("comm_r_last proof: %w", err)
	}

	if p.ReplicaColumnProofs.CX, err = aux.columnProof(challenge); err != nil {
		return Proof{}, err
	}

	base, err := g.BaseParents(challenge)
	if err != nil {
		return Proof{}, err
	}
	for _, parent := range base {
		cp, err := aux.columnProof(parent)
		if err != nil {
			return Proof{}, err
		}
		p.ReplicaColumnProofs.DrgParents = append(p.ReplicaColumnProofs.DrgParents, cp)
	}

	exp, err := g.ExpanderParents(challenge)
	if err != nil {
		return Proof{}, err
	}
	if len(aux.Layers) > 1 {
		for _, parent := range exp {
			cp, err := aux.columnProof(parent)
			if err != nil {
				return Proof{}, err
			}
			p.ReplicaColumnProofs.ExpParents = append(p.ReplicaColumnProofs.ExpParents, cp)
		}
	}

	layers := uint64(len(aux.Layers))
	for layer := uint64(1); layer <= layers; layer++ {
		parents := columnParents(p.ReplicaColumnProofs, layer)
		p.LabelingProofs = append(p.LabelingProofs, LabelingProof{LayerIndex: layer, Node: challenge, Parents: parents})
	}
	last := p.LabelingProofs[layers-1]
	p.EncodingProof = EncodingProof{LayerIndex: last.LayerIndex, Node: challenge, Parents: last.Parents}

	return p, nil
}

// columnParents gathers, from the parent columns, the labels used for layer.
func columnParents(rcp ReplicaColumnProof, layer uint64) []hasher.Domain {
	out := make([]hasher.Domain, 0, len(rcp.DrgParents)+len(rcp.ExpParents))
	for _, cp := range rcp.DrgParents {
		out = append(out, cp.Column.Rows[layer-1])
	}
	if layer > 1 {
		for _, cp := range rcp.ExpParents {
			out = append(out, cp.Column.Rows[layer-2])
		}
	}
	return out
}

// ProvePartition assembles the proofs of every challenge of a partition.
func ProvePartition(ctx context.Context, cfg types.PoRepConfig, g *Graph, pub PublicInputs, aux *ProverAux, partition uint64) ([]Proof, error) {
	challenges := SealChallenges(cfg, pub.ReplicaID, pub.Seed, partition)
	proofs := make([]Proof, len(challenges))

	eg, _ := errgroup.WithContext(ctx)
	for i, c := range challenges {
		i, c := i, c
		eg.Go(func() error {
			p, err := ProveChallenge(g, aux, c)
			if err != nil {
				return xerrors.Errorf("challenge %d (node %d): %w", i, c, err)
			}
			proofs[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}

// ProveAllPartitions assembles every partition concurrently. The result is
// indexed by partition, then by challenge slot.
func ProveAllPartitions(ctx context.Context, cfg types.PoRepConfig, g *Graph, pub PublicInputs, aux *ProverAux) ([][]Proof, error) {
	out := make([][]Proof, cfg.Partitions)

	var lk sync.Mutex
	var err error
	var wg sync.WaitGroup
	wg.Add(int(cfg.Partitions))
	for k := uint64(0); k < cfg.Partitions; k++ {
		go func(k uint64) {
			defer wg.Done()
			proofs, perr := ProvePartition(ctx, cfg, g, pub, aux, k)

			lk.Lock()
			defer lk.Unlock()
			if perr != nil {
				err = multierror.Append(err, xerrors.Errorf("partition %d: %w", k, perr))
				return
			}
			out[k] = proofs
		}(k)
	}
	wg.Wait()

	if err != nil {
		return nil, err
	}

	log.Debugw("assembled vanilla seal proofs", "partitions", cfg.Partitions, "challenges", cfg.ChallengeCount)
	return out, nil
}
