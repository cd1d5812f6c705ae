package seal

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/metrics"
	"github.com/filecoin-project/go-storage-proofs/stacked"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("seal")

// PreCommit1Output is the handoff from PreCommit-1 to PreCommit-2.
type PreCommit1Output struct {
	Version   uint64
	Config    types.PoRepConfig
	Sector    types.SectorID
	Prover    types.ProverID
	Ticket    types.Ticket
	Data      types.StoreConfig
	TreeD     types.StoreConfig
	Labels    types.Labels
	CommD     types.Commitment
	ReplicaID hasher.Domain
}

// PreCommit2Output carries the sector commitments and the auxiliary data
// needed to prove them.
type PreCommit2Output struct {
	Version       uint64
	CommD         types.Commitment
	CommR         types.Commitment
	PersistentAux types.PersistentAux
	TemporaryAux  types.TemporaryAux
}

// Commit1Output holds the vanilla proofs of every partition.
type Commit1Output struct {
	Version       uint64
	Config        types.PoRepConfig
	Sector        types.SectorID
	Prover        types.ProverID
	Ticket        types.Ticket
	Seed          types.ChallengeSeed
	CommD         types.Commitment
	CommR         types.Commitment
	ReplicaID     hasher.Domain
	VanillaProofs [][]stacked.Proof
}

type CommitOutput struct {
	Proof []byte
}

// StageData writes the padded sector data into the sector's data store.
func StageData(ctx context.Context, cfg types.PoRepConfig, provider store.Provider, paths Paths, data []hasher.Domain) (types.StoreConfig, error) {
	sc := paths.Data(cfg)
	if uint64(len(data)) != cfg.Nodes() {
		return sc, types.NewConfigurationError("sector data holds %d nodes, want %d", len(data), cfg.Nodes())
	}

	st, err := provider.Create(ctx, sc)
	if err != nil {
		return sc, xerrors.Errorf("creating data store: %w", err)
	}
	if err := st.Append(data...); err != nil {
		return sc, xerrors.Errorf("staging data: %w", err)
	}
	return sc, st.Sync()
}

// SealPreCommitPhase1 commits to the staged data and labels every layer.
func SealPreCommitPhase1(ctx context.Context, cfg types.PoRepConfig, provider store.Provider, paths Paths, prover types.ProverID, sector types.SectorID, ticket types.Ticket) (*PreCommit1Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data, err := store.OpenComplete(ctx, provider, paths.Data(cfg))
	if err != nil {
		return nil, xerrors.Errorf("opening sector data: %w", err)
	}

	dataShape, err := merkle.NewShapeByName(types.BinaryArity, cfg.DataHasher)
	if err != nil {
		return nil, err
	}

	treeDCfg := paths.TreeD(cfg)
	treeDStore, err := provider.Create(ctx, treeDCfg)
	if err != nil {
		return nil, xerrors.Errorf("creating tree_d store: %w", err)
	}

	sw := metrics.TreeBuildTime.Start(ctx)
	treeD, err := dataShape.Build(ctx, data, treeDStore)
	if err != nil {
		return nil, xerrors.Errorf("building tree_d: %w", err)
	}
	sw.Stop()

	commD := types.Commitment(treeD.Root())
	replicaID := stacked.ReplicaID(prover, sector, ticket, commD, cfg.PoRepID)

	g, err := stacked.NewGraph(cfg)
	if err != nil {
		return nil, err
	}

	labels := paths.Labels(cfg)

	log.Infow("labeling sector", "sector", sector, "layers", cfg.Layers, "nodes", cfg.Nodes())
	sw = metrics.LabelingTime.Start(ctx)
	if err := stacked.LabelLayers(ctx, g, replicaID, labels, provider); err != nil {
		return nil, xerrors.Errorf("labeling sector %d: %w", sector, err)
	}
	log.Infow("labeled sector", "sector", sector, "took", sw.Stop())

	return &PreCommit1Output{
		Version:   types.ProofVersion,
		Config:    cfg,
		Sector:    sector,
		Prover:    prover,
		Ticket:    ticket,
		Data:      paths.Data(cfg),
		TreeD:     treeDCfg,
		Labels:    labels,
		CommD:     commD,
		ReplicaID: replicaID,
	}, nil
}

// SealPreCommitPhase2 builds the column and replica trees over the final
// labels and derives comm_r.
func SealPreCommitPhase2(ctx context.Context, provider store.Provider, paths Paths, p1 *PreCommit1Output) (*PreCommit2Output, error) {
	cfg := p1.Config
	if err := checkVersion(p1.Version); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	treeShape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	if err != nil {
		return nil, err
	}

	layers, err := stacked.OpenLayers(ctx, p1.Labels, provider)
	if err != nil {
		return nil, err
	}
	data, err := store.OpenComplete(ctx, provider, p1.Data)
	if err != nil {
		return nil, xerrors.Errorf("opening sector data: %w", err)
	}

	sw := metrics.TreeBuildTime.Start(ctx)

	treeCCfg := paths.TreeC(cfg)
	treeCStore, err := provider.Create(ctx, treeCCfg)
	if err != nil {
		return nil, xerrors.Errorf("creating tree_c store: %w", err)
	}
	treeC, err := stacked.BuildColumnTree(ctx, treeShape, layers, treeCStore)
	if err != nil {
		return nil, xerrors.Errorf("building tree_c: %w", err)
	}

	replicaCfg := paths.Replica(cfg)
	replica, err := provider.Create(ctx, replicaCfg)
	if err != nil {
		return nil, xerrors.Errorf("creating replica store: %w", err)
	}
	if err := stacked.EncodeReplica(ctx, data, layers[len(layers)-1], replica); err != nil {
		return nil, xerrors.Errorf("encoding replica: %w", err)
	}

	treeRCfg := paths.TreeRLast(cfg)
	treeRStore, err := provider.Create(ctx, treeRCfg)
	if err != nil {
		return nil, xerrors.Errorf("creating tree_r_last store: %w", err)
	}
	treeR, err := treeShape.Build(ctx, replica, treeRStore)
	if err != nil {
		return nil, xerrors.Errorf("building tree_r_last: %w", err)
	}

	sw.Stop()

	paux := types.PersistentAux{
		CommC:     types.Commitment(treeC.Root()),
		CommRLast: types.Commitment(treeR.Root()),
	}
	commR := CommR(treeShape.Hasher, paux)

	log.Infow("sector pre-committed", "sector", p1.Sector, "commR", commR)

	return &PreCommit2Output{
		Version:       types.ProofVersion,
		CommD:         p1.CommD,
		CommR:         commR,
		PersistentAux: paux,
		TemporaryAux: types.TemporaryAux{
			Labels:    p1.Labels,
			TreeD:     p1.TreeD,
			TreeC:     treeCCfg,
			TreeRLast: treeRCfg,
			Replica:   replicaCfg,
		},
	}, nil
}

// CommR binds the column and replica commitments.
func CommR(h hasher.Hasher, aux types.PersistentAux) types.Commitment {
	return types.Commitment(h.HashNodes([]hasher.Domain{aux.CommC.Domain(), aux.CommRLast.Domain()}))
}

// SealCommitPhase1 assembles the vanilla proofs of every partition for the
// given seed.
func SealCommitPhase1(ctx context.Context, provider store.Provider, p1 *PreCommit1Output, p2 *PreCommit2Output, seed types.ChallengeSeed) (*Commit1Output, error) {
	cfg := p1.Config
	if err := checkVersion(p1.Version); err != nil {
		return nil, err
	}
	if err := checkVersion(p2.Version); err != nil {
		return nil, err
	}

	g, err := stacked.NewGraph(cfg)
	if err != nil {
		return nil, err
	}
	aux, err := stacked.OpenProverAux(ctx, cfg, provider, p2.TemporaryAux)
	if err != nil {
		return nil, xerrors.Errorf("opening sector trees: %w", err)
	}

	pub := stacked.PublicInputs{
		ReplicaID: p1.ReplicaID,
		Seed:      seed,
		CommD:     p2.CommD,
		CommR:     p2.CommR,
	}

	sw := metrics.SealProofTime.Start(ctx)
	proofs, err := stacked.ProveAllPartitions(ctx, cfg, g, pub, aux)
	if err != nil {
		return nil, xerrors.Errorf("sector %d: %w", p1.Sector, err)
	}
	log.Infow("assembled vanilla seal proofs", "sector", p1.Sector, "took", sw.Stop())

	out := &Commit1Output{
		Version:       types.ProofVersion,
		Config:        cfg,
		Sector:        p1.Sector,
		Prover:        p1.Prover,
		Ticket:        p1.Ticket,
		Seed:          seed,
		CommD:         p2.CommD,
		CommR:         p2.CommR,
		ReplicaID:     p1.ReplicaID,
		VanillaProofs: proofs,
	}

	ok, err := VerifySealVanilla(out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewProofAssemblyError("sector %d: assembled vanilla proofs do not verify", p1.Sector)
	}
	return out, nil
}

// SealCommitPhase2 compresses the vanilla proofs through the SNARK backend.
func SealCommitPhase2(ctx context.Context, backend snark.Backend, c1 *Commit1Output) (*CommitOutput, error) {
	raw, err := types.Marshal(c1)
	if err != nil {
		return nil, err
	}
	proof, err := backend.SealCommitPhase2(ctx, c1.Config, raw, c1.Sector, c1.Prover)
	if err != nil {
		return nil, xerrors.Errorf("sector %d: snark backend: %w", c1.Sector, err)
	}
	return &CommitOutput{Proof: proof}, nil
}

// VerifySealVanilla checks the vanilla proofs of a Commit-1 output against
// its public inputs. Malformed configuration is an error; a proof that does
// not hold is false.
func VerifySealVanilla(c1 *Commit1Output) (bool, error) {
	if err := checkVersion(c1.Version); err != nil {
		return false, err
	}
	v, err := stacked.NewVerifier(c1.Config)
	if err != nil {
		return false, err
	}

	if stacked.ReplicaID(c1.Prover, c1.Sector, c1.Ticket, c1.CommD, c1.Config.PoRepID) != c1.ReplicaID {
		return false, nil
	}

	pub := stacked.PublicInputs{
		ReplicaID: c1.ReplicaID,
		Seed:      c1.Seed,
		CommD:     c1.CommD,
		CommR:     c1.CommR,
	}
	ok := v.VerifyAllPartitions(pub, c1.VanillaProofs)
	if !ok {
		metrics.VerifyFailures.Inc(context.TODO(), 1)
	}
	return ok, nil
}

// VerifySeal checks a compressed seal proof through the SNARK backend.
func VerifySeal(ctx context.Context, backend snark.Backend, cfg types.PoRepConfig, info snark.SealVerifyInfo) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	return backend.VerifySeal(ctx, cfg, info)
}

// ClearCache drops the stores that are only needed until Commit-2: every
// label layer, tree_c and tree_d.
func ClearCache(ctx context.Context, provider store.Provider, temp types.TemporaryAux) error {
	stores := append([]types.StoreConfig{temp.TreeC, temp.TreeD}, temp.Labels.Configs...)
	for _, sc := range stores {
		if err := provider.Delete(ctx, sc); err != nil {
			return xerrors.Errorf("clearing %s: %w", sc.Key(), err)
		}
	}
	return nil
}

func checkVersion(v uint64) error {
	if v != types.ProofVersion {
		return types.NewConfigurationError("unsupported phase output version %d", v)
	}
	return nil
}
