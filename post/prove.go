package post

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/metrics"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("post")

// PrivateSector is what the prover holds about a sealed sector.
type PrivateSector struct {
	ID        types.SectorID
	CommC     types.Commitment
	CommRLast types.Commitment
	TreeRLast types.StoreConfig
}

// SectorProof proves every challenged leaf of one sector.
type SectorProof struct {
	InclusionProofs []merkle.Proof
	CommC           types.Commitment
	CommRLast       types.Commitment
}

// VanillaProofs is a full PoSt session. PubSectors[i] is proven by
// Proofs[i]; both are padded to a whole number of partitions.
type VanillaProofs struct {
	Version    uint64
	Config     types.PoStConfig
	Randomness types.ChallengeSeed
	Prover     types.ProverID
	Partitions uint64
	PubSectors []types.PublicSector
	Proofs     []SectorProof
}

// Partition returns the sectors and proofs of partition k.
func (vp *VanillaProofs) Partition(k uint64) ([]types.PublicSector, []SectorProof, error) {
	n := vp.Config.SectorCount
	if k >= vp.Partitions || (k+1)*n > uint64(len(vp.Proofs)) || len(vp.Proofs) != len(vp.PubSectors) {
		return nil, nil, types.NewConfigurationError("partition %d out of range (%d partitions)", k, vp.Partitions)
	}
	return vp.PubSectors[k*n : (k+1)*n], vp.Proofs[k*n : (k+1)*n], nil
}

func sectorUnavailable(id types.SectorID, cause error) error {
	return types.NewProofError(xerrors.Errorf("sector %d: %v: %w", id, cause, types.ErrSectorUnavailable), types.ConfigurationError)
}

// GenerateVanillaProofs proves every public sector. A sector the prover
// cannot produce fails the whole session.
func GenerateVanillaProofs(ctx context.Context, cfg types.PoStConfig, randomness types.ChallengeSeed, prover types.ProverID, pub []types.PublicSector, priv map[types.SectorID]PrivateSector, provider store.Provider) (*VanillaProofs, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(pub) == 0 {
		return nil, types.NewConfigurationError("no sectors to prove")
	}

	shape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	if err != nil {
		return nil, err
	}

	sw := metrics.PoStProofTime.Start(ctx)
	metrics.PoStSessions.Inc(ctx, 1)

	proofs := make([]SectorProof, len(pub))
	eg, ectx := errgroup.WithContext(ctx)
	for i := range pub {
		i := i
		eg.Go(func() error {
			p, err := proveSector(ectx, cfg, shape, randomness, prover, pub[i], priv, provider)
			if err != nil {
				return err
			}
			proofs[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	pubOut := PadSectors(cfg, pub)
	for len(proofs) < len(pubOut) {
		proofs = append(proofs, proofs[len(proofs)-1])
	}
	partitions := uint64(len(pubOut)) / cfg.SectorCount

	log.Infow("assembled vanilla post proofs", "type", cfg.Type, "sectors", len(pub), "partitions", partitions, "took", sw.Stop())

	return &VanillaProofs{
		Version:    types.ProofVersion,
		Config:     cfg,
		Randomness: randomness,
		Prover:     prover,
		Partitions: partitions,
		PubSectors: pubOut,
		Proofs:     proofs,
	}, nil
}

func proveSector(ctx context.Context, cfg types.PoStConfig, shape merkle.Shape, randomness types.ChallengeSeed, prover types.ProverID, pub types.PublicSector, priv map[types.SectorID]PrivateSector, provider store.Provider) (SectorProof, error) {
	ps, ok := priv[pub.ID]
	if !ok {
		return SectorProof{}, sectorUnavailable(pub.ID, xerrors.New("no private inputs"))
	}
	if types.Commitment(shape.Hasher.HashNodes([]hasher.Domain{ps.CommC.Domain(), ps.CommRLast.Domain()})) != pub.CommR {
		return SectorProof{}, types.NewConfigurationError("sector %d: private commitments do not match comm_r", pub.ID)
	}

	st, err := store.OpenComplete(ctx, provider, ps.TreeRLast)
	if err != nil {
		return SectorProof{}, sectorUnavailable(pub.ID, err)
	}
	tree, err := shape.Open(st, cfg.Nodes())
	if err != nil {
		return SectorProof{}, sectorUnavailable(pub.ID, err)
	}
	if types.Commitment(tree.Root()) != ps.CommRLast {
		return SectorProof{}, sectorUnavailable(pub.ID, xerrors.New("replica tree does not match comm_r_last"))
	}

	out := SectorProof{CommC: ps.CommC, CommRLast: ps.CommRLast}
	for _, c := range GenerateSectorChallenge(cfg, randomness, prover, pub.ID) {
		p, err := tree.GenProof(c)
		if err != nil {
			return SectorProof{}, xerrors.Errorf("sector %d challenge %d: %w", pub.ID, c, err)
		}
		out.InclusionProofs = append(out.InclusionProofs, p)
	}
	return out, nil
}

// PadSectors repeats the last sector until the list fills whole partitions.
func PadSectors(cfg types.PoStConfig, pub []types.PublicSector) []types.PublicSector {
	out := append([]types.PublicSector{}, pub...)
	if len(out) == 0 {
		return out
	}
	partitions := (uint64(len(out)) + cfg.SectorCount - 1) / cfg.SectorCount
	for uint64(len(out)) < partitions*cfg.SectorCount {
		out = append(out, out[len(out)-1])
	}
	return out
}

// VerifyVanillaProofs checks a PoSt session over the given sectors against
// the verifier's own randomness and prover id. Only malformed configuration
// is an error.
func VerifyVanillaProofs(cfg types.PoStConfig, randomness types.ChallengeSeed, prover types.ProverID, sectors []types.PublicSector, vp *VanillaProofs) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if vp.Version != types.ProofVersion {
		return false, types.NewConfigurationError("unsupported vanilla proof version %d", vp.Version)
	}
	shape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	if err != nil {
		return false, err
	}
	h := shape.Hasher

	expected := PadSectors(cfg, sectors)
	if len(expected) == 0 || len(vp.PubSectors) != len(expected) || len(vp.Proofs) != len(expected) {
		return false, nil
	}
	if uint64(len(expected)) != vp.Partitions*cfg.SectorCount {
		return false, nil
	}

	for i, pub := range expected {
		if vp.PubSectors[i] != pub {
			return false, nil
		}

		sp := vp.Proofs[i]
		if types.Commitment(h.HashNodes([]hasher.Domain{sp.CommC.Domain(), sp.CommRLast.Domain()})) != pub.CommR {
			log.Warnw("post proof does not match comm_r", "sector", pub.ID)
			return false, nil
		}

		challenges := GenerateSectorChallenge(cfg, randomness, prover, pub.ID)
		if len(sp.InclusionProofs) != len(challenges) {
			return false, nil
		}
		for j, c := range challenges {
			p := sp.InclusionProofs[j]
			if !merkle.VerifyProof(shape, cfg.Nodes(), sp.CommRLast.Domain(), p.Leaf, c, p) {
				log.Warnw("post inclusion proof failed", "sector", pub.ID, "challenge", j)
				return false, nil
			}
		}
	}
	return true, nil
}

// GenerateWindowPoSt compresses a session through the SNARK backend.
func GenerateWindowPoSt(ctx context.Context, backend snark.Backend, vp *VanillaProofs) ([]byte, error) {
	raw, err := types.Marshal(vp)
	if err != nil {
		return nil, err
	}
	return backend.GenerateWindowPoStWithVanilla(ctx, vp.Config, raw, vp.Prover)
}

// VerifyWindowPoSt checks a compressed proof through the SNARK backend.
func VerifyWindowPoSt(ctx context.Context, backend snark.Backend, cfg types.PoStConfig, info snark.WindowPoStVerifyInfo) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	return backend.VerifyWindowPoSt(ctx, cfg, info)
}
