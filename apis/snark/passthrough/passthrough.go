// Package passthrough is a snark.Backend whose "succinct" proofs are the
// serialized vanilla proofs. It is useful to exercise a pipeline end to end
// without a circuit backend.
package passthrough

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/post"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type Backend struct{}

var _ snark.Backend = Backend{}

func (Backend) SealCommitPhase2(_ context.Context, cfg types.PoRepConfig, commitPhase1Out []byte, sector types.SectorID, prover types.ProverID) ([]byte, error) {
	var c1 seal.Commit1Output
	if err := types.Unmarshal(commitPhase1Out, &c1); err != nil {
		return nil, err
	}
	if c1.Config != cfg || c1.Sector != sector || c1.Prover != prover {
		return nil, types.NewConfigurationError("commit phase 1 output is not about sector %d", sector)
	}

	ok, err := seal.VerifySealVanilla(&c1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewProofAssemblyError("vanilla proofs of sector %d do not verify", sector)
	}
	return commitPhase1Out, nil
}

func (Backend) VerifySeal(_ context.Context, cfg types.PoRepConfig, info snark.SealVerifyInfo) (bool, error) {
	var c1 seal.Commit1Output
	if err := types.Unmarshal(info.Proof, &c1); err != nil {
		return false, xerrors.Errorf("decoding seal proof: %w", err)
	}

	if c1.Config != cfg || c1.Sector != info.Sector || c1.Prover != info.Prover ||
		c1.Ticket != info.Ticket || c1.Seed != info.Seed || c1.CommD != info.CommD || c1.CommR != info.CommR {
		return false, nil
	}
	return seal.VerifySealVanilla(&c1)
}

func (Backend) GenerateWindowPoStWithVanilla(_ context.Context, cfg types.PoStConfig, vanillaProofs []byte, prover types.ProverID) ([]byte, error) {
	var vp post.VanillaProofs
	if err := types.Unmarshal(vanillaProofs, &vp); err != nil {
		return nil, err
	}
	if vp.Config != cfg || vp.Prover != prover {
		return nil, types.NewConfigurationError("vanilla proofs were generated for another session")
	}
	return vanillaProofs, nil
}

func (Backend) VerifyWindowPoSt(_ context.Context, cfg types.PoStConfig, info snark.WindowPoStVerifyInfo) (bool, error) {
	var vp post.VanillaProofs
	if err := types.Unmarshal(info.Proof, &vp); err != nil {
		return false, xerrors.Errorf("decoding post proof: %w", err)
	}
	return post.VerifyVanillaProofs(cfg, info.Randomness, info.Prover, info.Sectors, &vp)
}
