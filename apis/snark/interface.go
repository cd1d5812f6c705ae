package snark

import (
	"context"

	"github.com/filecoin-project/go-storage-proofs/types"
)

// SealVerifyInfo is everything a verifier needs to check a seal proof.
type SealVerifyInfo struct {
	Sector types.SectorID
	Prover types.ProverID
	Ticket types.Ticket
	Seed   types.ChallengeSeed
	CommD  types.Commitment
	CommR  types.Commitment
	Proof  []byte
}

// WindowPoStVerifyInfo is everything a verifier needs to check a PoSt proof.
type WindowPoStVerifyInfo struct {
	Randomness types.ChallengeSeed
	Prover     types.ProverID
	Sectors    []types.PublicSector
	Proof      []byte
}

// Backend compresses vanilla proofs into succinct proofs and verifies them.
// Vanilla proofs are handed over in their serialized form.
type Backend interface {
	SealCommitPhase2(ctx context.Context, cfg types.PoRepConfig, commitPhase1Out []byte, sector types.SectorID, prover types.ProverID) ([]byte, error)
	VerifySeal(ctx context.Context, cfg types.PoRepConfig, info SealVerifyInfo) (bool, error)

	GenerateWindowPoStWithVanilla(ctx context.Context, cfg types.PoStConfig, vanillaProofs []byte, prover types.ProverID) ([]byte, error)
	VerifyWindowPoSt(ctx context.Context, cfg types.PoStConfig, info WindowPoStVerifyInfo) (bool, error)
}
