package test

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/snark/passthrough"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// brokenProver fails every seal proof compression.
type brokenProver struct {
	passthrough.Backend
}

var _ snark.Backend = brokenProver{}

func (brokenProver) SealCommitPhase2(context.Context, types.PoRepConfig, []byte, types.SectorID, types.ProverID) ([]byte, error) {
	return nil, types.NewProofError(xerrors.New("prover is out of order"), types.ProofAssemblyError)
}
