package storage

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// VerifySector checks the seal proof a sector ended up with.
func (m *Miner) VerifySector(ctx context.Context, num abi.SectorNumber) (bool, error) {
	si, err := m.sealing.GetSectorInfo(num)
	if err != nil {
		return false, xerrors.Errorf("getting sector %d: %w", num, err)
	}
	if len(si.Proof) == 0 {
		return false, types.NewConfigurationError("sector %d has no seal proof yet", num)
	}

	return seal.VerifySeal(ctx, m.backend, m.sealing.Config(), snark.SealVerifyInfo{
		Sector: num,
		Prover: m.prover,
		Ticket: si.Ticket.Ticket(),
		Seed:   si.Seed.Seed(),
		CommD:  si.CommD,
		CommR:  si.CommR,
		Proof:  si.Proof,
	})
}

// UnsealRange returns the raw bytes held by nodes [offset, offset+count) of
// a sealed sector.
func (m *Miner) UnsealRange(ctx context.Context, num abi.SectorNumber, offset, count uint64) ([]byte, error) {
	si, err := m.sealing.GetSectorInfo(num)
	if err != nil {
		return nil, xerrors.Errorf("getting sector %d: %w", num, err)
	}

	var p1 seal.PreCommit1Output
	if err := types.Unmarshal(si.PreCommit1Out, &p1); err != nil {
		return nil, xerrors.Errorf("sector %d pre-commit output: %w", num, err)
	}
	var p2 seal.PreCommit2Output
	if err := types.Unmarshal(si.PreCommit2Out, &p2); err != nil {
		return nil, xerrors.Errorf("sector %d pre-commit output: %w", num, err)
	}

	return seal.Unseal(ctx, m.provider, &p1, &p2, offset, count)
}
