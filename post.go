package storage

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/post"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

func (m *Miner) postConfig(typ types.PoStType) (types.PoStConfig, error) {
	return types.PoStConfigFor(m.sealing.Config().SectorSize, typ)
}

// GenerateWindowPoStChallenges derives the challenged leaves of every sector.
func (m *Miner) GenerateWindowPoStChallenges(randomness types.ChallengeSeed, sectors []abi.SectorNumber) (*post.Challenges, error) {
	cfg, err := m.postConfig(types.PoStTypeWindow)
	if err != nil {
		return nil, err
	}
	return post.GenerateSectorChallenges(cfg, randomness, m.prover, sectors)
}

// GenerateWindowPoSt proves every given sector. Sectors which are not
// proving fail the whole session.
func (m *Miner) GenerateWindowPoSt(ctx context.Context, randomness types.ChallengeSeed, sectors []abi.SectorNumber) ([]types.PublicSector, []byte, error) {
	cfg, err := m.postConfig(types.PoStTypeWindow)
	if err != nil {
		return nil, nil, err
	}
	return m.generatePoSt(ctx, cfg, randomness, sectors)
}

// GenerateWinningPoSt proves a single sector with the winning parameters.
func (m *Miner) GenerateWinningPoSt(ctx context.Context, randomness types.ChallengeSeed, sector abi.SectorNumber) ([]types.PublicSector, []byte, error) {
	cfg, err := m.postConfig(types.PoStTypeWinning)
	if err != nil {
		return nil, nil, err
	}
	return m.generatePoSt(ctx, cfg, randomness, []abi.SectorNumber{sector})
}

// VerifyPoSt checks a proof produced by GenerateWindowPoSt or
// GenerateWinningPoSt.
func (m *Miner) VerifyPoSt(ctx context.Context, typ types.PoStType, info snark.WindowPoStVerifyInfo) (bool, error) {
	cfg, err := m.postConfig(typ)
	if err != nil {
		return false, err
	}
	return post.VerifyWindowPoSt(ctx, m.backend, cfg, info)
}

func (m *Miner) generatePoSt(ctx context.Context, cfg types.PoStConfig, randomness types.ChallengeSeed, sectors []abi.SectorNumber) ([]types.PublicSector, []byte, error) {
	pub := make([]types.PublicSector, 0, len(sectors))
	priv := make(map[types.SectorID]post.PrivateSector, len(sectors))
	for _, num := range sectors {
		ps, err := m.provingSector(num)
		if err != nil {
			return nil, nil, err
		}
		pub = append(pub, types.PublicSector{ID: num, CommR: ps.commR})
		priv[num] = ps.priv
	}

	vp, err := post.GenerateVanillaProofs(ctx, cfg, randomness, m.prover, pub, priv, m.provider)
	if err != nil {
		return nil, nil, xerrors.Errorf("generating vanilla proofs: %w", err)
	}

	proof, err := post.GenerateWindowPoSt(ctx, m.backend, vp)
	if err != nil {
		return nil, nil, xerrors.Errorf("compressing post proof: %w", err)
	}
	return pub, proof, nil
}

type provingSector struct {
	commR types.Commitment
	priv  post.PrivateSector
}

func (m *Miner) provingSector(num abi.SectorNumber) (provingSector, error) {
	si, err := m.sealing.GetSectorInfo(num)
	if err != nil {
		return provingSector{}, types.NewProofError(xerrors.Errorf("sector %d: %v: %w", num, err, types.ErrSectorUnavailable), types.ConfigurationError)
	}
	if si.State != sealing.Proving {
		return provingSector{}, types.NewProofError(xerrors.Errorf("sector %d is %s: %w", num, sealing.SectorStates[si.State], types.ErrSectorUnavailable), types.ConfigurationError)
	}

	var p2 seal.PreCommit2Output
	if err := types.Unmarshal(si.PreCommit2Out, &p2); err != nil {
		return provingSector{}, err
	}

	return provingSector{
		commR: p2.CommR,
		priv: post.PrivateSector{
			ID:        num,
			CommC:     p2.PersistentAux.CommC,
			CommRLast: p2.PersistentAux.CommRLast,
			TreeRLast: p2.TemporaryAux.TreeRLast,
		},
	}, nil
}
