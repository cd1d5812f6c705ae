package storage

import (
	"context"
	"io"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/post"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type Interface interface {
	// PledgeSector allocates a new sector, fills it with zeros and seals that
	// sector.
	PledgeSector(ctx context.Context) (abi.SectorNumber, error)

	// SealSector writes the provided data to a newly-created sector which it
	// immediately seals.
	SealSector(ctx context.Context, r io.Reader) (abi.SectorNumber, error)

	// GetSectorInfo produces information about a sector managed by this
	// miner, or an error if the miner does not manage a sector with the
	// provided identity.
	GetSectorInfo(sectorNum abi.SectorNumber) (sealing.SectorInfo, error)

	// ListSectors lists all the sectors managed by this miner (sealed
	// or otherwise).
	ListSectors() ([]sealing.SectorInfo, error)

	// ForceSectorState puts a sector with given ID into the given state.
	ForceSectorState(ctx context.Context, num abi.SectorNumber, state sealing.SectorState) error

	// GenerateWindowPoStChallenges derives the challenged leaves of every
	// given sector.
	GenerateWindowPoStChallenges(randomness types.ChallengeSeed, sectors []abi.SectorNumber) (*post.Challenges, error)

	// GenerateWindowPoSt proves the given proving sectors and returns the
	// public sector list the proof is checked against.
	GenerateWindowPoSt(ctx context.Context, randomness types.ChallengeSeed, sectors []abi.SectorNumber) ([]types.PublicSector, []byte, error)
}
