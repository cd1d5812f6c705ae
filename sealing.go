package storage

import (
	"context"
	"io"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/sealing"
)

// SealSector stages data into a newly allocated sector and starts sealing.
func (m *Miner) SealSector(ctx context.Context, r io.Reader) (abi.SectorNumber, error) {
	return m.sealing.SealSector(ctx, r)
}

// ListSectors lists all the sectors managed by this miner (sealed
// or otherwise).
func (m *Miner) ListSectors() ([]sealing.SectorInfo, error) {
	return m.sealing.ListSectors()
}

// GetSectorInfo produces information about a sector managed by this miner,
// or an error if the miner does not manage a sector with the provided
// identity.
func (m *Miner) GetSectorInfo(sectorNum abi.SectorNumber) (sealing.SectorInfo, error) {
	return m.sealing.GetSectorInfo(sectorNum)
}

// PledgeSector allocates a new sector, fills it with zeros, and seals that
// sector.
func (m *Miner) PledgeSector(ctx context.Context) (abi.SectorNumber, error) {
	return m.sealing.PledgeSector(ctx)
}

// ForceSectorState puts a sector with given ID into the given state.
func (m *Miner) ForceSectorState(ctx context.Context, num abi.SectorNumber, state sealing.SectorState) error {
	return m.sealing.ForceSectorState(ctx, num, state)
}
