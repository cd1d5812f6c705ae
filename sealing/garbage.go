package sealing

import (
	"context"
	"io"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/fr32"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// pledgeReader yields the user bytes of a committed capacity sector.
func (m *Sealing) pledgeReader() io.Reader {
	return io.LimitReader(zeroReader{}, int64(fr32.UserBytesForSectorSize(m.cfg.SectorSize)))
}

// PledgeSector allocates a new sector, fills it with zeros and seals that
// sector.
func (m *Sealing) PledgeSector(ctx context.Context) (abi.SectorNumber, error) {
	num, err := m.SealSector(ctx, m.pledgeReader())
	if err != nil {
		return 0, handle("pledge sector failed: %w", err)
	}

	log.Infow("pledged sector", "sector", num)
	return num, nil
}
