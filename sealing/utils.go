package sealing

import (
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"
)

func handle(format string, x ...interface{}) error {
	err := xerrors.Errorf(format, x...)
	log.Error(err)

	return err
}

func (m *Sealing) ListSectors() ([]SectorInfo, error) {
	var sectors []SectorInfo
	if err := m.sectors.List(&sectors); err != nil {
		return nil, err
	}
	return sectors, nil
}

func (m *Sealing) GetSectorInfo(num abi.SectorNumber) (SectorInfo, error) {
	var out SectorInfo
	err := m.sectors.Get(uint64(num)).Get(&out)
	return out, err
}
