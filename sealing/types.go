package sealing

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type Log struct {
	Timestamp uint64
	Trace     string // for errors

	Message string

	// additional data (Event info)
	Kind string
}

// SectorInfo is the durable record of one sector. Phase outputs are kept in
// their serialized form; they are the only thing handed from one phase to
// the next.
type SectorInfo struct {
	State           SectorState
	SectorNum       abi.SectorNumber
	RegisteredProof abi.RegisteredSealProof

	// Packing
	Data types.StoreConfig

	// PreCommit1
	Ticket        node.SealTicket
	PreCommit1Out []byte
	CommD         types.Commitment

	// PreCommit2
	PreCommit2Out []byte
	CommR         types.Commitment

	// WaitSeed
	Seed node.SealSeed

	// Committing
	CommitPhase1Out []byte

	// ComputeProof
	Proof []byte

	// Debug
	Failures uint64
	LastErr  string

	Log []Log
}

var (
	_ cbg.CBORMarshaler   = (*SectorInfo)(nil)
	_ cbg.CBORUnmarshaler = (*SectorInfo)(nil)
)

type sectorInfoRaw SectorInfo

func (t *SectorInfo) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	return types.Encode(w, (*sectorInfoRaw)(t))
}

func (t *SectorInfo) UnmarshalCBOR(r io.Reader) error {
	*t = SectorInfo{}
	return types.Decode(r, (*sectorInfoRaw)(t))
}

func (t *SectorInfo) config() (types.PoRepConfig, error) {
	return types.PoRepConfigFor(t.RegisteredProof)
}

func (t *SectorInfo) preCommit1() (*seal.PreCommit1Output, error) {
	if len(t.PreCommit1Out) == 0 {
		return nil, xerrors.Errorf("sector %d has no pre-commit phase 1 output", t.SectorNum)
	}
	var out seal.PreCommit1Output
	if err := types.Unmarshal(t.PreCommit1Out, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *SectorInfo) preCommit2() (*seal.PreCommit2Output, error) {
	if len(t.PreCommit2Out) == 0 {
		return nil, xerrors.Errorf("sector %d has no pre-commit phase 2 output", t.SectorNum)
	}
	var out seal.PreCommit2Output
	if err := types.Unmarshal(t.PreCommit2Out, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *SectorInfo) commit1() (*seal.Commit1Output, error) {
	if len(t.CommitPhase1Out) == 0 {
		return nil, xerrors.Errorf("sector %d has no commit phase 1 output", t.SectorNum)
	}
	var out seal.Commit1Output
	if err := types.Unmarshal(t.CommitPhase1Out, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
