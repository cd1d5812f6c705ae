package node

import (
	"bytes"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/types"
)

type SeedInvalidated struct{}

type SealTicket struct {
	Epoch abi.ChainEpoch
	Value []byte
}

func (t *SealTicket) Ticket() types.Ticket {
	var out types.Ticket
	copy(out[:], t.Value)
	return out
}

type SealSeed struct {
	Epoch abi.ChainEpoch
	Value []byte
}

func (t *SealSeed) Seed() types.ChallengeSeed {
	var out types.ChallengeSeed
	copy(out[:], t.Value)
	return out
}

func (t *SealSeed) Equals(o *SealSeed) bool {
	return bytes.Equal(t.Value, o.Value) && t.Epoch == o.Epoch
}
