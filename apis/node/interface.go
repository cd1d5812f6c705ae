package node

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/types"
)

// Interface is the randomness source the sealing pipeline depends on.
type Interface interface {
	// GetSealTicket produces the randomness a replica is bound to when
	// labeling starts.
	GetSealTicket(context.Context) (SealTicket, error)

	// GetSealSeed requests the interactive challenge seed of a sector whose
	// replica commitment is commR. The seed is delivered through the returned
	// channel once interval epochs have passed. The invalidated channel fires
	// if the seed has to be drawn again.
	GetSealSeed(ctx context.Context, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan SealSeed, <-chan SeedInvalidated, <-chan *GetSealSeedError)
}
