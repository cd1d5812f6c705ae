package main

import (
	"context"
	"crypto/rand"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// localNode draws tickets and seeds from the system randomness and hands
// seeds out immediately.
type localNode struct{}

var _ node.Interface = localNode{}

func randomBytes() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	b[31] &= 0x3f
	return b, nil
}

func (localNode) GetSealTicket(context.Context) (node.SealTicket, error) {
	b, err := randomBytes()
	if err != nil {
		return node.SealTicket{}, err
	}
	return node.SealTicket{Value: b}, nil
}

func (localNode) GetSealSeed(ctx context.Context, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
	seedChan := make(chan node.SealSeed, 1)
	errChan := make(chan *node.GetSealSeedError, 1)

	b, err := randomBytes()
	if err != nil {
		errChan <- node.NewGetSealSeedError(err, node.GetSealSeedFailedError)
	} else {
		seedChan <- node.SealSeed{Epoch: abi.ChainEpoch(interval), Value: b}
	}

	return seedChan, make(chan node.SeedInvalidated), errChan
}
