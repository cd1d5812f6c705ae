package test

import (
	"context"
	"sync"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type fakeNode struct {
	lk        sync.Mutex
	seedCalls int

	getSealTicket func(context.Context) (node.SealTicket, error)
	getSealSeed   func(ctx context.Context, call int, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError)
}

var _ node.Interface = (*fakeNode)(nil)

func newFakeNode() *fakeNode {
	return &fakeNode{
		getSealTicket: func(context.Context) (node.SealTicket, error) {
			return node.SealTicket{
				Epoch: 42,
				Value: []byte{1, 2, 3},
			}, nil
		},
		getSealSeed: func(ctx context.Context, call int, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
			return seedReady(node.SealSeed{
				Epoch: 42 + abi.ChainEpoch(interval),
				Value: []byte{5, 6, 7},
			})
		},
	}
}

func seedReady(seed node.SealSeed) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
	seedChan := make(chan node.SealSeed)
	go func() {
		seedChan <- seed
	}()

	return seedChan, make(chan node.SeedInvalidated), make(chan *node.GetSealSeedError)
}

func seedInvalidated() (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
	invalidated := make(chan node.SeedInvalidated)
	go func() {
		invalidated <- node.SeedInvalidated{}
	}()

	return make(chan node.SealSeed), invalidated, make(chan *node.GetSealSeedError)
}

func seedFailed(err *node.GetSealSeedError) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
	errChan := make(chan *node.GetSealSeedError)
	go func() {
		errChan <- err
	}()

	return make(chan node.SealSeed), make(chan node.SeedInvalidated), errChan
}

func (f *fakeNode) calls() int {
	f.lk.Lock()
	defer f.lk.Unlock()
	return f.seedCalls
}

func (f *fakeNode) GetSealTicket(ctx context.Context) (node.SealTicket, error) {
	return f.getSealTicket(ctx)
}

func (f *fakeNode) GetSealSeed(ctx context.Context, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
	f.lk.Lock()
	call := f.seedCalls
	f.seedCalls++
	f.lk.Unlock()

	return f.getSealSeed(ctx, call, sectorNum, commR, interval)
}
