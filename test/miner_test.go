package test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	storage "github.com/filecoin-project/go-storage-proofs"
	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/snark/passthrough"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/fr32"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const (
	DefaultSectorNum = 0
	TestProof        = abi.RegisteredSealProof_StackedDrg2KiBV1_1
)

var testProver = types.ProverID{9, 9, 9}

func testOptions() sealing.Options {
	return sealing.Options{
		RetryDelay:  time.Millisecond,
		MaxFailures: 2,
	}
}

func newTestMiner(t *testing.T, n node.Interface, backend snark.Backend, onSectorUpdated func(abi.SectorNumber, sealing.SectorState)) *storage.Miner {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	provider := store.NewDatastoreProvider(ds)

	miner, err := storage.NewMinerWithOnSectorUpdated(n, backend, provider, ds, TestProof, testProver, testOptions(), onSectorUpdated)
	require.NoError(t, err)
	return miner
}

func waitFor(t *testing.T, doneCh <-chan struct{}, status func() string) {
	select {
	case <-doneCh:
		// success; we're done
	case <-time.After(30 * time.Second):
		t.Fatalf("timed out waiting for sequence to complete: %s", status())
	}
}

func TestSuccessfulSealingFlow(t *testing.T) {
	ctx := context.Background()

	// a sequence of sector state transitions we expect to observe
	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.Committing).
		then(sealing.ComputeProof).
		then(sealing.FinalizeSector).
		then(sealing.Proving).
		end()

	miner := newTestMiner(t, newFakeNode(), passthrough.Backend{}, onSectorUpdatedFunc)

	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()

	// start the internal runloop
	require.NoError(t, miner.Run(ctx))

	raw := make([]byte, fr32.UserBytesForSectorSize(2<<10))
	rand.New(rand.NewSource(42)).Read(raw) //nolint:gosec

	num, err := miner.SealSector(ctx, bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, abi.SectorNumber(DefaultSectorNum), num)

	waitFor(t, doneCh, getSequenceStatusFunc)

	info, err := miner.GetSectorInfo(num)
	require.NoError(t, err)
	assert.Equal(t, sealing.Proving, info.State)
	assert.False(t, info.CommR.IsZero())
	assert.NotEmpty(t, info.Proof)

	ok, err := miner.VerifySector(ctx, num)
	require.NoError(t, err)
	assert.True(t, ok)

	// labels were dropped when finalizing, unsealing recomputes them
	out, err := miner.UnsealRange(ctx, num, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, raw[127:127*3], out)

	randomness := types.ChallengeSeed{4, 2}
	pub, proof, err := miner.GenerateWindowPoSt(ctx, randomness, []abi.SectorNumber{num})
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, info.CommR, pub[0].CommR)

	ok, err = miner.VerifyPoSt(ctx, types.PoStTypeWindow, snark.WindowPoStVerifyInfo{
		Randomness: randomness,
		Prover:     testProver,
		Sectors:    pub,
		Proof:      proof,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = miner.VerifyPoSt(ctx, types.PoStTypeWindow, snark.WindowPoStVerifyInfo{
		Randomness: types.ChallengeSeed{1},
		Prover:     testProver,
		Sectors:    pub,
		Proof:      proof,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	pub, proof, err = miner.GenerateWinningPoSt(ctx, randomness, num)
	require.NoError(t, err)
	ok, err = miner.VerifyPoSt(ctx, types.PoStTypeWinning, snark.WindowPoStVerifyInfo{
		Randomness: randomness,
		Prover:     testProver,
		Sectors:    pub,
		Proof:      proof,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	challenges, err := miner.GenerateWindowPoStChallenges(randomness, []abi.SectorNumber{num})
	require.NoError(t, err)
	assert.Len(t, challenges.Sectors[num], types.WindowPoStChallengeCount)

	sectors, err := miner.ListSectors()
	require.NoError(t, err)
	assert.Len(t, sectors, 1)
}

func TestPledgeSector(t *testing.T) {
	ctx := context.Background()

	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.Committing).
		then(sealing.ComputeProof).
		then(sealing.FinalizeSector).
		then(sealing.Proving).
		end()

	miner := newTestMiner(t, newFakeNode(), passthrough.Backend{}, onSectorUpdatedFunc)
	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()
	require.NoError(t, miner.Run(ctx))

	num, err := miner.PledgeSector(ctx)
	require.NoError(t, err)

	waitFor(t, doneCh, getSequenceStatusFunc)

	out, err := miner.UnsealRange(ctx, num, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 127), out)
}

func TestSeedFailureRetriesPreCommit2(t *testing.T) {
	ctx := context.Background()

	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.SealPreCommit2Failed).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.Committing).
		then(sealing.ComputeProof).
		then(sealing.FinalizeSector).
		then(sealing.Proving).
		end()

	n := newFakeNode()
	n.getSealSeed = func(ctx context.Context, call int, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
		if call == 0 {
			return seedFailed(node.NewGetSealSeedError(xerrors.New("chain went away"), node.GetSealSeedFailedError))
		}
		return seedReady(node.SealSeed{Epoch: 100, Value: []byte{1}})
	}

	miner := newTestMiner(t, n, passthrough.Backend{}, onSectorUpdatedFunc)
	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()
	require.NoError(t, miner.Run(ctx))

	_, err := miner.PledgeSector(ctx)
	require.NoError(t, err)

	waitFor(t, doneCh, getSequenceStatusFunc)

	info, err := miner.GetSectorInfo(DefaultSectorNum)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Failures)
	assert.Contains(t, info.LastErr, "chain went away")
}

func TestInvalidatedSeedIsRequestedAgain(t *testing.T) {
	ctx := context.Background()

	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.Committing).
		then(sealing.ComputeProof).
		then(sealing.FinalizeSector).
		then(sealing.Proving).
		end()

	n := newFakeNode()
	n.getSealSeed = func(ctx context.Context, call int, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
		if call == 0 {
			return seedInvalidated()
		}
		return seedReady(node.SealSeed{Epoch: 200, Value: []byte{9}})
	}

	miner := newTestMiner(t, n, passthrough.Backend{}, onSectorUpdatedFunc)
	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()
	require.NoError(t, miner.Run(ctx))

	_, err := miner.PledgeSector(ctx)
	require.NoError(t, err)

	waitFor(t, doneCh, getSequenceStatusFunc)

	assert.Equal(t, 2, n.calls())
	info, err := miner.GetSectorInfo(DefaultSectorNum)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, info.Seed.Value)
	assert.Equal(t, uint64(0), info.Failures)
}

func TestFatalSeedError(t *testing.T) {
	ctx := context.Background()

	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.FailedUnrecoverable).
		end()

	n := newFakeNode()
	n.getSealSeed = func(ctx context.Context, call int, sectorNum abi.SectorNumber, commR types.Commitment, interval uint64) (<-chan node.SealSeed, <-chan node.SeedInvalidated, <-chan *node.GetSealSeedError) {
		return seedFailed(node.NewGetSealSeedError(xerrors.New("sector expired"), node.GetSealSeedFatalError))
	}

	miner := newTestMiner(t, n, passthrough.Backend{}, onSectorUpdatedFunc)
	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()
	require.NoError(t, miner.Run(ctx))

	_, err := miner.PledgeSector(ctx)
	require.NoError(t, err)

	waitFor(t, doneCh, getSequenceStatusFunc)

	// only proving sectors can be proven
	_, _, err = miner.GenerateWindowPoSt(ctx, types.ChallengeSeed{1}, []abi.SectorNumber{DefaultSectorNum})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, types.ErrSectorUnavailable))
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

func TestProverFailureGivesUp(t *testing.T) {
	ctx := context.Background()

	onSectorUpdatedFunc, getSequenceStatusFunc, doneCh := begin(t, DefaultSectorNum, sealing.Packing).
		then(sealing.PreCommit1).
		then(sealing.PreCommit2).
		then(sealing.WaitSeed).
		then(sealing.Committing).
		then(sealing.ComputeProof).
		then(sealing.ComputeProofFailed).
		then(sealing.ComputeProof).
		then(sealing.ComputeProofFailed).
		then(sealing.FailedUnrecoverable).
		end()

	miner := newTestMiner(t, newFakeNode(), brokenProver{}, onSectorUpdatedFunc)
	defer func() {
		require.NoError(t, miner.Stop(ctx))
	}()
	require.NoError(t, miner.Run(ctx))

	_, err := miner.PledgeSector(ctx)
	require.NoError(t, err)

	waitFor(t, doneCh, getSequenceStatusFunc)

	info, err := miner.GetSectorInfo(DefaultSectorNum)
	require.NoError(t, err)
	assert.Contains(t, info.LastErr, "prover is out of order")
}
