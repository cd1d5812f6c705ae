package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-storage-proofs/sealing"
)

func TestNotifyNeverBlocks(t *testing.T) {
	w := newWatcher(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.notify(abi.SectorNumber(i), sealing.PreCommit1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notify blocked on a full buffer")
	}
	assert.Len(t, w.updates, 1)
}

func TestWaitSealedPollsDroppedUpdates(t *testing.T) {
	w := newWatcher(1)
	w.notify(7, sealing.WaitSeed)
	// dropped, the buffer is full
	w.notify(3, sealing.Proving)

	var lk sync.Mutex
	state := sealing.Committing
	info := func(num abi.SectorNumber) (sealing.SectorInfo, error) {
		lk.Lock()
		defer lk.Unlock()
		return sealing.SectorInfo{SectorNum: num, State: state}, nil
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		lk.Lock()
		state = sealing.Proving
		lk.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	si, err := w.waitSealed(ctx, 3, time.Millisecond, info)
	require.NoError(t, err)
	assert.Equal(t, sealing.Proving, si.State)
}

func TestWaitSealedReportsFailure(t *testing.T) {
	w := newWatcher(4)
	w.notify(3, sealing.FailedUnrecoverable)

	info := func(num abi.SectorNumber) (sealing.SectorInfo, error) {
		return sealing.SectorInfo{SectorNum: num, State: sealing.FailedUnrecoverable, LastErr: "prover is out of order"}, nil
	}

	_, err := w.waitSealed(context.Background(), 3, time.Hour, info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prover is out of order")
}
