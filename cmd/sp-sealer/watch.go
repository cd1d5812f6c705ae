package main

import (
	"context"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/sealing"
)

type stateUpdate struct {
	num   abi.SectorNumber
	state sealing.SectorState
}

// watcher collects state updates from the sealing state machine. Sends never
// block the planner; a dropped update is made up for by polling.
type watcher struct {
	updates chan stateUpdate
}

func newWatcher(buffer int) *watcher {
	return &watcher{updates: make(chan stateUpdate, buffer)}
}

func (w *watcher) notify(num abi.SectorNumber, state sealing.SectorState) {
	select {
	case w.updates <- stateUpdate{num, state}:
	default:
		log.Debugw("dropping sector update", "sector", num, "state", sealing.SectorStates[state])
	}
}

// waitSealed blocks until sector num is Proving or FailedUnrecoverable.
func (w *watcher) waitSealed(ctx context.Context, num abi.SectorNumber, poll time.Duration, info func(abi.SectorNumber) (sealing.SectorInfo, error)) (sealing.SectorInfo, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case u := <-w.updates:
			if u.num != num {
				continue
			}
			log.Infow("sector update", "sector", num, "state", sealing.SectorStates[u.state])
		case <-ticker.C:
		case <-ctx.Done():
			return sealing.SectorInfo{}, ctx.Err()
		}

		si, err := info(num)
		if err != nil {
			// not persisted yet
			continue
		}
		switch si.State {
		case sealing.Proving:
			return si, nil
		case sealing.FailedUnrecoverable:
			return si, xerrors.Errorf("sealing sector %d failed: %s", num, si.LastErr)
		}
	}
}
