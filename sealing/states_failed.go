package sealing

import (
	"time"

	"github.com/filecoin-project/go-statemachine"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/metrics"
)

func (m *Sealing) failedCooldown(ctx statemachine.Context, sector SectorInfo) error {
	if len(sector.Log) == 0 {
		return nil
	}

	retryStart := time.Unix(int64(sector.Log[len(sector.Log)-1].Timestamp), 0).Add(m.opts.RetryDelay)
	if !time.Now().After(retryStart) {
		log.Infof("%s(%d), waiting %s before retrying", stateName(sector.State), sector.SectorNum, time.Until(retryStart))
		select {
		case <-time.After(time.Until(retryStart)):
		case <-ctx.Context().Done():
			return ctx.Context().Err()
		}
	}

	return nil
}

// giveUp reports whether the sector failed too often to be retried again.
func (m *Sealing) giveUp(ctx statemachine.Context, sector SectorInfo) (bool, error) {
	metrics.PhaseFailures.Inc(ctx.Context(), 1)

	if m.opts.MaxFailures == 0 || sector.Failures < m.opts.MaxFailures {
		return false, nil
	}
	return true, ctx.Send(SectorFatalError{xerrors.Errorf("giving up after %d failures, last: %s", sector.Failures, sector.LastErr)})
}

func (m *Sealing) handleSealPreCommit1Failed(ctx statemachine.Context, sector SectorInfo) error {
	if stop, err := m.giveUp(ctx, sector); stop {
		return err
	}

	if err := m.failedCooldown(ctx, sector); err != nil {
		return err
	}

	return ctx.Send(SectorRetrySealPreCommit1{})
}

func (m *Sealing) handleSealPreCommit2Failed(ctx statemachine.Context, sector SectorInfo) error {
	if stop, err := m.giveUp(ctx, sector); stop {
		return err
	}

	if err := m.failedCooldown(ctx, sector); err != nil {
		return err
	}

	// labels are rebuilt from the staged data when the phase 1 output is lost
	if _, err := sector.preCommit1(); err != nil {
		log.Warnf("sector %d: redoing pre commit(1): %v", sector.SectorNum, err)
		return ctx.Send(SectorRetrySealPreCommit1{})
	}

	return ctx.Send(SectorRetrySealPreCommit2{})
}

func (m *Sealing) handleComputeProofFailed(ctx statemachine.Context, sector SectorInfo) error {
	if stop, err := m.giveUp(ctx, sector); stop {
		return err
	}

	if err := m.failedCooldown(ctx, sector); err != nil {
		return err
	}

	if _, err := sector.commit1(); err != nil {
		return ctx.Send(SectorRetryCommit{})
	}

	return ctx.Send(SectorRetryComputeProof{})
}

func (m *Sealing) handleFinalizeFailed(ctx statemachine.Context, sector SectorInfo) error {
	if stop, err := m.giveUp(ctx, sector); stop {
		return err
	}

	if err := m.failedCooldown(ctx, sector); err != nil {
		return err
	}

	return ctx.Send(SectorRetryFinalize{})
}
