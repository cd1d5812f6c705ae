package sealing

import (
	"github.com/filecoin-project/go-statemachine"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/metrics"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const InteractivePoRepDelay = 150

func (m *Sealing) handlePacking(ctx statemachine.Context, sector SectorInfo) error {
	log.Infow("checking staged sector data", "sector", sector.SectorNum)

	if _, err := store.OpenComplete(ctx.Context(), m.provider, sector.Data); err != nil {
		return ctx.Send(SectorFatalError{xerrors.Errorf("sector data is not staged: %w", err)})
	}

	return ctx.Send(SectorPacked{})
}

func (m *Sealing) handlePreCommit1(ctx statemachine.Context, sector SectorInfo) error {
	lk := m.sectorLock(sector.SectorNum)
	lk.Lock()
	defer lk.Unlock()

	cfg, entry, err := m.sectorEnv(ctx, sector)
	if err != nil {
		return ctx.Send(SectorFatalError{err})
	}

	log.Infow("performing sector replication...", "sector", sector.SectorNum)
	ticket, err := m.api.GetSealTicket(ctx.Context())
	if err != nil {
		return ctx.Send(SectorSealPreCommit1Failed{xerrors.Errorf("getting ticket failed: %w", err)})
	}

	p1, err := seal.SealPreCommitPhase1(ctx.Context(), cfg, m.provider, entry.Paths, m.prover, sector.SectorNum, ticket.Ticket())
	if err != nil {
		return ctx.Send(SectorSealPreCommit1Failed{xerrors.Errorf("seal pre commit(1) failed: %w", err)})
	}

	out, err := types.Marshal(p1)
	if err != nil {
		return ctx.Send(SectorSealPreCommit1Failed{err})
	}

	return ctx.Send(SectorPreCommit1{
		ticket: ticket,
		out:    out,
		commD:  p1.CommD,
	})
}

func (m *Sealing) handlePreCommit2(ctx statemachine.Context, sector SectorInfo) error {
	lk := m.sectorLock(sector.SectorNum)
	lk.Lock()
	defer lk.Unlock()

	_, entry, err := m.sectorEnv(ctx, sector)
	if err != nil {
		return ctx.Send(SectorFatalError{err})
	}

	p1, err := sector.preCommit1()
	if err != nil {
		return ctx.Send(SectorSealPreCommit1Failed{err})
	}

	p2, err := seal.SealPreCommitPhase2(ctx.Context(), m.provider, entry.Paths, p1)
	if err != nil {
		return ctx.Send(SectorSealPreCommit2Failed{xerrors.Errorf("seal pre commit(2) failed: %w", err)})
	}

	out, err := types.Marshal(p2)
	if err != nil {
		return ctx.Send(SectorSealPreCommit2Failed{err})
	}

	log.Infow("sector pre-committed", "sector", sector.SectorNum, "commD", p2.CommD, "commR", p2.CommR)

	return ctx.Send(SectorPreCommit2{
		out:   out,
		commR: p2.CommR,
	})
}

func (m *Sealing) handleWaitSeed(ctx statemachine.Context, sector SectorInfo) error {
	seedChan, invalidated, errChan := m.api.GetSealSeed(ctx.Context(), sector.SectorNum, sector.CommR, InteractivePoRepDelay)

	for {
		select {
		case seed := <-seedChan:
			return ctx.Send(SectorSeedReady{seed: seed})
		case err := <-errChan:
			log.Errorf("error waiting for seal seed: %+v", err)

			switch err.EType {
			case node.GetSealSeedFailedError:
				return ctx.Send(SectorSealPreCommit2Failed{err.Unwrap()})
			case node.GetSealSeedFatalError:
				return ctx.Send(SectorFatalError{err.Unwrap()})
			default:
				log.Errorf("unhandled error from GetSealSeed: %+v", err)
				return ctx.Send(SectorFatalError{err.Unwrap()})
			}
		case <-invalidated:
			log.Warnw("seal seed reverted, requesting it again", "sector", sector.SectorNum)

			seedChan, invalidated, errChan = m.api.GetSealSeed(ctx.Context(), sector.SectorNum, sector.CommR, InteractivePoRepDelay)
		case <-ctx.Context().Done():
			return nil
		}
	}
}

func (m *Sealing) handleCommitting(ctx statemachine.Context, sector SectorInfo) error {
	lk := m.sectorLock(sector.SectorNum)
	lk.Lock()
	defer lk.Unlock()

	log.Info("scheduling seal proof computation...")

	p1, err := sector.preCommit1()
	if err != nil {
		return ctx.Send(SectorFatalError{err})
	}
	p2, err := sector.preCommit2()
	if err != nil {
		return ctx.Send(SectorFatalError{err})
	}

	c1, err := seal.SealCommitPhase1(ctx.Context(), m.provider, p1, p2, sector.Seed.Seed())
	if err != nil {
		return ctx.Send(SectorComputeProofFailed{xerrors.Errorf("computing vanilla seal proofs failed: %w", err)})
	}

	out, err := types.Marshal(c1)
	if err != nil {
		return ctx.Send(SectorComputeProofFailed{err})
	}

	return ctx.Send(SectorCommitted{out: out})
}

func (m *Sealing) handleComputeProof(ctx statemachine.Context, sector SectorInfo) error {
	c1, err := sector.commit1()
	if err != nil {
		return ctx.Send(SectorComputeProofFailed{err})
	}

	proof, err := seal.SealCommitPhase2(ctx.Context(), m.backend, c1)
	if err != nil {
		return ctx.Send(SectorComputeProofFailed{xerrors.Errorf("computing seal proof failed: %w", err)})
	}

	return ctx.Send(SectorProofReady{proof: proof.Proof})
}

func (m *Sealing) handleFinalizeSector(ctx statemachine.Context, sector SectorInfo) error {
	lk := m.sectorLock(sector.SectorNum)
	lk.Lock()
	defer lk.Unlock()

	p2, err := sector.preCommit2()
	if err != nil {
		return ctx.Send(SectorFatalError{err})
	}

	if err := seal.ClearCache(ctx.Context(), m.provider, p2.TemporaryAux); err != nil {
		return ctx.Send(SectorFinalizeFailed{xerrors.Errorf("finalize sector: %w", err)})
	}

	metrics.SectorsSealed.Inc(ctx.Context(), 1)
	log.Infow("sector sealed", "sector", sector.SectorNum, "commR", sector.CommR)

	return ctx.Send(SectorFinalized{})
}

// sectorEnv resolves the proof parameters and stores of a sector.
func (m *Sealing) sectorEnv(ctx statemachine.Context, sector SectorInfo) (types.PoRepConfig, RegistryEntry, error) {
	cfg, err := sector.config()
	if err != nil {
		return types.PoRepConfig{}, RegistryEntry{}, err
	}

	entry, err := m.registry.Get(ctx.Context(), sector.SectorNum)
	if err != nil {
		return types.PoRepConfig{}, RegistryEntry{}, xerrors.Errorf("looking up stores: %w", err)
	}
	if entry.Paths.Data(cfg) != sector.Data {
		return types.PoRepConfig{}, RegistryEntry{}, xerrors.Errorf("sector %d data was replaced (generation %d)", sector.SectorNum, entry.Generation)
	}
	return cfg, entry, nil
}
