package sealing

import (
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type mutator interface {
	apply(state *SectorInfo)
}

// globalMutator is an event which can apply in every state
type globalMutator interface {
	// applyGlobal applies the event to the state. If if returns true,
	//  event processing should be interrupted
	applyGlobal(state *SectorInfo) bool
}

// Global events

type SectorRestart struct{}

func (evt SectorRestart) applyGlobal(*SectorInfo) bool { return false }

type SectorFatalError struct{ error }

func (evt SectorFatalError) FormatError(xerrors.Printer) (next error) { return evt.error }

func (evt SectorFatalError) applyGlobal(state *SectorInfo) bool {
	log.Errorf("fatal error on sector %d: %+v", state.SectorNum, evt.error)
	state.State = FailedUnrecoverable
	return true
}

type SectorForceState struct {
	state SectorState
}

func (evt SectorForceState) applyGlobal(state *SectorInfo) bool {
	state.State = evt.state
	return true
}

// Normal path

type SectorStart struct {
	num   abi.SectorNumber
	proof abi.RegisteredSealProof
	data  types.StoreConfig
}

func (evt SectorStart) apply(state *SectorInfo) {
	state.SectorNum = evt.num
	state.RegisteredProof = evt.proof
	state.Data = evt.data
}

type SectorPacked struct{}

func (evt SectorPacked) apply(*SectorInfo) {}

type SectorPreCommit1 struct {
	ticket node.SealTicket
	out    []byte
	commD  types.Commitment
}

func (evt SectorPreCommit1) apply(state *SectorInfo) {
	state.Ticket = evt.ticket
	state.PreCommit1Out = evt.out
	state.CommD = evt.commD
}

type SectorPreCommit2 struct {
	out   []byte
	commR types.Commitment
}

func (evt SectorPreCommit2) apply(state *SectorInfo) {
	state.PreCommit2Out = evt.out
	state.CommR = evt.commR
}

type SectorSeedReady struct {
	seed node.SealSeed
}

func (evt SectorSeedReady) apply(state *SectorInfo) {
	state.Seed = evt.seed
}

type SectorCommitted struct {
	out []byte
}

func (evt SectorCommitted) apply(state *SectorInfo) {
	state.CommitPhase1Out = evt.out
}

type SectorProofReady struct {
	proof []byte
}

func (evt SectorProofReady) apply(state *SectorInfo) {
	state.Proof = evt.proof
}

type SectorFinalized struct{}

func (evt SectorFinalized) apply(*SectorInfo) {}

// Failed state

type SectorSealPreCommit1Failed struct{ error }

func (evt SectorSealPreCommit1Failed) FormatError(xerrors.Printer) (next error) { return evt.error }
func (evt SectorSealPreCommit1Failed) apply(si *SectorInfo) { si.Failures++ }

type SectorSealPreCommit2Failed struct{ error }

func (evt SectorSealPreCommit2Failed) FormatError(xerrors.Printer) (next error) { return evt.error }
func (evt SectorSealPreCommit2Failed) apply(si *SectorInfo) { si.Failures++ }

type SectorComputeProofFailed struct{ error }

func (evt SectorComputeProofFailed) FormatError(xerrors.Printer) (next error) { return evt.error }
func (evt SectorComputeProofFailed) apply(si *SectorInfo) { si.Failures++ }

type SectorFinalizeFailed struct{ error }

func (evt SectorFinalizeFailed) FormatError(xerrors.Printer) (next error) { return evt.error }
func (evt SectorFinalizeFailed) apply(si *SectorInfo) { si.Failures++ }

type SectorRetrySealPreCommit1 struct{}

func (evt SectorRetrySealPreCommit1) apply(*SectorInfo) {}

type SectorRetrySealPreCommit2 struct{}

func (evt SectorRetrySealPreCommit2) apply(*SectorInfo) {}

// SectorRetryCommit re-runs vanilla proof assembly from the stored
// pre-commit outputs.
type SectorRetryCommit struct{}

func (evt SectorRetryCommit) apply(state *SectorInfo) {
	state.CommitPhase1Out = nil
}

type SectorRetryComputeProof struct{}

func (evt SectorRetryComputeProof) apply(*SectorInfo) {}

type SectorRetryFinalize struct{}

func (evt SectorRetryFinalize) apply(*SectorInfo) {}
