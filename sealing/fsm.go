package sealing

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-statemachine"
	"golang.org/x/xerrors"
)

func (m *Sealing) Plan(events []statemachine.Event, user interface{}) (interface{}, uint64, error) {
	next, err := m.plan(events, user.(*SectorInfo))
	if err != nil || next == nil {
		return nil, uint64(len(events)), err
	}

	return func(ctx statemachine.Context, si SectorInfo) error {
		err := next(ctx, si)
		if err != nil {
			log.Errorf("unhandled sector error (%d): %+v", si.SectorNum, err)
			return nil
		}

		return nil
	}, uint64(len(events)), nil
}

var fsmPlanners = []func(events []statemachine.Event, state *SectorInfo) error{
	UndefinedSectorState: planOne(on(SectorStart{}, Packing)),
	Packing:              planOne(on(SectorPacked{}, PreCommit1)),
	PreCommit1: planOne(
		on(SectorPreCommit1{}, PreCommit2),
		on(SectorSealPreCommit1Failed{}, SealPreCommit1Failed),
	),
	PreCommit2: planOne(
		on(SectorPreCommit2{}, WaitSeed),
		on(SectorSealPreCommit2Failed{}, SealPreCommit2Failed),
	),
	WaitSeed: planOne(
		on(SectorSeedReady{}, Committing),
		on(SectorSealPreCommit2Failed{}, SealPreCommit2Failed),
	),
	Committing: planCommitting,
	ComputeProof: planOne(
		on(SectorProofReady{}, FinalizeSector),
		on(SectorComputeProofFailed{}, ComputeProofFailed),
	),
	FinalizeSector: planOne(
		on(SectorFinalized{}, Proving),
		on(SectorFinalizeFailed{}, FinalizeFailed),
	),
	Proving: planOne(),

	SealPreCommit1Failed: planOne(
		on(SectorRetrySealPreCommit1{}, PreCommit1),
	),
	SealPreCommit2Failed: planOne(
		on(SectorRetrySealPreCommit1{}, PreCommit1),
		on(SectorRetrySealPreCommit2{}, PreCommit2),
	),
	ComputeProofFailed: planOne(
		on(SectorRetryCommit{}, Committing),
		on(SectorRetryComputeProof{}, ComputeProof),
	),
	FinalizeFailed: planOne(
		on(SectorRetryFinalize{}, FinalizeSector),
	),

	FailedUnrecoverable: planOne(),
}

func (m *Sealing) plan(events []statemachine.Event, state *SectorInfo) (func(statemachine.Context, SectorInfo) error, error) {
	/////
	// First process all events

	for _, event := range events {
		l := Log{
			Timestamp: uint64(time.Now().Unix()),
			Message:   fmt.Sprintf("%+v", event),
			Kind:      fmt.Sprintf("event;%T", event.User),
		}

		if err, iserr := event.User.(xerrors.Formatter); iserr {
			l.Trace = fmt.Sprintf("%+v", err)
		}

		if err, iserr := event.User.(error); iserr {
			state.LastErr = fmt.Sprintf("sector %d, %s: %+v", state.SectorNum, stateName(state.State), err)
		}

		state.Log = append(state.Log, l)
	}

	if state.State >= uint64(len(fsmPlanners)) || fsmPlanners[state.State] == nil {
		return nil, xerrors.Errorf("planner for state %s not found", stateName(state.State))
	}

	if err := fsmPlanners[state.State](events, state); err != nil {
		return nil, xerrors.Errorf("running planner for state %s failed: %w", stateName(state.State), err)
	}

	if m.onSectorUpdated != nil {
		m.onSectorUpdated(state.SectorNum, state.State)
	}

	/////
	// Now decide what to do next

	/*

		*   UndefinedSectorState
		|   |
		|   v
		*<- Packing <- incoming
		|   |
		|   v
		*<- PreCommit1 <--> SealPreCommit1Failed
		|   |                       ^
		|   v                       |
		*<- PreCommit2 <--> SealPreCommit2Failed
		|   |                  ^
		|   v                  |
		*<- WaitSeed ----------/
		|   |
		|   v
		*<- Committing <--> ComputeProofFailed
		|   |                  ^
		|   v                  |
		*<- ComputeProof ------/
		|   |
		|   v
		*<- FinalizeSector <--> FinalizeFailed
		|   |
		|   v
		*<- Proving
		|
		v
		FailedUnrecoverable

	*/

	switch state.State {
	// Happy path
	case Packing:
		return m.handlePacking, nil
	case PreCommit1:
		return m.handlePreCommit1, nil
	case PreCommit2:
		return m.handlePreCommit2, nil
	case WaitSeed:
		return m.handleWaitSeed, nil
	case Committing:
		return m.handleCommitting, nil
	case ComputeProof:
		return m.handleComputeProof, nil
	case FinalizeSector:
		return m.handleFinalizeSector, nil
	case Proving:
		log.Infof("Proving sector %d", state.SectorNum)

	// Handled failure modes
	case SealPreCommit1Failed:
		return m.handleSealPreCommit1Failed, nil
	case SealPreCommit2Failed:
		return m.handleSealPreCommit2Failed, nil
	case ComputeProofFailed:
		return m.handleComputeProofFailed, nil
	case FinalizeFailed:
		return m.handleFinalizeFailed, nil

	// Fatal errors
	case UndefinedSectorState:
		log.Error("sector update with undefined state!")
	case FailedUnrecoverable:
		log.Errorf("sector %d failed unrecoverably: %s", state.SectorNum, state.LastErr)
	default:
		log.Errorf("unexpected sector update state: %d", state.State)
	}

	return nil, nil
}

func planCommitting(events []statemachine.Event, state *SectorInfo) error {
	for _, event := range events {
		switch e := event.User.(type) {
		case globalMutator:
			if e.applyGlobal(state) {
				return nil
			}
		case SectorCommitted: // the normal case
			e.apply(state)
			state.State = ComputeProof
		case SectorSeedReady: // seed changed :/
			if e.seed.Equals(&state.Seed) {
				log.Warnf("planCommitting: got SectorSeedReady, but the seed didn't change")
				continue // or it didn't!
			}
			log.Warnf("planCommitting: commit Seed changed")
			e.apply(state)
			state.State = Committing
			return nil
		case SectorComputeProofFailed:
			e.apply(state)
			state.State = ComputeProofFailed
		default:
			return xerrors.Errorf("planCommitting got event of unknown type %T, events: %+v", event.User, events)
		}
	}
	return nil
}

func (m *Sealing) restartSectors(ctx context.Context) error {
	trackedSectors, err := m.ListSectors()
	if err != nil {
		log.Errorf("loading sector list: %+v", err)
	}

	for _, sector := range trackedSectors {
		if err := m.sectors.Send(uint64(sector.SectorNum), SectorRestart{}); err != nil {
			log.Errorf("restarting sector %d: %+v", sector.SectorNum, err)
		}
	}

	return nil
}

// ForceSectorState puts a sector with given ID into the given state.
func (m *Sealing) ForceSectorState(ctx context.Context, num abi.SectorNumber, state SectorState) error {
	return m.sectors.Send(uint64(num), SectorForceState{state})
}

func on(mut mutator, next SectorState) func() (mutator, SectorState) {
	return func() (mutator, SectorState) {
		return mut, next
	}
}

func planOne(ts ...func() (mut mutator, next SectorState)) func(events []statemachine.Event, state *SectorInfo) error {
	return func(events []statemachine.Event, state *SectorInfo) error {
		if len(events) != 1 {
			for _, event := range events {
				if gm, ok := event.User.(globalMutator); ok {
					gm.applyGlobal(state)
					return nil
				}
			}
			return xerrors.Errorf("planner for state %s only has a plan for a single event only, got %+v", stateName(state.State), events)
		}

		if gm, ok := events[0].User.(globalMutator); ok {
			gm.applyGlobal(state)
			return nil
		}

		for _, t := range ts {
			mut, next := t()

			if reflect.TypeOf(events[0].User) != reflect.TypeOf(mut) {
				continue
			}

			if err, iserr := events[0].User.(error); iserr {
				log.Warnf("sector %d got error event %T: %+v", state.SectorNum, events[0].User, err)
			}

			events[0].User.(mutator).apply(state)
			state.State = next
			return nil
		}

		return xerrors.Errorf("planner for state %s received unexpected event %T (%+v)", stateName(state.State), events[0].User, events[0])
	}
}
