package sealing

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-statemachine"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/fr32"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const SectorStorePrefix = "/sectors"

var log = logging.Logger("sectors")

// Options tune the retry behavior of the state machine.
type Options struct {
	// RetryDelay is the minimum time between a phase failure and its retry.
	RetryDelay time.Duration
	// MaxFailures moves a sector to FailedUnrecoverable once it has failed
	// that many times. Zero means no limit.
	MaxFailures uint64
}

func DefaultOptions() Options {
	return Options{
		RetryDelay:  time.Minute,
		MaxFailures: 5,
	}
}

type Sealing struct {
	api      node.Interface
	backend  snark.Backend
	provider store.Provider
	registry *Registry

	proof  abi.RegisteredSealProof
	cfg    types.PoRepConfig
	prover types.ProverID
	opts   Options

	sectors *statemachine.StateGroup

	// sector phases are not reentrant
	locksLk sync.Mutex
	locks   map[abi.SectorNumber]*sync.Mutex

	// onSectorUpdated is called each time a sector transitions from one state
	// to some other state, if defined. It is non-nil during test.
	onSectorUpdated func(abi.SectorNumber, SectorState)

	// runCompleteWg is incremented when Sealing is created, and will prevent
	// new sectors from being added to the StateGroup before existing sectors
	// have been restarted. When Sealing#Run exits, runCompleteWg is decremented.
	runCompleteWg sync.WaitGroup
}

func NewSealing(api node.Interface, backend snark.Backend, provider store.Provider, ds datastore.Batching, proof abi.RegisteredSealProof, prover types.ProverID, opts Options) (*Sealing, error) {
	return NewSealingWithOnSectorUpdated(api, backend, provider, ds, proof, prover, opts, nil)
}

func NewSealingWithOnSectorUpdated(api node.Interface, backend snark.Backend, provider store.Provider, ds datastore.Batching, proof abi.RegisteredSealProof, prover types.ProverID, opts Options, onSectorUpdated func(abi.SectorNumber, SectorState)) (*Sealing, error) {
	cfg, err := types.PoRepConfigFor(proof)
	if err != nil {
		return nil, err
	}

	s := &Sealing{
		api:             api,
		backend:         backend,
		provider:        provider,
		registry:        NewRegistry(ds, provider),
		proof:           proof,
		cfg:             cfg,
		prover:          prover,
		opts:            opts,
		locks:           map[abi.SectorNumber]*sync.Mutex{},
		onSectorUpdated: onSectorUpdated,
	}

	s.runCompleteWg.Add(1)

	s.sectors = statemachine.New(namespace.Wrap(ds, datastore.NewKey(SectorStorePrefix)), s, SectorInfo{})

	return s, nil
}

func (m *Sealing) Run(ctx context.Context) error {
	defer m.runCompleteWg.Done()

	if err := m.restartSectors(ctx); err != nil {
		log.Errorf("%+v", err)
		return xerrors.Errorf("failed load sector states: %w", err)
	}

	return nil
}

func (m *Sealing) Stop(ctx context.Context) error {
	m.runCompleteWg.Add(1)

	return m.sectors.Stop(ctx)
}

// Config returns the proof parameters new sectors are sealed with.
func (m *Sealing) Config() types.PoRepConfig {
	return m.cfg
}

func (m *Sealing) Registry() *Registry {
	return m.registry
}

// SealSector stages the data read from r into a newly allocated sector and
// starts sealing it. Data shorter than the sector is zero-filled.
func (m *Sealing) SealSector(ctx context.Context, r io.Reader) (abi.SectorNumber, error) {
	num, err := m.registry.NextSectorNumber(ctx)
	if err != nil {
		return 0, xerrors.Errorf("acquiring sector number: %w", err)
	}

	if err := m.stage(ctx, num, r); err != nil {
		return 0, err
	}
	return num, nil
}

func (m *Sealing) stage(ctx context.Context, num abi.SectorNumber, r io.Reader) error {
	nodes, err := fr32.ReadSector(r, m.cfg.SectorSize)
	if err != nil {
		return xerrors.Errorf("reading sector %d data: %w", num, err)
	}

	entry, err := m.registry.Register(ctx, num, m.proof)
	if err != nil {
		return xerrors.Errorf("registering sector %d: %w", num, err)
	}

	data, err := seal.StageData(ctx, m.cfg, m.provider, entry.Paths, nodes)
	if err != nil {
		return xerrors.Errorf("staging sector %d: %w", num, err)
	}

	return m.newSector(num, data)
}

func (m *Sealing) newSector(num abi.SectorNumber, data types.StoreConfig) error {
	m.runCompleteWg.Wait()

	log.Infof("Start sealing %d", num)

	return m.sectors.Send(uint64(num), SectorStart{
		num:   num,
		proof: m.proof,
		data:  data,
	})
}

func (m *Sealing) sectorLock(num abi.SectorNumber) *sync.Mutex {
	m.locksLk.Lock()
	defer m.locksLk.Unlock()

	lk, ok := m.locks[num]
	if !ok {
		lk = new(sync.Mutex)
		m.locks[num] = lk
	}
	return lk
}
