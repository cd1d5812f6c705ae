package storage

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/node"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("storageproofs")

// Miner seals sectors and proves the sealed ones.
type Miner struct {
	api      node.Interface
	backend  snark.Backend
	provider store.Provider
	prover   types.ProverID
	proof    abi.RegisteredSealProof

	sealing *sealing.Sealing
}

var _ Interface = new(Miner)

func NewMiner(api node.Interface, backend snark.Backend, provider store.Provider, ds datastore.Batching, proof abi.RegisteredSealProof, prover types.ProverID, opts sealing.Options) (*Miner, error) {
	return NewMinerWithOnSectorUpdated(api, backend, provider, ds, proof, prover, opts, nil)
}

func NewMinerWithOnSectorUpdated(api node.Interface, backend snark.Backend, provider store.Provider, ds datastore.Batching, proof abi.RegisteredSealProof, prover types.ProverID, opts sealing.Options, onSectorUpdated func(abi.SectorNumber, sealing.SectorState)) (*Miner, error) {
	s, err := sealing.NewSealingWithOnSectorUpdated(api, backend, provider, ds, proof, prover, opts, onSectorUpdated)
	if err != nil {
		return nil, xerrors.Errorf("creating sealing state machine: %w", err)
	}

	return &Miner{
		api:      api,
		backend:  backend,
		provider: provider,
		prover:   prover,
		proof:    proof,
		sealing:  s,
	}, nil
}

func (m *Miner) Run(ctx context.Context) error {
	if err := m.sealing.Run(ctx); err != nil {
		log.Errorf("%+v", err)
		return xerrors.Errorf("failed to run sealing: %w", err)
	}

	return nil
}

func (m *Miner) Stop(ctx context.Context) error {
	return m.sealing.Stop(ctx)
}
