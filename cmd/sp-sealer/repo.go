package main

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	storage "github.com/filecoin-project/go-storage-proofs"
	"github.com/filecoin-project/go-storage-proofs/apis/snark/passthrough"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/config"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

type repo struct {
	cfg    *config.Config
	prover types.ProverID
	miner  *storage.Miner
	closer io.Closer
}

func openRepo(cctx *cli.Context, onSectorUpdated func(abi.SectorNumber, sealing.SectorState)) (*repo, error) {
	cfg, path, err := config.Load(cctx.String("repo"))
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}

	proof, err := cfg.Sealing.RegisteredProof()
	if err != nil {
		return nil, err
	}
	prover, err := cfg.Sealing.Prover()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Sealing.Options()
	if err != nil {
		return nil, err
	}

	ds, closer, err := cfg.Datastore.OpenDatastore(path)
	if err != nil {
		return nil, err
	}

	miner, err := storage.NewMinerWithOnSectorUpdated(localNode{}, passthrough.Backend{}, store.NewDatastoreProvider(ds), ds, proof, prover, opts, onSectorUpdated)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	log.Debugw("opened repo", "path", path, "proof", proof)
	return &repo{cfg: cfg, prover: prover, miner: miner, closer: closer}, nil
}

func (r *repo) Close(cctx *cli.Context) error {
	if err := r.miner.Stop(cctx.Context); err != nil {
		log.Warnf("stopping miner: %+v", err)
	}
	return r.closer.Close()
}
