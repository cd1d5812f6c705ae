package store

import (
	"context"

	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("store")

// Store is an append-only sequence of nodes. A store has a single writer;
// readers may run concurrently once the written range is synced.
type Store interface {
	Config() types.StoreConfig

	// Len is the number of nodes appended so far.
	Len() uint64

	Read(i uint64) (hasher.Domain, error)

	// ReadRange returns nodes [start, end).
	ReadRange(start, end uint64) ([]hasher.Domain, error)

	Append(nodes ...hasher.Domain) error

	// Sync makes every appended node durable.
	Sync() error
}

// Provider creates and locates stores by their configuration.
type Provider interface {
	// Create returns an empty store, discarding anything previously stored
	// under cfg.
	Create(ctx context.Context, cfg types.StoreConfig) (Store, error)

	// Open returns a previously created store.
	Open(ctx context.Context, cfg types.StoreConfig) (Store, error)

	Delete(ctx context.Context, cfg types.StoreConfig) error
}

// ReadAll reads every node of s.
func ReadAll(s Store) ([]hasher.Domain, error) {
	return s.ReadRange(0, s.Len())
}

// OpenComplete opens a store and checks that it holds cfg.Size nodes.
func OpenComplete(ctx context.Context, p Provider, cfg types.StoreConfig) (Store, error) {
	s, err := p.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Size != 0 && s.Len() != cfg.Size {
		return nil, types.NewStoreIOError("store %s holds %d of %d nodes", cfg.Key(), s.Len(), cfg.Size)
	}
	return s, nil
}

func checkRange(cfg types.StoreConfig, start, end, length uint64) error {
	if start > end || end > length {
		return types.NewStoreIOError("read [%d, %d) out of range for %s (len %d)", start, end, cfg.Key(), length)
	}
	return nil
}
