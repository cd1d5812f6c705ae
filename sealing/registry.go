package sealing

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const RegistryPrefix = "/registry"

var (
	nextSectorKey = datastore.NewKey("/next")
	entriesKey    = datastore.NewKey("/entries")
)

// RegistryEntry locates the stores of one sector. Every time the data of a
// sector changes the generation is bumped, so stores written for older data
// can never be picked up again.
type RegistryEntry struct {
	Sector     abi.SectorNumber
	Proof      abi.RegisteredSealProof
	Generation uint64
	Paths      seal.Paths
	Valid      bool
}

// Registry maps sectors to their stores.
type Registry struct {
	lk       sync.Mutex
	ds       datastore.Batching
	provider store.Provider
}

func NewRegistry(ds datastore.Batching, provider store.Provider) *Registry {
	return &Registry{
		ds:       namespace.Wrap(ds, datastore.NewKey(RegistryPrefix)),
		provider: provider,
	}
}

func entryKey(num abi.SectorNumber) datastore.Key {
	return entriesKey.ChildString(fmt.Sprintf("%d", num))
}

// NextSectorNumber allocates a sector number that was never handed out.
func (r *Registry) NextSectorNumber(ctx context.Context) (abi.SectorNumber, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	var next uint64
	b, err := r.ds.Get(ctx, nextSectorKey)
	switch {
	case err == nil:
		next = binary.BigEndian.Uint64(b)
	case xerrors.Is(err, datastore.ErrNotFound):
	default:
		return 0, types.NewProofError(xerrors.Errorf("reading sector counter: %w", err), types.StoreIOError)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next+1)
	if err := r.ds.Put(ctx, nextSectorKey, buf[:]); err != nil {
		return 0, types.NewProofError(xerrors.Errorf("writing sector counter: %w", err), types.StoreIOError)
	}
	return abi.SectorNumber(next), nil
}

// Register starts a new generation of stores for the sector, discarding the
// stores of the previous one.
func (r *Registry) Register(ctx context.Context, num abi.SectorNumber, proof abi.RegisteredSealProof) (RegistryEntry, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	prev, found, err := r.get(ctx, num)
	if err != nil {
		return RegistryEntry{}, err
	}
	if found && prev.Valid {
		if err := r.discard(ctx, prev); err != nil {
			return RegistryEntry{}, err
		}
	}

	e := RegistryEntry{
		Sector:     num,
		Proof:      proof,
		Generation: prev.Generation + 1,
		Valid:      true,
	}
	e.Paths = seal.Paths{Cache: fmt.Sprintf("%s/g-%d", seal.PathsFor(num).Cache, e.Generation)}

	return e, r.put(ctx, e)
}

// Get returns the current stores of a sector.
func (r *Registry) Get(ctx context.Context, num abi.SectorNumber) (RegistryEntry, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	e, found, err := r.get(ctx, num)
	if err != nil {
		return RegistryEntry{}, err
	}
	if !found || !e.Valid {
		return RegistryEntry{}, types.NewProofError(xerrors.Errorf("sector %d: %w", num, types.ErrSectorUnavailable), types.ConfigurationError)
	}
	return e, nil
}

// Invalidate deletes every store of the sector. The sector has to be
// registered again before it can be sealed.
func (r *Registry) Invalidate(ctx context.Context, num abi.SectorNumber) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	e, found, err := r.get(ctx, num)
	if err != nil || !found || !e.Valid {
		return err
	}
	if err := r.discard(ctx, e); err != nil {
		return err
	}
	e.Valid = false
	return r.put(ctx, e)
}

// List returns every valid entry.
func (r *Registry) List(ctx context.Context) ([]RegistryEntry, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	res, err := r.ds.Query(ctx, query.Query{Prefix: entriesKey.String()})
	if err != nil {
		return nil, types.NewProofError(xerrors.Errorf("listing registry: %w", err), types.StoreIOError)
	}
	defer res.Close() //nolint:errcheck

	var out []RegistryEntry
	for qr := range res.Next() {
		if qr.Error != nil {
			return nil, types.NewProofError(qr.Error, types.StoreIOError)
		}
		var e RegistryEntry
		if err := types.Unmarshal(qr.Value, &e); err != nil {
			return nil, err
		}
		if e.Valid {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Registry) discard(ctx context.Context, e RegistryEntry) error {
	cfg, err := types.PoRepConfigFor(e.Proof)
	if err != nil {
		return err
	}
	log.Infow("discarding sector stores", "sector", e.Sector, "generation", e.Generation)
	if err := e.Paths.Discard(ctx, r.provider, cfg); err != nil {
		return types.NewProofError(xerrors.Errorf("discarding stores of sector %d: %w", e.Sector, err), types.StoreIOError)
	}
	return nil
}

func (r *Registry) get(ctx context.Context, num abi.SectorNumber) (RegistryEntry, bool, error) {
	b, err := r.ds.Get(ctx, entryKey(num))
	if xerrors.Is(err, datastore.ErrNotFound) {
		return RegistryEntry{}, false, nil
	}
	if err != nil {
		return RegistryEntry{}, false, types.NewProofError(xerrors.Errorf("reading registry entry %d: %w", num, err), types.StoreIOError)
	}

	var e RegistryEntry
	if err := types.Unmarshal(b, &e); err != nil {
		return RegistryEntry{}, false, err
	}
	return e, true, nil
}

func (r *Registry) put(ctx context.Context, e RegistryEntry) error {
	b, err := types.Marshal(&e)
	if err != nil {
		return err
	}
	if err := r.ds.Put(ctx, entryKey(e.Sector), b); err != nil {
		return types.NewProofError(xerrors.Errorf("writing registry entry %d: %w", e.Sector, err), types.StoreIOError)
	}
	return nil
}
