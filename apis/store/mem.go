package store

import (
	"context"
	"sync"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// MemStore keeps its nodes in memory.
type MemStore struct {
	cfg types.StoreConfig

	lk    sync.RWMutex
	nodes []hasher.Domain
}

var _ Store = (*MemStore)(nil)

func NewMemStore(cfg types.StoreConfig) *MemStore {
	return &MemStore{cfg: cfg, nodes: make([]hasher.Domain, 0, cfg.Size)}
}

// NewMemStoreFrom wraps existing nodes.
func NewMemStoreFrom(nodes []hasher.Domain) *MemStore {
	cp := make([]hasher.Domain, len(nodes))
	copy(cp, nodes)
	return &MemStore{cfg: types.StoreConfig{ID: "mem", Size: uint64(len(nodes))}, nodes: cp}
}

func (m *MemStore) Config() types.StoreConfig {
	return m.cfg
}

func (m *MemStore) Len() uint64 {
	m.lk.RLock()
	defer m.lk.RUnlock()
	return uint64(len(m.nodes))
}

func (m *MemStore) Read(i uint64) (hasher.Domain, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	if i >= uint64(len(m.nodes)) {
		return hasher.Domain{}, types.NewStoreIOError("read %d out of range for %s (len %d)", i, m.cfg.Key(), len(m.nodes))
	}
	return m.nodes[i], nil
}

func (m *MemStore) ReadRange(start, end uint64) ([]hasher.Domain, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	if err := checkRange(m.cfg, start, end, uint64(len(m.nodes))); err != nil {
		return nil, err
	}
	out := make([]hasher.Domain, end-start)
	copy(out, m.nodes[start:end])
	return out, nil
}

func (m *MemStore) Append(nodes ...hasher.Domain) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.nodes = append(m.nodes, nodes...)
	return nil
}

func (m *MemStore) Sync() error {
	return nil
}

// MemProvider keeps every store in memory, keyed by configuration.
type MemProvider struct {
	lk     sync.Mutex
	stores map[string]*MemStore
}

var _ Provider = (*MemProvider)(nil)

func NewMemProvider() *MemProvider {
	return &MemProvider{stores: map[string]*MemStore{}}
}

func (p *MemProvider) Create(_ context.Context, cfg types.StoreConfig) (Store, error) {
	p.lk.Lock()
	defer p.lk.Unlock()
	s := NewMemStore(cfg)
	p.stores[cfg.Key()] = s
	return s, nil
}

func (p *MemProvider) Open(_ context.Context, cfg types.StoreConfig) (Store, error) {
	p.lk.Lock()
	defer p.lk.Unlock()
	s, ok := p.stores[cfg.Key()]
	if !ok {
		return nil, types.NewStoreIOError("store %s not found", cfg.Key())
	}
	return s, nil
}

func (p *MemProvider) Delete(_ context.Context, cfg types.StoreConfig) error {
	p.lk.Lock()
	defer p.lk.Unlock()
	delete(p.stores, cfg.Key())
	return nil
}
