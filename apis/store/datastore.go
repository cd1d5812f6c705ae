package store

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const StorePrefix = "/stores"

const (
	// ChunkNodes is the number of nodes packed into one datastore value.
	ChunkNodes = 256

	chunkCacheSize = 64
)

// DatastoreProvider persists stores in a go-datastore, ChunkNodes nodes per
// key.
type DatastoreProvider struct {
	ds datastore.Batching
}

var _ Provider = (*DatastoreProvider)(nil)

func NewDatastoreProvider(ds datastore.Batching) *DatastoreProvider {
	return &DatastoreProvider{ds: ds}
}

func storeKey(cfg types.StoreConfig) datastore.Key {
	return datastore.NewKey(StorePrefix).Child(datastore.NewKey(cfg.Path)).ChildString(cfg.ID)
}

func (p *DatastoreProvider) Create(ctx context.Context, cfg types.StoreConfig) (Store, error) {
	if err := p.Delete(ctx, cfg); err != nil {
		return nil, err
	}
	s, err := newDatastoreStore(ctx, p.ds, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Sync(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *DatastoreProvider) Open(ctx context.Context, cfg types.StoreConfig) (Store, error) {
	s, err := newDatastoreStore(ctx, p.ds, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *DatastoreProvider) Delete(ctx context.Context, cfg types.StoreConfig) error {
	prefix := storeKey(cfg)
	res, err := p.ds.Query(ctx, query.Query{Prefix: prefix.String(), KeysOnly: true})
	if err != nil {
		return types.NewStoreIOError("listing %s: %w", cfg.Key(), err)
	}
	entries, err := res.Rest()
	if err != nil {
		return types.NewStoreIOError("listing %s: %w", cfg.Key(), err)
	}
	if len(entries) == 0 {
		return nil
	}

	batch, err := p.ds.Batch(ctx)
	if err != nil {
		return types.NewStoreIOError("deleting %s: %w", cfg.Key(), err)
	}
	for _, e := range entries {
		if err := batch.Delete(ctx, datastore.NewKey(e.Key)); err != nil {
			return types.NewStoreIOError("deleting %s: %w", e.Key, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return types.NewStoreIOError("deleting %s: %w", cfg.Key(), err)
	}

	log.Debugw("deleted store", "store", cfg.Key(), "keys", len(entries))
	return nil
}

type datastoreStore struct {
	ctx context.Context
	ds  datastore.Batching
	cfg types.StoreConfig
	key datastore.Key

	chunks *lru.Cache

	lk      sync.RWMutex
	length  uint64
	tail    []hasher.Domain // nodes of the last, partially filled chunk
	flushed uint64          // nodes written to full chunks
}

func newDatastoreStore(ctx context.Context, ds datastore.Batching, cfg types.StoreConfig) (*datastoreStore, error) {
	cache, err := lru.New(chunkCacheSize)
	if err != nil {
		return nil, xerrors.Errorf("creating chunk cache: %w", err)
	}
	return &datastoreStore{
		ctx:    ctx,
		ds:     ds,
		cfg:    cfg,
		key:    storeKey(cfg),
		chunks: cache,
	}, nil
}

func (s *datastoreStore) lengthKey() datastore.Key {
	return s.key.ChildString("len")
}

func (s *datastoreStore) chunkKey(chunk uint64) datastore.Key {
	return s.key.ChildString("chunk").ChildString(strconv.FormatUint(chunk, 10))
}

func (s *datastoreStore) load() error {
	raw, err := s.ds.Get(s.ctx, s.lengthKey())
	if err == datastore.ErrNotFound {
		return types.NewStoreIOError("store %s not found", s.cfg.Key())
	}
	if err != nil {
		return types.NewStoreIOError("reading length of %s: %w", s.cfg.Key(), err)
	}
	if len(raw) != 8 {
		return types.NewStoreIOError("corrupt length record for %s", s.cfg.Key())
	}

	s.length = binary.BigEndian.Uint64(raw)
	s.flushed = s.length - s.length%ChunkNodes
	if s.flushed == s.length {
		return nil
	}

	tail, err := s.readChunk(s.flushed / ChunkNodes)
	if err != nil {
		return err
	}
	if uint64(len(tail)) < s.length-s.flushed {
		return types.NewStoreIOError("store %s: tail chunk holds %d nodes, want %d", s.cfg.Key(), len(tail), s.length-s.flushed)
	}
	s.tail = tail[:s.length-s.flushed]
	return nil
}

func (s *datastoreStore) Config() types.StoreConfig {
	return s.cfg
}

func (s *datastoreStore) Len() uint64 {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.length
}

func (s *datastoreStore) Read(i uint64) (hasher.Domain, error) {
	out, err := s.ReadRange(i, i+1)
	if err != nil {
		return hasher.Domain{}, err
	}
	return out[0], nil
}

func (s *datastoreStore) ReadRange(start, end uint64) ([]hasher.Domain, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	if err := checkRange(s.cfg, start, end, s.length); err != nil {
		return nil, err
	}

	out := make([]hasher.Domain, 0, end-start)
	for i := start; i < end; {
		if i >= s.flushed {
			out = append(out, s.tail[i-s.flushed:end-s.flushed]...)
			break
		}

		chunk, err := s.readChunk(i / ChunkNodes)
		if err != nil {
			return nil, err
		}
		off := i % ChunkNodes
		n := uint64(len(chunk)) - off
		if n > end-i {
			n = end - i
		}
		out = append(out, chunk[off:off+n]...)
		i += n
	}
	return out, nil
}

func (s *datastoreStore) readChunk(idx uint64) ([]hasher.Domain, error) {
	if v, ok := s.chunks.Get(idx); ok {
		return v.([]hasher.Domain), nil
	}

	raw, err := s.ds.Get(s.ctx, s.chunkKey(idx))
	if err != nil {
		return nil, types.NewStoreIOError("reading chunk %d of %s: %w", idx, s.cfg.Key(), err)
	}
	if len(raw)%hasher.NodeSize != 0 {
		return nil, types.NewStoreIOError("chunk %d of %s has odd size %d", idx, s.cfg.Key(), len(raw))
	}

	nodes := make([]hasher.Domain, len(raw)/hasher.NodeSize)
	for i := range nodes {
		copy(nodes[i][:], raw[i*hasher.NodeSize:])
	}
	if len(nodes) == ChunkNodes {
		s.chunks.Add(idx, nodes)
	}
	return nodes, nil
}

func encodeChunk(nodes []hasher.Domain) []byte {
	buf := make([]byte, len(nodes)*hasher.NodeSize)
	for i := range nodes {
		copy(buf[i*hasher.NodeSize:], nodes[i][:])
	}
	return buf
}

func (s *datastoreStore) Append(nodes ...hasher.Domain) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	for len(nodes) > 0 {
		room := ChunkNodes - len(s.tail)
		if room > len(nodes) {
			room = len(nodes)
		}
		s.tail = append(s.tail, nodes[:room]...)
		nodes = nodes[room:]
		s.length += uint64(room)

		if len(s.tail) == ChunkNodes {
			idx := s.flushed / ChunkNodes
			if err := s.ds.Put(s.ctx, s.chunkKey(idx), encodeChunk(s.tail)); err != nil {
				return types.NewStoreIOError("writing chunk %d of %s: %w", idx, s.cfg.Key(), err)
			}
			s.flushed += ChunkNodes
			s.tail = nil
		}
	}
	return nil
}

func (s *datastoreStore) Sync() error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if len(s.tail) > 0 {
		idx := s.flushed / ChunkNodes
		if err := s.ds.Put(s.ctx, s.chunkKey(idx), encodeChunk(s.tail)); err != nil {
			return types.NewStoreIOError("writing chunk %d of %s: %w", idx, s.cfg.Key(), err)
		}
	}

	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], s.length)
	if err := s.ds.Put(s.ctx, s.lengthKey(), raw[:]); err != nil {
		return types.NewStoreIOError("writing length of %s: %w", s.cfg.Key(), err)
	}
	if err := s.ds.Sync(s.ctx, s.key); err != nil {
		return types.NewStoreIOError("syncing %s: %w", s.cfg.Key(), err)
	}
	return nil
}
