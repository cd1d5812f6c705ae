package store

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

func nodes(n int, salt byte) []hasher.Domain {
	out := make([]hasher.Domain, n)
	for i := range out {
		out[i][0] = byte(i)
		out[i][1] = byte(i >> 8)
		out[i][2] = salt
	}
	return out
}

func providers() map[string]Provider {
	return map[string]Provider{
		"mem":       NewMemProvider(),
		"datastore": NewDatastoreProvider(dssync.MutexWrap(datastore.NewMapDatastore())),
	}
}

func TestAppendReadAcrossChunks(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			cfg := types.NewStoreConfig("/sector/1", "layer-1", 3*ChunkNodes+17)
			s, err := p.Create(ctx, cfg)
			require.NoError(t, err)

			want := nodes(int(cfg.Size), 1)
			require.NoError(t, s.Append(want[:100]...))
			require.NoError(t, s.Append(want[100:]...))
			require.NoError(t, s.Sync())

			assert.Equal(t, cfg.Size, s.Len())
			got, err := ReadAll(s)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			n, err := s.Read(ChunkNodes + 3)
			require.NoError(t, err)
			assert.Equal(t, want[ChunkNodes+3], n)

			_, err = s.Read(cfg.Size)
			require.Error(t, err)
			assert.Equal(t, types.StoreIOError, types.KindOf(err))
		})
	}
}

func TestReopenContinuesTail(t *testing.T) {
	ctx := context.Background()
	p := NewDatastoreProvider(dssync.MutexWrap(datastore.NewMapDatastore()))
	cfg := types.NewStoreConfig("/sector/2", "tree-c", ChunkNodes+10)

	want := nodes(int(cfg.Size), 2)

	s, err := p.Create(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Append(want[:ChunkNodes+4]...))
	require.NoError(t, s.Sync())

	s, err = p.Open(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(ChunkNodes+4), s.Len())

	_, err = OpenComplete(ctx, p, cfg)
	require.Error(t, err)

	require.NoError(t, s.Append(want[ChunkNodes+4:]...))
	require.NoError(t, s.Sync())

	s, err = OpenComplete(ctx, p, cfg)
	require.NoError(t, err)
	got, err := ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeleteAndCreateTruncate(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			cfg := types.NewStoreConfig("/sector/3", "replica", 8)
			s, err := p.Create(ctx, cfg)
			require.NoError(t, err)
			require.NoError(t, s.Append(nodes(8, 3)...))
			require.NoError(t, s.Sync())

			s, err = p.Create(ctx, cfg)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), s.Len())

			require.NoError(t, p.Delete(ctx, cfg))
			_, err = p.Open(ctx, cfg)
			require.Error(t, err)
		})
	}
}
