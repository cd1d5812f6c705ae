package seal_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/snark/passthrough"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/fr32"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/stacked"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var (
	prover = types.ProverID{1, 1, 1}
	ticket = types.Ticket{2, 2}
	seed   = types.ChallengeSeed{3, 3, 3}
)

func smallConfig() types.PoRepConfig {
	return types.PoRepConfig{
		SectorSize:      2 << 10,
		Partitions:      1,
		ChallengeCount:  2,
		Layers:          2,
		BaseDegree:      6,
		ExpansionDegree: 8,
		PoRepID:         [32]byte{5},
		TreeHasher:      hasher.Blake2b,
		DataHasher:      hasher.Sha256,
	}
}

type sealedSector struct {
	p1 *seal.PreCommit1Output
	p2 *seal.PreCommit2Output
}

func precommit(t *testing.T, cfg types.PoRepConfig, provider store.Provider, sector types.SectorID, raw []byte) sealedSector {
	return precommitTicket(t, cfg, provider, sector, raw, ticket)
}

func precommitTicket(t *testing.T, cfg types.PoRepConfig, provider store.Provider, sector types.SectorID, raw []byte, ticket types.Ticket) sealedSector {
	ctx := context.Background()
	paths := seal.PathsFor(sector)

	nodes, err := fr32.ReadSector(bytes.NewReader(raw), cfg.SectorSize)
	require.NoError(t, err)
	_, err = seal.StageData(ctx, cfg, provider, paths, nodes)
	require.NoError(t, err)

	p1, err := seal.SealPreCommitPhase1(ctx, cfg, provider, paths, prover, sector, ticket)
	require.NoError(t, err)

	// the phase boundary is the serialized output
	b, err := types.Marshal(p1)
	require.NoError(t, err)
	var p1Loaded seal.PreCommit1Output
	require.NoError(t, types.Unmarshal(b, &p1Loaded))
	require.Equal(t, *p1, p1Loaded)

	p2, err := seal.SealPreCommitPhase2(ctx, provider, paths, &p1Loaded)
	require.NoError(t, err)
	return sealedSector{p1: &p1Loaded, p2: p2}
}

func TestSealZeroSectorEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	provider := store.NewDatastoreProvider(dssync.MutexWrap(datastore.NewMapDatastore()))
	backend := passthrough.Backend{}

	s := precommit(t, cfg, provider, 1, nil)

	c1, err := seal.SealCommitPhase1(ctx, provider, s.p1, s.p2, seed)
	require.NoError(t, err)
	require.Len(t, c1.VanillaProofs, 1)
	require.Len(t, c1.VanillaProofs[0], 2)

	ok, err := seal.VerifySealVanilla(c1)
	require.NoError(t, err)
	assert.True(t, ok)

	c2, err := seal.SealCommitPhase2(ctx, backend, c1)
	require.NoError(t, err)

	info := snark.SealVerifyInfo{
		Sector: 1,
		Prover: prover,
		Ticket: ticket,
		Seed:   seed,
		CommD:  s.p2.CommD,
		CommR:  s.p2.CommR,
		Proof:  c2.Proof,
	}
	ok, err = seal.VerifySeal(ctx, backend, cfg, info)
	require.NoError(t, err)
	assert.True(t, ok)

	// verification is repeatable
	ok, err = seal.VerifySeal(ctx, backend, cfg, info)
	require.NoError(t, err)
	assert.True(t, ok)

	wrongSeed := info
	wrongSeed.Seed[0] ^= 0xff
	ok, err = seal.VerifySeal(ctx, backend, cfg, wrongSeed)
	require.NoError(t, err)
	assert.False(t, ok)

	wrongSector := info
	wrongSector.Sector = 2
	ok, err = seal.VerifySeal(ctx, backend, cfg, wrongSector)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlippedByteChangesCommitments(t *testing.T) {
	cfg := smallConfig()
	provider := store.NewMemProvider()

	raw := make([]byte, fr32.UserBytesForSectorSize(cfg.SectorSize))
	a := precommit(t, cfg, provider, 1, raw)

	flipped := append([]byte{}, raw...)
	flipped[100] ^= 0x01
	b := precommit(t, cfg, provider, 2, flipped)

	assert.NotEqual(t, a.p1.CommD, b.p1.CommD)
	assert.NotEqual(t, a.p2.CommR, b.p2.CommR)

	again := precommit(t, cfg, provider, 3, raw)
	assert.Equal(t, a.p1.CommD, again.p1.CommD)
}

func TestVanillaProofsBoundToReplicaID(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	provider := store.NewMemProvider()

	s := precommit(t, cfg, provider, 4, []byte("bound"))
	c1, err := seal.SealCommitPhase1(ctx, provider, s.p1, s.p2, seed)
	require.NoError(t, err)

	c1.Ticket[0] ^= 1
	ok, err := seal.VerifySealVanilla(c1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnsealAfterClearCache(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	provider := store.NewMemProvider()

	raw := make([]byte, fr32.UserBytesForSectorSize(cfg.SectorSize))
	_, _ = rand.New(rand.NewSource(9)).Read(raw)

	s := precommit(t, cfg, provider, 5, raw)

	out, err := seal.Unseal(ctx, provider, s.p1, s.p2, 0, cfg.Nodes())
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	require.NoError(t, seal.ClearCache(ctx, provider, s.p2.TemporaryAux))
	_, err = provider.Open(ctx, s.p2.TemporaryAux.TreeC)
	require.Error(t, err)

	out, err = seal.Unseal(ctx, provider, s.p1, s.p2, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, raw[127:127*3], out)

	_, err = seal.Unseal(ctx, provider, s.p1, s.p2, 1, 4)
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

func TestCommitPhase1NeedsTrees(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	provider := store.NewMemProvider()

	s := precommit(t, cfg, provider, 6, nil)
	require.NoError(t, seal.ClearCache(ctx, provider, s.p2.TemporaryAux))

	_, err := seal.SealCommitPhase1(ctx, provider, s.p1, s.p2, seed)
	assert.Equal(t, types.StoreIOError, types.KindOf(err))
}

func TestPreCommitRejectsBadConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.SectorSize = 4 << 10

	_, err := seal.SealPreCommitPhase1(context.Background(), cfg, store.NewMemProvider(), seal.PathsFor(1), prover, 1, ticket)
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

func fill(b byte) (out [32]byte) {
	for i := range out {
		out[i] = b
	}
	return out
}

func TestTicketBindsCommR(t *testing.T) {
	cfg := smallConfig()
	provider := store.NewMemProvider()

	a := precommitTicket(t, cfg, provider, 1, nil, fill(1))
	again := precommitTicket(t, cfg, provider, 1, nil, fill(1))
	assert.Equal(t, a.p2.CommR, again.p2.CommR)
	assert.Equal(t, a.p1.CommD, again.p1.CommD)

	other := precommitTicket(t, cfg, provider, 1, nil, fill(2))
	assert.NotEqual(t, a.p2.CommR, other.p2.CommR)
	assert.Equal(t, a.p1.CommD, other.p1.CommD)
}

func TestCommitPhase1ProvesAgainstCommitments(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig()
	provider := store.NewMemProvider()
	s := precommitTicket(t, cfg, provider, 1, nil, fill(1))

	c1, err := seal.SealCommitPhase1(ctx, provider, s.p1, s.p2, fill(3))
	require.NoError(t, err)
	require.Len(t, c1.VanillaProofs, int(cfg.Partitions))
	require.Len(t, c1.VanillaProofs[0], int(cfg.ChallengeCount))

	dataShape, err := merkle.NewShapeByName(types.BinaryArity, cfg.DataHasher)
	require.NoError(t, err)
	treeShape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	require.NoError(t, err)

	aux := s.p2.PersistentAux
	assert.Equal(t, s.p2.CommR, seal.CommR(treeShape.Hasher, aux))

	challenges := stacked.SealChallenges(cfg, s.p1.ReplicaID, fill(3), 0)
	for i, p := range c1.VanillaProofs[0] {
		c := challenges[i]
		assert.True(t, merkle.VerifyProof(dataShape, cfg.Nodes(), s.p1.CommD.Domain(), p.CommDProof.Leaf, c, p.CommDProof), "challenge %d", c)
		assert.True(t, merkle.VerifyProof(treeShape, cfg.Nodes(), aux.CommRLast.Domain(), p.CommRLastProof.Leaf, c, p.CommRLastProof), "challenge %d", c)
	}
}
