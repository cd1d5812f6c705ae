package post_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/snark"
	"github.com/filecoin-project/go-storage-proofs/apis/snark/passthrough"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/fr32"
	"github.com/filecoin-project/go-storage-proofs/post"
	"github.com/filecoin-project/go-storage-proofs/seal"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var (
	prover     = types.ProverID{7}
	randomness = types.ChallengeSeed{8, 8}
)

func postConfig() types.PoStConfig {
	return types.PoStConfig{
		SectorSize:     2 << 10,
		ChallengeCount: 4,
		SectorCount:    2,
		Type:           types.PoStTypeWindow,
		TreeHasher:     hasher.Blake2b,
	}
}

func sealSectors(t *testing.T, provider store.Provider, ids ...types.SectorID) ([]types.PublicSector, map[types.SectorID]post.PrivateSector) {
	ctx := context.Background()
	cfg := types.PoRepConfig{
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

	var pub []types.PublicSector
	priv := map[types.SectorID]post.PrivateSector{}
	for _, id := range ids {
		paths := seal.PathsFor(id)
		nodes, err := fr32.ReadSector(bytes.NewReader([]byte{byte(id)}), cfg.SectorSize)
		require.NoError(t, err)
		_, err = seal.StageData(ctx, cfg, provider, paths, nodes)
		require.NoError(t, err)

		p1, err := seal.SealPreCommitPhase1(ctx, cfg, provider, paths, prover, id, types.Ticket{1})
		require.NoError(t, err)
		p2, err := seal.SealPreCommitPhase2(ctx, provider, paths, p1)
		require.NoError(t, err)

		pub = append(pub, types.PublicSector{ID: id, CommR: p2.CommR})
		priv[id] = post.PrivateSector{
			ID:        id,
			CommC:     p2.PersistentAux.CommC,
			CommRLast: p2.PersistentAux.CommRLast,
			TreeRLast: p2.TemporaryAux.TreeRLast,
		}
	}
	return pub, priv
}

func TestChallengesArePure(t *testing.T) {
	cfg := postConfig()

	a := post.GenerateSectorChallenge(cfg, randomness, prover, 10)
	require.Len(t, a, 4)
	assert.Equal(t, a, post.GenerateSectorChallenge(cfg, randomness, prover, 10))
	assert.NotEqual(t, a, post.GenerateSectorChallenge(cfg, randomness, prover, 11))
	assert.NotEqual(t, a, post.GenerateSectorChallenge(cfg, types.ChallengeSeed{9}, prover, 10))
	assert.NotEqual(t, a, post.GenerateSectorChallenge(cfg, randomness, types.ProverID{6}, 10))
	for _, c := range a {
		assert.Less(t, c, cfg.Nodes())
	}

	all, err := post.GenerateSectorChallenges(cfg, randomness, prover, []types.SectorID{10, 11})
	require.NoError(t, err)
	assert.Equal(t, a, all.Sectors[10])

	_, err = post.GenerateSectorChallenges(cfg, randomness, prover, []types.SectorID{10, 10})
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

func TestPartitionPaddingAndPairing(t *testing.T) {
	ctx := context.Background()
	cfg := postConfig()
	provider := store.NewMemProvider()
	pub, priv := sealSectors(t, provider, 1, 2, 3)

	vp, err := post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), vp.Partitions)
	require.Len(t, vp.PubSectors, 4)
	require.Len(t, vp.Proofs, 4)
	assert.Equal(t, vp.PubSectors[2], vp.PubSectors[3])
	assert.Equal(t, vp.Proofs[2], vp.Proofs[3])

	for i, ps := range vp.PubSectors {
		assert.Equal(t, priv[ps.ID].CommRLast, vp.Proofs[i].CommRLast, "descriptor %d must pair with its proof", i)
	}

	secs, proofs, err := vp.Partition(1)
	require.NoError(t, err)
	assert.Equal(t, types.SectorID(3), secs[0].ID)
	assert.Len(t, proofs, 2)
	_, _, err = vp.Partition(2)
	require.Error(t, err)

	ok, err := post.VerifyVanillaProofs(cfg, randomness, prover, pub, vp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = post.VerifyVanillaProofs(cfg, types.ChallengeSeed{1}, prover, pub, vp)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = post.VerifyVanillaProofs(cfg, randomness, prover, pub[:2], vp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTamperedInclusionProofFails(t *testing.T) {
	ctx := context.Background()
	cfg := postConfig()
	provider := store.NewMemProvider()
	pub, priv := sealSectors(t, provider, 1, 2)

	vp, err := post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	require.NoError(t, err)

	vp.Proofs[1].InclusionProofs[0].Path[0].Hashes[2][0] ^= 1
	ok, err := post.VerifyVanillaProofs(cfg, randomness, prover, pub, vp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShortInclusionPathFails(t *testing.T) {
	ctx := context.Background()
	cfg := postConfig()
	provider := store.NewMemProvider()
	pub, priv := sealSectors(t, provider, 1, 2)

	vp, err := post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	require.NoError(t, err)

	// answer from the level above the replica: the parent of the
	// challenged leaf with the remaining path still reaches the root
	h := hasher.MustByName(cfg.TreeHasher)
	p := vp.Proofs[0].InclusionProofs[0]
	group := append([]hasher.Domain{}, p.Path[0].Hashes[:p.Path[0].Index]...)
	group = append(group, p.Leaf)
	group = append(group, p.Path[0].Hashes[p.Path[0].Index:]...)

	short := p
	short.Leaf = h.HashNodes(group)
	short.Path = p.Path[1:]
	require.True(t, short.Verify(h))

	vp.Proofs[0].InclusionProofs[0] = short
	ok, err := post.VerifyVanillaProofs(cfg, randomness, prover, pub, vp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingSectorFailsSession(t *testing.T) {
	ctx := context.Background()
	cfg := postConfig()
	provider := store.NewMemProvider()
	pub, priv := sealSectors(t, provider, 1, 2)

	delete(priv, 2)
	_, err := post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	require.Error(t, err)
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
	assert.True(t, xerrors.Is(err, types.ErrSectorUnavailable))

	_, priv = sealSectors(t, provider, 1, 2)
	require.NoError(t, provider.Delete(ctx, priv[1].TreeRLast))
	_, err = post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	assert.True(t, xerrors.Is(err, types.ErrSectorUnavailable))
}

func TestWindowPoStThroughBackend(t *testing.T) {
	ctx := context.Background()
	cfg := postConfig()
	provider := store.NewMemProvider()
	pub, priv := sealSectors(t, provider, 4, 5, 6)
	backend := passthrough.Backend{}

	vp, err := post.GenerateVanillaProofs(ctx, cfg, randomness, prover, pub, priv, provider)
	require.NoError(t, err)

	proof, err := post.GenerateWindowPoSt(ctx, backend, vp)
	require.NoError(t, err)

	info := snark.WindowPoStVerifyInfo{Randomness: randomness, Prover: prover, Sectors: pub, Proof: proof}
	ok, err := post.VerifyWindowPoSt(ctx, backend, cfg, info)
	require.NoError(t, err)
	assert.True(t, ok)

	info.Prover = types.ProverID{1}
	ok, err = post.VerifyWindowPoSt(ctx, backend, cfg, info)
	require.NoError(t, err)
	assert.False(t, ok)
}
