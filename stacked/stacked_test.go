package stacked

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/types"
)

func testConfig(layers uint64) types.PoRepConfig {
	return types.PoRepConfig{
		SectorSize:      2 << 10,
		Partitions:      2,
		ChallengeCount:  3,
		Layers:          layers,
		BaseDegree:      6,
		ExpansionDegree: 8,
		PoRepID:         [32]byte{1, 2, 3},
		TreeHasher:      hasher.Blake2b,
		DataHasher:      hasher.Sha256,
	}
}

func randomData(seed int64, n uint64) []hasher.Domain {
	r := rand.New(rand.NewSource(seed))
	out := make([]hasher.Domain, n)
	for i := range out {
		_, _ = r.Read(out[i][:])
		out[i][31] &= 0x3f
	}
	return out
}

type sealed struct {
	pub PublicInputs
	aux *ProverAux
	g   *Graph
}

func sealForTest(t *testing.T, cfg types.PoRepConfig, data []hasher.Domain) sealed {
	ctx := context.Background()
	p := store.NewMemProvider()

	g, err := NewGraph(cfg)
	require.NoError(t, err)

	dataShape, err := merkle.NewShapeByName(types.BinaryArity, cfg.DataHasher)
	require.NoError(t, err)
	treeShape, err := merkle.NewShapeByName(types.OctArity, cfg.TreeHasher)
	require.NoError(t, err)

	treeD, err := dataShape.BuildInMemory(data)
	require.NoError(t, err)
	commD := types.Commitment(treeD.Root())

	replicaID := ReplicaID(types.ProverID{9}, 7, types.Ticket{5}, commD, cfg.PoRepID)

	labels := LayerConfigs("/sector/7", cfg.Layers, cfg.Nodes())
	require.NoError(t, LabelLayers(ctx, g, replicaID, labels, p))
	layers, err := OpenLayers(ctx, labels, p)
	require.NoError(t, err)

	treeC, err := BuildColumnTree(ctx, treeShape, layers, store.NewMemStore(types.StoreConfig{}))
	require.NoError(t, err)

	replica := store.NewMemStore(types.StoreConfig{})
	require.NoError(t, EncodeReplica(ctx, store.NewMemStoreFrom(data), layers[len(layers)-1], replica))
	treeR, err := treeShape.Build(ctx, replica, store.NewMemStore(types.StoreConfig{}))
	require.NoError(t, err)

	commR := types.Commitment(treeShape.Hasher.HashNodes([]hasher.Domain{treeC.Root(), treeR.Root()}))

	return sealed{
		pub: PublicInputs{ReplicaID: replicaID, Seed: types.ChallengeSeed{4, 4}, CommD: commD, CommR: commR},
		aux: &ProverAux{TreeD: treeD, TreeC: treeC, TreeRLast: treeR, Layers: layers},
		g:   g,
	}
}

func TestBaseParents(t *testing.T) {
	g, err := NewGraph(testConfig(2))
	require.NoError(t, err)

	ps, err := g.BaseParents(0)
	require.NoError(t, err)
	assert.Empty(t, ps)

	for node := uint64(1); node < g.Nodes(); node++ {
		ps, err := g.BaseParents(node)
		require.NoError(t, err)
		require.Len(t, ps, 6)
		assert.Equal(t, node-1, ps[5])
		for _, p := range ps {
			assert.Less(t, p, node)
		}

		again, err := g.BaseParents(node)
		require.NoError(t, err)
		assert.Equal(t, ps, again)
	}

	_, err = g.BaseParents(g.Nodes())
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

func TestExpanderParentsInRange(t *testing.T) {
	g, err := NewGraph(testConfig(3))
	require.NoError(t, err)

	for node := uint64(0); node < g.Nodes(); node++ {
		ps, err := g.ExpanderParents(node)
		require.NoError(t, err)
		require.Len(t, ps, 8)
		for _, p := range ps {
			assert.Less(t, p, g.Nodes())
		}
	}
}

func TestFeistelIsPermutation(t *testing.T) {
	for _, size := range []uint64{8, 64 * 8, 1000} {
		f := newFeistel(size, [32]byte{7})
		seen := make(map[uint64]bool, size)
		for i := uint64(0); i < size; i++ {
			v := f.permute(i)
			require.Less(t, v, size)
			require.False(t, seen[v], "size %d: %d hit twice", size, v)
			seen[v] = true
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	data := randomData(1, 256)
	keys := randomData(2, 256)
	for i := range data {
		r := Encode(keys[i], data[i])
		assert.True(t, r.IsFr32())
		assert.Equal(t, data[i], Decode(keys[i], r))
	}

	var max hasher.Domain
	for i := range max {
		max[i] = 0xff
	}
	max = hasher.Trim(max)
	var one hasher.Domain
	one[0] = 1
	assert.Equal(t, hasher.Domain{}, Encode(one, max))
}

func TestLabelsAreDeterministic(t *testing.T) {
	cfg := testConfig(3)
	data := randomData(3, cfg.Nodes())

	a := sealForTest(t, cfg, data)
	b := sealForTest(t, cfg, data)

	for l := range a.aux.Layers {
		la, err := store.ReadAll(a.aux.Layers[l])
		require.NoError(t, err)
		lb, err := store.ReadAll(b.aux.Layers[l])
		require.NoError(t, err)
		assert.Equal(t, la, lb, "layer %d", l+1)
	}
	assert.Equal(t, a.pub.CommR, b.pub.CommR)

	other := append([]hasher.Domain{}, data...)
	other[10][0] ^= 1
	c := sealForTest(t, cfg, other)
	assert.NotEqual(t, a.pub.CommR, c.pub.CommR)
}

func TestSealChallenges(t *testing.T) {
	cfg := testConfig(2)
	rid := hasher.Domain{1}
	a := SealChallenges(cfg, rid, types.ChallengeSeed{2}, 0)
	assert.Equal(t, a, SealChallenges(cfg, rid, types.ChallengeSeed{2}, 0))
	assert.NotEqual(t, a, SealChallenges(cfg, rid, types.ChallengeSeed{2}, 1))
	for _, c := range a {
		assert.True(t, c >= 1 && c < cfg.Nodes())
	}
}

func TestVanillaSealProofRoundTrip(t *testing.T) {
	for _, layers := range []uint64{1, 2, 4} {
		cfg := testConfig(layers)
		s := sealForTest(t, cfg, randomData(4, cfg.Nodes()))

		proofs, err := ProveAllPartitions(context.Background(), cfg, s.g, s.pub, s.aux)
		require.NoError(t, err)
		require.Len(t, proofs, 2)

		v, err := NewVerifier(cfg)
		require.NoError(t, err)
		assert.True(t, v.VerifyAllPartitions(s.pub, proofs), "layers %d", layers)
		assert.True(t, v.VerifyAllPartitions(s.pub, proofs), "verification must be repeatable")

		wrongSeed := s.pub
		wrongSeed.Seed[0] ^= 1
		assert.False(t, v.VerifyAllPartitions(wrongSeed, proofs))

		wrongR := s.pub
		wrongR.CommR[3] ^= 1
		assert.False(t, v.VerifyAllPartitions(wrongR, proofs))
	}
}

func TestVanillaSealProofTamper(t *testing.T) {
	cfg := testConfig(2)
	s := sealForTest(t, cfg, randomData(5, cfg.Nodes()))

	proofs, err := ProveAllPartitions(context.Background(), cfg, s.g, s.pub, s.aux)
	require.NoError(t, err)
	v, err := NewVerifier(cfg)
	require.NoError(t, err)

	c := SealChallenges(cfg, s.pub.ReplicaID, s.pub.Seed, 0)[0]
	good := proofs[0][0]
	require.True(t, v.VerifyChallenge(s.pub, c, good))

	fresh := func() Proof {
		p, err := ProveChallenge(s.g, s.aux, c)
		require.NoError(t, err)
		return p
	}

	p := fresh()
	p.CommDProof.Leaf[0] ^= 1
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	p = fresh()
	p.ReplicaColumnProofs.CX.Column.Rows[0][1] ^= 1
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	p = fresh()
	p.ReplicaColumnProofs.DrgParents[0].InclusionProof.Path[0].Hashes[0][0] ^= 1
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	p = fresh()
	p.LabelingProofs[1].Parents[0][2] ^= 1
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	p = fresh()
	p.CommRLastProof.Leaf[4] ^= 1
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	p = fresh()
	p.CommRLastProof.Path = p.CommRLastProof.Path[1:]
	p.CommRLastProof.Leaf = s.aux.TreeRLast.Shape().Hasher.HashNodes(leafGroup(t, s.aux.TreeRLast, c))
	assert.False(t, v.VerifyChallenge(s.pub, c, p))

	assert.False(t, v.VerifyChallenge(s.pub, c+1, fresh()))
}

func TestProveChallengeOutOfRange(t *testing.T) {
	cfg := testConfig(2)
	s := sealForTest(t, cfg, randomData(6, cfg.Nodes()))

	_, err := ProveChallenge(s.g, s.aux, cfg.Nodes())
	assert.Equal(t, types.ProofAssemblyError, types.KindOf(err))
	_, err = ProveChallenge(s.g, s.aux, 0)
	assert.Equal(t, types.ProofAssemblyError, types.KindOf(err))
}

func TestEncodeRejectsUnpaddedData(t *testing.T) {
	data := randomData(7, 8)
	data[3][31] |= 0x80
	keys := store.NewMemStoreFrom(randomData(8, 8))
	err := EncodeReplica(context.Background(), store.NewMemStoreFrom(data), keys, store.NewMemStore(types.StoreConfig{}))
	assert.Equal(t, types.ConfigurationError, types.KindOf(err))
}

// leafGroup reads the oct group holding leaf c.
func leafGroup(t *testing.T, tree *merkle.Tree, c uint64) []hasher.Domain {
	start := c - c%types.OctArity
	out := make([]hasher.Domain, 0, types.OctArity)
	for i := start; i < start+types.OctArity; i++ {
		d, err := tree.Read(i)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}
