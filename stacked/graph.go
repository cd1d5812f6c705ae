package stacked

import (
	"encoding/binary"
	"math/bits"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/types"
)

// Graph is the stacked DRG: a bucket-sampled base graph within a layer plus
// an expander graph between consecutive layers. Parents are pure functions
// of the PoRep id and the node index.
type Graph struct {
	nodes           uint64
	baseDegree      uint64
	expansionDegree uint64

	drgKey  [32]byte
	feistel *feistel
}

func NewGraph(cfg types.PoRepConfig) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:           cfg.Nodes(),
		baseDegree:      cfg.BaseDegree,
		expansionDegree: cfg.ExpansionDegree,
		drgKey:          deriveKey(cfg.PoRepID, "drg"),
	}
	if cfg.ExpansionDegree > 0 {
		g.feistel = newFeistel(g.nodes*cfg.ExpansionDegree, cfg.PoRepID)
	}
	return g, nil
}

func deriveKey(porepID [32]byte, domain string) [32]byte {
	h := sha256.New()
	_, _ = h.Write(porepID[:])
	_, _ = h.Write([]byte(domain))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (g *Graph) Nodes() uint64 {
	return g.nodes
}

func (g *Graph) BaseDegree() uint64 {
	return g.baseDegree
}

func (g *Graph) ExpansionDegree() uint64 {
	return g.expansionDegree
}

// BaseParents returns the in-layer parents of node. Node 0 has none; every
// other node has BaseDegree parents, all strictly smaller than node, the last
// one being node-1.
func (g *Graph) BaseParents(node uint64) ([]uint64, error) {
	if node >= g.nodes {
		return nil, types.NewConfigurationError("node %d out of range (%d nodes)", node, g.nodes)
	}
	if node == 0 {
		return nil, nil
	}

	parents := make([]uint64, g.baseDegree)
	mPrime := g.baseDegree - 1
	parents[mPrime] = node - 1
	if node == 1 {
		return parents, nil
	}

	rng, err := newChachaRNG(g.drgKey, node)
	if err != nil {
		return nil, err
	}

	logi := uint64(bits.Len64(node*mPrime) - 1)
	for k := uint64(0); k < mPrime; k++ {
		meta := node*mPrime + k

		j := rng.intn(logi)
		jj := meta
		if b := uint64(1) << (j + 1); b < jj {
			jj = b
		}
		lo := jj >> 1
		if lo < 2 {
			lo = 2
		}
		backDist := lo + rng.intn(jj-lo+1)

		parent := (meta - backDist) / mPrime
		if parent >= node {
			parent = node - 1
		}
		parents[k] = parent
	}
	return parents, nil
}

// ExpanderParents returns the parents of node in the previous layer.
func (g *Graph) ExpanderParents(node uint64) ([]uint64, error) {
	if node >= g.nodes {
		return nil, types.NewConfigurationError("node %d out of range (%d nodes)", node, g.nodes)
	}
	if g.feistel == nil {
		return nil, nil
	}

	parents := make([]uint64, g.expansionDegree)
	for i := range parents {
		p := g.feistel.permute(node*g.expansionDegree+uint64(i)) / g.expansionDegree
		if p >= g.nodes {
			return nil, types.NewConfigurationError("expander parent %d of node %d out of range", p, node)
		}
		parents[i] = p
	}
	return parents, nil
}

// chachaRNG draws integers from a ChaCha20 keystream keyed per graph with the
// node index as nonce.
type chachaRNG struct {
	c   *chacha20.Cipher
	buf [8]byte
}

func newChachaRNG(key [32]byte, node uint64) (*chachaRNG, error) {
	var nonce [chacha20.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[:], node)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, xerrors.Errorf("seeding drg rng: %w", err)
	}
	return &chachaRNG{c: c}, nil
}

func (r *chachaRNG) next() uint64 {
	r.buf = [8]byte{}
	r.c.XORKeyStream(r.buf[:], r.buf[:])
	return binary.LittleEndian.Uint64(r.buf[:])
}

// intn returns a value in [0, n); n must be positive.
func (r *chachaRNG) intn(n uint64) uint64 {
	return r.next() % n
}
