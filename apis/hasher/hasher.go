package hasher

import (
	"encoding/hex"
	"hash"

	"github.com/minio/blake2b-simd"
	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
	"golang.org/x/xerrors"
)

// NodeSize is the size in bytes of a single tree node.
const NodeSize = 32

const (
	Sha256  = "sha256"
	Blake2b = "blake2b"
	Blake3  = "blake3"
)

// Domain is a 32 byte tree node. Values produced by a Hasher always fit in
// 254 bits (the two most significant bits of the last byte are zero).
type Domain [NodeSize]byte

func (d Domain) String() string {
	return hex.EncodeToString(d[:])
}

// IsFr32 reports whether the value fits in 254 bits.
func (d Domain) IsFr32() bool {
	return d[NodeSize-1]&0xc0 == 0
}

// Trim clears the two most significant bits of d.
func Trim(d Domain) Domain {
	d[NodeSize-1] &= 0x3f
	return d
}

// Hasher is the compression primitive used to build trees and labels.
type Hasher interface {
	Name() string

	// Hash digests arbitrary bytes into a node.
	Hash(data []byte) Domain

	// HashNodes combines child nodes into their parent.
	HashNodes(nodes []Domain) Domain
}

// ByName returns the hasher registered under the given name.
func ByName(name string) (Hasher, error) {
	switch name {
	case Sha256:
		return streamHasher{name: Sha256, newHash: sha256.New}, nil
	case Blake2b:
		return streamHasher{name: Blake2b, newHash: blake2b.New256}, nil
	case Blake3:
		return streamHasher{name: Blake3, newHash: func() hash.Hash { return blake3.New() }}, nil
	default:
		return nil, xerrors.Errorf("unknown hasher %q", name)
	}
}

// MustByName is ByName for names known at compile time.
func MustByName(name string) Hasher {
	h, err := ByName(name)
	if err != nil {
		panic(err)
	}
	return h
}

type streamHasher struct {
	name    string
	newHash func() hash.Hash
}

func (s streamHasher) Name() string {
	return s.name
}

func (s streamHasher) Hash(data []byte) Domain {
	h := s.newHash()
	_, _ = h.Write(data)
	return s.sum(h)
}

func (s streamHasher) HashNodes(nodes []Domain) Domain {
	h := s.newHash()
	for i := range nodes {
		_, _ = h.Write(nodes[i][:])
	}
	return s.sum(h)
}

func (s streamHasher) sum(h hash.Hash) Domain {
	var out Domain
	copy(out[:], h.Sum(nil))
	return Trim(out)
}
