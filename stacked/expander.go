package stacked

import (
	"encoding/binary"
	"math/bits"
	"strconv"

	"github.com/minio/blake2b-simd"
)

const feistelRounds = 4

// feistel is a keyed permutation of [0, size), built from a balanced Feistel
// network over the next even bit width and cycle walking.
type feistel struct {
	size      uint64
	halfBits  uint
	rightMask uint64
	keys      [feistelRounds]uint64
}

func newFeistel(size uint64, porepID [32]byte) *feistel {
	width := uint(bits.Len64(size - 1))
	if width%2 == 1 {
		width++
	}
	if width == 0 {
		width = 2
	}

	f := &feistel{
		size:      size,
		halfBits:  width / 2,
		rightMask: (uint64(1) << (width / 2)) - 1,
	}
	for i := range f.keys {
		k := deriveKey(porepID, "feistel-"+strconv.Itoa(i))
		f.keys[i] = binary.LittleEndian.Uint64(k[:8])
	}
	return f
}

func (f *feistel) permute(index uint64) uint64 {
	u := f.encode(index)
	for u >= f.size {
		u = f.encode(u)
	}
	return u
}

func (f *feistel) encode(index uint64) uint64 {
	left := (index >> f.halfBits) & f.rightMask
	right := index & f.rightMask

	for _, key := range f.keys {
		left, right = right, left^f.round(right, key)
	}
	return left<<f.halfBits | right
}

func (f *feistel) round(right, key uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], right)
	binary.LittleEndian.PutUint64(buf[8:], key)

	h := blake2b.New256()
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8]) & f.rightMask
}
