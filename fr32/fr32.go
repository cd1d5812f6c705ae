package fr32

import (
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const (
	// UnpaddedQuad is the number of raw bytes packed into PaddedQuad bytes.
	UnpaddedQuad = 127
	PaddedQuad   = 128

	chunkBits = 254
)

// UserBytesForSectorSize is the number of raw bytes a sector can hold.
func UserBytesForSectorSize(ssize abi.SectorSize) abi.UnpaddedPieceSize {
	return abi.PaddedPieceSize(ssize).Unpadded()
}

// Pad spreads every 127 raw bytes over 128 bytes so that each 32 byte node
// carries 254 data bits and two zero bits on top.
func Pad(in []byte) ([]byte, error) {
	if len(in)%UnpaddedQuad != 0 {
		return nil, xerrors.Errorf("cannot pad %d bytes, not a multiple of %d", len(in), UnpaddedQuad)
	}

	out := make([]byte, len(in)/UnpaddedQuad*PaddedQuad)
	for q := 0; q*UnpaddedQuad < len(in); q++ {
		src := in[q*UnpaddedQuad : (q+1)*UnpaddedQuad]
		dst := out[q*PaddedQuad : (q+1)*PaddedQuad]

		for k := 0; k < 4; k++ {
			off, shift := (k*chunkBits)/8, uint((k*chunkBits)%8)
			chunk := dst[k*hasher.NodeSize : (k+1)*hasher.NodeSize]
			for j := range chunk {
				var lo, hi byte
				if off+j < len(src) {
					lo = src[off+j] >> shift
				}
				if shift > 0 && off+j+1 < len(src) {
					hi = src[off+j+1] << (8 - shift)
				}
				chunk[j] = lo | hi
			}
			chunk[hasher.NodeSize-1] &= 0x3f
		}
	}
	return out, nil
}

// Unpad inverts Pad.
func Unpad(in []byte) ([]byte, error) {
	if len(in)%PaddedQuad != 0 {
		return nil, xerrors.Errorf("cannot unpad %d bytes, not a multiple of %d", len(in), PaddedQuad)
	}

	out := make([]byte, len(in)/PaddedQuad*UnpaddedQuad)
	for q := 0; q*PaddedQuad < len(in); q++ {
		src := in[q*PaddedQuad : (q+1)*PaddedQuad]
		dst := out[q*UnpaddedQuad : (q+1)*UnpaddedQuad]

		for k := 0; k < 4; k++ {
			off, shift := (k*chunkBits)/8, uint((k*chunkBits)%8)
			chunk := src[k*hasher.NodeSize : (k+1)*hasher.NodeSize]
			for j, v := range chunk {
				if j == hasher.NodeSize-1 {
					v &= 0x3f
				}
				if off+j < len(dst) {
					dst[off+j] |= v << shift
				}
				if shift > 0 && off+j+1 < len(dst) {
					dst[off+j+1] |= v >> (8 - shift)
				}
			}
		}
	}
	return out, nil
}

// ToNodes splits padded bytes into nodes.
func ToNodes(padded []byte) ([]hasher.Domain, error) {
	if len(padded)%hasher.NodeSize != 0 {
		return nil, xerrors.Errorf("%d bytes do not split into nodes", len(padded))
	}
	out := make([]hasher.Domain, len(padded)/hasher.NodeSize)
	for i := range out {
		copy(out[i][:], padded[i*hasher.NodeSize:])
	}
	return out, nil
}

// FromNodes concatenates nodes.
func FromNodes(nodes []hasher.Domain) []byte {
	out := make([]byte, 0, len(nodes)*hasher.NodeSize)
	for i := range nodes {
		out = append(out, nodes[i][:]...)
	}
	return out
}

// ReadSector reads up to the sector's user capacity from r, zero fills the
// rest and returns the padded sector as nodes. Input beyond the capacity is a
// ConfigurationError.
func ReadSector(r io.Reader, ssize abi.SectorSize) ([]hasher.Domain, error) {
	raw := make([]byte, UserBytesForSectorSize(ssize))
	n, err := io.ReadFull(r, raw)
	switch err {
	case nil:
		var extra [1]byte
		if _, err := io.ReadFull(r, extra[:]); err == nil {
			return nil, types.NewConfigurationError("data exceeds sector capacity of %d bytes", len(raw))
		} else if err != io.EOF {
			return nil, xerrors.Errorf("reading past sector data: %w", err)
		}
	case io.ErrUnexpectedEOF, io.EOF:
	default:
		return nil, xerrors.Errorf("reading sector data (%d bytes read): %w", n, err)
	}

	padded, err := Pad(raw)
	if err != nil {
		return nil, err
	}
	return ToNodes(padded)
}
