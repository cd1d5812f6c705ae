package stacked

import (
	"context"
	"encoding/binary"
	"math/bits"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const encodeBatch = 4096

func limbs(d hasher.Domain) [4]uint64 {
	var out [4]uint64
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(d[i*8:])
	}
	return out
}

func fromLimbs(l [4]uint64) hasher.Domain {
	var out hasher.Domain
	for i := range l {
		binary.LittleEndian.PutUint64(out[i*8:], l[i])
	}
	return hasher.Trim(out)
}

// Encode combines a data node with its key: (data + key) mod 2^254 over
// little-endian values.
func Encode(key, data hasher.Domain) hasher.Domain {
	a, b := limbs(data), limbs(key)
	var out [4]uint64
	var carry uint64
	for i := range out {
		out[i], carry = bits.Add64(a[i], b[i], carry)
	}
	return fromLimbs(out)
}

// Decode inverts Encode.
func Decode(key, replica hasher.Domain) hasher.Domain {
	a, b := limbs(replica), limbs(key)
	var out [4]uint64
	var borrow uint64
	for i := range out {
		out[i], borrow = bits.Sub64(a[i], b[i], borrow)
	}
	return fromLimbs(out)
}

// EncodeReplica writes the replica of data keyed by the last layer labels.
func EncodeReplica(ctx context.Context, data, key, out store.Store) error {
	n := data.Len()
	if key.Len() != n {
		return types.NewConfigurationError("data holds %d nodes, labels %d", n, key.Len())
	}

	for start := uint64(0); start < n; start += encodeBatch {
		if err := ctx.Err(); err != nil {
			return xerrors.Errorf("encoding replica: %w", err)
		}

		end := start + encodeBatch
		if end > n {
			end = n
		}
		ds, err := data.ReadRange(start, end)
		if err != nil {
			return xerrors.Errorf("reading data: %w", err)
		}
		ks, err := key.ReadRange(start, end)
		if err != nil {
			return xerrors.Errorf("reading labels: %w", err)
		}

		rs := make([]hasher.Domain, len(ds))
		for i := range ds {
			if !ds[i].IsFr32() {
				return types.NewConfigurationError("data node %d is not fr32 padded", start+uint64(i))
			}
			rs[i] = Encode(ks[i], ds[i])
		}
		if err := out.Append(rs...); err != nil {
			return xerrors.Errorf("writing replica: %w", err)
		}
	}
	return out.Sync()
}

// DecodeRange recovers data nodes [start, end) from the replica.
func DecodeRange(replica, key store.Store, start, end uint64) ([]hasher.Domain, error) {
	rs, err := replica.ReadRange(start, end)
	if err != nil {
		return nil, xerrors.Errorf("reading replica: %w", err)
	}
	ks, err := key.ReadRange(start, end)
	if err != nil {
		return nil, xerrors.Errorf("reading labels: %w", err)
	}
	for i := range rs {
		rs[i] = Decode(ks[i], rs[i])
	}
	return rs, nil
}
