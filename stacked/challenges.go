package stacked

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// SealChallenges derives the challenged nodes of a partition from public
// values only. Node 0 is never challenged.
func SealChallenges(cfg types.PoRepConfig, replicaID hasher.Domain, seed types.ChallengeSeed, partition uint64) []uint64 {
	nodes := cfg.Nodes()
	out := make([]uint64, cfg.ChallengeCount)

	var j [4]byte
	for k := range out {
		binary.LittleEndian.PutUint32(j[:], uint32(partition*cfg.ChallengeCount+uint64(k)))

		h := sha256.New()
		_, _ = h.Write(replicaID[:])
		_, _ = h.Write(seed[:])
		_, _ = h.Write(j[:])
		sum := h.Sum(nil)

		out[k] = binary.LittleEndian.Uint64(sum[:8])%(nodes-1) + 1
	}
	return out
}
