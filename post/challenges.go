package post

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"

	"github.com/filecoin-project/go-storage-proofs/types"
)

// Challenges are the challenged leaves of every sector of a PoSt session.
type Challenges struct {
	Config     types.PoStConfig
	Randomness types.ChallengeSeed
	Prover     types.ProverID
	Sectors    map[types.SectorID][]uint64
}

// GenerateSectorChallenge derives the challenged leaves of one sector. It is
// a pure function of its arguments.
func GenerateSectorChallenge(cfg types.PoStConfig, randomness types.ChallengeSeed, prover types.ProverID, sector types.SectorID) []uint64 {
	var sid [8]byte
	binary.LittleEndian.PutUint64(sid[:], uint64(sector))

	h := sha256.New()
	_, _ = h.Write(randomness[:])
	_, _ = h.Write(prover[:])
	_, _ = h.Write(sid[:])
	seed := h.Sum(nil)

	nodes := cfg.Nodes()
	out := make([]uint64, cfg.ChallengeCount)
	var idx [8]byte
	for i := range out {
		binary.LittleEndian.PutUint64(idx[:], uint64(i))

		h.Reset()
		_, _ = h.Write(seed)
		_, _ = h.Write(idx[:])
		sum := h.Sum(nil)

		out[i] = binary.LittleEndian.Uint64(sum[:8]) % nodes
	}
	return out
}

// GenerateSectorChallenges derives the challenges of every sector.
func GenerateSectorChallenges(cfg types.PoStConfig, randomness types.ChallengeSeed, prover types.ProverID, sectors []types.SectorID) (*Challenges, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &Challenges{
		Config:     cfg,
		Randomness: randomness,
		Prover:     prover,
		Sectors:    make(map[types.SectorID][]uint64, len(sectors)),
	}
	for _, s := range sectors {
		if _, dup := out.Sectors[s]; dup {
			return nil, types.NewConfigurationError("sector %d challenged twice", s)
		}
		out.Sectors[s] = GenerateSectorChallenge(cfg, randomness, prover, s)
	}
	return out, nil
}
