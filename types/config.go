package types

import (
	"encoding/binary"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
)

const (
	OctArity    = 8
	BinaryArity = 2
)

// PoRepConfig fixes every public parameter of a sealing run.
type PoRepConfig struct {
	SectorSize      abi.SectorSize
	Partitions      uint64
	ChallengeCount  uint64 // per partition
	Layers          uint64
	BaseDegree      uint64
	ExpansionDegree uint64
	PoRepID         [32]byte
	TreeHasher      string
	DataHasher      string
}

// Nodes is the number of 32 byte nodes in a sector.
func (c PoRepConfig) Nodes() uint64 {
	return uint64(c.SectorSize) / hasher.NodeSize
}

func (c PoRepConfig) TotalChallenges() uint64 {
	return c.Partitions * c.ChallengeCount
}

func (c PoRepConfig) Validate() error {
	if uint64(c.SectorSize)%hasher.NodeSize != 0 {
		return NewConfigurationError("sector size %d is not a multiple of %d", c.SectorSize, hasher.NodeSize)
	}
	if !IsPowerOf(c.Nodes(), OctArity) {
		return NewConfigurationError("sector of %d nodes cannot form an oct tree", c.Nodes())
	}
	if c.Layers == 0 {
		return NewConfigurationError("at least one layer is required")
	}
	if c.Partitions == 0 || c.ChallengeCount == 0 {
		return NewConfigurationError("partitions (%d) and challenges (%d) must be positive", c.Partitions, c.ChallengeCount)
	}
	if c.BaseDegree < 2 {
		return NewConfigurationError("base degree %d too small", c.BaseDegree)
	}
	if c.Layers > 1 && c.ExpansionDegree == 0 {
		return NewConfigurationError("expansion degree required for %d layers", c.Layers)
	}
	for _, name := range []string{c.TreeHasher, c.DataHasher} {
		if _, err := hasher.ByName(name); err != nil {
			return NewProofError(err, ConfigurationError)
		}
	}
	return nil
}

// IsPowerOf reports whether n is a positive power of base (base must be a
// power of two), n >= base.
func IsPowerOf(n, base uint64) bool {
	if n < base || n&(n-1) != 0 {
		return false
	}
	for n > 1 {
		if n%base != 0 {
			return false
		}
		n /= base
	}
	return true
}

// PoRepIDFor encodes the registered proof number into a PoRep id.
func PoRepIDFor(p abi.RegisteredSealProof) [32]byte {
	var id [32]byte
	binary.LittleEndian.PutUint64(id[:8], uint64(p))
	return id
}

type porepShape struct {
	layers, partitions, challenges uint64
}

var porepShapes = map[abi.RegisteredSealProof]porepShape{
	abi.RegisteredSealProof_StackedDrg2KiBV1_1:   {layers: 2, partitions: 1, challenges: 2},
	abi.RegisteredSealProof_StackedDrg8MiBV1_1:   {layers: 2, partitions: 1, challenges: 2},
	abi.RegisteredSealProof_StackedDrg512MiBV1_1: {layers: 2, partitions: 1, challenges: 2},
	abi.RegisteredSealProof_StackedDrg32GiBV1_1:  {layers: 11, partitions: 10, challenges: 18},
}

// PoRepConfigFor returns the built-in configuration of a registered proof.
func PoRepConfigFor(p abi.RegisteredSealProof) (PoRepConfig, error) {
	shape, ok := porepShapes[p]
	if !ok {
		return PoRepConfig{}, NewConfigurationError("unsupported seal proof type %d", p)
	}
	size, err := p.SectorSize()
	if err != nil {
		return PoRepConfig{}, NewProofError(err, ConfigurationError)
	}

	cfg := PoRepConfig{
		SectorSize:      size,
		Partitions:      shape.partitions,
		ChallengeCount:  shape.challenges,
		Layers:          shape.layers,
		BaseDegree:      6,
		ExpansionDegree: 8,
		PoRepID:         PoRepIDFor(p),
		TreeHasher:      hasher.Blake2b,
		DataHasher:      hasher.Sha256,
	}
	return cfg, cfg.Validate()
}

type PoStType uint64

const (
	PoStTypeWindow PoStType = iota
	PoStTypeWinning
)

func (t PoStType) String() string {
	if t == PoStTypeWinning {
		return "winning"
	}
	return "window"
}

// PoStConfig fixes the public parameters of a PoSt session.
type PoStConfig struct {
	SectorSize     abi.SectorSize
	ChallengeCount uint64 // per sector
	SectorCount    uint64 // per partition
	Type           PoStType
	TreeHasher     string
}

func (c PoStConfig) Nodes() uint64 {
	return uint64(c.SectorSize) / hasher.NodeSize
}

func (c PoStConfig) Validate() error {
	if !IsPowerOf(c.Nodes(), OctArity) {
		return NewConfigurationError("sector of %d nodes cannot form an oct tree", c.Nodes())
	}
	if c.ChallengeCount == 0 || c.SectorCount == 0 {
		return NewConfigurationError("challenge count (%d) and sector count (%d) must be positive", c.ChallengeCount, c.SectorCount)
	}
	if _, err := hasher.ByName(c.TreeHasher); err != nil {
		return NewProofError(err, ConfigurationError)
	}
	return nil
}

const (
	WindowPoStChallengeCount  = 10
	WinningPoStChallengeCount = 66
	WinningPoStSectorCount    = 1
)

var windowPoStSectorCounts = map[abi.SectorSize]uint64{
	2 << 10:   2,
	8 << 20:   2,
	512 << 20: 2,
	32 << 30:  2349,
}

// PoStConfigFor returns the built-in PoSt configuration for a sector size.
func PoStConfigFor(size abi.SectorSize, typ PoStType) (PoStConfig, error) {
	cfg := PoStConfig{
		SectorSize: size,
		Type:       typ,
		TreeHasher: hasher.Blake2b,
	}
	switch typ {
	case PoStTypeWinning:
		cfg.ChallengeCount = WinningPoStChallengeCount
		cfg.SectorCount = WinningPoStSectorCount
	default:
		count, ok := windowPoStSectorCounts[size]
		if !ok {
			return PoStConfig{}, NewConfigurationError("unsupported window post sector size %d", size)
		}
		cfg.ChallengeCount = WindowPoStChallengeCount
		cfg.SectorCount = count
	}
	return cfg, cfg.Validate()
}
