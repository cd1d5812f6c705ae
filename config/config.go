package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/sealing"
	"github.com/filecoin-project/go-storage-proofs/types"
)

const configFilename = "config.toml"

// Config is an in memory representation of the sealer configuration file.
type Config struct {
	Datastore *DatastoreConfig `toml:"datastore"`
	Sealing   *SealingConfig   `toml:"sealing"`
}

// DatastoreConfig holds all the configuration options for the datastore.
type DatastoreConfig struct {
	// Type is "badgerds" or "memory".
	Type string `toml:"type"`
	// Path is relative to the repo directory.
	Path string `toml:"path"`
}

func newDefaultDatastoreConfig() *DatastoreConfig {
	return &DatastoreConfig{
		Type: "badgerds",
		Path: "badger",
	}
}

// SealingConfig holds the proof parameters and the pipeline tuning.
type SealingConfig struct {
	SectorSize  string `toml:"sectorSize"`
	ProverID    string `toml:"proverID"` // hex
	Parallelism int    `toml:"parallelism"`
	RetryDelay  string `toml:"retryDelay"`
	MaxFailures uint64 `toml:"maxFailures"`
}

func newDefaultSealingConfig() *SealingConfig {
	opts := sealing.DefaultOptions()
	return &SealingConfig{
		SectorSize:  "2KiB",
		ProverID:    hex.EncodeToString(make([]byte, 32)),
		RetryDelay:  opts.RetryDelay.String(),
		MaxFailures: opts.MaxFailures,
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		Datastore: newDefaultDatastoreConfig(),
		Sealing:   newDefaultSealingConfig(),
	}
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Missing keys keep their defaults.
func ReadFile(file string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, xerrors.Errorf("decoding %s: %w", file, err)
	}
	return cfg, nil
}

// Load reads the config of the repo at repoPath, writing the defaults first
// if the repo has none.
func Load(repoPath string) (*Config, string, error) {
	expath, err := homedir.Expand(repoPath)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(expath, 0755); err != nil {
		return nil, "", xerrors.Errorf("creating repo %s: %w", expath, err)
	}

	file := filepath.Join(expath, configFilename)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		cfg := NewDefaultConfig()
		if err := cfg.WriteFile(file); err != nil {
			return nil, "", xerrors.Errorf("writing default config: %w", err)
		}
		return cfg, expath, nil
	}

	cfg, err := ReadFile(file)
	if err != nil {
		return nil, "", err
	}
	return cfg, expath, nil
}

var sealProofs = map[abi.SectorSize]abi.RegisteredSealProof{
	2 << 10:   abi.RegisteredSealProof_StackedDrg2KiBV1_1,
	8 << 20:   abi.RegisteredSealProof_StackedDrg8MiBV1_1,
	512 << 20: abi.RegisteredSealProof_StackedDrg512MiBV1_1,
	32 << 30:  abi.RegisteredSealProof_StackedDrg32GiBV1_1,
}

// SectorSizeBytes parses the human readable sector size, e.g. "2KiB".
func (c *SealingConfig) SectorSizeBytes() (abi.SectorSize, error) {
	n, err := units.RAMInBytes(c.SectorSize)
	if err != nil {
		return 0, types.NewProofError(xerrors.Errorf("parsing sector size %q: %w", c.SectorSize, err), types.ConfigurationError)
	}
	return abi.SectorSize(n), nil
}

// RegisteredProof maps the sector size to its seal proof type.
func (c *SealingConfig) RegisteredProof() (abi.RegisteredSealProof, error) {
	size, err := c.SectorSizeBytes()
	if err != nil {
		return 0, err
	}
	p, ok := sealProofs[size]
	if !ok {
		return 0, types.NewConfigurationError("no seal proof for sector size %s", units.BytesSize(float64(size)))
	}
	return p, nil
}

func (c *SealingConfig) Prover() (types.ProverID, error) {
	var out types.ProverID
	b, err := hex.DecodeString(c.ProverID)
	if err != nil {
		return out, types.NewProofError(xerrors.Errorf("parsing prover id: %w", err), types.ConfigurationError)
	}
	if len(b) != len(out) {
		return out, types.NewConfigurationError("prover id must be %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Options builds the state machine options and applies the parallelism.
func (c *SealingConfig) Options() (sealing.Options, error) {
	opts := sealing.DefaultOptions()
	if c.RetryDelay != "" {
		d, err := time.ParseDuration(c.RetryDelay)
		if err != nil {
			return opts, types.NewProofError(xerrors.Errorf("parsing retry delay: %w", err), types.ConfigurationError)
		}
		opts.RetryDelay = d
	}
	opts.MaxFailures = c.MaxFailures

	merkle.SetDefaultWorkers(c.Parallelism)
	return opts, nil
}
