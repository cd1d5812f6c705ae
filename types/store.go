package types

import (
	"fmt"
)

// StoreConfig locates a leaf store.
type StoreConfig struct {
	// Path is the namespace holding the store (usually the sector cache dir).
	Path string
	// ID names the store inside Path, e.g. "tree-d" or "layer-1".
	ID string
	// Size is the number of rows (nodes) the store holds once complete.
	Size uint64
	// RowsToDiscard is the number of tree rows above the leaves that may be
	// dropped from a cached tree.
	RowsToDiscard uint64
}

func NewStoreConfig(path, id string, size uint64) StoreConfig {
	return StoreConfig{Path: path, ID: id, Size: size}
}

func (c StoreConfig) Key() string {
	return fmt.Sprintf("%s/%s", c.Path, c.ID)
}

func (c StoreConfig) String() string {
	return fmt.Sprintf("%s (%d rows)", c.Key(), c.Size)
}

// LayerStoreID names the label store of a layer (1-based).
func LayerStoreID(layer uint64) string {
	return fmt.Sprintf("layer-%d", layer)
}

const (
	DataStoreID      = "data"
	TreeDStoreID     = "tree-d"
	TreeCStoreID     = "tree-c"
	TreeRLastStoreID = "tree-r-last"
	ReplicaStoreID   = "replica"
)

// Labels lists the label store of every layer, in layer order.
type Labels struct {
	Configs []StoreConfig
}

func (l Labels) Layers() uint64 {
	return uint64(len(l.Configs))
}

// LayerConfig returns the store of the 1-based layer.
func (l Labels) LayerConfig(layer uint64) (StoreConfig, error) {
	if layer == 0 || layer > l.Layers() {
		return StoreConfig{}, NewConfigurationError("layer %d out of range (1..%d)", layer, l.Layers())
	}
	return l.Configs[layer-1], nil
}

// PersistentAux is the auxiliary data a prover keeps for the lifetime of a
// sealed sector.
type PersistentAux struct {
	CommC     Commitment
	CommRLast Commitment
}

// TemporaryAux is the auxiliary data needed until Commit-2 completes.
type TemporaryAux struct {
	Labels    Labels
	TreeD     StoreConfig
	TreeC     StoreConfig
	TreeRLast StoreConfig
	Replica   StoreConfig
}
