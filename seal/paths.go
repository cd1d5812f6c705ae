package seal

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
	"github.com/filecoin-project/go-storage-proofs/stacked"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// Paths locates the stores of one sector.
type Paths struct {
	// Cache is the store namespace holding every store of the sector.
	Cache string
}

func PathsFor(sector types.SectorID) Paths {
	return Paths{Cache: fmt.Sprintf("/sectors/s-%d", sector)}
}

func (p Paths) Data(cfg types.PoRepConfig) types.StoreConfig {
	return types.NewStoreConfig(p.Cache, types.DataStoreID, cfg.Nodes())
}

func (p Paths) Replica(cfg types.PoRepConfig) types.StoreConfig {
	return types.NewStoreConfig(p.Cache, types.ReplicaStoreID, cfg.Nodes())
}

func (p Paths) TreeD(cfg types.PoRepConfig) types.StoreConfig {
	shape := merkle.Shape{Arity: types.BinaryArity}
	return types.NewStoreConfig(p.Cache, types.TreeDStoreID, shape.TreeLen(cfg.Nodes()))
}

func (p Paths) TreeC(cfg types.PoRepConfig) types.StoreConfig {
	shape := merkle.Shape{Arity: types.OctArity}
	return types.NewStoreConfig(p.Cache, types.TreeCStoreID, shape.TreeLen(cfg.Nodes()))
}

func (p Paths) TreeRLast(cfg types.PoRepConfig) types.StoreConfig {
	shape := merkle.Shape{Arity: types.OctArity}
	return types.NewStoreConfig(p.Cache, types.TreeRLastStoreID, shape.TreeLen(cfg.Nodes()))
}

func (p Paths) Labels(cfg types.PoRepConfig) types.Labels {
	return stacked.LayerConfigs(p.Cache, cfg.Layers, cfg.Nodes())
}

// All lists every store of the sector.
func (p Paths) All(cfg types.PoRepConfig) []types.StoreConfig {
	out := []types.StoreConfig{p.Data(cfg), p.Replica(cfg), p.TreeD(cfg), p.TreeC(cfg), p.TreeRLast(cfg)}
	return append(out, p.Labels(cfg).Configs...)
}

// Discard deletes every store of the sector.
func (p Paths) Discard(ctx context.Context, provider store.Provider, cfg types.PoRepConfig) error {
	for _, sc := range p.All(cfg) {
		if err := provider.Delete(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}
