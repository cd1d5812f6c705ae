package stacked

import (
	"context"
	"encoding/binary"

	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/sha256-simd"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("stacked")

// ReplicaID binds a replica to its prover, sector, ticket, data and proof
// type.
func ReplicaID(prover types.ProverID, sector types.SectorID, ticket types.Ticket, commD types.Commitment, porepID [32]byte) hasher.Domain {
	var sid [8]byte
	binary.LittleEndian.PutUint64(sid[:], uint64(sector))

	h := sha256.New()
	_, _ = h.Write(prover[:])
	_, _ = h.Write(sid[:])
	_, _ = h.Write(ticket[:])
	_, _ = h.Write(commD[:])
	_, _ = h.Write(porepID[:])

	var out hasher.Domain
	copy(out[:], h.Sum(nil))
	return hasher.Trim(out)
}

// Label computes the label of node in layer (1-based) from its parents'
// labels.
func Label(replicaID hasher.Domain, layer, node uint64, parents []hasher.Domain) hasher.Domain {
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(layer))
	binary.BigEndian.PutUint64(hdr[4:], node)

	h := sha256.New()
	_, _ = h.Write(replicaID[:])
	_, _ = h.Write(hdr[:])
	for i := range parents {
		_, _ = h.Write(parents[i][:])
	}

	var out hasher.Domain
	copy(out[:], h.Sum(nil))
	return hasher.Trim(out)
}

// LayerParents gathers the parent labels of node in layer: base parents from
// the current layer and, past the first layer, expander parents from the
// previous one.
func LayerParents(g *Graph, layer, node uint64, cur, prev store.Store) ([]hasher.Domain, error) {
	base, err := g.BaseParents(node)
	if err != nil {
		return nil, err
	}

	var exp []uint64
	if layer > 1 {
		if exp, err = g.ExpanderParents(node); err != nil {
			return nil, err
		}
	}

	out := make([]hasher.Domain, 0, len(base)+len(exp))
	for _, p := range base {
		l, err := cur.Read(p)
		if err != nil {
			return nil, xerrors.Errorf("reading base parent %d of node %d: %w", p, node, err)
		}
		out = append(out, l)
	}
	for _, p := range exp {
		l, err := prev.Read(p)
		if err != nil {
			return nil, xerrors.Errorf("reading expander parent %d of node %d: %w", p, node, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// LayerConfigs names the label store of every layer under path.
func LayerConfigs(path string, layers, nodes uint64) types.Labels {
	out := types.Labels{Configs: make([]types.StoreConfig, layers)}
	for l := uint64(1); l <= layers; l++ {
		out.Configs[l-1] = types.NewStoreConfig(path, types.LayerStoreID(l), nodes)
	}
	return out
}

// LabelLayers computes every layer in order. A layer is fully written and
// synced before the next one starts; any store failure aborts the run.
func LabelLayers(ctx context.Context, g *Graph, replicaID hasher.Domain, labels types.Labels, provider store.Provider) error {
	var prev store.Store
	for layer := uint64(1); layer <= labels.Layers(); layer++ {
		if err := ctx.Err(); err != nil {
			return xerrors.Errorf("labeling layer %d: %w", layer, err)
		}

		cfg, err := labels.LayerConfig(layer)
		if err != nil {
			return err
		}

		cur, err := provider.Create(ctx, cfg)
		if err != nil {
			return xerrors.Errorf("creating layer %d store: %w", layer, err)
		}

		log.Debugw("labeling layer", "layer", layer, "nodes", g.Nodes())

		for node := uint64(0); node < g.Nodes(); node++ {
			parents, err := LayerParents(g, layer, node, cur, prev)
			if err != nil {
				return xerrors.Errorf("layer %d: %w", layer, err)
			}
			if err := cur.Append(Label(replicaID, layer, node, parents)); err != nil {
				return xerrors.Errorf("writing label %d of layer %d: %w", node, layer, err)
			}
		}

		if err := cur.Sync(); err != nil {
			return xerrors.Errorf("syncing layer %d: %w", layer, err)
		}
		prev = cur
	}
	return nil
}

// OpenLayers opens every complete label store.
func OpenLayers(ctx context.Context, labels types.Labels, provider store.Provider) ([]store.Store, error) {
	out := make([]store.Store, 0, labels.Layers())
	for _, cfg := range labels.Configs {
		s, err := store.OpenComplete(ctx, provider, cfg)
		if err != nil {
			return nil, xerrors.Errorf("opening labels %s: %w", cfg.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}
