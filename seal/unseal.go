package seal

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/fr32"
	"github.com/filecoin-project/go-storage-proofs/stacked"
	"github.com/filecoin-project/go-storage-proofs/types"
)

// nodes per fr32 quad
const quadNodes = fr32.PaddedQuad / 32

// Unseal recovers the raw bytes held by nodes [offset, offset+count) of a
// sealed sector. Both values must be multiples of 4. Labels dropped by
// ClearCache are recomputed first.
func Unseal(ctx context.Context, provider store.Provider, p1 *PreCommit1Output, p2 *PreCommit2Output, offset, count uint64) ([]byte, error) {
	cfg := p1.Config
	if offset%quadNodes != 0 || count%quadNodes != 0 {
		return nil, types.NewConfigurationError("unseal range [%d, +%d) is not quad aligned", offset, count)
	}
	if offset+count > cfg.Nodes() {
		return nil, types.NewConfigurationError("unseal range [%d, +%d) exceeds %d nodes", offset, count, cfg.Nodes())
	}

	replica, err := store.OpenComplete(ctx, provider, p2.TemporaryAux.Replica)
	if err != nil {
		return nil, xerrors.Errorf("opening replica: %w", err)
	}

	lastCfg, err := p1.Labels.LayerConfig(p1.Labels.Layers())
	if err != nil {
		return nil, err
	}
	key, err := store.OpenComplete(ctx, provider, lastCfg)
	if err != nil {
		log.Infow("labels missing, relabeling for unseal", "sector", p1.Sector)

		g, err := stacked.NewGraph(cfg)
		if err != nil {
			return nil, err
		}
		if err := stacked.LabelLayers(ctx, g, p1.ReplicaID, p1.Labels, provider); err != nil {
			return nil, xerrors.Errorf("relabeling sector %d: %w", p1.Sector, err)
		}
		if key, err = store.OpenComplete(ctx, provider, lastCfg); err != nil {
			return nil, err
		}
	}

	nodes, err := stacked.DecodeRange(replica, key, offset, offset+count)
	if err != nil {
		return nil, err
	}
	return fr32.Unpad(fr32.FromNodes(nodes))
}
