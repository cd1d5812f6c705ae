package stacked

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/merkle"
)

const columnBatch = 1024

// Column is the label of every layer at one node.
type Column struct {
	Index uint64
	Rows  []hasher.Domain
}

func (c Column) Hash(h hasher.Hasher) hasher.Domain {
	return h.HashNodes(c.Rows)
}

// ReadColumn reads the column of node from the label stores.
func ReadColumn(layers []store.Store, node uint64) (Column, error) {
	col := Column{Index: node, Rows: make([]hasher.Domain, len(layers))}
	for l, s := range layers {
		v, err := s.Read(node)
		if err != nil {
			return Column{}, xerrors.Errorf("reading column %d layer %d: %w", node, l+1, err)
		}
		col.Rows[l] = v
	}
	return col, nil
}

// BuildColumnTree commits to the column hashes of every node. The tree,
// leaves included, is written to out.
func BuildColumnTree(ctx context.Context, shape merkle.Shape, layers []store.Store, out store.Store) (*merkle.Tree, error) {
	if len(layers) == 0 {
		return nil, xerrors.New("no label layers")
	}
	nodes := layers[0].Len()

	for start := uint64(0); start < nodes; start += columnBatch {
		end := start + columnBatch
		if end > nodes {
			end = nodes
		}

		rows := make([][]hasher.Domain, len(layers))
		for l, s := range layers {
			r, err := s.ReadRange(start, end)
			if err != nil {
				return nil, xerrors.Errorf("reading layer %d: %w", l+1, err)
			}
			rows[l] = r
		}

		hashes := make([]hasher.Domain, end-start)
		col := make([]hasher.Domain, len(layers))
		for i := range hashes {
			for l := range rows {
				col[l] = rows[l][i]
			}
			hashes[i] = shape.Hasher.HashNodes(col)
		}
		if err := out.Append(hashes...); err != nil {
			return nil, xerrors.Errorf("writing column hashes: %w", err)
		}
	}

	return shape.Build(ctx, out, out)
}
