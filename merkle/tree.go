package merkle

import (
	"context"
	"runtime"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-storage-proofs/apis/hasher"
	"github.com/filecoin-project/go-storage-proofs/apis/store"
	"github.com/filecoin-project/go-storage-proofs/types"
)

var log = logging.Logger("merkle")

// parentsPerBatch bounds how many parents are hashed per read of a level.
const parentsPerBatch = 4096

// Shape describes a tree: its arity and the hasher combining children.
type Shape struct {
	Arity  uint64
	Hasher hasher.Hasher

	// Workers bounds the goroutines hashing a level. Zero means one per CPU.
	Workers int
}

func NewShape(arity uint64, h hasher.Hasher) (Shape, error) {
	if arity < 2 || arity&(arity-1) != 0 {
		return Shape{}, types.NewConfigurationError("unsupported tree arity %d", arity)
	}
	if h == nil {
		return Shape{}, types.NewConfigurationError("tree needs a hasher")
	}
	return Shape{Arity: arity, Hasher: h}, nil
}

// NewShapeByName resolves the hasher by name.
func NewShapeByName(arity uint64, hasherName string) (Shape, error) {
	h, err := hasher.ByName(hasherName)
	if err != nil {
		return Shape{}, types.NewProofError(err, types.ConfigurationError)
	}
	return NewShape(arity, h)
}

var defaultWorkers int64

// SetDefaultWorkers bounds the hashing goroutines of shapes that leave
// Workers unset. n <= 0 restores one per CPU.
func SetDefaultWorkers(n int) {
	atomic.StoreInt64(&defaultWorkers, int64(n))
}

func (s Shape) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	if n := atomic.LoadInt64(&defaultWorkers); n > 0 {
		return int(n)
	}
	return runtime.NumCPU()
}

// TreeLen is the number of nodes of a tree over leafs leaves, root included.
func (s Shape) TreeLen(leafs uint64) uint64 {
	var total uint64
	for n := leafs; ; n /= s.Arity {
		total += n
		if n <= 1 {
			return total
		}
	}
}

// Tree is a built tree whose levels live in a store, leaves first and root
// last.
type Tree struct {
	shape Shape
	leafs uint64
	nodes store.Store
	root  hasher.Domain
}

func (s Shape) checkLeafs(leafs uint64) error {
	if !types.IsPowerOf(leafs, s.Arity) {
		return types.NewConfigurationError("%d leaves cannot form a tree of arity %d", leafs, s.Arity)
	}
	return nil
}

// Build hashes the leaves of in into a tree written to out. out must be
// empty; in and out may be the same store.
func (s Shape) Build(ctx context.Context, in store.Store, out store.Store) (*Tree, error) {
	leafs := in.Len()
	if err := s.checkLeafs(leafs); err != nil {
		return nil, err
	}

	if in != out {
		if out.Len() != 0 {
			return nil, types.NewStoreIOError("tree store %s is not empty", out.Config().Key())
		}
		for start := uint64(0); start < leafs; start += parentsPerBatch * s.Arity {
			end := start + parentsPerBatch*s.Arity
			if end > leafs {
				end = leafs
			}
			batch, err := in.ReadRange(start, end)
			if err != nil {
				return nil, xerrors.Errorf("reading leaves: %w", err)
			}
			if err := out.Append(batch...); err != nil {
				return nil, xerrors.Errorf("copying leaves: %w", err)
			}
		}
	} else if out.Len() != leafs {
		return nil, types.NewStoreIOError("tree store %s must hold only leaves", out.Config().Key())
	}

	levelStart := uint64(0)
	for width := leafs; width > 1; width /= s.Arity {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Errorf("building tree: %w", err)
		}
		if err := s.hashLevel(ctx, out, levelStart, width); err != nil {
			return nil, err
		}
		levelStart += width
	}

	if err := out.Sync(); err != nil {
		return nil, xerrors.Errorf("syncing tree: %w", err)
	}

	root, err := out.Read(out.Len() - 1)
	if err != nil {
		return nil, xerrors.Errorf("reading root: %w", err)
	}

	log.Debugw("built tree", "store", out.Config().Key(), "arity", s.Arity, "leafs", leafs, "root", root)

	return &Tree{shape: s, leafs: leafs, nodes: out, root: root}, nil
}

// hashLevel appends the parents of the width nodes starting at levelStart.
func (s Shape) hashLevel(ctx context.Context, st store.Store, levelStart, width uint64) error {
	parents := width / s.Arity

	for first := uint64(0); first < parents; first += parentsPerBatch {
		count := uint64(parentsPerBatch)
		if first+count > parents {
			count = parents - first
		}

		children, err := st.ReadRange(levelStart+first*s.Arity, levelStart+(first+count)*s.Arity)
		if err != nil {
			return xerrors.Errorf("reading level: %w", err)
		}

		out := make([]hasher.Domain, count)

		workers := uint64(s.workers())
		per := (count + workers - 1) / workers
		eg, _ := errgroup.WithContext(ctx)
		for w := uint64(0); w < count; w += per {
			lo, hi := w, w+per
			if hi > count {
				hi = count
			}
			eg.Go(func() error {
				for p := lo; p < hi; p++ {
					out[p] = s.Hasher.HashNodes(children[p*s.Arity : (p+1)*s.Arity])
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		if err := st.Append(out...); err != nil {
			return xerrors.Errorf("writing level: %w", err)
		}
	}
	return nil
}

// BuildInMemory builds a tree over leaves held in memory.
func (s Shape) BuildInMemory(leaves []hasher.Domain) (*Tree, error) {
	st := store.NewMemStoreFrom(leaves)
	return s.Build(context.Background(), st, st)
}

// Open loads a tree previously built into st.
func (s Shape) Open(st store.Store, leafs uint64) (*Tree, error) {
	if err := s.checkLeafs(leafs); err != nil {
		return nil, err
	}
	if want := s.TreeLen(leafs); st.Len() != want {
		return nil, types.NewStoreIOError("tree store %s holds %d nodes, want %d", st.Config().Key(), st.Len(), want)
	}
	root, err := st.Read(st.Len() - 1)
	if err != nil {
		return nil, xerrors.Errorf("reading root: %w", err)
	}
	return &Tree{shape: s, leafs: leafs, nodes: st, root: root}, nil
}

func (t *Tree) Root() hasher.Domain {
	return t.root
}

func (t *Tree) Leafs() uint64 {
	return t.leafs
}

func (t *Tree) Shape() Shape {
	return t.shape
}

// Read returns leaf i.
func (t *Tree) Read(i uint64) (hasher.Domain, error) {
	if i >= t.leafs {
		return hasher.Domain{}, types.NewProofAssemblyError("leaf %d out of range (%d leaves)", i, t.leafs)
	}
	return t.nodes.Read(i)
}

// GenProof builds the inclusion proof of leaf i.
func (t *Tree) GenProof(i uint64) (Proof, error) {
	if i >= t.leafs {
		return Proof{}, types.NewProofAssemblyError("challenge %d out of range (%d leaves)", i, t.leafs)
	}

	leaf, err := t.nodes.Read(i)
	if err != nil {
		return Proof{}, xerrors.Errorf("reading leaf %d: %w", i, err)
	}

	arity := t.shape.Arity
	var path []PathElement
	levelStart, width, idx := uint64(0), t.leafs, i
	for width > 1 {
		groupStart := idx - idx%arity
		group, err := t.nodes.ReadRange(levelStart+groupStart, levelStart+groupStart+arity)
		if err != nil {
			return Proof{}, xerrors.Errorf("reading siblings of %d: %w", i, err)
		}

		pos := idx % arity
		siblings := make([]hasher.Domain, 0, arity-1)
		siblings = append(siblings, group[:pos]...)
		siblings = append(siblings, group[pos+1:]...)
		path = append(path, PathElement{Hashes: siblings, Index: pos})

		levelStart += width
		width /= arity
		idx /= arity
	}

	return Proof{Root: t.root, Leaf: leaf, Path: path}, nil
}
