package config

import (
	"io"
	"path/filepath"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	badger "github.com/ipfs/go-ds-badger2"
	"golang.org/x/xerrors"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenDatastore opens the datastore of the repo at repoPath.
func (c *DatastoreConfig) OpenDatastore(repoPath string) (datastore.Batching, io.Closer, error) {
	switch c.Type {
	case "memory":
		return dssync.MutexWrap(datastore.NewMapDatastore()), nopCloser{}, nil
	case "badgerds", "":
		path := c.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoPath, path)
		}
		ds, err := badger.NewDatastore(path, &badger.DefaultOptions)
		if err != nil {
			return nil, nil, xerrors.Errorf("opening badger datastore at %s: %w", path, err)
		}
		return ds, ds, nil
	default:
		return nil, nil, xerrors.Errorf("unknown datastore type %q", c.Type)
	}
}
