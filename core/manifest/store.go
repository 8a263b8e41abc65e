package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/lib/checksum"
)

// Record is the stored form of an indexed manifest.
type Record struct {
	Filename string         `json:"filename"`
	Manifest model.Manifest `json:"manifest"`
}

// Store indexes the latest manifest of every ingested filename so a file can
// be located by name alone.
type Store struct {
	Manifests ds.Datastore
}

func NewStore(d ds.Datastore) *Store {
	return &Store{
		Manifests: d,
	}
}

// filenames are hashed so arbitrary names map to flat, valid keys
func key(filename string) ds.Key {
	return ds.NewKey(checksum.CalculateCheckSum([]byte(filename)).String())
}

func (s *Store) Put(ctx context.Context, filename string, m model.Manifest) error {
	b, err := json.Marshal(Record{Filename: filename, Manifest: m.Sorted()})
	if err != nil {
		return err
	}

	if err := s.Manifests.Put(ctx, key(filename), b); err != nil {
		return fmt.Errorf("%w: storing manifest for %s: %w", model.ErrIO, filename, err)
	}

	return nil
}

// Get returns the manifest for filename; the bool is false if none is indexed.
func (s *Store) Get(ctx context.Context, filename string) (model.Manifest, bool, error) {
	b, err := s.Manifests.Get(ctx, key(filename))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: loading manifest for %s: %w", model.ErrIO, filename, err)
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, fmt.Errorf("%w: decoding manifest for %s: %w", model.ErrManifestCorrupt, filename, err)
	}

	return r.Manifest, true, nil
}

func (s *Store) All(ctx context.Context) ([]Record, error) {
	res, err := s.Manifests.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	records := make([]Record, 0)
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		if r.Error != nil {
			return records, r.Error
		}

		var rec Record
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			return records, fmt.Errorf("%w: decoding %s: %w", model.ErrManifestCorrupt, r.Key, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
