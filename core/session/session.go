// Package session ties the chunker, placement router, manifest index and
// ledger together into the ingest, verify and reconstruct workflows.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	fp "path/filepath"

	"github.com/hashicorp/go-multierror"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pyropy/chainstore/core/chunker"
	"github.com/pyropy/chainstore/core/ledger"
	"github.com/pyropy/chainstore/core/manifest"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/core/placement"
	"github.com/pyropy/chainstore/core/storage"
	"github.com/pyropy/chainstore/lib/merkle"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	ledgerNamespace    = "ledger"
	manifestsNamespace = "manifests"
)

// Session owns every store used by one chainstore process.
type Session struct {
	fs    afero.Fs
	store ds.Datastore
	log   *zap.SugaredLogger

	Ledger    *ledger.Ledger
	Router    *placement.Router
	Manifests *manifest.Store
}

// IngestResult is what an ingestion committed.
type IngestResult struct {
	Block    model.Block
	Manifest model.Manifest
	Bytes    int64
}

// OpenDatastore opens the LevelDB metadata store at path.
func OpenDatastore(path string) (ds.Batching, error) {
	d, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening metadata store %s: %w", model.ErrIO, path, err)
	}

	return d, nil
}

// New opens the ledger and manifest index inside d. Blobs and manifest
// documents live on fs. The session takes ownership of d.
func New(ctx context.Context, cfg *Config, fs afero.Fs, d ds.Datastore, log *zap.SugaredLogger) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l, err := ledger.Open(ctx, namespace.Wrap(d, ds.NewKey(ledgerNamespace)), log.Named("ledger"), ledger.WithCacheSize(cfg.Cache.Size))
	if err != nil {
		return nil, err
	}

	return &Session{
		fs:        fs,
		store:     d,
		log:       log,
		Ledger:    l,
		Router:    placement.NewRouter(storage.NewLocal(fs), log.Named("placement")),
		Manifests: manifest.NewStore(namespace.Wrap(d, ds.NewKey(manifestsNamespace))),
	}, nil
}

// Ingest records the file at path under its base name.
func (s *Session) Ingest(ctx context.Context, path string, chunkSize int, locations []string) (*IngestResult, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", model.ErrIO, path, err)
	}
	defer f.Close()

	return s.IngestReader(ctx, fp.Base(path), f, chunkSize, locations)
}

// IngestReader splits r, places the chunks and appends a block for the file.
// Nothing is placed on a damaged ledger, and blobs are removed again if the
// block cannot be appended. A failure to
// index the manifest is returned together with the committed result.
func (s *Session) IngestReader(ctx context.Context, filename string, r io.Reader, chunkSize int, locations []string) (*IngestResult, error) {
	if len(locations) == 0 {
		return nil, placement.ErrNoLocations
	}

	if err := s.Ledger.Damaged(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrDamaged, err)
	}

	chunks, err := chunker.Split(r, chunkSize)
	if err != nil {
		return nil, err
	}

	metadata := model.NewFileMetadata(filename, chunks)
	root := merkle.Root(metadata.ChunkFingerprints)

	m, err := s.Router.Place(ctx, filename, chunks, locations)
	if err != nil {
		return nil, err
	}

	b, err := s.Ledger.Append(ctx, metadata, root)
	if err != nil {
		if rmErr := s.Router.Remove(context.WithoutCancel(ctx), m); rmErr != nil {
			err = multierror.Append(err, rmErr)
		}

		return nil, fmt.Errorf("recording %s: %w", filename, err)
	}

	result := &IngestResult{Block: b, Manifest: m}
	for _, c := range chunks {
		result.Bytes += int64(c.Size())
	}

	if err := s.Manifests.Put(ctx, filename, m); err != nil {
		s.log.Errorw("ingest", "status", "manifest not indexed", "file", filename, "index", b.Index, "error", err)
		return result, err
	}

	s.log.Infow("ingest", "status", "file recorded", "file", filename, "index", b.Index, "chunks", len(chunks), "bytes", result.Bytes, "root", root)
	return result, nil
}

// WriteManifest saves m as a manifest document at path.
func (s *Session) WriteManifest(path string, m model.Manifest) error {
	return manifest.Write(s.fs, path, m)
}

// Reconstruct rebuilds the file described by the manifest document at
// manifestPath into outputPath. The output is removed again on failure.
func (s *Session) Reconstruct(ctx context.Context, manifestPath, outputPath string) (int64, error) {
	m, err := manifest.Read(s.fs, manifestPath)
	if err != nil {
		return 0, err
	}

	if err := m.Validate(); err != nil {
		return 0, err
	}

	if dir := fp.Dir(outputPath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0750); err != nil {
			return 0, fmt.Errorf("%w: creating %s: %w", model.ErrIO, dir, err)
		}
	}

	out, err := s.fs.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %w", model.ErrIO, outputPath, err)
	}

	n, err := s.Router.Reconstruct(ctx, m, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: closing %s: %w", model.ErrIO, outputPath, closeErr)
	}

	if err != nil {
		if rmErr := s.fs.Remove(outputPath); rmErr != nil {
			err = multierror.Append(err, rmErr)
		}

		return 0, err
	}

	return n, nil
}

// Files returns the indexed manifest of every recorded filename.
func (s *Session) Files(ctx context.Context) ([]manifest.Record, error) {
	return s.Manifests.All(ctx)
}

// Chain returns every block of the ledger in index order.
func (s *Session) Chain(ctx context.Context) ([]model.Block, error) {
	return s.Ledger.Blocks(ctx)
}

func (s *Session) VerifyChain(ctx context.Context) (ledger.ChainReport, error) {
	return s.Ledger.VerifyChain(ctx)
}

func (s *Session) Close() error {
	return s.store.Close()
}

// isMissing reports whether err is a missing blob.
func isMissing(err error) bool {
	return errors.Is(err, model.ErrMissingChunk)
}
