package placement

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/core/storage"
	"go.uber.org/zap"
)

var (
	ErrNoLocations = errors.New("no storage locations given")
)

// Router places chunks on storage locations round-robin and reads them back
// through the blob store.
type Router struct {
	store storage.BlobStore
	log   *zap.SugaredLogger
}

func NewRouter(store storage.BlobStore, log *zap.SugaredLogger) *Router {
	return &Router{
		store: store,
		log:   log,
	}
}

// SelectLocation returns locations[sequence mod len(locations)].
func SelectLocation(sequence uint32, locations []string) string {
	return locations[int(sequence)%len(locations)]
}

// Place writes every chunk under a fresh blob id on its round-robin location
// and returns the manifest. If any write fails the blobs written so far are
// deleted before the error is returned.
func (r *Router) Place(ctx context.Context, filename string, chunks []model.Chunk, locations []string) (model.Manifest, error) {
	if len(locations) == 0 {
		return nil, ErrNoLocations
	}

	manifest := make(model.Manifest, 0, len(chunks))
	for _, chunk := range chunks {
		entry := model.ManifestEntry{
			Sequence:         chunk.Sequence,
			BlobID:           uuid.New(),
			LocationID:       SelectLocation(chunk.Sequence, locations),
			OriginalFilename: filename,
		}

		err := r.store.Put(ctx, entry.LocationID, entry.BlobID.String(), chunk.Data)
		if err != nil {
			r.log.Errorw("placement", "status", "put failed, cleaning up", "file", filename, "sequence", entry.Sequence, "location", entry.LocationID, "error", err)

			if cleanupErr := r.Remove(context.WithoutCancel(ctx), manifest); cleanupErr != nil {
				err = multierror.Append(err, cleanupErr)
			}

			return nil, fmt.Errorf("placing chunk %d of %s: %w", entry.Sequence, filename, err)
		}

		r.log.Debugw("placement", "status", "chunk placed", "file", filename, "sequence", entry.Sequence, "location", entry.LocationID, "blobID", entry.BlobID)
		manifest = append(manifest, entry)
	}

	r.log.Infow("placement", "status", "file placed", "file", filename, "chunks", len(manifest), "locations", len(locations))
	return manifest, nil
}

// Remove deletes every blob referenced by the manifest, attempting all of
// them even if some deletions fail.
func (r *Router) Remove(ctx context.Context, manifest model.Manifest) error {
	var result *multierror.Error
	for _, entry := range manifest {
		if err := r.store.Delete(ctx, entry.LocationID, entry.BlobID.String()); err != nil {
			result = multierror.Append(result, fmt.Errorf("deleting chunk %d: %w", entry.Sequence, err))
		}
	}

	return result.ErrorOrNil()
}

// FetchChunk reads the blob of a single manifest entry and fingerprints the
// stored bytes.
func (r *Router) FetchChunk(ctx context.Context, entry model.ManifestEntry) (model.Chunk, error) {
	data, err := r.get(ctx, entry)
	if err != nil {
		return model.Chunk{}, err
	}

	return model.NewChunk(entry.Sequence, data), nil
}

// Reconstruct writes the file described by manifest to w. Nothing is written
// when the manifest is corrupt; a missing blob stops the copy at that chunk.
func (r *Router) Reconstruct(ctx context.Context, manifest model.Manifest, w io.Writer) (int64, error) {
	if err := manifest.Validate(); err != nil {
		return 0, err
	}

	var written int64
	for _, entry := range manifest.Sorted() {
		data, err := r.get(ctx, entry)
		if err != nil {
			return written, err
		}

		n, err := w.Write(data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("%w: writing chunk %d: %w", model.ErrIO, entry.Sequence, err)
		}
	}

	r.log.Infow("reconstruct", "status", "file reconstructed", "file", manifest.Filename(), "chunks", len(manifest), "bytes", written)
	return written, nil
}

func (r *Router) get(ctx context.Context, entry model.ManifestEntry) ([]byte, error) {
	data, err := r.store.Get(ctx, entry.LocationID, entry.BlobID.String())
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, &model.MissingChunkError{
			Sequence:   entry.Sequence,
			LocationID: entry.LocationID,
			BlobID:     entry.BlobID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("fetching chunk %d: %w", entry.Sequence, err)
	}

	return data, nil
}
