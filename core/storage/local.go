package storage

import (
	"context"
	"fmt"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pyropy/chainstore/core/model"
	"github.com/spf13/afero"
)

// Local stores every location as a directory and every blob as a file
// named after its id.
type Local struct {
	fs afero.Fs
}

func NewLocal(fs afero.Fs) *Local {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Local{fs: fs}
}

func GetBlobPath(locationID, blobID string) (string, error) {
	if locationID == "" {
		return "", ErrInvalidLocation
	}

	if blobID == "" || blobID == "." || blobID == ".." || strings.ContainsAny(blobID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBlobID, blobID)
	}

	return fp.Join(locationID, blobID), nil
}

// EnsureLocations creates the location directories.
func (l *Local) EnsureLocations(locationIDs ...string) error {
	for _, loc := range locationIDs {
		if loc == "" {
			return ErrInvalidLocation
		}

		if err := l.fs.MkdirAll(loc, 0750); err != nil {
			return fmt.Errorf("%w: creating location %q: %w", model.ErrIO, loc, err)
		}
	}

	return nil
}

func (l *Local) Put(ctx context.Context, locationID, blobID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := GetBlobPath(locationID, blobID)
	if err != nil {
		return err
	}

	if err := l.EnsureLocations(locationID); err != nil {
		return err
	}

	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("%w: creating blob %s: %w", model.ErrIO, path, err)
	}

	if _, err := f.Write(data); err != nil {
		return l.discard(f, path, fmt.Errorf("%w: writing blob %s: %w", model.ErrIO, path, err))
	}

	if err := f.Sync(); err != nil {
		return l.discard(f, path, fmt.Errorf("%w: syncing blob %s: %w", model.ErrIO, path, err))
	}

	if err := f.Close(); err != nil {
		return l.discard(nil, path, fmt.Errorf("%w: closing blob %s: %w", model.ErrIO, path, err))
	}

	return nil
}

// discard closes and removes a partially written blob so a failed Put
// leaves nothing behind.
func (l *Local) discard(f afero.File, path string, cause error) error {
	err := cause
	if f != nil {
		if closeErr := f.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}

	if rmErr := l.fs.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierror.Append(err, fmt.Errorf("removing partial blob %s: %w", path, rmErr))
	}

	return err
}

func (l *Local) Get(ctx context.Context, locationID, blobID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := GetBlobPath(locationID, blobID)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, path)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: reading blob %s: %w", model.ErrIO, path, err)
	}

	return data, nil
}

func (l *Local) Has(ctx context.Context, locationID, blobID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := GetBlobPath(locationID, blobID)
	if err != nil {
		return false, err
	}

	fi, err := l.fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("%w: stat blob %s: %w", model.ErrIO, path, err)
	}

	return !fi.IsDir(), nil
}

// Delete removes a blob. Deleting an absent blob is not an error.
func (l *Local) Delete(ctx context.Context, locationID, blobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := GetBlobPath(locationID, blobID)
	if err != nil {
		return err
	}

	if err := l.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing blob %s: %w", model.ErrIO, path, err)
	}

	return nil
}
