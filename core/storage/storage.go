// Package storage holds the blob store used to persist raw chunk bytes.
// A blob is addressed by the location it was placed on and an opaque blob id.
package storage

import (
	"context"
	"errors"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrInvalidBlobID   = errors.New("invalid blob id")
	ErrInvalidLocation = errors.New("invalid location")
)

type BlobStore interface {
	Put(ctx context.Context, locationID, blobID string, data []byte) error
	Get(ctx context.Context, locationID, blobID string) ([]byte, error)
	Has(ctx context.Context, locationID, blobID string) (bool, error)
	Delete(ctx context.Context, locationID, blobID string) error
}
