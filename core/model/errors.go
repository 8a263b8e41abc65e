package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrIO              = errors.New("i/o failure")
	ErrMissingChunk    = errors.New("missing chunk")
	ErrManifestCorrupt = errors.New("manifest corrupt")
	ErrChainIntegrity  = errors.New("chain integrity violated")
)

// MissingChunkError is returned when a manifest references a blob that is
// absent at its recorded location.
type MissingChunkError struct {
	Sequence   uint32
	LocationID string
	BlobID     uuid.UUID
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("missing chunk %d: blob %s not found at %q", e.Sequence, e.BlobID, e.LocationID)
}

func (e *MissingChunkError) Is(target error) bool {
	return target == ErrMissingChunk
}

// ChainIntegrityError describes one block that failed verification.
type ChainIntegrityError struct {
	Index  uint64 `json:"index"`
	Reason string `json:"reason"`
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

func (e *ChainIntegrityError) Is(target error) bool {
	return target == ErrChainIntegrity
}
