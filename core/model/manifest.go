package model

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ManifestEntry records where the chunk with a given sequence number lives.
type ManifestEntry struct {
	Sequence         uint32    `json:"sequence"`
	BlobID           uuid.UUID `json:"blob_id"`
	LocationID       string    `json:"location_id"`
	OriginalFilename string    `json:"original_filename"`
}

// Manifest maps chunk sequence numbers to storage locations. It is kept
// outside the ledger so a file can be rebuilt without replaying the chain.
type Manifest []ManifestEntry

// Sorted returns a copy ordered by sequence ascending.
func (m Manifest) Sorted() Manifest {
	sorted := make(Manifest, len(m))
	copy(sorted, m)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	return sorted
}

// Validate checks that sequences form exactly 0..N-1 with no gaps or
// duplicates, in any order.
func (m Manifest) Validate() error {
	for i, e := range m.Sorted() {
		if e.Sequence == uint32(i) {
			continue
		}

		if i > 0 && e.Sequence == uint32(i-1) {
			return fmt.Errorf("%w: duplicate sequence %d", ErrManifestCorrupt, e.Sequence)
		}

		return fmt.Errorf("%w: expected sequence %d, found %d", ErrManifestCorrupt, i, e.Sequence)
	}

	return nil
}

// Filename returns the original filename recorded by the entries, or "" for
// an empty manifest.
func (m Manifest) Filename() string {
	if len(m) == 0 {
		return ""
	}

	return m[0].OriginalFilename
}
