package session

import (
	"context"

	"github.com/pyropy/chainstore/core/ledger"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/lib/checksum"
	"github.com/pyropy/chainstore/lib/merkle"
)

// VerifyReport is the outcome of verifying one file against the ledger.
type VerifyReport struct {
	Filename string      `json:"filename"`
	Found    bool        `json:"found"`
	Block    model.Block `json:"block"`

	// ManifestFound is false when no manifest is indexed for the file.
	ManifestFound bool `json:"manifest_found"`
	// MetadataMatches is true when the block's root commits to the block's
	// own fingerprint list.
	MetadataMatches bool `json:"metadata_matches"`
	// RootMatches is true when the root recomputed from the stored chunks
	// equals the block's root.
	RootMatches    bool          `json:"root_matches"`
	ComputedRoot   checksum.Hash `json:"computed_root"`
	TamperedChunks []uint32      `json:"tampered_chunks,omitempty"`
	MissingChunks  []uint32      `json:"missing_chunks,omitempty"`

	Chain ledger.ChainReport `json:"chain"`
}

func (r *VerifyReport) OK() bool {
	return r.Found &&
		r.ManifestFound &&
		r.MetadataMatches &&
		r.RootMatches &&
		len(r.TamperedChunks) == 0 &&
		len(r.MissingChunks) == 0 &&
		r.Chain.Valid()
}

// Verify checks the latest recorded version of filename. Stored chunks are
// read through the indexed manifest and each one is checked with its Merkle
// proof against the block root, so tampered chunks are named individually.
// The whole chain is verified as well. Integrity failures are reported, not
// returned; the error is reserved for I/O and corrupt manifests.
func (s *Session) Verify(ctx context.Context, filename string) (*VerifyReport, error) {
	chain, err := s.Ledger.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{Filename: filename, Chain: chain}

	b, found, err := s.Ledger.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}

	if !found {
		s.log.Warnw("verify", "status", "file not recorded", "file", filename)
		return report, nil
	}

	report.Found = true
	report.Block = b
	report.MetadataMatches = merkle.Verify(b.MerkleRoot, b.FileMetadata.ChunkFingerprints)

	m, found, err := s.Manifests.Get(ctx, filename)
	if err != nil {
		return nil, err
	}

	if !found {
		s.log.Warnw("verify", "status", "manifest not indexed", "file", filename, "index", b.Index)
		return report, nil
	}

	report.ManifestFound = true

	if err := m.Validate(); err != nil {
		return nil, err
	}

	recorded := b.FileMetadata.ChunkFingerprints
	tree := merkle.Build(recorded)
	stored := make([]checksum.Hash, 0, len(m))

	for _, entry := range m.Sorted() {
		chunk, err := s.Router.FetchChunk(ctx, entry)
		if isMissing(err) {
			report.MissingChunks = append(report.MissingChunks, entry.Sequence)
			continue
		}

		if err != nil {
			return nil, err
		}

		stored = append(stored, chunk.Fingerprint)

		if int(entry.Sequence) >= len(recorded) {
			report.TamperedChunks = append(report.TamperedChunks, entry.Sequence)
			continue
		}

		// proofs only hold when the recorded fingerprints commit to the root
		if !report.MetadataMatches {
			if chunk.Fingerprint != recorded[entry.Sequence] {
				report.TamperedChunks = append(report.TamperedChunks, entry.Sequence)
			}
			continue
		}

		proof, err := tree.Prove(int(entry.Sequence))
		if err != nil {
			return nil, err
		}

		if !merkle.VerifyProof(chunk.Fingerprint, proof, b.MerkleRoot) {
			report.TamperedChunks = append(report.TamperedChunks, entry.Sequence)
		}
	}

	report.ComputedRoot = merkle.Root(stored)
	report.RootMatches = len(report.MissingChunks) == 0 &&
		len(stored) == len(recorded) &&
		report.ComputedRoot == b.MerkleRoot

	if report.OK() {
		s.log.Infow("verify", "status", "ok", "file", filename, "index", b.Index, "root", b.MerkleRoot)
	} else {
		s.log.Warnw("verify", "status", "failed", "file", filename, "index", b.Index,
			"rootMatches", report.RootMatches, "metadataMatches", report.MetadataMatches,
			"tampered", report.TamperedChunks, "missing", report.MissingChunks, "chainValid", report.Chain.Valid())
	}

	return report, nil
}
