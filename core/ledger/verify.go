package ledger

import (
	"context"
	"fmt"

	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/lib/merkle"
)

// ChainReport is the outcome of a full chain scan.
type ChainReport struct {
	Length   uint64                       `json:"length"`
	Failures []*model.ChainIntegrityError `json:"failures,omitempty"`
}

func (r ChainReport) Valid() bool {
	return len(r.Failures) == 0
}

// FirstInvalid returns the index of the first failing block.
func (r ChainReport) FirstInvalid() (uint64, bool) {
	if r.Valid() {
		return 0, false
	}

	return r.Failures[0].Index, true
}

// VerifyChain reads every stored block, bypassing the cache, and checks the
// genesis block, index sequence, stored hashes, previous-hash links and that
// each merkle root commits to the recorded chunk fingerprints. It scans the
// whole chain and reports every failure; the error is reserved for I/O.
func (l *Ledger) VerifyChain(ctx context.Context) (ChainReport, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return ChainReport{}, err
	}

	report := ChainReport{Length: uint64(len(entries))}
	fail := func(index uint64, format string, args ...any) {
		report.Failures = append(report.Failures, &model.ChainIntegrityError{
			Index:  index,
			Reason: fmt.Sprintf(format, args...),
		})
	}

	var prev *model.Block
	for i, e := range entries {
		index := uint64(i)

		b, err := decode(e.Value)
		if err != nil {
			fail(index, "undecodable block: %v", err)
			prev = nil
			continue
		}

		if e.Key != blockKey(index).String() || b.Index != index {
			fail(index, "index out of sequence: stored as %s with index %d", e.Key, b.Index)
		}

		if index == 0 {
			if !b.IsGenesis() {
				fail(index, "genesis block altered")
			}
		} else if prev != nil && b.PreviousHash != prev.Hash {
			fail(index, "previous hash %s does not match hash %s of block %d", b.PreviousHash, prev.Hash, index-1)
		}

		if calculated := b.CalculateHash(); b.Hash != calculated {
			fail(index, "stored hash %s does not match calculated hash %s", b.Hash, calculated)
		}

		if index > 0 && !merkle.Verify(b.MerkleRoot, b.FileMetadata.ChunkFingerprints) {
			fail(index, "%s", ErrRootMismatch)
		}

		prev = &b
	}

	length, tip := l.Len(), l.Tip()
	switch {
	case len(entries) == 0:
		fail(0, "genesis block missing")
	case report.Length < length:
		fail(report.Length, "chain truncated: %d blocks stored, ledger holds %d", report.Length, length)
	case report.Length == length && prev != nil && prev.Hash != tip.Hash:
		fail(report.Length-1, "last stored block %s does not match ledger tip %s", prev.Hash, tip.Hash)
	}

	if report.Valid() {
		l.log.Infow("verify chain", "status", "ok", "blocks", report.Length)
	} else {
		l.log.Warnw("verify chain", "status", "failed", "blocks", report.Length, "failures", len(report.Failures), "firstInvalid", report.Failures[0].Index)
	}

	return report, nil
}
