package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/pyropy/chainstore/core/ledger"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/core/placement"
	"github.com/pyropy/chainstore/lib/checksum"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var locations = []string{"nodes/L0", "nodes/L1", "nodes/L2"}

type fixture struct {
	fs    afero.Fs
	store ds.Datastore
	s     *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fs:    afero.NewMemMapFs(),
		store: dssync.MutexWrap(ds.NewMapDatastore()),
	}
	f.s = f.open(t)
	return f
}

// open starts a fresh session over the same stores, as a new process would.
func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := New(context.Background(), nil, f.fs, f.store, zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func (f *fixture) ingest(t *testing.T, path, content string) *IngestResult {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0640))

	res, err := f.s.Ingest(context.Background(), path, 4, locations)
	require.NoError(t, err)
	return res
}

func (f *fixture) blobPath(entry model.ManifestEntry) string {
	return entry.LocationID + "/" + entry.BlobID.String()
}

func TestIngestAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.ingest(t, "in/report.txt", "the quick brown fox jumps over the lazy dog")
	assert.Equal(t, uint64(1), res.Block.Index)
	assert.Equal(t, "report.txt", res.Block.FileMetadata.Filename)
	assert.Equal(t, int64(43), res.Bytes)
	require.Len(t, res.Manifest, 11)
	for _, entry := range res.Manifest {
		assert.Equal(t, locations[entry.Sequence%3], entry.LocationID)
		assert.Equal(t, "report.txt", entry.OriginalFilename)
	}

	indexed, found, err := f.s.Manifests.Get(ctx, "report.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Manifest, indexed)

	report, err := f.s.Verify(ctx, "report.txt")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.True(t, report.RootMatches)
	assert.True(t, report.MetadataMatches)
	assert.Equal(t, res.Block.MerkleRoot, report.ComputedRoot)
	assert.Empty(t, report.TamperedChunks)
}

func TestIngestNoLocations(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.IngestReader(context.Background(), "a", strings.NewReader("abc"), 4, nil)
	require.ErrorIs(t, err, placement.ErrNoLocations)
	assert.Equal(t, uint64(1), f.s.Ledger.Len())
}

func TestIngestInvalidChunkSize(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.IngestReader(context.Background(), "a", strings.NewReader("abc"), 0, locations)
	require.Error(t, err)
	assert.Equal(t, uint64(1), f.s.Ledger.Len())
}

func TestIngestMissingFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Ingest(context.Background(), "nope.txt", 4, locations)
	require.ErrorIs(t, err, model.ErrIO)
}

func TestVerifyUnknownFile(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.txt", "some data")

	report, err := f.s.Verify(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.False(t, report.Found)
	assert.False(t, report.OK())
	assert.True(t, report.Chain.Valid())
}

func TestVerifyDetectsTamperedChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.ingest(t, "data.bin", "abcdefghijklmnopqrstuvwxyz")

	target := res.Manifest[2]
	require.NoError(t, afero.WriteFile(f.fs, f.blobPath(target), []byte("IJKL"), 0640))

	report, err := f.s.Verify(ctx, "data.bin")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.False(t, report.RootMatches)
	assert.True(t, report.MetadataMatches)
	assert.Equal(t, []uint32{2}, report.TamperedChunks)
	assert.Empty(t, report.MissingChunks)
	assert.True(t, report.Chain.Valid())
}

func TestVerifyDetectsMissingChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.ingest(t, "data.bin", "abcdefghijklmnopqrstuvwxyz")

	require.NoError(t, f.fs.Remove(f.blobPath(res.Manifest[5])))

	report, err := f.s.Verify(ctx, "data.bin")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.False(t, report.RootMatches)
	assert.Equal(t, []uint32{5}, report.MissingChunks)
	assert.Empty(t, report.TamperedChunks)
}

func TestVerifyDetectsTamperedMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "data.bin", "abcdefghijklmnopqrstuvwxyz")

	key := ds.NewKey(fmt.Sprintf("/%s/blocks/%020d", ledgerNamespace, 1))
	raw, err := f.store.Get(ctx, key)
	require.NoError(t, err)

	var b model.Block
	require.NoError(t, json.Unmarshal(raw, &b))
	b.FileMetadata.ChunkFingerprints[1] = checksum.CalculateCheckSum([]byte("forged"))
	raw, err = json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, key, raw))

	report, err := f.open(t).Verify(ctx, "data.bin")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.False(t, report.MetadataMatches)
	assert.Equal(t, []uint32{1}, report.TamperedChunks)
	assert.False(t, report.Chain.Valid())

	first, invalid := report.Chain.FirstInvalid()
	require.True(t, invalid)
	assert.Equal(t, uint64(1), first)
}

func TestVerifyLatestVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "v1/notes.txt", "first draft")
	second := f.ingest(t, "v2/notes.txt", "second draft, a bit longer")

	report, err := f.s.Verify(ctx, "notes.txt")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, second.Block, report.Block)
	assert.Equal(t, uint64(2), report.Block.Index)
}

func TestIngestEmptyFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.ingest(t, "empty.txt", "")

	assert.Empty(t, res.Manifest)
	assert.Equal(t, checksum.Zero, res.Block.MerkleRoot)
	assert.Empty(t, res.Block.FileMetadata.ChunkFingerprints)

	report, err := f.s.Verify(ctx, "empty.txt")
	require.NoError(t, err)
	assert.True(t, report.OK())

	require.NoError(t, f.s.WriteManifest("empty.manifest.json", res.Manifest))
	n, err := f.s.Reconstruct(ctx, "empty.manifest.json", "out/empty.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	out, err := afero.ReadFile(f.fs, "out/empty.txt")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReconstruct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	content := strings.Repeat("0123456789", 25)
	res := f.ingest(t, "digits.txt", content)

	require.NoError(t, f.s.WriteManifest("manifests/digits.json", res.Manifest))
	n, err := f.s.Reconstruct(ctx, "manifests/digits.json", "restored/digits.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	out, err := afero.ReadFile(f.fs, "restored/digits.txt")
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte(content), out))
}

func TestReconstructMissingChunkRemovesOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.ingest(t, "digits.txt", strings.Repeat("0123456789", 5))

	require.NoError(t, f.s.WriteManifest("digits.json", res.Manifest))
	require.NoError(t, f.fs.Remove(f.blobPath(res.Manifest[3])))

	_, err := f.s.Reconstruct(ctx, "digits.json", "restored.txt")
	require.ErrorIs(t, err, model.ErrMissingChunk)

	exists, err := afero.Exists(f.fs, "restored.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReconstructCorruptManifest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.ingest(t, "digits.txt", strings.Repeat("0123456789", 5))

	require.NoError(t, f.s.WriteManifest("gap.json", model.Manifest{res.Manifest[0], res.Manifest[2]}))
	_, err := f.s.Reconstruct(ctx, "gap.json", "restored.txt")
	require.ErrorIs(t, err, model.ErrManifestCorrupt)

	require.NoError(t, afero.WriteFile(f.fs, "garbage.json", []byte("not json"), 0640))
	_, err = f.s.Reconstruct(ctx, "garbage.json", "restored.txt")
	require.ErrorIs(t, err, model.ErrManifestCorrupt)

	require.NoError(t, afero.WriteFile(f.fs, "null.json", []byte("null"), 0640))
	_, err = f.s.Reconstruct(ctx, "null.json", "restored.txt")
	require.ErrorIs(t, err, model.ErrManifestCorrupt)

	exists, err := afero.Exists(f.fs, "restored.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChainSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "a.txt", "alpha")
	f.ingest(t, "b.txt", "bravo")

	reopened := f.open(t)
	chain, err := reopened.Chain(ctx)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.True(t, chain[0].IsGenesis())
	assert.Equal(t, "b.txt", chain[2].FileMetadata.Filename)

	report, err := reopened.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid())

	verify, err := reopened.Verify(ctx, "a.txt")
	require.NoError(t, err)
	assert.True(t, verify.OK())
	require.NoError(t, reopened.Close())
}

func TestDamagedLedgerStillReconstructs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "a.txt", "alpha alpha alpha")
	res := f.ingest(t, "b.txt", "bravo bravo bravo")
	require.NoError(t, f.s.WriteManifest("b.json", res.Manifest))

	key := ds.NewKey(fmt.Sprintf("/%s/blocks/%020d", ledgerNamespace, 1))
	require.NoError(t, f.store.Put(ctx, key, []byte("{garbage")))

	s := f.open(t)
	require.Error(t, s.Ledger.Damaged())

	n, err := s.Reconstruct(ctx, "b.json", "restored/b.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	out, err := afero.ReadFile(f.fs, "restored/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "bravo bravo bravo", string(out))

	chain, err := s.VerifyChain(ctx)
	require.NoError(t, err)
	first, invalid := chain.FirstInvalid()
	require.True(t, invalid)
	assert.Equal(t, uint64(1), first)

	report, err := s.Verify(ctx, "b.txt")
	require.NoError(t, err)
	assert.True(t, report.Found)
	assert.True(t, report.RootMatches)
	assert.False(t, report.OK())

	before, err := afero.ReadDir(f.fs, locations[0])
	require.NoError(t, err)

	_, err = s.IngestReader(ctx, "c.txt", strings.NewReader("charlie"), 4, locations)
	require.ErrorIs(t, err, ledger.ErrDamaged)

	after, err := afero.ReadDir(f.fs, locations[0])
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}
