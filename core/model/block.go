package model

import (
	"encoding/binary"

	"github.com/pyropy/chainstore/lib/checksum"
)

const GenesisFilename = "genesis"

// Block commits one file's metadata to the ledger. Hash covers index,
// timestamp, merkle root and previous hash; the metadata is bound through
// the merkle root.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	FileMetadata FileMetadata  `json:"file_metadata"`
	MerkleRoot   checksum.Hash `json:"merkle_root"`
	PreviousHash checksum.Hash `json:"previous_hash"`
	Hash         checksum.Hash `json:"hash"`
}

// CalculateHash returns SHA-256(be64(index) || be64(timestamp) || root || prev).
func (b *Block) CalculateHash() checksum.Hash {
	buf := make([]byte, 0, 16+2*checksum.Size)
	buf = binary.BigEndian.AppendUint64(buf, b.Index)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Timestamp))
	buf = append(buf, b.MerkleRoot[:]...)
	buf = append(buf, b.PreviousHash[:]...)

	return checksum.CalculateCheckSum(buf)
}

// NewBlock links a new block after prev and seals it.
func NewBlock(prev Block, timestamp int64, metadata FileMetadata, merkleRoot checksum.Hash) Block {
	b := Block{
		Index:        prev.Index + 1,
		Timestamp:    timestamp,
		FileMetadata: metadata,
		MerkleRoot:   merkleRoot,
		PreviousHash: prev.Hash,
	}
	b.Hash = b.CalculateHash()

	return b
}

// Genesis returns the fixed first block shared by every ledger.
func Genesis() Block {
	b := Block{
		Index:     0,
		Timestamp: 0,
		FileMetadata: FileMetadata{
			Filename:          GenesisFilename,
			ChunkFingerprints: []checksum.Hash{},
		},
		MerkleRoot:   checksum.Zero,
		PreviousHash: checksum.Zero,
	}
	b.Hash = b.CalculateHash()

	return b
}

// IsGenesis reports whether b equals the fixed genesis block.
func (b *Block) IsGenesis() bool {
	g := Genesis()
	return b.Index == g.Index &&
		b.Timestamp == g.Timestamp &&
		b.FileMetadata.Filename == g.FileMetadata.Filename &&
		len(b.FileMetadata.ChunkFingerprints) == 0 &&
		b.MerkleRoot == g.MerkleRoot &&
		b.PreviousHash == g.PreviousHash &&
		b.Hash == g.Hash
}
