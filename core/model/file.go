package model

import "github.com/pyropy/chainstore/lib/checksum"

// FileMetadata is what a Block records about one ingested file.
type FileMetadata struct {
	Filename          string          `json:"filename"`
	ChunkFingerprints []checksum.Hash `json:"chunk_fingerprints"`
}

func NewFileMetadata(filename string, chunks []Chunk) FileMetadata {
	return FileMetadata{
		Filename:          filename,
		ChunkFingerprints: Fingerprints(chunks),
	}
}
