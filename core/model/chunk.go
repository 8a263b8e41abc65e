package model

import "github.com/pyropy/chainstore/lib/checksum"

// Chunk is a contiguous byte range of an input file. Fingerprint is the
// SHA-256 of Data alone, so equal byte ranges fingerprint equally
// regardless of file or position.
type Chunk struct {
	Sequence    uint32
	Data        []byte
	Fingerprint checksum.Hash
}

func NewChunk(sequence uint32, data []byte) Chunk {
	return Chunk{
		Sequence:    sequence,
		Data:        data,
		Fingerprint: checksum.CalculateCheckSum(data),
	}
}

func (c Chunk) Size() int {
	return len(c.Data)
}

// Fingerprints returns the chunk fingerprints in slice order.
func Fingerprints(chunks []Chunk) []checksum.Hash {
	fps := make([]checksum.Hash, 0, len(chunks))
	for _, c := range chunks {
		fps = append(fps, c.Fingerprint)
	}

	return fps
}
