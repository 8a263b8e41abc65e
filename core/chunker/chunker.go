package chunker

import (
	"errors"
	"fmt"
	"io"

	"github.com/pyropy/chainstore/core/model"
)

// DefaultChunkSize is 256 KiB.
const DefaultChunkSize = 256 * 1024

var (
	ErrInvalidChunkSize = errors.New("chunk size must be greater than zero")
)

// Split reads r to the end and cuts it into chunks of chunkSize bytes. Only
// the last chunk may be shorter, and no chunk is ever empty; empty input
// yields no chunks.
func Split(r io.Reader, chunkSize int) ([]model.Chunk, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	chunks := make([]model.Chunk, 0)
	for seq := uint32(0); ; seq++ {
		data, err := io.ReadAll(io.LimitReader(r, int64(chunkSize)))
		if err != nil {
			return nil, fmt.Errorf("%w: reading chunk %d: %w", model.ErrIO, seq, err)
		}

		if len(data) == 0 {
			return chunks, nil
		}

		chunks = append(chunks, model.NewChunk(seq, data))

		if len(data) < chunkSize {
			return chunks, nil
		}
	}
}
