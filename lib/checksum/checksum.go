package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length of a Hash in bytes.
const Size = sha256.Size

var (
	ErrInvalidHashLength = errors.New("invalid hash length")
)

// Hash is a SHA-256 digest. The zero value is used as the sentinel for
// "no content" (empty Merkle tree, genesis block links).
type Hash [Size]byte

// Zero is the sentinel hash.
var Zero Hash

// CalculateCheckSum returns the SHA-256 digest of data.
func CalculateCheckSum(data []byte) Hash {
	return sha256.Sum256(data)
}

// Concat hashes the concatenation of the given hashes.
func Concat(hashes ...Hash) Hash {
	h := sha256.New()
	for _, x := range hashes {
		h.Write(x[:])
	}

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidHashLength, len(b))
	}

	copy(h[:], b)
	return h, nil
}

// Parse decodes a lowercase or uppercase hex string into a Hash.
func Parse(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, err
	}

	return FromBytes(b)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}
