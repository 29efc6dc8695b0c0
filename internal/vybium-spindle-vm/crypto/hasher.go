package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashFunc names a byte-level hash used for Merkle commitments and the
// Fiat-Shamir transcript.
type HashFunc string

const (
	// HashSHA3 is SHA3-256, the default.
	HashSHA3 HashFunc = "sha3-256"
	// HashBLAKE2b is BLAKE2b-256.
	HashBLAKE2b HashFunc = "blake2b-256"
	// HashSHA256 is SHA-256.
	HashSHA256 HashFunc = "sha256"
)

// HashSize is the digest size in bytes for every supported function.
const HashSize = 32

// Validate checks that the hash function is supported.
func (h HashFunc) Validate() error {
	switch h {
	case HashSHA3, HashBLAKE2b, HashSHA256:
		return nil
	default:
		return fmt.Errorf("unsupported hash function %q", string(h))
	}
}

// Digest returns the one-shot digest function for h. Unknown names fall back
// to SHA3-256; callers validate options up front.
func (h HashFunc) Digest() func([]byte) []byte {
	switch h {
	case HashBLAKE2b:
		return func(data []byte) []byte {
			sum := blake2b.Sum256(data)
			return sum[:]
		}
	case HashSHA256:
		return func(data []byte) []byte {
			sum := sha256.Sum256(data)
			return sum[:]
		}
	default:
		return func(data []byte) []byte {
			sum := sha3.Sum256(data)
			return sum[:]
		}
	}
}
