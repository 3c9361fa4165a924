package crypto

import (
	"hash"

	blake2b "github.com/minio/blake2b-simd"
)

const (
	BLAKE2B_256_BYTES = 32
	BLAKE160_BYTES    = 20
)

// ckbPersonalization is the BLAKE2b personalisation of the CKB default hash.
var ckbPersonalization = []byte("ckb-default-hash")

// NewBlake2b256 returns a streaming BLAKE2b-256 hasher personalised with
// "ckb-default-hash".
func NewBlake2b256() hash.Hash {
	h, err := blake2b.New(&blake2b.Config{
		Size:   BLAKE2B_256_BYTES,
		Person: ckbPersonalization,
	})
	if err != nil {
		// Size and personalisation are constants within BLAKE2b parameter limits.
		panic(err)
	}
	return h
}

func Blake2b256(input []byte) [32]byte {
	h := NewBlake2b256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Blake160 is the first 20 bytes of Blake2b256, used as a public key hash.
func Blake160(input []byte) [20]byte {
	full := Blake2b256(input)
	var out [20]byte
	copy(out[:], full[:BLAKE160_BYTES])
	return out
}
