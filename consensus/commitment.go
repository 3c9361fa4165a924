package consensus

import (
	"encoding/hex"
	"fmt"

	"combinelock.dev/node/crypto"
)

const COMMITMENT_BYTES = 32

// Commitment is the content hash of a serialized Policy, stored as the lock args.
type Commitment [COMMITMENT_BYTES]byte

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// ParseCommitment reads a commitment from lock args.
func ParseCommitment(args []byte) (Commitment, error) {
	var c Commitment
	if len(args) != COMMITMENT_BYTES {
		return c, lockerr(LOCK_ERR_MALFORMED_ENCODING, fmt.Sprintf("lock args must be %d bytes (got %d)", COMMITMENT_BYTES, len(args)))
	}
	copy(c[:], args)
	return c, nil
}

func ComputeCommitment(p crypto.CryptoProvider, policy *Policy) Commitment {
	return Commitment(p.ContentHash(policy.Bytes()))
}
