package crypto

import "golang.org/x/crypto/sha3"

const ethereumSignedMessagePrefix = "\x19Ethereum Signed Message:\n32"

func Keccak256(parts ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EthereumPubkeyHash returns the 20-byte Ethereum address of a 65-byte
// uncompressed public key.
func EthereumPubkeyHash(uncompressed []byte) [20]byte {
	var out [20]byte
	if len(uncompressed) != 65 {
		return out
	}
	h := Keccak256(uncompressed[1:])
	copy(out[:], h[12:])
	return out
}

// EthereumSignedMessage wraps a 32-byte digest the way personal_sign does.
func EthereumSignedMessage(digest [32]byte) [32]byte {
	return Keccak256([]byte(ethereumSignedMessagePrefix), digest[:])
}
