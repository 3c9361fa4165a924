package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	SECP256K1_SIG_BYTES               = 65
	SECP256K1_PRIVKEY_BYTES           = 32
	SECP256K1_COMPRESSED_PUBKEY_BYTES = 33
)

// btcec compact signatures carry 27 + recid (+4 for compressed keys) in a
// leading header byte; the lock wire format is r||s||recid.
const compactHeaderCompressed = 27 + 4

// RecoverSecp256k1 recovers the public key from a 65-byte r||s||recid signature.
func RecoverSecp256k1(sig []byte, msg [32]byte) (*btcec.PublicKey, error) {
	if len(sig) != SECP256K1_SIG_BYTES {
		return nil, fmt.Errorf("secp256k1: signature must be %d bytes (got %d)", SECP256K1_SIG_BYTES, len(sig))
	}
	recid := sig[64]
	if recid > 3 {
		return nil, errors.New("secp256k1: recovery id out of range")
	}
	compact := make([]byte, SECP256K1_SIG_BYTES)
	compact[0] = compactHeaderCompressed + recid
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, msg[:])
	if err != nil {
		return nil, fmt.Errorf("secp256k1: %w", err)
	}
	return pub, nil
}

// SignSecp256k1 produces a deterministic (RFC 6979) r||s||recid signature.
func SignSecp256k1(priv *btcec.PrivateKey, msg [32]byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("secp256k1: nil private key")
	}
	compact := ecdsa.SignCompact(priv, msg[:], true)
	out := make([]byte, SECP256K1_SIG_BYTES)
	copy(out[:64], compact[1:])
	out[64] = compact[0] - compactHeaderCompressed
	return out, nil
}

func PrivKeyFromBytes(b []byte) (*btcec.PrivateKey, error) {
	if len(b) != SECP256K1_PRIVKEY_BYTES {
		return nil, fmt.Errorf("secp256k1: private key must be %d bytes (got %d)", SECP256K1_PRIVKEY_BYTES, len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// DecompressPubkey converts a compressed SEC1 key into its 65-byte form.
func DecompressPubkey(compressed []byte) ([]byte, error) {
	pub, err := btcec.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("secp256k1: %w", err)
	}
	return pub.SerializeUncompressed(), nil
}
