package crypto

import "hash"

// CryptoProvider is the narrow crypto interface used by consensus code.
// The default backend reproduces the CKB host primitives; tests may swap it.
type CryptoProvider interface {
	ContentHash(input []byte) [32]byte
	NewContentHasher() hash.Hash
	ShortHash(input []byte) [20]byte
	// RecoverPubkey returns the compressed secp256k1 key that produced sig over msg.
	RecoverPubkey(sig []byte, msg [32]byte) ([]byte, error)
}

// CKBCryptoProvider implements CryptoProvider with blake2b-256 ("ckb-default-hash")
// and recoverable secp256k1 signatures in r||s||recid layout.
type CKBCryptoProvider struct{}

func (CKBCryptoProvider) ContentHash(input []byte) [32]byte { return Blake2b256(input) }

func (CKBCryptoProvider) NewContentHasher() hash.Hash { return NewBlake2b256() }

func (CKBCryptoProvider) ShortHash(input []byte) [20]byte { return Blake160(input) }

func (CKBCryptoProvider) RecoverPubkey(sig []byte, msg [32]byte) ([]byte, error) {
	pub, err := RecoverSecp256k1(sig, msg)
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}
