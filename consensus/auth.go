package consensus

import (
	"fmt"

	"combinelock.dev/node/crypto"
)

// Built-in authorization args: auth_id(1) || pubkey_hash(20).
const (
	AUTH_ID_CKB      byte = 0x00
	AUTH_ID_ETHEREUM byte = 0x01

	AUTH_ARGS_BYTES = 1 + 20
)

// BuiltinSignatureCheck verifies a recoverable secp256k1 signature over the
// group signing message against the pubkey hash embedded in the child args.
type BuiltinSignatureCheck struct{}

func (BuiltinSignatureCheck) Authorize(sc *ScriptContext) error {
	authID, pubkeyHash, err := ParseAuthArgs(sc.Args())
	if err != nil {
		return err
	}
	return CheckSignature(sc, authID, pubkeyHash, sc.Witness)
}

func ParseAuthArgs(args []byte) (byte, [20]byte, error) {
	var pkh [20]byte
	if len(args) != AUTH_ARGS_BYTES {
		return 0, pkh, lockerr(LOCK_ERR_MALFORMED_ENCODING, fmt.Sprintf("auth args must be %d bytes (got %d)", AUTH_ARGS_BYTES, len(args)))
	}
	copy(pkh[:], args[1:])
	return args[0], pkh, nil
}

func AuthArgs(authID byte, pubkeyHash [20]byte) []byte {
	out := make([]byte, 0, AUTH_ARGS_BYTES)
	out = append(out, authID)
	return append(out, pubkeyHash[:]...)
}

// CheckSignature recovers the signer of sig over the group signing message
// and compares its pubkey hash.
func CheckSignature(sc *ScriptContext, authID byte, pubkeyHash [20]byte, sig []byte) error {
	if authID != AUTH_ID_CKB && authID != AUTH_ID_ETHEREUM {
		return lockerr(LOCK_ERR_MALFORMED_ENCODING, fmt.Sprintf("unknown auth id 0x%02x", authID))
	}
	msg, err := sc.SigningMessage()
	if err != nil {
		return err
	}
	if err := sc.Charge(CYCLES_SECP256K1_RECOVER); err != nil {
		return err
	}

	p := sc.Provider()
	var got [20]byte
	switch authID {
	case AUTH_ID_CKB:
		pub, err := p.RecoverPubkey(sig, msg)
		if err != nil {
			return lockerr(LOCK_ERR_SIGNATURE_MISMATCH, err.Error())
		}
		got = p.ShortHash(pub)
	case AUTH_ID_ETHEREUM:
		if len(sig) != crypto.SECP256K1_SIG_BYTES {
			return lockerr(LOCK_ERR_SIGNATURE_MISMATCH, fmt.Sprintf("signature must be %d bytes (got %d)", crypto.SECP256K1_SIG_BYTES, len(sig)))
		}
		norm := append([]byte(nil), sig...)
		if norm[64] >= 27 {
			norm[64] -= 27
		}
		pub, err := p.RecoverPubkey(norm, crypto.EthereumSignedMessage(msg))
		if err != nil {
			return lockerr(LOCK_ERR_SIGNATURE_MISMATCH, err.Error())
		}
		full, err := crypto.DecompressPubkey(pub)
		if err != nil {
			return lockerr(LOCK_ERR_SIGNATURE_MISMATCH, err.Error())
		}
		got = crypto.EthereumPubkeyHash(full)
	}
	if got != pubkeyHash {
		return lockerr(LOCK_ERR_SIGNATURE_MISMATCH, "pubkey hash mismatch")
	}
	return nil
}
