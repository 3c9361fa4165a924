package node

import (
	"fmt"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"github.com/btcsuite/btcd/btcec/v2"
)

// InstallUnlock writes uw as the lock witness of input's group, first
// filling the proofs at signer positions with signatures over the group's
// signing message. Proof slots being signed must already hold a 65-byte
// placeholder so the witness length does not change when signed.
func InstallUnlock(m *MockTransaction, input int, uw *consensus.UnlockWitness, signers map[int]*btcec.PrivateKey) error {
	p := crypto.CKBCryptoProvider{}
	for pos := range signers {
		if pos < 0 || pos >= len(uw.InnerProofs) {
			return fmt.Errorf("signer position %d out of range (%d proofs)", pos, len(uw.InnerProofs))
		}
		if len(uw.InnerProofs[pos]) != crypto.SECP256K1_SIG_BYTES {
			uw.InnerProofs[pos] = make([]byte, crypto.SECP256K1_SIG_BYTES)
		}
	}
	view, err := m.View(p)
	if err != nil {
		return err
	}
	group, err := GroupOf(p, view, input)
	if err != nil {
		return err
	}
	first := group.InputIndices[0]
	m.SetWitness(first, consensus.BuildWitnessArgs(uw))
	if len(signers) == 0 {
		return nil
	}

	view.Tx.Witnesses = toWitnesses(m.Witnesses)
	msg, err := consensus.SighashAll(p, view.Tx, group.InputIndices)
	if err != nil {
		return fmt.Errorf("signing message: %w", err)
	}
	for pos, priv := range signers {
		sig, err := crypto.SignSecp256k1(priv, msg)
		if err != nil {
			return err
		}
		uw.InnerProofs[pos] = sig
	}
	m.SetWitness(first, consensus.BuildWitnessArgs(uw))
	return nil
}

// SigningMessage returns the sighash-all message of input's group.
func SigningMessage(m *MockTransaction, input int) ([32]byte, consensus.GroupContext, error) {
	p := crypto.CKBCryptoProvider{}
	view, err := m.View(p)
	if err != nil {
		return [32]byte{}, consensus.GroupContext{}, err
	}
	group, err := GroupOf(p, view, input)
	if err != nil {
		return [32]byte{}, consensus.GroupContext{}, err
	}
	msg, err := consensus.SighashAll(p, view.Tx, group.InputIndices)
	return msg, group, err
}

func toWitnesses(ws []HexBytes) [][]byte {
	out := make([][]byte, len(ws))
	for i, w := range ws {
		out[i] = []byte(w)
	}
	return out
}

func ParsePrivKeyHex(s string) (*btcec.PrivateKey, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return nil, err
	}
	return crypto.PrivKeyFromBytes(b)
}
