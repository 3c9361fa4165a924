package consensus

import "combinelock.dev/node/crypto"

// SighashAll computes the "sign the whole transaction" message for a lock
// group:
//
//	H(tx_hash
//	  | len(w0) u64le | w0 with WitnessArgs.lock zero-filled
//	  | len(wi) u64le | wi   for the remaining group witnesses
//	  | len(wj) u64le | wj   for witnesses beyond the input count)
//
// Group witnesses stop at the first index past the witness list, matching the
// host's load-until-out-of-bound iteration.
func SighashAll(p crypto.CryptoProvider, tx *Transaction, group []int) ([32]byte, error) {
	digest, _, err := sighashAll(p, tx, group)
	return digest, err
}

// sighashAll also returns the number of bytes fed to the hash function.
func sighashAll(p crypto.CryptoProvider, tx *Transaction, group []int) ([32]byte, int, error) {
	if tx == nil {
		return [32]byte{}, 0, malformed("sighash: nil transaction")
	}
	if len(group) == 0 {
		return [32]byte{}, 0, malformed("sighash: empty script group")
	}
	first := group[0]
	if first < 0 || first >= len(tx.Witnesses) {
		return [32]byte{}, 0, malformed("sighash: witness %d missing", first)
	}
	zeroed, err := zeroWitnessLock(tx.Witnesses[first])
	if err != nil {
		return [32]byte{}, 0, err
	}

	raw := RawTransactionBytes(tx)
	txHash := p.ContentHash(raw)
	hashed := len(raw)

	h := p.NewContentHasher()
	write := func(b []byte) {
		_, _ = h.Write(b)
		hashed += len(b)
	}
	writeWitness := func(w []byte) {
		write(appendU64le(nil, uint64(len(w))))
		write(w)
	}

	write(txHash[:])
	writeWitness(zeroed)
	for _, idx := range group[1:] {
		if idx < 0 {
			return [32]byte{}, 0, malformed("sighash: negative input index %d", idx)
		}
		if idx >= len(tx.Witnesses) {
			break
		}
		writeWitness(tx.Witnesses[idx])
	}
	for i := len(tx.Inputs); i < len(tx.Witnesses); i++ {
		writeWitness(tx.Witnesses[i])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, hashed, nil
}
