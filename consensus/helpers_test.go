package consensus

import (
	"bytes"
	"errors"
	"testing"

	"combinelock.dev/node/crypto"
	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	testProvider = crypto.CKBCryptoProvider{}

	authRef = CodeRef{CodeHash: crypto.Blake2b256([]byte("test:auth")), HashType: HASH_TYPE_DATA1}
	// combineLockCode is the code hash test cells use for the combine lock itself.
	combineLockCode = crypto.Blake2b256([]byte("test:combine-lock"))
	successRef      = CodeRef{CodeHash: crypto.Blake2b256([]byte("test:always-success")), HashType: HASH_TYPE_DATA}
	failureRef      = CodeRef{CodeHash: crypto.Blake2b256([]byte("test:always-failure")), HashType: HASH_TYPE_DATA}
)

func mustErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var le *LockError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LockError, got %T (%v)", err, err)
	}
	return le.Code
}

func wantErrCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	if got := mustErrCode(t, err); got != want {
		t.Fatalf("code=%s, want %s (%v)", got, want, err)
	}
}

func mustPrivkey(t *testing.T, seed byte) *btcec.PrivateKey {
	t.Helper()
	b := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 4)
	b[31] ^= seed
	priv, err := crypto.PrivKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivKeyFromBytes: %v", err)
	}
	return priv
}

func authScript(priv *btcec.PrivateKey) Script {
	pkh := crypto.Blake160(priv.PubKey().SerializeCompressed())
	return Script{CodeHash: authRef.CodeHash, HashType: authRef.HashType, Args: AuthArgs(AUTH_ID_CKB, pkh)}
}

func singleSigPolicy(priv *btcec.PrivateKey) *Policy {
	return &Policy{Registry: []Script{authScript(priv)}, Matrix: [][]uint16{{0}}}
}

func combineLock(c Commitment) Script {
	return Script{CodeHash: combineLockCode, HashType: HASH_TYPE_TYPE, Args: append([]byte(nil), c[:]...)}
}

func isTestCombineLock(s Script) bool {
	return s.CodeHash == combineLockCode && s.HashType == HASH_TYPE_TYPE
}

func testAuthorizers(t *testing.T) *AuthorizerTable {
	t.Helper()
	tbl := NewAuthorizerTable()
	must := func(ref CodeRef, a ChildAuthorizer) {
		if err := tbl.Register(ref, a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	must(authRef, BuiltinSignatureCheck{})
	must(successRef, ExternalInvocation{Name: "always-success", Program: ProgramFunc(func(*ScriptContext) (int8, error) { return 0, nil })})
	must(failureRef, ExternalInvocation{Name: "always-failure", Program: ProgramFunc(func(*ScriptContext) (int8, error) { return 42, nil })})
	return tbl
}

// testView builds a transaction spending one cell per lock, in order.
func testView(locks ...Script) *TxView {
	tx := &Transaction{
		CellDeps: []CellDep{{OutPoint: OutPoint{TxHash: [32]byte{0xde, 0xad}}, DepType: DEP_TYPE_CODE}},
		Outputs:  []CellOutput{{Capacity: 100_000, Lock: locks[0]}},
		OutputsData: [][]byte{
			{},
		},
		Witnesses: make([][]byte, len(locks)),
	}
	resolved := make([]CellOutput, len(locks))
	for i, l := range locks {
		tx.Inputs = append(tx.Inputs, CellInput{PreviousOutput: OutPoint{TxHash: [32]byte{0xaa, byte(i)}, Index: uint32(i)}})
		resolved[i] = CellOutput{Capacity: 200_000, Lock: l}
	}
	return &TxView{Tx: tx, ResolvedInputs: resolved}
}

func groupOf(view *TxView, lock Script) GroupContext {
	g := GroupContext{ScriptHash: ScriptHash(testProvider, lock)}
	for i, cell := range view.ResolvedInputs {
		if cell.Lock.Equal(lock) {
			g.InputIndices = append(g.InputIndices, i)
		}
	}
	return g
}

// placeholderSig is a 65-byte proof slot to be replaced by signUnlock.
func placeholderSig() []byte { return make([]byte, crypto.SECP256K1_SIG_BYTES) }

type signFn func(msg [32]byte) []byte

func ckbSigner(t *testing.T, priv *btcec.PrivateKey) signFn {
	return func(msg [32]byte) []byte {
		sig, err := crypto.SignSecp256k1(priv, msg)
		if err != nil {
			t.Fatalf("SignSecp256k1: %v", err)
		}
		return sig
	}
}

// signUnlock installs uw as the group's lock witness and fills the proofs of
// signers (by group position) with signatures over the signing message.
// Returns the encoded unlock witness.
func signUnlock(t *testing.T, view *TxView, group GroupContext, uw *UnlockWitness, signers map[int]*btcec.PrivateKey) []byte {
	t.Helper()
	fns := make(map[int]signFn, len(signers))
	for pos, priv := range signers {
		fns[pos] = ckbSigner(t, priv)
	}
	return signUnlockFn(t, view, group, uw, fns)
}

func signUnlockFn(t *testing.T, view *TxView, group GroupContext, uw *UnlockWitness, signers map[int]signFn) []byte {
	t.Helper()
	first := group.InputIndices[0]
	view.Tx.Witnesses[first] = BuildWitnessArgs(uw)
	msg, err := SighashAll(testProvider, view.Tx, group.InputIndices)
	if err != nil {
		t.Fatalf("SighashAll: %v", err)
	}
	for pos, sign := range signers {
		uw.InnerProofs[pos] = sign(msg)
	}
	view.Tx.Witnesses[first] = BuildWitnessArgs(uw)
	return uw.Bytes()
}

// scenarioA is a single-signature policy spent with a valid signature.
func scenarioA(t *testing.T) (Commitment, []byte, *TxView, GroupContext) {
	t.Helper()
	priv := mustPrivkey(t, 0)
	policy := singleSigPolicy(priv)
	c := ComputeCommitment(testProvider, policy)
	lock := combineLock(c)
	view := testView(lock)
	group := groupOf(view, lock)
	uw := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: policy}
	w := signUnlock(t, view, group, uw, map[int]*btcec.PrivateKey{0: priv})
	return c, w, view, group
}
