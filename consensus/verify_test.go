package consensus

import (
	"errors"
	"testing"

	"combinelock.dev/node/crypto"
	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()
	return NewVerifier(append([]Option{WithAuthorizers(testAuthorizers(t))}, opts...)...)
}

func TestScenarioA_Accept(t *testing.T) {
	c, w, view, group := scenarioA(t)
	if err := newTestVerifier(t).Verify(c, w, view, group); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestScenarioB_ZeroSignature(t *testing.T) {
	priv := mustPrivkey(t, 0)
	policy := singleSigPolicy(priv)
	c := ComputeCommitment(testProvider, policy)
	lock := combineLock(c)
	view := testView(lock)
	group := groupOf(view, lock)
	uw := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: policy}
	view.Tx.Witnesses[0] = BuildWitnessArgs(uw)

	err := newTestVerifier(t).Verify(c, uw.Bytes(), view, group)
	wantErrCode(t, err, LOCK_ERR_SIGNATURE_MISMATCH)
	if ExitCode(err) != EXIT_SIGNATURE_MISMATCH {
		t.Fatalf("exit=%d", ExitCode(err))
	}
}

func TestScenarioC_ExtraRegistryEntry(t *testing.T) {
	priv := mustPrivkey(t, 0)
	policy := singleSigPolicy(priv)
	padded := policy.Clone()
	padded.Registry = append(padded.Registry, Script{CodeHash: successRef.CodeHash, HashType: successRef.HashType})
	c := ComputeCommitment(testProvider, padded)

	lock := combineLock(c)
	view := testView(lock)
	group := groupOf(view, lock)
	uw := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: policy}
	w := signUnlock(t, view, group, uw, map[int]*btcec.PrivateKey{0: priv})

	err := newTestVerifier(t).Verify(c, w, view, group)
	wantErrCode(t, err, LOCK_ERR_COMMITMENT_MISMATCH)
}

func TestCommitmentIntegrity_SingleByteMutation(t *testing.T) {
	c, w, view, group := scenarioA(t)
	uw, err := DecodeUnlockWitness(w)
	if err != nil {
		t.Fatalf("DecodeUnlockWitness: %v", err)
	}
	v := newTestVerifier(t)
	for i := range uw.PolicyBytes {
		mutated := append([]byte(nil), uw.PolicyBytes...)
		mutated[i] ^= 0x01
		m := &UnlockWitness{PathIndex: uw.PathIndex, InnerProofs: uw.InnerProofs, PolicyBytes: mutated}
		err := v.Verify(c, m.Bytes(), view, group)
		if got := mustErrCode(t, err); got != LOCK_ERR_COMMITMENT_MISMATCH {
			t.Fatalf("byte %d: code=%s", i, got)
		}
	}
	if v.Cache().Len() != 0 {
		t.Fatalf("rejected policies must not be cached")
	}
}

func TestCommittedPolicyMustBeValid(t *testing.T) {
	priv := mustPrivkey(t, 0)
	policy := singleSigPolicy(priv)
	policy.Matrix = append(policy.Matrix, []uint16{5})
	c := ComputeCommitment(testProvider, policy)
	lock := combineLock(c)
	view := testView(lock)
	group := groupOf(view, lock)
	uw := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: policy}
	w := signUnlock(t, view, group, uw, map[int]*btcec.PrivateKey{0: priv})

	v := newTestVerifier(t)
	wantErrCode(t, v.Verify(c, w, view, group), LOCK_ERR_MALFORMED_ENCODING)
	if v.Cache().Len() != 0 {
		t.Fatalf("invalid policy was cached")
	}
}

func TestCacheCorrectness(t *testing.T) {
	priv := mustPrivkey(t, 0)
	policy := singleSigPolicy(priv)
	c := ComputeCommitment(testProvider, policy)
	lock := combineLock(c)
	view := testView(lock)
	group := groupOf(view, lock)

	withPolicy := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: policy}
	w1 := signUnlock(t, view, group, withPolicy, map[int]*btcec.PrivateKey{0: priv})

	v := newTestVerifier(t)
	without := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}}
	w2 := signUnlock(t, view, group, without, map[int]*btcec.PrivateKey{0: priv})
	wantErrCode(t, v.Verify(c, w2, view, group), LOCK_ERR_MISSING_POLICY_PROOF)

	view.Tx.Witnesses[0] = BuildWitnessArgs(withPolicy)
	if err := v.Verify(c, w1, view, group); err != nil {
		t.Fatalf("Verify with policy: %v", err)
	}
	if v.Cache().Len() != 1 {
		t.Fatalf("cache len=%d", v.Cache().Len())
	}

	view.Tx.Witnesses[0] = BuildWitnessArgs(without)
	if err := v.Verify(c, w2, view, group); err != nil {
		t.Fatalf("Verify from cache: %v", err)
	}

	bad := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}}
	view.Tx.Witnesses[0] = BuildWitnessArgs(bad)
	wantErrCode(t, v.Verify(c, bad.Bytes(), view, group), LOCK_ERR_SIGNATURE_MISMATCH)

	// Another commitment does not see the cached policy.
	other := Commitment{0x42}
	wantErrCode(t, v.Verify(other, w2, view, group), LOCK_ERR_MISSING_POLICY_PROOF)
}

// multiPathFixture commits to the two-of-three policy and returns a helper
// building a signed witness for a path.
func multiPathFixture(t *testing.T) (Commitment, *Policy, *TxView, GroupContext) {
	t.Helper()
	policy := twoOfThreePolicy(t)
	c := ComputeCommitment(testProvider, policy)
	lock := combineLock(c)
	view := testView(lock, lock)
	return c, policy, view, groupOf(view, lock)
}

func TestMultiPath(t *testing.T) {
	k1, k2 := mustPrivkey(t, 1), mustPrivkey(t, 2)
	c, policy, view, group := multiPathFixture(t)
	if len(group.InputIndices) != 2 {
		t.Fatalf("group=%v", group.InputIndices)
	}

	cases := []struct {
		name    string
		path    uint16
		signers map[int]*btcec.PrivateKey
		want    ErrorCode
	}{
		{"both keys", 0, map[int]*btcec.PrivateKey{0: k1, 1: k2}, ""},
		{"key and program", 1, map[int]*btcec.PrivateKey{0: k1}, ""},
		{"key2 and program", 2, map[int]*btcec.PrivateKey{0: k2}, ""},
		{"swapped signers", 0, map[int]*btcec.PrivateKey{0: k2, 1: k1}, LOCK_ERR_SIGNATURE_MISMATCH},
		{"missing second signature", 0, map[int]*btcec.PrivateKey{0: k1}, LOCK_ERR_SIGNATURE_MISMATCH},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uw := &UnlockWitness{PathIndex: tc.path, InnerProofs: [][]byte{placeholderSig(), placeholderSig()}, Policy: policy}
			w := signUnlock(t, view, group, uw, tc.signers)
			err := newTestVerifier(t).Verify(c, w, view, group)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Verify: %v", err)
				}
				return
			}
			wantErrCode(t, err, tc.want)
		})
	}
}

func TestPathBounds(t *testing.T) {
	c, policy, view, group := multiPathFixture(t)
	for _, idx := range []uint16{uint16(len(policy.Matrix)), uint16(len(policy.Matrix) + 1), 0xffff} {
		uw := &UnlockWitness{PathIndex: idx, InnerProofs: [][]byte{{}, {}}, Policy: policy}
		view.Tx.Witnesses[0] = BuildWitnessArgs(uw)
		err := newTestVerifier(t).Verify(c, uw.Bytes(), view, group)
		wantErrCode(t, err, LOCK_ERR_PATH_INDEX_OUT_OF_RANGE)
	}
}

func TestProofArity(t *testing.T) {
	c, policy, view, group := multiPathFixture(t)
	for _, n := range []int{0, 1, 3} {
		uw := &UnlockWitness{PathIndex: 1, InnerProofs: make([][]byte, n), Policy: policy}
		view.Tx.Witnesses[0] = BuildWitnessArgs(uw)
		err := newTestVerifier(t).Verify(c, uw.Bytes(), view, group)
		wantErrCode(t, err, LOCK_ERR_PROOF_ARITY_MISMATCH)
	}
}

func TestMalformedWitness(t *testing.T) {
	c, w, view, group := scenarioA(t)
	v := newTestVerifier(t)
	wantErrCode(t, v.Verify(c, w[:len(w)-1], view, group), LOCK_ERR_MALFORMED_ENCODING)
	wantErrCode(t, v.Verify(c, nil, view, group), LOCK_ERR_MALFORMED_ENCODING)
}

func TestChildScriptFailure(t *testing.T) {
	failing := Script{CodeHash: failureRef.CodeHash, HashType: failureRef.HashType}
	unknown := Script{CodeHash: crypto.Blake2b256([]byte("test:missing")), HashType: HASH_TYPE_DATA}

	cases := []struct {
		name     string
		script   Script
		wantExit int8
	}{
		{"non-zero exit", failing, 42},
		{"unresolved code", unknown, EXIT_ITEM_MISSING},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := &Policy{Registry: []Script{tc.script}, Matrix: [][]uint16{{0}}}
			c := ComputeCommitment(testProvider, policy)
			lock := combineLock(c)
			view := testView(lock)
			group := groupOf(view, lock)
			uw := &UnlockWitness{InnerProofs: [][]byte{{}}, Policy: policy}
			view.Tx.Witnesses[0] = BuildWitnessArgs(uw)

			err := newTestVerifier(t).Verify(c, uw.Bytes(), view, group)
			wantErrCode(t, err, LOCK_ERR_CHILD_SCRIPT_FAILED)
			le := err.(*LockError)
			if le.ChildExit != tc.wantExit {
				t.Fatalf("child exit=%d, want %d", le.ChildExit, tc.wantExit)
			}
			if ExitCode(err) != EXIT_CHILD_SCRIPT_FAILED {
				t.Fatalf("exit=%d", ExitCode(err))
			}
		})
	}
}

func TestDeterministicCycles(t *testing.T) {
	c, w, view, group := scenarioA(t)
	first, err := newTestVerifier(t).VerifyWithCycles(c, w, view, group)
	if err != nil {
		t.Fatalf("VerifyWithCycles: %v", err)
	}
	second, err := newTestVerifier(t).VerifyWithCycles(c, w, view, group)
	if err != nil {
		t.Fatalf("VerifyWithCycles: %v", err)
	}
	if first != second {
		t.Fatalf("cycles differ: %d vs %d", first, second)
	}
	if first < CYCLES_RUN_BASE+CYCLES_SECP256K1_RECOVER {
		t.Fatalf("cycles=%d below fixed costs", first)
	}
}

func TestResourceExhaustion(t *testing.T) {
	c, w, view, group := scenarioA(t)
	used, err := newTestVerifier(t).VerifyWithCycles(c, w, view, group)
	if err != nil {
		t.Fatalf("VerifyWithCycles: %v", err)
	}
	if err := newTestVerifier(t, WithMaxCycles(used)).Verify(c, w, view, group); err != nil {
		t.Fatalf("exact budget: %v", err)
	}
	for _, limit := range []uint64{used - 1, CYCLES_RUN_BASE, 1} {
		got, err := newTestVerifier(t, WithMaxCycles(limit)).VerifyWithCycles(c, w, view, group)
		wantErrCode(t, err, LOCK_ERR_RESOURCE_EXHAUSTED)
		if !IsFatal(err) || ExitCode(err) != EXIT_RESOURCE_EXHAUSTED {
			t.Fatalf("limit %d: exhaustion must be fatal", limit)
		}
		if got != limit {
			t.Fatalf("limit %d: used=%d", limit, got)
		}
	}
}

func nestedCombineLockProgram() ExternalInvocation {
	return ExternalInvocation{Name: "combine-lock", Program: ProgramFunc(func(sc *ScriptContext) (int8, error) {
		if err := sc.VerifyCombineLock(sc.Args(), sc.Witness); err != nil {
			return 0, err
		}
		return 0, nil
	})}
}

func TestNestedCombineLock(t *testing.T) {
	priv := mustPrivkey(t, 3)
	inner := singleSigPolicy(priv)
	innerC := ComputeCommitment(testProvider, inner)
	outer := &Policy{Registry: []Script{combineLock(innerC)}, Matrix: [][]uint16{{0}}}
	outerC := ComputeCommitment(testProvider, outer)

	lock := combineLock(outerC)
	view := testView(lock)
	group := groupOf(view, lock)

	innerUW := &UnlockWitness{InnerProofs: [][]byte{placeholderSig()}, Policy: inner}
	outerUW := &UnlockWitness{InnerProofs: [][]byte{innerUW.Bytes()}, Policy: outer}
	view.Tx.Witnesses[0] = BuildWitnessArgs(outerUW)
	msg, err := SighashAll(testProvider, view.Tx, group.InputIndices)
	if err != nil {
		t.Fatalf("SighashAll: %v", err)
	}
	innerUW.InnerProofs[0] = ckbSigner(t, priv)(msg)
	outerUW.InnerProofs[0] = innerUW.Bytes()
	view.Tx.Witnesses[0] = BuildWitnessArgs(outerUW)

	tbl := testAuthorizers(t)
	if err := tbl.Register(CodeRef{CodeHash: combineLockCode, HashType: HASH_TYPE_TYPE}, nestedCombineLockProgram()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	v := NewVerifier(WithAuthorizers(tbl))
	if err := v.Verify(outerC, outerUW.Bytes(), view, group); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Cache().Len() != 2 {
		t.Fatalf("nested policy must share the cache: len=%d", v.Cache().Len())
	}

	// A bad inner signature surfaces as the child's exit code.
	innerUW.InnerProofs[0] = placeholderSig()
	outerUW.InnerProofs[0] = innerUW.Bytes()
	view.Tx.Witnesses[0] = BuildWitnessArgs(outerUW)
	err = NewVerifier(WithAuthorizers(tbl)).Verify(outerC, outerUW.Bytes(), view, group)
	wantErrCode(t, err, LOCK_ERR_CHILD_SCRIPT_FAILED)
	if le := err.(*LockError); le.ChildExit != EXIT_SIGNATURE_MISMATCH {
		t.Fatalf("child exit=%d", le.ChildExit)
	}
}

func TestHostProgramErrorExitCode(t *testing.T) {
	brokenRef := CodeRef{CodeHash: crypto.Blake2b256([]byte("test:broken")), HashType: HASH_TYPE_DATA}
	cases := []struct {
		name string
		prog ProgramFunc
		want int8
	}{
		{"plain error", func(*ScriptContext) (int8, error) { return 0, errors.New("cannot load") }, EXIT_HOST_FAILURE},
		{"malformed exit", func(*ScriptContext) (int8, error) { return EXIT_MALFORMED_ENCODING, nil }, EXIT_MALFORMED_ENCODING},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := &Policy{Registry: []Script{{CodeHash: brokenRef.CodeHash, HashType: brokenRef.HashType}}, Matrix: [][]uint16{{0}}}
			c := ComputeCommitment(testProvider, policy)
			lock := combineLock(c)
			view := testView(lock)
			group := groupOf(view, lock)
			uw := &UnlockWitness{InnerProofs: [][]byte{{}}, Policy: policy}
			view.Tx.Witnesses[0] = BuildWitnessArgs(uw)

			tbl := testAuthorizers(t)
			if err := tbl.Register(brokenRef, ExternalInvocation{Name: "broken", Program: tc.prog}); err != nil {
				t.Fatalf("Register: %v", err)
			}
			err := NewVerifier(WithAuthorizers(tbl)).Verify(c, uw.Bytes(), view, group)
			wantErrCode(t, err, LOCK_ERR_CHILD_SCRIPT_FAILED)
			var le *LockError
			if !errors.As(err, &le) || le.ChildExit != tc.want {
				t.Fatalf("child exit=%d, want %d (%v)", le.ChildExit, tc.want, err)
			}
		})
	}
}

func TestTransitionsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c, w, view, group := scenarioA(t)
	v := newTestVerifier(t, WithLogger(zap.New(core)))
	if err := v.Verify(c, w, view, group); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	var states []string
	for _, e := range logs.FilterMessage("combine lock transition").All() {
		states = append(states, e.ContextMap()["to"].(string))
	}
	want := []string{"DecodeWitness", "ProveOrFetchPolicy", "SelectPath", "VerifyGroup", "Accept"}
	if len(states) != len(want) {
		t.Fatalf("states=%v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states=%v, want %v", states, want)
		}
	}

	logs.TakeAll()
	_ = v.Verify(Commitment{}, w, view, group)
	rejected := logs.FilterMessage("combine lock rejected").All()
	if len(rejected) != 1 || rejected[0].Level != zap.WarnLevel {
		t.Fatalf("rejections=%v", rejected)
	}
	if got := rejected[0].ContextMap()["code"]; got != string(LOCK_ERR_COMMITMENT_MISMATCH) {
		t.Fatalf("code=%v", got)
	}
}
