package node

import (
	"fmt"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"github.com/btcsuite/btcd/btcec/v2"
)

// ScenarioKeyHex is the fixed private key the reference scenarios sign with.
const ScenarioKeyHex = "0x0102030405060708010203040506070801020304050607080102030405060708"

// Scenario is a reference mock transaction with its expected outcome.
type Scenario struct {
	Name        string
	Description string
	Mock        *MockTransaction
	// Want is the expected error code, empty for acceptance.
	Want consensus.ErrorCode
}

var scenarioBuilders = map[string]struct {
	desc  string
	build func(*scenarioKit) (*MockTransaction, consensus.ErrorCode, error)
}{
	"A": {"single-key policy, valid signature", buildScenarioA},
	"B": {"single-key policy, 65 zero bytes as signature", buildScenarioB},
	"C": {"commitment over a registry with an extra unused entry", buildScenarioC},
}

func ScenarioNames() []string { return []string{"A", "B", "C"} }

func BuildScenario(name string) (*Scenario, error) {
	b, ok := scenarioBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	kit, err := newScenarioKit()
	if err != nil {
		return nil, err
	}
	m, want, err := b.build(kit)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return &Scenario{Name: name, Description: b.desc, Mock: m, Want: want}, nil
}

type scenarioKit struct {
	p    crypto.CryptoProvider
	priv *btcec.PrivateKey
	// combineType is the type script of the deployed combine-lock cell.
	combineType consensus.Script
}

func newScenarioKit() (*scenarioKit, error) {
	priv, err := ParsePrivKeyHex(ScenarioKeyHex)
	if err != nil {
		return nil, err
	}
	p := crypto.CKBCryptoProvider{}
	return &scenarioKit{
		p:    p,
		priv: priv,
		combineType: consensus.Script{
			CodeHash: ProgramCodeHash(p, ProgramAlwaysSuccess),
			HashType: consensus.HASH_TYPE_DATA1,
			Args:     []byte("combine-lock type id"),
		},
	}, nil
}

// CombineLockScript is the lock a scenario cell uses for commitment c.
func (k *scenarioKit) combineLockScript(c consensus.Commitment) consensus.Script {
	return consensus.Script{
		CodeHash: consensus.ScriptHash(k.p, k.combineType),
		HashType: consensus.HASH_TYPE_TYPE,
		Args:     append([]byte(nil), c[:]...),
	}
}

func (k *scenarioKit) policy() *consensus.Policy {
	pkh := k.p.ShortHash(k.priv.PubKey().SerializeCompressed())
	return &consensus.Policy{
		Registry: []consensus.Script{{
			CodeHash: ProgramCodeHash(k.p, ProgramAuth),
			HashType: consensus.HASH_TYPE_DATA1,
			Args:     consensus.AuthArgs(consensus.AUTH_ID_CKB, pkh),
		}},
		Matrix: [][]uint16{{0}},
	}
}

// mock spends one combine-lock cell committed to c into an always-success output.
func (k *scenarioKit) mock(c consensus.Commitment) *MockTransaction {
	combineType := ScriptToJSON(k.combineType)
	anyone := ScriptJSON{Program: ProgramAlwaysSuccess}
	dep := func(index uint32, name string, typ *ScriptJSON) MockCellDep {
		return MockCellDep{
			CellDep: CellDepJSON{OutPoint: OutPointJSON{TxHash: Hash32{0xde, 0xce}, Index: index}, DepType: "code"},
			Output:  CellOutputJSON{Capacity: 1_000_000_000_000, Lock: anyone, Type: typ},
			Data:    ProgramData(name),
		}
	}
	return &MockTransaction{
		CellDeps: []MockCellDep{
			dep(0, ProgramAuth, nil),
			dep(1, ProgramCombineLock, &combineType),
			dep(2, ProgramAlwaysSuccess, nil),
		},
		Inputs: []MockInput{{
			Input:  CellInputJSON{PreviousOutput: OutPointJSON{TxHash: Hash32{0xaa}, Index: 0}},
			Output: CellOutputJSON{Capacity: 50_000_000_000, Lock: ScriptToJSON(k.combineLockScript(c))},
			Data:   HexBytes{},
		}},
		Outputs:     []CellOutputJSON{{Capacity: 49_000_000_000, Lock: anyone}},
		OutputsData: []HexBytes{{}},
	}
}

func buildScenarioA(k *scenarioKit) (*MockTransaction, consensus.ErrorCode, error) {
	policy := k.policy()
	m := k.mock(consensus.ComputeCommitment(k.p, policy))
	uw := &consensus.UnlockWitness{InnerProofs: [][]byte{nil}, Policy: policy}
	if err := InstallUnlock(m, 0, uw, map[int]*btcec.PrivateKey{0: k.priv}); err != nil {
		return nil, "", err
	}
	return m, "", nil
}

func buildScenarioB(k *scenarioKit) (*MockTransaction, consensus.ErrorCode, error) {
	policy := k.policy()
	m := k.mock(consensus.ComputeCommitment(k.p, policy))
	uw := &consensus.UnlockWitness{InnerProofs: [][]byte{make([]byte, crypto.SECP256K1_SIG_BYTES)}, Policy: policy}
	if err := InstallUnlock(m, 0, uw, nil); err != nil {
		return nil, "", err
	}
	return m, consensus.LOCK_ERR_SIGNATURE_MISMATCH, nil
}

func buildScenarioC(k *scenarioKit) (*MockTransaction, consensus.ErrorCode, error) {
	policy := k.policy()
	padded := policy.Clone()
	padded.Registry = append(padded.Registry, consensus.Script{
		CodeHash: ProgramCodeHash(k.p, ProgramAlwaysSuccess),
		HashType: consensus.HASH_TYPE_DATA1,
	})
	m := k.mock(consensus.ComputeCommitment(k.p, padded))
	uw := &consensus.UnlockWitness{InnerProofs: [][]byte{nil}, Policy: policy}
	if err := InstallUnlock(m, 0, uw, map[int]*btcec.PrivateKey{0: k.priv}); err != nil {
		return nil, "", err
	}
	return m, consensus.LOCK_ERR_COMMITMENT_MISMATCH, nil
}
