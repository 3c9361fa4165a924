package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
)

type ScriptJSON struct {
	// Program names a catalog program; it fills CodeHash when that is empty.
	Program  string   `json:"program,omitempty"`
	CodeHash Hash32   `json:"code_hash"`
	HashType string   `json:"hash_type"`
	Args     HexBytes `json:"args"`
}

type OutPointJSON struct {
	TxHash Hash32 `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

type CellOutputJSON struct {
	Capacity uint64      `json:"capacity"`
	Lock     ScriptJSON  `json:"lock"`
	Type     *ScriptJSON `json:"type,omitempty"`
}

type CellDepJSON struct {
	OutPoint OutPointJSON `json:"out_point"`
	DepType  string       `json:"dep_type"`
}

type CellInputJSON struct {
	Since          uint64       `json:"since"`
	PreviousOutput OutPointJSON `json:"previous_output"`
}

// MockCellDep is a cell dependency with the cell it points at.
type MockCellDep struct {
	CellDep CellDepJSON    `json:"cell_dep"`
	Output  CellOutputJSON `json:"output"`
	Data    HexBytes       `json:"data"`
}

// MockInput is an input with the cell it consumes.
type MockInput struct {
	Input  CellInputJSON  `json:"input"`
	Output CellOutputJSON `json:"output"`
	Data   HexBytes       `json:"data"`
}

// MockTransaction is a self-contained transaction: every cell the
// transaction reads is embedded, so it verifies without a chain.
type MockTransaction struct {
	Version     uint32           `json:"version"`
	CellDeps    []MockCellDep    `json:"cell_deps"`
	HeaderDeps  []Hash32         `json:"header_deps"`
	Inputs      []MockInput      `json:"inputs"`
	Outputs     []CellOutputJSON `json:"outputs"`
	OutputsData []HexBytes       `json:"outputs_data"`
	Witnesses   []HexBytes       `json:"witnesses"`
}

func ParseMockTransaction(b []byte) (*MockTransaction, error) {
	var m MockTransaction
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("mock transaction: %w", err)
	}
	if len(m.Outputs) != len(m.OutputsData) {
		return nil, fmt.Errorf("mock transaction: %d outputs, %d outputs_data", len(m.Outputs), len(m.OutputsData))
	}
	return &m, nil
}

func LoadMockTransaction(path string) (*MockTransaction, error) {
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("read mock transaction: %w", err)
	}
	return ParseMockTransaction(raw)
}

func (m *MockTransaction) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func WriteMockTransaction(path string, m *MockTransaction) error {
	b, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode mock transaction: %w", err)
	}
	return writeFileAtomic(path, b)
}

func (s ScriptJSON) Script(p crypto.CryptoProvider) (consensus.Script, error) {
	codeHash := [32]byte(s.CodeHash)
	hashType := s.HashType
	if s.Program != "" {
		if _, ok := LookupProgram(s.Program); !ok {
			return consensus.Script{}, fmt.Errorf("unknown program %q", s.Program)
		}
		if s.CodeHash.IsZero() {
			codeHash = ProgramCodeHash(p, s.Program)
		}
		if hashType == "" {
			hashType = consensus.HASH_TYPE_DATA1.String()
		}
	}
	ht, err := consensus.ParseScriptHashType(hashType)
	if err != nil {
		return consensus.Script{}, err
	}
	return consensus.Script{CodeHash: codeHash, HashType: ht, Args: append([]byte(nil), s.Args...)}, nil
}

func ScriptToJSON(s consensus.Script) ScriptJSON {
	return ScriptJSON{CodeHash: Hash32(s.CodeHash), HashType: s.HashType.String(), Args: HexBytes(s.Args)}
}

func (o CellOutputJSON) CellOutput(p crypto.CryptoProvider) (consensus.CellOutput, error) {
	lock, err := o.Lock.Script(p)
	if err != nil {
		return consensus.CellOutput{}, fmt.Errorf("lock: %w", err)
	}
	out := consensus.CellOutput{Capacity: o.Capacity, Lock: lock}
	if o.Type != nil {
		typ, err := o.Type.Script(p)
		if err != nil {
			return consensus.CellOutput{}, fmt.Errorf("type: %w", err)
		}
		out.Type = &typ
	}
	return out, nil
}

func CellOutputToJSON(o consensus.CellOutput) CellOutputJSON {
	out := CellOutputJSON{Capacity: o.Capacity, Lock: ScriptToJSON(o.Lock)}
	if o.Type != nil {
		t := ScriptToJSON(*o.Type)
		out.Type = &t
	}
	return out
}

func parseDepType(s string) (consensus.DepType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "code":
		return consensus.DEP_TYPE_CODE, nil
	case "dep_group":
		return consensus.DEP_TYPE_DEP_GROUP, nil
	default:
		return 0, fmt.Errorf("unknown dep_type %q", s)
	}
}

func (o OutPointJSON) outPoint() consensus.OutPoint {
	return consensus.OutPoint{TxHash: o.TxHash, Index: o.Index}
}

// View converts the mock into the transaction model the verifier consumes.
func (m *MockTransaction) View(p crypto.CryptoProvider) (*consensus.TxView, error) {
	tx := &consensus.Transaction{Version: m.Version}
	for i, d := range m.CellDeps {
		dt, err := parseDepType(d.CellDep.DepType)
		if err != nil {
			return nil, fmt.Errorf("cell_deps[%d]: %w", i, err)
		}
		tx.CellDeps = append(tx.CellDeps, consensus.CellDep{OutPoint: d.CellDep.OutPoint.outPoint(), DepType: dt})
	}
	for _, h := range m.HeaderDeps {
		tx.HeaderDeps = append(tx.HeaderDeps, [32]byte(h))
	}
	resolved := make([]consensus.CellOutput, 0, len(m.Inputs))
	for i, in := range m.Inputs {
		tx.Inputs = append(tx.Inputs, consensus.CellInput{Since: in.Input.Since, PreviousOutput: in.Input.PreviousOutput.outPoint()})
		cell, err := in.Output.CellOutput(p)
		if err != nil {
			return nil, fmt.Errorf("inputs[%d]: %w", i, err)
		}
		resolved = append(resolved, cell)
	}
	for i, o := range m.Outputs {
		cell, err := o.CellOutput(p)
		if err != nil {
			return nil, fmt.Errorf("outputs[%d]: %w", i, err)
		}
		tx.Outputs = append(tx.Outputs, cell)
	}
	for _, d := range m.OutputsData {
		tx.OutputsData = append(tx.OutputsData, []byte(d))
	}
	for _, w := range m.Witnesses {
		tx.Witnesses = append(tx.Witnesses, []byte(w))
	}
	return &consensus.TxView{Tx: tx, ResolvedInputs: resolved}, nil
}

// GroupOf returns the lock group containing input.
func GroupOf(p crypto.CryptoProvider, view *consensus.TxView, input int) (consensus.GroupContext, error) {
	if input < 0 || input >= len(view.ResolvedInputs) {
		return consensus.GroupContext{}, fmt.Errorf("input %d out of range (%d inputs)", input, len(view.ResolvedInputs))
	}
	h := consensus.ScriptHash(p, view.ResolvedInputs[input].Lock)
	g := consensus.GroupContext{ScriptHash: h}
	for i, cell := range view.ResolvedInputs {
		if consensus.ScriptHash(p, cell.Lock) == h {
			g.InputIndices = append(g.InputIndices, i)
		}
	}
	return g, nil
}

// SetWitness stores w at index i, growing the witness list as needed.
func (m *MockTransaction) SetWitness(i int, w []byte) {
	for len(m.Witnesses) <= i {
		m.Witnesses = append(m.Witnesses, HexBytes{})
	}
	m.Witnesses[i] = HexBytes(w)
}
