package node

import (
	"bytes"
	"encoding/json"
	"fmt"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
)

// PolicyJSON is the operator-facing form of a policy.
type PolicyJSON struct {
	Registry []ScriptJSON `json:"registry"`
	Matrix   [][]uint16   `json:"matrix"`
}

func (pj PolicyJSON) Policy(p crypto.CryptoProvider) (*consensus.Policy, error) {
	out := &consensus.Policy{Matrix: make([][]uint16, len(pj.Matrix))}
	for i, s := range pj.Registry {
		script, err := s.Script(p)
		if err != nil {
			return nil, fmt.Errorf("registry[%d]: %w", i, err)
		}
		out.Registry = append(out.Registry, script)
	}
	for i, g := range pj.Matrix {
		out.Matrix[i] = append([]uint16(nil), g...)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func PolicyToJSON(p *consensus.Policy) PolicyJSON {
	out := PolicyJSON{Matrix: make([][]uint16, len(p.Matrix))}
	for _, s := range p.Registry {
		out.Registry = append(out.Registry, ScriptToJSON(s))
	}
	for i, g := range p.Matrix {
		out.Matrix[i] = append([]uint16(nil), g...)
	}
	return out
}

func ParsePolicyJSON(p crypto.CryptoProvider, b []byte) (*consensus.Policy, error) {
	var pj PolicyJSON
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pj); err != nil {
		return nil, fmt.Errorf("policy json: %w", err)
	}
	return pj.Policy(p)
}

func LoadPolicy(p crypto.CryptoProvider, path string) (*consensus.Policy, error) {
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicyJSON(p, raw)
}
