package consensus

import "fmt"

// Policy is the committed authorization policy: a registry of child scripts
// and a selection matrix of groups. Exactly one group is chosen per unlock and
// every member of that group must validate.
type Policy struct {
	Registry []Script
	Matrix   [][]uint16
}

// Bytes returns the canonical ChildScriptConfig encoding hashed by the commitment.
func (p *Policy) Bytes() []byte {
	registry := make([][]byte, len(p.Registry))
	for i, s := range p.Registry {
		registry[i] = s.Bytes()
	}
	matrix := make([][]byte, len(p.Matrix))
	for i, g := range p.Matrix {
		body := make([]byte, 0, 2*len(g))
		for _, idx := range g {
			body = appendU16le(body, idx)
		}
		matrix[i] = encodeFixvec(len(g), body)
	}
	return encodeDyn(encodeDyn(registry...), encodeDyn(matrix...))
}

// Validate enforces the structural invariants a decodable policy may still violate.
func (p *Policy) Validate() error {
	if p == nil {
		return malformed("policy: nil")
	}
	if len(p.Registry) == 0 {
		return malformed("policy: empty registry")
	}
	if len(p.Matrix) == 0 {
		return malformed("policy: empty matrix")
	}
	for gi, g := range p.Matrix {
		if len(g) == 0 {
			return malformed("policy: group %d is empty", gi)
		}
		for _, idx := range g {
			if int(idx) >= len(p.Registry) {
				return malformed("policy: group %d references script %d of %d", gi, idx, len(p.Registry))
			}
		}
	}
	return nil
}

func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	out := &Policy{
		Registry: make([]Script, len(p.Registry)),
		Matrix:   make([][]uint16, len(p.Matrix)),
	}
	for i, s := range p.Registry {
		s.Args = append([]byte(nil), s.Args...)
		out.Registry[i] = s
	}
	for i, g := range p.Matrix {
		out.Matrix[i] = append([]uint16(nil), g...)
	}
	return out
}

// DecodePolicy parses a ChildScriptConfig. It checks encoding only; callers
// run Validate once the bytes are bound to a commitment.
func DecodePolicy(b []byte) (*Policy, error) {
	fields, err := parseTable(b, 2, "ChildScriptConfig")
	if err != nil {
		return nil, err
	}
	entries, err := parseDynItems(fields[0], "ChildScriptArray")
	if err != nil {
		return nil, err
	}
	registry := make([]Script, 0, len(entries))
	for _, e := range entries {
		s, err := DecodeScript(e)
		if err != nil {
			return nil, err
		}
		registry = append(registry, s)
	}

	groups, err := parseDynItems(fields[1], "ChildScriptVecVec")
	if err != nil {
		return nil, err
	}
	matrix := make([][]uint16, 0, len(groups))
	for gi, g := range groups {
		n, body, err := parseFixvec(g, 2, fmt.Sprintf("ChildScriptVec[%d]", gi))
		if err != nil {
			return nil, err
		}
		off := 0
		group := make([]uint16, 0, n)
		for i := 0; i < n; i++ {
			idx, err := readU16le(body, &off)
			if err != nil {
				return nil, err
			}
			group = append(group, idx)
		}
		matrix = append(matrix, group)
	}
	return &Policy{Registry: registry, Matrix: matrix}, nil
}
