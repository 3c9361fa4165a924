package consensus

import (
	"encoding/hex"
	"fmt"
	"strings"

	"combinelock.dev/node/crypto"
)

// ScriptHashType selects how the host resolves CodeHash to loadable code.
type ScriptHashType byte

const (
	HASH_TYPE_DATA  ScriptHashType = 0
	HASH_TYPE_TYPE  ScriptHashType = 1
	HASH_TYPE_DATA1 ScriptHashType = 2
)

func (t ScriptHashType) Valid() bool {
	switch t {
	case HASH_TYPE_DATA, HASH_TYPE_TYPE, HASH_TYPE_DATA1:
		return true
	default:
		return false
	}
}

func (t ScriptHashType) String() string {
	switch t {
	case HASH_TYPE_DATA:
		return "data"
	case HASH_TYPE_TYPE:
		return "type"
	case HASH_TYPE_DATA1:
		return "data1"
	default:
		return fmt.Sprintf("hash_type(%d)", byte(t))
	}
}

func ParseScriptHashType(s string) (ScriptHashType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data":
		return HASH_TYPE_DATA, nil
	case "type":
		return HASH_TYPE_TYPE, nil
	case "data1":
		return HASH_TYPE_DATA1, nil
	default:
		return 0, fmt.Errorf("unknown hash_type %q", s)
	}
}

// Script is both a cell lock/type script and a child-script descriptor in a
// policy registry; the two share one encoding.
type Script struct {
	CodeHash [32]byte
	HashType ScriptHashType
	Args     []byte
}

// CodeRef identifies externally loadable code.
type CodeRef struct {
	CodeHash [32]byte
	HashType ScriptHashType
}

func (r CodeRef) String() string {
	return hex.EncodeToString(r.CodeHash[:]) + "/" + r.HashType.String()
}

func (s Script) CodeRef() CodeRef {
	return CodeRef{CodeHash: s.CodeHash, HashType: s.HashType}
}

func (s Script) Bytes() []byte {
	return encodeDyn(s.CodeHash[:], []byte{byte(s.HashType)}, encodeBytes(s.Args))
}

func (s Script) Equal(o Script) bool {
	return s.CodeHash == o.CodeHash && s.HashType == o.HashType && string(s.Args) == string(o.Args)
}

func ScriptHash(p crypto.CryptoProvider, s Script) [32]byte {
	return p.ContentHash(s.Bytes())
}

func DecodeScript(b []byte) (Script, error) {
	fields, err := parseTable(b, 3, "Script")
	if err != nil {
		return Script{}, err
	}
	codeHash, err := parseByte32(fields[0], "Script.code_hash")
	if err != nil {
		return Script{}, err
	}
	if len(fields[1]) != 1 {
		return Script{}, malformed("Script.hash_type: length %d", len(fields[1]))
	}
	hashType := ScriptHashType(fields[1][0])
	if !hashType.Valid() {
		return Script{}, malformed("Script.hash_type: unknown value %d", fields[1][0])
	}
	args, err := parseBytes(fields[2], "Script.args")
	if err != nil {
		return Script{}, err
	}
	return Script{CodeHash: codeHash, HashType: hashType, Args: args}, nil
}

func encodeScriptOpt(s *Script) []byte {
	if s == nil {
		return nil
	}
	return s.Bytes()
}
