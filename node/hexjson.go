package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HexBytes marshals as a 0x-prefixed hex string.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := DecodeHex(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Hash32 marshals as a 0x-prefixed 32-byte hex string.
type Hash32 [32]byte

func (h Hash32) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h[:]))
}

func (h *Hash32) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := DecodeHex(s)
	if err != nil {
		return err
	}
	if len(v) != 32 {
		return fmt.Errorf("hash must be 32 bytes (got %d)", len(v))
	}
	copy(h[:], v)
	return nil
}

func (h Hash32) IsZero() bool { return h == Hash32{} }

// DecodeHex accepts hex with or without 0x and ignores whitespace.
func DecodeHex(s string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}

func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
