package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
)

type Response struct {
	Ok  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
	// Exit is the lock's exit code when verification rejected.
	Exit int8 `json:"exit,omitempty"`
	// ChildExit is the failing child's own exit code.
	ChildExit int8   `json:"child_exit,omitempty"`
	Detail    string `json:"detail,omitempty"`

	Cycles     uint64           `json:"cycles,omitempty"`
	Groups     []GroupJSON      `json:"groups,omitempty"`
	Commitment string           `json:"commitment,omitempty"`
	PolicyHex  string           `json:"policy_hex,omitempty"`
	Policy     *node.PolicyJSON `json:"policy,omitempty"`
	Label      string           `json:"label,omitempty"`
	Entries    []EntryJSON      `json:"entries,omitempty"`
	Witness    string           `json:"witness,omitempty"`
	Digest     string           `json:"digest,omitempty"`
	Inputs     []int            `json:"inputs,omitempty"`
	Path       *uint16          `json:"path,omitempty"`
	Proofs     []string         `json:"proofs,omitempty"`
	Programs   []ProgramJSON    `json:"programs,omitempty"`

	// CarriesPolicy is set by decode_witness; false means the spender relies
	// on a policy proven elsewhere in the transaction.
	CarriesPolicy *bool `json:"carries_policy,omitempty"`
}

type GroupJSON struct {
	ScriptHash string `json:"script_hash"`
	Inputs     []int  `json:"inputs"`
	Cycles     uint64 `json:"cycles"`
	Err        string `json:"err,omitempty"`
}

type EntryJSON struct {
	Commitment string `json:"commitment"`
	Label      string `json:"label,omitempty"`
	Size       int    `json:"size"`
}

type ProgramJSON struct {
	Name     string `json:"name"`
	CodeHash string `json:"code_hash"`
	Data     string `json:"data"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

// rejection fills the error fields of resp from a lock error. It reports
// false when err is not a lock error.
func rejection(resp *Response, err error) bool {
	code, ok := consensus.CodeOf(err)
	if !ok {
		return false
	}
	resp.Ok = false
	resp.Err = string(code)
	resp.Exit = consensus.ExitCode(err)
	var le *consensus.LockError
	if errors.As(err, &le) {
		resp.ChildExit = le.ChildExit
	}
	resp.Detail = err.Error()
	return true
}

// failure is the response for err, lock error or not.
func failure(err error) Response {
	var resp Response
	if !rejection(&resp, err) {
		resp.Err = err.Error()
	}
	return resp
}

func groupsJSON(groups []consensus.GroupResult) []GroupJSON {
	out := make([]GroupJSON, 0, len(groups))
	for _, g := range groups {
		gj := GroupJSON{ScriptHash: hex.EncodeToString(g.ScriptHash[:]), Inputs: g.Inputs, Cycles: g.Cycles}
		if code, ok := consensus.CodeOf(g.Err); ok {
			gj.Err = string(code)
		}
		out = append(out, gj)
	}
	return out
}
