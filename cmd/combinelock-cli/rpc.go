package main

import (
	"encoding/json"
	"fmt"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
	"github.com/spf13/cobra"
)

// Request is one rpc call read from stdin.
type Request struct {
	Op         string                `json:"op"`
	Tx         *node.MockTransaction `json:"tx,omitempty"`
	Policy     *node.PolicyJSON      `json:"policy,omitempty"`
	InputIndex int                   `json:"input_index,omitempty"`
	WitnessHex string                `json:"witness_hex,omitempty"`
}

func newRPCCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Answer one JSON request from stdin",
		Long: `Reads a single {"op": ...} request from stdin and writes one JSON
response. Failures are reported in the response; the exit status is 0
whenever a response was written.

ops: verify (tx), commit (policy), sighash (tx, input_index),
decode_witness (witness_hex)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req Request
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil {
				writeResp(cmd.OutOrStdout(), Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
				return nil
			}
			writeResp(cmd.OutOrStdout(), handleRPC(opts, &req))
			return nil
		},
	}
}

func handleRPC(opts *RootOptions, req *Request) Response {
	switch req.Op {
	case "verify":
		if req.Tx == nil {
			return Response{Ok: false, Err: "missing tx"}
		}
		resp, err := verifyMock(opts, req.Tx)
		if err != nil {
			return failure(err)
		}
		return resp

	case "commit":
		if req.Policy == nil {
			return Response{Ok: false, Err: "missing policy"}
		}
		p, err := req.Policy.Policy(opts.provider())
		if err != nil {
			return failure(err)
		}
		return commitResponse(opts, p)

	case "sighash":
		if req.Tx == nil {
			return Response{Ok: false, Err: "missing tx"}
		}
		resp, err := sighashResponse(req.Tx, req.InputIndex)
		if err != nil {
			return failure(err)
		}
		return resp

	case "decode_witness":
		return decodeWitness(opts, req.WitnessHex)

	default:
		return Response{Ok: false, Err: "unknown op"}
	}
}

// decodeWitness unpacks WitnessArgs and its combine-lock payload. A policy
// carried in the witness is reported together with its commitment.
func decodeWitness(opts *RootOptions, witnessHex string) Response {
	raw, err := node.DecodeHex(witnessHex)
	if err != nil {
		return Response{Ok: false, Err: "bad hex"}
	}
	wa, err := consensus.DecodeWitnessArgs(raw)
	if err != nil {
		return failure(err)
	}
	if !wa.Lock.Present {
		return Response{Ok: false, Err: "witness has no lock field"}
	}
	uw, err := consensus.DecodeUnlockWitness(wa.Lock.Data)
	if err != nil {
		return failure(err)
	}
	path := uw.PathIndex
	carries := uw.HasPolicy()
	resp := Response{Ok: true, Path: &path, CarriesPolicy: &carries}
	for _, proof := range uw.InnerProofs {
		resp.Proofs = append(resp.Proofs, node.EncodeHex(proof))
	}
	if carries {
		p, err := consensus.DecodePolicy(uw.PolicyBytes)
		if err != nil {
			return failure(err)
		}
		pj := node.PolicyToJSON(p)
		resp.Policy = &pj
		resp.Commitment = consensus.Commitment(opts.provider().ContentHash(uw.PolicyBytes)).String()
	}
	return resp
}
