package main

import (
	"encoding/hex"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <mock-tx.json>",
		Short: "Verify every lock group of a mock transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := node.LoadMockTransaction(args[0])
			if err != nil {
				return err
			}
			resp, err := verifyMock(opts, m)
			if err != nil {
				return err
			}
			writeResp(cmd.OutOrStdout(), resp)
			if !resp.Ok {
				return errRejected
			}
			return nil
		},
	}
}

// verifyMock runs the verifier. Lock failures come back in the response;
// the error is reserved for inputs that never reached a lock.
func verifyMock(opts *RootOptions, m *node.MockTransaction) (Response, error) {
	report, err := node.VerifyMockTransaction(opts.cfg, opts.log, m)
	var resp Response
	if report != nil {
		resp.Cycles = report.Cycles
		resp.Groups = groupsJSON(report.Groups)
	}
	if err != nil {
		if !rejection(&resp, err) {
			return Response{}, err
		}
		return resp, nil
	}
	opts.log.Info("transaction accepted", zap.Uint64("cycles", resp.Cycles), zap.Int("groups", len(resp.Groups)))
	resp.Ok = true
	return resp, nil
}

func newCommitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commit <policy.json>",
		Short: "Print the commitment and canonical encoding of a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := node.LoadPolicy(opts.provider(), args[0])
			if err != nil {
				return err
			}
			writeResp(cmd.OutOrStdout(), commitResponse(opts, p))
			return nil
		},
	}
}

func commitResponse(opts *RootOptions, p *consensus.Policy) Response {
	return Response{
		Ok:         true,
		Commitment: consensus.ComputeCommitment(opts.provider(), p).String(),
		PolicyHex:  hex.EncodeToString(p.Bytes()),
	}
}

func newSighashCommand(opts *RootOptions) *cobra.Command {
	var input int
	cmd := &cobra.Command{
		Use:   "sighash <mock-tx.json>",
		Short: "Print the signing message of an input's lock group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := node.LoadMockTransaction(args[0])
			if err != nil {
				return err
			}
			resp, err := sighashResponse(m, input)
			if err != nil {
				return err
			}
			writeResp(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&input, "input", 0, "input index whose group is signed")
	return cmd
}

func sighashResponse(m *node.MockTransaction, input int) (Response, error) {
	msg, group, err := node.SigningMessage(m, input)
	if err != nil {
		return Response{}, err
	}
	return Response{Ok: true, Digest: hex.EncodeToString(msg[:]), Inputs: group.InputIndices}, nil
}
