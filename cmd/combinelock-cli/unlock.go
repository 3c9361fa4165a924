package main

import (
	"fmt"
	"strconv"
	"strings"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// unlockFlags describe an unlock witness on the command line.
type unlockFlags struct {
	policy     string
	path       uint16
	proofs     []string
	omitPolicy bool
}

func (f *unlockFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.policy, "policy", "", "policy JSON file, commitment or book label")
	cmd.Flags().Uint16Var(&f.path, "path", 0, "index of the group in the policy matrix")
	cmd.Flags().StringArrayVar(&f.proofs, "proof", nil, "inner witness as pos:hex (repeatable)")
	cmd.Flags().BoolVar(&f.omitPolicy, "omit-policy", false, "leave the policy out of the witness")
	_ = cmd.MarkFlagRequired("policy")
}

// build resolves the policy and lays out one proof slot per group member.
func (f *unlockFlags) build(opts *RootOptions) (*consensus.UnlockWitness, error) {
	p, err := opts.resolvePolicy(f.policy)
	if err != nil {
		return nil, err
	}
	if int(f.path) >= len(p.Matrix) {
		return nil, fmt.Errorf("path %d out of range (%d groups)", f.path, len(p.Matrix))
	}
	uw := &consensus.UnlockWitness{
		PathIndex:   f.path,
		InnerProofs: make([][]byte, len(p.Matrix[f.path])),
	}
	if !f.omitPolicy {
		uw.Policy = p
	}
	for _, raw := range f.proofs {
		pos, val, err := parsePositional(raw, len(uw.InnerProofs))
		if err != nil {
			return nil, fmt.Errorf("--proof %q: %w", raw, err)
		}
		b, err := node.DecodeHex(val)
		if err != nil {
			return nil, fmt.Errorf("--proof %q: %w", raw, err)
		}
		uw.InnerProofs[pos] = b
	}
	return uw, nil
}

// parsePositional splits "pos:value" and bounds pos by n.
func parsePositional(s string, n int) (int, string, error) {
	head, tail, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", fmt.Errorf("want pos:value")
	}
	pos, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", err
	}
	if pos < 0 || pos >= n {
		return 0, "", fmt.Errorf("position %d out of range (%d slots)", pos, n)
	}
	return pos, tail, nil
}

func newWitnessCommand(opts *RootOptions) *cobra.Command {
	var f unlockFlags
	cmd := &cobra.Command{
		Use:   "witness",
		Short: "Encode a combine-lock unlock witness as WitnessArgs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uw, err := f.build(opts)
			if err != nil {
				return err
			}
			writeResp(cmd.OutOrStdout(), Response{Ok: true, Witness: node.EncodeHex(consensus.BuildWitnessArgs(uw))})
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newSignCommand(opts *RootOptions) *cobra.Command {
	var (
		f     unlockFlags
		input int
		keys  []string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "sign <mock-tx.json>",
		Short: "Install a signed unlock witness into a mock transaction",
		Long: `Builds the unlock witness for the group of --input, signs the proof
slots named by --key with secp256k1 over the group's signing message, and
writes the mock transaction back (to --out, or over the input file).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := node.LoadMockTransaction(args[0])
			if err != nil {
				return err
			}
			uw, err := f.build(opts)
			if err != nil {
				return err
			}
			signers := make(map[int]*btcec.PrivateKey, len(keys))
			for _, raw := range keys {
				pos, val, err := parsePositional(raw, len(uw.InnerProofs))
				if err != nil {
					return fmt.Errorf("--key: %w", err)
				}
				priv, err := node.ParsePrivKeyHex(val)
				if err != nil {
					return fmt.Errorf("--key %d: %w", pos, err)
				}
				signers[pos] = priv
			}
			if err := node.InstallUnlock(m, input, uw, signers); err != nil {
				return err
			}
			dst := out
			if dst == "" {
				dst = args[0]
			}
			if err := node.WriteMockTransaction(dst, m); err != nil {
				return err
			}
			opts.log.Info("unlock installed", zap.Int("input", input), zap.Int("signers", len(signers)), zap.String("out", dst))
			writeResp(cmd.OutOrStdout(), Response{Ok: true, Witness: node.EncodeHex(consensus.BuildWitnessArgs(uw))})
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&input, "input", 0, "input index whose group is unlocked")
	cmd.Flags().StringArrayVar(&keys, "key", nil, "signing key as pos:hex (repeatable)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: overwrite the input)")
	return cmd
}
