package main

import (
	"encoding/hex"
	"fmt"

	"combinelock.dev/node/node"
	"github.com/spf13/cobra"
)

func newProgramsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the native programs and the code hashes that reference them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := Response{Ok: true}
			for _, name := range node.ProgramNames() {
				h := node.ProgramCodeHash(opts.provider(), name)
				resp.Programs = append(resp.Programs, ProgramJSON{
					Name:     name,
					CodeHash: hex.EncodeToString(h[:]),
					Data:     node.EncodeHex(node.ProgramData(name)),
				})
			}
			writeResp(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func newScenarioCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:       "scenario <name>",
		Short:     "Emit a reference mock transaction",
		Args:      cobra.ExactArgs(1),
		ValidArgs: node.ScenarioNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := node.BuildScenario(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				b, err := sc.Mock.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := node.WriteMockTransaction(out, sc.Mock); err != nil {
				return fmt.Errorf("write scenario %s: %w", sc.Name, err)
			}
			writeResp(cmd.OutOrStdout(), Response{Ok: true, Detail: sc.Description})
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	return cmd
}
