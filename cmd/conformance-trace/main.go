package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"combinelock.dev/node/node"
	"github.com/spf13/cobra"
)

func newTraceCommand() *cobra.Command {
	var (
		fixturesDir string
		outPath     string
		logLevel    string
	)
	cmd := &cobra.Command{
		Use:           "conformance-trace",
		Short:         "Replay conformance fixtures and write a JSONL trace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := node.NewLogger(logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var traceBuf bytes.Buffer
			sum, err := runTrace(fixturesDir, node.DefaultConfig(), log, &traceBuf)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}
			if err := os.WriteFile(outPath, traceBuf.Bytes(), 0o600); err != nil {
				return fmt.Errorf("write trace: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trace: %d entries -> %s\n", sum.Entries, outPath)
			if len(sum.Mismatches) > 0 {
				return fmt.Errorf("%d vector(s) disagree with fixtures: %s", len(sum.Mismatches), strings.Join(sum.Mismatches, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturesDir, "fixtures-dir", "conformance/fixtures", "path to conformance fixtures dir")
	cmd.Flags().StringVar(&outPath, "out", "conformance/traces/go_trace_v1.jsonl", "output JSONL path")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	return cmd
}

func main() {
	if err := newTraceCommand().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "conformance-trace: %v\n", err)
		os.Exit(2)
	}
}
