package main

import (
	"fmt"
	"os"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"combinelock.dev/node/node"
	"combinelock.dev/node/node/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags and the state PersistentPreRunE derives
// from them.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	LogLevel   string
	MaxCycles  uint64
	Parallel   bool

	cfg node.Config
	log *zap.Logger
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}
	defaults := node.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "combinelock-cli",
		Short:         "Combine lock policy and transaction tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	pf.StringVar(&opts.DataDir, "data-dir", defaults.DataDir, "data directory holding the policy book")
	pf.StringVar(&opts.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	pf.Uint64Var(&opts.MaxCycles, "max-cycles", defaults.MaxCycles, "cycle budget per transaction")
	pf.BoolVar(&opts.Parallel, "parallel", defaults.Parallel, "verify group members concurrently")

	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newCommitCommand(opts))
	cmd.AddCommand(newSighashCommand(opts))
	cmd.AddCommand(newWitnessCommand(opts))
	cmd.AddCommand(newSignCommand(opts))
	cmd.AddCommand(newPolicyCommand(opts))
	cmd.AddCommand(newScenarioCommand(opts))
	cmd.AddCommand(newProgramsCommand(opts))
	cmd.AddCommand(newRPCCommand(opts))
	return cmd, opts
}

// load builds the effective config: file first, then flags the user set.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg := node.DefaultConfig()
	if o.ConfigPath != "" {
		var err error
		cfg, err = node.LoadConfig(o.ConfigPath)
		if err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.DataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("max-cycles") {
		cfg.MaxCycles = o.MaxCycles
	}
	if flags.Changed("parallel") {
		cfg.Parallel = o.Parallel
	}
	if err := node.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log, err := node.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.log = log
	return nil
}

func (o *RootOptions) provider() crypto.CryptoProvider { return crypto.CKBCryptoProvider{} }

func (o *RootOptions) openBook() (*store.Book, error) {
	return store.Open(o.cfg.DataDir, o.provider())
}

// resolvePolicy loads ref as a policy JSON file when one exists at that
// path, and otherwise looks it up in the policy book by commitment or label.
func (o *RootOptions) resolvePolicy(ref string) (*consensus.Policy, error) {
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		return node.LoadPolicy(o.provider(), ref)
	}
	book, err := o.openBook()
	if err != nil {
		return nil, err
	}
	defer book.Close()
	c, ok, err := book.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("policy %q: no such file or book entry", ref)
	}
	p, _, found, err := book.GetPolicy(c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("policy %s not in book", c)
	}
	return p, nil
}
