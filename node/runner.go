package node

import (
	"fmt"
	"runtime"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"go.uber.org/zap"
)

// Report is the outcome of verifying a mock transaction.
type Report struct {
	Cycles uint64
	Groups []consensus.GroupResult
}

// VerifyMockTransaction loads the programs of m and verifies every lock
// group of its transaction.
func VerifyMockTransaction(cfg Config, log *zap.Logger, m *MockTransaction) (*Report, error) {
	p := crypto.CKBCryptoProvider{}
	view, err := m.View(p)
	if err != nil {
		return nil, err
	}
	host := NewHost(p, cfg.CombineLockProgram, log)
	if err := host.Load(m); err != nil {
		return nil, fmt.Errorf("load programs: %w", err)
	}
	v := consensus.NewVerifier(verifierOptions(cfg, log, host)...)
	groups, cycles, err := v.VerifyTransaction(view, host.IsCombineLock)
	return &Report{Cycles: cycles, Groups: groups}, err
}

func verifierOptions(cfg Config, log *zap.Logger, host *Host) []consensus.Option {
	opts := []consensus.Option{
		consensus.WithAuthorizers(host.Authorizers()),
		consensus.WithLogger(log),
		consensus.WithMaxCycles(cfg.MaxCycles),
	}
	if cfg.Parallel {
		opts = append(opts, consensus.WithParallel(runtime.GOMAXPROCS(0)))
	}
	return opts
}
