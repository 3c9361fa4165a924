package consensus

import (
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// LockGroup is the set of inputs whose resolved cells share one lock script.
type LockGroup struct {
	Script  Script
	Context GroupContext
}

// GroupLockScripts groups inputs by lock script hash, ordered by the first
// input carrying each lock. Policy cache population follows this order.
func (v *Verifier) GroupLockScripts(view *TxView) ([]LockGroup, error) {
	if view == nil || view.Tx == nil {
		return nil, malformed("transaction view: missing transaction")
	}
	if len(view.ResolvedInputs) != len(view.Tx.Inputs) {
		return nil, malformed("transaction view: %d inputs, %d resolved cells", len(view.Tx.Inputs), len(view.ResolvedInputs))
	}
	var groups []LockGroup
	byHash := make(map[[32]byte]int)
	for i, cell := range view.ResolvedInputs {
		h := ScriptHash(v.provider, cell.Lock)
		gi, ok := byHash[h]
		if !ok {
			gi = len(groups)
			byHash[h] = gi
			groups = append(groups, LockGroup{Script: cell.Lock, Context: GroupContext{ScriptHash: h}})
		}
		groups[gi].Context.InputIndices = append(groups[gi].Context.InputIndices, i)
	}
	return groups, nil
}

// LockWitness returns the WitnessArgs lock field of the group's first input.
func LockWitness(tx *Transaction, group GroupContext) ([]byte, error) {
	if len(group.InputIndices) == 0 {
		return nil, malformed("lock witness: empty script group")
	}
	first := group.InputIndices[0]
	if first < 0 || first >= len(tx.Witnesses) {
		return nil, malformed("lock witness: witness %d missing", first)
	}
	wa, err := DecodeWitnessArgs(tx.Witnesses[first])
	if err != nil {
		return nil, err
	}
	if !wa.Lock.Present {
		return nil, malformed("lock witness: WitnessArgs.lock missing")
	}
	return wa.Lock.Data, nil
}

type GroupResult struct {
	ScriptHash [32]byte
	Inputs     []int
	Cycles     uint64
	Err        error
}

// VerifyTransaction runs every lock group of the transaction in order under
// one cycle budget. Groups whose lock isCombineLock reports are checked with
// the lock args as commitment; all others run through the authorizer table as
// top-level programs. It stops at the first failing group.
func (v *Verifier) VerifyTransaction(view *TxView, isCombineLock func(Script) bool) ([]GroupResult, uint64, error) {
	groups, err := v.GroupLockScripts(view)
	if err != nil {
		return nil, 0, err
	}
	meter := NewCycleMeter(v.maxCycles)
	results := make([]GroupResult, 0, len(groups))
	for gi, g := range groups {
		before := meter.Used()
		s := v.newSession(view, g.Context, meter)
		err := v.verifyLockGroup(s, g, isCombineLock)
		res := GroupResult{
			ScriptHash: g.Context.ScriptHash,
			Inputs:     g.Context.InputIndices,
			Cycles:     meter.Used() - before,
			Err:        err,
		}
		results = append(results, res)
		if err != nil {
			v.log.Warn("lock group failed",
				zap.Int("group", gi),
				zap.Bool("fatal", IsFatal(err)),
				zap.Error(err),
			)
			return results, meter.Used(), fmt.Errorf("lock group %d (%s): %w", gi, hex.EncodeToString(g.Context.ScriptHash[:]), err)
		}
	}
	v.log.Debug("transaction verified", zap.Int("groups", len(groups)), zap.Uint64("cycles", meter.Used()))
	return results, meter.Used(), nil
}

func (v *Verifier) verifyLockGroup(s *session, g LockGroup, isCombineLock func(Script) bool) error {
	if isCombineLock != nil && isCombineLock(g.Script) {
		commitment, err := ParseCommitment(g.Script.Args)
		if err != nil {
			return err
		}
		lock, err := LockWitness(s.view.Tx, g.Context)
		if err != nil {
			return err
		}
		return s.verifyCombineLock(commitment, lock)
	}
	// Plain locks read their own witness; a missing one is theirs to reject.
	lock, _ := LockWitness(s.view.Tx, g.Context)
	return s.dispatch(&ScriptContext{Script: g.Script, Witness: lock, s: s})
}
