package node

import (
	"fmt"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
	"go.uber.org/zap"
)

// Host plays the chain's code loader: it finds native programs among a
// transaction's cell deps and exposes them as an authorizer table.
type Host struct {
	provider    crypto.CryptoProvider
	table       *consensus.AuthorizerTable
	combineLock string
	combineRefs map[consensus.CodeRef]struct{}
	log         *zap.Logger
}

func NewHost(p crypto.CryptoProvider, combineLockProgram string, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		provider:    p,
		table:       consensus.NewAuthorizerTable(),
		combineLock: combineLockProgram,
		combineRefs: make(map[consensus.CodeRef]struct{}),
		log:         log,
	}
}

func (h *Host) Authorizers() *consensus.AuthorizerTable { return h.table }

// IsCombineLock reports whether s runs the configured combine-lock program.
func (h *Host) IsCombineLock(s consensus.Script) bool {
	_, ok := h.combineRefs[s.CodeRef()]
	return ok
}

// Load registers the code cells of m. A data cell is reachable by its data
// hash under Data and Data1, and by its type script hash under Type. Dep
// groups are expanded against the other cell deps of m.
func (h *Host) Load(m *MockTransaction) error {
	byOutPoint := make(map[consensus.OutPoint]int, len(m.CellDeps))
	for i, d := range m.CellDeps {
		byOutPoint[d.CellDep.OutPoint.outPoint()] = i
	}
	for i, d := range m.CellDeps {
		dt, err := parseDepType(d.CellDep.DepType)
		if err != nil {
			return fmt.Errorf("cell_deps[%d]: %w", i, err)
		}
		if dt == consensus.DEP_TYPE_CODE {
			if err := h.loadCell(d); err != nil {
				return fmt.Errorf("cell_deps[%d]: %w", i, err)
			}
			continue
		}
		members, err := consensus.DecodeOutPointVec(d.Data)
		if err != nil {
			return fmt.Errorf("cell_deps[%d]: dep group: %w", i, err)
		}
		for _, op := range members {
			j, ok := byOutPoint[op]
			if !ok {
				return fmt.Errorf("cell_deps[%d]: dep group member %x:%d not in mock", i, op.TxHash, op.Index)
			}
			if err := h.loadCell(m.CellDeps[j]); err != nil {
				return fmt.Errorf("cell_deps[%d]: %w", j, err)
			}
		}
	}
	h.log.Debug("host loaded", zap.Int("authorizers", h.table.Len()))
	return nil
}

func (h *Host) loadCell(d MockCellDep) error {
	name, ok := programFromData(d.Data)
	if !ok {
		return nil
	}
	a, _ := LookupProgram(name)
	dataHash := h.provider.ContentHash(d.Data)
	refs := []consensus.CodeRef{
		{CodeHash: dataHash, HashType: consensus.HASH_TYPE_DATA},
		{CodeHash: dataHash, HashType: consensus.HASH_TYPE_DATA1},
	}
	if d.Output.Type != nil {
		typ, err := d.Output.Type.Script(h.provider)
		if err != nil {
			return fmt.Errorf("type: %w", err)
		}
		refs = append(refs, consensus.CodeRef{CodeHash: consensus.ScriptHash(h.provider, typ), HashType: consensus.HASH_TYPE_TYPE})
	}
	for _, ref := range refs {
		if err := h.table.Register(ref, a); err != nil {
			return err
		}
		if name == h.combineLock {
			h.combineRefs[ref] = struct{}{}
		}
	}
	h.log.Debug("program loaded", zap.String("program", name), zap.Int("refs", len(refs)))
	return nil
}
