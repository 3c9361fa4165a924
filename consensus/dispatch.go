package consensus

import (
	"fmt"

	"combinelock.dev/node/crypto"
	"go.uber.org/zap"
)

// ChildAuthorizer validates one member of a selected group against its inner proof.
type ChildAuthorizer interface {
	Authorize(sc *ScriptContext) error
}

// Program is externally loadable code run by the host. A non-zero exit code
// rejects; a returned error is reserved for failures the program cannot
// express as an exit code.
type Program interface {
	Run(sc *ScriptContext) (int8, error)
}

type ProgramFunc func(sc *ScriptContext) (int8, error)

func (f ProgramFunc) Run(sc *ScriptContext) (int8, error) { return f(sc) }

// ExternalInvocation binds a host program as a child authorizer.
type ExternalInvocation struct {
	Name    string
	Program Program
}

func (e ExternalInvocation) Authorize(sc *ScriptContext) error {
	if err := sc.Charge(CYCLES_EXEC_BASE); err != nil {
		return err
	}
	exit, err := e.Program.Run(sc)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		return childFailed(ExitCode(err), fmt.Sprintf("%s: %v", e.Name, err))
	}
	if exit != EXIT_OK {
		return childFailed(exit, e.Name)
	}
	return nil
}

// AuthorizerTable resolves (code_hash, hash_type) to an authorizer. It is
// filled by the host loader before verification and only read afterwards.
type AuthorizerTable struct {
	entries map[CodeRef]ChildAuthorizer
}

func NewAuthorizerTable() *AuthorizerTable {
	return &AuthorizerTable{entries: make(map[CodeRef]ChildAuthorizer)}
}

func (t *AuthorizerTable) Register(ref CodeRef, a ChildAuthorizer) error {
	if a == nil {
		return fmt.Errorf("authorizer for %s is nil", ref)
	}
	if !ref.HashType.Valid() {
		return fmt.Errorf("authorizer for %s: invalid hash_type", ref)
	}
	t.entries[ref] = a
	return nil
}

func (t *AuthorizerTable) Resolve(ref CodeRef) (ChildAuthorizer, bool) {
	if t == nil {
		return nil, false
	}
	a, ok := t.entries[ref]
	return a, ok
}

func (t *AuthorizerTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// ScriptContext is what a child authorizer or host program sees of the
// running verification.
type ScriptContext struct {
	// Script is the child script being run; its Args carry the authorization parameters.
	Script Script
	// Witness is the inner proof for this child, or the group's lock witness
	// when the program runs as a top-level lock.
	Witness []byte
	// Index is the position inside the selected group.
	Index int

	s *session
}

func (sc *ScriptContext) Args() []byte { return sc.Script.Args }

func (sc *ScriptContext) Charge(cycles uint64) error { return sc.s.meter.Charge(cycles) }

// SigningMessage returns the group's sighash-all message, computed once per
// group and shared with nested verifications.
func (sc *ScriptContext) SigningMessage() ([32]byte, error) { return sc.s.signingMessage() }

func (sc *ScriptContext) Provider() crypto.CryptoProvider { return sc.s.v.provider }

func (sc *ScriptContext) Transaction() *TxView { return sc.s.view }

func (sc *ScriptContext) Group() GroupContext { return sc.s.group }

func (sc *ScriptContext) Logger() *zap.Logger { return sc.s.log }

// VerifyCombineLock runs a nested combine-lock check with lock args and an
// encoded unlock witness, against the same transaction, cache and cycle budget.
func (sc *ScriptContext) VerifyCombineLock(args []byte, lock []byte) error {
	c, err := ParseCommitment(args)
	if err != nil {
		return err
	}
	return sc.s.nested().verifyCombineLock(c, lock)
}

func (s *session) dispatch(sc *ScriptContext) error {
	ref := sc.Script.CodeRef()
	a, ok := s.v.authorizers.Resolve(ref)
	if !ok {
		return childFailed(EXIT_ITEM_MISSING, "unresolved child script "+ref.String())
	}
	s.log.Debug("dispatch child", zap.Int("index", sc.Index), zap.Stringer("code", ref))
	return a.Authorize(sc)
}
