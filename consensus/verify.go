package consensus

import (
	"fmt"
	"sync"

	"combinelock.dev/node/crypto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Verifier checks combine-lock unlocks. One Verifier serves one transaction:
// its ValidatedPolicyCache carries proven policies from one lock group to the
// next and must not outlive the transaction.
type Verifier struct {
	provider    crypto.CryptoProvider
	authorizers *AuthorizerTable
	cache       *ValidatedPolicyCache
	log         *zap.Logger
	maxCycles   uint64
	workers     int
}

type Option func(*Verifier)

func WithProvider(p crypto.CryptoProvider) Option {
	return func(v *Verifier) { v.provider = p }
}

func WithAuthorizers(t *AuthorizerTable) Option {
	return func(v *Verifier) { v.authorizers = t }
}

// WithCache shares a cache between verifiers of the same transaction.
func WithCache(c *ValidatedPolicyCache) Option {
	return func(v *Verifier) { v.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

func WithMaxCycles(n uint64) Option {
	return func(v *Verifier) { v.maxCycles = n }
}

// WithParallel runs the members of a selected group on up to workers
// goroutines. workers <= 1 keeps the sequential, short-circuiting mode.
func WithParallel(workers int) Option {
	return func(v *Verifier) { v.workers = workers }
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		provider:  crypto.CKBCryptoProvider{},
		cache:     NewValidatedPolicyCache(),
		log:       zap.NewNop(),
		maxCycles: MAX_CYCLES_DEFAULT,
	}
	for _, o := range opts {
		o(v)
	}
	if v.authorizers == nil {
		v.authorizers = NewAuthorizerTable()
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	return v
}

func (v *Verifier) Cache() *ValidatedPolicyCache { return v.cache }

// Verify checks one combine-lock group. witness is the group's unlock
// witness, i.e. the WitnessArgs lock field of its first input.
func (v *Verifier) Verify(commitment Commitment, witness []byte, view *TxView, group GroupContext) error {
	_, err := v.VerifyWithCycles(commitment, witness, view, group)
	return err
}

// VerifyWithCycles is Verify that also reports the cycles consumed.
func (v *Verifier) VerifyWithCycles(commitment Commitment, witness []byte, view *TxView, group GroupContext) (uint64, error) {
	s := v.newSession(view, group, NewCycleMeter(v.maxCycles))
	err := s.verifyCombineLock(commitment, witness)
	return s.meter.Used(), err
}

// session is the verification environment of one lock group.
type session struct {
	v     *Verifier
	view  *TxView
	group GroupContext
	meter *CycleMeter
	sig   *sigMemo
	log   *zap.Logger
	depth int
}

type sigMemo struct {
	once   sync.Once
	msg    [32]byte
	hashed int
	err    error
}

func (v *Verifier) newSession(view *TxView, group GroupContext, meter *CycleMeter) *session {
	return &session{
		v:     v,
		view:  view,
		group: group,
		meter: meter,
		sig:   &sigMemo{},
		log:   v.log.With(zap.Binary("group", group.ScriptHash[:])),
	}
}

// fork gives a parallel child its own meter with the budget left at fan-out.
func (s *session) fork() *session {
	c := *s
	c.meter = NewCycleMeter(s.meter.Remaining())
	return &c
}

func (s *session) nested() *session {
	c := *s
	c.depth++
	c.log = s.log.With(zap.Int("depth", c.depth))
	return &c
}

func (s *session) signingMessage() ([32]byte, error) {
	m := s.sig
	computed := false
	m.once.Do(func() {
		computed = true
		if s.view == nil || s.view.Tx == nil {
			m.err = malformed("signing message: no transaction")
			return
		}
		m.msg, m.hashed, m.err = sighashAll(s.v.provider, s.view.Tx, s.group.InputIndices)
	})
	if computed && m.err == nil {
		if err := s.meter.Charge(hashCycles(m.hashed)); err != nil {
			return [32]byte{}, err
		}
	}
	return m.msg, m.err
}

type runState uint8

const (
	stateStart runState = iota
	stateDecodeWitness
	stateProveOrFetchPolicy
	stateSelectPath
	stateVerifyGroup
	stateAccept
	stateReject
)

func (st runState) String() string {
	switch st {
	case stateStart:
		return "Start"
	case stateDecodeWitness:
		return "DecodeWitness"
	case stateProveOrFetchPolicy:
		return "ProveOrFetchPolicy"
	case stateSelectPath:
		return "SelectPath"
	case stateVerifyGroup:
		return "VerifyGroup"
	case stateAccept:
		return "Accept"
	case stateReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// lockRun is one pass of the combine-lock state machine. States only move
// forward and end in Accept or Reject.
type lockRun struct {
	s          *session
	commitment Commitment
	state      runState
	log        *zap.Logger
}

func (s *session) verifyCombineLock(commitment Commitment, witness []byte) error {
	r := &lockRun{
		s:          s,
		commitment: commitment,
		state:      stateStart,
		log:        s.log.With(zap.Stringer("commitment", commitment)),
	}
	if err := r.exec(witness); err != nil {
		return r.reject(err)
	}
	r.transition(stateAccept)
	return nil
}

func (r *lockRun) transition(to runState) {
	r.log.Debug("combine lock transition", zap.Stringer("from", r.state), zap.Stringer("to", to))
	r.state = to
}

func (r *lockRun) reject(err error) error {
	r.transition(stateReject)
	code, _ := CodeOf(err)
	r.log.Warn("combine lock rejected",
		zap.String("code", string(code)),
		zap.Int8("exit", ExitCode(err)),
		zap.Error(err),
	)
	return err
}

func (r *lockRun) exec(witness []byte) error {
	s := r.s
	if err := s.meter.Charge(CYCLES_RUN_BASE); err != nil {
		return err
	}

	r.transition(stateDecodeWitness)
	if err := s.meter.Charge(decodeCycles(len(witness))); err != nil {
		return err
	}
	uw, err := DecodeUnlockWitness(witness)
	if err != nil {
		return err
	}

	r.transition(stateProveOrFetchPolicy)
	policy, err := r.proveOrFetch(uw)
	if err != nil {
		return err
	}

	r.transition(stateSelectPath)
	scripts, err := SelectPath(policy, uw.PathIndex)
	if err != nil {
		return err
	}
	if len(uw.InnerProofs) != len(scripts) {
		return lockerr(LOCK_ERR_PROOF_ARITY_MISMATCH, fmt.Sprintf("group %d has %d members, witness carries %d proofs", uw.PathIndex, len(scripts), len(uw.InnerProofs)))
	}

	r.transition(stateVerifyGroup)
	if s.v.workers > 1 && len(scripts) > 1 && s.pureGroup(scripts) {
		return r.verifyGroupParallel(scripts, uw.InnerProofs)
	}
	return r.verifyGroup(scripts, uw.InnerProofs)
}

// proveOrFetch binds the policy slot to the commitment before parsing it, so
// any change to the carried bytes surfaces as a commitment mismatch.
func (r *lockRun) proveOrFetch(uw *UnlockWitness) (*Policy, error) {
	s := r.s
	if uw.PolicyBytes == nil {
		p, ok := s.v.cache.Lookup(r.commitment)
		if !ok {
			return nil, lockerr(LOCK_ERR_MISSING_POLICY_PROOF, "no policy in witness and none proven for "+r.commitment.String())
		}
		r.log.Debug("policy served from cache")
		return p, nil
	}
	if err := s.meter.Charge(hashCycles(len(uw.PolicyBytes))); err != nil {
		return nil, err
	}
	got := Commitment(s.v.provider.ContentHash(uw.PolicyBytes))
	if got != r.commitment {
		return nil, lockerr(LOCK_ERR_COMMITMENT_MISMATCH, "policy hashes to "+got.String())
	}
	policy, err := DecodePolicy(uw.PolicyBytes)
	if err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if s.v.cache.Insert(r.commitment, policy) {
		r.log.Debug("policy proven and cached")
	}
	return policy, nil
}

func (r *lockRun) verifyGroup(scripts []Script, proofs [][]byte) error {
	for i, script := range scripts {
		sc := &ScriptContext{Script: script, Witness: proofs[i], Index: i, s: r.s}
		if err := r.s.dispatch(sc); err != nil {
			return err
		}
	}
	return nil
}

// pureGroup reports whether every member resolves to the builtin signature
// check. Host programs may nest combine locks and read or fill the policy
// cache, so a group holding any of them is walked in order.
func (s *session) pureGroup(scripts []Script) bool {
	for _, script := range scripts {
		a, ok := s.v.authorizers.Resolve(script.CodeRef())
		if !ok {
			return false
		}
		if _, builtin := a.(BuiltinSignatureCheck); !builtin {
			return false
		}
	}
	return true
}

// verifyGroupParallel runs every member to completion on its own meter, then
// charges their cycles and reports failures in member order. Members are
// builtin signature checks only, so the outcome is the one the sequential
// walk would produce.
func (r *lockRun) verifyGroupParallel(scripts []Script, proofs [][]byte) error {
	s := r.s
	// The signing message is shared; compute it before fan-out so it is charged once.
	if _, err := s.signingMessage(); err != nil && IsFatal(err) {
		return err
	}

	forks := make([]*session, len(scripts))
	errs := make([]error, len(scripts))
	var g errgroup.Group
	g.SetLimit(s.v.workers)
	for i, script := range scripts {
		fork := s.fork()
		forks[i] = fork
		sc := &ScriptContext{Script: script, Witness: proofs[i], Index: i, s: fork}
		g.Go(func() error {
			errs[i] = fork.dispatch(sc)
			return nil
		})
	}
	_ = g.Wait()

	for i := range scripts {
		if err := s.meter.Charge(forks[i].meter.Used()); err != nil {
			return err
		}
		if errs[i] != nil {
			return errs[i]
		}
	}
	return nil
}
