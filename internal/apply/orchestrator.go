// Package apply drives transactions through the apply state machine.
//
// A transaction moves Fetched -> Applying -> Applied -> Committed or
// RolledBack. Submit takes it to Applied (or straight to RolledBack if the
// application's apply fails); Commit, Rollback and Resolve finish it once
// consensus has decided. The orchestrator holds a lease on every account the
// transaction touches for the whole of that window.
package apply

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iotexproject/go-fsm"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/config"
	"github.com/roach88/shardstate/internal/fault"
	"github.com/roach88/shardstate/internal/ir"
	"github.com/roach88/shardstate/internal/lease"
	"github.com/roach88/shardstate/internal/ledger"
	"github.com/roach88/shardstate/internal/receipt"
	"github.com/roach88/shardstate/internal/store"
	"github.com/roach88/shardstate/internal/summary"
)

// Status is a transaction's position in the apply state machine.
type Status string

const (
	StatusFetched    Status = "fetched"
	StatusApplying   Status = "applying"
	StatusApplied    Status = "applied"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

const (
	sFetched    = fsm.State(StatusFetched)
	sApplying   = fsm.State(StatusApplying)
	sApplied    = fsm.State(StatusApplied)
	sCommitted  = fsm.State(StatusCommitted)
	sRolledBack = fsm.State(StatusRolledBack)

	eApply  fsm.EventType = "apply"
	eInvoke fsm.EventType = "invoke"
	ePass   fsm.EventType = "pass"
	eFail   fsm.EventType = "fail"
)

var _outcomeMtc = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shardstate_apply_outcomes_total",
		Help: "Transactions by apply outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(_outcomeMtc)
}

// Outcome is what a caller learns about a transaction. Response is set for
// Applied and Committed transactions; Reason explains a rollback.
type Outcome struct {
	TxID     string            `json:"tx_id"`
	Status   Status            `json:"status"`
	Response *ir.ApplyResponse `json:"response,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// Result pairs an Outcome with the error Submit returned for it.
type Result struct {
	Outcome Outcome
	Err     error
}

// Voter decides the consensus verdict for an applied transaction in SubmitAll.
type Voter func(ctx context.Context, out Outcome) ir.Verdict

type txEvent struct {
	typ fsm.EventType
	ctx context.Context
}

func (e *txEvent) Type() fsm.EventType { return e.typ }

type txRecord struct {
	id     string
	tx     ir.Tx
	keys   ir.TransactionKeys
	lease  *lease.Lease
	states map[string]*ir.WrappedResponse

	mu      sync.Mutex // serializes finalizers
	machine fsm.FSM
	status  Status
	resp    *ir.ApplyResponse
	reason  string
	failure error
	done    bool
	ignored map[fault.Knob]bool // ignore knobs already consulted
}

// Orchestrator owns every in-flight transaction. Safe for concurrent use.
type Orchestrator struct {
	app      app.App
	store    *store.Store
	ledger   *ledger.Ledger
	leases   *lease.Manager
	receipts *receipt.Dispatcher
	summary  *summary.Summary
	keys     *KeyDeriver
	faults   fault.Decider
	debug    config.Debug
	logger   *zap.Logger

	workers      int
	leaseTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]*txRecord
	finished map[string]Outcome
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithFaults sets the fault-injection decider. Default: fault.Never.
func WithFaults(d fault.Decider) Option {
	return func(o *Orchestrator) {
		o.faults = d
	}
}

// WithConfig applies the debug knobs and apply tuning from cfg.
func WithConfig(cfg config.Config) Option {
	return func(o *Orchestrator) {
		o.debug = cfg.Debug
		if cfg.Apply.Workers > 0 {
			o.workers = cfg.Apply.Workers
		}
		o.leaseTimeout = cfg.Apply.LeaseTimeout
	}
}

// WithDebug sets only the debug knobs.
func WithDebug(d config.Debug) Option {
	return func(o *Orchestrator) {
		o.debug = d
	}
}

// WithReceiptDispatcher replaces the dispatcher built from the app.
func WithReceiptDispatcher(d *receipt.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.receipts = d
	}
}

// WithSummary folds commits into s instead of a fresh summary.
func WithSummary(s *summary.Summary) Option {
	return func(o *Orchestrator) {
		o.summary = s
	}
}

// New creates an orchestrator. Ledger writes go through l, which must wrap s.
func New(a app.App, s *store.Store, l *ledger.Ledger, leases *lease.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		app:      a,
		store:    s,
		ledger:   l,
		leases:   leases,
		keys:     NewKeyDeriver(a),
		faults:   fault.Never{},
		logger:   zap.NewNop(),
		workers:  1,
		pending:  make(map[string]*txRecord),
		finished: make(map[string]Outcome),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.receipts == nil {
		o.receipts = receipt.New(a, receipt.WithLogger(o.logger))
	}
	if o.summary == nil {
		o.summary = summary.New(a)
	}
	return o
}

// Submit validates, derives keys, leases, fetches and applies tx.
//
// On success the outcome is Applied, or Committed when debugNoTxVoting is
// set. If the apply hook fails the outcome is RolledBack and the error is an
// *ApplyFailure. Validation, key derivation, blocked accounts and lease
// timeouts return an error with no outcome; nothing was applied.
func (o *Orchestrator) Submit(ctx context.Context, tx ir.Tx) (Outcome, error) {
	if tx.IsZero() {
		return Outcome{}, &ValidationError{Reason: "empty transaction"}
	}
	if res := o.app.Validate(tx); !res.Success {
		_outcomeMtc.WithLabelValues("rejected").Inc()
		return Outcome{}, &ValidationError{Reason: res.Reason}
	}

	cracked, err := o.keys.Derive(tx)
	if err != nil {
		_outcomeMtc.WithLabelValues("rejected").Inc()
		return Outcome{}, err
	}
	id := cracked.ID

	for _, acct := range cracked.Keys.AllKeys {
		if reason, blocked := o.ledger.Blocked(acct); blocked {
			_outcomeMtc.WithLabelValues("rejected").Inc()
			return Outcome{}, &ledger.ChainContinuityError{AccountID: acct, TxID: id, Reason: "account blocked: " + reason}
		}
	}

	if o.canDrop(tx) && o.faults.Fire(fault.LoseTx, o.debug.LoseTxChance) {
		_outcomeMtc.WithLabelValues("dropped").Inc()
		o.logger.Warn("transaction dropped by fault injection", zap.String("tx_id", id))
		return Outcome{}, fmt.Errorf("submit %s: %w", id, ErrTxDropped)
	}

	r := &txRecord{id: id, tx: tx, keys: cracked.Keys, status: StatusFetched}
	if err := o.reserve(r); err != nil {
		return Outcome{}, err
	}

	r.lease, err = o.leases.AcquireWithin(ctx, r.keys.AllKeys, o.leaseTimeout)
	if err != nil {
		o.unreserve(id)
		return Outcome{}, fmt.Errorf("submit %s: %w", id, err)
	}

	if err := o.fetch(ctx, r); err != nil {
		r.lease.Release()
		o.unreserve(id)
		return Outcome{}, fmt.Errorf("submit %s: %w", id, err)
	}

	r.machine, err = o.newMachine(r)
	if err != nil {
		r.lease.Release()
		o.unreserve(id)
		return Outcome{}, fmt.Errorf("submit %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, et := range []fsm.EventType{eApply, eInvoke} {
		if err := r.machine.Handle(&txEvent{typ: et, ctx: ctx}); err != nil {
			r.lease.Release()
			o.unreserve(id)
			return Outcome{}, fmt.Errorf("submit %s: %w", id, err)
		}
		o.setStatus(r, Status(r.machine.CurrentState()))
	}

	if r.status == StatusRolledBack {
		return o.settle(r)
	}

	o.logger.Debug("transaction applied",
		zap.String("tx_id", id),
		zap.Strings("accounts", r.keys.AllKeys),
		zap.Int("entries", len(r.resp.StateTableResults)))

	if o.debug.DebugNoTxVoting {
		return o.finalizeLocked(ctx, r, ePass, "")
	}
	_outcomeMtc.WithLabelValues("applied").Inc()
	return Outcome{TxID: id, Status: StatusApplied, Response: r.resp}, nil
}

// Commit finishes an Applied transaction with a pass verdict: the ledger
// records its entries, the store takes its account writes, and the pass
// receipt is dispatched. A chain discontinuity rolls it back instead and is
// returned as a *ledger.ChainContinuityError.
//
// The first receipt for a transaction may be dropped by ignoreReceipt fault
// injection, returning ErrReceiptIgnored with the transaction still Applied.
func (o *Orchestrator) Commit(ctx context.Context, txID string) (Outcome, error) {
	if out, ok := o.ignoreInitial(txID, fault.IgnoreReceipt, o.debug.IgnoreReceiptChance); ok {
		return out, fmt.Errorf("commit %s: %w", txID, ErrReceiptIgnored)
	}
	return o.finalize(ctx, txID, ePass, "")
}

// Rollback finishes an Applied transaction with a fail verdict. Wrappers are
// restored to their pre-apply snapshot, the store is left alone and the fail
// receipt is dispatched. Rolling back twice returns the first outcome.
func (o *Orchestrator) Rollback(ctx context.Context, txID, reason string) (Outcome, error) {
	if out, ok := o.ignoreInitial(txID, fault.IgnoreReceipt, o.debug.IgnoreReceiptChance); ok {
		return out, fmt.Errorf("rollback %s: %w", txID, ErrReceiptIgnored)
	}
	if reason == "" {
		reason = "rolled back"
	}
	return o.finalize(ctx, txID, eFail, reason)
}

// Resolve acts on a consensus verdict, after ignoreVote and voteFlip fault
// injection. An ignored vote returns ErrVoteIgnored and leaves the
// transaction Applied.
func (o *Orchestrator) Resolve(ctx context.Context, txID string, verdict ir.Verdict) (Outcome, error) {
	if out, ok := o.ignoreInitial(txID, fault.IgnoreVote, o.debug.IgnoreVoteChance); ok {
		return out, fmt.Errorf("resolve %s: %w", txID, ErrVoteIgnored)
	}
	if o.faults.Fire(fault.VoteFlip, o.debug.VoteFlipChance) {
		flipped := ir.VerdictPass
		if verdict == ir.VerdictPass {
			flipped = ir.VerdictFail
		}
		o.logger.Warn("verdict flipped by fault injection",
			zap.String("tx_id", txID),
			zap.String("from", string(verdict)),
			zap.String("to", string(flipped)))
		verdict = flipped
	}

	switch verdict {
	case ir.VerdictPass:
		return o.finalize(ctx, txID, ePass, "")
	case ir.VerdictFail:
		return o.finalize(ctx, txID, eFail, "consensus verdict: fail")
	default:
		return Outcome{}, fmt.Errorf("resolve %s: unknown verdict %q", txID, verdict)
	}
}

// SubmitAll submits txs on a bounded worker pool and resolves every applied
// transaction with vote. A nil vote passes everything. Results are in input
// order; one transaction's failure never stops the others.
func (o *Orchestrator) SubmitAll(ctx context.Context, txs []ir.Tx, vote Voter) []Result {
	results := make([]Result, len(txs))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, tx := range txs {
		g.Go(func() error {
			out, err := o.Submit(ctx, tx)
			if err == nil && out.Status == StatusApplied {
				verdict := ir.VerdictPass
				if vote != nil {
					verdict = vote(ctx, out)
				}
				out, err = o.Resolve(ctx, out.TxID, verdict)
				if errors.Is(err, ErrVoteIgnored) {
					out, err = o.Resolve(ctx, out.TxID, verdict)
				}
			}
			results[i] = Result{Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// State reports where txID is in the state machine.
func (o *Orchestrator) State(txID string) (Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.pending[txID]; ok {
		return r.status, true
	}
	if out, ok := o.finished[txID]; ok {
		return out.Status, true
	}
	return "", false
}

// Pending lists the ids of Applied transactions awaiting a verdict, sorted.
func (o *Orchestrator) Pending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.pending))
	for id, r := range o.pending {
		if r.status == StatusApplied {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Summary copies the running data and transaction summaries.
func (o *Orchestrator) Summary() summary.Snapshot {
	return o.summary.Snapshot()
}

// ignoreInitial consults knob the first time it is reached for an Applied
// transaction. When it fires, the delivery is dropped and the current
// outcome is returned with ok set.
func (o *Orchestrator) ignoreInitial(txID string, knob fault.Knob, chance float64) (Outcome, bool) {
	o.mu.Lock()
	r, ok := o.pending[txID]
	o.mu.Unlock()
	if !ok {
		return Outcome{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.status != StatusApplied || r.ignored[knob] {
		return Outcome{}, false
	}
	if r.ignored == nil {
		r.ignored = make(map[fault.Knob]bool, 2)
	}
	r.ignored[knob] = true
	if !o.faults.Fire(knob, chance) {
		return Outcome{}, false
	}
	o.logger.Warn("delivery ignored by fault injection",
		zap.String("tx_id", txID),
		zap.String("knob", string(knob)))
	return Outcome{TxID: r.id, Status: r.status, Response: r.resp}, true
}

func (o *Orchestrator) canDrop(tx ir.Tx) bool {
	d, ok := o.app.(app.DebugDropper)
	return ok && d.CanDebugDropTx(tx)
}

func (o *Orchestrator) reserve(r *txRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pending[r.id]; ok {
		return fmt.Errorf("submit %s: %w", r.id, ErrDuplicateTx)
	}
	if _, ok := o.finished[r.id]; ok {
		return fmt.Errorf("submit %s: %w", r.id, ErrDuplicateTx)
	}
	o.pending[r.id] = r
	return nil
}

func (o *Orchestrator) unreserve(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pending, id)
}

func (o *Orchestrator) setStatus(r *txRecord, s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r.status = s
}

// fetch builds the wrapped state of every key. The previous-state fields
// always come from the store, whatever the application's hook returns.
func (o *Orchestrator) fetch(ctx context.Context, r *txRecord) error {
	r.states = make(map[string]*ir.WrappedResponse, len(r.keys.AllKeys))
	for _, id := range r.keys.AllKeys {
		stored, err := o.store.GetRelevantData(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", id, err)
		}
		w, err := o.app.GetRelevantData(id, r.tx, stored)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", id, err)
		}
		if w == nil {
			w = stored
		}
		if w.AccountID != id {
			return &KeyDerivationError{TxID: r.id, Reason: fmt.Sprintf("relevant data for %s names account %q", id, w.AccountID)}
		}
		w.PrevStateID = stored.PrevStateID
		w.PrevDataCopy = stored.PrevDataCopy
		r.states[id] = w
	}
	return nil
}

func (o *Orchestrator) newMachine(r *txRecord) (fsm.FSM, error) {
	return fsm.NewBuilder().
		AddInitialState(sFetched).
		AddStates(sApplying, sApplied, sCommitted, sRolledBack).
		AddTransition(sFetched, eApply, o.enterApplying(r), []fsm.State{sApplying}).
		AddTransition(sApplying, eInvoke, o.invoke(r), []fsm.State{sApplied, sRolledBack}).
		AddTransition(sApplied, ePass, o.commit(r), []fsm.State{sCommitted, sRolledBack}).
		AddTransition(sApplied, eFail, o.rollback(r), []fsm.State{sRolledBack}).
		Build()
}

func (o *Orchestrator) enterApplying(r *txRecord) fsm.Transition {
	return func(fsm.Event) (fsm.State, error) {
		for _, id := range r.keys.AllKeys {
			if _, ok := r.states[id]; !ok {
				return "", fmt.Errorf("no wrapped state for %s", id)
			}
		}
		return sApplying, nil
	}
}

func (o *Orchestrator) invoke(r *txRecord) fsm.Transition {
	return func(fsm.Event) (fsm.State, error) {
		if o.faults.Fire(fault.FailNoRepairTx, o.debug.FailNoRepairTxChance) {
			return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureInjected, Message: "failNoRepairTx"})
		}

		resp, err := o.app.Apply(r.tx, r.states)
		if err != nil {
			return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureHook, Err: err})
		}
		if resp == nil {
			return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureInconsistent, Message: "nil apply response"})
		}
		if resp.TxID != r.id {
			return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureInconsistent,
				Message: fmt.Sprintf("response names tx %q", resp.TxID)})
		}
		if err := o.checkTouched(r, resp); err != nil {
			return o.fail(r, err)
		}

		entries := make([]ir.StateTableObject, 0, len(r.keys.AllKeys))
		writes := make([]ir.AccountWrite, 0, len(r.keys.AllKeys))
		data := make([]ir.WrappedResponse, 0, len(r.keys.AllKeys))
		ts := r.keys.Timestamp
		for _, id := range r.keys.AllKeys {
			w := r.states[id]
			if w.LocalCache == nil && !w.AccountCreated {
				continue
			}

			update := o.app.UpdateAccountFull
			if w.IsPartial {
				update = o.app.UpdateAccountPartial
			}
			if err := update(w, w.LocalCache, resp); err != nil {
				return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureUpdate, AccountID: id, Err: err})
			}

			after, err := o.app.CalculateAccountHash(w.Data)
			if err != nil {
				return o.fail(r, &ApplyFailure{TxID: r.id, Code: FailureUpdate, AccountID: id, Message: "hash", Err: err})
			}
			w.StateID = after
			w.Timestamp = ts

			entries = append(entries, ir.StateTableObject{
				AccountID:   id,
				TxID:        r.id,
				TxTimestamp: ts,
				StateBefore: w.PrevStateID,
				StateAfter:  after,
			})
			writes = append(writes, ir.AccountWrite{AccountID: id, Data: w.Data.Clone(), Hash: after, Timestamp: ts})
			data = append(data, *w)
		}

		resp.TxTimestamp = ts
		resp.StateTableResults = entries
		resp.AccountData = data
		resp.AccountWrites = writes
		r.resp = resp
		return sApplied, nil
	}
}

// checkTouched refuses responses that reach accounts outside allKeys or
// drop the wrapped state of an account inside it.
func (o *Orchestrator) checkTouched(r *txRecord, resp *ir.ApplyResponse) error {
	allowed := make(map[string]bool, len(r.keys.AllKeys))
	for _, id := range r.keys.AllKeys {
		allowed[id] = true
		if r.states[id] == nil {
			return &ApplyFailure{TxID: r.id, Code: FailureInconsistent, AccountID: id,
				Message: "apply removed wrapped state for " + id}
		}
	}
	for id := range r.states {
		if !allowed[id] {
			return &ApplyFailure{TxID: r.id, Code: FailureInconsistent, AccountID: id,
				Err: &KeyDerivationError{TxID: r.id, Reason: "apply added account " + id + " outside allKeys"}}
		}
	}
	for _, w := range resp.AccountData {
		if !allowed[w.AccountID] {
			return &ApplyFailure{TxID: r.id, Code: FailureInconsistent, AccountID: w.AccountID,
				Err: &KeyDerivationError{TxID: r.id, Reason: "apply response references account " + w.AccountID + " outside allKeys"}}
		}
	}
	return nil
}

func (o *Orchestrator) fail(r *txRecord, err error) (fsm.State, error) {
	r.failure = err
	r.reason = err.Error()
	r.resp = nil
	return sRolledBack, nil
}

func (o *Orchestrator) commit(r *txRecord) fsm.Transition {
	return func(evt fsm.Event) (fsm.State, error) {
		if o.faults.Fire(fault.FailReceipt, o.debug.FailReceiptChance) {
			r.reason = "failReceipt injected"
			return sRolledBack, nil
		}
		ctx := evt.(*txEvent).ctx
		err := o.ledger.Append(ctx, r.resp.StateTableResults, r.resp.AccountWrites)
		if ledger.IsChainContinuityError(err) {
			r.failure = err
			r.reason = err.Error()
			return sRolledBack, nil
		}
		if err != nil {
			return "", err
		}
		for _, w := range r.resp.AccountData {
			o.summary.UpdateAccount(w.PrevDataCopy, w.Data)
		}
		o.summary.UpdateTx(r.tx, r.states)
		return sCommitted, nil
	}
}

func (o *Orchestrator) rollback(r *txRecord) fsm.Transition {
	return func(fsm.Event) (fsm.State, error) {
		return sRolledBack, nil
	}
}

func (o *Orchestrator) finalize(ctx context.Context, txID string, et fsm.EventType, reason string) (Outcome, error) {
	o.mu.Lock()
	r, ok := o.pending[txID]
	o.mu.Unlock()
	if !ok {
		return o.finishedOutcome(txID, et)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return o.finishedOutcome(txID, et)
	}
	return o.finalizeLocked(ctx, r, et, reason)
}

// finalizeLocked runs with r.mu held.
func (o *Orchestrator) finalizeLocked(ctx context.Context, r *txRecord, et fsm.EventType, reason string) (Outcome, error) {
	if r.status != StatusApplied {
		return Outcome{TxID: r.id, Status: r.status}, fmt.Errorf("finalize %s in state %s: %w", r.id, r.status, ErrNotApplied)
	}
	if reason != "" {
		r.reason = reason
	}
	if err := r.machine.Handle(&txEvent{typ: et, ctx: ctx}); err != nil {
		return Outcome{TxID: r.id, Status: r.status, Response: r.resp}, fmt.Errorf("finalize %s: %w", r.id, err)
	}
	o.setStatus(r, Status(r.machine.CurrentState()))
	return o.settle(r)
}

func (o *Orchestrator) finishedOutcome(txID string, et fsm.EventType) (Outcome, error) {
	o.mu.Lock()
	out, ok := o.finished[txID]
	o.mu.Unlock()
	if !ok {
		return Outcome{}, fmt.Errorf("%s: %w", txID, ErrUnknownTx)
	}
	if (et == ePass && out.Status == StatusCommitted) || (et == eFail && out.Status == StatusRolledBack) {
		return out, nil
	}
	return out, fmt.Errorf("%s is %s: %w", txID, out.Status, ErrFinalized)
}

// settle performs the terminal-state side effects: revert on rollback,
// receipt dispatch, lease release and bookkeeping. Runs with r.mu held.
func (o *Orchestrator) settle(r *txRecord) (Outcome, error) {
	out := Outcome{TxID: r.id, Status: r.status}
	verdict := ir.VerdictPass
	if r.status == StatusRolledBack {
		revert(r.states)
		verdict = ir.VerdictFail
		out.Reason = r.reason
	} else {
		out.Response = r.resp
	}

	if err := o.receipts.Dispatch(r.id, verdict, r.tx, r.states, r.resp); err != nil && !errors.Is(err, receipt.ErrAlreadyDispatched) {
		o.logger.Warn("receipt dispatch failed", zap.String("tx_id", r.id), zap.Error(err))
	}
	r.lease.Release()

	o.mu.Lock()
	delete(o.pending, r.id)
	o.finished[r.id] = out
	o.mu.Unlock()
	r.done = true

	_outcomeMtc.WithLabelValues(string(r.status)).Inc()
	if r.status == StatusRolledBack {
		o.logger.Info("transaction rolled back", zap.String("tx_id", r.id), zap.String("reason", r.reason))
	} else {
		o.logger.Debug("transaction committed", zap.String("tx_id", r.id))
	}
	return out, r.failure
}

func revert(states map[string]*ir.WrappedResponse) {
	for _, w := range states {
		if w == nil {
			continue
		}
		w.Data = w.PrevDataCopy.Clone()
		w.StateID = w.PrevStateID
		w.LocalCache = nil
		w.IsPartial = false
		w.AccountCreated = false
	}
}
