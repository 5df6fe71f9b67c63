package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/accountsync"
	"github.com/roach88/shardstate/internal/apply"
	"github.com/roach88/shardstate/internal/bankapp"
	"github.com/roach88/shardstate/internal/fault"
	"github.com/roach88/shardstate/internal/ir"
	"github.com/roach88/shardstate/internal/lease"
	"github.com/roach88/shardstate/internal/ledger"
	"github.com/roach88/shardstate/internal/store"
	"github.com/roach88/shardstate/internal/testutil"
)

// Scenario clock: the first stamped step gets 10, the next 20, and so on.
const (
	clockBase = 0
	clockStep = 10
)

// Harness is the scenario execution engine for one run.
type Harness struct {
	store  *store.Store
	ledger *ledger.Ledger
	bank   *bankapp.App
	sync   *accountsync.Service
	orch   *apply.Orchestrator
	clock  *testutil.TxClock
	logger *zap.Logger
}

type options struct {
	storePath string
	logger    *zap.Logger
}

// Option configures Run.
type Option func(*options)

// WithStorePath runs the scenario against the database at path instead of
// a throwaway one. The database should be empty.
func WithStorePath(path string) Option {
	return func(o *options) {
		o.storePath = path
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open a store (a fresh temp database unless WithStorePath is given)
//  2. Import genesis accounts through the sync reset path
//  3. Submit and resolve each step, checking its expected status
//  4. Collect balances and receipts, then evaluate assertions
//
// A returned error means the scenario could not be executed; failed
// expectations and assertions are reported in the Result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.storePath
	if path == "" {
		dir, err := os.MkdirTemp("", "shardstate-scenario-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create scenario directory: %w", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "scenario.db")
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario, o.logger)
	if err != nil {
		return nil, err
	}

	if err := h.seedGenesis(ctx, scenario.Genesis); err != nil {
		return nil, fmt.Errorf("failed to import genesis: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.AddStep(ev)
		if step.Expect != "" && ev.Status != step.Expect {
			msg := fmt.Sprintf("step %d: expected status %s, got %s", ev.Step, step.Expect, ev.Status)
			if ev.Reason != "" {
				msg += " (" + ev.Reason + ")"
			}
			result.AddError(msg)
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, Ledger: h.ledger}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario, logger *zap.Logger) (*Harness, error) {
	hasher, err := ir.NewHasher(scenario.Hash)
	if err != nil {
		return nil, err
	}

	script := fault.NewScript()
	for knob, decisions := range scenario.Faults {
		script.On(fault.Knob(knob), decisions...)
	}

	bank := bankapp.New(hasher)
	led := ledger.New(st, ledger.WithLogger(logger))
	leases := lease.NewManager(
		lease.WithIDGenerator(testutil.NewSequenceIDs("lease")),
		lease.WithLogger(logger),
	)

	return &Harness{
		store:  st,
		ledger: led,
		bank:   bank,
		sync:   accountsync.New(bank, st, led, leases, accountsync.WithLogger(logger)),
		orch:   apply.New(bank, st, led, leases, apply.WithLogger(logger), apply.WithFaults(script)),
		clock:  testutil.NewTxClock(clockBase, clockStep),
		logger: logger,
	}, nil
}

func (h *Harness) seedGenesis(ctx context.Context, genesis []GenesisAccount) error {
	if len(genesis) == 0 {
		return nil
	}
	copies := make([]ir.AccountsCopy, len(genesis))
	for i, g := range genesis {
		data := ir.IRObject{
			"id":        ir.IRString(g.Account),
			"balance":   ir.IRString(g.Balance),
			"nonce":     ir.IRInt(0),
			"timestamp": ir.IRInt(0),
		}
		hash, err := h.bank.CalculateAccountHash(data)
		if err != nil {
			return fmt.Errorf("genesis %s: %w", g.Account, err)
		}
		copies[i] = ir.AccountsCopy{AccountID: g.Account, Data: data, Hash: hash}
	}
	return h.sync.ResetAccountData(ctx, copies)
}

func (h *Harness) runStep(ctx context.Context, n int, step Step) (TraceEvent, error) {
	payload, err := convertArgsToIRObject(step.Tx)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("failed to convert tx: %w", err)
	}
	if _, ok := payload["txnTimestamp"]; !ok {
		payload["txnTimestamp"] = ir.IRInt(h.clock.Next())
	}
	tx, err := ir.NewTx(payload)
	if err != nil {
		return TraceEvent{}, err
	}

	ev := TraceEvent{Step: n, TxnType: payload.GetString("txnType")}
	if cracked, err := h.bank.Crack(tx); err == nil {
		ev.Accounts = slices.Sorted(slices.Values(cracked.Keys.AllKeys))
	}

	out, err := h.orch.Submit(ctx, tx)
	switch {
	case out.Status == apply.StatusRolledBack:
		ev.Status = string(out.Status)
		ev.Reason = failureReason(out, err)
		return ev, nil
	case err != nil:
		status, reason := classify(err)
		if status == "" {
			return TraceEvent{}, err
		}
		ev.Status, ev.Reason = status, reason
		return ev, nil
	case out.Status != apply.StatusApplied:
		ev.Status = string(out.Status)
		return ev, nil
	}

	verdict := step.Verdict
	if verdict == "" {
		verdict = VerdictPass
	}
	ev.Verdict = verdict
	if verdict == VerdictNone {
		ev.Status = string(out.Status)
		return ev, nil
	}

	out, err = h.orch.Resolve(ctx, out.TxID, ir.Verdict(verdict))
	if errors.Is(err, apply.ErrVoteIgnored) {
		ev.VoteIgnored = true
		out, err = h.orch.Resolve(ctx, out.TxID, ir.Verdict(verdict))
	}
	if err != nil && !ledger.IsChainContinuityError(err) {
		return TraceEvent{}, err
	}
	ev.Status = string(out.Status)
	ev.Reason = failureReason(out, err)
	return ev, nil
}

// classify maps a Submit error that left nothing applied to a step status.
// An empty status means the error is not a transaction outcome.
func classify(err error) (string, string) {
	var verr *apply.ValidationError
	var kerr *apply.KeyDerivationError
	var cerr *ledger.ChainContinuityError
	switch {
	case errors.As(err, &verr):
		return StatusRejected, verr.Reason
	case errors.As(err, &kerr):
		return StatusRejected, kerr.Reason
	case errors.Is(err, apply.ErrDuplicateTx):
		return StatusRejected, "duplicate transaction"
	case errors.Is(err, apply.ErrTxDropped):
		return StatusDropped, "dropped by fault injection"
	case errors.As(err, &cerr):
		return StatusBlocked, "account " + cerr.AccountID + " blocked"
	}
	return "", ""
}

// failureReason describes a rollback without transaction ids or hashes, so
// traces stay stable across hash algorithms.
func failureReason(out apply.Outcome, err error) string {
	var aerr *apply.ApplyFailure
	var cerr *ledger.ChainContinuityError
	switch {
	case errors.As(err, &aerr):
		parts := []string{string(aerr.Code)}
		if aerr.Message != "" {
			parts = append(parts, aerr.Message)
		}
		if aerr.Err != nil {
			parts = append(parts, aerr.Err.Error())
		}
		return strings.Join(parts, ": ")
	case errors.As(err, &cerr):
		return "chain continuity: account " + cerr.AccountID
	}
	return out.Reason
}

// collect records final balances and receipt counts.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	accounts, err := h.store.GetAccounts(ctx, "", accountsync.MaxAccountID, 0)
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}
	for _, a := range accounts {
		result.Balances[a.AccountID] = bankapp.Balance(a.Data)
	}
	for _, r := range h.bank.Receipts() {
		result.Receipts[string(r.Verdict)]++
	}
	return nil
}

// convertArgsToIRObject converts a YAML-parsed map to ir.IRObject.
func convertArgsToIRObject(args map[string]interface{}) (ir.IRObject, error) {
	result := make(ir.IRObject, len(args))
	for key, val := range args {
		irVal, err := convertToIRValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// Nulls and non-integral numbers have no canonical form and are rejected.
func convertToIRValue(val interface{}) (ir.IRValue, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are forbidden in transactions")
	}

	switch v := val.(type) {
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are forbidden in transactions: %v", v)
	case bool:
		return ir.IRBool(v), nil
	case []interface{}:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]interface{}:
		return convertArgsToIRObject(v)
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
