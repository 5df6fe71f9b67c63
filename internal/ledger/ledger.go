// Package ledger is the state-table ledger: the append-only, hash-chained
// record of every committed account transition.
//
// Append is the only write. It is called by the apply orchestrator when a
// transaction commits, and it is fail-closed: once an account shows a chain
// discontinuity, every later append touching it is refused until Repair.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/ir"
	"github.com/roach88/shardstate/internal/store"
)

var _chainMtc = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shardstate_ledger_chain_events",
		Help: "Ledger appends and chain discontinuities by type.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(_chainMtc)
}

// Gap kinds reported by Verify.
const (
	GapBroken     = "broken"
	GapTail       = "tail_mismatch"
	GapOutOfOrder = "out_of_order"
)

// Gap is a chain discontinuity found by Verify.
type Gap struct {
	AccountID string `json:"account_id"`
	Seq       int64  `json:"seq"`
	TxID      string `json:"tx_id,omitempty"`
	Kind      string `json:"kind"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

// Ledger wraps the store's state_table with chain checks and the
// blocked-account registry.
type Ledger struct {
	store  *store.Store
	logger *zap.Logger

	mu      sync.Mutex
	blocked map[string]string // accountID -> reason
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		lg.logger = l
	}
}

// New creates a Ledger over s.
func New(s *store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		logger:  zap.NewNop(),
		blocked: make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one transaction's entries and persists its account writes
// in a single atomic step.
//
// It returns a *ChainContinuityError, and blocks the account, when any
// entry's stateBefore disagrees with the stored chain. Nothing is written
// in that case.
func (l *Ledger) Append(ctx context.Context, entries []ir.StateTableObject, writes []ir.AccountWrite) error {
	for _, e := range entries {
		if reason, ok := l.Blocked(e.AccountID); ok {
			return &ChainContinuityError{AccountID: e.AccountID, TxID: e.TxID, Reason: "account blocked: " + reason}
		}
	}

	err := l.store.CommitTransition(ctx, entries, writes)
	var stale *store.StaleStateError
	if errors.As(err, &stale) {
		cerr := &ChainContinuityError{
			AccountID: stale.AccountID,
			TxID:      stale.TxID,
			Expected:  stale.Expected,
			Actual:    stale.Actual,
			Reason:    stale.Kind + " state mismatch",
		}
		l.block(stale.AccountID, cerr.Error())
		_chainMtc.WithLabelValues("append_rejected").Inc()
		return cerr
	}
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	_chainMtc.WithLabelValues("append").Add(float64(len(entries)))
	return nil
}

// ByAccount returns the account's committed entries in commit order.
func (l *Ledger) ByAccount(ctx context.Context, accountID string) ([]ir.StateTableObject, error) {
	return l.store.StateTableByAccount(ctx, accountID)
}

// ByTimestampRange returns committed entries in [tsStart, tsEnd].
func (l *Ledger) ByTimestampRange(ctx context.Context, tsStart, tsEnd int64, maxRecords int) ([]ir.StateTableObject, error) {
	return l.store.StateTableByTimestamp(ctx, tsStart, tsEnd, maxRecords)
}

// ByTx returns the entries a transaction committed.
func (l *Ledger) ByTx(ctx context.Context, txID string) ([]ir.StateTableObject, error) {
	return l.store.StateTableByTx(ctx, txID)
}

// Verify walks an account's history and reports every discontinuity.
//
// Each tx entry must start where the previous record ended and must not be
// older than it; sync anchors restart the chain at their hash and timestamp. The final record must end at the stored
// account hash. Any gap blocks the account.
func (l *Ledger) Verify(ctx context.Context, accountID string) ([]Gap, error) {
	records, err := l.store.Chain(ctx, accountID)
	if err != nil {
		return nil, err
	}

	gaps := make([]Gap, 0)
	prev := ir.EmptyStateHash
	var prevTs int64
	for i, r := range records {
		if r.Kind == store.KindTx && r.StateBefore != prev {
			gaps = append(gaps, Gap{
				AccountID: accountID, Seq: r.Seq, TxID: r.TxID,
				Kind: GapBroken, Expected: prev, Actual: r.StateBefore,
			})
		}
		if r.Kind == store.KindTx && i > 0 && r.TxTimestamp < prevTs {
			gaps = append(gaps, Gap{
				AccountID: accountID, Seq: r.Seq, TxID: r.TxID,
				Kind:     GapOutOfOrder,
				Expected: fmt.Sprintf(">= %d", prevTs), Actual: fmt.Sprint(r.TxTimestamp),
			})
		}
		prev = r.StateAfter
		prevTs = r.TxTimestamp
	}

	stored := ir.EmptyStateHash
	acct, err := l.store.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		stored = acct.Hash
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	if stored != prev {
		gaps = append(gaps, Gap{AccountID: accountID, Kind: GapTail, Expected: prev, Actual: stored})
	}

	if len(gaps) > 0 {
		l.block(accountID, fmt.Sprintf("%d chain gap(s) found by verification", len(gaps)))
		_chainMtc.WithLabelValues("gap").Add(float64(len(gaps)))
		l.logger.Warn("ledger chain gap",
			zap.String("account_id", accountID),
			zap.Int("gaps", len(gaps)))
	}
	return gaps, nil
}

// VerifyAll verifies every account with history or a stored record.
func (l *Ledger) VerifyAll(ctx context.Context) ([]Gap, error) {
	ids, err := l.store.ChainAccounts(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]Gap, 0)
	for _, id := range ids {
		gaps, err := l.Verify(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", id, err)
		}
		all = append(all, gaps...)
	}
	return all, nil
}

// Blocked reports whether commits to accountID are halted, and why.
func (l *Ledger) Blocked(accountID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reason, ok := l.blocked[accountID]
	return reason, ok
}

// BlockedAccounts lists halted accounts in sorted order.
func (l *Ledger) BlockedAccounts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.blocked))
	for id := range l.blocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Repair lifts the block on accounts after an external repair has
// re-anchored them (a sync reset or delete).
func (l *Ledger) Repair(accountIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range accountIDs {
		if _, ok := l.blocked[id]; ok {
			delete(l.blocked, id)
			l.logger.Info("ledger account repaired", zap.String("account_id", id))
		}
	}
}

// RepairAll lifts every block.
func (l *Ledger) RepairAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.blocked) > 0 {
		l.logger.Info("ledger accounts repaired", zap.Int("count", len(l.blocked)))
	}
	l.blocked = make(map[string]string)
}

func (l *Ledger) block(accountID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.blocked[accountID]; !ok {
		l.logger.Error("ledger account blocked",
			zap.String("account_id", accountID),
			zap.String("reason", reason))
	}
	l.blocked[accountID] = reason
}
