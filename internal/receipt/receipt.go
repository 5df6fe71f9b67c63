// Package receipt delivers the pass or fail receipt for a transaction to the
// application, exactly once per transaction id.
package receipt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/ir"
)

// ErrAlreadyDispatched is returned when a receipt for the transaction was already sent.
var ErrAlreadyDispatched = errors.New("receipt already dispatched")

var _receiptMtc = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shardstate_receipts_total",
		Help: "Receipt hook invocations by verdict and result.",
	},
	[]string{"verdict", "result"},
)

func init() {
	prometheus.MustRegister(_receiptMtc)
}

// HookError wraps a failure raised by a receipt hook.
type HookError struct {
	TxID    string
	Verdict ir.Verdict
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("receipt %s hook for tx %s: %v", e.Verdict, e.TxID, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// IsHookError checks if err is or wraps a HookError.
func IsHookError(err error) bool {
	var herr *HookError
	return errors.As(err, &herr)
}

// Dispatcher invokes TransactionReceiptPass or TransactionReceiptFail.
//
// The hook sees private copies of the wrapped states and apply response, so
// nothing it does can reach the orchestrator's records. A panicking hook is
// recovered and reported as a HookError; the receipt still counts as sent.
type Dispatcher struct {
	app    app.App
	logger *zap.Logger

	mu   sync.Mutex
	sent map[string]ir.Verdict
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a dispatcher for a.
func New(a app.App, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		app:    a,
		logger: zap.NewNop(),
		sent:   make(map[string]ir.Verdict),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the receipt for txID. resp may be nil when the transaction
// failed before an apply response existed.
func (d *Dispatcher) Dispatch(txID string, verdict ir.Verdict, tx ir.Tx, states map[string]*ir.WrappedResponse, resp *ir.ApplyResponse) (err error) {
	if verdict != ir.VerdictPass && verdict != ir.VerdictFail {
		return fmt.Errorf("dispatch receipt for tx %s: unknown verdict %q", txID, verdict)
	}

	d.mu.Lock()
	if prev, ok := d.sent[txID]; ok {
		d.mu.Unlock()
		return fmt.Errorf("dispatch %s receipt for tx %s (already sent %s): %w", verdict, txID, prev, ErrAlreadyDispatched)
	}
	d.sent[txID] = verdict
	d.mu.Unlock()

	statesCopy, _ := deepcopy.Copy(states).(map[string]*ir.WrappedResponse)
	var respCopy *ir.ApplyResponse
	if resp != nil {
		respCopy, _ = deepcopy.Copy(resp).(*ir.ApplyResponse)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &HookError{TxID: txID, Verdict: verdict, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			_receiptMtc.WithLabelValues(string(verdict), "error").Inc()
			d.logger.Warn("receipt hook failed",
				zap.String("tx_id", txID),
				zap.String("verdict", string(verdict)),
				zap.Error(err))
			return
		}
		_receiptMtc.WithLabelValues(string(verdict), "ok").Inc()
	}()

	var hookErr error
	if verdict == ir.VerdictPass {
		hookErr = d.app.TransactionReceiptPass(tx, statesCopy, respCopy)
	} else {
		hookErr = d.app.TransactionReceiptFail(tx, statesCopy, respCopy)
	}
	if hookErr != nil {
		return &HookError{TxID: txID, Verdict: verdict, Err: hookErr}
	}
	return nil
}

// Sent reports the verdict dispatched for txID, if any.
func (d *Dispatcher) Sent(txID string) (ir.Verdict, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.sent[txID]
	return v, ok
}

// Count returns how many receipts have been dispatched.
func (d *Dispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}
