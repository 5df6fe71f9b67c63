// Package bankapp is a small reference application: accounts hold a uint256
// balance and a nonce, and transactions create accounts or move balance
// from one source to one or more targets.
//
// Payload fields:
//
//	txnType       "create" or "transfer"
//	srcAct        source account (the created account for "create")
//	tgtAct        single transfer target
//	tgtActs       array of transfer targets, each receiving txnAmt
//	txnAmt        decimal amount string
//	seqNum        optional; when set must be the source nonce + 1
//	txnTimestamp  transaction timestamp, > 0
//
// A transfer carrying both tgtAct and tgtActs is rejected as ambiguous.
package bankapp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/roach88/shardstate/internal/ir"
)

const (
	TypeCreate   = "create"
	TypeTransfer = "transfer"
)

// Receipt is one receipt hook invocation as the application saw it.
type Receipt struct {
	TxID    string     `json:"tx_id"`
	Verdict ir.Verdict `json:"verdict"`
}

// App implements app.App and every optional capability in package app.
type App struct {
	hasher ir.Hasher

	mu       sync.Mutex
	receipts []Receipt
	closed   bool
}

// New creates a bank app hashing with h. A nil h uses SHA-256.
func New(h ir.Hasher) *App {
	if h == nil {
		h = ir.SHA256Hasher{}
	}
	return &App{hasher: h}
}

// Create builds a create transaction.
func Create(account, amount string, ts int64) ir.Tx {
	return ir.MustTx(ir.IRObject{
		"txnType":      ir.IRString(TypeCreate),
		"srcAct":       ir.IRString(account),
		"txnAmt":       ir.IRString(amount),
		"txnTimestamp": ir.IRInt(ts),
	})
}

// Transfer builds a single-target transfer.
func Transfer(src, tgt, amount string, ts int64) ir.Tx {
	return ir.MustTx(ir.IRObject{
		"txnType":      ir.IRString(TypeTransfer),
		"srcAct":       ir.IRString(src),
		"tgtAct":       ir.IRString(tgt),
		"txnAmt":       ir.IRString(amount),
		"txnTimestamp": ir.IRInt(ts),
	})
}

// TransferMany builds a transfer paying amount to every target.
func TransferMany(src string, tgts []string, amount string, ts int64) ir.Tx {
	arr := make(ir.IRArray, len(tgts))
	for i, t := range tgts {
		arr[i] = ir.IRString(t)
	}
	return ir.MustTx(ir.IRObject{
		"txnType":      ir.IRString(TypeTransfer),
		"srcAct":       ir.IRString(src),
		"tgtActs":      arr,
		"txnAmt":       ir.IRString(amount),
		"txnTimestamp": ir.IRInt(ts),
	})
}

type txn struct {
	kind    string
	src     string
	targets []string
	amount  *uint256.Int
	seq     int64
	ts      int64
}

func parse(tx ir.Tx) (txn, error) {
	p := tx.Payload()
	t := txn{
		kind: p.GetString("txnType"),
		src:  p.GetString("srcAct"),
	}
	if t.kind != TypeCreate && t.kind != TypeTransfer {
		return txn{}, fmt.Errorf("unknown txnType %q", t.kind)
	}
	if t.src == "" {
		return txn{}, errors.New("missing srcAct")
	}

	ts, ok := p["txnTimestamp"].(ir.IRInt)
	if !ok || ts <= 0 {
		return txn{}, errors.New("txnTimestamp must be a positive integer")
	}
	t.ts = int64(ts)

	if seq, ok := p["seqNum"].(ir.IRInt); ok {
		t.seq = int64(seq)
	}

	amt, err := uint256.FromDecimal(p.GetString("txnAmt"))
	if err != nil {
		return txn{}, fmt.Errorf("txnAmt: %w", err)
	}
	t.amount = amt

	if t.kind == TypeCreate {
		if _, ok := p["tgtAct"]; ok {
			return txn{}, errors.New("create takes no target")
		}
		if _, ok := p["tgtActs"]; ok {
			return txn{}, errors.New("create takes no target")
		}
		return t, nil
	}

	_, hasOne := p["tgtAct"]
	many, hasMany := p["tgtActs"]
	switch {
	case hasOne && hasMany:
		return txn{}, errors.New("ambiguous target: tgtAct and tgtActs both set")
	case hasOne:
		t.targets = []string{p.GetString("tgtAct")}
	case hasMany:
		arr, ok := many.(ir.IRArray)
		if !ok || len(arr) == 0 {
			return txn{}, errors.New("tgtActs must be a non-empty array")
		}
		for _, v := range arr {
			s, ok := v.(ir.IRString)
			if !ok {
				return txn{}, errors.New("tgtActs must hold strings")
			}
			t.targets = append(t.targets, string(s))
		}
	default:
		return txn{}, errors.New("transfer needs tgtAct or tgtActs")
	}

	seen := map[string]bool{t.src: true}
	for _, tgt := range t.targets {
		if tgt == "" {
			return txn{}, errors.New("empty target account")
		}
		if seen[tgt] {
			return txn{}, fmt.Errorf("account %s appears twice", tgt)
		}
		seen[tgt] = true
	}
	if t.amount.IsZero() {
		return txn{}, errors.New("transfer amount must be positive")
	}
	return t, nil
}

func (t txn) keys() ir.TransactionKeys {
	all := append([]string{t.src}, t.targets...)
	return ir.TransactionKeys{
		SourceKeys: []string{t.src},
		TargetKeys: append([]string{}, t.targets...),
		AllKeys:    all,
		Timestamp:  t.ts,
	}
}

func (a *App) Validate(tx ir.Tx) ir.ValidationResult {
	if _, err := parse(tx); err != nil {
		return ir.ValidationResult{Reason: err.Error()}
	}
	return ir.ValidationResult{Success: true}
}

func (a *App) Crack(tx ir.Tx) (ir.CrackedTx, error) {
	t, err := parse(tx)
	if err != nil {
		return ir.CrackedTx{}, err
	}
	return ir.CrackedTx{ID: ir.TxHash(a.hasher, tx), Timestamp: t.ts, Keys: t.keys()}, nil
}

func (a *App) GetKeyFromTransaction(tx ir.Tx) (ir.TransactionKeys, error) {
	t, err := parse(tx)
	if err != nil {
		return ir.TransactionKeys{}, err
	}
	return t.keys(), nil
}

// CanDebugDropTx lets fault injection drop transfers but never creates.
func (a *App) CanDebugDropTx(tx ir.Tx) bool {
	t, err := parse(tx)
	return err == nil && t.kind == TypeTransfer
}

func (a *App) GetTimestampAndHashFromAccount(data ir.IRObject) (int64, string, error) {
	ts, _ := data["timestamp"].(ir.IRInt)
	hash, err := ir.AccountHash(a.hasher, data)
	if err != nil {
		return 0, "", err
	}
	return int64(ts), hash, nil
}

// GetAccountDebugValue renders an account as "id balance=N nonce=N".
func (a *App) GetAccountDebugValue(w ir.WrappedData) string {
	nonce, _ := w.Data["nonce"].(ir.IRInt)
	return fmt.Sprintf("%s balance=%s nonce=%d", w.AccountID, Balance(w.Data), nonce)
}

// GetRelevantData initializes accounts the transaction may create: the
// source of a create and every transfer target.
func (a *App) GetRelevantData(accountID string, tx ir.Tx, stored *ir.WrappedResponse) (*ir.WrappedResponse, error) {
	t, err := parse(tx)
	if err != nil {
		return nil, err
	}
	if stored.Exists() {
		return stored, nil
	}
	creates := t.kind == TypeCreate && accountID == t.src
	if t.kind == TypeTransfer && accountID != t.src {
		creates = true
	}
	if creates {
		stored.Data = ir.IRObject{
			"id":        ir.IRString(accountID),
			"balance":   ir.IRString("0"),
			"nonce":     ir.IRInt(0),
			"timestamp": ir.IRInt(0),
		}
		stored.AccountCreated = true
	}
	return stored, nil
}

func (a *App) Apply(tx ir.Tx, states map[string]*ir.WrappedResponse) (*ir.ApplyResponse, error) {
	t, err := parse(tx)
	if err != nil {
		return nil, err
	}
	src := states[t.src]
	if src == nil {
		return nil, fmt.Errorf("no state for %s", t.src)
	}

	if t.kind == TypeCreate {
		if !src.AccountCreated {
			return nil, fmt.Errorf("account %s already exists", t.src)
		}
		src.LocalCache = ir.IRObject{
			"id":        ir.IRString(t.src),
			"balance":   ir.IRString(t.amount.Dec()),
			"nonce":     ir.IRInt(0),
			"timestamp": ir.IRInt(t.ts),
		}
		src.IsPartial = false
		return a.response(tx, t), nil
	}

	if src.Data == nil {
		return nil, fmt.Errorf("source account %s does not exist", t.src)
	}
	balance, err := balanceOf(src.Data)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", t.src, err)
	}
	nonce, _ := src.Data["nonce"].(ir.IRInt)
	if t.seq != 0 && t.seq != int64(nonce)+1 {
		return nil, fmt.Errorf("seqNum %d does not follow nonce %d", t.seq, nonce)
	}

	total, overflow := new(uint256.Int).MulOverflow(t.amount, uint256.NewInt(uint64(len(t.targets))))
	if overflow || balance.Lt(total) {
		return nil, fmt.Errorf("insufficient balance in %s: have %s, need %s", t.src, balance.Dec(), total.Dec())
	}

	for _, id := range t.targets {
		w := states[id]
		if w == nil {
			return nil, fmt.Errorf("no state for %s", id)
		}
		bal, err := balanceOf(w.Data)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", id, err)
		}
		next, overflow := new(uint256.Int).AddOverflow(bal, t.amount)
		if overflow {
			return nil, fmt.Errorf("balance overflow in %s", id)
		}
		if w.AccountCreated {
			full := w.Data.Clone()
			full["balance"] = ir.IRString(next.Dec())
			full["timestamp"] = ir.IRInt(t.ts)
			w.LocalCache = full
			w.IsPartial = false
			continue
		}
		w.LocalCache = ir.IRObject{
			"balance":   ir.IRString(next.Dec()),
			"timestamp": ir.IRInt(t.ts),
		}
		w.IsPartial = true
	}

	src.LocalCache = ir.IRObject{
		"balance":   ir.IRString(new(uint256.Int).Sub(balance, total).Dec()),
		"nonce":     nonce + 1,
		"timestamp": ir.IRInt(t.ts),
	}
	src.IsPartial = true
	return a.response(tx, t), nil
}

func (a *App) response(tx ir.Tx, t txn) *ir.ApplyResponse {
	return &ir.ApplyResponse{
		TxID:        ir.TxHash(a.hasher, tx),
		TxTimestamp: t.ts,
		AppDefinedData: ir.IRObject{
			"txnType": ir.IRString(t.kind),
			"txnAmt":  ir.IRString(t.amount.Dec()),
		},
	}
}

func balanceOf(data ir.IRObject) (*uint256.Int, error) {
	raw := data.GetString("balance")
	if raw == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(raw)
}

func (a *App) UpdateAccountFull(w *ir.WrappedResponse, localCache ir.IRObject, _ *ir.ApplyResponse) error {
	if localCache == nil {
		return fmt.Errorf("full update of %s without local copy", w.AccountID)
	}
	w.Data = localCache.Clone()
	return nil
}

func (a *App) UpdateAccountPartial(w *ir.WrappedResponse, localCache ir.IRObject, _ *ir.ApplyResponse) error {
	if w.Data == nil {
		return fmt.Errorf("partial update of missing account %s", w.AccountID)
	}
	for k, v := range localCache {
		w.Data[k] = ir.CloneValue(v)
	}
	return nil
}

func (a *App) CalculateAccountHash(data ir.IRObject) (string, error) {
	return ir.AccountHash(a.hasher, data)
}

func (a *App) TransactionReceiptPass(tx ir.Tx, _ map[string]*ir.WrappedResponse, _ *ir.ApplyResponse) error {
	a.record(tx, ir.VerdictPass)
	return nil
}

func (a *App) TransactionReceiptFail(tx ir.Tx, _ map[string]*ir.WrappedResponse, _ *ir.ApplyResponse) error {
	a.record(tx, ir.VerdictFail)
	return nil
}

func (a *App) record(tx ir.Tx, v ir.Verdict) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receipts = append(a.receipts, Receipt{TxID: ir.TxHash(a.hasher, tx), Verdict: v})
}

// Close marks the app shut down. Closing twice is an error.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("bank app already closed")
	}
	a.closed = true
	return nil
}

// Closed reports whether Close has run.
func (a *App) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Receipts returns the receipts seen so far, in dispatch order.
func (a *App) Receipts() []Receipt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Receipt(nil), a.receipts...)
}

// Balance reads an account's balance from its data.
func Balance(data ir.IRObject) string {
	b, err := balanceOf(data)
	if err != nil {
		return ""
	}
	return b.Dec()
}
