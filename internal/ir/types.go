package ir

// Account is the stored record for one account.
// Hash is always the hash of Data under the application's hash function.
type Account struct {
	AccountID string   `json:"account_id"`
	Data      IRObject `json:"data"`
	Timestamp int64    `json:"timestamp"`
	Hash      string   `json:"hash"`
	IsGlobal  bool     `json:"is_global,omitempty"`
}

// WrappedData is a read-only view of an account as served to sync peers.
type WrappedData struct {
	AccountID string   `json:"account_id"`
	StateID   string   `json:"state_id"`
	Data      IRObject `json:"data"`
	Timestamp int64    `json:"timestamp"`
	IsGlobal  bool     `json:"is_global,omitempty"`
}

// WrappedResponse is an account snapshot annotated for a single apply cycle.
//
// It is created on read, mutated only while its transaction is in flight,
// and never persisted. Only the Account and StateTableObject it produces
// survive a commit.
type WrappedResponse struct {
	WrappedData

	// AccountCreated is true when the transaction being applied created the account.
	AccountCreated bool `json:"account_created"`

	// IsPartial is set by the apply hook: true when only a subset of fields changed.
	IsPartial bool `json:"is_partial"`

	// PrevStateID and PrevDataCopy capture the account before this transaction.
	PrevStateID  string   `json:"prev_state_id"`
	PrevDataCopy IRObject `json:"prev_data_copy"`

	// LocalCache is the application's working copy, consumed by the update hooks.
	LocalCache IRObject `json:"local_cache,omitempty"`
}

// Exists reports whether the snapshot refers to a stored or newly created account.
func (w *WrappedResponse) Exists() bool {
	return w.PrevStateID != EmptyStateHash || w.AccountCreated
}

// TransactionKeys lists every account a transaction touches.
// AllKeys is the deduplicated union of SourceKeys and TargetKeys.
type TransactionKeys struct {
	SourceKeys []string `json:"source_keys"`
	TargetKeys []string `json:"target_keys"`
	AllKeys    []string `json:"all_keys"`
	Timestamp  int64    `json:"timestamp"`
	DebugInfo  string   `json:"debug_info,omitempty"`
}

// Clone copies the key slices.
func (k TransactionKeys) Clone() TransactionKeys {
	return TransactionKeys{
		SourceKeys: append([]string(nil), k.SourceKeys...),
		TargetKeys: append([]string(nil), k.TargetKeys...),
		AllKeys:    append([]string(nil), k.AllKeys...),
		Timestamp:  k.Timestamp,
		DebugInfo:  k.DebugInfo,
	}
}

// CrackedTx is what an application reports about a transaction without applying it.
type CrackedTx struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Keys      TransactionKeys `json:"keys"`
}

// ValidationResult is the application's verdict on a transaction's fields.
type ValidationResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// StateTableObject is one ledger entry per (account, transaction) pair.
type StateTableObject struct {
	AccountID   string `json:"account_id"`
	TxID        string `json:"tx_id"`
	TxTimestamp int64  `json:"tx_timestamp"`
	StateBefore string `json:"state_before"`
	StateAfter  string `json:"state_after"`
}

// AccountWrite is an account record a commit will persist.
type AccountWrite struct {
	AccountID string   `json:"account_id"`
	Data      IRObject `json:"data"`
	Hash      string   `json:"hash"`
	Timestamp int64    `json:"timestamp"`
}

// ApplyResponse is produced once per successfully applied transaction.
// AppDefinedData is opaque to the core and passed through to receipt hooks.
type ApplyResponse struct {
	TxID              string             `json:"tx_id"`
	TxTimestamp       int64              `json:"tx_timestamp"`
	StateTableResults []StateTableObject `json:"state_table_results"`
	AccountData       []WrappedResponse  `json:"account_data"`
	AccountWrites     []AccountWrite     `json:"account_writes"`
	AppDefinedData    any                `json:"app_defined_data,omitempty"`
}

// AccountsCopy is a point-in-time export record used for sync and repair.
type AccountsCopy struct {
	AccountID   string   `json:"account_id"`
	CycleNumber uint64   `json:"cycle_number"`
	Data        IRObject `json:"data"`
	Timestamp   int64    `json:"timestamp"`
	Hash        string   `json:"hash"`
	IsGlobal    bool     `json:"is_global"`
}

// Account converts the export record back into a store record.
func (c AccountsCopy) Account() Account {
	return Account{
		AccountID: c.AccountID,
		Data:      c.Data.Clone(),
		Timestamp: c.Timestamp,
		Hash:      c.Hash,
		IsGlobal:  c.IsGlobal,
	}
}

// Verdict is the consensus outcome for a transaction.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Sign is a signature envelope owned by the consensus layer.
type Sign struct {
	Owner string `json:"owner"`
	Sig   string `json:"sig"`
}

// TxReceipt correlates a transaction hash with the state it produced.
// Owned by consensus; carried here as a type only.
type TxReceipt struct {
	TxHash        string `json:"tx_hash"`
	Sign          Sign   `json:"sign"`
	Time          int64  `json:"time"`
	StateID       string `json:"state_id"`
	TargetStateID string `json:"target_state_id"`
}
