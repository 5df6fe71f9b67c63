// Package app defines the capability set a pluggable application provides.
//
// The core never interprets transactions or account data itself. Everything
// domain specific is reached through App, and optional behavior through the
// smaller interfaces below, discovered with a type assertion.
package app

//go:generate mockgen -destination=./mock_app/mock_app.go -package=mock_app github.com/roach88/shardstate/internal/app App

import (
	"github.com/roach88/shardstate/internal/ir"
)

// App is the set of hooks the orchestrator calls, all synchronously.
//
// Hooks receiving wrappedStates or an ApplyResponse after apply must treat
// them as read-only.
type App interface {
	// Validate checks transaction fields. Called before keys are derived.
	Validate(tx ir.Tx) ir.ValidationResult

	// Crack reports the transaction's id, timestamp and account keys.
	Crack(tx ir.Tx) (ir.CrackedTx, error)

	// GetRelevantData completes the snapshot the store produced for one
	// account. stored describes the record as persisted, or a synthetic
	// not-yet-created wrapper. The hook may initialize data for a new account
	// and set AccountCreated.
	GetRelevantData(accountID string, tx ir.Tx, stored *ir.WrappedResponse) (*ir.WrappedResponse, error)

	// Apply runs business logic against the wrapped states, exactly once per
	// transaction. It records its changes in each wrapper's LocalCache and
	// sets IsPartial per account.
	Apply(tx ir.Tx, wrappedStates map[string]*ir.WrappedResponse) (*ir.ApplyResponse, error)

	// UpdateAccountFull replaces wrapped.Data with the full local copy.
	UpdateAccountFull(wrapped *ir.WrappedResponse, localCache ir.IRObject, resp *ir.ApplyResponse) error

	// UpdateAccountPartial merges the changed fields of the local copy into wrapped.Data.
	UpdateAccountPartial(wrapped *ir.WrappedResponse, localCache ir.IRObject, resp *ir.ApplyResponse) error

	// CalculateAccountHash hashes account data.
	CalculateAccountHash(data ir.IRObject) (string, error)

	// TransactionReceiptPass runs once after a transaction commits.
	TransactionReceiptPass(tx ir.Tx, wrappedStates map[string]*ir.WrappedResponse, resp *ir.ApplyResponse) error

	// TransactionReceiptFail runs once after a transaction rolls back.
	TransactionReceiptFail(tx ir.Tx, wrappedStates map[string]*ir.WrappedResponse, resp *ir.ApplyResponse) error
}

// KeyProvider is implemented by applications that derive keys separately
// from Crack. When present it takes precedence for key derivation.
type KeyProvider interface {
	GetKeyFromTransaction(tx ir.Tx) (ir.TransactionKeys, error)
}

// DebugDropper lets an application opt transactions out of loseTx fault injection.
type DebugDropper interface {
	CanDebugDropTx(tx ir.Tx) bool
}

// TimestampHasher reads the timestamp and hash an application records for
// an account. Sync uses it in place of CalculateAccountHash to check
// imported records. A zero timestamp means the data carries none.
type TimestampHasher interface {
	GetTimestampAndHashFromAccount(data ir.IRObject) (int64, string, error)
}

// DebugValuer renders an account for operator output.
type DebugValuer interface {
	GetAccountDebugValue(wrapped ir.WrappedData) string
}

// DataSummarizer folds account data into a summary blob. Init adds an
// account to the blob; Update replaces before with after, where a nil
// before is an account created by the transaction.
type DataSummarizer interface {
	DataSummaryInit(blob ir.IRObject, data ir.IRObject)
	DataSummaryUpdate(blob ir.IRObject, before, after ir.IRObject)
}

// TxSummarizer folds a committed transaction into a summary blob.
// wrappedStates are read-only.
type TxSummarizer interface {
	TxSummaryUpdate(blob ir.IRObject, tx ir.Tx, wrappedStates map[string]*ir.WrappedResponse)
}

// Closer is called once when the node shuts down.
type Closer interface {
	Close() error
}
