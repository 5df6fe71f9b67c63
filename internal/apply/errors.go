package apply

import (
	"errors"
	"fmt"
)

var (
	// ErrTxDropped reports a transaction discarded by loseTx fault injection.
	ErrTxDropped = errors.New("transaction dropped")

	// ErrUnknownTx reports a commit, rollback or resolve for an id the
	// orchestrator never applied.
	ErrUnknownTx = errors.New("unknown transaction")

	// ErrDuplicateTx reports a submit for an id that is in flight or finished.
	ErrDuplicateTx = errors.New("duplicate transaction")

	// ErrNotApplied reports a commit or rollback before the transaction reached Applied.
	ErrNotApplied = errors.New("transaction not applied")

	// ErrFinalized reports a commit of a rolled back transaction or the reverse.
	ErrFinalized = errors.New("transaction already finalized")

	// ErrVoteIgnored reports a vote dropped by ignoreVote fault injection.
	// The transaction stays Applied; the next vote is acted on.
	ErrVoteIgnored = errors.New("vote ignored")

	// ErrReceiptIgnored reports a commit or rollback dropped by
	// ignoreReceipt fault injection. The transaction stays Applied; the next
	// receipt is acted on.
	ErrReceiptIgnored = errors.New("receipt ignored")
)

// ValidationError is returned when the application's Validate hook rejects
// a transaction. Nothing else runs for it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// KeyDerivationError is fatal for the transaction it names. It is never
// worth retrying: the application's keys contradict its own contract.
type KeyDerivationError struct {
	TxID   string
	Reason string
	Err    error
}

func (e *KeyDerivationError) Error() string {
	msg := "key derivation"
	if e.TxID != "" {
		msg += " tx=" + e.TxID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyDerivationError) Unwrap() error { return e.Err }

// FailureCode categorizes apply failures.
type FailureCode string

const (
	// FailureHook means the apply hook returned an error.
	FailureHook FailureCode = "APPLY_HOOK_ERROR"
	// FailureInjected means failNoRepairTx fault injection fired.
	FailureInjected FailureCode = "INJECTED_FAILURE"
	// FailureInconsistent means the apply response contradicts the transaction.
	FailureInconsistent FailureCode = "INCONSISTENT_RESPONSE"
	// FailureUpdate means an update hook or the hash hook failed.
	FailureUpdate FailureCode = "UPDATE_HOOK_ERROR"
)

// ApplyFailure reports a transaction rolled back at Applying. No ledger
// entry was recorded and the store is untouched.
type ApplyFailure struct {
	TxID      string
	Code      FailureCode
	AccountID string
	Message   string
	Err       error
}

func (e *ApplyFailure) Error() string {
	msg := fmt.Sprintf("%s: tx=%s", e.Code, e.TxID)
	if e.AccountID != "" {
		msg += " account=" + e.AccountID
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApplyFailure) Unwrap() error { return e.Err }

// IsValidationError checks if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsKeyDerivationError checks if err is or wraps a KeyDerivationError.
func IsKeyDerivationError(err error) bool {
	var kerr *KeyDerivationError
	return errors.As(err, &kerr)
}

// IsApplyFailure checks if err is or wraps an ApplyFailure.
func IsApplyFailure(err error) bool {
	var aerr *ApplyFailure
	return errors.As(err, &aerr)
}
