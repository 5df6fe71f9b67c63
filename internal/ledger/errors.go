package ledger

import (
	"errors"
	"fmt"
)

// ChainContinuityError reports a stateBefore that does not continue the
// account's chain. The account stays blocked until repaired.
type ChainContinuityError struct {
	AccountID string
	TxID      string
	Expected  string
	Actual    string
	Reason    string
}

func (e *ChainContinuityError) Error() string {
	if e.Expected == "" && e.Actual == "" {
		return fmt.Sprintf("chain continuity [%s] tx=%s: %s", e.AccountID, e.TxID, e.Reason)
	}
	return fmt.Sprintf("chain continuity [%s] tx=%s: %s (entry expects %s, chain has %s)",
		e.AccountID, e.TxID, e.Reason, e.Expected, e.Actual)
}

// IsChainContinuityError checks if err is or wraps a ChainContinuityError.
func IsChainContinuityError(err error) bool {
	var cerr *ChainContinuityError
	return errors.As(err, &cerr)
}
