package apply

import (
	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/ir"
)

// KeyDeriver turns a validated transaction into its id, timestamp and
// account keys. It prefers the application's KeyProvider and falls back to
// Crack. Deterministic and side-effect free.
type KeyDeriver struct {
	app app.App
}

// NewKeyDeriver creates a deriver for a.
func NewKeyDeriver(a app.App) *KeyDeriver {
	return &KeyDeriver{app: a}
}

// Derive returns a private copy of the transaction's keys or a
// *KeyDerivationError.
func (d *KeyDeriver) Derive(tx ir.Tx) (ir.CrackedTx, error) {
	cracked, err := d.app.Crack(tx)
	if err != nil {
		return ir.CrackedTx{}, &KeyDerivationError{Reason: "crack failed", Err: err}
	}
	if cracked.ID == "" {
		return ir.CrackedTx{}, &KeyDerivationError{Reason: "empty transaction id"}
	}

	keys := cracked.Keys
	if kp, ok := d.app.(app.KeyProvider); ok {
		keys, err = kp.GetKeyFromTransaction(tx)
		if err != nil {
			return ir.CrackedTx{}, &KeyDerivationError{TxID: cracked.ID, Reason: "key hook failed", Err: err}
		}
	}

	if keys.Timestamp == 0 {
		keys.Timestamp = cracked.Timestamp
	}
	if keys.Timestamp != cracked.Timestamp {
		return ir.CrackedTx{}, &KeyDerivationError{TxID: cracked.ID, Reason: "key timestamp disagrees with transaction timestamp"}
	}
	if reason := checkKeys(keys); reason != "" {
		return ir.CrackedTx{}, &KeyDerivationError{TxID: cracked.ID, Reason: reason}
	}

	return ir.CrackedTx{ID: cracked.ID, Timestamp: cracked.Timestamp, Keys: keys.Clone()}, nil
}

func checkKeys(keys ir.TransactionKeys) string {
	if len(keys.AllKeys) == 0 {
		return "empty allKeys"
	}
	all := make(map[string]bool, len(keys.AllKeys))
	for _, k := range keys.AllKeys {
		if k == "" {
			return "empty account id in allKeys"
		}
		if all[k] {
			return "duplicate account " + k + " in allKeys"
		}
		all[k] = true
	}
	for _, k := range keys.SourceKeys {
		if !all[k] {
			return "source key " + k + " missing from allKeys"
		}
	}
	for _, k := range keys.TargetKeys {
		if !all[k] {
			return "target key " + k + " missing from allKeys"
		}
	}
	return ""
}
