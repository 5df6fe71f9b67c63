package ledger

import (
	"context"

	"github.com/roach88/shardstate/internal/store"
)

// deleteEntry and overwriteHash simulate corruption that no supported
// writer can produce, by going around the store API.
func deleteEntry(s *store.Store, accountID, txID string) error {
	_, err := s.Exec(context.Background(),
		`DELETE FROM state_table WHERE account_id = ? AND tx_id = ?`, accountID, txID)
	return err
}

func overwriteHash(s *store.Store, accountID, hash string) error {
	_, err := s.Exec(context.Background(),
		`UPDATE accounts SET hash = ? WHERE account_id = ?`, hash, accountID)
	return err
}

func setTxTimestamp(s *store.Store, accountID, txID string, ts int64) error {
	_, err := s.Exec(context.Background(),
		`UPDATE state_table SET tx_timestamp = ? WHERE account_id = ? AND tx_id = ?`, ts, accountID, txID)
	return err
}
