package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shardstate/internal/ir"
)

// Chain record kinds.
const (
	KindTx         = "tx"
	KindSyncSet    = "sync_set"
	KindSyncReset  = "sync_reset"
	KindSyncDelete = "sync_delete"
)

// ConflictError reports a SetAccounts record that collides with a different
// stored record. Identical records are accepted as no-ops.
type ConflictError struct {
	AccountID  string
	StoredHash string
	NewHash    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("account %s already stored with hash %s (incoming %s)", e.AccountID, e.StoredHash, e.NewHash)
}

// SetAccounts inserts accounts received from a sync peer.
//
// The batch is atomic: if any record conflicts with a stored record of a
// different hash, nothing is written. Each written record also appends a
// sync_set anchor so the account's chain restarts from the imported hash.
func (s *Store) SetAccounts(ctx context.Context, accounts []ir.Account) error {
	return s.inTx(ctx, "set accounts", func(tx *sql.Tx) error {
		for _, acct := range accounts {
			stored, err := storedHash(ctx, tx, acct.AccountID)
			if err != nil {
				return err
			}
			if stored == acct.Hash {
				continue
			}
			if stored != ir.EmptyStateHash {
				return &ConflictError{AccountID: acct.AccountID, StoredHash: stored, NewHash: acct.Hash}
			}
			if err := upsertAccount(ctx, tx, acct); err != nil {
				return err
			}
			if err := insertAnchor(ctx, tx, KindSyncSet, acct.AccountID, acct.Timestamp, acct.Hash); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetAccounts overwrites accounts unconditionally, as a repair flow does.
// Atomic per call; every record appends a sync_reset anchor.
func (s *Store) ResetAccounts(ctx context.Context, accounts []ir.Account) error {
	return s.inTx(ctx, "reset accounts", func(tx *sql.Tx) error {
		for _, acct := range accounts {
			if err := upsertAccount(ctx, tx, acct); err != nil {
				return err
			}
			if err := insertAnchor(ctx, tx, KindSyncReset, acct.AccountID, acct.Timestamp, acct.Hash); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAccounts removes the listed accounts. Absent ids are skipped.
// Each removal appends a sync_delete anchor at timestamp ts.
func (s *Store) DeleteAccounts(ctx context.Context, ids []string, ts int64) error {
	return s.inTx(ctx, "delete accounts", func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE account_id = ?`, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if err := insertAnchor(ctx, tx, KindSyncDelete, id, ts, ir.EmptyStateHash); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAllAccounts wipes every local account, anchoring each removal at ts.
// Returns the number of accounts removed.
func (s *Store) DeleteAllAccounts(ctx context.Context, ts int64) (int, error) {
	var removed int64
	err := s.inTx(ctx, "delete all accounts", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state_table (kind, account_id, tx_timestamp, state_after)
			SELECT ?, account_id, ?, ? FROM accounts
			ORDER BY account_id COLLATE BINARY ASC
		`, KindSyncDelete, ts, ir.EmptyStateHash); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return int(removed), err
}

// storedHash returns the account's hash, or EmptyStateHash when absent.
func storedHash(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx, `SELECT hash FROM accounts WHERE account_id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.EmptyStateHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read hash of %s: %w", id, err)
	}
	return hash, nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, acct ir.Account) error {
	if acct.AccountID == "" {
		return fmt.Errorf("account id is empty")
	}
	raw, err := marshalData(acct.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, data, timestamp, hash, is_global)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			hash = excluded.hash,
			is_global = excluded.is_global
	`, acct.AccountID, raw, acct.Timestamp, acct.Hash, boolToInt(acct.IsGlobal))
	if err != nil {
		return fmt.Errorf("write account %s: %w", acct.AccountID, err)
	}
	return nil
}

func insertAnchor(ctx context.Context, tx *sql.Tx, kind, id string, ts int64, hash string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO state_table (kind, account_id, tx_timestamp, state_after)
		VALUES (?, ?, ?, ?)
	`, kind, id, ts, hash)
	if err != nil {
		return fmt.Errorf("anchor %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
