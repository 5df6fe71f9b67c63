package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/shardstate/internal/ir"
)

// Stale state kinds.
const (
	// StaleAccount: the stored hash differs from stateBefore.
	StaleAccount = "account"
	// StaleChain: the last state_table row for the account ends elsewhere.
	StaleChain = "chain"
	// StaleTimestamp: the account already holds a newer timestamp than the entry.
	StaleTimestamp = "timestamp"
)

// StaleStateError is returned by CommitTransition when an entry's
// stateBefore does not match what the store holds. Nothing is written.
type StaleStateError struct {
	AccountID string
	TxID      string
	Kind      string
	Expected  string
	Actual    string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s state of %s for tx %s is %s, entry expects %s",
		e.Kind, e.AccountID, e.TxID, e.Actual, e.Expected)
}

// CommitTransition persists one transaction's effect atomically: every
// account write and every state_table entry, or nothing.
//
// For each entry, stateBefore must equal both the stored account hash and
// the state_after of the account's last state_table row, and txTimestamp
// must not be older than the stored account timestamp or the tx_timestamp
// of that last row. A write must exist
// for every entry whose state changes, with Hash equal to stateAfter.
func (s *Store) CommitTransition(ctx context.Context, entries []ir.StateTableObject, writes []ir.AccountWrite) error {
	byID := make(map[string]ir.AccountWrite, len(writes))
	for _, w := range writes {
		byID[w.AccountID] = w
	}

	return s.inTx(ctx, "commit transition", func(tx *sql.Tx) error {
		for _, e := range entries {
			stored, err := storedHash(ctx, tx, e.AccountID)
			if err != nil {
				return err
			}
			if stored != e.StateBefore {
				return &StaleStateError{AccountID: e.AccountID, TxID: e.TxID, Kind: StaleAccount, Expected: e.StateBefore, Actual: stored}
			}
			tail, err := chainTail(ctx, tx, e.AccountID)
			if err != nil {
				return err
			}
			if tail != e.StateBefore {
				return &StaleStateError{AccountID: e.AccountID, TxID: e.TxID, Kind: StaleChain, Expected: e.StateBefore, Actual: tail}
			}
			latest, ok, err := latestTimestamp(ctx, tx, e.AccountID)
			if err != nil {
				return err
			}
			if ok && e.TxTimestamp < latest {
				return &StaleStateError{
					AccountID: e.AccountID, TxID: e.TxID, Kind: StaleTimestamp,
					Expected: strconv.FormatInt(e.TxTimestamp, 10), Actual: strconv.FormatInt(latest, 10),
				}
			}

			w, ok := byID[e.AccountID]
			switch {
			case ok && w.Hash != e.StateAfter:
				return fmt.Errorf("write for %s has hash %s, entry records %s", e.AccountID, w.Hash, e.StateAfter)
			case !ok && e.StateBefore != e.StateAfter:
				return fmt.Errorf("entry for %s changes state but has no write", e.AccountID)
			case ok:
				if err := writeCommitted(ctx, tx, w); err != nil {
					return err
				}
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO state_table (kind, account_id, tx_id, tx_timestamp, state_before, state_after)
				VALUES (?, ?, ?, ?, ?, ?)
			`, KindTx, e.AccountID, e.TxID, e.TxTimestamp, e.StateBefore, e.StateAfter); err != nil {
				return fmt.Errorf("append entry %s/%s: %w", e.AccountID, e.TxID, err)
			}
		}
		return nil
	})
}

// writeCommitted upserts an account from the apply path, keeping is_global.
func writeCommitted(ctx context.Context, tx *sql.Tx, w ir.AccountWrite) error {
	raw, err := marshalData(w.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, data, timestamp, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			hash = excluded.hash
	`, w.AccountID, raw, w.Timestamp, w.Hash)
	if err != nil {
		return fmt.Errorf("write account %s: %w", w.AccountID, err)
	}
	return nil
}

// chainTail returns state_after of the account's newest state_table row,
// or EmptyStateHash when the account has no history.
func chainTail(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var tail string
	err := tx.QueryRowContext(ctx, `
		SELECT state_after FROM state_table
		WHERE account_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, id).Scan(&tail)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.EmptyStateHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read chain tail of %s: %w", id, err)
	}
	return tail, nil
}

// latestTimestamp returns the larger of the stored account timestamp and the
// tx_timestamp of the account's newest state_table row. ok is false when the
// account has neither.
func latestTimestamp(ctx context.Context, tx *sql.Tx, id string) (int64, bool, error) {
	var latest sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(ts) FROM (
			SELECT timestamp AS ts FROM accounts WHERE account_id = ?
			UNION ALL
			SELECT ts FROM (
				SELECT tx_timestamp AS ts FROM state_table
				WHERE account_id = ?
				ORDER BY seq DESC
				LIMIT 1
			)
		)
	`, id, id).Scan(&latest)
	if err != nil {
		return 0, false, fmt.Errorf("read latest timestamp of %s: %w", id, err)
	}
	return latest.Int64, latest.Valid, nil
}
