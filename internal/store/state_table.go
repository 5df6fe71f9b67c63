package store

import (
	"context"
	"fmt"

	"github.com/roach88/shardstate/internal/ir"
)

// ChainRecord is one row of an account's history: a committed transaction
// (Kind == KindTx) or a sync anchor.
type ChainRecord struct {
	Seq         int64  `json:"seq"`
	Kind        string `json:"kind"`
	AccountID   string `json:"account_id"`
	TxID        string `json:"tx_id,omitempty"`
	TxTimestamp int64  `json:"tx_timestamp"`
	StateBefore string `json:"state_before,omitempty"`
	StateAfter  string `json:"state_after"`
}

// Entry converts a tx record into its ledger entry.
func (r ChainRecord) Entry() ir.StateTableObject {
	return ir.StateTableObject{
		AccountID:   r.AccountID,
		TxID:        r.TxID,
		TxTimestamp: r.TxTimestamp,
		StateBefore: r.StateBefore,
		StateAfter:  r.StateAfter,
	}
}

func (s *Store) queryChain(ctx context.Context, query string, args ...any) ([]ChainRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ChainRecord, 0)
	for rows.Next() {
		var r ChainRecord
		if err := rows.Scan(&r.Seq, &r.Kind, &r.AccountID, &r.TxID, &r.TxTimestamp, &r.StateBefore, &r.StateAfter); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func entriesOf(records []ChainRecord) []ir.StateTableObject {
	out := make([]ir.StateTableObject, len(records))
	for i, r := range records {
		out[i] = r.Entry()
	}
	return out
}

// Chain returns every record for an account, transactions and anchors, in
// commit order.
func (s *Store) Chain(ctx context.Context, accountID string) ([]ChainRecord, error) {
	records, err := s.queryChain(ctx, `
		SELECT seq, kind, account_id, tx_id, tx_timestamp, state_before, state_after
		FROM state_table
		WHERE account_id = ?
		ORDER BY seq ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	return records, nil
}

// StateTableByAccount returns the committed entries for an account in commit order.
func (s *Store) StateTableByAccount(ctx context.Context, accountID string) ([]ir.StateTableObject, error) {
	records, err := s.queryChain(ctx, `
		SELECT seq, kind, account_id, tx_id, tx_timestamp, state_before, state_after
		FROM state_table
		WHERE account_id = ? AND kind = ?
		ORDER BY seq ASC
	`, accountID, KindTx)
	if err != nil {
		return nil, fmt.Errorf("read state table by account: %w", err)
	}
	return entriesOf(records), nil
}

// StateTableByTimestamp returns committed entries with tsStart <= txTimestamp <= tsEnd,
// ordered by timestamp then commit order. maxRecords <= 0 means unbounded.
func (s *Store) StateTableByTimestamp(ctx context.Context, tsStart, tsEnd int64, maxRecords int) ([]ir.StateTableObject, error) {
	records, err := s.queryChain(ctx, `
		SELECT seq, kind, account_id, tx_id, tx_timestamp, state_before, state_after
		FROM state_table
		WHERE kind = ? AND tx_timestamp >= ? AND tx_timestamp <= ?
		ORDER BY tx_timestamp ASC, seq ASC
		LIMIT ?
	`, KindTx, tsStart, tsEnd, limitOf(maxRecords))
	if err != nil {
		return nil, fmt.Errorf("read state table by timestamp: %w", err)
	}
	return entriesOf(records), nil
}

// StateTableByTx returns the entries a transaction committed, in commit order.
func (s *Store) StateTableByTx(ctx context.Context, txID string) ([]ir.StateTableObject, error) {
	records, err := s.queryChain(ctx, `
		SELECT seq, kind, account_id, tx_id, tx_timestamp, state_before, state_after
		FROM state_table
		WHERE kind = ? AND tx_id = ?
		ORDER BY seq ASC
	`, KindTx, txID)
	if err != nil {
		return nil, fmt.Errorf("read state table by tx: %w", err)
	}
	return entriesOf(records), nil
}

// ChainAccounts returns every account id that has history or a stored record.
func (s *Store) ChainAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id FROM state_table
		UNION
		SELECT account_id FROM accounts
		ORDER BY account_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list chain accounts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list chain accounts: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
