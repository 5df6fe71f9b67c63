package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/shardstate/internal/ir"
)

// noLimit is SQLite's LIMIT value for an unbounded result.
const noLimit = -1

func limitOf(maxRecords int) int {
	if maxRecords <= 0 {
		return noLimit
	}
	return maxRecords
}

func marshalData(data ir.IRObject) (string, error) {
	if data == nil {
		data = ir.IRObject{}
	}
	b, err := ir.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal account data: %w", err)
	}
	return string(b), nil
}

func unmarshalData(raw string) (ir.IRObject, error) {
	var data ir.IRObject
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal account data: %w", err)
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ir.Account, error) {
	var (
		acct     ir.Account
		raw      string
		isGlobal int
	)
	if err := row.Scan(&acct.AccountID, &raw, &acct.Timestamp, &acct.Hash, &isGlobal); err != nil {
		return ir.Account{}, err
	}
	data, err := unmarshalData(raw)
	if err != nil {
		return ir.Account{}, fmt.Errorf("account %s: %w", acct.AccountID, err)
	}
	acct.Data = data
	acct.IsGlobal = isGlobal != 0
	return acct, nil
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]ir.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]ir.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// GetAccount returns the stored record for id, or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (ir.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, data, timestamp, hash, is_global
		FROM accounts WHERE account_id = ?
	`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// GetRelevantData wraps the stored record for id for one apply cycle.
// An absent account yields a synthetic wrapper with AccountCreated=false,
// nil Data and EmptyStateHash as both state ids. Never mutates the store.
func (s *Store) GetRelevantData(ctx context.Context, id string) (*ir.WrappedResponse, error) {
	acct, err := s.GetAccount(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &ir.WrappedResponse{
			WrappedData: ir.WrappedData{AccountID: id, StateID: ir.EmptyStateHash},
			PrevStateID: ir.EmptyStateHash,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ir.WrappedResponse{
		WrappedData: ir.WrappedData{
			AccountID: acct.AccountID,
			StateID:   acct.Hash,
			Data:      acct.Data,
			Timestamp: acct.Timestamp,
			IsGlobal:  acct.IsGlobal,
		},
		PrevStateID:  acct.Hash,
		PrevDataCopy: acct.Data.Clone(),
	}, nil
}

// GetAccounts returns full records with start <= account_id <= end.
// maxRecords <= 0 means unbounded.
func (s *Store) GetAccounts(ctx context.Context, start, end string, maxRecords int) ([]ir.Account, error) {
	accounts, err := s.queryAccounts(ctx, `
		SELECT account_id, data, timestamp, hash, is_global
		FROM accounts
		WHERE account_id >= ? AND account_id <= ?
		ORDER BY account_id COLLATE BINARY ASC
		LIMIT ?
	`, start, end, limitOf(maxRecords))
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountData returns at most maxRecords accounts in [start, end] by id.
// A full page means more records may exist past the last id returned.
func (s *Store) GetAccountData(ctx context.Context, start, end string, maxRecords int) ([]ir.WrappedData, error) {
	accounts, err := s.GetAccounts(ctx, start, end, maxRecords)
	if err != nil {
		return nil, err
	}
	return wrapAll(accounts), nil
}

// GetAccountDataByRange returns accounts in [start, end] whose timestamp is in
// [tsStart, tsEnd], oldest first.
func (s *Store) GetAccountDataByRange(ctx context.Context, start, end string, tsStart, tsEnd int64, maxRecords int) ([]ir.WrappedData, error) {
	accounts, err := s.queryAccounts(ctx, `
		SELECT account_id, data, timestamp, hash, is_global
		FROM accounts
		WHERE account_id >= ? AND account_id <= ?
		  AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, account_id COLLATE BINARY ASC
		LIMIT ?
	`, start, end, tsStart, tsEnd, limitOf(maxRecords))
	if err != nil {
		return nil, fmt.Errorf("get account data by range: %w", err)
	}
	return wrapAll(accounts), nil
}

// GetAccountDataByList returns the stored accounts among ids, ordered by id.
// Unknown ids are omitted.
func (s *Store) GetAccountDataByList(ctx context.Context, ids []string) ([]ir.WrappedData, error) {
	if len(ids) == 0 {
		return []ir.WrappedData{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `
		SELECT account_id, data, timestamp, hash, is_global
		FROM accounts
		WHERE account_id IN (` + placeholders(len(ids)) + `)
		ORDER BY account_id COLLATE BINARY ASC`
	accounts, err := s.queryAccounts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get account data by list: %w", err)
	}
	return wrapAll(accounts), nil
}

// CountAccounts returns the number of stored accounts.
func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func wrapAll(accounts []ir.Account) []ir.WrappedData {
	out := make([]ir.WrappedData, len(accounts))
	for i, a := range accounts {
		out[i] = ir.WrappedData{
			AccountID: a.AccountID,
			StateID:   a.Hash,
			Data:      a.Data,
			Timestamp: a.Timestamp,
			IsGlobal:  a.IsGlobal,
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
