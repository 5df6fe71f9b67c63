package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/shardstate/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testAccount builds an account whose hash matches its data.
func testAccount(t *testing.T, id, balance string, ts int64) ir.Account {
	t.Helper()
	data := ir.IRObject{"balance": ir.IRString(balance)}
	hash, err := ir.AccountHash(ir.SHA256Hasher{}, data)
	if err != nil {
		t.Fatalf("AccountHash() failed: %v", err)
	}
	return ir.Account{AccountID: id, Data: data, Timestamp: ts, Hash: hash}
}

// seedAccounts stores accounts through the sync path.
func seedAccounts(t *testing.T, s *Store, accounts ...ir.Account) {
	t.Helper()
	if err := s.SetAccounts(context.Background(), accounts); err != nil {
		t.Fatalf("SetAccounts() failed: %v", err)
	}
}

// transition builds the entry and write that move acct to balance at ts.
func transition(t *testing.T, acct ir.Account, txID, balance string, ts int64) (ir.StateTableObject, ir.AccountWrite, ir.Account) {
	t.Helper()
	next := testAccount(t, acct.AccountID, balance, ts)
	before := acct.Hash
	if before == "" {
		before = ir.EmptyStateHash
	}
	entry := ir.StateTableObject{
		AccountID:   acct.AccountID,
		TxID:        txID,
		TxTimestamp: ts,
		StateBefore: before,
		StateAfter:  next.Hash,
	}
	write := ir.AccountWrite{AccountID: next.AccountID, Data: next.Data, Hash: next.Hash, Timestamp: ts}
	return entry, write, next
}
