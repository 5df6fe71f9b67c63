package apply

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/bankapp"
	"github.com/roach88/shardstate/internal/ir"
	"github.com/roach88/shardstate/internal/lease"
	"github.com/roach88/shardstate/internal/ledger"
	"github.com/roach88/shardstate/internal/store"
	"github.com/roach88/shardstate/internal/testutil"
)

type harness struct {
	bank   *bankapp.App
	store  *store.Store
	ledger *ledger.Ledger
	orch   *Orchestrator
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newHarness wires an orchestrator around a. A nil a uses the bank app.
func newHarness(t *testing.T, a app.App, opts ...Option) *harness {
	t.Helper()
	bank := bankapp.New(nil)
	if a == nil {
		a = bank
	}
	s := createTestStore(t)
	l := ledger.New(s)
	leases := lease.NewManager(lease.WithIDGenerator(testutil.NewSequenceIDs("lease")))
	return &harness{
		bank:   bank,
		store:  s,
		ledger: l,
		orch:   New(a, s, l, leases, opts...),
	}
}

// seed stores bank accounts through the sync path, bypassing the orchestrator.
func (h *harness) seed(t *testing.T, balances map[string]string) {
	t.Helper()
	accounts := make([]ir.Account, 0, len(balances))
	for id, bal := range balances {
		data := ir.IRObject{
			"id":        ir.IRString(id),
			"balance":   ir.IRString(bal),
			"nonce":     ir.IRInt(0),
			"timestamp": ir.IRInt(1),
		}
		hash, err := h.bank.CalculateAccountHash(data)
		require.NoError(t, err)
		accounts = append(accounts, ir.Account{AccountID: id, Data: data, Timestamp: 1, Hash: hash})
	}
	require.NoError(t, h.store.SetAccounts(context.Background(), accounts))
}

func (h *harness) account(t *testing.T, id string) ir.Account {
	t.Helper()
	acct, err := h.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct
}

func (h *harness) balance(t *testing.T, id string) string {
	t.Helper()
	return bankapp.Balance(h.account(t, id).Data)
}

func (h *harness) txEntries(t *testing.T, accountID string) []ir.StateTableObject {
	t.Helper()
	entries, err := h.ledger.ByAccount(context.Background(), accountID)
	require.NoError(t, err)
	return entries
}
