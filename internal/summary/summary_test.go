package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/roach88/shardstate/internal/app/mock_app"
	"github.com/roach88/shardstate/internal/bankapp"
	"github.com/roach88/shardstate/internal/ir"
)

func balance(b string) ir.IRObject {
	return ir.IRObject{"balance": ir.IRString(b)}
}

func TestSummaryFoldsAccountsAndTransactions(t *testing.T) {
	s := New(bankapp.New(nil))
	assert.True(t, s.Enabled())

	s.InitAccount(balance("10"))
	s.InitAccount(balance("5"))
	s.UpdateAccount(balance("10"), balance("4"))
	s.UpdateAccount(nil, balance("6"))
	s.UpdateTx(bankapp.Transfer("a", "b", "6", 3), nil)

	got := s.Snapshot()
	assert.Equal(t, ir.IRInt(3), got.Data[bankapp.SummaryAccounts])
	assert.Equal(t, ir.IRString("15"), got.Data[bankapp.SummaryTotalBalance])
	assert.Equal(t, ir.IRInt(1), got.Tx[bankapp.SummaryTxCount])
	assert.Equal(t, ir.IRString("6"), got.Tx[bankapp.SummaryVolume])

	// Removal.
	s.UpdateAccount(balance("6"), nil)
	assert.Equal(t, ir.IRInt(2), s.Snapshot().Data[bankapp.SummaryAccounts])
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(bankapp.New(nil))
	s.InitAccount(balance("1"))
	snap := s.Snapshot()
	snap.Data[bankapp.SummaryAccounts] = ir.IRInt(99)
	assert.Equal(t, ir.IRInt(1), s.Snapshot().Data[bankapp.SummaryAccounts])
}

func TestSummaryWithoutHooks(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(mock_app.NewMockApp(ctrl))
	assert.False(t, s.Enabled())

	s.InitAccount(balance("1"))
	s.UpdateAccount(nil, balance("2"))
	s.UpdateTx(bankapp.Transfer("a", "b", "1", 1), nil)
	got := s.Snapshot()
	assert.Empty(t, got.Data)
	assert.Empty(t, got.Tx)
}
