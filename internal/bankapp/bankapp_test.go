package bankapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstate/internal/ir"
)

func absent(id string) *ir.WrappedResponse {
	return &ir.WrappedResponse{
		WrappedData: ir.WrappedData{AccountID: id, StateID: ir.EmptyStateHash},
		PrevStateID: ir.EmptyStateHash,
	}
}

func existing(t *testing.T, a *App, id, balance string, nonce int64) *ir.WrappedResponse {
	t.Helper()
	data := ir.IRObject{
		"id":        ir.IRString(id),
		"balance":   ir.IRString(balance),
		"nonce":     ir.IRInt(nonce),
		"timestamp": ir.IRInt(1),
	}
	h, err := a.CalculateAccountHash(data)
	require.NoError(t, err)
	return &ir.WrappedResponse{
		WrappedData:  ir.WrappedData{AccountID: id, StateID: h, Data: data, Timestamp: 1},
		PrevStateID:  h,
		PrevDataCopy: data.Clone(),
	}
}

func TestValidate(t *testing.T) {
	a := New(nil)

	tests := []struct {
		name   string
		tx     ir.Tx
		ok     bool
		reason string
	}{
		{"create", Create("alice", "100", 1), true, ""},
		{"create zero", Create("alice", "0", 1), true, ""},
		{"transfer", Transfer("alice", "bob", "5", 2), true, ""},
		{"transfer many", TransferMany("alice", []string{"bob", "carol"}, "5", 2), true, ""},
		{"zero transfer", Transfer("alice", "bob", "0", 2), false, "positive"},
		{"self transfer", Transfer("alice", "alice", "1", 2), false, "twice"},
		{"bad amount", Transfer("alice", "bob", "1.5", 2), false, "txnAmt"},
		{"no timestamp", Transfer("alice", "bob", "1", 0), false, "txnTimestamp"},
		{"duplicate targets", TransferMany("alice", []string{"bob", "bob"}, "1", 2), false, "twice"},
		{"both targets", ir.MustTx(ir.IRObject{
			"txnType":      ir.IRString(TypeTransfer),
			"srcAct":       ir.IRString("alice"),
			"tgtAct":       ir.IRString("bob"),
			"tgtActs":      ir.IRArray{ir.IRString("carol")},
			"txnAmt":       ir.IRString("1"),
			"txnTimestamp": ir.IRInt(2),
		}), false, "ambiguous"},
		{"unknown type", ir.MustTx(ir.IRObject{"txnType": ir.IRString("mint")}), false, "unknown txnType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Validate(tt.tx)
			assert.Equal(t, tt.ok, res.Success, res.Reason)
			if !tt.ok {
				assert.Contains(t, res.Reason, tt.reason)
			}
		})
	}
}

func TestCrackKeys(t *testing.T) {
	a := New(nil)
	tx := TransferMany("alice", []string{"bob", "carol"}, "5", 9)

	cracked, err := a.Crack(tx)
	require.NoError(t, err)
	assert.Equal(t, ir.TxHash(ir.SHA256Hasher{}, tx), cracked.ID)
	assert.Equal(t, int64(9), cracked.Timestamp)
	assert.Equal(t, []string{"alice"}, cracked.Keys.SourceKeys)
	assert.Equal(t, []string{"bob", "carol"}, cracked.Keys.TargetKeys)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cracked.Keys.AllKeys)

	keys, err := a.GetKeyFromTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, cracked.Keys, keys)
}

func TestApplyCreate(t *testing.T) {
	a := New(nil)
	tx := Create("alice", "100", 3)

	w, err := a.GetRelevantData("alice", tx, absent("alice"))
	require.NoError(t, err)
	assert.True(t, w.AccountCreated)

	states := map[string]*ir.WrappedResponse{"alice": w}
	resp, err := a.Apply(tx, states)
	require.NoError(t, err)
	assert.Equal(t, ir.TxHash(ir.SHA256Hasher{}, tx), resp.TxID)
	assert.False(t, w.IsPartial)
	assert.Equal(t, ir.IRString("100"), w.LocalCache["balance"])

	require.NoError(t, a.UpdateAccountFull(w, w.LocalCache, resp))
	assert.Equal(t, "100", Balance(w.Data))
}

func TestApplyCreateExisting(t *testing.T) {
	a := New(nil)
	tx := Create("alice", "100", 3)
	w, err := a.GetRelevantData("alice", tx, existing(t, a, "alice", "5", 0))
	require.NoError(t, err)

	_, err = a.Apply(tx, map[string]*ir.WrappedResponse{"alice": w})
	assert.ErrorContains(t, err, "already exists")
}

func TestApplyTransferPartialAndFull(t *testing.T) {
	a := New(nil)
	tx := TransferMany("alice", []string{"bob", "carol"}, "30", 5)

	alice := existing(t, a, "alice", "100", 2)
	bob := existing(t, a, "bob", "1", 0)
	carol, err := a.GetRelevantData("carol", tx, absent("carol"))
	require.NoError(t, err)
	require.True(t, carol.AccountCreated)

	states := map[string]*ir.WrappedResponse{"alice": alice, "bob": bob, "carol": carol}
	resp, err := a.Apply(tx, states)
	require.NoError(t, err)

	assert.True(t, alice.IsPartial)
	assert.True(t, bob.IsPartial)
	assert.False(t, carol.IsPartial)

	require.NoError(t, a.UpdateAccountPartial(alice, alice.LocalCache, resp))
	require.NoError(t, a.UpdateAccountPartial(bob, bob.LocalCache, resp))
	require.NoError(t, a.UpdateAccountFull(carol, carol.LocalCache, resp))

	assert.Equal(t, "40", Balance(alice.Data))
	assert.Equal(t, ir.IRInt(3), alice.Data["nonce"])
	assert.Equal(t, "31", Balance(bob.Data))
	assert.Equal(t, "30", Balance(carol.Data))
	assert.Equal(t, ir.IRString("carol"), carol.Data["id"])

	assert.Equal(t, "100", Balance(alice.PrevDataCopy), "previous snapshot untouched")
}

func TestApplyTransferErrors(t *testing.T) {
	a := New(nil)

	_, err := a.Apply(Transfer("alice", "bob", "500", 5), map[string]*ir.WrappedResponse{
		"alice": existing(t, a, "alice", "100", 0),
		"bob":   existing(t, a, "bob", "0", 0),
	})
	assert.ErrorContains(t, err, "insufficient balance")

	tx := Transfer("ghost", "bob", "1", 5)
	ghost, err := a.GetRelevantData("ghost", tx, absent("ghost"))
	require.NoError(t, err)
	assert.False(t, ghost.AccountCreated)
	_, err = a.Apply(tx, map[string]*ir.WrappedResponse{
		"ghost": ghost,
		"bob":   existing(t, a, "bob", "0", 0),
	})
	assert.ErrorContains(t, err, "does not exist")

	seqTx := ir.MustTx(ir.IRObject{
		"txnType":      ir.IRString(TypeTransfer),
		"srcAct":       ir.IRString("alice"),
		"tgtAct":       ir.IRString("bob"),
		"txnAmt":       ir.IRString("1"),
		"seqNum":       ir.IRInt(7),
		"txnTimestamp": ir.IRInt(5),
	})
	_, err = a.Apply(seqTx, map[string]*ir.WrappedResponse{
		"alice": existing(t, a, "alice", "100", 2),
		"bob":   existing(t, a, "bob", "0", 0),
	})
	assert.ErrorContains(t, err, "seqNum")
}

func TestCanDebugDropTx(t *testing.T) {
	a := New(nil)
	assert.False(t, a.CanDebugDropTx(Create("alice", "1", 1)))
	assert.True(t, a.CanDebugDropTx(Transfer("alice", "bob", "1", 1)))
}

func TestReceiptsRecorded(t *testing.T) {
	a := New(ir.Blake3Hasher{})
	tx := Create("alice", "1", 1)

	require.NoError(t, a.TransactionReceiptPass(tx, nil, nil))
	require.NoError(t, a.TransactionReceiptFail(tx, nil, nil))

	got := a.Receipts()
	require.Len(t, got, 2)
	assert.Equal(t, ir.TxHash(ir.Blake3Hasher{}, tx), got[0].TxID)
	assert.Equal(t, ir.VerdictPass, got[0].Verdict)
	assert.Equal(t, ir.VerdictFail, got[1].Verdict)
}

func TestTimestampAndHashFromAccount(t *testing.T) {
	a := New(ir.Blake3Hasher{})
	data := ir.IRObject{"balance": ir.IRString("3"), "timestamp": ir.IRInt(42)}
	ts, hash, err := a.GetTimestampAndHashFromAccount(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)
	want, err := a.CalculateAccountHash(data)
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	ts, _, err = a.GetTimestampAndHashFromAccount(ir.IRObject{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
}

func TestAccountDebugValue(t *testing.T) {
	a := New(nil)
	w := ir.WrappedData{AccountID: "alice", Data: ir.IRObject{"balance": ir.IRString("12"), "nonce": ir.IRInt(3)}}
	assert.Equal(t, "alice balance=12 nonce=3", a.GetAccountDebugValue(w))
}

func TestClose(t *testing.T) {
	a := New(nil)
	assert.False(t, a.Closed())
	require.NoError(t, a.Close())
	assert.True(t, a.Closed())
	assert.Error(t, a.Close())
}
