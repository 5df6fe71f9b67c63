package receipt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/shardstate/internal/app/mock_app"
	"github.com/roach88/shardstate/internal/ir"
)

func testStates() map[string]*ir.WrappedResponse {
	return map[string]*ir.WrappedResponse{
		"alice": {
			WrappedData: ir.WrappedData{
				AccountID: "alice",
				StateID:   "h1",
				Data:      ir.IRObject{"balance": ir.IRString("90")},
			},
			PrevStateID:  "h0",
			PrevDataCopy: ir.IRObject{"balance": ir.IRString("100")},
		},
	}
}

func TestDispatchPassExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock_app.NewMockApp(ctrl)
	d := New(a)

	tx := ir.MustTx(ir.IRObject{"type": ir.IRString("transfer")})
	resp := &ir.ApplyResponse{TxID: "tx-1", TxTimestamp: 10}

	a.EXPECT().TransactionReceiptPass(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, d.Dispatch("tx-1", ir.VerdictPass, tx, testStates(), resp))

	err := d.Dispatch("tx-1", ir.VerdictPass, tx, testStates(), resp)
	assert.True(t, errors.Is(err, ErrAlreadyDispatched))

	err = d.Dispatch("tx-1", ir.VerdictFail, tx, testStates(), resp)
	assert.True(t, errors.Is(err, ErrAlreadyDispatched))

	v, ok := d.Sent("tx-1")
	assert.True(t, ok)
	assert.Equal(t, ir.VerdictPass, v)
	assert.Equal(t, 1, d.Count())
}

func TestDispatchFailWithoutResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock_app.NewMockApp(ctrl)
	d := New(a)

	a.EXPECT().TransactionReceiptFail(gomock.Any(), gomock.Any(), gomock.Nil()).Return(nil)

	tx := ir.MustTx(ir.IRObject{"type": ir.IRString("transfer")})
	require.NoError(t, d.Dispatch("tx-2", ir.VerdictFail, tx, testStates(), nil))
}

func TestDispatchHookSeesCopies(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock_app.NewMockApp(ctrl)
	d := New(a)

	states := testStates()
	resp := &ir.ApplyResponse{
		TxID:              "tx-3",
		StateTableResults: []ir.StateTableObject{{AccountID: "alice", TxID: "tx-3"}},
	}

	a.EXPECT().TransactionReceiptPass(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ ir.Tx, ws map[string]*ir.WrappedResponse, r *ir.ApplyResponse) error {
			ws["alice"].Data["balance"] = ir.IRString("0")
			ws["mallory"] = &ir.WrappedResponse{}
			r.StateTableResults[0].TxID = "forged"
			return nil
		})

	tx := ir.MustTx(ir.IRObject{"type": ir.IRString("transfer")})
	require.NoError(t, d.Dispatch("tx-3", ir.VerdictPass, tx, states, resp))

	assert.Equal(t, ir.IRString("90"), states["alice"].Data["balance"])
	assert.NotContains(t, states, "mallory")
	assert.Equal(t, "tx-3", resp.StateTableResults[0].TxID)
}

func TestDispatchHookErrorAndPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock_app.NewMockApp(ctrl)
	d := New(a)
	tx := ir.MustTx(ir.IRObject{"type": ir.IRString("transfer")})

	a.EXPECT().TransactionReceiptFail(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	err := d.Dispatch("tx-4", ir.VerdictFail, tx, nil, nil)
	require.Error(t, err)
	assert.True(t, IsHookError(err))
	assert.Contains(t, err.Error(), "disk full")

	a.EXPECT().TransactionReceiptPass(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ir.Tx, map[string]*ir.WrappedResponse, *ir.ApplyResponse) error {
			panic("boom")
		})
	err = d.Dispatch("tx-5", ir.VerdictPass, tx, nil, &ir.ApplyResponse{TxID: "tx-5"})
	require.Error(t, err)
	assert.True(t, IsHookError(err))
	assert.Contains(t, err.Error(), "boom")

	_, sent := d.Sent("tx-5")
	assert.True(t, sent, "a failed hook still consumes the receipt")
}

func TestDispatchUnknownVerdict(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := New(mock_app.NewMockApp(ctrl))

	err := d.Dispatch("tx-6", ir.Verdict("maybe"), ir.MustTx(ir.IRObject{}), nil, nil)
	require.Error(t, err)
	_, sent := d.Sent("tx-6")
	assert.False(t, sent)
}
