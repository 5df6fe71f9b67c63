package bankapp

import (
	"github.com/holiman/uint256"

	"github.com/roach88/shardstate/internal/ir"
)

// Summary blob fields.
const (
	SummaryAccounts     = "accounts"
	SummaryTotalBalance = "totalBalance"
	SummaryTxCount      = "txCount"
	SummaryVolume       = "volume"
)

func (a *App) DataSummaryInit(blob ir.IRObject, data ir.IRObject) {
	a.DataSummaryUpdate(blob, nil, data)
}

// DataSummaryUpdate keeps the account count and the total balance.
func (a *App) DataSummaryUpdate(blob ir.IRObject, before, after ir.IRObject) {
	count, _ := blob[SummaryAccounts].(ir.IRInt)
	total := summedBalance(blob, SummaryTotalBalance)
	if before != nil {
		count--
		if b, err := balanceOf(before); err == nil {
			total.Sub(total, b)
		}
	}
	if after != nil {
		count++
		if b, err := balanceOf(after); err == nil {
			total.Add(total, b)
		}
	}
	blob[SummaryAccounts] = count
	blob[SummaryTotalBalance] = ir.IRString(total.Dec())
}

// TxSummaryUpdate counts transactions and the value they moved: the amount
// of a create, or the amount times the number of targets of a transfer.
func (a *App) TxSummaryUpdate(blob ir.IRObject, tx ir.Tx, _ map[string]*ir.WrappedResponse) {
	t, err := parse(tx)
	if err != nil {
		return
	}
	count, _ := blob[SummaryTxCount].(ir.IRInt)
	volume := summedBalance(blob, SummaryVolume)
	moved := new(uint256.Int).Set(t.amount)
	if t.kind == TypeTransfer {
		moved.Mul(moved, uint256.NewInt(uint64(len(t.targets))))
	}
	volume.Add(volume, moved)
	blob[SummaryTxCount] = count + 1
	blob[SummaryVolume] = ir.IRString(volume.Dec())
}

func summedBalance(blob ir.IRObject, field string) *uint256.Int {
	v, err := uint256.FromDecimal(blob.GetString(field))
	if err != nil {
		return new(uint256.Int)
	}
	return v
}
