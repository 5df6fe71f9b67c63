// Package summary keeps the running data and transaction summaries an
// application builds through its optional summarizer hooks.
//
// Both blobs are opaque to the core. Applications without the hooks get a
// Summary whose blobs stay empty.
package summary

import (
	"sync"

	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/ir"
)

// Snapshot is a copy of both blobs.
type Snapshot struct {
	Data ir.IRObject `json:"data"`
	Tx   ir.IRObject `json:"tx"`
}

// Summary holds the blobs and the hooks that fold into them. Safe for
// concurrent use.
type Summary struct {
	data app.DataSummarizer
	tx   app.TxSummarizer

	mu       sync.Mutex
	dataBlob ir.IRObject
	txBlob   ir.IRObject
}

// New creates empty blobs for a's summarizer hooks.
func New(a app.App) *Summary {
	s := &Summary{dataBlob: ir.IRObject{}, txBlob: ir.IRObject{}}
	s.data, _ = a.(app.DataSummarizer)
	s.tx, _ = a.(app.TxSummarizer)
	return s
}

// Enabled reports whether the application summarizes anything.
func (s *Summary) Enabled() bool {
	return s.data != nil || s.tx != nil
}

// InitAccount adds an account to the data blob.
func (s *Summary) InitAccount(data ir.IRObject) {
	if s.data == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DataSummaryInit(s.dataBlob, data)
}

// UpdateAccount folds one committed account change into the data blob.
// before is nil for an account the change created.
func (s *Summary) UpdateAccount(before, after ir.IRObject) {
	if s.data == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DataSummaryUpdate(s.dataBlob, before, after)
}

// UpdateTx folds a committed transaction into the tx blob.
func (s *Summary) UpdateTx(tx ir.Tx, states map[string]*ir.WrappedResponse) {
	if s.tx == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx.TxSummaryUpdate(s.txBlob, tx, states)
}

// Snapshot copies both blobs.
func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Data: s.dataBlob.Clone(), Tx: s.txBlob.Clone()}
}
