// Package testutil holds deterministic sources shared by tests across packages.
package testutil

import "sync"

// TxClock hands out strictly increasing transaction timestamps.
//
// Each call to Next advances by Step from Base. Two clocks built with the same
// arguments produce the same sequence, which keeps golden traces stable.
// Safe for concurrent use.
type TxClock struct {
	mu   sync.Mutex
	base int64
	step int64
	n    int64
}

// NewTxClock creates a clock whose first timestamp is base+step.
// A step below 1 is treated as 1.
func NewTxClock(base, step int64) *TxClock {
	if step < 1 {
		step = 1
	}
	return &TxClock{base: base, step: step}
}

// Next returns the next timestamp.
func (c *TxClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.base + c.n*c.step
}

// Current returns the last timestamp handed out, or base if none was.
func (c *TxClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + c.n*c.step
}

// Reset rewinds the clock so the next call returns base+step again.
func (c *TxClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
