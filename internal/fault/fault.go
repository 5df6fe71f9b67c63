// Package fault decides when debug fault injection fires.
//
// The orchestrator asks a Decider at fixed transition points whether a
// configured chance should fire. Production uses Random; tests use Never or
// Script to make every decision explicit.
package fault

import (
	"math/rand"
	"sync"
)

// Knob names a fault-injection point.
type Knob string

const (
	// LoseTx drops a transaction before its keys are fetched.
	LoseTx Knob = "loseTx"
	// FailNoRepairTx forces the apply hook result to be treated as a failure.
	FailNoRepairTx Knob = "failNoRepairTx"
	// FailReceipt turns a pass verdict into a rollback at the commit point.
	FailReceipt Knob = "failReceipt"
	// VoteFlip inverts a consensus verdict before it is acted on.
	VoteFlip Knob = "voteFlip"
	// IgnoreVote drops the first vote delivered for a transaction.
	IgnoreVote Knob = "ignoreVote"
	// IgnoreReceipt drops the first commit or rollback receipt delivered
	// for a transaction.
	IgnoreReceipt Knob = "ignoreReceipt"
)

// Decider reports whether a fault with the given probability fires now.
type Decider interface {
	Fire(knob Knob, chance float64) bool
}

// Never is a Decider that never fires.
type Never struct{}

func (Never) Fire(Knob, float64) bool { return false }

// Random fires with the configured probability from a seeded source.
// Safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a Random decider. A fixed seed gives a reproducible sequence.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Fire(_ Knob, chance float64) bool {
	if chance <= 0 {
		return false
	}
	if chance >= 1 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < chance
}

// Script replays predetermined decisions per knob, ignoring the chance.
// Once a knob's script is exhausted it stops firing.
type Script struct {
	mu        sync.Mutex
	decisions map[Knob][]bool
	calls     map[Knob]int
}

// NewScript creates an empty Script.
func NewScript() *Script {
	return &Script{
		decisions: make(map[Knob][]bool),
		calls:     make(map[Knob]int),
	}
}

// On appends decisions for knob and returns the script for chaining.
func (s *Script) On(knob Knob, decisions ...bool) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[knob] = append(s.decisions[knob], decisions...)
	return s
}

func (s *Script) Fire(knob Knob, _ float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[knob]++
	queue := s.decisions[knob]
	if len(queue) == 0 {
		return false
	}
	s.decisions[knob] = queue[1:]
	return queue[0]
}

// Calls returns how many times knob was consulted.
func (s *Script) Calls(knob Knob) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[knob]
}
