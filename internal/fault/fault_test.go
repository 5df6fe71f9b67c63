package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeverFires(t *testing.T) {
	assert.False(t, Never{}.Fire(FailReceipt, 1))
}

func TestRandomBounds(t *testing.T) {
	r := NewRandom(1)
	for i := 0; i < 100; i++ {
		assert.False(t, r.Fire(LoseTx, 0))
		assert.True(t, r.Fire(LoseTx, 1))
	}
}

func TestRandomIsReproducible(t *testing.T) {
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Fire(VoteFlip, 0.5), b.Fire(VoteFlip, 0.5))
	}
}

func TestScriptReplaysPerKnob(t *testing.T) {
	s := NewScript().On(FailReceipt, true, false).On(VoteFlip, true)

	assert.True(t, s.Fire(FailReceipt, 0))
	assert.True(t, s.Fire(VoteFlip, 0))
	assert.False(t, s.Fire(FailReceipt, 0))
	assert.False(t, s.Fire(FailReceipt, 0), "exhausted script stops firing")
	assert.False(t, s.Fire(LoseTx, 1))

	assert.Equal(t, 3, s.Calls(FailReceipt))
	assert.Equal(t, 1, s.Calls(LoseTx))
}
