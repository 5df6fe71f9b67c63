package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs(t *testing.T) {
	gen := NewSequenceIDs("lease")
	assert.Equal(t, "lease-0001", gen.Generate())
	assert.Equal(t, "lease-0002", gen.Generate())

	assert.Equal(t, "id-0001", NewSequenceIDs("").Generate())
}
