package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsDeterministic(t *testing.T) {
	t.Parallel()

	a := New(42)
	b := New(42)
	for range 16 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestDeriveSeparatesSteps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DeriveSeed(7, 3), DeriveSeed(7, 3))
	assert.NotEqual(t, DeriveSeed(7, 3), DeriveSeed(7, 4))
	assert.NotEqual(t, DeriveSeed(7, 3), DeriveSeed(8, 3))

	a := Derive(7, 10)
	b := Derive(7, 10)
	assert.Equal(t, a.IntN(1000), b.IntN(1000))
}
