package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialPolicy(t *testing.T) {
	p := Exponential(200*time.Millisecond, 4)

	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(4))
	assert.Equal(t, 3000*time.Millisecond, p.Total())
}

func TestFixedPolicy(t *testing.T) {
	p := Fixed(200*time.Millisecond, 10)

	for attempt := 1; attempt <= 10; attempt++ {
		assert.Equal(t, 200*time.Millisecond, p.Delay(attempt))
		assert.True(t, p.Allows(attempt))
	}
	assert.False(t, p.Allows(11))
	assert.False(t, p.Allows(0))
	assert.Equal(t, 2*time.Second, p.Total())
}

func TestZeroPolicy(t *testing.T) {
	var p Policy

	assert.Equal(t, time.Duration(0), p.Delay(1))
	assert.False(t, p.Allows(1))
}
