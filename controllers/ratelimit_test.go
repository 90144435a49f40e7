package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("tryon:1", 3, time.Minute), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("tryon:1", 3, time.Minute))

	// other keys are counted independently
	assert.True(t, rl.Allow("tryon:2", 3, time.Minute))
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter()

	assert.True(t, rl.Allow("tryon:1", 1, 10*time.Millisecond))
	assert.False(t, rl.Allow("tryon:1", 1, 10*time.Millisecond))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("tryon:1", 1, 10*time.Millisecond))
}
