package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(clock, 1, 2)

	ok, _ := rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)

	ok, wait := rl.Allow("u1", ActionSendMessage)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	// other users have their own bucket
	ok, _ = rl.Allow("u2", ActionSendMessage)
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(clock, 1, 1)

	rl.Allow("u1", ActionPayment)
	clock.Advance(2 * time.Hour)
	rl.Cleanup()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	assert.Empty(t, rl.buckets)
}
