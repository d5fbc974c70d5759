package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(10, 3)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.1.1.1"), "burst request %d", i)
	}
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "andere IPs sind unabhängig")

	now = now.Add(6 * time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(0, 3)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("ip"))
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(10, 3)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(10 * time.Minute)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.Prune(5*time.Minute))
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "fresh")
}
