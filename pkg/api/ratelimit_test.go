package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterMap_PruneDropsStaleEntries(t *testing.T) {
	rl := newRateLimiterMap(60)
	defer rl.stop()

	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")

	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.prune(time.Now().Add(-rateLimitEntryTTL))

	rl.mu.Lock()
	_, stale := rl.limiters["10.0.0.1"]
	_, fresh := rl.limiters["10.0.0.2"]
	rl.mu.Unlock()

	assert.False(t, stale, "stale entry must be pruned")
	assert.True(t, fresh, "fresh entry must survive pruning")
}

func TestRateLimiterMap_StopEndsCleanup(t *testing.T) {
	rl := newRateLimiterMap(60)
	rl.stop()

	select {
	case <-rl.done:
	default:
		t.Fatal("stop must release the cleanup goroutine")
	}
}
