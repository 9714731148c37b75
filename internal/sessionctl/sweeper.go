package sessionctl

import (
	"time"

	"github.com/idropr/core/internal/session"
	"github.com/idropr/core/internal/token"
)

const (
	sweepMaxPerShard = 2048
	sweepTimeBudget  = 10 * time.Millisecond
)

// Sweep removes expired sessions from every shard and returns how many
// were removed. Each shard is scanned under a read lock to collect
// expired keys, bounded by both a time budget and a count cap so a
// single sweep cannot stall checks behind a large shard; the collected
// keys are then removed under a brief write lock.
func (c *Controller) Sweep() int {
	removed := 0
	for _, sh := range c.shards {
		removed += c.sweepShard(sh)
	}
	return removed
}

func (c *Controller) sweepShard(sh *shard) int {
	stop := c.now().Add(sweepTimeBudget)
	toRemove := make([]token.Key, 0, sweepMaxPerShard)

	sh.mu.RLock()
	for key, sess := range sh.sessions {
		if sess.IsExpired(c.now()) == session.Expired {
			toRemove = append(toRemove, key)
		}
		if len(toRemove) >= sweepMaxPerShard || c.now().After(stop) {
			break
		}
	}
	sh.mu.RUnlock()

	if len(toRemove) == 0 {
		return 0
	}

	sh.mu.Lock()
	for _, key := range toRemove {
		delete(sh.sessions, key)
	}
	sh.mu.Unlock()

	return len(toRemove)
}

// Watch runs Sweep on interval until stop is closed, reporting the
// number of sessions removed on each pass to onSweep (nil is a no-op).
// Call it from its own goroutine.
func (c *Controller) Watch(interval time.Duration, stop <-chan struct{}, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			removed := c.Sweep()
			if onSweep != nil && removed > 0 {
				onSweep(removed)
			}
		}
	}
}
