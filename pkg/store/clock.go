package store

import (
	"sync"
	"time"
)

// convClocks assigns per-conversation timestamps that are strictly
// increasing even if the wall clock regresses, so the (created_at, id) order
// is total within a conversation.
type convClocks struct {
	mu   sync.Mutex
	last map[string]int64
}

func (c *convClocks) next(convKey string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]int64)
	}
	now := time.Now().UTC().UnixNano()
	if now <= c.last[convKey] {
		now = c.last[convKey] + 1
	}
	c.last[convKey] = now
	return now
}
