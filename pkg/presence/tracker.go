package presence

import (
	"context"
	"strings"
	"sync"
	"time"

	"talko/pkg/logger"
	"talko/pkg/models"
)

// Tracker keeps per-conversation typing flags in memory. State is
// last-write-wins and decays: a typing=true flag older than the TTL reads as
// false, so a client that crashed mid-keystroke never stays "typing"
// forever. Nothing here is persisted.
type Tracker struct {
	ttl time.Duration

	mu       sync.Mutex
	convs    map[string]map[string]models.TypingState
	watchers map[string]map[*Watcher]struct{}
}

// Watcher receives typing-state changes for one conversation.
type Watcher struct {
	conv string
	ch   chan models.TypingState
}

// States returns the watcher channel. Closed by Unwatch.
func (w *Watcher) States() <-chan models.TypingState { return w.ch }

// NewTracker creates a tracker whose typing flags expire after ttl.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Tracker{
		ttl:      ttl,
		convs:    make(map[string]map[string]models.TypingState),
		watchers: make(map[string]map[*Watcher]struct{}),
	}
}

// SetTyping records userID's typing flag in the conversation. Later writes
// win regardless of flag value; UpdatedAt restarts the decay clock.
func (t *Tracker) SetTyping(convKey, userID string, typing bool) {
	id := strings.ToLower(strings.TrimSpace(userID))
	st := models.TypingState{UserID: id, IsTyping: typing, UpdatedAt: time.Now().UnixMilli()}

	t.mu.Lock()
	users, ok := t.convs[convKey]
	if !ok {
		users = make(map[string]models.TypingState)
		t.convs[convKey] = users
	}
	if typing {
		users[id] = st
	} else {
		// a cleared flag carries no information beyond the event itself
		delete(users, id)
		if len(users) == 0 {
			delete(t.convs, convKey)
		}
	}
	t.notifyLocked(convKey, st)
	t.mu.Unlock()
	typingGauge.Set(float64(t.activeCount()))
}

// Snapshot reports who is currently typing in the conversation. Flags past
// the TTL are treated as cleared and pruned on the way out.
func (t *Tracker) Snapshot(convKey string) []models.TypingState {
	cutoff := time.Now().Add(-t.ttl).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.convs[convKey]
	out := make([]models.TypingState, 0, len(users))
	for id, st := range users {
		if st.UpdatedAt < cutoff {
			delete(users, id)
			continue
		}
		out = append(out, st)
	}
	if len(users) == 0 {
		delete(t.convs, convKey)
	}
	return out
}

// Watch registers for typing changes in a conversation. Delivery is
// best-effort: a watcher that stops draining misses updates rather than
// blocking writers.
func (t *Tracker) Watch(convKey string) *Watcher {
	w := &Watcher{conv: convKey, ch: make(chan models.TypingState, 16)}
	t.mu.Lock()
	set, ok := t.watchers[convKey]
	if !ok {
		set = make(map[*Watcher]struct{})
		t.watchers[convKey] = set
	}
	set[w] = struct{}{}
	t.mu.Unlock()
	return w
}

// Unwatch removes the watcher and closes its channel. After Unwatch returns
// the tracker performs no further sends on it.
func (t *Tracker) Unwatch(w *Watcher) {
	t.mu.Lock()
	if set, ok := t.watchers[w.conv]; ok {
		if _, live := set[w]; live {
			delete(set, w)
			if len(set) == 0 {
				delete(t.watchers, w.conv)
			}
			close(w.ch)
		}
	}
	t.mu.Unlock()
}

// Run sweeps expired flags until ctx is done, emitting the implied
// typing=false to watchers so clients see indicators clear without another
// keystroke from the stale user.
func (t *Tracker) Run(ctx context.Context) {
	tick := time.NewTicker(t.ttl / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	now := time.Now().UnixMilli()
	cutoff := now - t.ttl.Milliseconds()

	t.mu.Lock()
	for conv, users := range t.convs {
		for id, st := range users {
			if st.UpdatedAt >= cutoff {
				continue
			}
			delete(users, id)
			logger.Debug("typing_expired", "conv", conv, "user", id)
			t.notifyLocked(conv, models.TypingState{UserID: id, IsTyping: false, UpdatedAt: now})
		}
		if len(users) == 0 {
			delete(t.convs, conv)
		}
	}
	t.mu.Unlock()
	typingGauge.Set(float64(t.activeCount()))
}

func (t *Tracker) notifyLocked(convKey string, st models.TypingState) {
	for w := range t.watchers[convKey] {
		select {
		case w.ch <- st:
		default:
		}
	}
}

func (t *Tracker) activeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, users := range t.convs {
		n += len(users)
	}
	return n
}
