package projector

import (
	"sync"

	"talko/pkg/logger"
	"talko/pkg/models"
	"talko/pkg/notify"
	"talko/pkg/store"
)

// EventKind classifies a view update.
type EventKind string

const (
	// KindSnapshot replaces the client's entire rendered list.
	KindSnapshot EventKind = "snapshot"
	// KindUpsert inserts or replaces one message by id.
	KindUpsert EventKind = "upsert"
	// KindRemove drops one message by id.
	KindRemove EventKind = "remove"
)

// ViewEvent is one incremental update for a subscribed client.
type ViewEvent struct {
	Kind EventKind         `json:"kind"`
	List []*models.Message `json:"list,omitempty"`
	Msg  *models.Message   `json:"message,omitempty"`
	// Cursor is set on snapshots; passing it to LoadOlder continues the
	// history.
	Cursor string `json:"cursor,omitempty"`
}

// View is a live projection of one conversation for one client. It holds
// the newest page in memory, folds hub events into it, and falls back to a
// fresh snapshot whenever its hub subscription gaps.
type View struct {
	conv  string
	store *store.Store
	sub   *notify.Subscription

	events chan ViewEvent
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	msgs   []*models.Message // newest first
	cursor string            // continuation for LoadOlder
}

// Open loads the newest page of the conversation, subscribes to its hub
// topic, and starts folding events. The first event on Events is always a
// snapshot.
func Open(s *store.Store, hub *notify.Hub, convKey string, limit int) (*View, error) {
	v := &View{
		conv:   convKey,
		store:  s,
		sub:    hub.Subscribe(convKey),
		events: make(chan ViewEvent, 64),
		done:   make(chan struct{}),
	}
	if err := v.reload(limit); err != nil {
		v.sub.Close()
		return nil, err
	}
	go v.pump()
	return v, nil
}

// Events returns the update stream. Closed by Close.
func (v *View) Events() <-chan ViewEvent { return v.events }

// Conversation returns the projected conversation key.
func (v *View) Conversation() string { return v.conv }

// Snapshot returns a copy of the currently projected list, newest first.
func (v *View) Snapshot() []*models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*models.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Close detaches from the hub and stops the fold goroutine. Safe to call
// multiple times.
func (v *View) Close() {
	v.once.Do(func() {
		v.sub.Close()
		close(v.done)
	})
}

// LoadOlder extends the projection one page further into history and
// returns just the newly loaded batch, newest first. An empty batch means
// history is exhausted.
func (v *View) LoadOlder(limit int) ([]*models.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cursor == "" {
		return nil, nil
	}
	page, err := v.store.Query(v.conv, v.cursor, limit)
	if err != nil {
		return nil, err
	}
	v.cursor = page.NextCursor
	for _, m := range page.Messages {
		v.upsertLocked(m)
	}
	return page.Messages, nil
}

// reload replaces the projected list with a fresh newest page and queues a
// snapshot event.
func (v *View) reload(limit int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	page, err := v.store.Query(v.conv, "", limit)
	if err != nil {
		return err
	}
	v.msgs = page.Messages
	v.cursor = page.NextCursor
	v.emit(ViewEvent{Kind: KindSnapshot, List: v.snapshotLocked(), Cursor: v.cursor})
	return nil
}

func (v *View) snapshotLocked() []*models.Message {
	out := make([]*models.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// pump folds hub events into the projection until Close, then closes the
// consumer channel. All emits after Open happen on this goroutine.
func (v *View) pump() {
	defer close(v.events)
	for {
		select {
		case <-v.done:
			return
		case ev, ok := <-v.sub.Events():
			if !ok {
				return
			}
			v.fold(ev)
		}
	}
}

func (v *View) fold(ev notify.Event) {
	switch ev.Type {
	case notify.EventMessageNew, notify.EventMessageUpdated:
		if ev.Msg == nil {
			return
		}
		if ev.Msg.Deleted() {
			v.removeByID(ev.Msg.ID)
			return
		}
		v.mu.Lock()
		v.upsertLocked(ev.Msg)
		v.emit(ViewEvent{Kind: KindUpsert, Msg: ev.Msg})
		v.mu.Unlock()
	case notify.EventMessageRemoved:
		if ev.Msg == nil {
			return
		}
		v.removeByID(ev.Msg.ID)
	case notify.EventGap:
		// missed events; the in-memory list can no longer be trusted
		logger.Debug("projector_resync", "conv", v.conv, "seq", ev.Seq)
		size := len(v.Snapshot())
		if size == 0 {
			size = store.DefaultPageLimit
		}
		if err := v.reload(size); err != nil {
			logger.Warn("projector_resync_failed", "conv", v.conv, "err", err.Error())
		}
	}
}

// upsertLocked inserts or replaces by id, keeping the list ordered newest
// first by CreatedAt. Per-conversation timestamps are strictly increasing,
// so CreatedAt alone is a total order here.
func (v *View) upsertLocked(m *models.Message) {
	for i, cur := range v.msgs {
		if cur.ID == m.ID {
			v.msgs[i] = m
			return
		}
	}
	at := len(v.msgs)
	for i, cur := range v.msgs {
		if m.CreatedAt > cur.CreatedAt {
			at = i
			break
		}
	}
	v.msgs = append(v.msgs, nil)
	copy(v.msgs[at+1:], v.msgs[at:])
	v.msgs[at] = m
}

func (v *View) removeByID(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, cur := range v.msgs {
		if cur.ID == id {
			v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
			v.emit(ViewEvent{Kind: KindRemove, Msg: cur})
			return
		}
	}
}

// emit queues the event without ever blocking the fold goroutine. A client
// that stops draining loses incremental updates; the next gap or reconnect
// resynchronizes it.
func (v *View) emit(ev ViewEvent) {
	select {
	case v.events <- ev:
	default:
	}
}
