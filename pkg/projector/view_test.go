package projector

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"talko/pkg/models"
	"talko/pkg/notify"
	"talko/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, n int) []*models.Message {
	t.Helper()
	out := make([]*models.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.Append("alice", "bob", fmt.Sprintf("message %d", i), "")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func nextEvent(t *testing.T, v *View) ViewEvent {
	t.Helper()
	select {
	case ev := <-v.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no view event arrived")
		return ViewEvent{}
	}
}

func TestOpenEmitsSnapshot(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, 3)
	hub := notify.NewHub(16)

	v, err := Open(s, hub, models.ConversationKey("alice", "bob"), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()

	ev := nextEvent(t, v)
	if ev.Kind != KindSnapshot {
		t.Fatalf("first event should be a snapshot, got %s", ev.Kind)
	}
	if len(ev.List) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(ev.List))
	}
	if ev.List[0].Text != "message 2" || ev.List[2].Text != "message 0" {
		t.Fatalf("snapshot not newest-first: %q .. %q", ev.List[0].Text, ev.List[2].Text)
	}
	if ev.Cursor != "" {
		t.Fatalf("full history should have no continuation cursor, got %q", ev.Cursor)
	}
}

func TestFoldUpsertAndRemove(t *testing.T) {
	s := openTestStore(t)
	msgs := seed(t, s, 2)
	hub := notify.NewHub(16)
	conv := models.ConversationKey("alice", "bob")

	v, err := Open(s, hub, conv, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()
	nextEvent(t, v) // snapshot

	appended, err := s.Append("bob", "alice", "a reply", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	hub.Publish(notify.Event{Type: notify.EventMessageNew, Topic: conv, Msg: appended})

	ev := nextEvent(t, v)
	if ev.Kind != KindUpsert || ev.Msg.ID != appended.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	snap := v.Snapshot()
	if len(snap) != 3 || snap[0].ID != appended.ID {
		t.Fatalf("new message not at head of projection")
	}

	edited, err := s.MutateText(msgs[0].ID, "alice", "edited text")
	if err != nil {
		t.Fatalf("MutateText: %v", err)
	}
	hub.Publish(notify.Event{Type: notify.EventMessageUpdated, Topic: conv, Msg: edited})
	ev = nextEvent(t, v)
	if ev.Kind != KindUpsert || ev.Msg.Text != "edited text" {
		t.Fatalf("edit not folded: %+v", ev)
	}
	if len(v.Snapshot()) != 3 {
		t.Fatalf("edit must replace in place, list grew to %d", len(v.Snapshot()))
	}

	deleted, err := s.SoftDelete(msgs[1].ID, "alice")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	hub.Publish(notify.Event{Type: notify.EventMessageRemoved, Topic: conv, Msg: deleted})
	ev = nextEvent(t, v)
	if ev.Kind != KindRemove || ev.Msg.ID != msgs[1].ID {
		t.Fatalf("delete not folded: %+v", ev)
	}
	if len(v.Snapshot()) != 2 {
		t.Fatalf("expected 2 messages after removal, got %d", len(v.Snapshot()))
	}
}

func TestUpdateCarryingDeletionRemoves(t *testing.T) {
	s := openTestStore(t)
	msgs := seed(t, s, 1)
	hub := notify.NewHub(16)
	conv := models.ConversationKey("alice", "bob")

	v, err := Open(s, hub, conv, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()
	nextEvent(t, v)

	deleted, err := s.SoftDelete(msgs[0].ID, "alice")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	// even mislabelled as an update, a deleted message leaves the view
	hub.Publish(notify.Event{Type: notify.EventMessageUpdated, Topic: conv, Msg: deleted})
	ev := nextEvent(t, v)
	if ev.Kind != KindRemove {
		t.Fatalf("expected remove, got %+v", ev)
	}
}

func TestGapTriggersResync(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, 2)
	hub := notify.NewHub(16)
	conv := models.ConversationKey("alice", "bob")

	v, err := Open(s, hub, conv, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()
	nextEvent(t, v)

	// a write the view never hears about
	if _, err := s.Append("bob", "alice", "missed this one", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	hub.Publish(notify.Event{Type: notify.EventGap, Topic: conv})

	ev := nextEvent(t, v)
	if ev.Kind != KindSnapshot {
		t.Fatalf("gap should force a snapshot, got %s", ev.Kind)
	}
	// reload keeps the projection size, so the oldest message falls off
	if len(ev.List) != 2 || ev.List[0].Text != "missed this one" {
		t.Fatalf("resync did not pick up the missed write: %d messages", len(ev.List))
	}
}

func TestLoadOlder(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, 7)
	hub := notify.NewHub(16)

	v, err := Open(s, hub, models.ConversationKey("alice", "bob"), 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()

	ev := nextEvent(t, v)
	if len(ev.List) != 3 || ev.Cursor == "" {
		t.Fatalf("expected partial snapshot with cursor, got %d msgs cursor %q", len(ev.List), ev.Cursor)
	}

	batch, err := v.LoadOlder(3)
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if len(batch) != 3 || batch[0].Text != "message 3" {
		t.Fatalf("unexpected older batch: %d msgs", len(batch))
	}
	if len(v.Snapshot()) != 6 {
		t.Fatalf("projection should now hold 6 messages, got %d", len(v.Snapshot()))
	}

	batch, err = v.LoadOlder(3)
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if len(batch) != 1 || batch[0].Text != "message 0" {
		t.Fatalf("final page wrong: %d msgs", len(batch))
	}

	// exhausted
	batch, err = v.LoadOlder(3)
	if err != nil || batch != nil {
		t.Fatalf("exhausted history should return nil, got %v / %v", batch, err)
	}
}

func TestCloseStopsEvents(t *testing.T) {
	s := openTestStore(t)
	hub := notify.NewHub(16)

	v, err := Open(s, hub, models.ConversationKey("alice", "bob"), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	nextEvent(t, v)
	v.Close()
	v.Close() // idempotent

	select {
	case _, ok := <-v.Events():
		if ok {
			t.Fatalf("unexpected event after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("Events not closed after Close")
	}
}
