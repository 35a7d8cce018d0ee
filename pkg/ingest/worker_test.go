package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"talko/pkg/apperr"
	"talko/pkg/friends"
	"talko/pkg/models"
	"talko/pkg/notify"
	"talko/pkg/store"
)

type pipeline struct {
	store  *store.Store
	ledger *friends.Ledger
	hub    *notify.Hub
	queue  *Queue
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	hub := notify.NewHub(16)
	ledger := friends.NewLedger(s, hub)
	q := NewQueue(16)
	w := NewWorker(q, s, ledger, hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	return &pipeline{store: s, ledger: ledger, hub: hub, queue: q}
}

func befriend(t *testing.T, p *pipeline, a, b string) {
	t.Helper()
	if _, err := p.ledger.Request(a, b); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := p.ledger.Accept(b, a); err != nil {
		t.Fatalf("Accept: %v", err)
	}
}

func await(t *testing.T, reply <-chan Result) Result {
	t.Helper()
	select {
	case res := <-reply:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never replied")
		return Result{}
	}
}

func TestAppendThroughQueue(t *testing.T) {
	p := startPipeline(t)
	befriend(t, p, "alice", "bob")

	sub := p.hub.Subscribe(models.ConversationKey("alice", "bob"))
	defer sub.Close()

	reply, err := p.queue.TryEnqueue(&Op{
		Type:    OpAppend,
		Actor:   "alice",
		Peer:    "bob",
		Payload: []byte("hello there"),
	})
	if err != nil {
		t.Fatalf("TryEnqueue: %v", err)
	}
	res := await(t, reply)
	if res.Err != nil {
		t.Fatalf("append failed: %v", res.Err)
	}
	if res.Msg.Text != "hello there" {
		t.Fatalf("unexpected message %+v", res.Msg)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != notify.EventMessageNew || ev.Msg.ID != res.Msg.ID {
			t.Fatalf("unexpected hub event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("commit not published to hub")
	}
}

func TestAppendRequiresFriendship(t *testing.T) {
	p := startPipeline(t)

	reply, err := p.queue.TryEnqueue(&Op{
		Type:    OpAppend,
		Actor:   "alice",
		Peer:    "bob",
		Payload: []byte("we never met"),
	})
	if err != nil {
		t.Fatalf("TryEnqueue: %v", err)
	}
	res := await(t, reply)
	if !apperr.IsCode(res.Err, apperr.CodePermission) {
		t.Fatalf("expected permission error for strangers, got %v", res.Err)
	}

	// pending is not enough
	if _, err := p.ledger.Request("alice", "bob"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	reply, _ = p.queue.TryEnqueue(&Op{Type: OpAppend, Actor: "alice", Peer: "bob", Payload: []byte("still strangers")})
	if res := await(t, reply); !apperr.IsCode(res.Err, apperr.CodePermission) {
		t.Fatalf("pending request must not allow appends, got %v", res.Err)
	}
}

func TestMutationsThroughQueue(t *testing.T) {
	p := startPipeline(t)
	befriend(t, p, "alice", "bob")

	reply, _ := p.queue.TryEnqueue(&Op{Type: OpAppend, Actor: "alice", Peer: "bob", Payload: []byte("v1")})
	msg := await(t, reply).Msg
	if msg == nil {
		t.Fatalf("append did not commit")
	}

	reply, _ = p.queue.TryEnqueue(&Op{Type: OpEdit, Actor: "alice", MsgID: msg.ID, Payload: []byte("v2")})
	if res := await(t, reply); res.Err != nil || res.Msg.Text != "v2" {
		t.Fatalf("edit through queue failed: %+v", res)
	}

	reply, _ = p.queue.TryEnqueue(&Op{Type: OpReact, Actor: "bob", MsgID: msg.ID, Payload: []byte(models.ReactionSymbols[0])})
	if res := await(t, reply); res.Err != nil || res.Msg.Reactions["bob"] == "" {
		t.Fatalf("reaction through queue failed: %+v", res)
	}

	reply, _ = p.queue.TryEnqueue(&Op{Type: OpSoftDelete, Actor: "alice", MsgID: msg.ID})
	if res := await(t, reply); res.Err != nil || res.Msg.DeletedAt == 0 {
		t.Fatalf("soft delete through queue failed: %+v", res)
	}
}

func TestHardDeletePublishesRemoval(t *testing.T) {
	p := startPipeline(t)
	befriend(t, p, "alice", "bob")

	reply, _ := p.queue.TryEnqueue(&Op{Type: OpAppend, Actor: "alice", Peer: "bob", Payload: []byte("purge me")})
	msg := await(t, reply).Msg

	sub := p.hub.Subscribe(msg.Conversation)
	defer sub.Close()

	reply, _ = p.queue.TryEnqueue(&Op{Type: OpHardDelete, Actor: "alice", MsgID: msg.ID})
	if res := await(t, reply); res.Err != nil {
		t.Fatalf("hard delete: %v", res.Err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != notify.EventMessageRemoved || ev.Msg.ID != msg.ID || !ev.Msg.HardDeleted {
			t.Fatalf("unexpected removal event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("removal not published")
	}
}

func TestQueueFull(t *testing.T) {
	// no worker draining this queue
	q := NewQueue(1)
	if _, err := q.TryEnqueue(&Op{Type: OpAppend, Actor: "a", Peer: "b"}); err != nil {
		t.Fatalf("first enqueue should fit: %v", err)
	}
	if _, err := q.TryEnqueue(&Op{Type: OpAppend, Actor: "a", Peer: "b"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
}

func TestEnqueueRespectsContext(t *testing.T) {
	q := NewQueue(1)
	if _, err := q.TryEnqueue(&Op{Type: OpAppend, Actor: "a", Peer: "b"}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Enqueue(ctx, &Op{Type: OpAppend, Actor: "a", Peer: "b"}); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
