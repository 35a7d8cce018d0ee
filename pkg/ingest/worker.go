package ingest

import (
	"context"

	"talko/pkg/apperr"
	"talko/pkg/friends"
	"talko/pkg/logger"
	"talko/pkg/notify"
	"talko/pkg/store"
)

// Worker is the single consumer of the ingest queue. It applies each op to
// the store, answers the enqueuing handler through the op's reply channel,
// and publishes the committed mutation to the fan-out hub. One worker per
// queue keeps commit order and hub order identical.
type Worker struct {
	store  *store.Store
	ledger *friends.Ledger
	hub    *notify.Hub
	queue  *Queue
}

func NewWorker(q *Queue, s *store.Store, l *friends.Ledger, hub *notify.Hub) *Worker {
	return &Worker{store: s, ledger: l, hub: hub, queue: q}
}

// Run consumes the queue until ctx is done or the queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-w.queue.Out():
			if !ok {
				return
			}
			w.process(it)
		}
	}
}

func (w *Worker) process(it *Item) {
	defer it.Done()
	op := it.Op
	res, ev := w.apply(op)
	if op.Reply != nil {
		select {
		case op.Reply <- res:
		default:
		}
	}
	if res.Err != nil {
		opFailTotal.WithLabelValues(string(op.Type)).Inc()
		logger.Debug("ingest_op_rejected", "type", string(op.Type), "actor", op.Actor, "err", res.Err.Error())
		return
	}
	opTotal.WithLabelValues(string(op.Type)).Inc()
	if w.hub != nil && res.Msg != nil {
		w.hub.Publish(notify.Event{Type: ev, Topic: res.Msg.Conversation, Msg: res.Msg})
	}
}

// apply runs one op against the store and reports the event type the
// mutation maps to.
func (w *Worker) apply(op *Op) (Result, notify.EventType) {
	payload := string(op.Payload)
	switch op.Type {
	case OpAppend:
		if err := w.requireFriends(op.Actor, op.Peer); err != nil {
			return Result{Err: err}, ""
		}
		msg, err := w.store.Append(op.Actor, op.Peer, payload, op.Dedup)
		return Result{Msg: msg, Err: err}, notify.EventMessageNew
	case OpEdit:
		msg, err := w.store.MutateText(op.MsgID, op.Actor, payload)
		return Result{Msg: msg, Err: err}, notify.EventMessageUpdated
	case OpReact:
		msg, err := w.store.ToggleReaction(op.MsgID, op.Actor, payload)
		return Result{Msg: msg, Err: err}, notify.EventMessageUpdated
	case OpSoftDelete:
		msg, err := w.store.SoftDelete(op.MsgID, op.Actor)
		return Result{Msg: msg, Err: err}, notify.EventMessageRemoved
	case OpHardDelete:
		// look up the row first so the removal event can name the
		// conversation after the row is gone
		msg, err := w.store.Get(op.MsgID)
		if err != nil {
			return Result{Err: err}, ""
		}
		if err := w.store.HardDelete(op.MsgID, op.Actor); err != nil {
			return Result{Err: err}, ""
		}
		removed := msg.Clone()
		removed.Text = ""
		removed.HardDeleted = true
		return Result{Msg: removed}, notify.EventMessageRemoved
	}
	return Result{Err: apperr.Validation("unknown operation type")}, ""
}

// requireFriends is the append gate: both sides must hold an accepted
// friend edge before messages flow between them.
func (w *Worker) requireFriends(actor, peer string) error {
	if w.ledger == nil {
		return nil
	}
	ok, err := w.ledger.IsFriend(actor, peer)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Permission("users are not friends")
	}
	return nil
}
