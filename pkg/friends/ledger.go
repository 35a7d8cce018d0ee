package friends

import (
	"strings"
	"sync"
	"time"

	"talko/pkg/apperr"
	"talko/pkg/logger"
	"talko/pkg/models"
	"talko/pkg/notify"
	"talko/pkg/store"
)

// Ledger is the friend-relationship state machine over the friend: namespace.
// Edges are symmetric: one row per pair regardless of direction, with
// RequestedBy recording the initiator so only the other side may accept.
type Ledger struct {
	store *store.Store
	hub   *notify.Hub

	// serializes request/accept/decline transitions per pair
	mu sync.Mutex
}

func NewLedger(s *store.Store, hub *notify.Hub) *Ledger {
	return &Ledger{store: s, hub: hub}
}

func pairKey(a, b string) (string, error) {
	if err := models.ValidateIdentity(a); err != nil {
		return "", err
	}
	if err := models.ValidateIdentity(b); err != nil {
		return "", err
	}
	key := models.ConversationKey(a, b)
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return "", apperr.Validation("cannot befriend yourself")
	}
	return key, nil
}

// Request creates a pending edge from requester to target. Re-requesting an
// already pending pair is a no-op; requesting an accepted pair fails.
func (l *Ledger) Request(requester, target string) (*models.FriendEdge, error) {
	key, err := pairKey(requester, target)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok, err := l.store.GetFriendEdge(key); err != nil {
		return nil, err
	} else if ok {
		if e.State == models.FriendAccepted {
			return nil, apperr.Validation("already friends")
		}
		return e, nil
	}
	a, b, _ := models.SplitConversationKey(key)
	e := &models.FriendEdge{
		A:           a,
		B:           b,
		State:       models.FriendPending,
		RequestedBy: strings.ToLower(strings.TrimSpace(requester)),
		UpdatedAt:   time.Now().UnixMilli(),
	}
	if err := l.store.SaveFriendEdge(e); err != nil {
		return nil, err
	}
	logger.Info("friend_requested", "pair", key, "by", e.RequestedBy)
	l.publish(notify.EventFriendRequest, e)
	return e, nil
}

// Accept transitions a pending edge to accepted. Only the side that did not
// send the request may accept; the requester accepting their own request is
// a permission error.
func (l *Ledger) Accept(acceptor, peer string) (*models.FriendEdge, error) {
	key, err := pairKey(acceptor, peer)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok, err := l.store.GetFriendEdge(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("no friend request between these users")
	}
	if e.State == models.FriendAccepted {
		return e, nil
	}
	if e.RequestedBy == strings.ToLower(strings.TrimSpace(acceptor)) {
		return nil, apperr.Permission("requester cannot accept their own request")
	}
	e.State = models.FriendAccepted
	e.UpdatedAt = time.Now().UnixMilli()
	if err := l.store.SaveFriendEdge(e); err != nil {
		return nil, err
	}
	logger.Info("friend_accepted", "pair", key)
	l.publish(notify.EventFriendAccepted, e)
	return e, nil
}

// Decline removes a pending edge. Either side may decline; the requester
// declining withdraws the request. Declining a missing or accepted edge is a
// not-found error (accepted edges are removed with Remove).
func (l *Ledger) Decline(who, peer string) error {
	key, err := pairKey(who, peer)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok, err := l.store.GetFriendEdge(key)
	if err != nil {
		return err
	}
	if !ok || e.State != models.FriendPending {
		return apperr.NotFound("no pending request between these users")
	}
	if err := l.store.DeleteFriendEdge(key); err != nil {
		return err
	}
	logger.Info("friend_declined", "pair", key, "by", strings.ToLower(strings.TrimSpace(who)))
	return nil
}

// Remove deletes an accepted edge. Removing a missing edge is idempotent.
func (l *Ledger) Remove(who, peer string) error {
	key, err := pairKey(who, peer)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok, err := l.store.GetFriendEdge(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if e.State != models.FriendAccepted {
		return apperr.NotFound("no friendship between these users")
	}
	if err := l.store.DeleteFriendEdge(key); err != nil {
		return err
	}
	logger.Info("friend_removed", "pair", key, "by", strings.ToLower(strings.TrimSpace(who)))
	return nil
}

// IsFriend reports whether the pair has an accepted edge.
func (l *Ledger) IsFriend(a, b string) (bool, error) {
	key, err := pairKey(a, b)
	if err != nil {
		return false, err
	}
	e, ok, err := l.store.GetFriendEdge(key)
	if err != nil {
		return false, err
	}
	return ok && e.State == models.FriendAccepted, nil
}

// ListFriends returns the peers of identity with an accepted edge.
func (l *Ledger) ListFriends(identity string) ([]string, error) {
	return l.listPeers(identity, func(e *models.FriendEdge) bool {
		return e.State == models.FriendAccepted
	})
}

// ListPending returns peers whose request to identity is still pending.
// Requests identity sent are not included.
func (l *Ledger) ListPending(identity string) ([]string, error) {
	id := strings.ToLower(strings.TrimSpace(identity))
	return l.listPeers(identity, func(e *models.FriendEdge) bool {
		return e.State == models.FriendPending && e.RequestedBy != id
	})
}

// ListSent returns peers identity has a pending request out to.
func (l *Ledger) ListSent(identity string) ([]string, error) {
	id := strings.ToLower(strings.TrimSpace(identity))
	return l.listPeers(identity, func(e *models.FriendEdge) bool {
		return e.State == models.FriendPending && e.RequestedBy == id
	})
}

func (l *Ledger) listPeers(identity string, keep func(*models.FriendEdge) bool) ([]string, error) {
	if err := models.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	edges, err := l.store.ListFriendEdges(identity)
	if err != nil {
		return nil, err
	}
	id := strings.ToLower(strings.TrimSpace(identity))
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		if keep(e) {
			out = append(out, e.Peer(id))
		}
	}
	return out, nil
}

// publish notifies both sides of the edge on their user topics.
func (l *Ledger) publish(typ notify.EventType, e *models.FriendEdge) {
	if l.hub == nil {
		return
	}
	for _, id := range []string{e.A, e.B} {
		l.hub.Publish(notify.Event{Type: typ, Topic: notify.UserTopic(id), Edge: e})
	}
}
