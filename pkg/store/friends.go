package store

import (
	"encoding/json"
	"strings"

	"talko/pkg/apperr"
	"talko/pkg/models"
)

// Friend-edge persistence. The state machine lives in pkg/friends; these are
// the raw typed accessors over the friend: namespace.

// SaveFriendEdge writes the edge under its canonical pair key.
func (s *Store) SaveFriendEdge(e *models.FriendEdge) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.setRaw(FriendKey(e.A+"|"+e.B), b); err != nil {
		return apperr.Wrap(apperr.CodeTransient, "save friend edge failed", err)
	}
	return nil
}

// GetFriendEdge loads the edge for a canonical pair key (a|b); the second
// return is false when no edge exists.
func (s *Store) GetFriendEdge(pairKey string) (*models.FriendEdge, bool, error) {
	v, ok, err := s.getRaw(FriendKey(pairKey))
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeTransient, "get friend edge failed", err)
	}
	if !ok {
		return nil, false, nil
	}
	var e models.FriendEdge
	if err := json.Unmarshal(v, &e); err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

// DeleteFriendEdge removes the edge for a canonical pair key.
func (s *Store) DeleteFriendEdge(pairKey string) error {
	if err := s.deleteRaw(FriendKey(pairKey)); err != nil {
		return apperr.Wrap(apperr.CodeTransient, "delete friend edge failed", err)
	}
	return nil
}

// ListFriendEdges returns every edge touching the identity.
func (s *Store) ListFriendEdges(identity string) ([]*models.FriendEdge, error) {
	keys, err := s.ListKeys(friendPrefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "list friend edges failed", err)
	}
	id := strings.ToLower(strings.TrimSpace(identity))
	var out []*models.FriendEdge
	for _, k := range keys {
		v, ok, err := s.getRaw(k)
		if err != nil || !ok {
			continue
		}
		var e models.FriendEdge
		if json.Unmarshal(v, &e) != nil {
			continue
		}
		if e.A != id && e.B != id {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}
