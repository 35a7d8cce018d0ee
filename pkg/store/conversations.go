package store

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/pebble"

	"talko/pkg/apperr"
	"talko/pkg/models"
)

func (s *Store) stageConvMeta(b *pebble.Batch, convKey, sender, receiver string, ts int64) {
	var c models.Conversation
	if v, ok, err := s.getRaw(ConvMetaKey(convKey)); err == nil && ok {
		if json.Unmarshal(v, &c) == nil {
			c.LastActivity = ts
		}
	}
	if c.Key == "" {
		a, bb, _ := models.SplitConversationKey(convKey)
		c = models.Conversation{Key: convKey, Participants: [2]string{a, bb}, CreatedAt: ts, LastActivity: ts}
	}
	nb, _ := json.Marshal(c)
	_ = b.Set([]byte(ConvMetaKey(convKey)), nb, nil)
}

func (s *Store) stageConvTouch(b *pebble.Batch, convKey string, ts int64) {
	if convKey == "" {
		return
	}
	var c models.Conversation
	if v, ok, err := s.getRaw(ConvMetaKey(convKey)); err == nil && ok {
		if json.Unmarshal(v, &c) == nil && ts > c.LastActivity {
			c.LastActivity = ts
			nb, _ := json.Marshal(c)
			_ = b.Set([]byte(ConvMetaKey(convKey)), nb, nil)
		}
	}
}

// GetConversation returns the stored metadata for a conversation key.
func (s *Store) GetConversation(convKey string) (*models.Conversation, error) {
	v, ok, err := s.getRaw(ConvMetaKey(convKey))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "get conversation failed", err)
	}
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns every conversation the identity participates
// in, most recently active first.
func (s *Store) ListConversations(identity string) ([]*models.Conversation, error) {
	keys, err := s.ListKeys(convPrefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "list conversations failed", err)
	}
	id := strings.ToLower(strings.TrimSpace(identity))
	var out []*models.Conversation
	for _, k := range keys {
		if !strings.HasSuffix(k, ":meta") {
			continue
		}
		v, ok, err := s.getRaw(k)
		if err != nil || !ok {
			continue
		}
		var c models.Conversation
		if json.Unmarshal(v, &c) != nil {
			continue
		}
		if c.Participants[0] != id && c.Participants[1] != id {
			continue
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity > out[j].LastActivity })
	return out, nil
}

// ListMessageVersions returns all stored versions for a message id in
// chronological order.
func (s *Store) ListMessageVersions(msgID string) ([]*models.Message, error) {
	keys, err := s.ListKeys(versionPrefix + msgID + ":")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "list versions failed", err)
	}
	out := make([]*models.Message, 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.getRaw(k)
		if err != nil || !ok {
			continue
		}
		var m models.Message
		if json.Unmarshal(v, &m) == nil {
			out = append(out, &m)
		}
	}
	return out, nil
}
