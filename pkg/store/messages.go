package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"talko/pkg/apperr"
	"talko/pkg/logger"
	"talko/pkg/models"
)

// seq disambiguates rows that would otherwise share a nanosecond timestamp.
var seq uint64

func genMsgID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// Append validates and appends a new message to the conversation between
// sender and receiver. The store assigns id and created_at. If dedupToken
// was seen before for this conversation the original message is returned
// instead of appending a duplicate.
func (s *Store) Append(sender, receiver, text, dedupToken string) (*models.Message, error) {
	if err := models.ValidateIdentity(sender); err != nil {
		return nil, err
	}
	if err := models.ValidateIdentity(receiver); err != nil {
		return nil, err
	}
	sender = models.CanonicalIdentity(sender)
	receiver = models.CanonicalIdentity(receiver)
	if sender == receiver {
		return nil, apperr.Validation("sender and receiver must differ")
	}
	if err := models.ValidateText(text); err != nil {
		return nil, err
	}
	convKey := models.ConversationKey(sender, receiver)

	if dedupToken != "" {
		if prev, ok, err := s.lookupDedup(convKey, dedupToken); err != nil {
			return nil, apperr.Wrap(apperr.CodeTransient, "dedup lookup failed", err)
		} else if ok {
			logger.Info("append_deduplicated", "conv", convKey, "token", dedupToken, "id", prev.ID)
			return prev, nil
		}
	}

	ts := s.clock.next(convKey)
	sq := atomic.AddUint64(&seq, 1)
	m := &models.Message{
		ID:           genMsgID(),
		Conversation: convKey,
		Sender:       sender,
		Receiver:     receiver,
		Text:         text,
		CreatedAt:    ts,
		DedupToken:   dedupToken,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	rowKey, err := MsgKey(convKey, ts, sq)
	if err != nil {
		return nil, err
	}
	verKey, err := VersionKey(m.ID, ts, sq)
	if err != nil {
		return nil, err
	}

	b := new(pebble.Batch)
	_ = b.Set([]byte(rowKey), data, nil)
	_ = b.Set([]byte(verKey), data, nil)
	_ = b.Set([]byte(LatestKey(m.ID)), data, nil)
	_ = b.Set([]byte(IdxKey(m.ID)), []byte(rowKey), nil)
	if dedupToken != "" {
		_ = b.Set([]byte(DedupKey(convKey, dedupToken)), []byte(m.ID), nil)
	}
	s.stageConvMeta(b, convKey, sender, receiver, ts)
	if err := s.applyBatch(b); err != nil {
		logger.Error("append_failed", "conv", convKey, "key", rowKey, "error", err)
		return nil, apperr.Wrap(apperr.CodeTransient, "append failed", err)
	}
	appendsTotal.Inc()
	logger.Info("message_appended", "conv", convKey, "id", m.ID)
	return m, nil
}

// Get returns the latest version of a message by id. Soft-deleted messages
// are still returned here; Query is the view that filters them.
func (s *Store) Get(msgID string) (*models.Message, error) {
	v, ok, err := s.getRaw(LatestKey(msgID))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "get failed", err)
	}
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid stored message: %w", err)
	}
	return &m, nil
}

// mutate applies fn to the latest version of msgID under the per-message
// lock and commits the result as a new version plus an in-place rewrite of
// the canonical row. fn returning (false, nil) means no-op; the unchanged
// message is returned and nothing is written.
func (s *Store) mutate(msgID string, fn func(*models.Message) (bool, error)) (*models.Message, error) {
	mu := s.locks.lock(msgID)
	defer mu.Unlock()

	m, err := s.Get(msgID)
	if err != nil {
		return nil, err
	}
	if m.HardDeleted {
		return nil, apperr.NotFound("message not found")
	}
	changed, err := fn(m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	rowKeyB, ok, err := s.getRaw(IdxKey(msgID))
	if err != nil || !ok {
		return nil, apperr.Wrap(apperr.CodeTransient, "message row locator missing", err)
	}
	ts := time.Now().UTC().UnixNano()
	sq := atomic.AddUint64(&seq, 1)
	verKey, err := VersionKey(msgID, ts, sq)
	if err != nil {
		return nil, err
	}

	b := new(pebble.Batch)
	_ = b.Set(rowKeyB, data, nil)
	_ = b.Set([]byte(verKey), data, nil)
	_ = b.Set([]byte(LatestKey(msgID)), data, nil)
	s.stageConvTouch(b, m.Conversation, ts)
	if err := s.applyBatch(b); err != nil {
		logger.Error("mutate_failed", "id", msgID, "error", err)
		return nil, apperr.Wrap(apperr.CodeTransient, "mutation failed", err)
	}
	return m, nil
}

// MutateText replaces the message text. Only the author may edit; editing a
// soft-deleted message is NotFound. Re-applying the same text is a no-op.
func (s *Store) MutateText(msgID, editorID, newText string) (*models.Message, error) {
	if err := models.ValidateText(newText); err != nil {
		return nil, err
	}
	return s.mutate(msgID, func(m *models.Message) (bool, error) {
		if m.DeletedAt != 0 {
			return false, apperr.NotFound("message not found")
		}
		if models.CanonicalIdentity(editorID) != m.Sender {
			return false, apperr.Permission("only the author may edit")
		}
		if m.Text == newText {
			return false, nil
		}
		m.Text = newText
		m.EditedAt = time.Now().UTC().UnixNano()
		mutationsTotal.WithLabelValues("edit").Inc()
		return true, nil
	})
}

// ToggleReaction sets userID's reaction to symbol, or clears it when the
// same symbol is already present. Any conversation participant may react.
func (s *Store) ToggleReaction(msgID, userID, symbol string) (*models.Message, error) {
	if err := models.ValidateReaction(symbol); err != nil {
		return nil, err
	}
	userID = models.CanonicalIdentity(userID)
	return s.mutate(msgID, func(m *models.Message) (bool, error) {
		if m.DeletedAt != 0 {
			return false, apperr.NotFound("message not found")
		}
		if !m.Participant(userID) {
			return false, apperr.Permission("not a conversation participant")
		}
		if m.Reactions != nil && m.Reactions[userID] == symbol {
			delete(m.Reactions, userID)
			if len(m.Reactions) == 0 {
				m.Reactions = nil
			}
		} else {
			if m.Reactions == nil {
				m.Reactions = make(map[string]string, 2)
			}
			m.Reactions[userID] = symbol
		}
		mutationsTotal.WithLabelValues("reaction").Inc()
		return true, nil
	})
}

// SoftDelete marks the message deleted. Author only; deleting twice is a
// no-op with the same final state.
func (s *Store) SoftDelete(msgID, requesterID string) (*models.Message, error) {
	return s.mutate(msgID, func(m *models.Message) (bool, error) {
		if models.CanonicalIdentity(requesterID) != m.Sender {
			return false, apperr.Permission("only the author may delete")
		}
		if m.DeletedAt != 0 {
			return false, nil
		}
		m.DeletedAt = time.Now().UTC().UnixNano()
		mutationsTotal.WithLabelValues("soft_delete").Inc()
		return true, nil
	})
}

// HardDelete removes the canonical row and replaces the latest pointer with
// a terminal tombstone so the id is never reused. Author only; terminal and
// idempotent.
func (s *Store) HardDelete(msgID, requesterID string) error {
	mu := s.locks.lock(msgID)
	defer mu.Unlock()

	m, err := s.Get(msgID)
	if err != nil {
		return err
	}
	if m.HardDeleted {
		return nil
	}
	if models.CanonicalIdentity(requesterID) != m.Sender {
		return apperr.Permission("only the author may delete")
	}

	tomb := &models.Message{
		ID:           m.ID,
		Conversation: m.Conversation,
		Sender:       m.Sender,
		Receiver:     m.Receiver,
		CreatedAt:    m.CreatedAt,
		DeletedAt:    time.Now().UTC().UnixNano(),
		HardDeleted:  true,
	}
	data, err := json.Marshal(tomb)
	if err != nil {
		return fmt.Errorf("failed to marshal tombstone: %w", err)
	}
	rowKeyB, ok, err := s.getRaw(IdxKey(msgID))
	if err != nil || !ok {
		return apperr.Wrap(apperr.CodeTransient, "message row locator missing", err)
	}

	b := new(pebble.Batch)
	_ = b.Delete(rowKeyB, nil)
	_ = b.Set([]byte(LatestKey(msgID)), data, nil)
	_ = b.Delete([]byte(IdxKey(msgID)), nil)
	if err := s.applyBatch(b); err != nil {
		logger.Error("hard_delete_failed", "id", msgID, "error", err)
		return apperr.Wrap(apperr.CodeTransient, "hard delete failed", err)
	}
	mutationsTotal.WithLabelValues("hard_delete").Inc()
	logger.Info("message_hard_deleted", "conv", m.Conversation, "id", msgID)
	return nil
}

// Page is one result of Query.
type Page struct {
	Messages   []*models.Message
	NextCursor string
}

// Query returns non-deleted messages of a conversation ordered by
// (created_at, id) descending, resuming after cursor. Items mutated or
// deleted after a cursor was issued are reflected live; there is no
// snapshot isolation.
func (s *Store) Query(convKey, cursor string, limit int) (*Page, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "store not ready", err)
	}
	limit = ClampLimit(limit)
	pos, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	prefix := []byte(ConvMsgPrefix(convKey))
	upper := append(append([]byte(nil), prefix...), 0xff)
	if pos != "" {
		// resume strictly below the last returned row
		upper = append(append([]byte(nil), prefix...), []byte(pos)...)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "iterator failed", err)
	}
	defer iter.Close()

	page := &Page{}
	var lastVisited string
	exhausted := true
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		lastVisited = string(append([]byte(nil), iter.Key()...))
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("query_invalid_row", "key", lastVisited, "error", err)
			continue
		}
		if m.Conversation != convKey {
			// a row whose key merely extends this conversation's prefix
			continue
		}
		if m.Deleted() {
			continue
		}
		page.Messages = append(page.Messages, &m)
		if len(page.Messages) >= limit {
			exhausted = false
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "query failed", err)
	}
	if !exhausted && lastVisited != "" {
		page.NextCursor = EncodeCursor(OrderSuffix(lastVisited))
	}
	queriesTotal.Inc()
	return page, nil
}

func (s *Store) lookupDedup(convKey, token string) (*models.Message, bool, error) {
	v, ok, err := s.getRaw(DedupKey(convKey, token))
	if err != nil || !ok {
		return nil, false, err
	}
	m, err := s.Get(string(v))
	if err != nil {
		// token points at a purged message; treat as unseen
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}
