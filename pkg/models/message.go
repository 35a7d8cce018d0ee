package models

import "strings"

// Message is one entry in a two-party conversation log. CreatedAt is
// assigned by the store, never by clients, so ordering is immune to client
// clock skew. Reactions maps a participant identity to a single symbol.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
	Text         string `json:"text"`
	// CreatedAt is a server timestamp (ns), strictly increasing within a
	// conversation; immutable after append.
	CreatedAt int64 `json:"created_at"`
	// EditedAt is set on the first text edit (ns).
	EditedAt int64 `json:"edited_at,omitempty"`
	// Reactions: identity -> symbol; at most one symbol per identity.
	Reactions map[string]string `json:"reactions,omitempty"`
	// DeletedAt marks soft deletion (ns); soft-deleted messages are excluded
	// from projected views but keep their versions.
	DeletedAt int64 `json:"deleted_at,omitempty"`
	// HardDeleted is terminal; the id must never be reused.
	HardDeleted bool `json:"hard_deleted,omitempty"`
	// DedupToken is an optional client-generated idempotency token for
	// retried appends.
	DedupToken string `json:"dedup_token,omitempty"`
}

// Deleted reports whether the message is excluded from views.
func (m *Message) Deleted() bool { return m.DeletedAt != 0 || m.HardDeleted }

// Participant reports whether id is one of the two conversation parties.
// Stored identities are canonical; the compare folds case so a caller that
// skipped canonicalization still matches.
func (m *Message) Participant(id string) bool {
	return id != "" && (strings.EqualFold(id, m.Sender) || strings.EqualFold(id, m.Receiver))
}

// Clone returns a deep copy so callers can hand messages across goroutines
// without sharing the reactions map.
func (m *Message) Clone() *Message {
	c := *m
	if m.Reactions != nil {
		c.Reactions = make(map[string]string, len(m.Reactions))
		for k, v := range m.Reactions {
			c.Reactions[k] = v
		}
	}
	return &c
}
