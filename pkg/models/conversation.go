package models

import "strings"

// Conversation is the stored metadata for a participant pair, kept under the
// conversation key the way thread metadata is kept next to its messages.
type Conversation struct {
	Key string `json:"key"`
	// Participants holds the two identities in canonical (sorted) order.
	Participants [2]string `json:"participants"`
	CreatedAt    int64     `json:"created_at,omitempty"`
	// LastActivity is bumped on every committed mutation (ns).
	LastActivity int64 `json:"last_activity,omitempty"`
}

// ConversationKey derives the order-independent partition key for a pair of
// identities: both lowercased, sorted, joined with '|'. Commutative by
// construction, so (a,b) and (b,a) resolve to the same partition.
func ConversationKey(a, b string) string {
	x := strings.ToLower(strings.TrimSpace(a))
	y := strings.ToLower(strings.TrimSpace(b))
	if x > y {
		x, y = y, x
	}
	return x + "|" + y
}

// SplitConversationKey returns the two canonical participants of a key.
func SplitConversationKey(key string) (string, string, bool) {
	i := strings.IndexByte(key, '|')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
