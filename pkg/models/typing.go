package models

// TypingState is the single current-value typing record for a user. It has
// no history; every keystroke-debounce event overwrites it.
type TypingState struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
	// UpdatedAt is a server timestamp (ms). Consumers must treat a record
	// older than the configured TTL as is_typing=false regardless of the
	// stored flag.
	UpdatedAt int64 `json:"updated_at"`
}
