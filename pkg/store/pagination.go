package store

import (
	"encoding/base64"
	"regexp"

	"talko/pkg/apperr"
)

// DefaultPageLimit and MaxPageLimit bound conversation query pages.
const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100
)

var cursorRe = regexp.MustCompile(`^\d{20}-\d{6}$`)

// EncodeCursor wraps an order suffix into an opaque cursor string.
func EncodeCursor(orderSuffix string) string {
	if orderSuffix == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(orderSuffix))
}

// DecodeCursor unwraps an opaque cursor back into an order suffix. An empty
// cursor means "from the newest message".
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", apperr.Validation("malformed cursor")
	}
	s := string(b)
	if !cursorRe.MatchString(s) {
		return "", apperr.Validation("malformed cursor")
	}
	return s, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
