package models

import (
	"strings"

	"talko/pkg/apperr"
)

// ReactionSymbols is the fixed set a participant may react with.
var ReactionSymbols = []string{"❤️", "😢", "😮", "😠"}

// MaxTextLen bounds message text; anything longer is rejected at the boundary.
const MaxTextLen = 4096

// IsReactionSymbol reports whether s is one of the allowed symbols.
func IsReactionSymbol(s string) bool {
	for _, r := range ReactionSymbols {
		if s == r {
			return true
		}
	}
	return false
}

// ValidateIdentity rejects empty identities and ones containing the key
// layout's separators. '|' joins the two sides of a conversation key; ':'
// delimits key namespaces, and an identity carrying it would make one
// conversation's scan prefix a byte-prefix of another's rows.
func ValidateIdentity(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Validation("identity is required")
	}
	if strings.ContainsAny(id, "|:") {
		return apperr.Validation("identity must not contain '|' or ':'")
	}
	return nil
}

// CanonicalIdentity is the stored form of an identity: trimmed and
// lowercased, the same folding ConversationKey applies to its halves.
func CanonicalIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateText rejects empty or whitespace-only message text and enforces
// the maximum length.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("text must not be empty")
	}
	if len(text) > MaxTextLen {
		return apperr.Validation("text exceeds maximum length")
	}
	return nil
}

// ValidateReaction rejects symbols outside the fixed enum.
func ValidateReaction(symbol string) error {
	if !IsReactionSymbol(symbol) {
		return apperr.Validation("unknown reaction symbol")
	}
	return nil
}
