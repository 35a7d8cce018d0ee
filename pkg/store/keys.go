package store

import (
	"fmt"
	"strings"
)

// Key layout, one namespace per concern, all sortable by byte comparison:
//
//	conv:<key>:msg:<unix_nano_padded>-<seq>   canonical message row
//	conv:<key>:meta                           conversation metadata
//	idx:msg:<id>                              message id -> canonical row key
//	latest:msg:<id>                           latest message payload by id
//	version:msg:<id>:<unix_nano_padded>-<seq> append-only edit history
//	dedup:<key>:<token>                       append idempotency token -> id
//	friend:<a>|<b>                            friend edge for a canonical pair
const (
	convPrefix    = "conv:"
	idxPrefix     = "idx:msg:"
	latestPrefix  = "latest:msg:"
	versionPrefix = "version:msg:"
	dedupPrefix   = "dedup:"
	friendPrefix  = "friend:"
)

// orderKey renders the sortable suffix shared by message and version keys.
func orderKey(ts int64, seq uint64) string {
	return fmt.Sprintf("%020d-%06d", ts, seq)
}

// MsgKey builds the canonical row key for a message in a conversation.
func MsgKey(convKey string, ts int64, seq uint64) (string, error) {
	if convKey == "" {
		return "", fmt.Errorf("empty conversation key")
	}
	return convPrefix + convKey + ":msg:" + orderKey(ts, seq), nil
}

// VersionKey builds the history key for one version of a message.
func VersionKey(msgID string, ts int64, seq uint64) (string, error) {
	if msgID == "" {
		return "", fmt.Errorf("empty message id")
	}
	return versionPrefix + msgID + ":" + orderKey(ts, seq), nil
}

// ConvMetaKey builds the metadata key for a conversation.
func ConvMetaKey(convKey string) string { return convPrefix + convKey + ":meta" }

// ConvMsgPrefix is the scan prefix covering all message rows of a conversation.
func ConvMsgPrefix(convKey string) string { return convPrefix + convKey + ":msg:" }

// IdxKey builds the id -> row locator key.
func IdxKey(msgID string) string { return idxPrefix + msgID }

// LatestKey builds the latest-payload pointer key.
func LatestKey(msgID string) string { return latestPrefix + msgID }

// DedupKey builds the idempotency token key for a conversation.
func DedupKey(convKey, token string) string { return dedupPrefix + convKey + ":" + token }

// FriendKey builds the edge key for a canonical pair key (a|b).
func FriendKey(pairKey string) string { return friendPrefix + pairKey }

// OrderSuffix extracts the <ts>-<seq> suffix from a canonical message row
// key, used as the opaque pagination cursor position.
func OrderSuffix(rowKey string) string {
	i := strings.LastIndex(rowKey, ":msg:")
	if i < 0 {
		return ""
	}
	return rowKey[i+len(":msg:"):]
}
