package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"talko/pkg/apperr"
	"talko/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendThenQuery(t *testing.T) {
	s := openTestStore(t)

	m, err := s.Append("alice", "bob", "hello", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.ID == "" || m.CreatedAt == 0 {
		t.Fatalf("store must assign id and created_at, got %+v", m)
	}
	if m.Conversation != models.ConversationKey("bob", "alice") {
		t.Fatalf("conversation key not canonical: %s", m.Conversation)
	}

	page, err := s.Query(m.Conversation, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != m.ID {
		t.Fatalf("expected the appended message back, got %+v", page.Messages)
	}
}

func TestAppendValidation(t *testing.T) {
	s := openTestStore(t)

	cases := []struct {
		name             string
		sender, receiver string
		text             string
	}{
		{"empty sender", "", "bob", "hi"},
		{"empty text", "alice", "bob", "   "},
		{"self message", "alice", "alice", "hi"},
		{"pipe in identity", "a|b", "bob", "hi"},
		{"colon in sender", "bob:msg:x", "alice", "hi"},
		{"colon in receiver", "alice", "bob:meta", "hi"},
		{"cased self message", "Alice", "alice", "hi"},
	}
	for _, tc := range cases {
		if _, err := s.Append(tc.sender, tc.receiver, tc.text, ""); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestQueryIgnoresSiblingPrefixRows(t *testing.T) {
	s := openTestStore(t)
	conv := models.ConversationKey("alice", "bob")

	mine, err := s.Append("alice", "bob", "genuine", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A conversation key that extends conv's row prefix can no longer be
	// produced through Append, but rows under one may still exist from
	// before identities rejected ':'. Plant them directly.
	sibling := conv + ":msg:x"
	foreign := &models.Message{
		ID:           "msg_foreign",
		Conversation: sibling,
		Sender:       "alice",
		Receiver:     "bob:msg:x",
		Text:         "other room",
		CreatedAt:    time.Now().UnixNano(),
	}
	data, err := json.Marshal(foreign)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rowKey, err := MsgKey(sibling, foreign.CreatedAt, 1)
	if err != nil {
		t.Fatalf("MsgKey: %v", err)
	}
	if err := s.setRaw(rowKey, data); err != nil {
		t.Fatalf("setRaw row: %v", err)
	}
	if err := s.setRaw(ConvMetaKey(sibling), []byte(`{"key":"`+sibling+`"}`)); err != nil {
		t.Fatalf("setRaw meta: %v", err)
	}

	page, err := s.Query(conv, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != mine.ID {
		t.Fatalf("query leaked sibling keyspace rows: %+v", page.Messages)
	}
	for _, m := range page.Messages {
		if m.Conversation != conv {
			t.Fatalf("row from conversation %q returned for %q", m.Conversation, conv)
		}
	}
}

func TestMixedCaseIdentities(t *testing.T) {
	s := openTestStore(t)

	m, err := s.Append("Alice", "Bob", "hello", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.Sender != "alice" || m.Receiver != "bob" {
		t.Fatalf("identities not canonical: %q -> %q", m.Sender, m.Receiver)
	}
	if m.Conversation != "alice|bob" {
		t.Fatalf("conversation key %q", m.Conversation)
	}

	out, err := s.ToggleReaction(m.ID, "Bob", models.ReactionSymbols[0])
	if err != nil {
		t.Fatalf("ToggleReaction as Bob: %v", err)
	}
	if out.Reactions["bob"] != models.ReactionSymbols[0] {
		t.Fatalf("reaction stored under %v, want canonical key", out.Reactions)
	}

	if _, err := s.MutateText(m.ID, "ALICE", "edited"); err != nil {
		t.Fatalf("MutateText as ALICE: %v", err)
	}
	if _, err := s.SoftDelete(m.ID, "AlIcE"); err != nil {
		t.Fatalf("SoftDelete as AlIcE: %v", err)
	}
}

func TestQueryDescendingOrder(t *testing.T) {
	s := openTestStore(t)
	conv := models.ConversationKey("alice", "bob")

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := s.Append("alice", "bob", "msg", "")
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		ids = append(ids, m.ID)
	}

	page, err := s.Query(conv, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(page.Messages))
	}
	for i, m := range page.Messages {
		want := ids[len(ids)-1-i]
		if m.ID != want {
			t.Fatalf("position %d: got %s want %s", i, m.ID, want)
		}
		if i > 0 && m.CreatedAt >= page.Messages[i-1].CreatedAt {
			t.Fatalf("timestamps not strictly descending at %d", i)
		}
	}
}

func TestQueryPagination(t *testing.T) {
	s := openTestStore(t)
	conv := models.ConversationKey("alice", "bob")

	for i := 0; i < 7; i++ {
		if _, err := s.Append("alice", "bob", "msg", ""); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := s.Query(conv, cursor, 3)
		if err != nil {
			t.Fatalf("Query page %d: %v", pages, err)
		}
		for _, m := range page.Messages {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 distinct messages across pages, got %d", len(seen))
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages of size 3, got %d", pages)
	}
}

func TestQueryMalformedCursor(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Query("alice|bob", "!!!not-a-cursor", 0); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected validation error for malformed cursor, got %v", err)
	}
}

func TestEditByAuthorOnly(t *testing.T) {
	s := openTestStore(t)
	m, err := s.Append("alice", "bob", "original", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := s.MutateText(m.ID, "bob", "hacked"); !apperr.IsCode(err, apperr.CodePermission) {
		t.Fatalf("non-author edit: expected permission error, got %v", err)
	}

	edited, err := s.MutateText(m.ID, "alice", "corrected")
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Text != "corrected" || edited.EditedAt == 0 {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if edited.CreatedAt != m.CreatedAt {
		t.Fatalf("edit must not change created_at")
	}

	versions, err := s.ListMessageVersions(m.ID)
	if err != nil {
		t.Fatalf("ListMessageVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions after one edit, got %d", len(versions))
	}
	if versions[0].Text != "original" || versions[1].Text != "corrected" {
		t.Fatalf("version history wrong: %q then %q", versions[0].Text, versions[1].Text)
	}
}

func TestEditSameTextNoOp(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.Append("alice", "bob", "same", "")

	out, err := s.MutateText(m.ID, "alice", "same")
	if err != nil {
		t.Fatalf("MutateText: %v", err)
	}
	if out.EditedAt != 0 {
		t.Fatalf("identical text must be a no-op, got EditedAt=%d", out.EditedAt)
	}
	versions, _ := s.ListMessageVersions(m.ID)
	if len(versions) != 1 {
		t.Fatalf("no-op must not add a version, got %d", len(versions))
	}
}

func TestReactionToggle(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.Append("alice", "bob", "react to me", "")

	heart := models.ReactionSymbols[0]
	sad := models.ReactionSymbols[1]

	out, err := s.ToggleReaction(m.ID, "bob", heart)
	if err != nil {
		t.Fatalf("ToggleReaction add: %v", err)
	}
	if out.Reactions["bob"] != heart {
		t.Fatalf("expected bob -> %s, got %v", heart, out.Reactions)
	}

	// different symbol replaces
	out, err = s.ToggleReaction(m.ID, "bob", sad)
	if err != nil {
		t.Fatalf("ToggleReaction replace: %v", err)
	}
	if out.Reactions["bob"] != sad {
		t.Fatalf("expected replacement to %s, got %v", sad, out.Reactions)
	}

	// same symbol clears
	out, err = s.ToggleReaction(m.ID, "bob", sad)
	if err != nil {
		t.Fatalf("ToggleReaction clear: %v", err)
	}
	if _, ok := out.Reactions["bob"]; ok {
		t.Fatalf("expected reaction cleared, got %v", out.Reactions)
	}
}

func TestReactionRules(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.Append("alice", "bob", "rules", "")

	if _, err := s.ToggleReaction(m.ID, "carol", models.ReactionSymbols[0]); !apperr.IsCode(err, apperr.CodePermission) {
		t.Fatalf("non-participant react: expected permission error, got %v", err)
	}
	if _, err := s.ToggleReaction(m.ID, "bob", "👍"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("unknown symbol: expected validation error, got %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.Append("alice", "bob", "delete me", "")

	if _, err := s.SoftDelete(m.ID, "bob"); !apperr.IsCode(err, apperr.CodePermission) {
		t.Fatalf("non-author delete: expected permission error, got %v", err)
	}

	out, err := s.SoftDelete(m.ID, "alice")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if out.DeletedAt == 0 {
		t.Fatalf("expected DeletedAt set")
	}

	// idempotent
	again, err := s.SoftDelete(m.ID, "alice")
	if err != nil {
		t.Fatalf("repeat SoftDelete: %v", err)
	}
	if again.DeletedAt != out.DeletedAt {
		t.Fatalf("repeat soft delete changed DeletedAt")
	}

	page, _ := s.Query(m.Conversation, "", 0)
	for _, got := range page.Messages {
		if got.ID == m.ID {
			t.Fatalf("soft-deleted message still visible in query")
		}
	}
}

func TestHardDeleteTerminal(t *testing.T) {
	s := openTestStore(t)
	m, _ := s.Append("alice", "bob", "purge me", "")

	if err := s.HardDelete(m.ID, "bob"); !apperr.IsCode(err, apperr.CodePermission) {
		t.Fatalf("non-author hard delete: expected permission error, got %v", err)
	}
	if err := s.HardDelete(m.ID, "alice"); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}

	got, err := s.Get(m.ID)
	if err != nil {
		t.Fatalf("Get tombstone: %v", err)
	}
	if !got.HardDeleted || got.Text != "" {
		t.Fatalf("expected empty tombstone, got %+v", got)
	}

	// the id stays burned
	if _, err := s.MutateText(m.ID, "alice", "resurrect"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("edit after hard delete: expected not found, got %v", err)
	}
	page, _ := s.Query(m.Conversation, "", 0)
	if len(page.Messages) != 0 {
		t.Fatalf("hard-deleted row still in query results")
	}
}

func TestDedupToken(t *testing.T) {
	s := openTestStore(t)

	first, err := s.Append("alice", "bob", "pay attention", "tok-1")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := s.Append("alice", "bob", "pay attention", "tok-1")
	if err != nil {
		t.Fatalf("retry Append: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry with same token must return original, got %s vs %s", second.ID, first.ID)
	}

	page, _ := s.Query(first.Conversation, "", 0)
	if len(page.Messages) != 1 {
		t.Fatalf("duplicate row appended, want 1 got %d", len(page.Messages))
	}

	// different token appends normally
	third, err := s.Append("alice", "bob", "pay attention", "tok-2")
	if err != nil {
		t.Fatalf("Append tok-2: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("different token must append a new message")
	}
}

func TestConversationMeta(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Append("alice", "bob", "one", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := s.Append("alice", "carol", "two", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	convs, err := s.ListConversations("alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", len(convs))
	}
	// most recently active first
	if convs[0].Key != models.ConversationKey("alice", "carol") {
		t.Fatalf("wrong activity order: %s first", convs[0].Key)
	}

	convs, _ = s.ListConversations("bob")
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation for bob, got %d", len(convs))
	}
}

func TestPurgeAged(t *testing.T) {
	s := openTestStore(t)

	m, _ := s.Append("alice", "bob", "old news", "tok-old")
	if _, err := s.MutateText(m.ID, "alice", "older news"); err != nil {
		t.Fatalf("MutateText: %v", err)
	}
	if err := s.HardDelete(m.ID, "alice"); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	// everything written so far is older than the cutoff; keep is newer
	cutoff := time.Now().UnixNano()
	keep, _ := s.Append("alice", "bob", "fresh", "tok-fresh")

	rep, err := s.PurgeAged(cutoff, 100, true)
	if err != nil {
		t.Fatalf("PurgeAged dry run: %v", err)
	}
	if rep.VersionsPurged == 0 {
		t.Fatalf("dry run should count purgable versions")
	}
	if vs, _ := s.ListMessageVersions(m.ID); len(vs) == 0 {
		t.Fatalf("dry run must not delete")
	}

	if _, err := s.PurgeAged(cutoff, 100, false); err != nil {
		t.Fatalf("PurgeAged: %v", err)
	}
	if vs, _ := s.ListMessageVersions(m.ID); len(vs) != 0 {
		t.Fatalf("expected purged versions, got %d", len(vs))
	}
	// tombstone survives so the id stays burned
	got, err := s.Get(m.ID)
	if err != nil || !got.HardDeleted {
		t.Fatalf("tombstone must survive purge: %v %+v", err, got)
	}
	// live message untouched; fresh token still deduplicates
	if _, err := s.Get(keep.ID); err != nil {
		t.Fatalf("live message purged: %v", err)
	}
	again, err := s.Append("alice", "bob", "fresh", "tok-fresh")
	if err != nil || again.ID != keep.ID {
		t.Fatalf("fresh dedup token lost: %v", err)
	}
	// the purged token is forgotten, so reuse appends anew
	reused, err := s.Append("alice", "bob", "reuse", "tok-old")
	if err != nil {
		t.Fatalf("Append with purged token: %v", err)
	}
	if reused.ID == m.ID {
		t.Fatalf("purged token must behave as unseen")
	}
}
