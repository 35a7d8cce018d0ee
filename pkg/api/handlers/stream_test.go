package handlers_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"talko/pkg/models"
)

type wsFrame struct {
	Type   string              `json:"type"`
	List   []*models.Message   `json:"list,omitempty"`
	Msg    *models.Message     `json:"message,omitempty"`
	Cursor string              `json:"cursor,omitempty"`
	Typing *models.TypingState `json:"typing,omitempty"`
}

func dialStream(t *testing.T, e *testEnv, user, peer string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/conversations/" + peer + "/stream"
	hdr := http.Header{}
	hdr.Set("X-Role-Name", "backend")
	hdr.Set("X-User-ID", user)
	conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial stream: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStreamSnapshotAndLiveUpdates(t *testing.T) {
	e := newTestEnv(t)
	e.befriend(t, "alice", "bob")

	resp := e.do(t, http.MethodPost, "/v1/conversations/bob/messages", "alice",
		map[string]string{"text": "before connect"}, nil)
	resp.Body.Close()

	conn := dialStream(t, e, "alice", "bob")

	f := readFrame(t, conn)
	if f.Type != "snapshot" || len(f.List) != 1 || f.List[0].Text != "before connect" {
		t.Fatalf("unexpected first frame %+v", f)
	}

	// a write from the peer shows up as an upsert
	resp = e.do(t, http.MethodPost, "/v1/conversations/alice/messages", "bob",
		map[string]string{"text": "live reply"}, nil)
	resp.Body.Close()

	f = readFrame(t, conn)
	if f.Type != "upsert" || f.Msg == nil || f.Msg.Text != "live reply" {
		t.Fatalf("unexpected live frame %+v", f)
	}

	// a delete shows up as a remove
	resp = e.do(t, http.MethodDelete, "/v1/messages/"+f.Msg.ID, "bob", nil, nil)
	resp.Body.Close()

	f = readFrame(t, conn)
	if f.Type != "remove" || f.Msg.Text != "live reply" {
		t.Fatalf("unexpected remove frame %+v", f)
	}
}

func TestStreamTypingFanout(t *testing.T) {
	e := newTestEnv(t)
	e.befriend(t, "alice", "bob")

	alice := dialStream(t, e, "alice", "bob")
	readFrame(t, alice) // snapshot

	bob := dialStream(t, e, "bob", "alice")
	readFrame(t, bob) // snapshot

	// bob raises his flag through the socket
	if err := bob.WriteJSON(map[string]any{"type": "typing", "typing": true}); err != nil {
		t.Fatalf("write typing frame: %v", err)
	}

	f := readFrame(t, alice)
	if f.Type != "typing" || f.Typing == nil || f.Typing.UserID != "bob" || !f.Typing.IsTyping {
		t.Fatalf("unexpected typing frame %+v", f)
	}

	// bob never hears his own flag back; instead alice's flag reaches him
	resp := e.do(t, http.MethodPost, "/v1/conversations/bob/typing", "alice",
		map[string]bool{"typing": true}, nil)
	resp.Body.Close()

	f = readFrame(t, bob)
	if f.Type != "typing" || f.Typing.UserID != "alice" {
		t.Fatalf("bob got the wrong typing frame %+v", f)
	}
}

func TestStreamLoadOlder(t *testing.T) {
	e := newTestEnv(t)
	e.befriend(t, "alice", "bob")

	// force multiple pages; the stream opens with the default page size
	for i := 0; i < 30; i++ {
		resp := e.do(t, http.MethodPost, "/v1/conversations/bob/messages", "alice",
			map[string]string{"text": "backlog"}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed append %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	conn := dialStream(t, e, "alice", "bob")
	f := readFrame(t, conn)
	if f.Type != "snapshot" || len(f.List) != 25 || f.Cursor == "" {
		t.Fatalf("expected a capped snapshot with cursor, got %d msgs cursor %q", len(f.List), f.Cursor)
	}

	if err := conn.WriteJSON(map[string]any{"type": "load_older", "limit": 10}); err != nil {
		t.Fatalf("write load_older: %v", err)
	}
	f = readFrame(t, conn)
	if f.Type != "snapshot" || len(f.List) != 30 {
		t.Fatalf("extended snapshot wrong: %d msgs", len(f.List))
	}
}
