package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"talko/pkg/logger"
	"talko/pkg/models"
	"talko/pkg/presence"
	"talko/pkg/projector"
	"talko/pkg/store"
	"talko/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// origin policy is enforced by the gateway middleware before the upgrade
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// RegisterStream registers the realtime websocket route.
func RegisterStream(r *mux.Router, d *Deps) {
	r.HandleFunc("/conversations/{peer}/stream", d.streamConversation).Methods(http.MethodGet)
}

// streamFrame is one websocket message to the client.
type streamFrame struct {
	Type string `json:"type"`
	// view fields
	List   []*models.Message `json:"list,omitempty"`
	Msg    *models.Message   `json:"message,omitempty"`
	Cursor string            `json:"cursor,omitempty"`
	// typing field
	Typing *models.TypingState `json:"typing,omitempty"`
}

// clientFrame is one websocket message from the client.
type clientFrame struct {
	Type   string `json:"type"`
	Typing bool   `json:"typing"`
	Limit  int    `json:"limit"`
}

// streamConversation handles GET /conversations/{peer}/stream. The first
// frame is always a snapshot; after that the client receives incremental
// view updates and typing changes, and may send typing flags and
// load_older requests over the same socket.
func (d *Deps) streamConversation(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	conv, ok := convKeyWith(w, actor, mux.Vars(r)["peer"])
	if !ok {
		return
	}

	view, err := projector.Open(d.Store, d.Hub, conv, store.DefaultPageLimit)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	watcher := d.Presence.Watch(conv)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		view.Close()
		d.Presence.Unwatch(watcher)
		logger.Warn("stream_upgrade_failed", "conv", conv, "err", err.Error())
		return
	}
	logger.Info("stream_opened", "conv", conv, "user", actor)

	s := &stream{
		deps:    d,
		conn:    conn,
		conv:    conv,
		actor:   actor,
		view:    view,
		watcher: watcher,
		older:   make(chan int, 1),
		done:    make(chan struct{}),
	}
	go s.read()
	s.write()
}

// stream owns one websocket session. All writes to the socket happen on the
// write goroutine; the reader only feeds the presence tracker and the
// load_older request channel.
type stream struct {
	deps    *Deps
	conn    *websocket.Conn
	conv    string
	actor   string
	view    *projector.View
	watcher *presence.Watcher
	older   chan int
	done    chan struct{}
}

func (s *stream) read() {
	defer close(s.done)
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var cf clientFrame
		if json.Unmarshal(data, &cf) != nil {
			continue
		}
		switch cf.Type {
		case "typing":
			s.deps.Presence.SetTyping(s.conv, s.actor, cf.Typing)
		case "load_older":
			select {
			case s.older <- cf.Limit:
			default:
			}
		}
	}
}

func (s *stream) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.view.Close()
		s.deps.Presence.Unwatch(s.watcher)
		_ = s.conn.Close()
		logger.Info("stream_closed", "conv", s.conv, "user", s.actor)
	}()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.view.Events():
			if !ok {
				return
			}
			frame := streamFrame{Type: string(ev.Kind), Msg: ev.Msg, Cursor: ev.Cursor}
			if ev.Kind == projector.KindSnapshot {
				frame.List = ev.List
			}
			if !s.send(frame) {
				return
			}
		case limit := <-s.older:
			if _, err := s.view.LoadOlder(limit); err != nil {
				logger.Warn("stream_load_older_failed", "conv", s.conv, "err", err.Error())
				continue
			}
			// resend as a snapshot so the client list matches the
			// extended projection
			if !s.send(streamFrame{Type: string(projector.KindSnapshot), List: s.view.Snapshot()}) {
				return
			}
		case st, ok := <-s.watcher.States():
			if !ok {
				return
			}
			// the client knows its own flag already
			if strings.EqualFold(st.UserID, s.actor) {
				continue
			}
			if !s.send(streamFrame{Type: "typing", Typing: &st}) {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if s.conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (s *stream) send(f streamFrame) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f) == nil
}
