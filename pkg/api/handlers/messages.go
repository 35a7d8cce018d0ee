package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"talko/pkg/ingest"
	"talko/pkg/logger"
	"talko/pkg/utils"
)

// RegisterMessages registers conversation and message routes.
func RegisterMessages(r *mux.Router, d *Deps) {
	r.HandleFunc("/conversations/{peer}/messages", d.appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{peer}/messages", d.listMessages).Methods(http.MethodGet)

	r.HandleFunc("/messages/{id}", d.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", d.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", d.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/versions", d.listVersions).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/reactions", d.toggleReaction).Methods(http.MethodPost)
}

// appendMessage handles POST /conversations/{peer}/messages. The body
// carries the text; an X-Idempotency-Key header makes retries safe.
func (d *Deps) appendMessage(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	peer := mux.Vars(r)["peer"]
	var body struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	msg, ok := submit(w, r, d, &ingest.Op{
		Type:    ingest.OpAppend,
		Actor:   actor,
		Peer:    peer,
		Payload: []byte(body.Text),
		Dedup:   strings.TrimSpace(r.Header.Get("X-Idempotency-Key")),
	})
	if !ok {
		return
	}
	logger.Info("message_appended", "conv", msg.Conversation, "id", msg.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

// listMessages handles GET /conversations/{peer}/messages with cursor and
// limit query params. Pages run newest to oldest.
func (d *Deps) listMessages(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	conv, ok := convKeyWith(w, actor, mux.Vars(r)["peer"])
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	page, err := d.Store.Query(conv, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

// getMessage handles GET /messages/{id}. Only participants may read.
func (d *Deps) getMessage(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	msg, err := d.Store.Get(mux.Vars(r)["id"])
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if msg.HardDeleted {
		// the id stays burned in the store but the API treats it as gone
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if !msg.Participant(actor) {
		utils.JSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

// editMessage handles PUT /messages/{id} replacing the text. Author only.
func (d *Deps) editMessage(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	msg, ok := submit(w, r, d, &ingest.Op{
		Type:    ingest.OpEdit,
		Actor:   actor,
		MsgID:   mux.Vars(r)["id"],
		Payload: []byte(body.Text),
	})
	if !ok {
		return
	}
	logger.Info("message_edited", "conv", msg.Conversation, "id", msg.ID)
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

// deleteMessage handles DELETE /messages/{id}. Soft by default; ?hard=true
// purges the payload permanently.
func (d *Deps) deleteMessage(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	op := &ingest.Op{Type: ingest.OpSoftDelete, Actor: actor, MsgID: mux.Vars(r)["id"]}
	if r.URL.Query().Get("hard") == "true" {
		op.Type = ingest.OpHardDelete
	}
	msg, ok := submit(w, r, d, op)
	if !ok {
		return
	}
	logger.Info("message_deleted", "conv", msg.Conversation, "id", msg.ID, "hard", op.Type == ingest.OpHardDelete)
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

// listVersions handles GET /messages/{id}/versions returning the full edit
// history, oldest first.
func (d *Deps) listVersions(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	id := mux.Vars(r)["id"]
	cur, err := d.Store.Get(id)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	if cur.HardDeleted {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if !cur.Participant(actor) {
		utils.JSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	versions, err := d.Store.ListMessageVersions(id)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"id": id, "versions": versions})
}

// toggleReaction handles POST /messages/{id}/reactions. Reacting with the
// symbol already held removes it; a different symbol replaces it.
func (d *Deps) toggleReaction(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	var body struct {
		Symbol string `json:"symbol"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	msg, ok := submit(w, r, d, &ingest.Op{
		Type:    ingest.OpReact,
		Actor:   actor,
		MsgID:   mux.Vars(r)["id"],
		Payload: []byte(body.Symbol),
	})
	if !ok {
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}
