package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"talko/pkg/utils"
)

// RegisterTyping registers the typing indicator routes.
func RegisterTyping(r *mux.Router, d *Deps) {
	r.HandleFunc("/conversations/{peer}/typing", d.setTyping).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{peer}/typing", d.getTyping).Methods(http.MethodGet)
}

// setTyping handles POST /conversations/{peer}/typing. The flag is
// ephemeral: it lives in memory and decays on its own if never cleared.
func (d *Deps) setTyping(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	conv, ok := convKeyWith(w, actor, mux.Vars(r)["peer"])
	if !ok {
		return
	}
	var body struct {
		Typing bool `json:"typing"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	d.Presence.SetTyping(conv, actor, body.Typing)
	w.WriteHeader(http.StatusNoContent)
}

// getTyping handles GET /conversations/{peer}/typing returning who is
// currently typing, stale flags already decayed.
func (d *Deps) getTyping(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	conv, ok := convKeyWith(w, actor, mux.Vars(r)["peer"])
	if !ok {
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"typing": d.Presence.Snapshot(conv)})
}
