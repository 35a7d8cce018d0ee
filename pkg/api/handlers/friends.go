package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"talko/pkg/utils"
)

// RegisterFriends registers the friend ledger routes.
func RegisterFriends(r *mux.Router, d *Deps) {
	r.HandleFunc("/friends", d.listFriends).Methods(http.MethodGet)
	r.HandleFunc("/friends/{peer}", d.removeFriend).Methods(http.MethodDelete)

	r.HandleFunc("/friends/requests", d.requestFriend).Methods(http.MethodPost)
	r.HandleFunc("/friends/requests", d.listRequests).Methods(http.MethodGet)
	r.HandleFunc("/friends/requests/{peer}/accept", d.acceptFriend).Methods(http.MethodPost)
	r.HandleFunc("/friends/requests/{peer}", d.declineFriend).Methods(http.MethodDelete)
}

// requestFriend handles POST /friends/requests with {"peer": "..."}.
func (d *Deps) requestFriend(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	var body struct {
		Peer string `json:"peer"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	edge, err := d.Friends.Request(actor, body.Peer)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, edge)
}

// acceptFriend handles POST /friends/requests/{peer}/accept.
func (d *Deps) acceptFriend(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	edge, err := d.Friends.Accept(actor, mux.Vars(r)["peer"])
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, edge)
}

// declineFriend handles DELETE /friends/requests/{peer}. Works for both
// declining an incoming request and withdrawing an outgoing one.
func (d *Deps) declineFriend(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	if err := d.Friends.Decline(actor, mux.Vars(r)["peer"]); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeFriend handles DELETE /friends/{peer}.
func (d *Deps) removeFriend(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	if err := d.Friends.Remove(actor, mux.Vars(r)["peer"]); err != nil {
		utils.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listFriends handles GET /friends.
func (d *Deps) listFriends(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	out, err := d.Friends.ListFriends(actor)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"friends": out})
}

// listRequests handles GET /friends/requests: incoming by default,
// ?direction=sent for outgoing.
func (d *Deps) listRequests(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	var (
		out []string
		err error
	)
	if r.URL.Query().Get("direction") == "sent" {
		out, err = d.Friends.ListSent(actor)
	} else {
		out, err = d.Friends.ListPending(actor)
	}
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"requests": out})
}
