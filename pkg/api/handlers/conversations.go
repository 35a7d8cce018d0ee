package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"talko/pkg/utils"
)

// RegisterConversations registers the conversation index routes.
func RegisterConversations(r *mux.Router, d *Deps) {
	r.HandleFunc("/conversations", d.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{peer}", d.getConversation).Methods(http.MethodGet)
}

// listConversations handles GET /conversations: every conversation the
// acting user participates in, most recently active first.
func (d *Deps) listConversations(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	convs, err := d.Store.ListConversations(actor)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"conversations": convs})
}

// getConversation handles GET /conversations/{peer}.
func (d *Deps) getConversation(w http.ResponseWriter, r *http.Request) {
	actor := identity(w, r)
	if actor == "" {
		return
	}
	conv, ok := convKeyWith(w, actor, mux.Vars(r)["peer"])
	if !ok {
		return
	}
	meta, err := d.Store.GetConversation(conv)
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, meta)
}
