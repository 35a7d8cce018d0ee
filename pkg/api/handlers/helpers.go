package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"talko/pkg/apperr"
	"talko/pkg/auth"
	"talko/pkg/friends"
	"talko/pkg/ingest"
	"talko/pkg/models"
	"talko/pkg/notify"
	"talko/pkg/presence"
	"talko/pkg/store"
	"talko/pkg/utils"
)

// Deps bundles the subsystems handlers operate on.
type Deps struct {
	Store    *store.Store
	Queue    *ingest.Queue
	Hub      *notify.Hub
	Presence *presence.Tracker
	Friends  *friends.Ledger
}

// commitWait bounds how long a handler waits for the write worker before
// declaring the commit in-flight.
const commitWait = 10 * time.Second

// identity resolves the acting user or writes the failure and returns "".
func identity(w http.ResponseWriter, r *http.Request) string {
	id, status, msg := auth.ResolveIdentity(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return ""
	}
	return id
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// convKeyWith derives the conversation key between the acting user and a
// peer, validating both identities.
func convKeyWith(w http.ResponseWriter, actor, peer string) (string, bool) {
	if err := models.ValidateIdentity(peer); err != nil {
		utils.WriteAppError(w, err)
		return "", false
	}
	return models.ConversationKey(actor, peer), true
}

// submit enqueues op and waits for the worker's verdict. Queue-full and
// timeout both surface as transient failures the client should retry.
func submit(w http.ResponseWriter, r *http.Request, d *Deps, op *ingest.Op) (*models.Message, bool) {
	reply, err := d.Queue.TryEnqueue(op)
	if err != nil {
		utils.WriteAppError(w, apperr.Wrap(apperr.CodeTransient, "write queue is full", err))
		return nil, false
	}
	select {
	case res := <-reply:
		if res.Err != nil {
			utils.WriteAppError(w, res.Err)
			return nil, false
		}
		return res.Msg, true
	case <-time.After(commitWait):
		utils.WriteAppError(w, apperr.Transient("commit still in flight"))
		return nil, false
	case <-r.Context().Done():
		utils.WriteAppError(w, apperr.Transient("client went away before commit"))
		return nil, false
	}
}
