package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"talko/pkg/api/handlers"
	"talko/pkg/auth"
)

// Handler assembles the versioned API router. The caller wraps it with the
// gateway and telemetry middleware; signature verification is applied here
// so every /v1 route below sees a resolved identity.
func Handler(d *handlers.Deps) http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedIdentity)

	handlers.RegisterMessages(v1, d)
	handlers.RegisterConversations(v1, d)
	handlers.RegisterTyping(v1, d)
	handlers.RegisterFriends(v1, d)
	handlers.RegisterStream(v1, d)
	handlers.RegisterSigning(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(admin, d)

	return r
}
