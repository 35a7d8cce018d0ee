package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"talko/pkg/auth"
	"talko/pkg/logger"
	"talko/pkg/models"
	"talko/pkg/utils"
)

// RegisterSigning registers the credential-minting endpoint. Backends call
// it with their API key to obtain the signature a client presents as
// X-User-Signature; the caller's API key is the signing secret.
func RegisterSigning(r *mux.Router) {
	r.HandleFunc("/_sign", signHandler).Methods(http.MethodPost)
}

func signHandler(w http.ResponseWriter, r *http.Request) {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" && role != "admin" {
		logger.Warn("sign_forbidden", "role", role, "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	ah := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		key = strings.TrimSpace(ah[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := models.ValidateIdentity(payload.UserID); err != nil {
		utils.WriteAppError(w, err)
		return
	}

	sig := auth.SignIdentity(key, payload.UserID)
	logger.Info("identity_signed", "user", payload.UserID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"user_id":   payload.UserID,
		"signature": sig,
	})
}
