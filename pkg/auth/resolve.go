package auth

import (
	"net/http"
	"strings"

	"talko/pkg/logger"
)

func validIdentity(a string) (bool, string) {
	if a == "" {
		return false, "identity required"
	}
	if len(a) > 128 {
		return false, "identity too long"
	}
	if strings.ContainsAny(a, "|:") {
		return false, "identity must not contain '|' or ':'"
	}
	return true, ""
}

// ResolveIdentity is the canonical resolver handlers call for the acting
// user. A signature-verified identity from the context is authoritative and
// any conflicting identity in query or header is rejected. Without a
// signature, backend/admin roles may act for a user named by header or
// query; frontend callers get 401. Resolved identities come back in
// canonical lowercased form.
func ResolveIdentity(r *http.Request) (string, int, string) {
	if id := IdentityFromContext(r.Context()); id != "" {
		if q := strings.TrimSpace(r.URL.Query().Get("as")); q != "" && !strings.EqualFold(q, id) {
			logger.Warn("identity_mismatch_signature_query", "signature", id, "query", q, "path", r.URL.Path)
			return "", http.StatusForbidden, "identity mismatch between signature and query param"
		}
		return strings.ToLower(id), 0, ""
	}

	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		for _, cand := range []string{
			strings.TrimSpace(r.Header.Get("X-User-ID")),
			strings.TrimSpace(r.URL.Query().Get("as")),
		} {
			if cand == "" {
				continue
			}
			if ok, msg := validIdentity(cand); !ok {
				return "", http.StatusBadRequest, msg
			}
			return strings.ToLower(cand), 0, ""
		}
		logger.Warn("backend_missing_identity", "path", r.URL.Path)
		return "", http.StatusBadRequest, "identity required for backend requests"
	}

	logger.Warn("missing_identity_signature", "role", role, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid identity signature"
}
