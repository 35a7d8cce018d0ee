package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/mux"

	"talko/pkg/config"
	"talko/pkg/logger"
	"talko/pkg/utils"
)

// RegisterAdmin registers admin-only routes onto the admin subrouter. The
// gateway already restricts /v1/admin to admin API keys; isAdmin is a
// second check in case routes get remounted.
func RegisterAdmin(r *mux.Router, d *Deps) {
	r.HandleFunc("/health", d.adminHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", d.adminStats).Methods(http.MethodGet)
	r.HandleFunc("/keys", d.adminListKeys).Methods(http.MethodGet)
	logger.Info("admin_routes_registered")
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Role-Name") == "admin"
}

func (d *Deps) adminHealth(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "service": "talko"})
}

// adminStats reports keyspace tallies plus live queue depth.
func (d *Deps) adminStats(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	stats, err := d.Store.CollectStats()
	if err != nil {
		utils.WriteAppError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"store": stats,
		"queue": map[string]any{
			"len":     d.Queue.Len(),
			"cap":     d.Queue.Cap(),
			"dropped": d.Queue.Dropped(),
		},
	})
}

// adminListKeys exposes configured API keys as fingerprints, never raw.
func (d *Deps) adminListKeys(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	fingerprint := func(keys map[string]struct{}) []string {
		out := make([]string, 0, len(keys))
		for k := range keys {
			sum := sha256.Sum256([]byte(k))
			out = append(out, hex.EncodeToString(sum[:8]))
		}
		return out
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"backend": fingerprint(config.GetBackendKeys()),
		"admin":   fingerprint(config.GetAdminKeys()),
	})
}
