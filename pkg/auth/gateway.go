package auth

import (
	"net"
	"net/http"
	"strings"

	"talko/pkg/logger"
	"talko/pkg/utils"
)

// AuthenticateRequestMiddleware is the outermost gate: CORS, role
// resolution and rate limiting. Admin and backend callers present an API
// key; end users carry no key and are rated by signed identity or client
// ip, with the signature itself checked later by RequireSignedIdentity.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature,X-Idempotency-Key")
				w.Header().Set("Access-Control-Expose-Headers", "X-Role-Name")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// probes bypass auth entirely
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				r.Header.Set("X-Role-Name", "unauth")
				next.ServeHTTP(w, r)
				return
			}

			role, rateKey := authenticate(r, cfg)
			var roleName string
			switch role {
			case RoleFrontend:
				roleName = "frontend"
			case RoleBackend:
				roleName = "backend"
			case RoleAdmin:
				roleName = "admin"
			default:
				roleName = "unauth"
			}
			logger.Debug("auth_check", "role", roleName, "path", r.URL.Path)

			if role == RoleUnauth {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}
			r.Header.Set("X-Role-Name", roleName)

			// admin surface is off limits to everyone else
			if strings.HasPrefix(r.URL.Path, "/v1/admin") && role != RoleAdmin {
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				logger.Warn("request_forbidden", "reason", "admin_only", "path", r.URL.Path)
				return
			}

			if !limiters.Allow(rateKey) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "role", roleName, "path", r.URL.Path)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate resolves the caller role and the rate-limit bucket key.
// An API key maps to backend/admin; a bare X-User-ID (verified downstream)
// maps to frontend keyed by that identity; otherwise the caller is
// frontend keyed by client ip so unsigned requests still reach the
// signature check with a bounded rate.
func authenticate(r *http.Request, cfg SecConfig) (Role, string) {
	auth := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		key = strings.TrimSpace(auth[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key != "" {
		if _, ok := cfg.AdminKeys[key]; ok {
			return RoleAdmin, key
		}
		if _, ok := cfg.BackendKeys[key]; ok {
			return RoleBackend, key
		}
		return RoleUnauth, key
	}
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return RoleFrontend, "user:" + id
	}
	return RoleFrontend, "ip:" + clientIP(r)
}
