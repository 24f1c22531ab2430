package api

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/trueclassic/oosflow/internal/core/auth"
)

// =============================================================================
// Identity
// =============================================================================

// Identity is the authenticated caller, carried in the request context.
type Identity struct {
	Username string
	Role     auth.Role
}

type identityKey struct{}

func withIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

func identityFromContext(ctx context.Context) Identity {
	ident, _ := ctx.Value(identityKey{}).(Identity)
	return ident
}

// =============================================================================
// Auth Middleware
// =============================================================================

// requireAuth accepts HTTP Basic with the static app credentials or a Bearer
// token issued by POST /token. The resolved identity is stored in the
// request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		switch {
		case strings.HasPrefix(header, "Bearer "):
			claims, err := h.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				h.unauthorized(w, "invalid or expired token")
				return
			}
			r = r.WithContext(withIdentity(r.Context(), Identity{
				Username: claims.Username,
				Role:     claims.Role,
			}))

		case strings.HasPrefix(header, "Basic "):
			user, pass, ok := r.BasicAuth()
			if !ok || !auth.CheckBasic(user, pass, h.cfg.AppUsername, h.cfg.AppPassword) {
				h.unauthorized(w, "invalid credentials")
				return
			}
			// The static credential is the service operator.
			r = r.WithContext(withIdentity(r.Context(), Identity{
				Username: user,
				Role:     auth.RoleAdmin,
			}))

		default:
			h.unauthorized(w, "authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects non-admin identities. Must run after requireAuth.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFromContext(r.Context()).Role != auth.RoleAdmin {
			h.writeError(w, http.StatusForbidden, "admin role required", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="oosflow", Bearer`)
	h.writeError(w, http.StatusUnauthorized, message, "unauthorized")
}

// =============================================================================
// Cross-Cutting Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// corsHeaders answers preflight requests and marks allowed origins.
func (h *Handler) corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
