// Package api assembles the gateway's HTTP surface: global middleware,
// authentication requirements per route group, and the endpoint map.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pagespace/pagespace/gateway/internal/api/handlers"
	"github.com/pagespace/pagespace/gateway/internal/api/middleware"
	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/internal/config"
)

// activityRetention is how far back the archive cron keeps live rows.
const activityRetention = 90 * 24 * time.Hour

// NewRouter wires the endpoint map. Route groups declare which credential
// kinds they accept; cookie-bound callers additionally pass the browser
// guard (origin then CSRF) on mutating methods.
func NewRouter(cfg *config.Config, h *handlers.Handlers, authn *middleware.Authn, guard *middleware.BrowserGuard) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Stream-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		// Browser-session surface: cookies and ps_sess_* bearers; MCP
		// tokens are rejected.
		r.Group(func(r chi.Router) {
			r.Use(authn.Require(auth.AllowSession))
			r.Use(guard.Handler)

			r.Get("/auth/csrf", h.CSRFToken)
			r.Post("/auth/logout", h.Logout)
			r.Post("/auth/mcp-token", h.IssueMCPToken)
			r.Post("/upload", h.Upload)
			r.Post("/ai/chat", h.Chat)
			r.Post("/ai/abort", h.Abort)
			r.Get("/admin/global-prompt", h.GlobalPrompt)
		})

		// Mixed surface: session or MCP, with drive-scope enforcement in
		// the handler.
		r.Group(func(r chi.Router) {
			r.Use(authn.Require(auth.AllowAny))
			r.Use(guard.Handler)

			r.Get("/activities", h.Activities)
		})

		// Maintenance surface: shared-secret bearer, no user identity.
		r.Group(func(r chi.Router) {
			r.Use(cronGuard(cfg.Auth.CronSecret))
			r.Post("/cron/archive-activities", h.CronArchiveActivities(activityRetention))
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	origins := make([]string, 0, 1+len(cfg.Web.AdditionalAllowedOrigins))
	if cfg.Web.WebAppURL != "" {
		origins = append(origins, cfg.Web.WebAppURL)
	}
	origins = append(origins, cfg.Web.AdditionalAllowedOrigins...)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// cronGuard admits only callers presenting the cron shared secret.
func cronGuard(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pagespace-gateway",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "pagespace-gateway",
		})
	}
}
