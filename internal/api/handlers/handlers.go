// Package handlers implements the gateway's HTTP endpoints. Handlers are
// thin: they parse, call into the domain packages, and shape responses.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/internal/config"
	"github.com/pagespace/pagespace/gateway/internal/orchestrator"
	"github.com/pagespace/pagespace/gateway/internal/prompt"
	"github.com/pagespace/pagespace/gateway/internal/scope"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/internal/streams"
	"github.com/pagespace/pagespace/gateway/internal/tools"
	"github.com/pagespace/pagespace/gateway/internal/uploads"
)

// Handlers carries every endpoint's collaborators.
type Handlers struct {
	store         store.Store
	authenticator *auth.Authenticator
	scope         *scope.Enforcer
	orchestrator  *orchestrator.Orchestrator
	registry      *streams.Registry
	uploads       *uploads.Service
	catalog       *tools.Catalog
	assembler     *prompt.Assembler
	cfg           *config.Config
}

func New(st store.Store, authenticator *auth.Authenticator, enforcer *scope.Enforcer, orch *orchestrator.Orchestrator, registry *streams.Registry, uploadSvc *uploads.Service, catalog *tools.Catalog, assembler *prompt.Assembler, cfg *config.Config) *Handlers {
	return &Handlers{
		store:         st,
		authenticator: authenticator,
		scope:         enforcer,
		orchestrator:  orch,
		registry:      registry,
		uploads:       uploadSvc,
		catalog:       catalog,
		assembler:     assembler,
		cfg:           cfg,
	}
}

// ── Response helpers ────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
