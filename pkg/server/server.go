// Package server is the public composition root for the PageSpace gateway.
//
// It lives in pkg/ (not internal/) so that deployment wrappers can embed
// the gateway and layer their own middleware on top of Handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/api"
	"github.com/pagespace/pagespace/gateway/internal/api/handlers"
	"github.com/pagespace/pagespace/gateway/internal/api/middleware"
	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/config"
	"github.com/pagespace/pagespace/gateway/internal/orchestrator"
	"github.com/pagespace/pagespace/gateway/internal/prompt"
	"github.com/pagespace/pagespace/gateway/internal/provider"
	"github.com/pagespace/pagespace/gateway/internal/scope"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/internal/streams"
	"github.com/pagespace/pagespace/gateway/internal/telemetry"
	"github.com/pagespace/pagespace/gateway/internal/tools"
	"github.com/pagespace/pagespace/gateway/internal/uploads"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store, exposed so embedding deployments can reuse
	// it in their own middleware.
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes every gateway component from the environment.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore := store.NewMemoryStore()
	log.Info().Msg("in-memory store initialized")

	authenticator := auth.NewAuthenticator(dataStore, cfg.Auth.TokenSecret)
	authn := middleware.NewAuthn(authenticator)

	originGuard := middleware.NewOriginGuard(cfg.Web.WebAppURL,
		cfg.Web.AdditionalAllowedOrigins,
		middleware.OriginMode(cfg.Web.OriginValidationMode))
	browserGuard := middleware.NewBrowserGuard(originGuard, dataStore,
		cfg.Auth.TokenSecret, []byte(cfg.Auth.CSRFSecret), cfg.Auth.CSRFTokenTTL)

	caches := cache.NewDriveCaches(dataStore, cfg.Caches.TreeTTL, cfg.Caches.AgentTTL, cfg.Caches.MaxEntries)
	catalog := tools.NewCatalog(dataStore, caches)
	assembler := prompt.NewAssembler(dataStore, caches)
	enforcer := scope.NewEnforcer(dataStore)

	factory := provider.NewFactory(dataStore, cfg.Provider)
	oracle := provider.NewOracle(cfg.Provider.OpenRouterRefreshInterval)
	registry := streams.NewRegistry()

	uploadSvc := uploads.NewService(dataStore, caches,
		uploads.NewMemoryMonitor(cfg.Uploads.MemoryHighWatermarkPct),
		uploads.NewSlotPool(cfg.Uploads.TierSlots, cfg.Uploads.DefaultTier),
		uploads.NewProcessorClient(cfg.Processor.URL, []byte(cfg.Auth.TokenSecret), cfg.Processor.Timeout))

	orch := orchestrator.New(dataStore, assembler, catalog, factory, oracle, registry, nil)

	h := handlers.New(dataStore, authenticator, enforcer, orch, registry, uploadSvc, catalog, assembler, cfg)
	router := api.NewRouter(cfg, h, authn, browserGuard)

	log.Info().Msg("gateway components initialized")

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
