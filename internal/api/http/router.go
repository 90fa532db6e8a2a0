package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/catalogd/registry/internal/api/auth"
	"github.com/catalogd/registry/internal/api/http/handlers"
	"github.com/catalogd/registry/internal/api/http/middleware"
	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/metrics"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/registry"
)

// RouterConfig holds the collaborators of the HTTP API
type RouterConfig struct {
	Registry *registry.Registry
	// Storage answers the readiness probe
	Storage handlers.ReadyChecker
	// Hub serves /events; nil disables the route
	Hub *notify.Hub
	// TokenStore authenticates callers of /events, and of the registry
	// when AuthEnabled is set
	TokenStore  auth.TokenStore
	Authorizer  auth.Authorizer
	AuthEnabled bool
	// PublicURL overrides the request-derived self-link base
	PublicURL string
	// Metrics records API requests; nil records nothing
	Metrics *metrics.RegistryMetrics
}

// Router manages HTTP routes and middleware
type Router struct {
	mux *chi.Mux
	cfg RouterConfig
}

// NewRouter creates a new router
func NewRouter(cfg RouterConfig) *Router {
	if cfg.TokenStore == nil {
		cfg.TokenStore = auth.NewInMemoryTokenStore()
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = auth.NewPermissionAuthorizer()
	}

	r := &Router{
		mux: chi.NewRouter(),
		cfg: cfg,
	}
	r.setupRoutes()
	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// setupRoutes sets up all HTTP routes
func (r *Router) setupRoutes() {
	log := logger.WithComponent("http.middleware")
	r.mux.Use(
		middleware.Recovery(log),
		middleware.Logging(log),
		middleware.Tracing(),
		middleware.Metrics(r.cfg.Metrics),
	)

	// Health check endpoints (no auth required)
	r.mux.Get("/health", handlers.HealthCheck)
	r.mux.Get("/ready", handlers.ReadinessCheck(r.cfg.Storage))
	r.mux.Get("/version", handlers.VersionInfo)

	// Change event subscriptions always need a token
	if r.cfg.Hub != nil {
		r.mux.With(
			middleware.Auth(r.cfg.TokenStore),
			middleware.Require(r.cfg.Authorizer, "", auth.PermissionEventsSubscribe),
		).Get("/events", r.cfg.Hub.ServeWS)
	}

	if r.cfg.Registry == nil {
		return
	}
	reg := r.cfg.Registry
	base := handlers.NewBaseURL(r.cfg.PublicURL)
	catalog := handlers.NewCatalogHandlers(reg.Catalog, base)

	r.mux.Route(handlers.BasePath, func(api chi.Router) {
		api.With(r.guard("")).Get("/", catalog.GetCatalog)
		// a merge may write any kind
		api.With(r.guard(auth.AllKinds)).Post("/", catalog.MergeCatalog)

		r.mountKind(api, handlers.NewKindHandlers(reg.Groups, reg.GroupDefinitions, base))
		r.mountKind(api, handlers.NewKindHandlers(reg.SchemaGroups, reg.Schemas, base))
		r.mountKind(api, handlers.NewKindHandlers(reg.Endpoints, reg.EndpointDefinitions, base))
	})
}

type kindRoutes interface {
	Name() string
	Routes() chi.Router
}

func (r *Router) mountKind(api chi.Router, kh kindRoutes) {
	api.With(r.guard(kh.Name())).Mount("/"+kh.Name(), kh.Routes())
}

// guard returns the auth middleware of registry routes on kind: a no-op
// unless auth is enabled
func (r *Router) guard(kind string) func(http.Handler) http.Handler {
	if !r.cfg.AuthEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.Chain(
		middleware.Auth(r.cfg.TokenStore),
		middleware.RequireMethod(r.cfg.Authorizer, kind, auth.PermissionRegistryRead, auth.PermissionRegistryWrite),
	)
}
