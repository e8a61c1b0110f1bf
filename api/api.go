// Package api exposes the operational HTTP surface: health, the auth type
// registry, credential management and token invalidation.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/sessionkeep/credstore"
	"github.com/jmcleod/sessionkeep/session"
	"github.com/jmcleod/sessionkeep/tokenstore"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	vault   *credstore.Vault
	factory *tokenstore.Factory
	manager *session.Manager
	audit   *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Documentation routes, relative to the mount point. They serve openapi.yaml
// itself and are not described by it.
const (
	openapiRoute = "/openapi.yaml"
	swaggerRoute = "/docs"
	redocRoute   = "/redoc"
)

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithManager enables the stats endpoint.
func WithManager(m *session.Manager) Option {
	return func(a *API) {
		a.manager = m
	}
}

// New creates a new API instance.
func New(vault *credstore.Vault, factory *tokenstore.Factory, opts ...Option) *API {
	a := &API{
		vault:   vault,
		factory: factory,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get(openapiRoute, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle(swaggerRoute+"*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1" + openapiRoute,
		Path:    "api/v1" + swaggerRoute,
	}, nil))

	r.Handle(redocRoute+"*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1" + openapiRoute,
		Path:    "api/v1" + redocRoute,
	}, nil))

	r.Get("/auth-types", a.ListAuthTypes)
	r.Get("/stats", a.Stats)

	r.Route("/principals/{principalID}/configs/{configID}", func(r chi.Router) {
		r.Get("/credentials", a.ListCredentials)
		r.Put("/credentials/{kind}", a.PutCredential)
		r.Delete("/credentials/{kind}", a.DeleteCredential)
		r.Delete("/tokens/{authType}", a.InvalidateToken)
	})

	return r
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
