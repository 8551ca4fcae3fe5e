package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/appforge/appforge/internal/audit"
	"github.com/appforge/appforge/internal/deployment"
	"github.com/appforge/appforge/internal/portforward"
	"github.com/appforge/appforge/internal/recipe"
	"github.com/appforge/appforge/internal/snapshot"
	"github.com/appforge/appforge/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService *tenant.Service
	engine        *deployment.Service
	recipes       recipe.Repository
	exporter      *snapshot.Exporter
	importer      *snapshot.Importer
	forwards      *portforward.Supervisor
	tokens        *TokenIssuer
	auditLogger   audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	engine *deployment.Service,
	recipes recipe.Repository,
	exporter *snapshot.Exporter,
	importer *snapshot.Importer,
	forwards *portforward.Supervisor,
	tokens *TokenIssuer,
	auditLogger audit.Logger,
) *Handler {
	return &Handler{
		tenantService: tenantService,
		engine:        engine,
		recipes:       recipes,
		exporter:      exporter,
		importer:      importer,
		forwards:      forwards,
		tokens:        tokens,
		auditLogger:   auditLogger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Bootstrap: registering a tenant issues its first token.
		r.Post("/tenants", h.CreateTenant)

		// Everything else is tenant-scoped via bearer token (FAIL-CLOSED)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(RequireTenant)

			r.Get("/tenants/me", h.GetCurrentTenant)
			r.Delete("/tenants/me", h.DeleteCurrentTenant)

			r.Route("/workspaces", func(r chi.Router) {
				r.Post("/", h.CreateWorkspace)
				r.Get("/", h.ListWorkspaces)

				r.Route("/{workspaceID}", func(r chi.Router) {
					r.Get("/", h.GetWorkspace)
					r.Delete("/", h.DeleteWorkspace)

					r.Post("/deployments", h.InstallDeployment)
					r.Get("/deployments", h.ListDeployments)

					r.Get("/snapshot", h.ExportSnapshot)
					r.Post("/snapshot", h.ImportSnapshot)
				})
			})

			r.Route("/deployments/{deploymentID}", func(r chi.Router) {
				r.Get("/", h.GetDeployment)
				r.Put("/", h.UpgradeDeployment)
				r.Delete("/", h.RemoveDeployment)
				r.Post("/restart", h.RestartDeployment)
			})

			r.Get("/recipes", h.ListRecipes)
			r.Get("/recipes/{slug}", h.GetRecipe)

			r.Get("/forwards", h.ListForwards)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "appforge",
	})
}

// ListForwards returns the live port-forward table.
func (h *Handler) ListForwards(w http.ResponseWriter, r *http.Request) {
	if h.forwards == nil {
		respondJSON(w, http.StatusOK, []portforward.Forward{})
		return
	}
	respondJSON(w, http.StatusOK, h.forwards.Snapshot())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	var e *deployment.Error
	if !errors.As(err, &e) {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusInternalServerError
	switch e.Code {
	case deployment.CodeNotFound:
		status = http.StatusNotFound
	case deployment.CodeConflict:
		status = http.StatusConflict
	case deployment.CodeValidation, deployment.CodeQuotaExceeded:
		status = http.StatusBadRequest
	case deployment.CodeRemoteTransient:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, e)
}
