package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoelGonzalez08/TerraWeb/internal/config"
	"github.com/JoelGonzalez08/TerraWeb/internal/handlers"
	"github.com/JoelGonzalez08/TerraWeb/internal/identity"
	"github.com/JoelGonzalez08/TerraWeb/internal/live"
	"github.com/JoelGonzalez08/TerraWeb/internal/middleware"
	"github.com/JoelGonzalez08/TerraWeb/internal/observability"
	"github.com/JoelGonzalez08/TerraWeb/internal/proxy"
	"github.com/JoelGonzalez08/TerraWeb/internal/ratelimit"
	"github.com/JoelGonzalez08/TerraWeb/internal/session"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

type Deps struct {
	Cfg         *config.Config
	Sessions    *session.Store
	Store       *store.Store
	Verifier    identity.Verifier
	Redis       *redis.Client
	Hub         *live.Hub
	PromHandler http.Handler
	Tracer      trace.Tracer
}

type correlationKeyType struct{}

var correlationKey correlationKeyType

// New builds the full route tree. Every privileged route is gated
// server-side; client-side gating is a rendering convenience only.
func New(d Deps) chi.Router {
	cfg := d.Cfg

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if d.Tracer != nil {
		r.Use(observability.MetricsAndTracingMiddleware(d.Tracer))
	}
	r.Use(correlationID)
	r.Use(middleware.SessionLoader(d.Sessions, cfg.SessionCookie))

	if d.PromHandler != nil {
		r.Handle("/metrics", d.PromHandler)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authHandler := handlers.NewAuthHandler(d.Sessions, d.Store, d.Verifier, cfg.SessionCookie, cfg.IsProduction())
	usersHandler := handlers.NewUsersHandler(d.Store)
	parcelsHandler := handlers.NewParcelsHandler(d.Store)
	sensorsHandler := handlers.NewSensorsHandler(d.Store, d.Store, d.Store)
	exportHandler := handlers.NewExportHandler(d.Store)

	loginHandler := http.HandlerFunc(authHandler.HandleLogin)
	var login http.Handler = loginHandler
	if cfg.RateLimit.Enabled && d.Redis != nil {
		limiter := ratelimit.New(d.Redis, "login", ratelimit.LimiterConfig{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		login = limiter.Middleware(ratelimit.KeyByIP)(loginHandler)
	}

	r.Method(http.MethodPost, "/api/login", login)
	r.Post("/api/logout", authHandler.HandleLogout)
	r.Get("/api/user", authHandler.HandleCurrentUser)

	r.Route("/api/parcels", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", parcelsHandler.HandleList)
		r.Post("/", parcelsHandler.HandleCreate)
		r.Delete("/{id}", parcelsHandler.HandleDelete)
		r.With(middleware.RequireRole(roles.Technician)).
			Post("/upload-kml", upstreamOrUnconfigured(cfg, cfg.UploadKMLPath))
	})

	r.Route("/api/sensors", func(r chi.Router) {
		r.With(middleware.RequireAuth).Get("/", sensorsHandler.HandleList)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(roles.PermissionSensorManagement))
			r.Post("/", sensorsHandler.HandleConnect)
			r.Post("/{id}/extract", sensorsHandler.HandleExtract)
			r.Delete("/{id}", sensorsHandler.HandleDelete)
		})
	})

	compute := upstreamOrUnconfigured(cfg, cfg.ComputePath)
	var computeHandler http.Handler = compute
	if cfg.RateLimit.Enabled && d.Redis != nil {
		limiter := ratelimit.New(d.Redis, "compute", ratelimit.LimiterConfig{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		computeHandler = limiter.Middleware(ratelimit.KeyBySessionOrIP)(compute)
	}
	r.With(middleware.RequirePermission(roles.PermissionAnalytics)).
		Method(http.MethodPost, "/api/compute", computeHandler)

	r.With(middleware.RequirePermission(roles.PermissionDataExport)).
		Get("/api/export/measurements", exportHandler.HandleMeasurementsCSV)

	r.Route("/api/admin/users", func(r chi.Router) {
		r.Use(middleware.RequirePermission(roles.PermissionUserManagement))
		r.Get("/", usersHandler.HandleList)
		r.Patch("/{id}/role", usersHandler.HandleUpdateRole)
	})

	r.With(middleware.RequirePermission(roles.PermissionAdvancedSettings)).
		Get("/api/admin/routes", RoutesSummary())

	if d.Hub != nil {
		r.With(middleware.RequireAuth).Get("/ws/measurements", d.Hub.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		slog.Warn("route not found", "method", r.Method, "path", r.URL.Path)
		apperrors.WriteError(w, apperrors.NotFound("not found"))
	})

	return r
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Correlation-ID")
		if corrID == "" {
			corrID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey, corrID)))
	})
}

// upstreamOrUnconfigured proxies to the analysis service, or answers 502 when
// no collaborator is configured (development without the compute backend).
func upstreamOrUnconfigured(cfg *config.Config, path string) http.HandlerFunc {
	if cfg.GeoServiceURL == "" {
		return func(w http.ResponseWriter, r *http.Request) {
			apperrors.WriteError(w, apperrors.ServiceUnavailable("analysis service not configured", nil))
		}
	}
	h, err := proxy.MakeUpstreamHandler(cfg.GeoServiceURL, path)
	if err != nil {
		slog.Error("invalid analysis service url", "error", err)
		return func(w http.ResponseWriter, r *http.Request) {
			apperrors.WriteError(w, apperrors.ServiceUnavailable("analysis service misconfigured", nil))
		}
	}
	return h
}

// RoutesSummary is served for operability: which privileged routes exist and
// their minimum roles.
func RoutesSummary() http.HandlerFunc {
	type routeInfo struct {
		Path    string `json:"path"`
		Method  string `json:"method"`
		MinRole string `json:"min_role"`
	}
	summary := []routeInfo{
		{"/api/login", http.MethodPost, ""},
		{"/api/logout", http.MethodPost, ""},
		{"/api/user", http.MethodGet, ""},
		{"/api/parcels", http.MethodGet, roles.User},
		{"/api/parcels", http.MethodPost, roles.User},
		{"/api/parcels/upload-kml", http.MethodPost, roles.Technician},
		{"/api/sensors", http.MethodGet, roles.User},
		{"/api/sensors", http.MethodPost, roles.Technician},
		{"/api/compute", http.MethodPost, roles.Technician},
		{"/api/export/measurements", http.MethodGet, roles.Technician},
		{"/api/admin/users", http.MethodGet, roles.Admin},
		{"/api/admin/users/{id}/role", http.MethodPatch, roles.Admin},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	}
}
