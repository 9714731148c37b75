// Package handlers implements the HTTP surface: session login/logout, API
// secret CRUD, and a liveness check, each wired through the rate-limit and
// route-lock gates from internal/middleware.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/idropr/core/internal/config"
	"github.com/idropr/core/internal/metrics"
	"github.com/idropr/core/internal/middleware"
	"github.com/idropr/core/internal/permission"
	"github.com/idropr/core/internal/ratelimit"
	"github.com/idropr/core/internal/repository"
	"github.com/idropr/core/internal/sessionctl"
)

// Handlers holds the dependencies every route needs: the database, the
// in-memory session controller, the master password for secret
// encryption, and the metrics registry secret crypto failures report to.
type Handlers struct {
	db             repository.DB
	sessions       *sessionctl.Controller
	masterPassword string
	now            func() time.Time
	metrics        *metrics.Metrics
}

// New constructs Handlers. now defaults to time.Now if nil. m may be nil,
// in which case crypto-failure counters are skipped.
func New(db repository.DB, sessions *sessionctl.Controller, masterPassword string, now func() time.Time, m *metrics.Metrics) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{db: db, sessions: sessions, masterPassword: masterPassword, now: now, metrics: m}
}

// sysAdminMask is the required_mask for the SysAdmin-only secrets routes.
var sysAdminMask = permission.Mask{}.
	Grant(permission.Secrets, permission.Read, permission.Any).
	Grant(permission.Secrets, permission.Write, permission.Any).
	Grant(permission.Secrets, permission.Delete, permission.Any)

// deleteSelfSessionsMask is the required_mask for DELETE /v1/sessions.
var deleteSelfSessionsMask = permission.Mask{}.Grant(permission.Sessions, permission.Delete, permission.Self)

// NewHTTPHandler returns an [http.Handler] wired with every route,
// gated by the rate limiter and, for protected routes, the route-lock
// gate. m may be nil, in which case no /metrics route is mounted and
// rate-limit denials are not counted.
func NewHTTPHandler(h *Handlers, limiter *ratelimit.Limiter, m *metrics.Metrics, mode config.ServerMode, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	lock := func(mask permission.Mask, handler http.HandlerFunc) http.Handler {
		return middleware.RouteLock(h.sessions, h.db, mask, logger)(handler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", h.handleLogin)
	mux.Handle("DELETE /v1/sessions", lock(deleteSelfSessionsMask, h.handleLogout))
	mux.Handle("POST /v1/secrets", lock(sysAdminMask, h.handleCreateSecret))
	mux.Handle("GET /v1/secrets/{id}", lock(sysAdminMask, h.handleGetSecret))
	mux.Handle("PUT /v1/secrets/{id}", lock(sysAdminMask, h.handleUpdateSecret))
	mux.Handle("PATCH /v1/secrets/{id}", lock(sysAdminMask, h.handleUpdateSecret))
	mux.Handle("DELETE /v1/secrets/{id}", lock(sysAdminMask, h.handleDeleteSecret))
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var handler http.Handler = mux
	handler = maintenanceGate(mode, handler)
	handler = middleware.RateLimitGate(limiter, m, logger)(handler)
	handler = middleware.HTTPRequestLogging(logger)(handler)
	handler = otelhttp.NewHandler(handler, "core.http")

	return handler
}

// maintenanceGate rejects all traffic except the liveness check and the
// metrics endpoint with 503 while the server is in MAINTENANCE mode.
func maintenanceGate(mode config.ServerMode, next http.Handler) http.Handler {
	if mode != config.ModeMaintenance {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "server is in maintenance mode")
	})
}
