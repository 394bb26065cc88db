package server

import (
	"net/http"

	"github.com/watzon/maintrack/internal/metrics"
	"github.com/watzon/maintrack/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if r.server.cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware(r.server.cfg.Metrics.Path))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	srv := r.server

	health := handlers.NewHealthHandlers(srv.DB(), srv.Runner(), srv.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/live", health.Liveness)
	r.mux.HandleFunc("GET /health/ready", health.Readiness)
	r.mux.HandleFunc("GET /api/stats", health.Stats)

	if srv.Runner() != nil {
		jobs := handlers.NewJobHandlers(srv.Runner())
		r.mux.HandleFunc("GET /api/jobs", jobs.List)

		var run http.Handler = http.HandlerFunc(jobs.Run)
		if srv.triggerLimiter != nil {
			run = srv.triggerLimiter.Middleware(run)
		}
		r.mux.Handle("POST /api/jobs/{job}/run", run)
	}

	insp := handlers.NewInspectionHandlers(srv.DB(), srv.clock)
	r.mux.HandleFunc("GET /api/templates", insp.ListTemplates)
	r.mux.HandleFunc("GET /api/templates/{id}", insp.GetTemplate)
	r.mux.HandleFunc("GET /api/templates/{id}/instances", insp.ListInstances)
	r.mux.HandleFunc("GET /api/instances/{id}", insp.GetInstance)
	r.mux.HandleFunc("POST /api/instances/{id}/results", insp.RecordResult)

	perf := handlers.NewPerformanceHandlers(srv.DB())
	r.mux.HandleFunc("GET /api/operators/performance", perf.List)
	r.mux.HandleFunc("GET /api/operators/{id}/performance", perf.Get)

	if srv.cfg.Metrics.Enabled {
		r.mux.Handle("GET "+srv.cfg.Metrics.Path, r.metricsHandler())
	}
}

// metricsHandler refreshes the connection pool gauges before each scrape.
func (r *Router) metricsHandler() http.Handler {
	promHandler := metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		stats := r.server.DB().Stats()
		metrics.UpdateDBStats(stats.OpenConnections, stats.InUse)
		promHandler.ServeHTTP(w, req)
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
