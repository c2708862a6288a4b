// Package api provides the HTTP server for Glimmer. It exposes the event
// intake endpoint, subject and queue reads, the redeem catalog, and the
// admin surface for adjustments and batch operations.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glimmer-live/glimmer/internal/app/batch"
	"github.com/glimmer-live/glimmer/internal/app/ledger"
	"github.com/glimmer-live/glimmer/internal/app/leveling"
	"github.com/glimmer-live/glimmer/internal/app/pipeline"
	"github.com/glimmer-live/glimmer/internal/app/queue"
	"github.com/glimmer-live/glimmer/internal/app/redeem"
)

// Version is reported by /api/version.
const Version = "0.3.0"

// Server is the Glimmer HTTP API server.
type Server struct {
	pipeline *pipeline.Engine
	ledger   *ledger.Ledger
	leveling *leveling.Engine
	batch    *batch.Coordinator
	redeems  *redeem.Service
	queue    *queue.Service

	metricsEnabled bool
	rulesReload    func() error // nil when no rules file is configured
}

// NewServer creates a new API server.
func NewServer(p *pipeline.Engine, led *ledger.Ledger, lvl *leveling.Engine, bc *batch.Coordinator, rd *redeem.Service, q *queue.Service) *Server {
	return &Server{
		pipeline: p,
		ledger:   led,
		leveling: lvl,
		batch:    bc,
		redeems:  rd,
		queue:    q,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRulesReload sets the callback invoked by POST /api/admin/rewards/reload.
func (s *Server) SetRulesReload(fn func() error) { s.rulesReload = fn }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"version": Version,
			})
		})

		r.Post("/events", s.handleEvent)

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", s.handleListSubjects)
			r.Get("/{name}", s.handleGetSubject)
			r.Get("/{name}/transactions", s.handleTransactions)
		})

		r.Route("/redeems", func(r chi.Router) {
			r.Get("/", s.handleListRedeems)
			r.Post("/", s.handleUpsertRedeem)
			r.Post("/{key}/toggle", s.handleToggleRedeem)
			r.Post("/{key}/redeem", s.handleRedeem)
		})

		r.Get("/queue", s.handleQueue)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjust", s.handleAdjust)
			r.Post("/batch", s.handleBatch)
			r.Post("/rewards/reload", s.handleRulesReload)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for overlay and dashboard clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
