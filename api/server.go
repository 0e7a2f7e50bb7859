// Package api exposes the whale tracking pipeline over HTTP, grounded
// directly on the teacher's api.Server: a thin struct of dependencies,
// a ServeMux built by per-resource registerXRoutes helpers, and the same
// gzip(cors(logging(mux))) middleware chain. Route paths and verbs
// follow the teacher's Go 1.22+ "METHOD /path" pattern syntax.
package api

import (
	"compress/gzip"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/broadcaster"
	"github.com/whaletrack/core/database/events"
	"github.com/whaletrack/core/database/holdings"
	"github.com/whaletrack/core/database/metricsdb"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/priceoracle"
)

// Deps are every dependency the API layer reads or writes through.
// Concrete repository types are used directly (they don't import api,
// so there's no cycle); the four stateful engines are narrowed to
// interfaces defined in this package to keep api import-free of app.
type Deps struct {
	Whales   *whales.Repository
	Trades   *trades.Repository
	Events   *events.Repository
	Holdings *holdings.Repository
	Metrics  *metricsdb.Repository

	MetricsEngine MetricsService
	Backfill      BackfillService
	Copier        CopierService
	LiveCopier    LiveCopierService

	Broker *broadcaster.Broker
	Prices *priceoracle.Oracle
}

// Server handles HTTP API requests for the whale tracking pipeline.
type Server struct {
	deps Deps
}

// NewServer constructs a Server from its dependencies.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the full mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.registerDashboardRoutes(mux)
	s.registerWhaleRoutes(mux)
	s.registerWalletRoutes(mux)
	s.registerEventRoutes(mux)
	s.registerCopierRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return s.gzipMiddleware(s.corsMiddleware(s.loggingMiddleware(mux)))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// gzipResponseWriter wraps http.ResponseWriter to support gzip compression.
type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

// gzipMiddleware compresses API responses, skipping the streaming
// SSE/WebSocket endpoints the way the teacher's skips "/stream".
func (s *Server) gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v1") {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		if strings.Contains(r.URL.Path, "/live") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzw := &gzipResponseWriter{ResponseWriter: w, writer: gz}
		next.ServeHTTP(gzw, r)
	})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("api: encode response: %v", err)
		}
	}
}

// errorDetail is the structured error body of section 7.
type errorDetail struct {
	Detail string `json:"detail"`
}

// writeError translates an apperr.Kind to a status code and writes the
// structured {detail} body; unrecognized errors become a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict, apperr.KindConflictSkipped:
		status = http.StatusConflict
	case apperr.KindInvariant:
		status = http.StatusBadRequest
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
	case apperr.KindUpstreamUnavailable, apperr.KindDecodeError:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorDetail{Detail: err.Error()})
}
