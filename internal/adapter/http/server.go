// Package http exposes the forecast cache over a JSON API, plus health
// and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftline/windcache/internal/cache"
	"github.com/driftline/windcache/internal/scheduler"
)

// windglCacheControl is set on tile-consumer responses so map clients can
// reuse rasters between frames.
const windglCacheControl = "public, max-age=300"

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SchedulerControl is the scheduler surface the API needs: status plus the
// two manual refresh triggers.
type SchedulerControl interface {
	Status() scheduler.Status
	FetchHistorical24h(ctx context.Context) (bool, error)
	FetchLatest(ctx context.Context) (bool, error)
}

// SnapshotReader reads stored forecast payloads and their version history.
type SnapshotReader interface {
	GetValue(ctx context.Context, key string) (json.RawMessage, bool, error)
	GetBinary(ctx context.Context, key string) ([]byte, bool, error)
	Indices(ctx context.Context, baseKey string) ([]cache.IndexEntry, error)
}

// Server exposes the forecast API together with health, readiness, and
// metrics routes.
type Server struct {
	httpServer *http.Server
	sched      SchedulerControl
	store      SnapshotReader
	logger     *slog.Logger
}

// NewServer wires all routes onto a fresh mux.
func NewServer(addr string, sched SchedulerControl, store SnapshotReader, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// The refresh handlers clear this deadline per request; a
			// synchronous historical fetch outlives any sane global value.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sched:  sched,
		store:  store,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/wind-status", s.handleWindStatus)
	mux.HandleFunc("POST /api/wind-refresh", s.handleWindRefresh)
	mux.HandleFunc("POST /api/wind-refresh-latest", s.handleWindRefreshLatest)

	mux.HandleFunc("GET /api/wind-global", s.latestJSON(scheduler.WindPointsKey, "wind data"))
	mux.HandleFunc("GET /api/wind-global/{index}", s.indexedJSON(scheduler.WindPointsKey))
	mux.HandleFunc("GET /api/wind-indices", s.handleIndices(scheduler.WindPointsKey))

	mux.HandleFunc("GET /api/precipitation-global", s.latestJSON(scheduler.PrecipitationPointsKey, "precipitation data"))
	mux.HandleFunc("GET /api/precipitation-global/{index}", s.indexedJSON(scheduler.PrecipitationPointsKey))
	mux.HandleFunc("GET /api/precipitation-indices", s.handleIndices(scheduler.PrecipitationPointsKey))

	mux.HandleFunc("GET /api/windgl/metadata.json", s.handleWindMetadata)
	mux.HandleFunc("GET /api/windgl/metadata.json/{index}", s.handleWindMetadataIndexed)
	mux.HandleFunc("GET /api/windgl/wind.png", s.handleWindPNG)
	mux.HandleFunc("GET /api/windgl/wind.png/{index}", s.handleWindPNGIndexed)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleWindStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleWindRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresh(w, r, s.sched.FetchHistorical24h)
}

func (s *Server) handleWindRefreshLatest(w http.ResponseWriter, r *http.Request) {
	s.refresh(w, r, s.sched.FetchLatest)
}

// refresh runs a fetch trigger synchronously. An upstream failure is a
// successful request that reports success=false; only cache-layer faults
// become a 500. The response carries the scheduler status in the same
// shape GET /api/wind-status returns.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request, fetch func(context.Context) (bool, error)) {
	// A full historical pass legitimately runs for minutes, well past the
	// server's write timeout; lift the deadline so the response still
	// reaches the client.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not clear write deadline", "error", err)
	}

	ok, err := fetch(r.Context())
	if err != nil {
		s.logger.Error("manual refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": ok,
		"status":  s.sched.Status(),
	})
}

// latestJSON serves the most recent stored payload at key, or 503 when the
// cache holds nothing yet.
func (s *Server) latestJSON(key, label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok, err := s.store.GetValue(r.Context(), key)
		if err != nil {
			s.serverError(w, "read cache", err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": fmt.Sprintf("no %s available yet", label),
			})
			return
		}
		writeRaw(w, http.StatusOK, raw)
	}
}

// indexedJSON serves a specific stored version, or 404 when that index does
// not exist.
func (s *Server) indexedJSON(baseKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, ok := pathIndex(w, r)
		if !ok {
			return
		}

		raw, found, err := s.store.GetValue(r.Context(), fmt.Sprintf("%s:%d", baseKey, index))
		if err != nil {
			s.serverError(w, "read cache", err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("no data at index %d", index),
			})
			return
		}
		writeRaw(w, http.StatusOK, raw)
	}
}

func (s *Server) handleIndices(baseKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.store.Indices(r.Context(), baseKey)
		if err != nil {
			s.serverError(w, "list indices", err)
			return
		}
		if entries == nil {
			entries = []cache.IndexEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"indices": entries})
	}
}

func (s *Server) handleWindMetadata(w http.ResponseWriter, r *http.Request) {
	s.serveMetadata(w, r, scheduler.WindMetadataKey)
}

func (s *Server) handleWindMetadataIndexed(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	s.serveMetadata(w, r, fmt.Sprintf("%s:%d", scheduler.WindMetadataKey, index))
}

func (s *Server) serveMetadata(w http.ResponseWriter, r *http.Request, key string) {
	raw, ok, err := s.store.GetValue(r.Context(), key)
	if err != nil {
		s.serverError(w, "read metadata", err)
		return
	}
	if !ok {
		status := http.StatusServiceUnavailable
		if key != scheduler.WindMetadataKey {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": "no wind metadata available"})
		return
	}

	w.Header().Set("Cache-Control", windglCacheControl)
	writeRaw(w, http.StatusOK, raw)
}

func (s *Server) handleWindPNG(w http.ResponseWriter, r *http.Request) {
	s.servePNG(w, r, scheduler.WindPNGKey, http.StatusServiceUnavailable)
}

func (s *Server) handleWindPNGIndexed(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	s.servePNG(w, r, fmt.Sprintf("%s:%d", scheduler.WindPNGKey, index), http.StatusNotFound)
}

func (s *Server) servePNG(w http.ResponseWriter, r *http.Request, key string, missingStatus int) {
	buf, ok, err := s.store.GetBinary(r.Context(), key)
	if err != nil {
		s.serverError(w, "read raster", err)
		return
	}
	if !ok {
		writeJSON(w, missingStatus, map[string]string{"error": "no wind raster available"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", windglCacheControl)
	w.WriteHeader(http.StatusOK)
	w.Write(buf) //nolint:errcheck // client gone, nothing to do
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// pathIndex parses the {index} path segment, replying 404 on garbage.
func pathIndex(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := r.PathValue("index")
	index, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("invalid index %q", raw),
		})
		return 0, false
	}
	return uint32(index), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw) //nolint:errcheck // best-effort response
}
