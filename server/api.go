// Package server exposes the inspection engine over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icelens/icelens"
	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/metrics"
	"github.com/icelens/icelens/sample"
)

// Server handles the REST API over one Explorer.
type Server struct {
	explorer *icelens.Explorer
	log      *slog.Logger

	// scheme joins bucket/path query pairs into store URIs.
	scheme string
}

// NewServer creates a server. scheme defaults to "gs".
func NewServer(e *icelens.Explorer, scheme string, log *slog.Logger) *Server {
	if scheme == "" {
		scheme = "gs"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{explorer: e, log: log, scheme: scheme}
}

// Handler returns the API router.
//
//	GET /api/v1/analyze           — full table report
//	GET /api/v1/analyze/snapshot  — one snapshot expanded to data files
//	GET /api/v1/sample            — bounded row sample
//	GET /api/v1/snapshot/compare  — diff two snapshots
//	GET /api/v1/discover          — find tables under a prefix
//	GET /healthz                  — liveness
//	GET /metrics                  — prometheus metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/api/v1/analyze", s.analyze)
	r.Get("/api/v1/analyze/snapshot", s.analyzeSnapshot)
	r.Get("/api/v1/sample", s.sampleRows)
	r.Get("/api/v1/snapshot/compare", s.compare)
	r.Get("/api/v1/discover", s.discover)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestLog tags each request with an id and logs its outcome.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// location resolves the table URI from either a full location param or
// the bucket/path pair the original API used.
func (s *Server) location(r *http.Request) (string, error) {
	if loc := r.URL.Query().Get("location"); loc != "" {
		return loc, nil
	}
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		return "", errors.New("missing location or bucket parameter")
	}
	path := strings.Trim(r.URL.Query().Get("path"), "/")
	if path == "" {
		return s.scheme + "://" + bucket, nil
	}
	return s.scheme + "://" + bucket + "/" + path, nil
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	loc, err := s.location(r)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	history, _ := strconv.ParseBool(r.URL.Query().Get("history"))
	if r.URL.Query().Get("refresh") == "true" {
		s.explorer.Refresh(loc)
	}

	start := time.Now()
	var report *icelens.TableReport
	if v := r.URL.Query().Get("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil {
			writeError(w, s.log, errors.New("version must be an integer"), http.StatusBadRequest)
			return
		}
		report, err = s.explorer.AnalyzeVersion(r.Context(), loc, version)
	} else {
		report, err = s.explorer.Analyze(r.Context(), loc, history)
	}
	metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalyzeRequests.WithLabelValues("error").Inc()
		writeError(w, s.log, err, 0)
		return
	}
	metrics.AnalyzeRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) analyzeSnapshot(w http.ResponseWriter, r *http.Request) {
	loc, err := s.location(r)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	id := r.URL.Query().Get("snapshot_id")
	if id == "" {
		writeError(w, s.log, errors.New("missing snapshot_id parameter"), http.StatusBadRequest)
		return
	}
	detail, err := s.explorer.AnalyzeSnapshot(r.Context(), loc, id)
	if err != nil {
		writeError(w, s.log, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) sampleRows(w http.ResponseWriter, r *http.Request) {
	loc, err := s.location(r)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	scope := sample.Scope{
		SnapshotID:   q.Get("snapshot_id"),
		ManifestPath: q.Get("manifest_path"),
		FilePath:     q.Get("file_path"),
	}
	result, err := s.explorer.Sample(r.Context(), loc, scope, limit)
	if err != nil {
		writeError(w, s.log, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	loc, err := s.location(r)
	if err != nil {
		writeError(w, s.log, err, http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	id2 := q.Get("snapshot_id_2")
	if id2 == "" {
		writeError(w, s.log, errors.New("missing snapshot_id_2 parameter"), http.StatusBadRequest)
		return
	}
	report, err := s.explorer.Compare(r.Context(), loc, q.Get("snapshot_id_1"), id2)
	if err != nil {
		writeError(w, s.log, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		writeError(w, s.log, errors.New("missing bucket parameter"), http.StatusBadRequest)
		return
	}
	prefix := bucket
	if !strings.Contains(prefix, "://") {
		prefix = s.scheme + "://" + bucket
	}
	d, err := s.explorer.Discover(r.Context(), prefix)
	if err != nil {
		writeError(w, s.log, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// writeError maps engine errors onto HTTP statuses. status overrides
// the mapping when non-zero.
func writeError(w http.ResponseWriter, log *slog.Logger, err error, status int) {
	if status == 0 {
		switch {
		case errors.Is(err, lenserr.ErrInvalidTable), errors.Is(err, lenserr.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, lenserr.ErrPermission):
			status = http.StatusForbidden
		case errors.Is(err, lenserr.ErrTimeout):
			status = http.StatusGatewayTimeout
		case errors.Is(err, lenserr.ErrDecode):
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusInternalServerError
		}
	}
	if status >= 500 {
		log.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
