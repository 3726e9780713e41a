package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vjranagit/idealfit/pkg/fit"
	"github.com/vjranagit/idealfit/pkg/storage"
	"github.com/vjranagit/idealfit/pkg/types"
)

// Limits of a single classify request
const (
	maxPoints    = 10000
	maxBodyBytes = 1 << 20
)

// cacheStatser is implemented by storages that count cache hits
type cacheStatser interface {
	CacheStats() (storage.CacheStats, uint64, uint64)
}

// DefaultResults is the result set served when no name is given
const DefaultResults = "test_data"

// Server implements the HTTP API server
type Server struct {
	storage    storage.Storage
	selection  *fit.Selection
	classifier *fit.Classifier
	addr       string
	timeout    time.Duration
	server     *http.Server

	requests  atomic.Uint64
	matched   atomic.Uint64
	unmatched atomic.Uint64
	failed    atomic.Uint64
}

// ClassifyRequest is the body of POST /api/v1/classify
type ClassifyRequest struct {
	Points []types.QueryPoint `json:"points"`
}

// ClassifyResponse is the reply of POST /api/v1/classify
type ClassifyResponse struct {
	Results []types.PointResult `json:"results"`
}

// ResultsResponse is the reply of GET /api/v1/results
type ResultsResponse struct {
	Name    string              `json:"name"`
	Results []types.PointResult `json:"results"`
}

// MatchesResponse is the reply of GET /api/v1/matches
type MatchesResponse struct {
	Pairs  []types.Pair `json:"pairs"`
	Curves []fit.Curve  `json:"curves"`
}

// NewServer creates a new API server for a fitted selection
func NewServer(addr string, timeout time.Duration, store storage.Storage, sel *fit.Selection, clf *fit.Classifier) *Server {
	return &Server{
		storage:    store,
		selection:  sel,
		classifier: clf,
		addr:       addr,
		timeout:    timeout,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/classify", s.handleClassify)
	mux.HandleFunc("/api/v1/matches", getOnly(s.handleMatches))
	mux.HandleFunc("/api/v1/tables", getOnly(s.handleTables))
	mux.HandleFunc("/api/v1/results", getOnly(s.handleResults))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleClassify classifies a batch of query points
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ClassifyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Request body too large (max %d bytes)", maxBodyBytes), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Points) == 0 {
		http.Error(w, "No points given", http.StatusBadRequest)
		return
	}
	if len(req.Points) > maxPoints {
		http.Error(w, fmt.Sprintf("Too many points (max %d)", maxPoints), http.StatusRequestEntityTooLarge)
		return
	}

	s.requests.Add(1)
	results := s.classifier.ClassifyAll(req.Points)
	for _, res := range results {
		switch {
		case res.Failed():
			s.failed.Add(1)
		case res.Matched:
			s.matched.Add(1)
		default:
			s.unmatched.Add(1)
		}
	}

	writeJSON(w, ClassifyResponse{Results: results})
}

// handleMatches reports the chosen candidates and their tolerances
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, MatchesResponse{
		Pairs:  s.selection.Match.Pairs,
		Curves: s.classifier.Curves(),
	})
}

// handleTables lists stored tables, optionally filtered by ?kind=
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	kind := storage.Kind(r.URL.Query().Get("kind"))
	writeJSON(w, s.storage.Tables(r.Context(), kind))
}

// handleResults returns a stored result set, ?name= defaults to test_data
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = DefaultResults
	}

	results, err := s.storage.LoadResults(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, fmt.Sprintf("No results named %q", name), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load results: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ResultsResponse{Name: name, Results: results})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
	})
}

// handleMetrics exports classification counters in Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# TYPE idealfit_classify_requests_total counter\n")
	fmt.Fprintf(w, "idealfit_classify_requests_total %d\n", s.requests.Load())
	fmt.Fprintf(w, "# TYPE idealfit_points_total counter\n")
	fmt.Fprintf(w, "idealfit_points_total{outcome=\"matched\"} %d\n", s.matched.Load())
	fmt.Fprintf(w, "idealfit_points_total{outcome=\"unmatched\"} %d\n", s.unmatched.Load())
	fmt.Fprintf(w, "idealfit_points_total{outcome=\"failed\"} %d\n", s.failed.Load())

	if cs, ok := s.storage.(cacheStatser); ok {
		stats, hits, misses := cs.CacheStats()
		fmt.Fprintf(w, "# TYPE idealfit_table_cache_requests_total counter\n")
		fmt.Fprintf(w, "idealfit_table_cache_requests_total{result=\"hit\"} %d\n", hits)
		fmt.Fprintf(w, "idealfit_table_cache_requests_total{result=\"miss\"} %d\n", misses)
		fmt.Fprintf(w, "# TYPE idealfit_table_cache_entries gauge\n")
		fmt.Fprintf(w, "idealfit_table_cache_entries %d\n", stats.Size)
	}
}

// getOnly rejects every method but GET
func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
