package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"tracecollapse/internal/db"
	"tracecollapse/internal/metrics"
	"tracecollapse/internal/orchestrator"
	"tracecollapse/internal/report"
)

const defaultRunsLimit = 20

// Runner executes one aggregation pass; satisfied by *orchestrator.Pipeline.
type Runner interface {
	Run(ctx context.Context) (*orchestrator.Result, error)
}

// RunLister lists stored runs; satisfied by *db.DB.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Handler holds the server dependencies and the last completed run.
type Handler struct {
	runner  Runner
	runs    RunLister
	metrics *metrics.Metrics
	logger  *slog.Logger

	refreshMu sync.Mutex

	mu   sync.RWMutex
	last *orchestrator.Result
}

// NewHandler creates a new handler. runs may be nil when no store is configured.
func NewHandler(runner Runner, runs RunLister, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:  runner,
		runs:    runs,
		metrics: m,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Get("/report", h.HandleReport(report.FormatJSON))
	r.Get("/report.txt", h.HandleReport(report.FormatText))
	r.Get("/report.md", h.HandleReport(report.FormatMarkdown))
	r.Get("/runs", h.HandleRuns)
	r.Post("/refresh", h.HandleRefresh)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
}

// Refresh runs the pipeline and, on success, replaces the served report.
// Concurrent refreshes are serialized.
func (h *Handler) Refresh(ctx context.Context) (*orchestrator.Result, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	result, err := h.runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.last = result
	h.mu.Unlock()

	return result, nil
}

// Last returns the most recent successful run, or nil.
func (h *Handler) Last() *orchestrator.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady returns 503 until the first report has been built.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.Last() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "waiting for first report",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// HandleReport renders the last report in the given format.
func (h *Handler) HandleReport(format report.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := h.Last()
		if last == nil {
			http.Error(w, "No report available yet", http.StatusServiceUnavailable)
			return
		}

		renderer, err := report.NewRenderer(string(format))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", renderer.ContentType())
		if err := renderer.Render(w, last.Report); err != nil {
			h.logger.Error("Failed to render report", "format", format, "error", err)
		}
	}
}

// HandleRuns lists stored runs, newest first.
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "Report store is not enabled", http.StatusNotFound)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleRefresh re-runs the pipeline synchronously.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.Refresh(r.Context())
	if err != nil {
		h.logger.Error("Refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "refreshed",
		"total_traces": result.Report.TotalTraces,
		"nodes":        result.Report.NodeCount,
		"skipped":      result.Skipped,
		"elapsed_ms":   result.Elapsed.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
