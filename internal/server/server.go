// Package server is the HTTP control surface for the analysis engine.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cellsentry/cellsentry/internal/analysis"
)

// Analysis is the queue surface the handlers need.
type Analysis interface {
	Snapshot() analysis.Snapshot
	Queue(name string) (bool, analysis.Snapshot, error)
	QueueAll() (bool, analysis.Snapshot, error)
}

// New wires the control routes into a fresh mux. metricsHandler may
// be nil when the scrape endpoint is not wanted.
func New(a Analysis, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterRoutes(mux, a)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// RegisterRoutes wires analysis routes into the provided mux.
func RegisterRoutes(mux *http.ServeMux, a Analysis) {
	if mux == nil || a == nil {
		return
	}
	mux.HandleFunc("GET /api/analysis", func(w http.ResponseWriter, r *http.Request) {
		HandleStatus(w, r, a)
	})
	mux.HandleFunc("POST /api/analysis", func(w http.ResponseWriter, r *http.Request) {
		HandleStart(w, r, a, "")
	})
	mux.HandleFunc("POST /api/analysis/{name}", func(w http.ResponseWriter, r *http.Request) {
		HandleStart(w, r, a, r.PathValue("name"))
	})
}

// HandleStatus serves the current queue snapshot.
func HandleStatus(w http.ResponseWriter, r *http.Request, a Analysis) {
	writeJSON(r, w, http.StatusOK, a.Snapshot())
}

// HandleStart enqueues one capture, or every eligible capture when
// name is empty. The response is 202 plus the post-enqueue snapshot
// whether or not anything was newly queued.
func HandleStart(w http.ResponseWriter, r *http.Request, a Analysis, name string) {
	var snap analysis.Snapshot
	var err error
	if name == "" {
		_, snap, err = a.QueueAll()
	} else {
		_, snap, err = a.Queue(name)
	}
	if err != nil {
		writeJSON(r, w, http.StatusInternalServerError, errorBody{
			Error: "failed to queue new analysis files: " + err.Error(),
		})
		return
	}
	writeJSON(r, w, http.StatusAccepted, snap)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(r *http.Request, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "writing response failed", "error", err)
	}
}
