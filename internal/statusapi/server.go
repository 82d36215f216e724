// Package statusapi serves the daemon's read-only diagnostics over HTTP:
// the session table as JSON, and Prometheus metrics. Nothing here mutates
// scheduler state.
package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/scheduler"
)

// sessionView is the JSON shape of one session in list and detail responses.
type sessionView struct {
	ID     string               `json:"id"`
	Status domain.SessionStatus `json:"status"`
	Jobs   []domain.Job         `json:"jobs,omitempty"`
}

// NewHandler builds the HTTP handler for a scheduler and a metrics gatherer.
func NewHandler(sched *scheduler.Scheduler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		var views []sessionView
		for _, id := range sched.SessionIDs() {
			status, err := sched.SessionStatus(id)
			if err != nil {
				continue // removed between listing and lookup
			}
			views = append(views, sessionView{ID: id, Status: status})
		}
		writeJSON(w, views)
	})

	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		jobs, err := sched.JobsFor(id)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status, _ := sched.SessionStatus(id)
		writeJSON(w, sessionView{ID: id, Status: status, Jobs: jobs})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
