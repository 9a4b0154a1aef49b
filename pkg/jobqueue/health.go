package jobqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// Report is a point-in-time view of the queue subsystem, suitable for
// health endpoints and admin dashboards.
type Report struct {
	RequestedBackend Backend  `json:"requested_backend"`
	ActualBackend    Backend  `json:"actual_backend"`
	FallbackOccurred bool     `json:"fallback_occurred"`
	BrokerAvailable  bool     `json:"broker_available"`
	Queues           []string `json:"queues"`
	Stats            Summary  `json:"stats"`
}

// Health builds a report from the current state. BrokerAvailable reflects
// a live adapter health check, not the probe result cached at resolution
// time.
func (s *Service) Health(ctx context.Context) Report {
	s.mu.RLock()
	adapter := s.adapter
	sel := s.selection
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)

	report := Report{
		RequestedBackend: sel.Requested,
		ActualBackend:    sel.Actual,
		FallbackOccurred: sel.FallbackOccurred,
		Queues:           names,
		Stats:            s.tracker.GlobalSummary(),
	}
	if adapter != nil {
		report.BrokerAvailable = adapter.Healthy(ctx)
	}
	return report
}

// NewHealthHandler exposes the service report as JSON on GET /health.
// The endpoint answers 200 whenever the subsystem is up, including when
// it runs on the fallback backend; the body tells the two apart.
func NewHealthHandler(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		report := svc.Health(req.Context())

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, "failed to encode health report", http.StatusInternalServerError)
		}
	})
	return r
}
