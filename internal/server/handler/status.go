package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
	"github.com/alanyoungcy/gaspilot/internal/service"
)

// FeeDiagnostics exposes aggregator internals for the status endpoint.
type FeeDiagnostics interface {
	Stats() service.FeeStats
	Cached() (domain.FeeSnapshot, bool)
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler serves the service status for dashboards: mode, uptime,
// snapshot freshness, aggregator counters and client counts.
type StatusHandler struct {
	mode     string
	started  time.Time
	fees     FeeDiagnostics
	policies PolicyReader
	clients  ClientCounter
}

// NewStatusHandler creates a StatusHandler. clients may be nil when no
// WebSocket hub is running.
func NewStatusHandler(mode string, started time.Time, fees FeeDiagnostics, policies PolicyReader, clients ClientCounter) *StatusHandler {
	return &StatusHandler{
		mode:     mode,
		started:  started,
		fees:     fees,
		policies: policies,
		clients:  clients,
	}
}

// GetStatus responds with the current service state.
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":          h.mode,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"aggregator":    h.fees.Stats(),
		"policy":        h.policies.Policy(),
	}

	if snap, ok := h.fees.Cached(); ok {
		body["snapshot"] = map[string]any{
			"source":            snap.Source,
			"ageSeconds":        snap.Age().Seconds(),
			"baseFee":           snap.BaseFee,
			"networkCongestion": snap.NetworkCongestion,
		}
	} else {
		body["snapshot"] = nil
	}

	if h.clients != nil {
		body["wsClients"] = h.clients.ClientCount()
	}

	writeJSON(w, http.StatusOK, body)
}
