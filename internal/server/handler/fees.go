package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// FeeReader defines the snapshot access the fee handler requires.
type FeeReader interface {
	Snapshot(ctx context.Context) (domain.FeeSnapshot, error)
	Cached() (domain.FeeSnapshot, bool)
}

// PolicyReader provides the active policy for evaluations.
type PolicyReader interface {
	Policy() domain.Policy
}

// Optimizer evaluates a transaction intent against a snapshot and policy.
type Optimizer interface {
	Optimize(snap domain.FeeSnapshot, intent domain.TransactionIntent, policy domain.Policy) domain.OptimizationResult
}

// FeeHandler serves the fee snapshot and optimization endpoints.
type FeeHandler struct {
	fees     FeeReader
	policies PolicyReader
	engine   Optimizer
	logger   *slog.Logger
}

// NewFeeHandler creates a FeeHandler with the given dependencies.
func NewFeeHandler(fees FeeReader, policies PolicyReader, engine Optimizer, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{
		fees:     fees,
		policies: policies,
		engine:   engine,
		logger:   logger,
	}
}

// GetSnapshot returns the current fee snapshot, fetching if the cache is
// stale. When every upstream source is down it responds 503 and attaches the
// last known snapshot, if any, so dashboards can show something.
// GET /api/v1/fees/snapshot
func (h *FeeHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.fees.Snapshot(r.Context())
	if err != nil {
		h.writeSnapshotError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Optimize evaluates a transaction intent against the current snapshot and
// active policy.
// POST /api/v1/fees/optimize
func (h *FeeHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var intent domain.TransactionIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := intent.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.fees.Snapshot(r.Context())
	if err != nil {
		// Recommending fee parameters off stale data would defeat the
		// point, so optimization fails outright when sources are down.
		h.writeSnapshotError(w, r, err)
		return
	}

	result := h.engine.Optimize(snap, intent, h.policies.Policy())
	writeJSON(w, http.StatusOK, result)
}

// writeSnapshotError maps fetch failures onto HTTP responses.
func (h *FeeHandler) writeSnapshotError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		body := map[string]any{
			"error": "fee data unavailable: all upstream sources failed",
		}
		if stale, ok := h.fees.Cached(); ok {
			body["staleSnapshot"] = stale
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	h.logger.ErrorContext(r.Context(), "handler: fee snapshot failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to load fee snapshot")
}
