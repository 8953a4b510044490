package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// PolicyStore defines the methods the policy handler requires.
type PolicyStore interface {
	Policy() domain.Policy
	Update(patch domain.PolicyPatch) domain.Policy
}

// PolicyHandler serves the optimization policy endpoints.
type PolicyHandler struct {
	policies PolicyStore
	logger   *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler with the given store and logger.
func NewPolicyHandler(policies PolicyStore, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{
		policies: policies,
		logger:   logger,
	}
}

// GetPolicy returns the active policy.
// GET /api/v1/policy
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.policies.Policy())
}

// UpdatePolicy merges a partial policy over the active one and returns the
// result. Fields absent from the body keep their current values.
// PUT /api/v1/policy
func (h *PolicyHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var patch domain.PolicyPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	merged := h.policies.Update(patch)
	writeJSON(w, http.StatusOK, merged)
}
