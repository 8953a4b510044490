package service

import (
	"log/slog"
	"sync"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// PolicyService holds the active optimization policy. Updates merge over the
// current value and take effect on the next evaluation; there is no history,
// last write wins. Range validation happens at the HTTP boundary, so the
// store itself merges blindly.
type PolicyService struct {
	logger *slog.Logger

	mu       sync.RWMutex
	policy   domain.Policy
	onUpdate func(domain.Policy)
}

// NewPolicyService creates the store seeded with the given policy.
func NewPolicyService(initial domain.Policy, logger *slog.Logger) *PolicyService {
	return &PolicyService{
		logger: logger.With(slog.String("component", "policy_service")),
		policy: initial,
	}
}

// OnUpdate registers a hook invoked with the merged policy after every
// update. Used to broadcast policy changes to connected clients. Must be set
// during wiring, before updates flow.
func (s *PolicyService) OnUpdate(fn func(domain.Policy)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Policy returns the current policy by value.
func (s *PolicyService) Policy() domain.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Update merges the patch over the current policy and returns the result.
// Fields the patch leaves nil keep their prior values.
func (s *PolicyService) Update(patch domain.PolicyPatch) domain.Policy {
	s.mu.Lock()
	s.policy = s.policy.Apply(patch)
	merged := s.policy
	hook := s.onUpdate
	s.mu.Unlock()

	s.logger.Info("policy updated",
		slog.String("aggressiveness", string(merged.Aggressiveness)),
		slog.Float64("max_wait_seconds", merged.MaxWaitTimeSeconds),
		slog.Float64("min_savings_percent", merged.MinSavingsPercent),
		slog.Float64("fee_percent", merged.FeePercent),
	)
	if hook != nil {
		hook(merged)
	}
	return merged
}
