package domain

import "fmt"

// Aggressiveness selects how hard the optimizer leans toward cheaper fees
// at the cost of slower expected inclusion.
type Aggressiveness string

const (
	AggressivenessConservative Aggressiveness = "conservative"
	AggressivenessBalanced     Aggressiveness = "balanced"
	AggressivenessAggressive   Aggressiveness = "aggressive"
)

// Valid reports whether the value is a recognized aggressiveness level.
func (a Aggressiveness) Valid() bool {
	switch a {
	case AggressivenessConservative, AggressivenessBalanced, AggressivenessAggressive:
		return true
	}
	return false
}

// Policy is the process-wide optimizer configuration. It is hot-swappable:
// updates take effect on the next evaluation, never retroactively. Each
// evaluation receives a policy value, so concurrent updates cannot race a
// running computation.
type Policy struct {
	Aggressiveness Aggressiveness `json:"aggressiveness"`
	// MaxWaitTimeSeconds caps the estimated confirmation delay a
	// recommendation may carry.
	MaxWaitTimeSeconds float64 `json:"maxWaitTimeSeconds"`
	// MinSavingsPercent is the floor below which optimization is not
	// recommended.
	MinSavingsPercent float64 `json:"minSavingsPercent"`
	// FeePercent is the service's cut of realized savings, in [0,100].
	FeePercent float64 `json:"feePercent"`
}

// DefaultPolicy returns the shipped optimizer configuration.
func DefaultPolicy() Policy {
	return Policy{
		Aggressiveness:     AggressivenessBalanced,
		MaxWaitTimeSeconds: 30,
		MinSavingsPercent:  5,
		FeePercent:         10,
	}
}

// PolicyPatch is a partial policy update. Nil fields keep their current
// values when the patch is applied.
type PolicyPatch struct {
	Aggressiveness     *Aggressiveness `json:"aggressiveness,omitempty"`
	MaxWaitTimeSeconds *float64        `json:"maxWaitTimeSeconds,omitempty"`
	MinSavingsPercent  *float64        `json:"minSavingsPercent,omitempty"`
	FeePercent         *float64        `json:"feePercent,omitempty"`
}

// Validate rejects patches whose fields fall outside the documented ranges.
// Applied patches always produce a policy the optimizer accepts unclamped.
func (p PolicyPatch) Validate() error {
	if p.Aggressiveness != nil && !p.Aggressiveness.Valid() {
		return fmt.Errorf("%w: unknown aggressiveness %q", ErrInvalidPolicy, *p.Aggressiveness)
	}
	if p.MaxWaitTimeSeconds != nil && *p.MaxWaitTimeSeconds <= 0 {
		return fmt.Errorf("%w: maxWaitTimeSeconds must be positive", ErrInvalidPolicy)
	}
	if p.MinSavingsPercent != nil && (*p.MinSavingsPercent < 0 || *p.MinSavingsPercent > 100) {
		return fmt.Errorf("%w: minSavingsPercent outside [0,100]", ErrInvalidPolicy)
	}
	if p.FeePercent != nil && (*p.FeePercent < 0 || *p.FeePercent > 100) {
		return fmt.Errorf("%w: feePercent outside [0,100]", ErrInvalidPolicy)
	}
	return nil
}

// Apply merges the patch over the policy and returns the result. Fields the
// patch leaves nil retain their prior values.
func (p Policy) Apply(patch PolicyPatch) Policy {
	merged := p
	if patch.Aggressiveness != nil {
		merged.Aggressiveness = *patch.Aggressiveness
	}
	if patch.MaxWaitTimeSeconds != nil {
		merged.MaxWaitTimeSeconds = *patch.MaxWaitTimeSeconds
	}
	if patch.MinSavingsPercent != nil {
		merged.MinSavingsPercent = *patch.MinSavingsPercent
	}
	if patch.FeePercent != nil {
		merged.FeePercent = *patch.FeePercent
	}
	return merged
}
