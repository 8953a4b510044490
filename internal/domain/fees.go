package domain

import (
	"fmt"
	"time"
)

// SpeedTier identifies one of the four named service levels quoted by fee
// oracles. Tiers order from cheapest/slowest to most expensive/fastest.
type SpeedTier string

const (
	TierSafeLow  SpeedTier = "safeLow"
	TierStandard SpeedTier = "standard"
	TierFast     SpeedTier = "fast"
	TierFastest  SpeedTier = "fastest"
)

// SpeedTiers lists all tiers in ascending price order. Normalizers emit
// priority-fee ranges in this order and validators walk it when checking
// tier monotonicity.
var SpeedTiers = [4]SpeedTier{TierSafeLow, TierStandard, TierFast, TierFastest}

// CongestionCeilingGwei is the base fee, in gwei, at which the congestion
// score saturates at 1. Kept verbatim for result parity with prior releases.
const CongestionCeilingGwei = 100.0

// TierPrice is the EIP-1559 fee pair quoted for a single speed tier.
// Values are gwei per gas unit.
type TierPrice struct {
	MaxFeePerGas         float64 `json:"maxFeePerGas"`
	MaxPriorityFeePerGas float64 `json:"maxPriorityFeePerGas"`
}

// FeeSnapshot is one normalized observation of network fee conditions.
// Snapshots are values: a refresh cycle supersedes the previous snapshot,
// it never mutates one in place.
type FeeSnapshot struct {
	// BaseFee is the current block base fee in gwei.
	BaseFee float64 `json:"baseFee"`
	// PriorityFeeRange samples priority fees across the speed tiers in
	// SpeedTiers order. Not sorted on arrival; consumers sort as needed.
	PriorityFeeRange []float64 `json:"priorityFeeRange"`
	// NetworkCongestion is the [0,1] demand heuristic derived from BaseFee.
	NetworkCongestion float64 `json:"networkCongestion"`
	// EstimatedPrices quotes all four speed tiers. Never partial.
	EstimatedPrices map[SpeedTier]TierPrice `json:"estimatedPrices"`
	// Source names the provider that produced this snapshot. Diagnostics
	// only; decision logic never branches on it.
	Source string `json:"source"`
	// FetchedAt drives cache freshness, not decision math.
	FetchedAt time.Time `json:"fetchedAt"`
}

// CongestionScore maps a base fee in gwei to the [0,1] congestion heuristic:
// baseFee / CongestionCeilingGwei, saturating at 1.
func CongestionScore(baseFee float64) float64 {
	if baseFee <= 0 {
		return 0
	}
	score := baseFee / CongestionCeilingGwei
	if score > 1 {
		return 1
	}
	return score
}

// Age reports how long ago the snapshot was fetched.
func (s FeeSnapshot) Age() time.Duration {
	return time.Since(s.FetchedAt)
}

// Stale reports whether the snapshot is older than maxAge.
func (s FeeSnapshot) Stale(maxAge time.Duration) bool {
	return s.Age() > maxAge
}

// Validate checks the snapshot invariants every normalizer must uphold:
// non-negative base fee, all four tiers present with non-negative fee pairs,
// and maxFeePerGas non-decreasing from safeLow through fastest.
func (s FeeSnapshot) Validate() error {
	if s.BaseFee < 0 {
		return fmt.Errorf("%w: negative base fee %.4f", ErrMalformedUpstreamData, s.BaseFee)
	}
	if s.NetworkCongestion < 0 || s.NetworkCongestion > 1 {
		return fmt.Errorf("%w: congestion %.4f outside [0,1]", ErrMalformedUpstreamData, s.NetworkCongestion)
	}
	if len(s.PriorityFeeRange) == 0 {
		return fmt.Errorf("%w: empty priority fee range", ErrMalformedUpstreamData)
	}
	for _, v := range s.PriorityFeeRange {
		if v < 0 {
			return fmt.Errorf("%w: negative priority fee %.4f in range", ErrMalformedUpstreamData, v)
		}
	}

	prevFee := -1.0
	for _, tier := range SpeedTiers {
		price, ok := s.EstimatedPrices[tier]
		if !ok {
			return fmt.Errorf("%w: missing tier %q", ErrMalformedUpstreamData, tier)
		}
		if price.MaxFeePerGas < 0 || price.MaxPriorityFeePerGas < 0 {
			return fmt.Errorf("%w: negative fee in tier %q", ErrMalformedUpstreamData, tier)
		}
		if price.MaxFeePerGas < prevFee {
			return fmt.Errorf("%w: tier %q maxFeePerGas %.4f below previous tier %.4f",
				ErrMalformedUpstreamData, tier, price.MaxFeePerGas, prevFee)
		}
		prevFee = price.MaxFeePerGas
	}
	return nil
}
