package scanapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

const (
	// statusOK is the envelope status value the explorer sends on success.
	statusOK = "1"

	// baseFeeShare estimates what fraction of the quoted "propose" price is
	// base fee, since this source does not separate base from priority fee.
	baseFeeShare = 0.8

	// fastestFactor synthesizes the missing fastest tier from the fast tier.
	fastestFactor = 1.2

	// minPriorityFee floors derived priority fees so no tier quotes a
	// non-positive tip.
	minPriorityFee = 1.0
)

// oracleEnvelope is the explorer's standard response wrapper. On failure the
// result payload is a plain string message rather than an object, so it is
// parsed lazily.
type oracleEnvelope struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Result  oracleResult `json:"result"`
}

// oracleResult carries the three quoted gas prices as numeric strings.
type oracleResult struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
}

// UnmarshalJSON tolerates the failure shape where result is a string.
func (r *oracleResult) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		// Error responses put a message string here; leave fields empty so
		// normalization reports the envelope status instead.
		return nil
	}
	type plain oracleResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = oracleResult(p)
	return nil
}

// toSnapshot normalizes the single-price response into a FeeSnapshot.
//
// The source quotes absolute prices only, so the base fee is estimated as
// baseFeeShare of the propose tier (floored), per-tier priority fees are the
// quoted price minus that base fee, and the missing fastest tier is
// synthesized from fast at fastestFactor on both fee and priority fee.
func (e oracleEnvelope) toSnapshot(now time.Time) (domain.FeeSnapshot, error) {
	if e.Status != statusOK {
		return domain.FeeSnapshot{}, fmt.Errorf("%w: oracle status %q (%s)",
			domain.ErrMalformedUpstreamData, e.Status, e.Message)
	}

	safe, err := parseGwei("SafeGasPrice", e.Result.SafeGasPrice)
	if err != nil {
		return domain.FeeSnapshot{}, err
	}
	propose, err := parseGwei("ProposeGasPrice", e.Result.ProposeGasPrice)
	if err != nil {
		return domain.FeeSnapshot{}, err
	}
	fast, err := parseGwei("FastGasPrice", e.Result.FastGasPrice)
	if err != nil {
		return domain.FeeSnapshot{}, err
	}

	baseFee := math.Floor(propose * baseFeeShare)

	safeTip := safe - baseFee
	if safeTip < minPriorityFee {
		safeTip = minPriorityFee
	}
	proposeTip := clampTip(propose - baseFee)
	fastTip := clampTip(fast - baseFee)
	fastestTip := clampTip(fastTip * fastestFactor)

	prices := map[domain.SpeedTier]domain.TierPrice{
		domain.TierSafeLow:  {MaxFeePerGas: safe, MaxPriorityFeePerGas: safeTip},
		domain.TierStandard: {MaxFeePerGas: propose, MaxPriorityFeePerGas: proposeTip},
		domain.TierFast:     {MaxFeePerGas: fast, MaxPriorityFeePerGas: fastTip},
		domain.TierFastest:  {MaxFeePerGas: fast * fastestFactor, MaxPriorityFeePerGas: fastestTip},
	}

	snap := domain.FeeSnapshot{
		BaseFee:           baseFee,
		PriorityFeeRange:  []float64{safeTip, proposeTip, fastTip, fastestTip},
		NetworkCongestion: domain.CongestionScore(baseFee),
		EstimatedPrices:   prices,
		Source:            SourceName,
		FetchedAt:         now,
	}
	if err := snap.Validate(); err != nil {
		return domain.FeeSnapshot{}, err
	}
	return snap, nil
}

// clampTip floors negative derived priority fees at the minimum tip. The
// source provides no explicit floor of its own.
func clampTip(tip float64) float64 {
	if tip < 0 {
		return minPriorityFee
	}
	return tip
}

// parseGwei parses one quoted price field, rejecting absent or non-numeric
// values.
func parseGwei(field, value string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: missing %s", domain.ErrMalformedUpstreamData, field)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not numeric", domain.ErrMalformedUpstreamData, field, value)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s %q is negative", domain.ErrMalformedUpstreamData, field, value)
	}
	return v, nil
}
