package gasstation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string so oracle
// responses work whether fees are sent as 1.5 or "1.5".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("numeric string %q: %w", s, err)
	}
	*f = flexFloat(n)
	return nil
}

// stationResponse mirrors the oracle's four-tier JSON body. Tier objects and
// fee fields are pointers so absent fields are distinguishable from zeros.
type stationResponse struct {
	SafeLow     *tierQuote `json:"safeLow"`
	Standard    *tierQuote `json:"standard"`
	Fast        *tierQuote `json:"fast"`
	Fastest     *tierQuote `json:"fastest"`
	BlockTime   int        `json:"blockTime"`
	BlockNumber int64      `json:"blockNumber"`
}

// tierQuote is one speed tier's fee pair as quoted by the oracle.
type tierQuote struct {
	MaxFee         *flexFloat `json:"maxFee"`
	MaxPriorityFee *flexFloat `json:"maxPriorityFee"`
}

// values extracts the fee pair, failing when either field is absent.
func (q *tierQuote) values(tier domain.SpeedTier) (maxFee, maxPriority float64, err error) {
	if q == nil {
		return 0, 0, fmt.Errorf("%w: missing tier %q", domain.ErrMalformedUpstreamData, tier)
	}
	if q.MaxFee == nil || q.MaxPriorityFee == nil {
		return 0, 0, fmt.Errorf("%w: tier %q missing maxFee or maxPriorityFee", domain.ErrMalformedUpstreamData, tier)
	}
	return float64(*q.MaxFee), float64(*q.MaxPriorityFee), nil
}

// toSnapshot normalizes the tiered response into a FeeSnapshot.
//
// The base fee is recovered from the standard tier: maxFee minus
// maxPriorityFee. The priority-fee range carries the four tiers' priority
// fees in ascending tier order, unsorted.
func (r stationResponse) toSnapshot(now time.Time) (domain.FeeSnapshot, error) {
	quotes := map[domain.SpeedTier]*tierQuote{
		domain.TierSafeLow:  r.SafeLow,
		domain.TierStandard: r.Standard,
		domain.TierFast:     r.Fast,
		domain.TierFastest:  r.Fastest,
	}

	prices := make(map[domain.SpeedTier]domain.TierPrice, len(domain.SpeedTiers))
	feeRange := make([]float64, 0, len(domain.SpeedTiers))
	for _, tier := range domain.SpeedTiers {
		maxFee, maxPriority, err := quotes[tier].values(tier)
		if err != nil {
			return domain.FeeSnapshot{}, err
		}
		prices[tier] = domain.TierPrice{
			MaxFeePerGas:         maxFee,
			MaxPriorityFeePerGas: maxPriority,
		}
		feeRange = append(feeRange, maxPriority)
	}

	standard := prices[domain.TierStandard]
	baseFee := standard.MaxFeePerGas - standard.MaxPriorityFeePerGas
	if baseFee < 0 {
		return domain.FeeSnapshot{}, fmt.Errorf("%w: standard tier priority fee %.4f exceeds max fee %.4f",
			domain.ErrMalformedUpstreamData, standard.MaxPriorityFeePerGas, standard.MaxFeePerGas)
	}

	snap := domain.FeeSnapshot{
		BaseFee:           baseFee,
		PriorityFeeRange:  feeRange,
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
