// Package optimizer implements the gas optimization engine. Given a fee
// snapshot, a transaction intent and the active policy it produces a priced
// recommendation. Evaluation is pure: no I/O, no shared state, the result is
// fully determined by the inputs.
package optimizer

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

const (
	// minGasLimit is the protocol floor for any transaction.
	minGasLimit = 21000

	// limitOverrideShare: a caller limit below this share of the type
	// default is treated as an under-estimate and replaced.
	limitOverrideShare = 0.8

	// unknownTypeGasLimit applies when the intent type is not in the table.
	unknownTypeGasLimit = 100000

	// gweiPerMatic converts a gwei-denominated gas cost into MATIC.
	gweiPerMatic = 1e9
)

// defaultGasLimits maps transaction types to their recommended gas limits.
var defaultGasLimits = map[domain.TxType]uint64{
	domain.TxTransfer:            21000,
	domain.TxTokenTransfer:       65000,
	domain.TxSwap:                200000,
	domain.TxNFTMint:             250000,
	domain.TxNFTTransfer:         100000,
	domain.TxContractInteraction: 150000,
}

// profile is the fee-selection tuning derived from aggressiveness and the
// current congestion score.
type profile struct {
	percentile  float64
	padding     float64
	waitSeconds float64
}

// profileFor resolves the aggressiveness table. Unknown aggressiveness values
// resolve to balanced.
func profileFor(agg domain.Aggressiveness, congestion float64) profile {
	switch agg {
	case domain.AggressivenessConservative:
		p := profile{percentile: 0.6, padding: 1.30, waitSeconds: 15}
		if congestion > 0.7 {
			p.percentile = 0.8
		}
		return p
	case domain.AggressivenessAggressive:
		p := profile{percentile: 0.2, padding: 1.10, waitSeconds: 30}
		if congestion > 0.8 {
			p.percentile = 0.4
			p.waitSeconds = 60
		}
		return p
	default:
		p := profile{percentile: 0.4, padding: 1.20, waitSeconds: 20}
		if congestion > 0.7 {
			p.percentile = 0.6
			p.waitSeconds = 30
		}
		return p
	}
}

// Engine prices transaction intents against live fee data.
type Engine struct {
	limits map[domain.TxType]uint64
	logger *slog.Logger
}

// NewEngine creates an optimization engine with the standard gas limit table.
func NewEngine(logger *slog.Logger) *Engine {
	limits := make(map[domain.TxType]uint64, len(defaultGasLimits))
	for t, l := range defaultGasLimits {
		limits[t] = l
	}
	return &Engine{
		limits: limits,
		logger: logger.With(slog.String("component", "optimizer")),
	}
}

// Optimize evaluates the intent against the snapshot under the given policy.
// It never fails: malformed policy values are clamped, unknown transaction
// types fall through to a generic gas limit, and a missing fee baseline
// simply yields zero savings.
func (e *Engine) Optimize(snap domain.FeeSnapshot, intent domain.TransactionIntent, policy domain.Policy) domain.OptimizationResult {
	policy = clampPolicy(policy)
	prof := profileFor(policy.Aggressiveness, snap.NetworkCongestion)

	tip := selectPriorityFee(snap.PriorityFeeRange, prof.percentile)
	optimizedMaxFee := math.Ceil((snap.BaseFee + tip) * prof.padding)

	limit := e.recommendGasLimit(intent)

	// The baseline keeps the caller's own limit when one was supplied, even
	// an undersized one; with no limit supplied the comparison is purely
	// fee-rate driven.
	originalLimit := intent.GasLimit
	if originalLimit == 0 {
		originalLimit = limit
	}

	originalCost := costMatic(intent.MaxFeePerGas, originalLimit)
	optimizedCost := costMatic(optimizedMaxFee, limit)

	savings := originalCost - optimizedCost
	if savings < 0 {
		savings = 0
	}
	savingsPercent := 0.0
	if originalCost > 0 {
		savingsPercent = savings / originalCost * 100
	}

	var serviceFee float64
	if savings > 0 {
		serviceFee = savings * policy.FeePercent / 100
	}

	result := domain.OptimizationResult{
		ID: uuid.Must(uuid.NewRandom()).String(),
		Original: domain.CostBlock{
			MaxFeePerGas:         intent.MaxFeePerGas,
			MaxPriorityFeePerGas: intent.MaxPriorityFeePerGas,
			GasLimit:             originalLimit,
			CostMatic:            originalCost,
		},
		Optimized: domain.CostBlock{
			MaxFeePerGas:         optimizedMaxFee,
			MaxPriorityFeePerGas: tip,
			GasLimit:             limit,
			CostMatic:            optimizedCost,
			WaitSeconds:          prof.waitSeconds,
		},
		Savings: domain.SavingsBlock{
			AmountMatic: savings,
			Percent:     savingsPercent,
			Tier:        savingsTier(savingsPercent, snap.NetworkCongestion),
		},
		Fee: domain.FeeBlock{
			AmountMatic: serviceFee,
			Percent:     policy.FeePercent,
		},
		NetSavingsMatic: savings - serviceFee,
		ShouldOptimize:  savingsPercent >= policy.MinSavingsPercent && prof.waitSeconds <= policy.MaxWaitTimeSeconds,
		SnapshotSource:  snap.Source,
		EvaluatedAt:     time.Now().UTC(),
	}

	e.logger.Debug("intent evaluated",
		slog.String("tx_type", string(intent.Type)),
		slog.Float64("optimized_max_fee", optimizedMaxFee),
		slog.Float64("savings_percent", savingsPercent),
		slog.String("tier", string(result.Savings.Tier)),
		slog.Bool("should_optimize", result.ShouldOptimize),
	)
	return result
}

// recommendGasLimit applies the limit table: absent or sub-minimum caller
// limits take the type default, limits under 80% of the default are assumed
// under-estimated and replaced, anything else is kept.
func (e *Engine) recommendGasLimit(intent domain.TransactionIntent) uint64 {
	def, ok := e.limits[intent.Type]
	if !ok {
		def = unknownTypeGasLimit
	}
	limit := intent.GasLimit
	if limit == 0 || limit < minGasLimit {
		return def
	}
	if float64(limit) < float64(def)*limitOverrideShare {
		return def
	}
	return limit
}

// selectPriorityFee picks the value at the given percentile of the sorted
// fee range. An out-of-range index falls back to the lowest observed value.
func selectPriorityFee(feeRange []float64, percentile float64) float64 {
	if len(feeRange) == 0 {
		return 0
	}
	sorted := make([]float64, len(feeRange))
	copy(sorted, feeRange)
	sort.Float64s(sorted)
	idx := int(math.Floor(float64(len(sorted)) * percentile))
	if idx < 0 || idx >= len(sorted) {
		return sorted[0]
	}
	return sorted[idx]
}

// savingsTier buckets percentage savings for presentation. Congestion lowers
// the bar for "high": a 10%+ cut during a gas spike is worth flagging.
func savingsTier(pct, congestion float64) domain.SavingsTier {
	switch {
	case pct > 20 || (congestion > 0.7 && pct > 10):
		return domain.SavingsTierHigh
	case pct >= 10:
		return domain.SavingsTierMedium
	case pct >= 5:
		return domain.SavingsTierLow
	default:
		return domain.SavingsTierNone
	}
}

// costMatic converts a gwei-per-gas fee over a gas limit into MATIC.
func costMatic(feeGwei float64, gasLimit uint64) float64 {
	return feeGwei * float64(gasLimit) / gweiPerMatic
}

// clampPolicy normalizes out-of-range policy values so a bad stored policy
// degrades to the defaults instead of skewing the math.
func clampPolicy(p domain.Policy) domain.Policy {
	def := domain.DefaultPolicy()
	if !p.Aggressiveness.Valid() {
		p.Aggressiveness = def.Aggressiveness
	}
	if p.MaxWaitTimeSeconds <= 0 {
		p.MaxWaitTimeSeconds = def.MaxWaitTimeSeconds
	}
	p.MinSavingsPercent = clampPercent(p.MinSavingsPercent)
	p.FeePercent = clampPercent(p.FeePercent)
	return p
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
