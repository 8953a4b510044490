package optimizer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot(baseFee float64, feeRange []float64) domain.FeeSnapshot {
	prices := make(map[domain.SpeedTier]domain.TierPrice, len(domain.SpeedTiers))
	for i, tier := range domain.SpeedTiers {
		tip := 1.0
		if i < len(feeRange) {
			tip = feeRange[i]
		}
		prices[tier] = domain.TierPrice{
			MaxFeePerGas:         baseFee + tip,
			MaxPriorityFeePerGas: tip,
		}
	}
	return domain.FeeSnapshot{
		BaseFee:           baseFee,
		PriorityFeeRange:  feeRange,
		NetworkCongestion: domain.CongestionScore(baseFee),
		EstimatedPrices:   prices,
		Source:            "gasstation",
		FetchedAt:         time.Now().UTC(),
	}
}

func TestOptimizeBalancedTransfer(t *testing.T) {
	require := require.New(t)

	snap := testSnapshot(50, []float64{1, 2, 3, 4})
	require.InDelta(0.5, snap.NetworkCongestion, 1e-12)

	intent := domain.TransactionIntent{
		Type:                 domain.TxTransfer,
		GasLimit:             21000,
		MaxFeePerGas:         80,
		MaxPriorityFeePerGas: 5,
	}

	result := NewEngine(testLogger()).Optimize(snap, intent, domain.DefaultPolicy())

	require.NotEmpty(result.ID)
	require.Equal("gasstation", result.SnapshotSource)

	// balanced at congestion 0.5: percentile 0.4 over [1,2,3,4] selects
	// index floor(4*0.4)=1, padding 1.20, wait 20s.
	require.InDelta(2, result.Optimized.MaxPriorityFeePerGas, 1e-12)
	require.InDelta(63, result.Optimized.MaxFeePerGas, 1e-12)
	require.InDelta(20, result.Optimized.WaitSeconds, 1e-12)
	require.Equal(uint64(21000), result.Optimized.GasLimit)
	require.Equal(uint64(21000), result.Original.GasLimit)

	require.InDelta(0.00168, result.Original.CostMatic, 1e-12)
	require.InDelta(0.001323, result.Optimized.CostMatic, 1e-12)
	require.InDelta(0.000357, result.Savings.AmountMatic, 1e-9)
	require.InDelta(21.25, result.Savings.Percent, 1e-9)
	require.Equal(domain.SavingsTierHigh, result.Savings.Tier)

	require.InDelta(0.0000357, result.Fee.AmountMatic, 1e-9)
	require.InDelta(10, result.Fee.Percent, 1e-12)
	require.InDelta(0.0003213, result.NetSavingsMatic, 1e-9)
	require.True(result.ShouldOptimize)
}

func TestProfileFor(t *testing.T) {
	tests := []struct {
		name       string
		agg        domain.Aggressiveness
		congestion float64
		percentile float64
		padding    float64
		wait       float64
	}{
		{"conservative calm", domain.AggressivenessConservative, 0.3, 0.6, 1.30, 15},
		{"conservative congested", domain.AggressivenessConservative, 0.75, 0.8, 1.30, 15},
		{"conservative at boundary", domain.AggressivenessConservative, 0.7, 0.6, 1.30, 15},
		{"balanced calm", domain.AggressivenessBalanced, 0.5, 0.4, 1.20, 20},
		{"balanced congested", domain.AggressivenessBalanced, 0.71, 0.6, 1.20, 30},
		{"balanced at boundary", domain.AggressivenessBalanced, 0.7, 0.4, 1.20, 20},
		{"aggressive calm", domain.AggressivenessAggressive, 0.2, 0.2, 1.10, 30},
		{"aggressive congested", domain.AggressivenessAggressive, 0.81, 0.4, 1.10, 60},
		{"aggressive at boundary", domain.AggressivenessAggressive, 0.8, 0.2, 1.10, 30},
		{"unknown falls back to balanced", domain.Aggressiveness("turbo"), 0.5, 0.4, 1.20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profileFor(tt.agg, tt.congestion)
			require.InDelta(t, tt.percentile, p.percentile, 1e-12)
			require.InDelta(t, tt.padding, p.padding, 1e-12)
			require.InDelta(t, tt.wait, p.waitSeconds, 1e-12)
		})
	}
}

func TestSelectPriorityFee(t *testing.T) {
	tests := []struct {
		name       string
		feeRange   []float64
		percentile float64
		want       float64
	}{
		{"empty range", nil, 0.4, 0},
		{"single value", []float64{7}, 0.8, 7},
		{"balanced index", []float64{1, 2, 3, 4}, 0.4, 2},
		{"conservative index", []float64{1, 2, 3, 4}, 0.8, 4},
		{"aggressive index", []float64{1, 2, 3, 4}, 0.2, 1},
		{"unsorted input is sorted first", []float64{4, 1, 3, 2}, 0.4, 2},
		{"index past end falls back to lowest", []float64{1, 2, 3, 4}, 1.5, 1},
		{"negative percentile falls back to lowest", []float64{2, 5, 9}, -0.1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, selectPriorityFee(tt.feeRange, tt.percentile), 1e-12)
		})
	}
}

func TestRecommendGasLimit(t *testing.T) {
	engine := NewEngine(testLogger())

	tests := []struct {
		name   string
		intent domain.TransactionIntent
		want   uint64
	}{
		{"absent limit uses transfer default", domain.TransactionIntent{Type: domain.TxTransfer}, 21000},
		{"absent limit uses swap default", domain.TransactionIntent{Type: domain.TxSwap}, 200000},
		{"absent limit uses nft mint default", domain.TransactionIntent{Type: domain.TxNFTMint}, 250000},
		{"unknown type uses generic default", domain.TransactionIntent{Type: "governance-vote"}, 100000},
		{"below protocol minimum uses default", domain.TransactionIntent{Type: domain.TxSwap, GasLimit: 10000}, 200000},
		{"under 80 percent of default is replaced", domain.TransactionIntent{Type: domain.TxSwap, GasLimit: 150000}, 200000},
		{"at 80 percent of default is kept", domain.TransactionIntent{Type: domain.TxSwap, GasLimit: 160000}, 160000},
		{"above default is kept", domain.TransactionIntent{Type: domain.TxTransfer, GasLimit: 30000}, 30000},
		{"token transfer under-estimate", domain.TransactionIntent{Type: domain.TxTokenTransfer, GasLimit: 40000}, 65000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, engine.recommendGasLimit(tt.intent))
		})
	}
}

func TestSavingsTier(t *testing.T) {
	tests := []struct {
		name       string
		pct        float64
		congestion float64
		want       domain.SavingsTier
	}{
		{"over twenty", 25, 0.2, domain.SavingsTierHigh},
		{"over ten while congested", 12, 0.8, domain.SavingsTierHigh},
		{"exactly twenty calm", 20, 0.2, domain.SavingsTierMedium},
		{"over ten calm", 12, 0.5, domain.SavingsTierMedium},
		{"congestion boundary not high", 12, 0.7, domain.SavingsTierMedium},
		{"exactly ten", 10, 0.1, domain.SavingsTierMedium},
		{"five to ten", 7, 0.1, domain.SavingsTierLow},
		{"exactly five", 5, 0.1, domain.SavingsTierLow},
		{"under five", 4.9, 0.9, domain.SavingsTierNone},
		{"zero", 0, 0.99, domain.SavingsTierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, savingsTier(tt.pct, tt.congestion))
		})
	}
}

func TestOptimizeCeilsPaddedFee(t *testing.T) {
	require := require.New(t)

	snap := testSnapshot(50, []float64{1, 2, 3, 4})
	intent := domain.TransactionIntent{Type: domain.TxTransfer, MaxFeePerGas: 80}

	policy := domain.DefaultPolicy()
	policy.Aggressiveness = domain.AggressivenessConservative

	// conservative at congestion 0.5: percentile 0.6 selects index 2 (tip 3),
	// (50+3)*1.30 = 68.9 rounds up to 69.
	result := NewEngine(testLogger()).Optimize(snap, intent, policy)
	require.InDelta(69, result.Optimized.MaxFeePerGas, 1e-12)
	require.InDelta(15, result.Optimized.WaitSeconds, 1e-12)
}

func TestOptimizeMaxFeeNeverDropsAsBaseFeeRises(t *testing.T) {
	require := require.New(t)

	engine := NewEngine(testLogger())
	intent := domain.TransactionIntent{Type: domain.TxTransfer, GasLimit: 21000}
	policy := domain.DefaultPolicy()

	prev := 0.0
	for _, baseFee := range []float64{10, 25, 50, 75, 99} {
		snap := testSnapshot(baseFee, []float64{1, 2, 3, 4})
		snap.NetworkCongestion = 0.5

		got := engine.Optimize(snap, intent, policy).Optimized.MaxFeePerGas
		require.GreaterOrEqual(got, prev, "baseFee %.0f", baseFee)
		prev = got
	}
}

func TestOptimizeWithoutBaseline(t *testing.T) {
	require := require.New(t)

	snap := testSnapshot(50, []float64{1, 2, 3, 4})
	intent := domain.TransactionIntent{Type: domain.TxSwap}

	result := NewEngine(testLogger()).Optimize(snap, intent, domain.DefaultPolicy())

	require.Zero(result.Original.CostMatic)
	require.Equal(uint64(200000), result.Original.GasLimit)
	require.Equal(uint64(200000), result.Optimized.GasLimit)
	require.Zero(result.Savings.AmountMatic)
	require.Zero(result.Savings.Percent)
	require.Equal(domain.SavingsTierNone, result.Savings.Tier)
	require.Zero(result.Fee.AmountMatic)
	require.Zero(result.NetSavingsMatic)
	require.False(result.ShouldOptimize)
}

func TestOptimizeNeverReportsNegativeSavings(t *testing.T) {
	require := require.New(t)

	snap := testSnapshot(50, []float64{1, 2, 3, 4})
	intent := domain.TransactionIntent{
		Type:         domain.TxTransfer,
		GasLimit:     21000,
		MaxFeePerGas: 10,
	}

	result := NewEngine(testLogger()).Optimize(snap, intent, domain.DefaultPolicy())

	require.Greater(result.Optimized.CostMatic, result.Original.CostMatic)
	require.Zero(result.Savings.AmountMatic)
	require.Zero(result.Savings.Percent)
	require.Zero(result.Fee.AmountMatic)
	require.Zero(result.NetSavingsMatic)
	require.False(result.ShouldOptimize)
}

func TestOptimizeClampsPolicy(t *testing.T) {
	require := require.New(t)

	snap := testSnapshot(50, []float64{1, 2, 3, 4})
	intent := domain.TransactionIntent{
		Type:                 domain.TxTransfer,
		GasLimit:             21000,
		MaxFeePerGas:         80,
		MaxPriorityFeePerGas: 5,
	}

	policy := domain.Policy{
		Aggressiveness:     "yolo",
		MaxWaitTimeSeconds: -1,
		MinSavingsPercent:  -20,
		FeePercent:         150,
	}

	result := NewEngine(testLogger()).Optimize(snap, intent, policy)

	// Unknown aggressiveness degrades to balanced: tip 2, fee 63, wait 20.
	require.InDelta(63, result.Optimized.MaxFeePerGas, 1e-12)
	require.InDelta(20, result.Optimized.WaitSeconds, 1e-12)

	// Fee percent clamps to 100: the whole savings is the service fee.
	require.InDelta(100, result.Fee.Percent, 1e-12)
	require.InDelta(result.Savings.AmountMatic, result.Fee.AmountMatic, 1e-12)
	require.InDelta(0, result.NetSavingsMatic, 1e-12)

	// Non-positive wait ceiling degrades to the default 30, which the 20s
	// estimate satisfies.
	require.True(result.ShouldOptimize)
}

func TestOptimizeFloorsPercentileIndex(t *testing.T) {
	require := require.New(t)

	// Five tips: floor(5*0.4)=2 picks the third lowest.
	snap := testSnapshot(50, []float64{1, 2, 3, 4, 5})
	intent := domain.TransactionIntent{Type: domain.TxTransfer, GasLimit: 21000, MaxFeePerGas: 80}

	result := NewEngine(testLogger()).Optimize(snap, intent, domain.DefaultPolicy())
	require.InDelta(3, result.Optimized.MaxPriorityFeePerGas, 1e-12)
	require.InDelta(64, result.Optimized.MaxFeePerGas, 1e-12)
}
