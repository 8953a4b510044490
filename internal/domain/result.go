package domain

import "time"

// SavingsTier buckets percentage savings for presentation. It never feeds
// back into the optimize/do-not-optimize verdict.
type SavingsTier string

const (
	SavingsTierNone   SavingsTier = "none"
	SavingsTierLow    SavingsTier = "low"
	SavingsTierMedium SavingsTier = "medium"
	SavingsTierHigh   SavingsTier = "high"
)

// CostBlock describes one side of the cost comparison: the fee parameters,
// the gas limit they apply to, and the resulting cost in MATIC. WaitSeconds
// is populated on the optimized side only.
type CostBlock struct {
	MaxFeePerGas         float64 `json:"maxFeePerGas"`
	MaxPriorityFeePerGas float64 `json:"maxPriorityFeePerGas"`
	GasLimit             uint64  `json:"gasLimit"`
	CostMatic            float64 `json:"estimatedCostInMatic"`
	WaitSeconds          float64 `json:"estimatedWaitSeconds,omitempty"`
}

// SavingsBlock quantifies what the optimized parameters save over the
// caller's baseline.
type SavingsBlock struct {
	AmountMatic float64     `json:"savingsInMatic"`
	Percent     float64     `json:"savingsPercent"`
	Tier        SavingsTier `json:"tier"`
}

// FeeBlock is the service's cut of realized savings. Charged only when
// savings are strictly positive.
type FeeBlock struct {
	AmountMatic float64 `json:"feeInMatic"`
	Percent     float64 `json:"feePercent"`
}

// OptimizationResult is the full outcome of one evaluation. Results are
// ephemeral values recomputed per call; nothing retains or mutates them.
type OptimizationResult struct {
	ID              string       `json:"id"`
	Original        CostBlock    `json:"original"`
	Optimized       CostBlock    `json:"optimized"`
	Savings         SavingsBlock `json:"savings"`
	Fee             FeeBlock     `json:"fee"`
	NetSavingsMatic float64      `json:"netSavingsInMatic"`
	ShouldOptimize  bool         `json:"shouldOptimize"`
	SnapshotSource  string       `json:"snapshotSource,omitempty"`
	EvaluatedAt     time.Time    `json:"evaluatedAt"`
}
