package domain

import "fmt"

// TxType classifies the transaction whose gas parameters are being
// optimized. The set is closed; unrecognized values fall through to a
// generic default gas limit rather than failing.
type TxType string

const (
	TxTransfer            TxType = "transfer"
	TxTokenTransfer       TxType = "fungible-token-transfer"
	TxSwap                TxType = "swap"
	TxNFTMint             TxType = "nft-mint"
	TxNFTTransfer         TxType = "nft-transfer"
	TxContractInteraction TxType = "contract-interaction"
)

// Known reports whether the type is one of the recognized transaction kinds.
func (t TxType) Known() bool {
	switch t {
	case TxTransfer, TxTokenTransfer, TxSwap, TxNFTMint, TxNFTTransfer, TxContractInteraction:
		return true
	}
	return false
}

// TransactionIntent carries the caller's transaction shape and current fee
// settings. The fee fields are the "original" baseline that savings are
// measured against; zero values mean the caller supplied nothing.
type TransactionIntent struct {
	Type TxType `json:"type"`
	// GasLimit is the caller's proposed limit; 0 means absent. Callers
	// routinely understate this, so it is advisory only.
	GasLimit             uint64  `json:"gasLimit,omitempty"`
	MaxFeePerGas         float64 `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas float64 `json:"maxPriorityFeePerGas,omitempty"`
}

// Validate rejects intents that are malformed beyond what the optimizer is
// specified to absorb. Unknown transaction types are not an error; negative
// fee baselines are.
func (i TransactionIntent) Validate() error {
	if i.MaxFeePerGas < 0 {
		return fmt.Errorf("%w: negative maxFeePerGas", ErrInvalidIntent)
	}
	if i.MaxPriorityFeePerGas < 0 {
		return fmt.Errorf("%w: negative maxPriorityFeePerGas", ErrInvalidIntent)
	}
	if i.MaxPriorityFeePerGas > i.MaxFeePerGas && i.MaxFeePerGas > 0 {
		return fmt.Errorf("%w: priority fee exceeds max fee", ErrInvalidIntent)
	}
	return nil
}
