// Package ethrpc implements the JSON-RPC fee source: fee data read straight
// from a Polygon node via eth_feeHistory and the latest block header. It is
// the last-resort fallback behind the HTTP oracles.
package ethrpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// SourceName identifies this provider in snapshots and logs.
const SourceName = "rpc"

// tierPercentiles are the eth_feeHistory reward percentiles mapped onto the
// four speed tiers, safeLow through fastest.
var tierPercentiles = []float64{10, 40, 70, 90}

// nodeReader is the subset of ethclient.Client used by this source. Declared
// locally so tests can substitute a fake node.
type nodeReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Client reads fee data from a JSON-RPC node.
type Client struct {
	node          nodeReader
	historyBlocks int
	close         func()
}

// NewClient dials the node at rawURL. The connection is lazy for HTTP
// endpoints; dial errors surface on the first call for those.
func NewClient(rawURL string, historyBlocks int) (*Client, error) {
	ec, err := ethclient.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: dial %s: %w", rawURL, err)
	}
	c := newClient(ec, historyBlocks)
	c.close = ec.Close
	return c, nil
}

func newClient(node nodeReader, historyBlocks int) *Client {
	if historyBlocks < 1 {
		historyBlocks = 5
	}
	return &Client{
		node:          node,
		historyBlocks: historyBlocks,
	}
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

var _ domain.FeeSource = (*Client)(nil)

// Name implements domain.FeeSource.
func (c *Client) Name() string { return SourceName }

// FetchFees reads the latest header base fee and recent fee history, and
// normalizes them into a FeeSnapshot. Tier priority fees are per-percentile
// averages over the history window; when the window holds no usable rewards,
// the node's suggested tip cap is applied flat across all tiers.
func (c *Client) FetchFees(ctx context.Context) (domain.FeeSnapshot, error) {
	header, err := c.node.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("ethrpc: latest header: %w", err)
	}
	if header.BaseFee == nil {
		return domain.FeeSnapshot{}, fmt.Errorf("ethrpc: %w: node reports no base fee (pre-EIP-1559 chain?)",
			domain.ErrMalformedUpstreamData)
	}
	baseFee := weiToGwei(header.BaseFee)

	tips, err := c.historyTips(ctx)
	if err != nil {
		return domain.FeeSnapshot{}, err
	}

	prices := make(map[domain.SpeedTier]domain.TierPrice, len(domain.SpeedTiers))
	feeRange := make([]float64, 0, len(domain.SpeedTiers))
	for i, tier := range domain.SpeedTiers {
		prices[tier] = domain.TierPrice{
			MaxFeePerGas:         baseFee + tips[i],
			MaxPriorityFeePerGas: tips[i],
		}
		feeRange = append(feeRange, tips[i])
	}

	snap := domain.FeeSnapshot{
		BaseFee:           baseFee,
		PriorityFeeRange:  feeRange,
		NetworkCongestion: domain.CongestionScore(baseFee),
		EstimatedPrices:   prices,
		Source:            SourceName,
		FetchedAt:         time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		return domain.FeeSnapshot{}, err
	}
	return snap, nil
}

// historyTips returns one priority fee per speed tier, in gwei.
func (c *Client) historyTips(ctx context.Context) ([]float64, error) {
	hist, err := c.node.FeeHistory(ctx, uint64(c.historyBlocks), nil, tierPercentiles)
	if err != nil {
		return nil, fmt.Errorf("ethrpc: fee history: %w", err)
	}

	tips := make([]float64, len(tierPercentiles))
	usable := false
	for i := range tierPercentiles {
		sum := 0.0
		n := 0
		for _, blockRewards := range hist.Reward {
			if i >= len(blockRewards) || blockRewards[i] == nil {
				continue
			}
			if blockRewards[i].Sign() <= 0 {
				continue
			}
			sum += weiToGwei(blockRewards[i])
			n++
		}
		if n > 0 {
			tips[i] = sum / float64(n)
			usable = true
		}
	}

	if !usable {
		suggested, err := c.node.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("ethrpc: suggest tip cap: %w", err)
		}
		flat := weiToGwei(suggested)
		for i := range tips {
			tips[i] = flat
		}
		return tips, nil
	}

	// Percentile averaging can leave interior zeros when some percentiles
	// had no usable rewards; carry the previous tier's tip forward so the
	// range stays non-decreasing.
	for i := 1; i < len(tips); i++ {
		if tips[i] < tips[i-1] {
			tips[i] = tips[i-1]
		}
	}
	return tips, nil
}

// weiToGwei converts an integer wei amount to a float gwei amount.
func weiToGwei(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetFloat64(params.GWei),
	).Float64()
	return f
}
