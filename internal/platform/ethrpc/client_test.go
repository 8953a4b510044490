package ethrpc

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// fakeNode implements nodeReader with canned responses.
type fakeNode struct {
	header     *types.Header
	headerErr  error
	history    *ethereum.FeeHistory
	historyErr error
	tip        *big.Int
	tipErr     error

	gotBlockCount  uint64
	gotPercentiles []float64
	tipCalls       int
}

func (f *fakeNode) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return f.header, nil
}

func (f *fakeNode) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	f.gotBlockCount = blockCount
	f.gotPercentiles = rewardPercentiles
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeNode) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	f.tipCalls++
	if f.tipErr != nil {
		return nil, f.tipErr
	}
	return f.tip, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

func TestFetchFeesAveragesHistoryRewards(t *testing.T) {
	require := require.New(t)

	node := &fakeNode{
		header: &types.Header{Number: big.NewInt(48123456), BaseFee: gwei(30)},
		history: &ethereum.FeeHistory{
			Reward: [][]*big.Int{
				{gwei(1), gwei(2), gwei(3), gwei(4)},
				{gwei(3), gwei(4), gwei(5), gwei(6)},
			},
		},
	}
	client := newClient(node, 2)

	snap, err := client.FetchFees(context.Background())
	require.NoError(err)

	require.InDelta(30, snap.BaseFee, 1e-9)
	require.InDelta(0.3, snap.NetworkCongestion, 1e-9)
	require.Equal(SourceName, snap.Source)

	// Column averages over the two blocks.
	require.InDelta(2, snap.PriorityFeeRange[0], 1e-9)
	require.InDelta(3, snap.PriorityFeeRange[1], 1e-9)
	require.InDelta(4, snap.PriorityFeeRange[2], 1e-9)
	require.InDelta(5, snap.PriorityFeeRange[3], 1e-9)

	standard := snap.EstimatedPrices[domain.TierStandard]
	require.InDelta(33, standard.MaxFeePerGas, 1e-9)
	require.InDelta(3, standard.MaxPriorityFeePerGas, 1e-9)

	require.EqualValues(2, node.gotBlockCount)
	require.Equal(tierPercentiles, node.gotPercentiles)
	require.Zero(node.tipCalls)
}

func TestFetchFeesCarriesTipsForwardAcrossEmptyColumns(t *testing.T) {
	require := require.New(t)

	// Zero rewards are discarded, leaving holes in the middle columns.
	node := &fakeNode{
		header: &types.Header{Number: big.NewInt(1), BaseFee: gwei(40)},
		history: &ethereum.FeeHistory{
			Reward: [][]*big.Int{
				{gwei(2), big.NewInt(0), gwei(3), big.NewInt(0)},
			},
		},
	}
	client := newClient(node, 1)

	snap, err := client.FetchFees(context.Background())
	require.NoError(err)
	require.Equal([]float64{2, 2, 3, 3}, snap.PriorityFeeRange)
}

func TestFetchFeesFallsBackToSuggestedTip(t *testing.T) {
	require := require.New(t)

	node := &fakeNode{
		header: &types.Header{Number: big.NewInt(1), BaseFee: gwei(25)},
		history: &ethereum.FeeHistory{
			Reward: [][]*big.Int{
				{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)},
			},
		},
		tip: gwei(2),
	}
	client := newClient(node, 1)

	snap, err := client.FetchFees(context.Background())
	require.NoError(err)
	require.Equal(1, node.tipCalls)
	require.Equal([]float64{2, 2, 2, 2}, snap.PriorityFeeRange)
	require.InDelta(27, snap.EstimatedPrices[domain.TierFastest].MaxFeePerGas, 1e-9)
}

func TestFetchFeesRejectsMissingBaseFee(t *testing.T) {
	require := require.New(t)

	node := &fakeNode{
		header: &types.Header{Number: big.NewInt(1)},
	}
	client := newClient(node, 1)

	_, err := client.FetchFees(context.Background())
	require.ErrorIs(err, domain.ErrMalformedUpstreamData)
}

func TestFetchFeesPropagatesNodeErrors(t *testing.T) {
	require := require.New(t)

	nodeDown := errors.New("connection refused")

	node := &fakeNode{headerErr: nodeDown}
	client := newClient(node, 1)
	_, err := client.FetchFees(context.Background())
	require.ErrorIs(err, nodeDown)
	require.NotErrorIs(err, domain.ErrMalformedUpstreamData)

	node = &fakeNode{
		header:     &types.Header{Number: big.NewInt(1), BaseFee: gwei(25)},
		historyErr: nodeDown,
	}
	client = newClient(node, 1)
	_, err = client.FetchFees(context.Background())
	require.ErrorIs(err, nodeDown)
}

func TestNewClientDefaultsHistoryBlocks(t *testing.T) {
	require := require.New(t)

	node := &fakeNode{
		header: &types.Header{Number: big.NewInt(1), BaseFee: gwei(25)},
		history: &ethereum.FeeHistory{
			Reward: [][]*big.Int{{gwei(1), gwei(1), gwei(2), gwei(2)}},
		},
	}
	client := newClient(node, 0)

	_, err := client.FetchFees(context.Background())
	require.NoError(err)
	require.EqualValues(5, node.gotBlockCount)
}
