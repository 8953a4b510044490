package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFees struct {
	snap      domain.FeeSnapshot
	err       error
	cached    domain.FeeSnapshot
	hasCached bool
}

func (f *fakeFees) Snapshot(context.Context) (domain.FeeSnapshot, error) { return f.snap, f.err }
func (f *fakeFees) Cached() (domain.FeeSnapshot, bool)                   { return f.cached, f.hasCached }

type fakePolicies struct{ policy domain.Policy }

func (f *fakePolicies) Policy() domain.Policy { return f.policy }

type fakeEngine struct {
	lastSnap   domain.FeeSnapshot
	lastIntent domain.TransactionIntent
	lastPolicy domain.Policy
	result     domain.OptimizationResult
}

func (f *fakeEngine) Optimize(snap domain.FeeSnapshot, intent domain.TransactionIntent, policy domain.Policy) domain.OptimizationResult {
	f.lastSnap = snap
	f.lastIntent = intent
	f.lastPolicy = policy
	return f.result
}

func sampleSnapshot(source string) domain.FeeSnapshot {
	return domain.FeeSnapshot{
		BaseFee:           50,
		PriorityFeeRange:  []float64{1, 2, 3, 4},
		NetworkCongestion: 0.5,
		EstimatedPrices: map[domain.SpeedTier]domain.TierPrice{
			domain.TierSafeLow:  {MaxFeePerGas: 51, MaxPriorityFeePerGas: 1},
			domain.TierStandard: {MaxFeePerGas: 52, MaxPriorityFeePerGas: 2},
			domain.TierFast:     {MaxFeePerGas: 53, MaxPriorityFeePerGas: 3},
			domain.TierFastest:  {MaxFeePerGas: 54, MaxPriorityFeePerGas: 4},
		},
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}
}

func TestGetSnapshotReturnsCurrentFees(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{snap: sampleSnapshot("gasstation")}
	h := NewFeeHandler(fees, &fakePolicies{policy: domain.DefaultPolicy()}, &fakeEngine{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fees/snapshot", nil)
	rec := httptest.NewRecorder()
	h.GetSnapshot(rec, req)

	require.Equal(http.StatusOK, rec.Code)
	require.Equal("application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got domain.FeeSnapshot
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	require.InDelta(50, got.BaseFee, 1e-12)
	require.Equal("gasstation", got.Source)
	require.Len(got.EstimatedPrices, 4)
}

func TestGetSnapshotUpstreamDownWithStaleCache(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{
		err:       fmt.Errorf("fee_service: all sources failed: %w: boom", domain.ErrUpstreamUnavailable),
		cached:    sampleSnapshot("scan"),
		hasCached: true,
	}
	h := NewFeeHandler(fees, &fakePolicies{}, &fakeEngine{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fees/snapshot", nil))

	require.Equal(http.StatusServiceUnavailable, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(body, "error")
	require.Contains(body, "staleSnapshot")
}

func TestGetSnapshotUpstreamDownWithoutCache(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{err: domain.ErrUpstreamUnavailable}
	h := NewFeeHandler(fees, &fakePolicies{}, &fakeEngine{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fees/snapshot", nil))

	require.Equal(http.StatusServiceUnavailable, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(body, "error")
	require.NotContains(body, "staleSnapshot")
}

func TestOptimizeEvaluatesIntent(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{snap: sampleSnapshot("gasstation")}
	policies := &fakePolicies{policy: domain.DefaultPolicy()}
	engine := &fakeEngine{result: domain.OptimizationResult{ID: "r-1", ShouldOptimize: true}}
	h := NewFeeHandler(fees, policies, engine, testLogger())

	body := `{"type":"transfer","gasLimit":21000,"maxFeePerGas":80,"maxPriorityFeePerGas":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)

	require.Equal(http.StatusOK, rec.Code)

	var got domain.OptimizationResult
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal("r-1", got.ID)
	require.True(got.ShouldOptimize)

	// The handler passes through what it was given: the fetched snapshot,
	// the decoded intent, the active policy.
	require.Equal("gasstation", engine.lastSnap.Source)
	require.Equal(domain.TxTransfer, engine.lastIntent.Type)
	require.Equal(uint64(21000), engine.lastIntent.GasLimit)
	require.Equal(domain.DefaultPolicy(), engine.lastPolicy)
}

func TestOptimizeRejectsMalformedBody(t *testing.T) {
	require := require.New(t)

	h := NewFeeHandler(&fakeFees{}, &fakePolicies{}, &fakeEngine{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/optimize", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)

	require.Equal(http.StatusBadRequest, rec.Code)
}

func TestOptimizeRejectsNegativeFees(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{snap: sampleSnapshot("gasstation")}
	h := NewFeeHandler(fees, &fakePolicies{}, &fakeEngine{}, testLogger())

	body := `{"type":"transfer","maxFeePerGas":-5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)

	require.Equal(http.StatusBadRequest, rec.Code)
}

func TestOptimizeFailsWhenSourcesDown(t *testing.T) {
	require := require.New(t)

	fees := &fakeFees{err: domain.ErrUpstreamUnavailable}
	h := NewFeeHandler(fees, &fakePolicies{}, &fakeEngine{}, testLogger())

	body := `{"type":"transfer","gasLimit":21000,"maxFeePerGas":80}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fees/optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Optimize(rec, req)

	require.Equal(http.StatusServiceUnavailable, rec.Code)
}
