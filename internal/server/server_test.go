package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gaspilot/internal/domain"
	"github.com/alanyoungcy/gaspilot/internal/server/handler"
	"github.com/alanyoungcy/gaspilot/internal/service"
)

// stubBackend satisfies every handler dependency with canned values.
type stubBackend struct {
	snap   domain.FeeSnapshot
	policy domain.Policy
}

func (s *stubBackend) Snapshot(context.Context) (domain.FeeSnapshot, error) { return s.snap, nil }
func (s *stubBackend) Cached() (domain.FeeSnapshot, bool)                   { return s.snap, true }
func (s *stubBackend) Stats() service.FeeStats                              { return service.FeeStats{} }
func (s *stubBackend) Policy() domain.Policy                                { return s.policy }

func (s *stubBackend) Update(patch domain.PolicyPatch) domain.Policy {
	s.policy = s.policy.Apply(patch)
	return s.policy
}

func (s *stubBackend) Optimize(domain.FeeSnapshot, domain.TransactionIntent, domain.Policy) domain.OptimizationResult {
	return domain.OptimizationResult{ShouldOptimize: true}
}

func newTestServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := &stubBackend{
		snap:   domain.FeeSnapshot{BaseFee: 30, Source: "gasstation", FetchedAt: time.Now().UTC()},
		policy: domain.DefaultPolicy(),
	}
	return NewServer(Config{
		Port:   0,
		APIKey: apiKey,
	}, Handlers{
		Health: handler.NewHealthHandler(logger),
		Fees:   handler.NewFeeHandler(backend, backend, backend, logger),
		Policy: handler.NewPolicyHandler(backend, logger),
		Status: handler.NewStatusHandler("serve", time.Now().UTC(), backend, backend, nil),
	}, nil, logger)
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestReadEndpointsStayOpenWithKeyConfigured(t *testing.T) {
	srv := newTestServer("secret")

	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/fees/snapshot",
		"/api/v1/policy",
		"/api/v1/status",
	} {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPolicyUpdateRequiresConfiguredKey(t *testing.T) {
	require := require.New(t)

	srv := newTestServer("secret")
	body := `{"feePercent": 2.5}`

	req := httptest.NewRequest(http.MethodPut, "/api/v1/policy", strings.NewReader(body))
	require.Equal(http.StatusUnauthorized, serve(srv, req).Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/policy", strings.NewReader(body))
	req.Header.Set("X-API-Key", "nope")
	require.Equal(http.StatusUnauthorized, serve(srv, req).Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/policy", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rec := serve(srv, req)
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"feePercent":2.5`)
}

func TestPolicyUpdateOpenWithoutConfiguredKey(t *testing.T) {
	srv := newTestServer("")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/policy", strings.NewReader(`{"feePercent": 1}`))
	require.Equal(t, http.StatusOK, serve(srv, req).Code)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	srv := newTestServer("")
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflightShortCircuits(t *testing.T) {
	require := require.New(t)

	srv := newTestServer("secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/policy", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(srv, req)

	require.Equal(http.StatusNoContent, rec.Code)
	require.Equal("http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
