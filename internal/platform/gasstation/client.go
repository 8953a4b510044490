// Package gasstation implements the primary fee oracle client: a tiered
// gas-station endpoint quoting maxFee/maxPriorityFee for four speed tiers.
package gasstation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// SourceName identifies this provider in snapshots and logs.
const SourceName = "gasstation"

// Client is the REST client for the gas-station fee oracle.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gas-station client.
//
// baseURL is the oracle root, e.g. "https://gasstation.polygon.technology".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ domain.FeeSource = (*Client)(nil)

// Name implements domain.FeeSource.
func (c *Client) Name() string { return SourceName }

// FetchFees performs one round-trip against the oracle and returns the
// normalized snapshot.
func (c *Client) FetchFees(ctx context.Context) (domain.FeeSnapshot, error) {
	body, err := c.doGet(ctx, "/v2")
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("gasstation: fetch fees: %w", err)
	}

	var raw stationResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("gasstation: decode response: %w: %v", domain.ErrMalformedUpstreamData, err)
	}

	snap, err := raw.toSnapshot(time.Now().UTC())
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("gasstation: normalize: %w", err)
	}

	return snap, nil
}

// doGet sends an unauthenticated GET request to the oracle.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx HTTP status codes to appropriate errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
