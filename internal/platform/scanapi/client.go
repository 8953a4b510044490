// Package scanapi implements the fallback fee oracle client: a block-explorer
// gas tracker quoting one absolute gas price per speed tier, with no explicit
// base/priority split.
package scanapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// SourceName identifies this provider in snapshots and logs.
const SourceName = "scan"

// Client is the REST client for the explorer gas oracle.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an explorer gas-oracle client.
//
// baseURL is the API root, e.g. "https://api.polygonscan.com/api". apiKey is
// optional; without one the explorer applies stricter rate limits.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ domain.FeeSource = (*Client)(nil)

// Name implements domain.FeeSource.
func (c *Client) Name() string { return SourceName }

// FetchFees performs one gas-oracle round-trip and returns the normalized
// snapshot.
func (c *Client) FetchFees(ctx context.Context) (domain.FeeSnapshot, error) {
	params := url.Values{}
	params.Set("module", "gastracker")
	params.Set("action", "gasoracle")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	body, err := c.doGet(ctx, params)
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("scanapi: fetch fees: %w", err)
	}

	var raw oracleEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("scanapi: decode response: %w: %v", domain.ErrMalformedUpstreamData, err)
	}

	snap, err := raw.toSnapshot(time.Now().UTC())
	if err != nil {
		return domain.FeeSnapshot{}, fmt.Errorf("scanapi: normalize: %w", err)
	}

	return snap, nil
}

// doGet sends a GET request with the given query parameters.
func (c *Client) doGet(ctx context.Context, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
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

	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("scanapi: %w: %s", domain.ErrUnauthorized, string(body))
	case http.StatusTooManyRequests:
		return fmt.Errorf("scanapi: %w: %s", domain.ErrRateLimited, string(body))
	default:
		return fmt.Errorf("scanapi: HTTP %d: %s", statusCode, string(body))
	}
}
