package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/audio-retro/internal/pkg/httpretry"
)

// Config configures the Wise rate client.
type Config struct {
	BaseURL    string
	Token      string
	AuthScheme string // Basic or Bearer
	Timeout    time.Duration
}

// WiseClient fetches live rates from the Wise (TransferWise) API.
type WiseClient struct {
	baseURL    string
	token      string
	authScheme string
	httpClient httpretry.HTTPDoer
}

// NewWiseClient creates a new Wise API client
func NewWiseClient(cfg Config) *WiseClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Basic"
	}
	return &WiseClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		authScheme: cfg.AuthScheme,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, 2),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *WiseClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type wiseRate struct {
	Rate   float64 `json:"rate"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Time   string  `json:"time"`
}

// GetRate returns the first rate in the response array.
func (c *WiseClient) GetRate(ctx context.Context, source, target string) (float64, error) {
	q := url.Values{}
	q.Set("source", source)
	q.Set("target", target)
	reqURL := fmt.Sprintf("%s/rates?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authScheme+" "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var rates []wiseRate
	if err := json.Unmarshal(body, &rates); err != nil {
		return 0, fmt.Errorf("failed to parse rates: %w", err)
	}
	if len(rates) == 0 || rates[0].Rate <= 0 {
		return 0, fmt.Errorf("no usable %s→%s rate in response", source, target)
	}
	return rates[0].Rate, nil
}
