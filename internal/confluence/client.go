// Package confluence creates retro pages through the Confluence Cloud REST API.
package confluence

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/audio-retro/internal/pkg/httpretry"
	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// Config holds wiki credentials and page placement.
type Config struct {
	Domain           string
	Email            string
	APIToken         string
	SpaceKey         string
	ParentPageID     string
	SearchAncestorID string
	// BaseURL overrides https://<Domain>.atlassian.net.
	BaseURL string
	Timeout time.Duration
}

// Client is a minimal Confluence content client.
type Client struct {
	baseURL    string
	auth       string
	spaceKey   string
	parentID   string
	ancestorID string
	httpClient httpretry.HTTPDoer
	// createClient never retries: a create that timed out may still have
	// committed the page.
	createClient httpretry.HTTPDoer
}

// NewClient creates a new Confluence client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.atlassian.net", cfg.Domain)
	}
	ancestor := cfg.SearchAncestorID
	if ancestor == "" {
		ancestor = cfg.ParentPageID
	}
	raw := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		baseURL:      strings.TrimRight(base, "/"),
		auth:         "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Email+":"+cfg.APIToken)),
		spaceKey:     cfg.SpaceKey,
		parentID:     cfg.ParentPageID,
		ancestorID:   ancestor,
		httpClient:   httpretry.NewRetryClient(raw, 3),
		createClient: raw,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
	c.createClient = client
}

// APIError is a non-200 answer from the content API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("confluence API error (status %d): %s", e.Status, e.Body)
}

type searchResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"results"`
}

// PageExists reports whether a current page with title lives under the
// search ancestor.
func (c *Client) PageExists(ctx context.Context, title string) (bool, error) {
	cql := fmt.Sprintf(`ancestor=%s and title="%s" and type=page`, c.ancestorID, strings.ReplaceAll(title, `"`, `\"`))
	params := url.Values{}
	params.Set("cql", cql)
	params.Set("status", "current")

	body, err := c.do(ctx, c.httpClient, http.MethodGet, "/wiki/rest/api/content/search?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}
	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return false, fmt.Errorf("decode search response: %w", err)
	}
	return len(sr.Results) > 0, nil
}

type storageValue struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type createRequest struct {
	Type      string              `json:"type"`
	Title     string              `json:"title"`
	Space     map[string]string   `json:"space"`
	Ancestors []map[string]string `json:"ancestors,omitempty"`
	Body      struct {
		Storage storageValue `json:"storage"`
	} `json:"body"`
}

type createResponse struct {
	ID    string `json:"id"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// CreatePage creates a page under the parent and returns its URL. A title
// collision reported by the server comes back as ErrPageExists.
func (c *Client) CreatePage(ctx context.Context, title, storageBody string) (string, error) {
	req := createRequest{
		Type:  "page",
		Title: title,
		Space: map[string]string{"key": c.spaceKey},
	}
	if c.parentID != "" {
		req.Ancestors = []map[string]string{{"id": c.parentID}}
	}
	req.Body.Storage = storageValue{Value: storageBody, Representation: "storage"}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, c.createClient, http.MethodPost, "/wiki/rest/api/content", payload)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
		strings.Contains(apiErr.Body, "A page with this title already exists") {
		logger.Info("confluence: title already taken", "stage", "publish", "title", title)
		return "", ErrPageExists
	}
	if err != nil {
		return "", err
	}

	var cr createResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	pageURL := c.baseURL + "/wiki" + cr.Links.WebUI
	logger.Info("confluence: page created", "stage", "publish", "id", cr.ID, "url", pageURL)
	return pageURL, nil
}

func (c *Client) do(ctx context.Context, client httpretry.HTTPDoer, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confluence request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read confluence response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
