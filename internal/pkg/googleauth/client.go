// Package googleauth builds authenticated HTTP clients for Google REST APIs
// from a service-account or authorized-user credentials file.
package googleauth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/audio-retro/internal/pkg/httpretry"
)

// NewHTTPClient loads credentials and returns a retrying, token-refreshing client.
func NewHTTPClient(ctx context.Context, credentialsFile string, scopes []string) (*http.Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	return FromJSON(ctx, data, scopes)
}

// FromJSON is NewHTTPClient for credentials already in memory.
func FromJSON(ctx context.Context, data []byte, scopes []string) (*http.Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return FromTokenSource(ctx, creds.TokenSource), nil
}

// FromTokenSource wraps any token source, e.g. oauth2.StaticTokenSource in tests.
// The timeout applies per attempt.
func FromTokenSource(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	base := oauth2.NewClient(ctx, ts)
	base.Timeout = 60 * time.Second
	return httpretry.NewHTTPClient(httpretry.NewRetryClient(base, 3))
}
