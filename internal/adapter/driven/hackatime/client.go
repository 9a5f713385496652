// Package hackatime is a thin client for the Hackatime REST API.
package hackatime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/rest"
	"github.com/flavortown-bot/flavorvault/internal/domain/model"
	"github.com/flavortown-bot/flavorvault/internal/domain/port/driven"
)

// DefaultBaseURL is the production Hackatime endpoint.
const DefaultBaseURL = "https://hackatime.hackclub.com"

// Compile-time interface satisfaction check.
var _ driven.KeyVerifier = (*Client)(nil)

// Client calls the Hackatime API through the shared resilient executor.
type Client struct {
	rest    *rest.Client
	baseURL string
}

// NewClient creates a Client. baseURL is overridable for tests; empty means
// DefaultBaseURL.
func NewClient(restClient *rest.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{rest: restClient, baseURL: baseURL}
}

func headers(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h
}

// TimeToday returns the statusbar summary of today's tracked time for the
// user the key belongs to.
func (c *Client) TimeToday(ctx context.Context, key string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/hackatime/v1/users/current/statusbar/today",
		Header:  headers(key),
		Action:  "Fetch today",
		Service: string(model.ServiceHackatime),
	})
}

// Stats returns coding statistics for the named user.
func (c *Client) Stats(ctx context.Context, key, username string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/v1/users/%s/stats", c.baseURL, url.PathEscape(username)),
		Header:  headers(key),
		Action:  "Fetch stats",
		Service: string(model.ServiceHackatime),
	})
}

// VerifyKey checks the key with a cheap authenticated request. Called by the
// vault at registration time, before the key is encrypted and stored.
func (c *Client) VerifyKey(ctx context.Context, key string) error {
	_, err := c.TimeToday(ctx, key)
	return err
}
