// Package flavortown is a thin client for the Flavortown REST API. Payload
// schemas belong to the command layer; this package only shapes requests,
// classifies errors, and verifies keys.
package flavortown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/rest"
	"github.com/flavortown-bot/flavorvault/internal/domain/model"
	"github.com/flavortown-bot/flavorvault/internal/domain/port/driven"
)

// DefaultBaseURL is the production Flavortown endpoint.
const DefaultBaseURL = "https://flavortown.hackclub.com"

// ErrNotFound reports a by-ID lookup for an entity that does not exist.
var ErrNotFound = errors.New("not found")

// Compile-time interface satisfaction check.
var _ driven.KeyVerifier = (*Client)(nil)

// Client calls the Flavortown API through the shared resilient executor.
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
	h.Set("Content-Type", "application/json")
	h.Set("X-Flavortown-Ext-9378", "true")
	return h
}

func pageQuery(page int, query string) url.Values {
	q := url.Values{}
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	if query != "" {
		q.Set("query", query)
	}
	return q
}

// notFound converts a 404 RequestError into an ErrNotFound wrap so callers
// can branch without parsing error text.
func notFound(err error, what string, id int64) error {
	var reqErr *rest.RequestError
	if errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

// Users lists users, optionally filtered by a search query.
func (c *Client) Users(ctx context.Context, key string, page int, query string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/v1/users",
		Header:  headers(key),
		Query:   pageQuery(page, query),
		Action:  "Fetch users",
		Service: string(model.ServiceFlavortown),
	})
}

// UserByID fetches a single user.
func (c *Client) UserByID(ctx context.Context, key string, userID int64) (json.RawMessage, error) {
	raw, err := c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/v1/users/%d", c.baseURL, userID),
		Header:  headers(key),
		Action:  "Fetch user",
		Service: string(model.ServiceFlavortown),
	})
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return raw, nil
}

// Self fetches the profile the key belongs to.
func (c *Client) Self(ctx context.Context, key string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/v1/users/me",
		Header:  headers(key),
		Action:  "Fetch profile",
		Service: string(model.ServiceFlavortown),
	})
}

// Projects lists projects, optionally filtered by a search query.
func (c *Client) Projects(ctx context.Context, key string, page int, query string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/v1/projects",
		Header:  headers(key),
		Query:   pageQuery(page, query),
		Action:  "Fetch projects",
		Service: string(model.ServiceFlavortown),
	})
}

// ProjectByID fetches a single project.
func (c *Client) ProjectByID(ctx context.Context, key string, projectID int64) (json.RawMessage, error) {
	raw, err := c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/v1/projects/%d", c.baseURL, projectID),
		Header:  headers(key),
		Action:  "Fetch project",
		Service: string(model.ServiceFlavortown),
	})
	if err != nil {
		return nil, notFound(err, "project", projectID)
	}
	return raw, nil
}

// ProjectDevlogs lists the devlogs attached to a project.
func (c *Client) ProjectDevlogs(ctx context.Context, key string, projectID int64, page int) (json.RawMessage, error) {
	raw, err := c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/v1/projects/%d/devlogs", c.baseURL, projectID),
		Header:  headers(key),
		Query:   pageQuery(page, ""),
		Action:  "Fetch devlogs",
		Service: string(model.ServiceFlavortown),
	})
	if err != nil {
		return nil, notFound(err, "project", projectID)
	}
	return raw, nil
}

// Shop lists the store items.
func (c *Client) Shop(ctx context.Context, key string) (json.RawMessage, error) {
	return c.rest.Do(ctx, rest.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/v1/store",
		Header:  headers(key),
		Action:  "Fetch shop",
		Service: string(model.ServiceFlavortown),
	})
}

// VerifyKey checks the key with a cheap authenticated request. Called by the
// vault at registration time, before the key is encrypted and stored.
func (c *Client) VerifyKey(ctx context.Context, key string) error {
	_, err := c.Users(ctx, key, 1, "")
	return err
}
