package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackoffs keeps retry sleeps negligible in tests.
var testBackoffs = []time.Duration{time.Millisecond, 2 * time.Millisecond}

func newTestClient(stats *Stats) *Client {
	return NewClient(Options{
		MaxRetries: 2,
		Backoffs:   testBackoffs,
		Timeout:    5 * time.Second,
		Stats:      stats,
	})
}

// sequenceServer replies with the given status codes in order, then keeps
// repeating the last one. 200 responses carry a small JSON body.
func sequenceServer(t *testing.T, statuses []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		status := statuses[n]
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"ok":true}`))
		} else {
			_, _ = w.Write([]byte(`upstream unhappy`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_SuccessFirstAttempt(t *testing.T) {
	srv, calls := sequenceServer(t, []int{http.StatusOK})
	stats := NewStats()
	c := newTestClient(stats)

	raw, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.NoError(t, err)

	var parsed struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.True(t, parsed.OK)
	assert.Equal(t, int32(1), calls.Load())

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.TotalCalls)
	assert.Equal(t, int64(0), snap.ErrorCalls)
}

func TestClient_RetriesTransientThenSucceeds(t *testing.T) {
	srv, calls := sequenceServer(t, []int{
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusOK,
	})
	stats := NewStats()
	c := newTestClient(stats)

	raw, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Equal(t, int32(3), calls.Load(), "success on the third attempt, exactly 2 retries")

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.TotalCalls, "every attempt counts one call")
	assert.Equal(t, int64(0), snap.ErrorCalls, "a recovered request records no error")
	assert.Equal(t, int64(3), snap.ByService["flavortown"].Total)
}

func TestClient_ExhaustedRetriesReportLastStatus(t *testing.T) {
	srv, calls := sequenceServer(t, []int{
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	})
	stats := NewStats()
	c := newTestClient(stats)

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusGatewayTimeout, reqErr.Status, "carries the last observed status")

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.ErrorCalls, "one terminal failure, one error")
}

func TestClient_UnauthorizedNeverRetried(t *testing.T) {
	srv, calls := sequenceServer(t, []int{http.StatusUnauthorized})
	stats := NewStats()
	c := newTestClient(stats)

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "401 triggers zero retries")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Fetch users", authErr.Action)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.ErrorCalls)
	assert.Equal(t, int64(1), snap.ByService["flavortown"].Errors)
}

func TestClient_OtherHTTPErrorNotRetried(t *testing.T) {
	srv, calls := sequenceServer(t, []int{http.StatusNotFound})
	c := newTestClient(NewStats())

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch project",
		Service: "flavortown",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Contains(t, reqErr.Detail, "upstream unhappy")
	assert.Contains(t, reqErr.Error(), "status=404")
}

func TestClient_NetworkErrorClassified(t *testing.T) {
	stats := NewStats()
	c := newTestClient(stats)

	// A closed server yields a connect failure with no HTTP status.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch today",
		Service: "hackatime",
	})
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Contains(t, netErr.Error(), "status=unknown")

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.ErrorCalls)
}

func TestClient_ErrorNeverContainsCredential(t *testing.T) {
	srv, _ := sequenceServer(t, []int{http.StatusUnauthorized})
	c := newTestClient(NewStats())

	header := http.Header{}
	header.Set("Authorization", "Bearer super-secret-key")

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Header:  header,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}

func TestClient_PostSendsJSONBody(t *testing.T) {
	var received struct {
		Name string `json:"name"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(NewStats())
	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Body:    map[string]string{"name": "orpheus"},
		Action:  "Create thing",
		Service: "flavortown",
	})
	require.NoError(t, err)
	assert.Equal(t, "orpheus", received.Name)
}

func TestClient_ZeroMaxRetriesMeansSingleAttempt(t *testing.T) {
	srv, calls := sequenceServer(t, []int{http.StatusServiceUnavailable})
	stats := NewStats()
	c := NewClient(Options{
		MaxRetries: 0,
		Backoffs:   testBackoffs,
		Timeout:    5 * time.Second,
		Stats:      stats,
	})

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "zero retries means exactly one attempt")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.Status)
}

func TestClient_ErrorsNeverExceedCalls(t *testing.T) {
	stats := NewStats()
	c := newTestClient(stats)

	// A method with a space never produces a request, let alone a response.
	_, err := c.Do(context.Background(), Request{
		Method:  "BAD METHOD",
		URL:     "http://localhost:0",
		Action:  "Fetch users",
		Service: "flavortown",
	})
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.TotalCalls, "a failed attempt still counts one call")
	assert.Equal(t, int64(1), snap.ErrorCalls)
}

func TestClient_CacheIsPerCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"token":%q}`, r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(NewStats())

	fetch := func(token string) string {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		raw, err := c.Do(context.Background(), Request{
			Method:  http.MethodGet,
			URL:     srv.URL,
			Header:  header,
			Action:  "Fetch users",
			Service: "flavortown",
		})
		require.NoError(t, err)

		var parsed struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(raw, &parsed))
		return parsed.Token
	}

	assert.Equal(t, "Bearer user-a", fetch("user-a"))
	assert.Equal(t, "Bearer user-a", fetch("user-a"))
	assert.Equal(t, int32(1), calls.Load(), "a repeat read under the same credential is served from its cache")

	assert.Equal(t, "Bearer user-b", fetch("user-b"), "a cached response must never be replayed to another credential")
	assert.Equal(t, int32(2), calls.Load())
}

func TestStats_SnapshotAndReset(t *testing.T) {
	s := NewStats()
	s.recordCall("flavortown")
	s.recordCall("flavortown")
	s.recordCall("hackatime")
	s.recordError("hackatime")

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.ErrorCalls)
	assert.Equal(t, int64(2), snap.ByService["flavortown"].Total)
	assert.Equal(t, int64(1), snap.ByService["hackatime"].Errors)

	// Snapshot is a copy; mutating it does not touch live counters.
	snap.ByService["flavortown"] = ServiceStats{Total: 99}
	assert.Equal(t, int64(2), s.Snapshot().ByService["flavortown"].Total)

	s.Reset()
	snap = s.Snapshot()
	assert.Equal(t, int64(0), snap.TotalCalls)
	assert.Empty(t, snap.ByService)
}
