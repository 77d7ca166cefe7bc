package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/resilience"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(opts upstream.Options) *upstream.Client {
	return upstream.NewClient(http.DefaultClient, opts, resilience.Config{MaxConcurrency: 4}, zap.NewNop())
}

func TestClient_BearerFromRequestToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		assert.Equal(t, "from:boss", r.URL.Query().Get("q"))
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	c := newClient(upstream.Options{Name: "gmail", BaseURL: srv.URL, Identity: "google", Auth: upstream.AuthBearer})
	resp, err := c.Call(context.Background(), &domain.UpstreamRequest{
		Method: http.MethodGet,
		Path:   "/gmail/v1/users/me/messages",
		Query:  url.Values{"q": {"from:boss"}},
		Token:  "ya29.tok",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"messages":[]}`, string(resp.Body))
}

func TestClient_StaticKeyHeaderAndExtraHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var rows []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		assert.Len(t, rows, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newClient(upstream.Options{
		Name:    "supabase",
		BaseURL: srv.URL,
		APIKey:  "service-key",
		Auth:    upstream.AuthBearer,
		Header:  http.Header{"apikey": {"service-key"}},
	})
	resp, err := c.Call(context.Background(), &domain.UpstreamRequest{
		Method: http.MethodPost,
		Path:   "rest/v1/clients",
		Body:   []map[string]any{{"name": "Acme"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestClient_QueryAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "browser-token", r.URL.Query().Get("token"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw", string(body))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := newClient(upstream.Options{Name: "browser", BaseURL: srv.URL, APIKey: "browser-token", Auth: upstream.AuthQuery, AuthParam: "token"})
	resp, err := c.Call(context.Background(), &domain.UpstreamRequest{
		Method: http.MethodPost, Path: "/screenshot", RawBody: []byte("raw"), ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, resp.Body)
}

func TestClient_ServerErrorIsReturnedAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer srv.Close()

	c := newClient(upstream.Options{Name: "vercel", BaseURL: srv.URL})
	resp, err := c.Call(context.Background(), &domain.UpstreamRequest{Path: "/v2/user"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestClient_BreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(upstream.Options{Name: "sentry", BaseURL: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := c.Call(context.Background(), &domain.UpstreamRequest{Path: "/api/0/"})
		require.NoError(t, err)
	}

	_, err := c.Call(context.Background(), &domain.UpstreamRequest{Path: "/api/0/"})
	var open *domain.ErrCircuitOpen
	require.True(t, errors.As(err, &open))
	assert.Equal(t, "sentry", open.Service)
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_CancelledCallsDoNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(upstream.Options{Name: "vercel", BaseURL: srv.URL})
	for i := 0; i < 6; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(5*time.Millisecond, cancel)
		_, err := c.Call(ctx, &domain.UpstreamRequest{Path: "/v9/projects"})
		require.Error(t, err)
		cancel()
	}

	resp, err := c.Call(context.Background(), &domain.UpstreamRequest{Path: "/v9/projects"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := newClient(upstream.Options{Name: "mercury", BaseURL: base})
	_, err := c.Call(context.Background(), &domain.UpstreamRequest{Path: "/api/v1/accounts"})

	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "mercury", ext.Service)
}

func TestClient_Configured(t *testing.T) {
	ok := newClient(upstream.Options{Name: "vercel"})
	assert.NoError(t, ok.Configured())

	missing := newClient(upstream.Options{Name: "vercel", MissingSettings: []string{"VERCEL_TOKEN"}})
	var nc *domain.ErrNotConfigured
	require.True(t, errors.As(missing.Configured(), &nc))
	assert.Equal(t, "VERCEL_TOKEN", nc.Setting)
	assert.Equal(t, "vercel", missing.Name())
	assert.Equal(t, "", missing.Identity())
}

func TestClient_StaticQueryDoesNotOverrideRequest(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query())
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(upstream.Options{
		Name:    "vercel",
		BaseURL: srv.URL,
		Query:   url.Values{"teamId": {"team_default"}, "limit": {"20"}},
	})
	_, err := c.Call(context.Background(), &domain.UpstreamRequest{
		Path:  "/v6/deployments",
		Query: url.Values{"limit": {"5"}},
	})
	require.NoError(t, err)

	q := got.Load().(url.Values)
	assert.Equal(t, "team_default", q.Get("teamId"))
	assert.Equal(t, []string{"5"}, q["limit"])
}
