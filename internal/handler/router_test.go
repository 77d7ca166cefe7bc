package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/boddenberg/agency-tool-gateway/internal/app"
	"github.com/boddenberg/agency-tool-gateway/internal/config"
	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const apiKey = "test-gateway-key"

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

// fakeUpstreams serves every upstream under /<service>/... and the Google token endpoint.
type fakeUpstreams struct {
	tokenCalls atomic.Int32

	mu     sync.Mutex
	calls  map[string]int
	auth   map[string]string
	status map[string]int
}

func (f *fakeUpstreams) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeUpstreams) authFor(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[path]
}

func (f *fakeUpstreams) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		n := f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600,"token_type":"Bearer"}`, n)
		return
	}

	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.auth[r.URL.Path] = r.Header.Get("Authorization")
	status := f.status[r.URL.Path]
	f.mu.Unlock()

	switch {
	case status == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(status)
		io.WriteString(w, `{"error":"slow down"}`)
	case status != 0:
		w.WriteHeader(status)
		io.WriteString(w, `{"error":"upstream says no"}`)
	case r.URL.Path == "/browser/screenshot":
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	default:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"query":%q}`, r.URL.Path, r.URL.RawQuery)
	}
}

type fixture struct {
	gateway   *app.Gateway
	upstreams *fakeUpstreams
}

// newFixture wires the real gateway against fake upstreams. Meta is left
// unconfigured on purpose.
func newFixture(t *testing.T, env map[string]string) *fixture {
	t.Helper()

	f := &fakeUpstreams{
		calls:  map[string]int{},
		auth:   map[string]string{},
		status: map[string]int{"/mercury/accounts": http.StatusTooManyRequests},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	t.Setenv("GATEWAY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("GATEWAY_VERSION", "1.2.3")
	t.Setenv("GATEWAY_API_KEY", apiKey)
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh")
	t.Setenv("GOOGLE_TOKEN_URL", srv.URL+"/token")
	t.Setenv("GOOGLE_ADS_DEVELOPER_TOKEN", "dev")
	t.Setenv("VERCEL_TOKEN", "vercel")
	t.Setenv("SENTRY_AUTH_TOKEN", "sentry")
	t.Setenv("SENTRY_ORG", "acme")
	t.Setenv("MERCURY_API_KEY", "mercury")
	t.Setenv("BROWSERLESS_TOKEN", "browserless")
	t.Setenv("SUPABASE_URL", srv.URL)
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("MEMORY_API_KEY", "mem")
	for _, svc := range tools.Services() {
		t.Setenv(strings.ToUpper(svc)+"_BASE_URL", srv.URL+"/"+svc)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	gw, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	return &fixture{gateway: gw, upstreams: f}
}

func (fx *fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	fx.gateway.Handler.ServeHTTP(rec, req)
	return rec
}

func authorized() http.Header {
	return http.Header{"Authorization": {"Bearer " + apiKey}}
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Data     string `json:"data"`
		MIMEType string `json:"mimeType"`
	} `json:"content"`
}

func (fx *fixture) rpc(t *testing.T, body string) rpcReply {
	t.Helper()
	rec := fx.do(t, http.MethodPost, "/mcp", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	return reply
}

func (fx *fixture) callTool(t *testing.T, name string, args map[string]any) toolResult {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	reply := fx.rpc(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+string(params)+`}`)
	require.Nil(t, reply.Error)
	var res toolResult
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	return res
}

func structuredError(t *testing.T, res toolResult) domain.StructuredError {
	t.Helper()
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	var serr domain.StructuredError
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &serr))
	return serr
}

func TestToolsList_MatchesAdvertisedCount(t *testing.T) {
	fx := newFixture(t, nil)

	reply := fx.rpc(t, `{"method":"tools/list"}`)
	require.Nil(t, reply.Error)
	var listed struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &listed))

	rec := fx.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live domain.LivenessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))

	assert.Equal(t, "ok", live.Status)
	assert.Equal(t, "1.2.3", live.Version)
	assert.NotEmpty(t, live.Timestamp)
	assert.Len(t, listed.Tools, live.Tools)
	assert.Equal(t, len(tools.All()), live.Tools)
}

func TestToolsCall_GoogleToolRefreshesOnceThenHitsCache(t *testing.T) {
	fx := newFixture(t, nil)
	args := map[string]any{"query": "is:unread"}

	res := fx.callTool(t, "gmail_search", args)
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, int32(1), fx.upstreams.tokenCalls.Load())
	assert.Equal(t, 1, fx.upstreams.count("/gmail/users/me/messages"))
	assert.Equal(t, "Bearer tok-1", fx.upstreams.authFor("/gmail/users/me/messages"))

	res = fx.callTool(t, "gmail_search", args)
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, int32(1), fx.upstreams.tokenCalls.Load(), "second call must reuse the cached token")
	assert.Equal(t, 2, fx.upstreams.count("/gmail/users/me/messages"))
	assert.Equal(t, float64(1), fx.gateway.Metrics.TokenRefreshes(tools.GoogleIdentity))
}

func TestToolsCall_RateLimited(t *testing.T) {
	fx := newFixture(t, nil)

	serr := structuredError(t, fx.callTool(t, "mercury_accounts", nil))
	assert.Equal(t, domain.CodeRateLimited, serr.Code)
	assert.NotEmpty(t, serr.Hint)
	assert.Equal(t, tools.Mercury, serr.Service)
}

func TestToolsCall_UnknownTool(t *testing.T) {
	fx := newFixture(t, nil)

	serr := structuredError(t, fx.callTool(t, "fax_send", nil))
	assert.Equal(t, domain.CodeNotFound, serr.Code)
}

func TestToolsCall_UnconfiguredUpstream(t *testing.T) {
	fx := newFixture(t, nil)

	serr := structuredError(t, fx.callTool(t, "meta_campaigns", map[string]any{"ad_account_id": "act_1"}))
	assert.Equal(t, domain.CodeUnauthorized, serr.Code)
	assert.Contains(t, serr.Message+serr.Hint, "META_ACCESS_TOKEN")
}

func TestToolsCall_Image(t *testing.T) {
	fx := newFixture(t, nil)

	res := fx.callTool(t, "browser_screenshot", map[string]any{"url": "https://example.com"})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "image", res.Content[0].Type)
	assert.Equal(t, "image/png", res.Content[0].MIMEType)
	assert.NotEmpty(t, res.Content[0].Data)
}

func TestHealth_UnknownService(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/health/unknown-service", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t,
		`{"service":"unknown-service","status":"error","message":"Unknown service: unknown-service"}`,
		rec.Body.String())
}

func TestHealth_SingleService(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/health/vercel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sh domain.ServiceHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sh))
	assert.Equal(t, domain.HealthOK, sh.Status)
	require.NotNil(t, sh.LatencyMs)

	rec = fx.do(t, http.MethodGet, "/health/meta", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sh))
	assert.Equal(t, domain.HealthWarning, sh.Status)
}

func TestHealth_Full(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/health/full", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	assert.Len(t, report.Services, len(tools.Services()))
	assert.Equal(t, len(tools.All()), report.Gateway.ToolCount)
	assert.Equal(t, "1.2.3", report.Gateway.Version)
	// mercury is rate limited and meta unconfigured: both warn, nothing fails.
	assert.Equal(t, domain.GatewayOK, report.Gateway.Status)
	assert.Equal(t, 2, report.Summary.Degraded)
	assert.Zero(t, report.Summary.Failed)
}

func TestRPC_Initialize(t *testing.T) {
	fx := newFixture(t, nil)

	reply := fx.rpc(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `1`, string(reply.ID))
	var init struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &init))
	assert.NotEmpty(t, init.ProtocolVersion)
	assert.Contains(t, init.Capabilities, "tools")
	assert.Equal(t, "agency-tool-gateway", init.ServerInfo.Name)
	assert.Equal(t, "1.2.3", init.ServerInfo.Version)
}

func TestRPC_Ping(t *testing.T) {
	fx := newFixture(t, nil)

	reply := fx.rpc(t, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `"abc"`, string(reply.ID))
	assert.JSONEq(t, `{}`, string(reply.Result))
}

func TestRPC_Notification(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodPost, "/", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRPC_Errors(t *testing.T) {
	fx := newFixture(t, nil)

	reply := fx.rpc(t, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32601, reply.Error.Code)
	assert.Equal(t, "Method not found: resources/list", reply.Error.Message)

	reply = fx.rpc(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"arguments":{}}}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)

	rec := fx.do(t, http.MethodPost, "/mcp", `{"jsonrpc":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "-32700")
}

func TestRPC_Batch(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodPost, "/mcp", `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var replies []rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replies))
	require.Len(t, replies, 2)
	assert.Nil(t, replies[0].Error)
	require.NotNil(t, replies[1].Error)
	assert.Equal(t, -32601, replies[1].Error.Code)
}

func TestREST_RequiresAPIKey(t *testing.T) {
	fx := newFixture(t, nil)

	for _, h := range []http.Header{
		nil,
		{"Authorization": {"Bearer wrong"}},
		{"Authorization": {apiKey}},
	} {
		rec := fx.do(t, http.MethodGet, "/vercel/projects", "", h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	}

	// Unknown paths are rejected before routing too.
	rec := fx.do(t, http.MethodGet, "/vercel/nope", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, fx.upstreams.count("/vercel/v9/projects"))
}

func TestREST_UnknownEndpoint(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/vercel/nope", "", authorized())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Unknown vercel endpoint","path":"/vercel/nope"}`, rec.Body.String())
}

func TestREST_Success(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/vercel/projects?limit=5&search=web", "", authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var echoed struct {
		Path  string `json:"path"`
		Query string `json:"query"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echoed))
	assert.Equal(t, "/vercel/v9/projects", echoed.Path)
	assert.Contains(t, echoed.Query, "limit=5")
	assert.Contains(t, echoed.Query, "search=web")
	assert.Equal(t, "Bearer vercel", fx.upstreams.authFor("/vercel/v9/projects"))
}

func TestREST_PathParamsAndBody(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/vercel/deployments/dpl_123", "", authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, fx.upstreams.count("/vercel/v13/deployments/dpl_123"))

	rec = fx.do(t, http.MethodPost, "/browser/screenshot", `{"url":"https://example.com"}`, authorized())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())
}

func TestREST_ErrorStatusMapping(t *testing.T) {
	fx := newFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/mercury/accounts", "", authorized())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var serr domain.StructuredError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &serr))
	assert.Equal(t, domain.CodeRateLimited, serr.Code)

	rec = fx.do(t, http.MethodGet, "/vercel/projects?limit=0", "", authorized())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodGet, "/meta/campaigns?ad_account_id=act_1", "", authorized())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestREST_HashedAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)
	fx := newFixture(t, map[string]string{
		"GATEWAY_API_KEY":      "",
		"GATEWAY_API_KEY_HASH": string(hash),
	})

	rec := fx.do(t, http.MethodGet, "/vercel/projects", "", http.Header{"Authorization": {"Bearer hashed-key"}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodGet, "/vercel/projects", "", authorized())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetrics(t *testing.T) {
	fx := newFixture(t, nil)
	fx.callTool(t, "fax_send", nil)

	rec := fx.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gateway_tool_calls_total{outcome="NOT_FOUND",tool="unknown"} 1`)
	assert.NotContains(t, rec.Body.String(), "fax_send")
}
