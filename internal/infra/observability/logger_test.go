package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerMiddleware_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  zapcore.Level
	}{
		{"/mcp", http.StatusOK, zapcore.InfoLevel},
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/metrics", http.StatusOK, zapcore.DebugLevel},
		{"/health", http.StatusNotFound, zapcore.WarnLevel},
		{"/vercel/projects", http.StatusUnauthorized, zapcore.WarnLevel},
		{"/vercel/projects", http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		mw := observability.ZapLoggerMiddleware(zap.New(core))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		require.Equal(t, 1, logs.Len(), tt.path)
		entry := logs.All()[0]
		assert.Equal(t, tt.level, entry.Level, "%s %d", tt.path, tt.status)
		assert.Equal(t, int64(tt.status), entry.ContextMap()["status"])
	}
}

func TestZapLoggerMiddleware_MCPSession(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := observability.ZapLoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", "sess-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sess-1", logs.All()[0].ContextMap()["mcp_session"])
}

func TestNewLogger_Levels(t *testing.T) {
	assert.True(t, observability.NewLogger("debug", "gw", "1").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, observability.NewLogger("info", "gw", "1").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, observability.NewLogger("error", "gw", "1").Core().Enabled(zapcore.WarnLevel))
}
