package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boddenberg/agency-tool-gateway/internal/app"
	"github.com/boddenberg/agency-tool-gateway/internal/config"
	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/service"
	"github.com/boddenberg/agency-tool-gateway/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func load(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("GATEWAY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNew_NothingConfigured(t *testing.T) {
	gw, err := app.New(load(t, nil), zap.NewNop())
	require.NoError(t, err)
	defer gw.Close()

	assert.Equal(t, len(tools.All()), gw.Registry.Len())
	assert.False(t, gw.Credentials.Has(tools.GoogleIdentity))

	res := gw.Dispatcher.Execute(context.Background(), "vercel_list_projects", nil)
	serr, ok := service.ParseErrorResult(res)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnauthorized, serr.Code)
	assert.Contains(t, serr.Hint, "VERCEL_TOKEN")

	res = gw.Dispatcher.Execute(context.Background(), "supabase_query", map[string]any{"table": "clients"})
	serr, ok = service.ParseErrorResult(res)
	require.True(t, ok)
	assert.Contains(t, serr.Hint, "SUPABASE_URL")

	report := gw.Health.RunFull(context.Background())
	assert.Equal(t, domain.GatewayOK, report.Gateway.Status)
	assert.Equal(t, len(tools.Services()), report.Summary.Degraded)
}

func TestNew_BoltStoreAndRefreshToken(t *testing.T) {
	cfg := load(t, map[string]string{
		"CREDENTIAL_STORE":      config.StoreBolt,
		"CREDENTIAL_STORE_PATH": filepath.Join(t.TempDir(), "creds.db"),
		"GOOGLE_CLIENT_ID":      "id",
		"GOOGLE_CLIENT_SECRET":  "secret",
		"GOOGLE_REFRESH_TOKEN":  "refresh",
	})

	gw, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, gw.Credentials.Has(tools.GoogleIdentity))
	require.NoError(t, gw.Close())
}

func TestNew_MissingServiceAccountFile(t *testing.T) {
	cfg := load(t, map[string]string{
		"GOOGLE_SERVICE_ACCOUNT_FILE": filepath.Join(t.TempDir(), "nope.json"),
	})

	_, err := app.New(cfg, zap.NewNop())
	assert.Error(t, err)
}
