package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values come from the environment, then an optional .env file, then defaults.
type Config struct {
	// Server
	Port               int
	LogLevel           string
	Name               string
	Version            string
	APIKey             string
	APIKeyHash         string
	CORSAllowedOrigins []string

	// HTTP client
	HTTPTimeout    time.Duration
	MaxConcurrency int

	// Health
	HealthProbeTimeout time.Duration

	// Credentials
	CredentialRefreshSkew  time.Duration
	CredentialSingleflight bool
	CredentialStore        string
	CredentialStorePath    string
	CacheNamespace         string

	// Observability
	OTLPEndpoint string

	Google GoogleConfig

	MetaAccessToken        string
	VercelToken            string
	VercelTeamID           string
	SentryAuthToken        string
	SentryOrg              string
	MercuryAPIKey          string
	BrowserlessToken       string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	MemoryAPIKey           string

	baseURLs map[string]string
}

// GoogleConfig covers every Google upstream; they share one credential identity.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string

	// ServiceAccountFile, when set, replaces the refresh-token grant.
	ServiceAccountFile string
	Scopes             []string
	ImpersonateSubject string

	AdsDeveloperToken  string
	AdsLoginCustomerID string
}

// HasRefreshToken reports whether the OAuth refresh-token grant is fully configured.
func (g GoogleConfig) HasRefreshToken() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != ""
}

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// defaultBaseURLs are the public API roots, overridable with <SERVICE>_BASE_URL.
var defaultBaseURLs = map[string]string{
	"gmail":    "https://gmail.googleapis.com/gmail/v1",
	"calendar": "https://www.googleapis.com/calendar/v3",
	"drive":    "https://www.googleapis.com/drive/v3",
	"sheets":   "https://sheets.googleapis.com/v4",
	"docs":     "https://docs.googleapis.com/v1",
	"gads":     "https://googleads.googleapis.com/v17",
	"meta":     "https://graph.facebook.com/v21.0",
	"vercel":   "https://api.vercel.com",
	"sentry":   "https://sentry.io/api/0",
	"mercury":  "https://api.mercury.com/api/v1",
	"browser":  "https://production-sfo.browserless.io",
	"supabase": "",
	"memory":   "https://api.mem0.ai",
}

var defaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/adwords",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GATEWAY_NAME", "agency-tool-gateway")
	v.SetDefault("GATEWAY_VERSION", "dev")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("HTTP_TIMEOUT", "0s")
	v.SetDefault("MAX_CONCURRENCY", 50)
	v.SetDefault("HEALTH_PROBE_TIMEOUT", "0s")

	v.SetDefault("CREDENTIAL_REFRESH_SKEW", "60s")
	v.SetDefault("CREDENTIAL_SINGLEFLIGHT", false)
	v.SetDefault("CREDENTIAL_STORE", StoreMemory)
	v.SetDefault("CREDENTIAL_STORE_PATH", "data/credentials.db")
	v.SetDefault("CACHE_NAMESPACE", "gateway-credentials")

	v.SetDefault("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	v.SetDefault("GOOGLE_SCOPES", strings.Join(defaultScopes, ","))
}

// Load reads configuration. GATEWAY_ENV_FILE names an optional .env file
// (default ".env"); a missing file is not an error and real environment
// variables always win over it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	envFile := v.GetString("GATEWAY_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Port:               v.GetInt("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		Name:               v.GetString("GATEWAY_NAME"),
		Version:            v.GetString("GATEWAY_VERSION"),
		APIKey:             v.GetString("GATEWAY_API_KEY"),
		APIKeyHash:         v.GetString("GATEWAY_API_KEY_HASH"),
		CORSAllowedOrigins: list(v.GetString("CORS_ALLOWED_ORIGINS")),

		HTTPTimeout:    v.GetDuration("HTTP_TIMEOUT"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		HealthProbeTimeout: v.GetDuration("HEALTH_PROBE_TIMEOUT"),

		CredentialRefreshSkew:  v.GetDuration("CREDENTIAL_REFRESH_SKEW"),
		CredentialSingleflight: v.GetBool("CREDENTIAL_SINGLEFLIGHT"),
		CredentialStore:        strings.ToLower(v.GetString("CREDENTIAL_STORE")),
		CredentialStorePath:    v.GetString("CREDENTIAL_STORE_PATH"),
		CacheNamespace:         v.GetString("CACHE_NAMESPACE"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Google: GoogleConfig{
			ClientID:           v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret:       v.GetString("GOOGLE_CLIENT_SECRET"),
			RefreshToken:       v.GetString("GOOGLE_REFRESH_TOKEN"),
			TokenURL:           v.GetString("GOOGLE_TOKEN_URL"),
			ServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),
			Scopes:             list(v.GetString("GOOGLE_SCOPES")),
			ImpersonateSubject: v.GetString("GOOGLE_IMPERSONATE_SUBJECT"),
			AdsDeveloperToken:  v.GetString("GOOGLE_ADS_DEVELOPER_TOKEN"),
			AdsLoginCustomerID: v.GetString("GOOGLE_ADS_LOGIN_CUSTOMER_ID"),
		},

		MetaAccessToken:        v.GetString("META_ACCESS_TOKEN"),
		VercelToken:            v.GetString("VERCEL_TOKEN"),
		VercelTeamID:           v.GetString("VERCEL_TEAM_ID"),
		SentryAuthToken:        v.GetString("SENTRY_AUTH_TOKEN"),
		SentryOrg:              v.GetString("SENTRY_ORG"),
		MercuryAPIKey:          v.GetString("MERCURY_API_KEY"),
		BrowserlessToken:       v.GetString("BROWSERLESS_TOKEN"),
		SupabaseURL:            strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		MemoryAPIKey:           v.GetString("MEMORY_API_KEY"),

		baseURLs: make(map[string]string, len(defaultBaseURLs)),
	}

	for service, def := range defaultBaseURLs {
		if override := v.GetString(strings.ToUpper(service) + "_BASE_URL"); override != "" {
			cfg.baseURLs[service] = strings.TrimRight(override, "/")
			continue
		}
		switch service {
		case "sentry":
			if cfg.SentryOrg != "" {
				def += "/organizations/" + cfg.SentryOrg
			}
		case "supabase":
			if cfg.SupabaseURL != "" {
				def = cfg.SupabaseURL + "/rest/v1"
			}
		}
		cfg.baseURLs[service] = def
	}
	return cfg
}

// BaseURL returns the API root for an upstream, or "" when it cannot be derived.
func (c *Config) BaseURL(service string) string {
	return c.baseURLs[service]
}

// Validate rejects settings the gateway cannot start with. Missing upstream
// secrets are not errors: those upstreams report themselves unconfigured.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be debug, info, warn or error", c.LogLevel))
	}
	switch c.CredentialStore {
	case StoreMemory, StoreBolt:
	default:
		errs = append(errs, fmt.Errorf("CREDENTIAL_STORE %q must be %s or %s", c.CredentialStore, StoreMemory, StoreBolt))
	}
	if c.CredentialStore == StoreBolt && c.CredentialStorePath == "" {
		errs = append(errs, errors.New("CREDENTIAL_STORE_PATH is required for the bolt store"))
	}
	if c.CredentialRefreshSkew < 0 {
		errs = append(errs, errors.New("CREDENTIAL_REFRESH_SKEW must not be negative"))
	}
	if c.HTTPTimeout < 0 || c.HealthProbeTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, errors.New("MAX_CONCURRENCY must not be negative"))
	}
	return errors.Join(errs...)
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
