package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// ServiceAccountKey is the subset of a Google service-account JSON key the gateway reads.
type ServiceAccountKey struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// ServiceAccountSource signs a JWT assertion and exchanges it (RFC 7523 jwt-bearer grant).
type ServiceAccountSource struct {
	httpClient *http.Client
	identity   string
	key        ServiceAccountKey
	signingKey *rsa.PrivateKey
	scopes     []string
	subject    string
	now        func() time.Time
}

// LoadServiceAccountKey reads and parses a service-account key file.
func LoadServiceAccountKey(path string) (ServiceAccountKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccountKey{}, fmt.Errorf("read service account key: %w", err)
	}
	var key ServiceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return ServiceAccountKey{}, fmt.Errorf("decode service account key: %w", err)
	}
	return key, nil
}

// NewServiceAccountSource validates key and prepares the signer.
// subject, when set, is the user to impersonate via domain-wide delegation.
func NewServiceAccountSource(httpClient *http.Client, identity string, key ServiceAccountKey, scopes []string, subject string) (*ServiceAccountSource, error) {
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("service account key has no client_email")
	}
	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}
	if key.TokenURI == "" {
		key.TokenURI = GoogleTokenURL
	}
	return &ServiceAccountSource{
		httpClient: httpClient,
		identity:   identity,
		key:        key,
		signingKey: signingKey,
		scopes:     scopes,
		subject:    subject,
		now:        time.Now,
	}, nil
}

// Assertion builds the signed JWT sent to the token endpoint.
func (s *ServiceAccountSource) Assertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.key.ClientEmail,
		"scope": strings.Join(s.scopes, " "),
		"aud":   s.key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if s.subject != "" {
		claims["sub"] = s.subject
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.key.PrivateKeyID != "" {
		token.Header["kid"] = s.key.PrivateKeyID
	}
	return token.SignedString(s.signingKey)
}

// Token signs a fresh assertion and exchanges it for an access token.
func (s *ServiceAccountSource) Token(ctx context.Context) (*domain.IssuedToken, error) {
	assertion, err := s.Assertion()
	if err != nil {
		return nil, &domain.ErrTokenRefresh{Identity: s.identity, Err: fmt.Errorf("sign assertion: %w", err)}
	}
	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	return exchange(ctx, s.httpClient, s.identity, s.key.TokenURI, form)
}
