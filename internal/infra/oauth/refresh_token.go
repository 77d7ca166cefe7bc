package oauth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// GoogleTokenURL is Google's OAuth2 token endpoint.
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

// RefreshTokenSource exchanges a stored refresh token (grant_type=refresh_token).
type RefreshTokenSource struct {
	httpClient   *http.Client
	identity     string
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
}

// NewRefreshTokenSource creates a refresh-token grant source for identity.
func NewRefreshTokenSource(httpClient *http.Client, identity, tokenURL, clientID, clientSecret, refreshToken string) *RefreshTokenSource {
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	return &RefreshTokenSource{
		httpClient:   httpClient,
		identity:     identity,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

// Token performs one refresh round trip.
func (s *RefreshTokenSource) Token(ctx context.Context) (*domain.IssuedToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.refreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	return exchange(ctx, s.httpClient, s.identity, s.tokenURL, form)
}
