// Package oauth implements the token endpoints the credential cache refreshes against.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("oauth")

// defaultExpiresIn applies when a token endpoint omits expires_in.
const defaultExpiresIn = time.Hour

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchange posts an application/x-www-form-urlencoded grant and decodes the token response.
func exchange(ctx context.Context, client *http.Client, identity, tokenURL string, form url.Values) (*domain.IssuedToken, error) {
	ctx, span := tracer.Start(ctx, "oauth.exchange")
	defer span.End()
	span.SetAttributes(
		attribute.String("credential.identity", identity),
		attribute.String("oauth.grant_type", form.Get("grant_type")),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domain.ErrTokenRefresh{Identity: identity, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.ErrTokenRefresh{Identity: identity, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.ErrTokenRefresh{Identity: identity, Status: resp.StatusCode, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(tr.Error + " " + tr.ErrorDescription)
		if reason == "" {
			reason = truncate(string(body), 200)
		}
		return nil, &domain.ErrTokenRefresh{Identity: identity, Status: resp.StatusCode, Err: fmt.Errorf("%s", reason)}
	}
	if decodeErr != nil {
		return nil, &domain.ErrTokenRefresh{Identity: identity, Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", decodeErr)}
	}
	if tr.AccessToken == "" {
		return nil, &domain.ErrTokenRefresh{Identity: identity, Status: resp.StatusCode, Err: fmt.Errorf("token response has no access_token")}
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return &domain.IssuedToken{AccessToken: tr.AccessToken, ExpiresIn: expiresIn}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
