package domain

import (
	"net/http"
	"net/url"
	"time"
)

// UpstreamRequest is the normalized request a tool mapping produces and an adapter executes.
type UpstreamRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is JSON-encoded when set. RawBody wins over Body and is sent with ContentType.
	Body        any
	RawBody     []byte
	ContentType string

	// Token is the bearer credential resolved by the dispatcher for OAuth-backed upstreams.
	Token string
}

// UpstreamResponse is the raw HTTP-like result of an adapter call.
type UpstreamResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// CachedCredential is a short-lived bearer token for one credential identity.
type CachedCredential struct {
	Token            string `json:"token"`
	ExpiresAtEpochMs int64  `json:"expiresAtEpochMs"`
}

// ExpiresAt returns the expiry as a time.Time.
func (c CachedCredential) ExpiresAt() time.Time {
	return time.UnixMilli(c.ExpiresAtEpochMs)
}

// FreshAt reports whether the credential may still be used at now, keeping skew in reserve.
func (c CachedCredential) FreshAt(now time.Time, skew time.Duration) bool {
	return c.Token != "" && now.UnixMilli() < c.ExpiresAtEpochMs-skew.Milliseconds()
}

// IssuedToken is what a token endpoint hands back.
type IssuedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
}
