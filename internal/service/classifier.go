package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// excerptLimit bounds how much of an upstream body is echoed into a message.
const excerptLimit = 200

// ErrorClassifier turns upstream statuses and Go errors into StructuredErrors.
// It is pure: it only inspects what it is given and never performs I/O.
type ErrorClassifier struct {
	oauthServices map[string]bool
}

// NewErrorClassifier creates a classifier. oauthServices are the services whose
// 401s are expected to heal on the next credential refresh.
func NewErrorClassifier(oauthServices ...string) *ErrorClassifier {
	set := make(map[string]bool, len(oauthServices))
	for _, s := range oauthServices {
		set[s] = true
	}
	return &ErrorClassifier{oauthServices: set}
}

// ServiceOf returns the leading segment of a tool or service name,
// e.g. "gmail_inbox" → "gmail".
func ServiceOf(name string) string {
	if i := strings.IndexAny(name, "_-./:"); i > 0 {
		return name[:i]
	}
	return name
}

// Classify maps a response status to a StructuredError, first match wins.
// A nil result means the response is not an error at this layer.
func (c *ErrorClassifier) Classify(toolOrService string, resp *domain.UpstreamResponse) *domain.StructuredError {
	if resp == nil {
		return nil
	}
	service := ServiceOf(toolOrService)
	message := statusMessage(service, resp)

	switch {
	case resp.Status == http.StatusUnauthorized:
		hint := "check API key"
		if c.oauthServices[service] {
			hint = "token expired, will auto-refresh"
		}
		return domain.NewStructuredError(domain.CodeUnauthorized, service, message, hint)
	case resp.Status == http.StatusForbidden:
		return domain.NewStructuredError(domain.CodeUnauthorized, service, message, "check permissions/scopes")
	case resp.Status == http.StatusTooManyRequests:
		hint := "retry after a cooldown"
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			hint = fmt.Sprintf("retry after a cooldown (Retry-After: %s)", ra)
		}
		return domain.NewStructuredError(domain.CodeRateLimited, service, message, hint)
	case resp.Status >= 500:
		return domain.NewStructuredError(domain.CodeServiceUnavailable, service, message, "retry shortly")
	}
	return nil
}

// FromError maps an error raised below the dispatcher to the closed taxonomy.
// Anything unrecognised is a NETWORK_ERROR carrying the raw message.
func (c *ErrorClassifier) FromError(service string, err error) *domain.StructuredError {
	var (
		structured   *domain.StructuredError
		validation   *domain.ErrValidation
		notConfig    *domain.ErrNotConfigured
		tokenRefresh *domain.ErrTokenRefresh
		circuitOpen  *domain.ErrCircuitOpen
		notFound     *domain.ErrNotFound
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &structured):
		return structured
	case errors.As(err, &validation):
		return domain.NewStructuredError(domain.CodeInvalidRequest, service, err.Error(), "check the tool's input schema")
	case errors.As(err, &notConfig):
		return domain.NewStructuredError(domain.CodeUnauthorized, service, err.Error(),
			fmt.Sprintf("set %s in the gateway environment", notConfig.Setting))
	case errors.As(err, &tokenRefresh):
		hint := "retry shortly"
		if tokenRefresh.Status == http.StatusBadRequest || tokenRefresh.Status == http.StatusUnauthorized {
			hint = fmt.Sprintf("re-authorize the %s integration", tokenRefresh.Identity)
		}
		return domain.NewStructuredError(domain.CodeTokenRefreshFailed, service, err.Error(), hint)
	case errors.As(err, &circuitOpen):
		return domain.NewStructuredError(domain.CodeServiceUnavailable, service, err.Error(), "retry shortly")
	case errors.As(err, &notFound):
		return domain.NewStructuredError(domain.CodeNotFound, service, err.Error(), "")
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewStructuredError(domain.CodeNetworkError, service, err.Error(), "upstream did not respond in time")
	default:
		return domain.NewStructuredError(domain.CodeNetworkError, service, err.Error(), "")
	}
}

func statusMessage(service string, resp *domain.UpstreamResponse) string {
	msg := fmt.Sprintf("%s returned HTTP %d", service, resp.Status)
	if detail := bodyExcerpt(resp.Body); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// bodyExcerpt prefers the upstream's own error message over raw bytes.
func bodyExcerpt(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			return clip(nested.Message)
		case len(payload.Error) > 0 && json.Unmarshal(payload.Error, &flat) == nil && flat != "":
			return clip(flat)
		case payload.Message != "":
			return clip(payload.Message)
		case payload.Detail != "":
			return clip(payload.Detail)
		}
	}
	return clip(strings.TrimSpace(string(body)))
}

func clip(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	n := excerptLimit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
