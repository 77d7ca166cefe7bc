// Package tools is the static tool catalog. Every entry binds an MCP tool
// definition to the upstream that serves it, the function that turns
// arguments into an upstream request, and the REST fallback route.
package tools

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// GoogleIdentity is the credential identity shared by all Google upstreams.
const GoogleIdentity = "google"

// Upstream service names, also the REST path prefixes.
const (
	Gmail    = "gmail"
	Calendar = "calendar"
	Drive    = "drive"
	Sheets   = "sheets"
	Docs     = "docs"
	GAds     = "gads"
	Meta     = "meta"
	Vercel   = "vercel"
	Sentry   = "sentry"
	Mercury  = "mercury"
	Browser  = "browser"
	Supabase = "supabase"
	Memory   = "memory"
)

// Services lists every upstream in catalog order.
func Services() []string {
	return []string{Gmail, Calendar, Drive, Sheets, Docs, GAds, Meta, Vercel, Sentry, Mercury, Browser, Supabase, Memory}
}

// GoogleServices are the upstreams authenticated with the Google identity.
func GoogleServices() []string {
	return []string{Gmail, Calendar, Drive, Sheets, Docs, GAds}
}

// All returns the full catalog in the order tools/list advertises it.
func All() []domain.Tool {
	var out []domain.Tool
	for _, group := range [][]domain.Tool{
		gmailTools(),
		calendarTools(),
		driveTools(),
		sheetsTools(),
		docsTools(),
		gadsTools(),
		metaTools(),
		vercelTools(),
		sentryTools(),
		mercuryTools(),
		browserTools(),
		supabaseTools(),
		memoryTools(),
	} {
		out = append(out, group...)
	}
	return out
}

func textTool(service string, route domain.RESTRoute, def mcp.Tool, build domain.RequestBuilder) domain.Tool {
	return domain.Tool{
		Definition: def,
		Service:    service,
		Output:     domain.OutputText,
		Build:      build,
		Route:      route,
	}
}

func binaryTool(service string, kind domain.OutputKind, mimeType string, route domain.RESTRoute, def mcp.Tool, build domain.RequestBuilder) domain.Tool {
	t := textTool(service, route, def, build)
	t.Output = kind
	t.MIMEType = mimeType
	return t
}

func on(method, path string) domain.RESTRoute {
	return domain.RESTRoute{Method: method, Path: path}
}

func get(path string, query url.Values) *domain.UpstreamRequest {
	return &domain.UpstreamRequest{Method: http.MethodGet, Path: path, Query: query}
}

func post(path string, body any) *domain.UpstreamRequest {
	return &domain.UpstreamRequest{Method: http.MethodPost, Path: path, Body: body}
}

// params builds a query from key/value pairs, skipping empty values.
func params(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			v.Set(kv[i], kv[i+1])
		}
	}
	return v
}

func itoa(n int) string { return strconv.Itoa(n) }

func seg(s string) string { return url.PathEscape(s) }

func limitArg(opts ...mcp.PropertyOption) mcp.ToolOption {
	return mcp.WithNumber("limit", append([]mcp.PropertyOption{
		mcp.Description("Maximum number of items to return"),
		mcp.Min(1),
		mcp.Max(500),
	}, opts...)...)
}
