package tools

import (
	"net/http"
	"net/url"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// Probes returns one cheap authenticated read per upstream, in Services order.
// Sheets and Docs have no list endpoint of their own, so they list their
// file type through the Drive adapter using the same Google credential.
func Probes() []domain.Probe {
	return []domain.Probe{
		probe(Gmail, Gmail, "/users/me/profile", nil),
		probe(Calendar, Calendar, "/users/me/calendarList", params("maxResults", "1")),
		probe(Drive, Drive, "/files", params("pageSize", "1", "fields", "files(id)")),
		probe(Sheets, Drive, "/files", params(
			"pageSize", "1",
			"fields", "files(id)",
			"q", "mimeType='application/vnd.google-apps.spreadsheet'",
		)),
		probe(Docs, Drive, "/files", params(
			"pageSize", "1",
			"fields", "files(id)",
			"q", "mimeType='application/vnd.google-apps.document'",
		)),
		probe(GAds, GAds, "/customers:listAccessibleCustomers", nil),
		probe(Meta, Meta, "/me", params("fields", "id")),
		probe(Vercel, Vercel, "/v9/projects", params("limit", "1")),
		probe(Sentry, Sentry, "/projects/", nil),
		probe(Mercury, Mercury, "/accounts", nil),
		probe(Browser, Browser, "/json/version", nil),
		probe(Supabase, Supabase, "/", nil),
		probe(Memory, Memory, "/v1/memories/", params("user_id", defaultMemoryUser, "page_size", "1")),
	}
}

func probe(service, adapter, path string, query url.Values) domain.Probe {
	return domain.Probe{
		Service: service,
		Adapter: adapter,
		Request: domain.UpstreamRequest{Method: http.MethodGet, Path: path, Query: query},
	}
}
