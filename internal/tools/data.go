package tools

import (
	"net/http"
	"net/url"
	"regexp"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// defaultMemoryUser scopes memories when the caller does not name a user.
const defaultMemoryUser = "agency"

func supabaseTools() []domain.Tool {
	return []domain.Tool{
		textTool(Supabase, on(http.MethodGet, "/tables/{table}"),
			mcp.NewTool("supabase_query",
				mcp.WithDescription("Select rows from a table through PostgREST"),
				mcp.WithString("table", mcp.Required()),
				mcp.WithString("select", mcp.Description("Column list, defaults to *")),
				mcp.WithString("filter", mcp.Description("PostgREST filters as a query string, e.g. status=eq.active&owner=eq.42")),
				mcp.WithString("order", mcp.Description("e.g. created_at.desc")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				table, err := tableArg(a)
				if err != nil {
					return nil, err
				}
				q := url.Values{}
				if f := a.String("filter"); f != "" {
					q, err = url.ParseQuery(f)
					if err != nil {
						return nil, &domain.ErrValidation{Field: "filter", Message: err.Error()}
					}
				}
				q.Set("select", a.StringOr("select", "*"))
				q.Set("limit", itoa(a.Int("limit", 100)))
				if o := a.String("order"); o != "" {
					q.Set("order", o)
				}
				return get("/"+table, q), nil
			},
		),
		textTool(Supabase, on(http.MethodPost, "/tables/{table}"),
			mcp.NewTool("supabase_insert",
				mcp.WithDescription("Insert rows into a table and return them"),
				mcp.WithString("table", mcp.Required()),
				mcp.WithArray("rows", mcp.Required(),
					mcp.Description("Rows to insert"),
					mcp.Items(map[string]any{"type": "object"}),
				),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				table, err := tableArg(a)
				if err != nil {
					return nil, err
				}
				rows, ok := a["rows"].([]any)
				if !ok || len(rows) == 0 {
					return nil, &domain.ErrValidation{Field: "rows", Message: "must be a non-empty array of objects"}
				}
				req := post("/"+table, rows)
				req.Header = http.Header{"Prefer": {"return=representation"}}
				return req, nil
			},
		),
	}
}

func tableArg(a domain.Args) (string, error) {
	t, err := a.Required("table")
	if err != nil {
		return "", err
	}
	if !tableName.MatchString(t) {
		return "", &domain.ErrValidation{Field: "table", Message: "must be a plain identifier"}
	}
	return t, nil
}

func memoryTools() []domain.Tool {
	return []domain.Tool{
		textTool(Memory, on(http.MethodPost, "/search"),
			mcp.NewTool("memory_search",
				mcp.WithDescription("Semantic search over stored memories"),
				mcp.WithString("query", mcp.Required()),
				mcp.WithString("user_id", mcp.Description("Memory scope, defaults to the agency")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				query, err := a.Required("query")
				if err != nil {
					return nil, err
				}
				return post("/v1/memories/search/", map[string]any{
					"query":   query,
					"user_id": a.StringOr("user_id", defaultMemoryUser),
					"limit":   a.Int("limit", 10),
				}), nil
			},
		),
		textTool(Memory, on(http.MethodPost, "/memories"),
			mcp.NewTool("memory_add",
				mcp.WithDescription("Store a new memory"),
				mcp.WithString("content", mcp.Required()),
				mcp.WithString("user_id", mcp.Description("Memory scope, defaults to the agency")),
				mcp.WithObject("metadata", mcp.Description("Free-form metadata stored with the memory")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				content, err := a.Required("content")
				if err != nil {
					return nil, err
				}
				body := map[string]any{
					"messages": []map[string]string{{"role": "user", "content": content}},
					"user_id":  a.StringOr("user_id", defaultMemoryUser),
				}
				if md, ok := a["metadata"].(map[string]any); ok {
					body["metadata"] = md
				}
				return post("/v1/memories/", body), nil
			},
		),
	}
}
