package tools

import (
	"net/http"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func vercelTools() []domain.Tool {
	return []domain.Tool{
		textTool(Vercel, on(http.MethodGet, "/projects"),
			mcp.NewTool("vercel_list_projects",
				mcp.WithDescription("List projects on the Vercel team"),
				mcp.WithString("search", mcp.Description("Filter by project name")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				return get("/v9/projects", params(
					"search", a.String("search"),
					"limit", itoa(a.Int("limit", 20)),
				)), nil
			},
		),
		textTool(Vercel, on(http.MethodGet, "/deployments"),
			mcp.NewTool("vercel_list_deployments",
				mcp.WithDescription("List recent deployments, newest first"),
				mcp.WithString("project_id", mcp.Description("Restrict to one project")),
				mcp.WithString("state", mcp.Enum("BUILDING", "ERROR", "INITIALIZING", "QUEUED", "READY", "CANCELED")),
				mcp.WithString("target", mcp.Enum("production", "preview")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				return get("/v6/deployments", params(
					"projectId", a.String("project_id"),
					"state", a.String("state"),
					"target", a.String("target"),
					"limit", itoa(a.Int("limit", 20)),
				)), nil
			},
		),
		textTool(Vercel, on(http.MethodGet, "/deployments/{deployment_id}"),
			mcp.NewTool("vercel_get_deployment",
				mcp.WithDescription("Get one deployment by id or URL"),
				mcp.WithString("deployment_id", mcp.Required()),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("deployment_id")
				if err != nil {
					return nil, err
				}
				return get("/v13/deployments/"+seg(id), nil), nil
			},
		),
	}
}

// Sentry paths are relative to /api/0/organizations/<org>, which the adapter's base URL carries.
func sentryTools() []domain.Tool {
	return []domain.Tool{
		textTool(Sentry, on(http.MethodGet, "/issues"),
			mcp.NewTool("sentry_list_issues",
				mcp.WithDescription("List issues across the organization"),
				mcp.WithString("query", mcp.Description("Sentry search, defaults to is:unresolved")),
				mcp.WithString("project", mcp.Description("Numeric project id")),
				mcp.WithString("stats_period", mcp.Enum("24h", "14d")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				return get("/issues/", params(
					"query", a.StringOr("query", "is:unresolved"),
					"project", a.String("project"),
					"statsPeriod", a.String("stats_period"),
					"limit", itoa(a.Int("limit", 25)),
				)), nil
			},
		),
		textTool(Sentry, on(http.MethodGet, "/issues/{issue_id}"),
			mcp.NewTool("sentry_get_issue",
				mcp.WithDescription("Get one issue with its latest event summary"),
				mcp.WithString("issue_id", mcp.Required()),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("issue_id")
				if err != nil {
					return nil, err
				}
				return get("/issues/"+seg(id)+"/", nil), nil
			},
		),
	}
}
