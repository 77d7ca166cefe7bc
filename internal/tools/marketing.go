package tools

import (
	"net/http"
	"strings"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// ============================================================
// Google Ads
// ============================================================

func gadsTools() []domain.Tool {
	return []domain.Tool{
		textTool(GAds, on(http.MethodGet, "/customers"),
			mcp.NewTool("gads_list_customers",
				mcp.WithDescription("List the Google Ads customer accounts the agency can access"),
			),
			func(domain.Args) (*domain.UpstreamRequest, error) {
				return get("/customers:listAccessibleCustomers", nil), nil
			},
		),
		textTool(GAds, on(http.MethodPost, "/search"),
			mcp.NewTool("gads_search",
				mcp.WithDescription("Run a GAQL query against one customer account"),
				mcp.WithString("customer_id", mcp.Required(), mcp.Description("Customer id, dashes allowed")),
				mcp.WithString("query", mcp.Required(), mcp.Description("GAQL, e.g. SELECT campaign.name, metrics.clicks FROM campaign")),
				mcp.WithString("login_customer_id", mcp.Description("Manager account id when querying through an MCC")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				customer, err := a.Required("customer_id")
				if err != nil {
					return nil, err
				}
				query, err := a.Required("query")
				if err != nil {
					return nil, err
				}
				req := post("/customers/"+seg(digits(customer))+"/googleAds:search", map[string]string{"query": query})
				if login := a.String("login_customer_id"); login != "" {
					req.Header = http.Header{"Login-Customer-Id": {digits(login)}}
				}
				return req, nil
			},
		),
	}
}

func digits(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// ============================================================
// Meta (Facebook / Instagram ads)
// ============================================================

const (
	metaCampaignFields = "id,name,status,objective,daily_budget,lifetime_budget,start_time,stop_time"
	metaInsightFields  = "impressions,clicks,spend,ctr,cpc,actions"
)

func metaTools() []domain.Tool {
	return []domain.Tool{
		textTool(Meta, on(http.MethodGet, "/campaigns"),
			mcp.NewTool("meta_campaigns",
				mcp.WithDescription("List campaigns of an ad account"),
				mcp.WithString("ad_account_id", mcp.Required(), mcp.Description("Ad account id, with or without the act_ prefix")),
				mcp.WithString("status", mcp.Description("Effective status filter"), mcp.Enum("ACTIVE", "PAUSED", "ARCHIVED")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				account, err := a.Required("ad_account_id")
				if err != nil {
					return nil, err
				}
				q := params(
					"fields", metaCampaignFields,
					"limit", itoa(a.Int("limit", 50)),
				)
				if status := a.String("status"); status != "" {
					q.Set("effective_status", `["`+status+`"]`)
				}
				return get("/act_"+seg(strings.TrimPrefix(account, "act_"))+"/campaigns", q), nil
			},
		),
		textTool(Meta, on(http.MethodGet, "/insights"),
			mcp.NewTool("meta_insights",
				mcp.WithDescription("Get performance insights for an ad account, campaign, ad set or ad"),
				mcp.WithString("object_id", mcp.Required(), mcp.Description("Id of the object, act_<id> for an ad account")),
				mcp.WithString("date_preset", mcp.Description("Reporting window"),
					mcp.Enum("today", "yesterday", "last_7d", "last_14d", "last_30d", "this_month", "last_month")),
				mcp.WithString("level", mcp.Enum("account", "campaign", "adset", "ad")),
				mcp.WithString("fields", mcp.Description("Comma-separated metrics")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("object_id")
				if err != nil {
					return nil, err
				}
				return get("/"+seg(id)+"/insights", params(
					"date_preset", a.StringOr("date_preset", "last_7d"),
					"level", a.String("level"),
					"fields", a.StringOr("fields", metaInsightFields),
				)), nil
			},
		),
	}
}
