package tools

import (
	"net/http"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func mercuryTools() []domain.Tool {
	return []domain.Tool{
		textTool(Mercury, on(http.MethodGet, "/accounts"),
			mcp.NewTool("mercury_accounts",
				mcp.WithDescription("List bank accounts with current and available balances"),
			),
			func(domain.Args) (*domain.UpstreamRequest, error) {
				return get("/accounts", nil), nil
			},
		),
		textTool(Mercury, on(http.MethodGet, "/accounts/{account_id}/transactions"),
			mcp.NewTool("mercury_transactions",
				mcp.WithDescription("List transactions of one account"),
				mcp.WithString("account_id", mcp.Required()),
				mcp.WithString("start", mcp.Description("Earliest posting date, YYYY-MM-DD")),
				mcp.WithString("end", mcp.Description("Latest posting date, YYYY-MM-DD")),
				mcp.WithString("search", mcp.Description("Counterparty or note search")),
				limitArg(),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("account_id")
				if err != nil {
					return nil, err
				}
				for _, field := range []string{"start", "end"} {
					if v := a.String(field); v != "" {
						if err := isoDate(field, v); err != nil {
							return nil, err
						}
					}
				}
				return get("/account/"+seg(id)+"/transactions", params(
					"start", a.String("start"),
					"end", a.String("end"),
					"search", a.String("search"),
					"limit", itoa(a.Int("limit", 100)),
				)), nil
			},
		),
	}
}

func isoDate(field, v string) error {
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return &domain.ErrValidation{Field: field, Message: "must be a YYYY-MM-DD date"}
	}
	return nil
}
