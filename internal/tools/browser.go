package tools

import (
	"net/http"
	"net/url"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func browserTools() []domain.Tool {
	urlArg := mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL to load"))

	return []domain.Tool{
		binaryTool(Browser, domain.OutputImage, "image/png", on(http.MethodPost, "/screenshot"),
			mcp.NewTool("browser_screenshot",
				mcp.WithDescription("Render a page in a headless browser and return a PNG screenshot"),
				urlArg,
				mcp.WithBoolean("full_page", mcp.Description("Capture the full scrollable page")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				target, err := pageURL(a)
				if err != nil {
					return nil, err
				}
				fullPage, _ := a["full_page"].(bool)
				req := post("/screenshot", map[string]any{
					"url":     target,
					"options": map[string]any{"type": "png", "fullPage": fullPage},
				})
				req.Header = http.Header{"Accept": {"image/png"}}
				return req, nil
			},
		),
		binaryTool(Browser, domain.OutputResource, "application/pdf", on(http.MethodPost, "/pdf"),
			mcp.NewTool("browser_pdf",
				mcp.WithDescription("Print a page to PDF"),
				urlArg,
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				target, err := pageURL(a)
				if err != nil {
					return nil, err
				}
				req := post("/pdf", map[string]any{
					"url":     target,
					"options": map[string]any{"printBackground": true, "format": "A4"},
				})
				req.Header = http.Header{"Accept": {"application/pdf"}}
				return req, nil
			},
		),
		textTool(Browser, on(http.MethodPost, "/content"),
			mcp.NewTool("browser_content",
				mcp.WithDescription("Return the rendered HTML of a page after scripts run"),
				urlArg,
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				target, err := pageURL(a)
				if err != nil {
					return nil, err
				}
				req := post("/content", map[string]any{"url": target})
				req.Header = http.Header{"Accept": {"text/html"}}
				return req, nil
			},
		),
	}
}

func pageURL(a domain.Args) (string, error) {
	raw, err := a.Required("url")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &domain.ErrValidation{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	return u.String(), nil
}
