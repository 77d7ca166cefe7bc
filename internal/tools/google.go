package tools

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// ============================================================
// Gmail
// ============================================================

func gmailTools() []domain.Tool {
	return []domain.Tool{
		textTool(Gmail, on(http.MethodGet, "/search"),
			mcp.NewTool("gmail_search",
				mcp.WithDescription("Search the mailbox with Gmail query syntax and return matching message ids"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Gmail search query, e.g. from:client is:unread")),
				mcp.WithNumber("max_results", mcp.Description("Maximum messages to return"), mcp.Min(1), mcp.Max(100)),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				q, err := a.Required("query")
				if err != nil {
					return nil, err
				}
				return get("/users/me/messages", params(
					"q", q,
					"maxResults", itoa(a.Int("max_results", 20)),
				)), nil
			},
		),
		textTool(Gmail, on(http.MethodGet, "/messages/{message_id}"),
			mcp.NewTool("gmail_read",
				mcp.WithDescription("Read one message by id"),
				mcp.WithString("message_id", mcp.Required(), mcp.Description("Gmail message id")),
				mcp.WithString("format", mcp.Description("Response format"), mcp.Enum("full", "metadata", "minimal")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("message_id")
				if err != nil {
					return nil, err
				}
				return get("/users/me/messages/"+seg(id), params("format", a.StringOr("format", "full"))), nil
			},
		),
		textTool(Gmail, on(http.MethodPost, "/send"),
			mcp.NewTool("gmail_send",
				mcp.WithDescription("Send a plain-text email from the agency mailbox"),
				mcp.WithString("to", mcp.Required(), mcp.Description("Comma-separated recipients")),
				mcp.WithString("subject", mcp.Required()),
				mcp.WithString("body", mcp.Required(), mcp.Description("Plain-text body")),
				mcp.WithString("cc", mcp.Description("Comma-separated CC recipients")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				raw, err := rfc822(a)
				if err != nil {
					return nil, err
				}
				return post("/users/me/messages/send", map[string]string{
					"raw": base64.URLEncoding.EncodeToString(raw),
				}), nil
			},
		),
	}
}

func rfc822(a domain.Args) ([]byte, error) {
	to, err := a.Required("to")
	if err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddressList(to); err != nil {
		return nil, &domain.ErrValidation{Field: "to", Message: err.Error()}
	}
	subject, err := a.Required("subject")
	if err != nil {
		return nil, err
	}
	body := a.String("body")

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if cc := a.String("cc"); cc != "" {
		if _, err := mail.ParseAddressList(cc); err != nil {
			return nil, &domain.ErrValidation{Field: "cc", Message: err.Error()}
		}
		fmt.Fprintf(&b, "Cc: %s\r\n", cc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String()), nil
}

// ============================================================
// Calendar
// ============================================================

func calendarTools() []domain.Tool {
	return []domain.Tool{
		textTool(Calendar, on(http.MethodGet, "/events"),
			mcp.NewTool("calendar_list_events",
				mcp.WithDescription("List upcoming events, expanded and ordered by start time"),
				mcp.WithString("calendar_id", mcp.Description("Calendar id, defaults to primary")),
				mcp.WithString("time_min", mcp.Description("RFC 3339 lower bound, defaults to now")),
				mcp.WithString("time_max", mcp.Description("RFC 3339 upper bound")),
				mcp.WithString("query", mcp.Description("Free-text filter")),
				mcp.WithNumber("max_results", mcp.Min(1), mcp.Max(250)),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				timeMin := a.String("time_min")
				if timeMin == "" {
					timeMin = time.Now().UTC().Format(time.RFC3339)
				} else if err := rfc3339("time_min", timeMin); err != nil {
					return nil, err
				}
				if tm := a.String("time_max"); tm != "" {
					if err := rfc3339("time_max", tm); err != nil {
						return nil, err
					}
				}
				return get("/calendars/"+seg(a.StringOr("calendar_id", "primary"))+"/events", params(
					"timeMin", timeMin,
					"timeMax", a.String("time_max"),
					"q", a.String("query"),
					"maxResults", itoa(a.Int("max_results", 25)),
					"singleEvents", "true",
					"orderBy", "startTime",
				)), nil
			},
		),
		textTool(Calendar, on(http.MethodPost, "/events"),
			mcp.NewTool("calendar_create_event",
				mcp.WithDescription("Create a calendar event"),
				mcp.WithString("summary", mcp.Required(), mcp.Description("Event title")),
				mcp.WithString("start", mcp.Required(), mcp.Description("RFC 3339 start time")),
				mcp.WithString("end", mcp.Required(), mcp.Description("RFC 3339 end time")),
				mcp.WithString("description"),
				mcp.WithString("attendees", mcp.Description("Comma-separated attendee emails")),
				mcp.WithString("calendar_id", mcp.Description("Calendar id, defaults to primary")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				summary, err := a.Required("summary")
				if err != nil {
					return nil, err
				}
				start, err := a.Required("start")
				if err != nil {
					return nil, err
				}
				end, err := a.Required("end")
				if err != nil {
					return nil, err
				}
				if err := rfc3339("start", start); err != nil {
					return nil, err
				}
				if err := rfc3339("end", end); err != nil {
					return nil, err
				}

				event := map[string]any{
					"summary": summary,
					"start":   map[string]string{"dateTime": start},
					"end":     map[string]string{"dateTime": end},
				}
				if d := a.String("description"); d != "" {
					event["description"] = d
				}
				if list := a.String("attendees"); list != "" {
					var attendees []map[string]string
					for _, email := range strings.Split(list, ",") {
						if email = strings.TrimSpace(email); email != "" {
							attendees = append(attendees, map[string]string{"email": email})
						}
					}
					event["attendees"] = attendees
				}
				return post("/calendars/"+seg(a.StringOr("calendar_id", "primary"))+"/events", event), nil
			},
		),
	}
}

func rfc3339(field, v string) error {
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return &domain.ErrValidation{Field: field, Message: "must be an RFC 3339 timestamp"}
	}
	return nil
}

// ============================================================
// Drive
// ============================================================

const driveFileFields = "id,name,mimeType,modifiedTime,size,webViewLink,owners(displayName,emailAddress)"

func driveTools() []domain.Tool {
	return []domain.Tool{
		textTool(Drive, on(http.MethodGet, "/files"),
			mcp.NewTool("drive_search",
				mcp.WithDescription("Search files with Drive query syntax"),
				mcp.WithString("query", mcp.Description("Drive query, e.g. name contains 'proposal'")),
				mcp.WithNumber("max_results", mcp.Min(1), mcp.Max(1000)),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				return get("/files", params(
					"q", a.String("query"),
					"pageSize", itoa(a.Int("max_results", 25)),
					"fields", "files("+driveFileFields+")",
				)), nil
			},
		),
		textTool(Drive, on(http.MethodGet, "/files/{file_id}"),
			mcp.NewTool("drive_get",
				mcp.WithDescription("Get file metadata"),
				mcp.WithString("file_id", mcp.Required()),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("file_id")
				if err != nil {
					return nil, err
				}
				return get("/files/"+seg(id), params("fields", driveFileFields)), nil
			},
		),
		binaryTool(Drive, domain.OutputResource, "application/pdf", on(http.MethodGet, "/files/{file_id}/export"),
			mcp.NewTool("drive_export",
				mcp.WithDescription("Export a Google Workspace file, PDF by default"),
				mcp.WithString("file_id", mcp.Required()),
				mcp.WithString("mime_type", mcp.Description("Target MIME type, defaults to application/pdf")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("file_id")
				if err != nil {
					return nil, err
				}
				mimeType := a.StringOr("mime_type", "application/pdf")
				req := get("/files/"+seg(id)+"/export", params("mimeType", mimeType))
				req.Header = http.Header{"Accept": {mimeType}}
				return req, nil
			},
		),
	}
}

// ============================================================
// Sheets
// ============================================================

func sheetsTools() []domain.Tool {
	return []domain.Tool{
		textTool(Sheets, on(http.MethodGet, "/values"),
			mcp.NewTool("sheets_read",
				mcp.WithDescription("Read a range of cells"),
				mcp.WithString("spreadsheet_id", mcp.Required()),
				mcp.WithString("range", mcp.Required(), mcp.Description("A1 notation, e.g. Sheet1!A1:D20")),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("spreadsheet_id")
				if err != nil {
					return nil, err
				}
				rng, err := a.Required("range")
				if err != nil {
					return nil, err
				}
				return get("/spreadsheets/"+seg(id)+"/values/"+seg(rng), nil), nil
			},
		),
		textTool(Sheets, on(http.MethodPost, "/append"),
			mcp.NewTool("sheets_append",
				mcp.WithDescription("Append rows after the last row of a range"),
				mcp.WithString("spreadsheet_id", mcp.Required()),
				mcp.WithString("range", mcp.Required(), mcp.Description("A1 notation of the table")),
				mcp.WithArray("values", mcp.Required(),
					mcp.Description("Rows to append, each an array of cell values"),
					mcp.Items(map[string]any{"type": "array"}),
				),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("spreadsheet_id")
				if err != nil {
					return nil, err
				}
				rng, err := a.Required("range")
				if err != nil {
					return nil, err
				}
				rows, ok := a["values"].([]any)
				if !ok || len(rows) == 0 {
					return nil, &domain.ErrValidation{Field: "values", Message: "must be a non-empty array of rows"}
				}
				req := post("/spreadsheets/"+seg(id)+"/values/"+seg(rng)+":append", map[string]any{"values": rows})
				req.Query = params("valueInputOption", "USER_ENTERED", "insertDataOption", "INSERT_ROWS")
				return req, nil
			},
		),
	}
}

// ============================================================
// Docs
// ============================================================

func docsTools() []domain.Tool {
	return []domain.Tool{
		textTool(Docs, on(http.MethodGet, "/documents/{document_id}"),
			mcp.NewTool("docs_get",
				mcp.WithDescription("Get a document's structure and text"),
				mcp.WithString("document_id", mcp.Required()),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				id, err := a.Required("document_id")
				if err != nil {
					return nil, err
				}
				return get("/documents/"+seg(id), nil), nil
			},
		),
		textTool(Docs, on(http.MethodPost, "/documents"),
			mcp.NewTool("docs_create",
				mcp.WithDescription("Create an empty document"),
				mcp.WithString("title", mcp.Required()),
			),
			func(a domain.Args) (*domain.UpstreamRequest, error) {
				title, err := a.Required("title")
				if err != nil {
					return nil, err
				}
				return post("/documents", map[string]string{"title": title}), nil
			},
		),
	}
}
