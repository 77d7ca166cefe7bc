package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxRESTBody bounds a REST fallback request body.
const maxRESTBody = 10 << 20

// restToolHandler exposes one tool as a plain HTTP route. Arguments come from
// the query string, then the JSON body, then path parameters; later sources win.
func restToolHandler(tool domain.Tool, dispatcher *service.Dispatcher) http.HandlerFunc {
	props := tool.Definition.InputSchema.Properties

	return func(w http.ResponseWriter, r *http.Request) {
		args := make(map[string]any)

		for key, values := range r.URL.Query() {
			if len(values) == 0 {
				continue
			}
			args[key] = coerceQuery(props[key], values)
		}

		if r.Body != nil && r.ContentLength != 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRESTBody))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			if len(strings.TrimSpace(string(body))) > 0 {
				var fromBody map[string]any
				if err := json.Unmarshal(body, &fromBody); err != nil {
					writeError(w, http.StatusBadRequest, "Invalid JSON body")
					return
				}
				for k, v := range fromBody {
					args[k] = v
				}
			}
		}

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if _, ok := props[key]; ok {
					args[key] = rctx.URLParams.Values[i]
				}
			}
		}

		writeToolResult(w, dispatcher.Execute(r.Context(), tool.Name(), args))
	}
}

// coerceQuery converts query values to the JSON type the schema declares, so
// ?max_results=5 validates as a number. Values that do not parse are passed
// through as strings and rejected by validation.
func coerceQuery(prop any, values []string) any {
	var typ string
	if m, ok := prop.(map[string]any); ok {
		typ, _ = m["type"].(string)
	}
	raw := values[0]

	switch typ {
	case "number", "integer":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case "array":
		out := make([]any, 0, len(values))
		for _, v := range values {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
		return out
	case "object":
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return obj
		}
	}
	return raw
}

// writeToolResult renders a tool result as a plain HTTP response.
func writeToolResult(w http.ResponseWriter, res *mcp.CallToolResult) {
	if serr, ok := service.ParseErrorResult(res); ok {
		writeJSON(w, statusForCode(serr.Code), serr)
		return
	}
	if len(res.Content) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		ct := "text/plain; charset=utf-8"
		if json.Valid([]byte(c.Text)) {
			ct = "application/json"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, c.Text)
	case mcp.ImageContent:
		writeBlob(w, c.MIMEType, c.Data)
	case mcp.EmbeddedResource:
		blob, ok := c.Resource.(mcp.BlobResourceContents)
		if !ok {
			writeError(w, http.StatusBadGateway, "Unsupported resource content")
			return
		}
		writeBlob(w, blob.MIMEType, blob.Blob)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func writeBlob(w http.ResponseWriter, mimeType, data string) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Invalid binary content")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// unknownEndpointHandler answers any unmatched path under a service prefix.
func unknownEndpointHandler(svc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "Unknown " + svc + " endpoint",
			Path:  r.URL.Path,
		})
	}
}
