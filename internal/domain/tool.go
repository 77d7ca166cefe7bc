package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// OutputKind declares how a tool's upstream body is shaped into a result.
type OutputKind string

const (
	OutputText     OutputKind = "text"
	OutputImage    OutputKind = "image"
	OutputResource OutputKind = "resource"
)

// RequestBuilder maps validated tool arguments to a normalized upstream request.
type RequestBuilder func(args Args) (*UpstreamRequest, error)

// RESTRoute is the fallback HTTP route of a tool, relative to its service prefix.
type RESTRoute struct {
	Method string
	Path   string
}

// Tool binds a tool definition to the upstream call that implements it.
type Tool struct {
	Definition mcp.Tool
	Service    string
	Output     OutputKind
	// MIMEType is used for image and resource outputs when the upstream omits Content-Type.
	MIMEType string
	Build    RequestBuilder
	Route    RESTRoute
}

// Name returns the tool name.
func (t Tool) Name() string { return t.Definition.Name }

// Args are the arguments of a tools/call request.
type Args map[string]any

// String returns the string argument key, or "" when absent.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// StringOr returns the string argument key, or def when absent or empty.
func (a Args) StringOr(key, def string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return def
}

// Required returns the string argument key or an ErrValidation.
func (a Args) Required(key string) (string, error) {
	s := strings.TrimSpace(a.String(key))
	if s == "" {
		return "", &ErrValidation{Field: key, Message: "is required"}
	}
	return s, nil
}

// Int returns the numeric argument key, or def when absent.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Has reports whether key was supplied.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}
