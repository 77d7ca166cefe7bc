package service

import (
	"fmt"
	"strings"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolRegistry is the static catalog advertised through tools/list.
// It is read-only after construction.
type ToolRegistry struct {
	tools []domain.Tool
	index map[string]int
}

// NewToolRegistry validates and indexes tools, preserving their order.
func NewToolRegistry(tools []domain.Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make([]domain.Tool, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		name := t.Name()
		switch {
		case name == "":
			return nil, fmt.Errorf("tool with empty name for service %q", t.Service)
		case t.Service == "":
			return nil, fmt.Errorf("tool %q has no service", name)
		case !strings.HasPrefix(name, t.Service+"_"):
			return nil, fmt.Errorf("tool %q must be prefixed with its service %q", name, t.Service)
		case t.Build == nil:
			return nil, fmt.Errorf("tool %q has no request builder", name)
		case t.Definition.InputSchema.Type != "object":
			return nil, fmt.Errorf("tool %q input schema must be an object", name)
		}
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.index[name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// List returns every tool definition in catalog order.
func (r *ToolRegistry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Definition
	}
	return out
}

// Has reports whether name is a registered tool.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Lookup returns the binding for name.
func (r *ToolRegistry) Lookup(name string) (domain.Tool, bool) {
	i, ok := r.index[name]
	if !ok {
		return domain.Tool{}, false
	}
	return r.tools[i], true
}

// Tools returns the bindings in catalog order.
func (r *ToolRegistry) Tools() []domain.Tool {
	return append([]domain.Tool(nil), r.tools...)
}

// Len is the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }

// Services returns the distinct services in first-seen order.
func (r *ToolRegistry) Services() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range r.tools {
		if !seen[t.Service] {
			seen[t.Service] = true
			out = append(out, t.Service)
		}
	}
	return out
}
