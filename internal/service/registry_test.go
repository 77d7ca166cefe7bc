package service_test

import (
	"testing"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/service"
	"github.com/boddenberg/agency-tool-gateway/internal/tools"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTool(name, service string) domain.Tool {
	return domain.Tool{
		Definition: mcp.NewTool(name, mcp.WithDescription("test tool")),
		Service:    service,
		Output:     domain.OutputText,
		Build: func(domain.Args) (*domain.UpstreamRequest, error) {
			return &domain.UpstreamRequest{Method: "GET", Path: "/"}, nil
		},
	}
}

func TestToolRegistry_Catalog(t *testing.T) {
	reg, err := service.NewToolRegistry(tools.All())
	require.NoError(t, err)

	list := reg.List()
	require.Equal(t, len(tools.All()), len(list))
	assert.Equal(t, reg.Len(), len(list))
	assert.Equal(t, tools.All()[0].Name(), list[0].Name)

	for _, def := range list {
		assert.True(t, reg.Has(def.Name))
		tool, ok := reg.Lookup(def.Name)
		require.True(t, ok)
		assert.Equal(t, def.Name, tool.Name())
	}
	assert.False(t, reg.Has("does_not_exist"))
	assert.ElementsMatch(t, tools.Services(), reg.Services())
}

func TestToolRegistry_RejectsDuplicates(t *testing.T) {
	_, err := service.NewToolRegistry([]domain.Tool{stubTool("x_a", "x"), stubTool("x_a", "x")})
	assert.ErrorContains(t, err, "duplicate")
}

func TestToolRegistry_RejectsNonObjectSchema(t *testing.T) {
	tool := stubTool("x_a", "x")
	tool.Definition.InputSchema.Type = "string"

	_, err := service.NewToolRegistry([]domain.Tool{tool})
	assert.ErrorContains(t, err, "object")
}

func TestToolRegistry_RejectsMismatchedServicePrefix(t *testing.T) {
	_, err := service.NewToolRegistry([]domain.Tool{stubTool("gmail_search", "drive")})
	assert.Error(t, err)
}

func TestToolRegistry_RejectsMissingBuilder(t *testing.T) {
	tool := stubTool("x_a", "x")
	tool.Build = nil

	_, err := service.NewToolRegistry([]domain.Tool{tool})
	assert.Error(t, err)
}

func TestToolRegistry_ListIsACopy(t *testing.T) {
	reg, err := service.NewToolRegistry([]domain.Tool{stubTool("x_a", "x")})
	require.NoError(t, err)

	reg.List()[0].Name = "mutated"
	assert.True(t, reg.Has("x_a"))
	assert.Equal(t, "x_a", reg.List()[0].Name)
}
