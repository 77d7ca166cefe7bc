package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"
	"github.com/boddenberg/agency-tool-gateway/internal/port"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/gateway")

// Dispatcher routes a tool call to its upstream and shapes the outcome.
// It is the only place where errors become StructuredErrors.
type Dispatcher struct {
	registry    *ToolRegistry
	adapters    map[string]port.ServiceAdapter
	credentials port.CredentialProvider
	classifier  *ErrorClassifier
	validators  map[string]*gojsonschema.Schema
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewDispatcher wires the lookup table. Every tool must resolve to an adapter,
// so a catalog entry can never fall through to NOT_FOUND at call time.
func NewDispatcher(
	registry *ToolRegistry,
	adapters map[string]port.ServiceAdapter,
	credentials port.CredentialProvider,
	classifier *ErrorClassifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Dispatcher, error) {
	d := &Dispatcher{
		registry:    registry,
		adapters:    adapters,
		credentials: credentials,
		classifier:  classifier,
		validators:  make(map[string]*gojsonschema.Schema, registry.Len()),
		metrics:     metrics,
		logger:      logger.Named("dispatcher"),
	}
	for _, t := range registry.Tools() {
		if _, ok := adapters[t.Service]; !ok {
			return nil, fmt.Errorf("tool %q: no adapter for service %q", t.Name(), t.Service)
		}
		raw, err := json.Marshal(t.Definition.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: marshal input schema: %w", t.Name(), err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %q: compile input schema: %w", t.Name(), err)
		}
		d.validators[t.Name()] = schema
	}
	return d, nil
}

const unknownLabel = "unknown"

// Execute runs one tool call. It never returns nil and never panics: every
// failure is folded into an isError result carrying a StructuredError.
//
// The upstream call is detached from ctx cancellation, so a caller that goes
// away does not abort a call already in flight.
func (d *Dispatcher) Execute(ctx context.Context, toolName string, args map[string]any) *mcp.CallToolResult {
	callID := uuid.NewString()
	start := time.Now()

	ctx, span := tracer.Start(context.WithoutCancel(ctx), "Dispatcher.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", callID),
	)

	// Caller-supplied names never become metric labels.
	metricTool, service := unknownLabel, unknownLabel
	if t, ok := d.registry.Lookup(toolName); ok {
		metricTool, service = toolName, t.Service
	}

	result, serr := d.safeExecute(ctx, callID, toolName, args)
	elapsed := time.Since(start)

	outcome := "ok"
	if serr != nil {
		outcome = string(serr.Code)
		result = ErrorResult(serr)
		d.metrics.IncrUpstreamError(service, string(serr.Code))
		span.SetStatus(codes.Error, serr.Message)
		span.SetAttributes(attribute.String("tool.error_code", string(serr.Code)))
		d.logger.Warn("tool call failed",
			zap.String("call_id", callID),
			zap.String("tool", toolName),
			zap.String("code", string(serr.Code)),
			zap.String("message", serr.Message),
			zap.Duration("duration", elapsed),
		)
	} else {
		d.logger.Info("tool call",
			zap.String("call_id", callID),
			zap.String("tool", toolName),
			zap.Duration("duration", elapsed),
		)
	}
	d.metrics.RecordToolCall(metricTool, service, outcome, elapsed)
	return result
}

func (d *Dispatcher) safeExecute(ctx context.Context, callID, toolName string, args map[string]any) (result *mcp.CallToolResult, serr *domain.StructuredError) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered panic in tool call",
				zap.String("call_id", callID),
				zap.String("tool", toolName),
				zap.Any("panic", r),
			)
			result = nil
			serr = domain.NewStructuredError(domain.CodeNetworkError, ServiceOf(toolName), fmt.Sprintf("panic: %v", r), "")
		}
	}()
	return d.execute(ctx, callID, toolName, args)
}

func (d *Dispatcher) execute(ctx context.Context, callID, toolName string, args map[string]any) (*mcp.CallToolResult, *domain.StructuredError) {
	tool, ok := d.registry.Lookup(toolName)
	if !ok {
		return nil, domain.NewStructuredError(domain.CodeNotFound, ServiceOf(toolName),
			"Unknown tool: "+toolName, "call tools/list for the available tools")
	}
	service := tool.Service

	if args == nil {
		args = map[string]any{}
	}
	if err := d.validate(toolName, args); err != nil {
		return nil, d.classifier.FromError(service, err)
	}

	req, err := tool.Build(domain.Args(args))
	if err != nil {
		return nil, d.classifier.FromError(service, asValidation(err))
	}

	adapter := d.adapters[service]
	if err := adapter.Configured(); err != nil {
		return nil, d.classifier.FromError(service, err)
	}

	// The token is resolved before the adapter is called, never concurrently.
	if identity := adapter.Identity(); identity != "" {
		token, err := d.credentials.Get(ctx, identity)
		if err != nil {
			return nil, d.classifier.FromError(service, err)
		}
		req.Token = token
	}

	resp, err := adapter.Call(ctx, req)
	if err != nil {
		return nil, d.classifier.FromError(service, err)
	}
	if serr := d.classifier.Classify(toolName, resp); serr != nil {
		return nil, serr
	}
	return shape(tool, callID, resp)
}

func (d *Dispatcher) validate(toolName string, args map[string]any) error {
	schema, ok := d.validators[toolName]
	if !ok {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &domain.ErrValidation{Field: "arguments", Message: err.Error()}
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &domain.ErrValidation{Field: "arguments", Message: strings.Join(msgs, "; ")}
}

func asValidation(err error) error {
	if _, ok := err.(*domain.ErrValidation); ok {
		return err
	}
	return &domain.ErrValidation{Field: "arguments", Message: err.Error()}
}

// ErrorResult wraps a StructuredError into the isError envelope.
func ErrorResult(serr *domain.StructuredError) *mcp.CallToolResult {
	raw, err := json.Marshal(serr)
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"code":%q,"message":%q}`, domain.CodeUnknown, serr.Message))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(raw))},
		IsError: true,
	}
}

// ParseErrorResult extracts the StructuredError from an isError result, if any.
func ParseErrorResult(res *mcp.CallToolResult) (*domain.StructuredError, bool) {
	if res == nil || !res.IsError || len(res.Content) == 0 {
		return nil, false
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		return nil, false
	}
	var serr domain.StructuredError
	if err := json.Unmarshal([]byte(text.Text), &serr); err != nil {
		return nil, false
	}
	return &serr, true
}

func shape(tool domain.Tool, callID string, resp *domain.UpstreamResponse) (*mcp.CallToolResult, *domain.StructuredError) {
	switch tool.Output {
	case domain.OutputImage, domain.OutputResource:
		if len(resp.Body) == 0 {
			return nil, domain.NewStructuredError(domain.CodeUnknown, tool.Service,
				fmt.Sprintf("%s returned an empty body", tool.Service), "")
		}
		mimeType := contentType(resp, tool.MIMEType)
		data := base64.StdEncoding.EncodeToString(resp.Body)
		if tool.Output == domain.OutputImage {
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewImageContent(data, mimeType)}}, nil
		}
		res := mcp.NewEmbeddedResource(mcp.BlobResourceContents{
			URI:      fmt.Sprintf("gateway://%s/%s", tool.Name(), callID),
			MIMEType: mimeType,
			Blob:     data,
		})
		return &mcp.CallToolResult{Content: []mcp.Content{res}}, nil
	default:
		text := string(resp.Body)
		if text == "" {
			text = fmt.Sprintf(`{"status":%d}`, resp.Status)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
	}
}

// contentType prefers the upstream's declared media type unless it is generic.
func contentType(resp *domain.UpstreamResponse, fallback string) string {
	if resp.Header != nil {
		if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil &&
			mt != "" && mt != "application/octet-stream" && mt != "application/json" {
			return mt
		}
	}
	if fallback == "" {
		return "application/octet-stream"
	}
	return fallback
}
