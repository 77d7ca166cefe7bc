package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/agency-tool-gateway/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxRPCBody bounds a JSON-RPC request body.
const maxRPCBody = 10 << 20

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the caller expects no response. Requests
// without an id still get one, with a null id.
func (r *rpcRequest) isNotification() bool {
	return strings.HasPrefix(r.Method, "notifications/")
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func mcpHandler(opts Options, registry *service.ToolRegistry, dispatcher *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	rpc := &rpcServer{opts: opts, registry: registry, dispatcher: dispatcher, logger: logger.Named("rpc")}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, rpcFailure(nil, rpcParseError, "Parse error: "+err.Error()))
			return
		}
		body = bytes.TrimSpace(body)

		// Batch
		if len(body) > 0 && body[0] == '[' {
			var batch []json.RawMessage
			if err := json.Unmarshal(body, &batch); err != nil {
				writeJSON(w, http.StatusBadRequest, rpcFailure(nil, rpcParseError, "Parse error: "+err.Error()))
				return
			}
			if len(batch) == 0 {
				writeJSON(w, http.StatusBadRequest, rpcFailure(nil, rpcInvalidRequest, "Invalid Request: empty batch"))
				return
			}
			var out []*rpcResponse
			for _, raw := range batch {
				if resp := rpc.handleRaw(r, raw); resp != nil {
					out = append(out, resp)
				}
			}
			if len(out) == 0 {
				w.WriteHeader(http.StatusAccepted)
				return
			}
			writeJSON(w, http.StatusOK, out)
			return
		}

		resp := rpc.handleRaw(r, body)
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		status := http.StatusOK
		if resp.Error != nil && resp.Error.Code == rpcParseError {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, resp)
	}
}

type rpcServer struct {
	opts       Options
	registry   *service.ToolRegistry
	dispatcher *service.Dispatcher
	logger     *zap.Logger
}

// handleRaw answers one message; nil means no response is owed.
func (s *rpcServer) handleRaw(r *http.Request, raw json.RawMessage) *rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return rpcFailure(nil, rpcParseError, "Parse error: "+err.Error())
	}
	if req.Method == "" {
		return rpcFailure(req.ID, rpcInvalidRequest, "Invalid Request: missing method")
	}
	if req.isNotification() {
		s.logger.Debug("notification", zap.String("method", req.Method))
		return nil
	}

	ctx, span := tracer.Start(r.Context(), "rpc "+req.Method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	switch req.Method {
	case "initialize":
		return rpcSuccess(req.ID, map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      mcp.Implementation{Name: s.opts.Name, Version: s.opts.Version},
		})
	case "ping":
		return rpcSuccess(req.ID, map[string]any{})
	case "tools/list":
		return rpcSuccess(req.ID, map[string]any{"tools": s.registry.List()})
	case "tools/call":
		var params callParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return rpcFailure(req.ID, rpcInvalidParams, "Invalid params: "+err.Error())
			}
		}
		if params.Name == "" {
			return rpcFailure(req.ID, rpcInvalidParams, "Invalid params: missing tool name")
		}
		span.SetAttributes(attribute.String("tool.name", params.Name))
		return rpcSuccess(req.ID, s.dispatcher.Execute(ctx, params.Name, params.Arguments))
	default:
		return rpcFailure(req.ID, rpcMethodNotFound, "Method not found: "+req.Method)
	}
}

func rpcSuccess(id json.RawMessage, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFailure(id json.RawMessage, code int, msg string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}
