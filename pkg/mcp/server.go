// Package mcp exposes the calculator, the narrative generator and the
// audit log as Model Context Protocol tools over newline-delimited
// JSON-RPC on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/calculator"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/narrative"
)

// maxLine bounds a single JSON-RPC message.
const maxLine = 1 << 20

// Calculator serves calculation requests.
type Calculator interface {
	Calculate(ctx context.Context, req models.CalculationRequest) (*calculator.Response, error)
}

// Explainer serves narrative requests.
type Explainer interface {
	Explain(ctx context.Context, req models.NarrativeRequest) (*narrative.Response, error)
}

// CacheStatter reports persistent cache counters.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// AuditReader queries the request audit log.
type AuditReader interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
	Stats(ctx context.Context) ([]models.AuditStat, error)
}

// Deps are the services exposed as tools. Any of them may be nil; the
// matching tools then report that the feature is not configured.
type Deps struct {
	Calculator Calculator
	Explainer  Explainer
	Cache      CacheStatter
	Auditor    AuditReader
}

// Server answers MCP requests one line at a time.
type Server struct {
	deps    Deps
	version string
	logger  *zap.Logger
}

// New creates a Server.
func New(deps Deps, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:    deps,
		version: version,
		logger:  logger.With(zap.String("component", "mcp")),
	}
}

type methodHandler func(s *Server, ctx context.Context, req *Request) *Response

var methods = map[string]methodHandler{
	"initialize": (*Server).initialize,
	"ping":       (*Server).ping,
	"tools/list": (*Server).listTools,
	"tools/call": (*Server).callTool,
}

// Run serves requests read from r until r is exhausted or ctx is done.
// Replies are written to w, one JSON document per line.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	enc := json.NewEncoder(w)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(enc, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.handle(ctx, &req); resp != nil {
			s.reply(enc, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion && !req.IsNotification() {
		return errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	h, ok := methods[req.Method]
	if req.IsNotification() {
		// notifications/initialized and friends; nothing to acknowledge
		if !ok {
			s.logger.Debug("notification", zap.String("method", req.Method))
		}
		return nil
	}
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "unknown method: "+req.Method)
	}
	return h(s, ctx, req)
}

func (s *Server) initialize(_ context.Context, req *Request) *Response {
	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
		Capabilities:    Capabilities{Tools: &struct{}{}},
		Instructions:    "Compute ACA premium tax credits for a household under current law and proposed reforms.",
	})
}

func (s *Server) ping(_ context.Context, req *Request) *Response {
	return resultResponse(req.ID, struct{}{})
}

func (s *Server) listTools(_ context.Context, req *Request) *Response {
	return resultResponse(req.ID, ToolsListResult{Tools: allTools})
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult("unknown tool: "+params.Name))
	}

	start := time.Now()
	result := handler(ctx, s, params.Arguments)
	s.logger.Info("tool call",
		zap.String("tool", params.Name),
		zap.Bool("error", result.IsError),
		zap.Duration("duration", time.Since(start)))
	return resultResponse(req.ID, result)
}

func (s *Server) reply(enc *json.Encoder, resp *Response) {
	if err := enc.Encode(resp); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
