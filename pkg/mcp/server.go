// Package mcp exposes the generators as Model Context Protocol tools over
// stdio, one JSON-RPC 2.0 message per line.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/sa-platform/sa/pkg/app"
)

const maxLine = 1 << 20

const instructions = "Generates images, speech and video. Prompts are checked before any " +
	"provider is called; use sa_validate to see the issues without generating."

// Server is a stdio MCP server backed by one set of generators.
type Server struct {
	svc     *app.Services
	version string
	files   string
	logger  *slog.Logger
}

// New creates a Server. Files produced by tools that need a local output
// path are written under <output_dir>/mcp.
func New(svc *app.Services, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:     svc,
		version: version,
		files:   filepath.Join(svc.Config.OutputDir, "mcp"),
		logger:  logger.With("component", "mcp"),
	}
}

// Run reads requests from r line by line and writes responses to w. It
// returns when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

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
			s.write(w, Response{
				JSONRPC: jsonrpcVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "sa", Version: s.version},
			Capabilities:    Capabilities{Tools: &struct{}{}},
			Instructions:    instructions,
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req, map[string]any{})
	case "tools/list":
		return result(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.call(ctx, req)
	default:
		if req.IsNotification() {
			return nil
		}
		return rpcError(req, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) call(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req, CodeInvalidParams, "invalid params")
	}
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req, errorResult("unknown tool: "+params.Name))
	}
	s.logger.Debug("tool call", "tool", params.Name)
	return result(req, handler(ctx, s, params.Arguments))
}

func result(req *Request, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: v}
}

func rpcError(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "err", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "err", err)
	}
}
