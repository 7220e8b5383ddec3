package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/metrics"
	"github.com/ggonzalez94/bera-mcp/internal/policy"
	"github.com/ggonzalez94/bera-mcp/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

type Config struct {
	Name    string
	Version string
	// EnableTools limits registration; empty registers every tool.
	EnableTools []string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Server exposes the service as MCP tools. Tool failures are rendered as
// error payloads; only transport failures surface as Go errors.
type Server struct {
	svc      *service.Service
	mcp      *server.MCPServer
	log      *zap.Logger
	metrics  *metrics.Metrics
	handlers map[string]server.ToolHandlerFunc
	tools    []mcp.Tool
}

func New(svc *service.Service, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:      svc,
		mcp:      server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(false), server.WithRecovery()),
		log:      log,
		metrics:  cfg.Metrics,
		handlers: map[string]server.ToolHandlerFunc{},
	}
	for _, def := range s.definitions() {
		if !policy.ToolEnabled(cfg.EnableTools, def.tool.Name) {
			log.Debug("tool disabled by allowlist", zap.String("tool", def.tool.Name))
			continue
		}
		h := s.wrap(def)
		s.handlers[def.tool.Name] = h
		s.tools = append(s.tools, def.tool)
		s.mcp.AddTool(def.tool, h)
	}
	return s
}

// Tools lists the registered tool names, sorted.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the registered tool definitions.
func (s *Server) Definitions() []mcp.Tool {
	return append([]mcp.Tool(nil), s.tools...)
}

// Call invokes a registered tool in-process.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("unknown tool %q", name))
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

// ServeStdio speaks MCP over the given streams until ctx is done or the
// input closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log.Named("stdio")))
	s.log.Info("mcp server listening on stdio", zap.Int("tools", len(s.handlers)))
	return stdio.Listen(ctx, in, out)
}

type toolDef struct {
	tool mcp.Tool
	// failure names what was attempted, for "Failed to <failure>: <cause>".
	failure func(req mcp.CallToolRequest) string
	// echo lists the input parameters repeated in a failure payload.
	echo []string
	run  func(ctx context.Context, req mcp.CallToolRequest) (any, error)
}

func fixed(verb string) func(mcp.CallToolRequest) string {
	return func(mcp.CallToolRequest) string { return verb }
}

func (s *Server) wrap(def toolDef) server.ToolHandlerFunc {
	name := def.tool.Name
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		data, err := def.run(ctx, req)
		s.metrics.ObserveTool(name, err, time.Since(start))
		if err != nil {
			s.log.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			return s.failure(def, req, err), nil
		}
		return textResult(data)
	}
}

func textResult(data any) (*mcp.CallToolResult, error) {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error serializing result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(buf)), nil
}

func (s *Server) failure(def toolDef, req mcp.CallToolRequest, err error) *mcp.CallToolResult {
	payload := map[string]any{
		"status":    "error",
		"message":   fmt.Sprintf("Failed to %s: %s", def.failure(req), err.Error()),
		"errorType": clierr.TypeOf(err),
	}
	if cErr, ok := clierr.As(err); ok && len(cErr.Details) > 0 {
		payload["details"] = cErr.Details
	}
	args := req.GetArguments()
	for _, key := range def.echo {
		if v, ok := args[key]; ok {
			payload[echoKey(def.tool.Name, key)] = v
		}
	}
	buf, mErr := json.MarshalIndent(payload, "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(buf))
}

// echoKey renames inputs whose echoed name differs from the parameter.
func echoKey(tool, key string) string {
	if tool == "getBlockInfo" && key == "blockHash" {
		return "requestedBlockHash"
	}
	return key
}

func required(req mcp.CallToolRequest, key string) (string, error) {
	v, err := req.RequireString(key)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("missing required parameter %q", key))
	}
	return strings.TrimSpace(v), nil
}

func optionalInt64(req mcp.CallToolRequest, key string) (*int64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var v int64
	switch n := raw.(type) {
	case float64:
		if n != float64(int64(n)) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be an integer", key))
		}
		v = int64(n)
	case int:
		v = int64(n)
	case int64:
		v = n
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("%s must be an integer", key), err)
		}
		v = parsed
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a number", key))
	}
	return &v, nil
}
