// Package mcp exposes an engine over the Model Context Protocol.
//
// Every exported tool becomes an MCP tool with its own JSON schema. Every
// exported agent becomes an MCP tool named agent_<name> taking a prompt and
// an optional user label. Failures are reported as error results so MCP
// clients can show them to the model instead of aborting the session.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/ctxutil"
	"github.com/hupe1980/agentcore/internal/ratelimit"
	"github.com/hupe1980/agentcore/internal/sentryutil"
	"github.com/hupe1980/agentcore/logging"
)

// AgentToolPrefix prefixes the MCP tool names of exported agents.
const AgentToolPrefix = "agent_"

// Options configure a Server.
type Options struct {
	Name    string
	Version string
	Logger  logging.Logger

	// RateLimit is the sustained tool calls per second per caller. Zero
	// disables limiting.
	RateLimit float64
	RateBurst int

	Reporter *sentryutil.Reporter
}

// Server wraps the MCP server around a core.Runtime.
type Server struct {
	mcpServer *mcpserver.MCPServer
	rt        core.Runtime
	logger    logging.Logger
	limiter   *ratelimit.Limiter
	reporter  *sentryutil.Reporter

	tools    []mcplib.Tool
	handlers map[string]mcpserver.ToolHandlerFunc
}

// New creates an MCP server exposing the runtime's exported units.
func New(rt core.Runtime, optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Name:    "agentcore",
		Version: "0.1.0",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		rt:       rt,
		logger:   opts.Logger,
		limiter:  ratelimit.New(opts.RateLimit, opts.RateBurst),
		reporter: opts.Reporter,
		handlers: make(map[string]mcpserver.ToolHandlerFunc),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		opts.Name,
		opts.Version,
		mcpserver.WithToolCapabilities(false),
	)

	if err := s.registerTools(); err != nil {
		return nil, err
	}

	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Tools returns the registered tool descriptions.
func (s *Server) Tools() []mcplib.Tool { return s.tools }

// Handler returns the wrapped handler of a registered tool.
func (s *Server) Handler(name string) (mcpserver.ToolHandlerFunc, bool) {
	h, ok := s.handlers[name]
	return h, ok
}

// HTTPHandler returns the streamable HTTP transport. The caller principal is
// taken from the IC-TEE-Caller header.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return ctxutil.WithCaller(ctx, ctxutil.CallerFromRequest(r))
		}),
	)
}

// Close releases the rate limiter.
func (s *Server) Close() error { return s.limiter.Close() }

func (s *Server) registerTools() error {
	wrap := chain(s.recovery, s.logging, s.rateLimit)

	for _, def := range s.rt.ToolDefinitions(nil) {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return fmt.Errorf("mcp: encode schema of tool %s: %w", def.Name, err)
		}

		s.add(mcplib.NewToolWithRawSchema(def.Name, def.Description, schema), wrap(s.handleTool(def.Name)))
	}

	for _, def := range s.rt.AgentDefinitions(nil) {
		tool := mcplib.NewTool(AgentToolPrefix+def.Name,
			mcplib.WithDescription(def.Description),
			mcplib.WithString("prompt", mcplib.Description("Prompt for the agent"), mcplib.Required()),
			mcplib.WithString("user", mcplib.Description("Optional label of the end user the agent acts for")),
		)

		s.add(tool, wrap(s.handleAgent(def.Name)))
	}

	return nil
}

func (s *Server) add(tool mcplib.Tool, h mcpserver.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
	s.handlers[tool.Name] = h
	s.mcpServer.AddTool(tool, h)
}

func (s *Server) handleTool(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := s.rt.ToolCall(ctx, name, string(args), ctxutil.CallerFromContext(ctx), "")
		if err != nil {
			return errorResult(err.Error()), nil
		}

		return mcplib.NewToolResultText(res.Output), nil
	}
}

func (s *Server) handleAgent(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		prompt := request.GetString("prompt", "")
		if prompt == "" {
			return errorResult("prompt is required"), nil
		}

		out, err := s.rt.AgentRun(ctx, name, prompt, nil, ctxutil.CallerFromContext(ctx), request.GetString("user", ""))
		if err != nil {
			return errorResult(err.Error()), nil
		}

		if out.FailedReason != "" {
			return errorResult(out.FailedReason), nil
		}

		return mcplib.NewToolResultText(out.Content), nil
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// middleware wraps a tool handler.
type middleware func(mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc

// chain applies middlewares so that the first one runs outermost.
func chain(mws ...middleware) middleware {
	return func(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func (s *Server) logging(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		start := time.Now()
		caller := ctxutil.CallerFromContext(ctx).String()

		s.logger.Debug("mcp.tool.start", "tool", request.Params.Name, "caller", caller)

		result, err := next(ctx, request)

		args := []any{"tool", request.Params.Name, "caller", caller, "duration_ms", time.Since(start).Milliseconds()}
		switch {
		case err != nil:
			s.logger.Error("mcp.tool.error", append(args, "error", err.Error())...)
			s.reporter.CaptureError(err, map[string]string{"tool": request.Params.Name, "caller": caller}, nil)
		case result != nil && result.IsError:
			s.logger.Warn("mcp.tool.failed", args...)
		default:
			s.logger.Info("mcp.tool.success", args...)
		}

		return result, err
	}
}

func (s *Server) rateLimit(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		caller := ctxutil.CallerFromContext(ctx).String()

		if !s.limiter.Allow(caller) {
			s.reporter.CaptureMessage("Rate limit exceeded", sentry.LevelWarning, map[string]string{
				"caller": caller,
				"tool":   request.Params.Name,
			})

			return errorResult(fmt.Sprintf("rate limit exceeded for caller %s", caller)), nil
		}

		return next(ctx, request)
	}
}

func (s *Server) recovery(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (result *mcplib.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("mcp.tool.panic", "tool", request.Params.Name, "panic", fmt.Sprint(r))
				s.reporter.CaptureError(fmt.Errorf("panic in tool %s: %v", request.Params.Name, r), map[string]string{
					"tool": request.Params.Name,
				}, nil)

				result, err = errorResult(fmt.Sprintf("internal error while executing tool %s", request.Params.Name)), nil
			}
		}()

		return next(ctx, request)
	}
}
