// Package server implements the HTTP boundary of an engine.
//
// Routes:
//
//	GET  /healthz                     liveness
//	GET  /.well-known/information     engine information (?detail=true adds definitions)
//	POST /v1/agents/run               run an exported agent
//	POST /v1/tools/call               call an exported tool
//	POST /v1/proposals                start_<service> / stop_<service> (Bearer JWT)
//	GET  /v1/status                   service statuses
//	     /mcp                         Model Context Protocol (streamable HTTP)
//
// The caller identity is read from the IC-TEE-Caller header; a missing or
// malformed header means the anonymous principal. Request and response
// bodies are JSON unless the client asks for application/cbor.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentcore/auth"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/ratelimit"
	"github.com/hupe1980/agentcore/internal/sentryutil"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/status"
)

// Options configure a Server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// RateLimit is the sustained requests per second per caller. Zero
	// disables limiting.
	RateLimit float64
	RateBurst int

	Logger logging.Logger

	// Auth verifies proposal tokens. Without it proposals are rejected.
	Auth *auth.Manager

	// Services holds the statuses proposals can toggle.
	Services *status.Registry

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	Reporter       *sentryutil.Reporter
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Server serves a core.Runtime over HTTP.
type Server struct {
	rt         core.Runtime
	opts       Options
	startTime  time.Time
	limiter    *ratelimit.Limiter
	handler    http.Handler
	httpServer *http.Server
}

// New creates a Server for rt.
func New(rt core.Runtime, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:            ":8042",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		Logger:          logging.NoOpLogger{},
		TracerProvider:  otel.GetTracerProvider(),
		MeterProvider:   otel.GetMeterProvider(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Services == nil {
		opts.Services = status.NewRegistry()
	}

	s := &Server{
		rt:        rt,
		opts:      opts,
		startTime: time.Now(),
		limiter:   ratelimit.New(opts.RateLimit, opts.RateBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /.well-known/information", s.handleInformation)
	mux.HandleFunc("POST /v1/agents/run", s.handleAgentRun)
	mux.HandleFunc("POST /v1/tools/call", s.handleToolCall)
	mux.HandleFunc("POST /v1/proposals", s.handleProposal)
	mux.HandleFunc("GET /v1/status", s.handleStatus)

	if opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → caller → rate limit → recovery → handler.
	var handler http.Handler = mux
	handler = s.recoveryMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = callerMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = newTracingMiddleware(opts.TracerProvider, opts.MeterProvider)(handler)
	handler = requestIDMiddleware(handler)

	s.handler = handler
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}

	return s
}

// Handler returns the root handler including all middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.opts.Logger.Info("http.server.start", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.opts.Logger.Info("http.server.start", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server and releases the rate
// limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Logger.Info("http.server.shutdown")
	defer func() { _ = s.Close() }()
	return s.httpServer.Shutdown(ctx)
}

// Close releases the rate limiter. Servers used only through Handler must be
// closed by their owner. Close is idempotent.
func (s *Server) Close() error { return s.limiter.Close() }

// Run serves until ctx is done, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}
