package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentcore"
	"github.com/hupe1980/agentcore/auth"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/sentryutil"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/mcp"
	"github.com/hupe1980/agentcore/server"
	"github.com/hupe1980/agentcore/status"
	"github.com/hupe1980/agentcore/telemetry"
)

const (
	schedulerService = "scheduler"
	schedulerUser    = "scheduler"
)

// authKeyPath is the key derivation path of the control plane signing key
// when it comes from the seeded key client.
var authKeyPath = [][]byte{[]byte("auth"), []byte("jwt")}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP and MCP",
		Long: `Serve starts the HTTP server (with the MCP endpoint mounted at /mcp) and the
scheduler. It shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.Log)

	logger.Info("agentcore.starting", "version", version, "addr", cfg.Server.Addr)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	reporter, err := sentryutil.New(sentryutil.Config{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          "agentcore@" + version,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	})
	if err != nil {
		return err
	}
	defer reporter.Flush(2 * time.Second)

	keys, err := agentcore.NewKeys(cfg.Keys)
	if err != nil {
		return err
	}

	// In-flight invocations may finish during graceful shutdown; the engine
	// is cancelled once the server has stopped.
	eng, err := buildEngine(context.WithoutCancel(ctx), cfg, logger, keys, reporter.Callback())
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Cancel()

	authMgr, err := newAuthManager(ctx, cfg, logger, keys)
	if err != nil {
		return err
	}

	services := status.NewRegistry()
	initial := status.Stopped
	if cfg.Scheduler.Enabled {
		initial = status.Running
	}
	scheduler := services.Register(schedulerService, initial)

	var mcpHandler http.Handler
	if cfg.Server.MCP {
		ms, err := mcp.New(eng, func(o *mcp.Options) {
			o.Version = version
			o.Logger = logger.WithComponent("mcp")
			o.RateLimit = cfg.Server.RateLimit
			o.RateBurst = cfg.Server.RateBurst
			o.Reporter = reporter
		})
		if err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() { _ = ms.Close() }()

		mcpHandler = ms.HTTPHandler()
	}

	srv := server.New(eng, func(o *server.Options) {
		o.Addr = cfg.Server.Addr
		o.ReadTimeout = cfg.Server.ReadTimeout
		o.WriteTimeout = cfg.Server.WriteTimeout
		o.ShutdownTimeout = cfg.Server.ShutdownTimeout
		o.MaxBodyBytes = cfg.Server.MaxBodyBytes
		o.RateLimit = cfg.Server.RateLimit
		o.RateBurst = cfg.Server.RateBurst
		o.Logger = logger.WithComponent("http")
		o.Auth = authMgr
		o.Services = services
		o.MCP = mcpHandler
		o.Reporter = reporter
		o.TracerProvider = telemetry.TracerProvider()
		o.MeterProvider = telemetry.MeterProvider()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return runScheduler(gctx, eng, scheduler, cfg.Scheduler, eng.ID(), logger.WithComponent("scheduler"))
	})

	// Poll reports the shutdown signal as context.Canceled.
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("agentcore.stopped")

	return nil
}

// runScheduler runs the configured agent every interval while the scheduler
// service is running.
func runScheduler(ctx context.Context, rt core.Runtime, svc *status.Status, cfg config.SchedulerConfig, caller core.Principal, logger logging.Logger) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	logger.Info("scheduler.start", "interval", interval.String(), "agent", cfg.Agent, "status", svc.String())

	return svc.Poll(ctx, interval, func(ctx context.Context) {
		start := time.Now()

		out, err := rt.AgentRun(ctx, cfg.Agent, cfg.Prompt, nil, caller, schedulerUser)
		if err != nil {
			logger.Error("scheduler.run.error", "agent", cfg.Agent, "error", err.Error())
			return
		}

		logger.Info("scheduler.run.success",
			"agent", cfg.Agent,
			"duration_ms", time.Since(start).Milliseconds(),
			"failed_reason", out.FailedReason,
			"content_len", len(out.Content),
		)
	})
}

// newAuthManager selects the control plane key: PEM files when configured,
// otherwise a key derived from the seeded key client, otherwise an ephemeral
// key pair.
func newAuthManager(ctx context.Context, cfg config.Config, logger logging.Logger, keys core.KeysClient) (*auth.Manager, error) {
	ac := cfg.Server.Auth

	var signer *auth.KeysSigner
	if ac.PrivateKeyPath == "" && ac.PublicKeyPath == "" && cfg.Keys.Seed != "" {
		s, err := auth.NewKeysSigner(ctx, keys, authKeyPath)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		signer = s
	}

	return auth.NewManager(func(o *auth.Options) {
		o.PrivateKeyPath = ac.PrivateKeyPath
		o.PublicKeyPath = ac.PublicKeyPath
		if signer != nil {
			o.Signer = signer
		}
		if ac.Expiration > 0 {
			o.Expiration = ac.Expiration
		}
		o.Issuer = auth.DefaultIssuer
		o.Logger = logger
	})
}
