package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/logging"
)

// rootOptions are the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore engine",
		Long: `agentcore runs named agents and tools under a controlled identity.

Use "serve" to expose the engine over HTTP and MCP, or drive it locally with
"info", "run" and "call".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config.yaml or $AGENTCORE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newInfoCmd(opts),
		newRunCmd(opts),
		newCallCmd(opts),
		newTokenCmd(opts),
	)

	return cmd
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if o.logLevel != "" {
		if _, err := logging.ParseLogLevel(o.logLevel); err != nil {
			return config.Config{}, fmt.Errorf("--log-level: %w", err)
		}
		cfg.Log.Level = o.logLevel
	}

	return cfg, nil
}

func newLogger(cfg config.LogConfig) *logging.EngineLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     cfg.LogLevel(),
		Format:    cfg.Format,
		Output:    os.Stderr,
		AddSource: cfg.AddSource,
		Component: "agentcore",
	})
}
