package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcore"
	"github.com/hupe1980/agentcore/auth"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
)

// withEngine loads the configuration, builds the engine and hands it to fn.
// The engine is cancelled afterwards.
func withEngine(ctx context.Context, opts *rootOptions, fn func(eng *engine.Engine) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	keys, err := agentcore.NewKeys(cfg.Keys)
	if err != nil {
		return err
	}

	eng, err := buildEngine(ctx, cfg, newLogger(cfg.Log), keys)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Cancel()

	return fn(eng)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	var detail bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print engine information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd.Context(), opts, func(eng *engine.Engine) error {
				return writeJSON(cmd.OutOrStdout(), eng.Information(detail))
			})
		},
	}

	cmd.Flags().BoolVar(&detail, "detail", false, "include agent and tool definitions")

	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		agentName string
		user      string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run [--agent name] <prompt>",
		Short: "Run an agent once",
		Long:  "Run an exported agent locally. Without --agent the default agent runs.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			return withEngine(cmd.Context(), opts, func(eng *engine.Engine) error {
				out, err := eng.AgentRun(cmd.Context(), agentName, prompt, nil, core.AnonymousPrincipal, user)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), out)
				}

				if out.FailedReason != "" {
					return fmt.Errorf("agent failed: %s", out.FailedReason)
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Content)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "agent to run (default: the engine's default agent)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user label passed to the agent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full output as JSON")

	return cmd
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "call <tool> [args]",
		Short: "Call a tool once",
		Long:  "Call an exported tool locally with JSON encoded arguments (default {}).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := "{}"
			if len(args) == 2 {
				toolArgs = args[1]
			}

			return withEngine(cmd.Context(), opts, func(eng *engine.Engine) error {
				res, err := eng.ToolCall(cmd.Context(), args[0], toolArgs, core.AnonymousPrincipal, user)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Output)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user label passed to the tool")

	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		methods []string
	)

	cmd := &cobra.Command{
		Use:   "token --subject <principal>",
		Short: "Issue a control plane token",
		Long: `Issue a JWT for POST /v1/proposals. The signing key is the configured
server.auth.private_key_path or, without one, the key derived from keys.seed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			tok, exp, err := issueToken(cmd.Context(), cfg, subject, methods)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":      tok,
				"expires_at": exp.UTC().Format(time.RFC3339),
			})
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "principal the token is issued to")
	cmd.Flags().StringSliceVarP(&methods, "methods", "m", []string{auth.AllMethods}, "allowed proposal methods")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// issueToken never signs with an ephemeral key.
func issueToken(ctx context.Context, cfg config.Config, subject string, methods []string) (string, time.Time, error) {
	if cfg.Server.Auth.PrivateKeyPath == "" && cfg.Keys.Seed == "" {
		return "", time.Time{}, auth.ErrNoSigningKey
	}

	sub, err := core.ParsePrincipal(subject)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("--subject: %w", err)
	}

	keys, err := agentcore.NewKeys(cfg.Keys)
	if err != nil {
		return "", time.Time{}, err
	}

	mgr, err := newAuthManager(ctx, cfg, newLogger(cfg.Log), keys)
	if err != nil {
		return "", time.Time{}, err
	}

	if !mgr.CanIssue() {
		return "", time.Time{}, errors.New("token: configured key material is verify-only")
	}

	return mgr.Issue(sub, methods...)
}
