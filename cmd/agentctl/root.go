package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/agentlink/internal/agent"
	"github.com/rickgao/agentlink/internal/config"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	url        string
	token      string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "agentctl",
		Short:        "Control an ocean agent over its WebSocket link",
		Version:      version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "agentctl version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	flags.StringVar(&opts.url, "url", "", "agent endpoint (overrides config and "+config.EndpointEnvVar+")")
	flags.StringVar(&opts.token, "token", "", "bearer token for the agent endpoint")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(
		newWatchCmd(opts),
		newStatusCmd(opts),
		newSetTargetCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load resolves configuration from the file (if any), the environment and
// flags, in increasing precedence.
func (o *rootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadWithDefaults(o.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if o.url != "" {
		cfg.Agent.Endpoint = o.url
	}
	if o.token != "" {
		cfg.Agent.AuthToken = o.token
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// managerConfig maps the agent section onto connection settings.
func managerConfig(a config.AgentConfig) connection.ManagerConfig {
	cfg := connection.DefaultManagerConfig()
	cfg.Endpoint = a.Endpoint
	cfg.AuthToken = a.AuthToken
	cfg.ConnectTimeout = a.ConnectTimeout
	cfg.WriteTimeout = a.WriteTimeout
	cfg.PingInterval = a.PingInterval
	cfg.PingTimeout = a.PingTimeout
	cfg.ReconnectBaseDelay = a.ReconnectBaseDelay
	cfg.ReconnectMaxDelay = a.ReconnectMaxDelay
	cfg.MaxReconnectAttempts = a.MaxReconnectAttempts
	if a.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	return cfg
}

// newAgentClient builds the agent client for cfg.
func newAgentClient(cfg *config.Config, autoSubscribe bool, logger *slog.Logger) *agent.Client {
	return agent.New(agent.Config{
		Connection:    managerConfig(cfg.Agent),
		AutoSubscribe: autoSubscribe || cfg.Agent.AutoSubscribe,
	}, logger.With("endpoint", cfg.Agent.Endpoint))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
