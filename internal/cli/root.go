// Package cli is the snipcast command tree.
package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"snipcast/internal/config"
	"snipcast/internal/delivery"
	"snipcast/internal/pipeline"
	logx "snipcast/pkg/logx"
)

var (
	cfgPath  string
	logLevel string

	// Version is set at build time with -ldflags "-X snipcast/internal/cli.Version=...".
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "snipcast",
	Short: "Deliver a daily, category-balanced selection of snippets",
	Long: `snipcast picks a fresh batch of snippets from a text corpus, avoiding
recent repeats and alternating between two categories, and delivers it by
email, chat webhook and Telegram.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (EMAIL_USER, DISCORD_WEBHOOK_URL, STREAM_PREFIX, ...)
  3. Config file (--config or SNIPCAST_CONFIG)
  4. Defaults`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the command tree with ctx cancelled on shutdown signals.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file, JSON or YAML (default: $SNIPCAST_CONFIG, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// env is what every command needs after loading configuration.
type env struct {
	mgr  *config.ConfigManager
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger
}

func setup() (*env, error) {
	vars := config.NewEnv()
	path := strings.TrimSpace(cfgPath)
	if path == "" {
		path = strings.TrimSpace(vars.GetString("config"))
	}

	mgr := config.NewConfigManager(path, vars)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(logConfig(cfg.Logging))
	mgr.SetLogger(log.With(logx.String("component", "config")))
	if path != "" {
		log.Debug("config loaded", logx.String("path", path))
	}
	return &env{mgr: mgr, cfg: cfg, logs: logs, log: log}, nil
}

func (e *env) close() { _ = e.logs.Close() }

func logConfig(c config.LoggingConfig) logx.Config {
	level := c.Level
	if logLevel != "" {
		level = logLevel
	}
	return logx.Config{
		Level:   level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// deliveryTimeout bounds a single adapter within one run.
const deliveryTimeout = 5 * time.Minute

func newRunner(cfg *config.Config, log logx.Logger, opts ...pipeline.Option) *pipeline.Runner {
	senders := delivery.Build(cfg.Delivery, log.With(logx.String("component", "delivery")))
	disp := delivery.NewDispatcher(senders, deliveryTimeout, log.With(logx.String("component", "delivery")))
	return pipeline.New(cfg, disp, log, opts...)
}
