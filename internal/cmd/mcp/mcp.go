// Package mcp parses MCP command flags and serves calculator tools on stdio.
package mcp

import (
	"context"
	"flag"
	"os"
	"time"

	entrypoint "github.com/louisbranch/examdesk/internal/platform/cmd"
	"github.com/louisbranch/examdesk/internal/platform/logging"
	server "github.com/louisbranch/examdesk/internal/services/calculator/app"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath     string        `env:"EXAMDESK_MCP_DB_PATH"`
	SessionTTL time.Duration `env:"EXAMDESK_MCP_SESSION_TTL" envDefault:"30m"`
	LogLevel   string        `env:"EXAMDESK_MCP_LOG_LEVEL"   envDefault:"warn"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite path for the audit trail (empty disables history)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "idle time before a session is closed")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "audit log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter. Stdout carries the protocol, so logs
// stay on stderr.
func Run(ctx context.Context, cfg Config) error {
	logger, _, err := logging.New(logging.Options{
		Writer:  os.Stderr,
		Level:   cfg.LogLevel,
		Service: entrypoint.ServiceMCP,
	})
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return server.RunMCP(ctx, server.MCPConfig{
			DBPath:     cfg.DBPath,
			SessionTTL: cfg.SessionTTL,
			Logger:     logger,
		})
	})
}
