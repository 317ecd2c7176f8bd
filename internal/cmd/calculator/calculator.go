// Package calculator parses calculator command flags and starts the service.
package calculator

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/examdesk/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/examdesk/internal/platform/grpc"
	"github.com/louisbranch/examdesk/internal/platform/logging"
	server "github.com/louisbranch/examdesk/internal/services/calculator/app"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
)

const healthcheckTimeout = 3 * time.Second

// Config holds calculator command configuration.
type Config struct {
	HTTPAddr      string        `env:"EXAMDESK_CALCULATOR_HTTP_ADDR"      envDefault:":8095"`
	HealthPort    int           `env:"EXAMDESK_CALCULATOR_HEALTH_PORT"    envDefault:"8096"`
	DBPath        string        `env:"EXAMDESK_CALCULATOR_DB_PATH"        envDefault:"data/calculator.db"`
	SessionTTL    time.Duration `env:"EXAMDESK_CALCULATOR_SESSION_TTL"    envDefault:"30m"`
	SweepInterval time.Duration `env:"EXAMDESK_CALCULATOR_SWEEP_INTERVAL" envDefault:"1m"`
	AuditQueue    int           `env:"EXAMDESK_CALCULATOR_AUDIT_QUEUE"    envDefault:"256"`
	LogLevel      string        `env:"EXAMDESK_CALCULATOR_LOG_LEVEL"      envDefault:"info"`
	LogJSON       bool          `env:"EXAMDESK_CALCULATOR_LOG_JSON"`
	SecureCookies bool          `env:"EXAMDESK_CALCULATOR_SECURE_COOKIES"`

	// Healthcheck checks a running instance's health port and exits.
	Healthcheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "calculator HTTP listen address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "gRPC health listen port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "calculator SQLite path")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "idle time before a session is closed")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often idle sessions are swept")
	fs.IntVar(&cfg.AuditQueue, "audit-queue", cfg.AuditQueue, "audit records buffered before dropping")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "audit log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "write audit logs as JSON")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "check the local health port and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		return Config{}, fmt.Errorf("health port %d is out of range", cfg.HealthPort)
	}
	return cfg, nil
}

// Run starts the calculator service, or checks it when Healthcheck is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Healthcheck {
		addr := "127.0.0.1:" + strconv.Itoa(cfg.HealthPort)
		if err := platformgrpc.WaitServing(ctx, addr, server.HealthService, healthcheckTimeout); err != nil {
			return fmt.Errorf("healthcheck: %w", err)
		}
		return nil
	}

	tokens, err := sessiontoken.LoadConfigFromEnv(time.Now)
	if err != nil {
		return err
	}
	logger, _, err := logging.New(logging.Options{
		Writer:  os.Stderr,
		Level:   cfg.LogLevel,
		JSON:    cfg.LogJSON,
		Service: entrypoint.ServiceCalculator,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCalculator, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			HealthPort:    cfg.HealthPort,
			DBPath:        cfg.DBPath,
			SessionTTL:    cfg.SessionTTL,
			SweepInterval: cfg.SweepInterval,
			AuditQueue:    cfg.AuditQueue,
			Tokens:        tokens,
			SecureCookies: cfg.SecureCookies,
			Logger:        logger,
		})
	})
}
