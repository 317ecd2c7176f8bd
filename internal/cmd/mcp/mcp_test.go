package mcp

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected no default db path, got %q", cfg.DBPath)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("EXAMDESK_MCP_DB_PATH", "env.db")
	t.Setenv("EXAMDESK_MCP_LOG_LEVEL", "debug")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db-path", "flag.db", "-session-ttl", "90s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("expected flag db path, got %q", cfg.DBPath)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Fatalf("expected flag session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.LogLevel)
	}
}
