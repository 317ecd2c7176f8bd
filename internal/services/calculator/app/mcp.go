package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/louisbranch/examdesk/internal/services/calculator/api/mcptools"
	"github.com/louisbranch/examdesk/internal/services/calculator/audit"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage/sqlite"
)

// MCPConfig configures the stdio MCP server.
type MCPConfig struct {
	// DBPath enables the audit trail and calculator_history when set.
	DBPath     string
	SessionTTL time.Duration
	AuditQueue int
	Logger     *slog.Logger
}

// RunMCP serves calculator tools on stdio until the client disconnects or
// ctx ends.
func RunMCP(ctx context.Context, cfg MCPConfig) error {
	var (
		store    *sqlite.Store
		history  storage.AuditStore
		recorder *audit.Recorder
	)
	sessionCfg := session.Config{TTL: cfg.SessionTTL}
	if strings.TrimSpace(cfg.DBPath) != "" {
		var err error
		store, err = openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		history = store
		sessionCfg.Store = store
		recorder = audit.NewRecorder(audit.NewEmitter(store), cfg.Logger, cfg.AuditQueue)
		sessionCfg.Observers = recorder.ForSession
		defer recorder.Close()
	}

	sessions := session.NewManager(sessionCfg)
	srv, err := mcptools.New(mcptools.Config{Sessions: sessions, History: history})
	if err != nil {
		return fmt.Errorf("init calculator MCP server: %w", err)
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if recorder != nil {
		go func() { _ = recorder.Run(workerCtx) }()
	}
	go func() { _ = sessions.Run(workerCtx, time.Minute) }()

	return srv.Serve(ctx)
}
