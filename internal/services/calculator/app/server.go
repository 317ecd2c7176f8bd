// Package server composes the calculator service: storage, the audit
// recorder, the session manager, the HTTP surfaces and the health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	platformgrpc "github.com/louisbranch/examdesk/internal/platform/grpc"
	"github.com/louisbranch/examdesk/internal/platform/timeouts"
	"github.com/louisbranch/examdesk/internal/services/calculator/api/httpapi"
	"github.com/louisbranch/examdesk/internal/services/calculator/api/web"
	"github.com/louisbranch/examdesk/internal/services/calculator/api/ws"
	"github.com/louisbranch/examdesk/internal/services/calculator/audit"
	"github.com/louisbranch/examdesk/internal/services/calculator/platform/httpx"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage/sqlite"
)

// HealthService is the gRPC health service name reported once the HTTP
// surfaces accept traffic.
const HealthService = "examdesk.calculator"

// Config configures the calculator server.
type Config struct {
	HTTPAddr string
	// HealthPort is the gRPC health listener port; 0 picks a free port.
	HealthPort    int
	DBPath        string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	AuditQueue    int
	Tokens        sessiontoken.Config
	SecureCookies bool
	// Logger receives audit events; nil discards them.
	Logger *slog.Logger

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the calculator service.
type Server struct {
	httpListener    net.Listener
	healthListener  net.Listener
	httpServer      *http.Server
	health          *platformgrpc.HealthServer
	store           *sqlite.Store
	recorder        *audit.Recorder
	sessions        *session.Manager
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
}

// New opens storage, wires the session layer and binds both listeners.
func New(cfg Config) (*Server, error) {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}

	tokens, err := sessiontoken.NewIssuer(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	recorder := audit.NewRecorder(audit.NewEmitter(store), cfg.Logger, cfg.AuditQueue)
	sessions := session.NewManager(session.Config{
		TTL:       cfg.SessionTTL,
		Store:     store,
		Observers: recorder.ForSession,
	})

	mux := http.NewServeMux()
	httpapi.NewHandler(httpapi.Config{Sessions: sessions, Tokens: tokens, History: store, Health: store}).Register(mux)
	web.NewHandler(web.Config{Sessions: sessions, Tokens: tokens, SecureCookies: cfg.SecureCookies}).Register(mux)
	ws.NewHandler(ws.Config{Sessions: sessions, Tokens: tokens}).Register(mux)

	httpListener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}
	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		_ = httpListener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}

	return &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		httpServer: &http.Server{
			Handler:           httpx.Chain(mux, httpx.RequestID(), httpx.RecoverPanic()),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		health:          platformgrpc.NewHealthServer(),
		store:           store,
		recorder:        recorder,
		sessions:        sessions,
		sweepInterval:   cfg.SweepInterval,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "calculator.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calculator sqlite store: %w", err)
	}
	return store, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Run creates and serves a calculator server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return fmt.Errorf("init calculator server: %w", err)
	}
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve calculator: %w", err)
	}
	return nil
}

// Serve runs the background workers and both listeners until ctx ends, then
// closes live sessions, flushes the audit queue and closes storage.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("calculator server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	workers.Add(3)
	go func() {
		defer workers.Done()
		_ = s.recorder.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		_ = s.sessions.Run(workerCtx, s.sweepInterval)
	}()
	go func() {
		defer workers.Done()
		if err := s.health.Serve(workerCtx, s.healthListener); err != nil {
			log.Printf("calculator health server: %v", err)
		}
	}()
	defer func() {
		stopWorkers()
		workers.Wait()
		s.close()
	}()

	log.Printf("calculator HTTP server listening at %v", s.httpListener.Addr())
	log.Printf("calculator health server listening at %v", s.healthListener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.httpListener)
	}()
	s.health.SetServing(HealthService, true)

	select {
	case <-ctx.Done():
		s.health.SetServing(HealthService, false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		s.health.SetServing(HealthService, false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) close() {
	closeCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	s.sessions.CloseAll(closeCtx)
	cancel()
	s.recorder.Close()
	if stats := s.recorder.Stats(); stats.Dropped > 0 || stats.Failed > 0 {
		log.Printf("calculator audit: %d recorded, %d dropped, %d failed", stats.Recorded, stats.Dropped, stats.Failed)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close calculator store: %v", err)
	}
}
