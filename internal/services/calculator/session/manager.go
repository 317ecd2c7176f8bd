package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/examdesk/internal/platform/id"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

const tracerName = "github.com/louisbranch/examdesk/internal/services/calculator/session"

// DefaultTTL closes sessions idle for longer than this.
const DefaultTTL = 30 * time.Minute

// ObserverFactory builds the observer attached to a new session's engine.
// Observers run while the session lock is held and must not call back into
// the session.
type ObserverFactory func(sessionID string) engine.Observer

// Config configures a Manager.
type Config struct {
	TTL       time.Duration
	Store     storage.SessionStore
	Observers ObserverFactory
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	Clock          func() time.Time
	NewID          func() (string, error)
}

// Manager owns live calculator sessions.
type Manager struct {
	ttl       time.Duration
	store     storage.SessionStore
	observers ObserverFactory
	tracer    trace.Tracer
	clock     func() time.Time
	newID     func() (string, error)

	mu       sync.Mutex
	sessions map[string]*Session
	// closed remembers recently closed IDs so callers get ErrSessionClosed
	// instead of ErrSessionNotFound until the next sweep past the TTL.
	closed map[string]time.Time
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	return &Manager{
		ttl:       cfg.TTL,
		store:     cfg.Store,
		observers: cfg.Observers,
		tracer:    cfg.TracerProvider.Tracer(tracerName),
		clock:     cfg.Clock,
		newID:     cfg.NewID,
		sessions:  make(map[string]*Session),
		closed:    make(map[string]time.Time),
	}
}

// Open creates a session with a fresh engine.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	sessionID, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}
	now := m.clock().UTC()
	if m.store != nil {
		if err := m.store.CreateSession(ctx, storage.SessionRecord{ID: sessionID, OpenedAt: now}); err != nil {
			return nil, fmt.Errorf("record session: %w", err)
		}
	}

	var observer engine.Observer
	if m.observers != nil {
		observer = m.observers(sessionID)
	}
	s := newSession(sessionID, now, m.tracer, m.clock, observer)

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s, nil
	}
	if _, ok := m.closed[sessionID]; ok {
		return nil, ErrSessionClosed
	}
	return nil, ErrSessionNotFound
}

// Close closes a session and records its final action count.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		m.closed[sessionID] = m.clock()
	}
	_, wasClosed := m.closed[sessionID]
	m.mu.Unlock()

	if !ok {
		if wasClosed {
			return ErrSessionClosed
		}
		return ErrSessionNotFound
	}
	return m.finish(ctx, s)
}

func (m *Manager) finish(ctx context.Context, s *Session) error {
	count, changed := s.close()
	if !changed || m.store == nil {
		return nil
	}
	if err := m.store.CloseSession(ctx, s.id, m.clock().UTC(), count); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("record session close: %w", err)
	}
	return nil
}

// Sweep closes sessions idle longer than the TTL and returns their IDs.
func (m *Manager) Sweep(ctx context.Context, now time.Time) []string {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for sessionID, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, sessionID)
			m.closed[sessionID] = now
		}
	}
	for sessionID, closedAt := range m.closed {
		if closedAt.Before(cutoff) {
			delete(m.closed, sessionID)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		if err := m.finish(ctx, s); err != nil {
			log.Printf("sweep calculator session %s: %v", s.id, err)
		}
		ids = append(ids, s.id)
	}
	sort.Strings(ids)
	return ids
}

// Run sweeps idle sessions every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ids := m.Sweep(ctx, m.clock()); len(ids) > 0 {
				log.Printf("closed %d idle calculator sessions", len(ids))
			}
		}
	}
}

// CloseAll closes every live session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	now := m.clock()
	for sessionID, s := range m.sessions {
		live = append(live, s)
		delete(m.sessions, sessionID)
		m.closed[sessionID] = now
	}
	m.mu.Unlock()

	for _, s := range live {
		if err := m.finish(ctx, s); err != nil {
			log.Printf("close calculator session %s: %v", s.id, err)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
