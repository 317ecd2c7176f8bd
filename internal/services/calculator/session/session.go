// Package session owns calculator sessions: one engine per mounted widget,
// with dispatch serialized per session and idle sessions swept after a TTL.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
)

var (
	// ErrSessionNotFound indicates an unknown or expired session ID.
	ErrSessionNotFound = apperrors.New(apperrors.CodeSessionNotFound, "calculator session not found")
	// ErrSessionClosed indicates a session that no longer accepts input.
	ErrSessionClosed = apperrors.New(apperrors.CodeSessionClosed, "calculator session is closed")
)

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID         string      `json:"session_id"`
	View       engine.View `json:"view"`
	Sequence   int64       `json:"sequence"`
	OpenedAt   time.Time   `json:"opened_at"`
	LastActive time.Time   `json:"last_active"`
	Closed     bool        `json:"closed"`
}

// Session is one calculator instance. It is safe for concurrent use.
type Session struct {
	id       string
	openedAt time.Time
	tracer   trace.Tracer
	clock    func() time.Time

	mu         sync.Mutex
	engine     *engine.Engine
	lastActive time.Time
	closed     bool
}

func newSession(id string, now time.Time, tracer trace.Tracer, clock func() time.Time, observers ...engine.Observer) *Session {
	e := engine.New()
	for _, o := range observers {
		if o != nil {
			e.Subscribe(o)
		}
	}
	return &Session{
		id:         id,
		openedAt:   now,
		tracer:     tracer,
		clock:      clock,
		engine:     e,
		lastActive: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Dispatch applies one action.
func (s *Session) Dispatch(ctx context.Context, action engine.Action) (engine.View, error) {
	snap, err := s.DispatchSnapshot(ctx, action)
	if err != nil {
		return engine.View{}, err
	}
	return snap.View, nil
}

// DispatchSnapshot applies one action and returns the snapshot taken under
// the same lock, so its view and sequence belong to this action even when
// other callers share the session.
func (s *Session) DispatchSnapshot(ctx context.Context, action engine.Action) (Snapshot, error) {
	_, span := s.tracer.Start(ctx, "calculator.dispatch", trace.WithAttributes(
		attribute.String("calculator.session_id", s.id),
		attribute.String("calculator.input_type", string(action.Kind)),
		attribute.String("calculator.input_value", action.Value),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.dispatchLocked(action); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return Snapshot{}, err
	}
	snap := s.snapshotLocked()
	span.SetAttributes(
		attribute.String("calculator.display", snap.View.Display),
		attribute.Int64("calculator.sequence", snap.Sequence),
	)
	return snap, nil
}

// DispatchAll applies actions in order under one lock. It stops at the first
// invalid action and returns the view reached so far.
func (s *Session) DispatchAll(ctx context.Context, actions []engine.Action) (engine.View, error) {
	_, span := s.tracer.Start(ctx, "calculator.dispatch_batch", trace.WithAttributes(
		attribute.String("calculator.session_id", s.id),
		attribute.Int("calculator.batch_size", len(actions)),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.engine.View()
	for i, action := range actions {
		next, err := s.dispatchLocked(action)
		if err != nil {
			err = fmt.Errorf("action %d: %w", i, err)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return view, err
		}
		view = next
	}
	return view, nil
}

func (s *Session) dispatchLocked(action engine.Action) (engine.View, error) {
	if s.closed {
		return engine.View{}, ErrSessionClosed
	}
	view, err := s.engine.Dispatch(action)
	if err != nil {
		return engine.View{}, apperrors.WrapWithMetadata(
			apperrors.CodeInvalidAction,
			err.Error(),
			map[string]string{"Type": string(action.Kind), "Value": action.Value},
			err,
		)
	}
	s.lastActive = s.clock()
	return view, nil
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         s.id,
		View:       s.engine.View(),
		Sequence:   s.engine.Sequence(),
		OpenedAt:   s.openedAt,
		LastActive: s.lastActive,
		Closed:     s.closed,
	}
}

// State returns the full engine state.
func (s *Session) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// close marks the session closed and reports the number of processed actions.
func (s *Session) close() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.engine.Sequence(), false
	}
	s.closed = true
	return s.engine.Sequence(), true
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
