// Package ws streams calculator sessions over WebSocket.
//
// Clients attach to an existing session with its token, send calc.press,
// calc.key or calc.state frames, and receive calc.state after every accepted
// input. Failures arrive as error frames carrying the gRPC-style code name.
package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/platform/requestctx"
	"github.com/louisbranch/examdesk/internal/platform/timeouts"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/i18n"
	"github.com/louisbranch/examdesk/internal/services/calculator/platform/httpx"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
)

const (
	frameTypePress = "calc.press"
	frameTypeKey   = "calc.key"
	frameTypeState = "calc.state"
	frameTypeError = "error"

	maxFramePayloadBytes   = 4 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// Config wires the socket handler to the session layer.
type Config struct {
	Sessions *session.Manager
	Tokens   *sessiontoken.Issuer
	// IdleTimeout closes connections that send nothing for this long.
	// Zero uses timeouts.WebSocketIdle.
	IdleTimeout time.Duration
	// MaxFramesPerSecond overrides the per-connection frame budget.
	MaxFramesPerSecond int
}

// Handler upgrades authorized requests and serves calculator frames.
type Handler struct {
	sessions    *session.Manager
	tokens      *sessiontoken.Issuer
	idleTimeout time.Duration
	frameBudget int
}

// NewHandler builds the WebSocket handler.
func NewHandler(cfg Config) *Handler {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = timeouts.WebSocketIdle
	}
	budget := cfg.MaxFramesPerSecond
	if budget <= 0 {
		budget = maxFramesPerSecond
	}
	return &Handler{sessions: cfg.Sessions, tokens: cfg.Tokens, idleTimeout: idle, frameBudget: budget}
}

// Register mounts the socket route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /v1/ws", h)
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type statePayload struct {
	SessionID string `json:"session_id"`
	Display   string `json:"display"`
	HasMemory bool   `json:"has_memory"`
	Sequence  int64  `json:"sequence"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Reason    string            `json:"reason"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ServeHTTP authorizes the request before upgrading it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tag, _ := i18n.ResolveTag(r)
	query := r.URL.Query()
	sessionID := strings.TrimSpace(query.Get("session_id"))
	token := strings.TrimSpace(query.Get("token"))
	if token == "" {
		token = httpx.BearerToken(r)
	}
	if _, err := h.tokens.Verify(token, sessionID); err != nil {
		log.Printf("calculator: websocket unauthorized remote=%s session=%q err=%v", r.RemoteAddr, sessionID, err)
		httpx.WriteError(w, r, err, tag.String())
		return
	}
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		httpx.WriteError(w, r, err, tag.String())
		return
	}

	r = r.WithContext(requestctx.WithSessionID(r.Context(), sessionID))
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(conn, s, i18n.NewLocalizer(tag))
	}).ServeHTTP(w, r)
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	loc     i18n.Localizer
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (p *wsPeer) writeState(requestID string, snap session.Snapshot) error {
	return p.writeFrame(wsFrame{
		Type:      frameTypeState,
		RequestID: requestID,
		Payload: mustJSON(statePayload{
			SessionID: snap.ID,
			Display:   snap.View.Display,
			HasMemory: snap.View.HasMemory,
			Sequence:  snap.Sequence,
		}),
	})
}

func (p *wsPeer) writeError(requestID string, err error) error {
	code := apperrors.CodeOf(err)
	payload := wsError{
		Code:      code.WireName(),
		Reason:    string(code),
		Message:   p.loc.Error(err),
		Retryable: code == apperrors.CodeRateLimited,
	}
	if coded, ok := apperrors.As(err); ok {
		payload.Metadata = coded.Metadata
	}
	return p.writeFrame(wsFrame{
		Type:      frameTypeError,
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: payload}),
	})
}

func (h *Handler) serveConn(conn *websocket.Conn, s *session.Session, loc i18n.Localizer) {
	defer func() {
		_ = conn.Close()
	}()
	ctx := conn.Request().Context()

	decoder := json.NewDecoder(conn)
	peer := &wsPeer{encoder: json.NewEncoder(conn), loc: loc}
	if err := peer.writeState("", s.Snapshot()); err != nil {
		return
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return
			}
			decodeErrors++
			_ = peer.writeError("", apperrors.Wrap(apperrors.CodeInvalidAction, "invalid frame payload", err))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// The decoder cannot resync after a syntax error.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = peer.writeError(frame.RequestID, apperrors.New(apperrors.CodeInvalidAction, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > h.frameBudget {
			log.Printf("calculator: websocket rate limited request_id=%s session_id=%s",
				requestctx.RequestIDFromContext(ctx), requestctx.SessionIDFromContext(ctx))
			_ = peer.writeError(frame.RequestID, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded"))
			return
		}

		var in keymap.Input
		switch frame.Type {
		case frameTypeState:
			_ = peer.writeState(frame.RequestID, s.Snapshot())
			continue
		case frameTypePress:
			if err := json.Unmarshal(frame.Payload, &in); err != nil {
				_ = peer.writeError(frame.RequestID, apperrors.Wrap(apperrors.CodeInvalidAction, "invalid press payload", err))
				continue
			}
			in.Key = ""
		case frameTypeKey:
			var payload keyPayload
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				_ = peer.writeError(frame.RequestID, apperrors.Wrap(apperrors.CodeInvalidAction, "invalid key payload", err))
				continue
			}
			in = keymap.Input{Key: payload.Key}
		default:
			_ = peer.writeError(frame.RequestID, apperrors.WithMetadata(apperrors.CodeInvalidAction,
				"unsupported frame type", map[string]string{"Type": frame.Type}))
			continue
		}

		action, err := keymap.Resolve(in)
		if err != nil {
			_ = peer.writeError(frame.RequestID, err)
			continue
		}
		snap, err := s.DispatchSnapshot(ctx, action)
		if err != nil {
			_ = peer.writeError(frame.RequestID, err)
			if errors.Is(err, session.ErrSessionClosed) {
				return
			}
			continue
		}
		if err := peer.writeState(frame.RequestID, snap); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("calculator: marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
