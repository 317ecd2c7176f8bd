// Package httpapi serves the calculator JSON API.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/platform/requestctx"
	"github.com/louisbranch/examdesk/internal/services/calculator/audit"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/i18n"
	"github.com/louisbranch/examdesk/internal/services/calculator/platform/httpx"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

// maxBodyBytes bounds action request bodies.
const maxBodyBytes = 64 << 10

const upPingTimeout = 2 * time.Second

// maxBatchActions bounds the actions accepted in one request.
const maxBatchActions = 256

// Config wires the API to its collaborators.
type Config struct {
	Sessions *session.Manager
	Tokens   *sessiontoken.Issuer
	// History is optional; without it the history route returns empty pages.
	History storage.AuditStore
	// Health is pinged by GET /up when set.
	Health Pinger
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the calculator JSON routes.
type Handler struct {
	sessions *session.Manager
	tokens   *sessiontoken.Issuer
	history  storage.AuditStore
	health   Pinger
}

// NewHandler builds the JSON API handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{sessions: cfg.Sessions, tokens: cfg.Tokens, history: cfg.History, health: cfg.Health}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /up", h.handleUp)
	mux.HandleFunc("POST /v1/sessions", h.handleOpen)
	mux.Handle("GET /v1/sessions/{id}", h.authorized(h.handleGet))
	mux.Handle("POST /v1/sessions/{id}/actions", h.authorized(h.handleActions))
	mux.Handle("DELETE /v1/sessions/{id}", h.authorized(h.handleClose))
	mux.Handle("GET /v1/sessions/{id}/history", h.authorized(h.handleHistory))
	mux.HandleFunc("GET /v1/keypad", h.handleKeypad)
}

// SessionResponse describes a session and its current display.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token,omitempty"`
	Display   string `json:"display"`
	HasMemory bool   `json:"has_memory"`
	Sequence  int64  `json:"sequence"`
}

// ActionRequest carries one input or a batch of inputs.
type ActionRequest struct {
	keymap.Input
	Actions []keymap.Input `json:"actions,omitempty"`
}

// KeypadButton is the wire form of one keypad button.
type KeypadButton struct {
	Label  string        `json:"label"`
	Style  string        `json:"style"`
	Action engine.Action `json:"action"`
}

func (h *Handler) handleUp(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), upPingTimeout)
		err := h.health.Ping(ctx)
		cancel()
		if err != nil {
			log.Printf("storage ping failed request_id=%s err=%v", requestctx.RequestIDFromContext(r.Context()), err)
			_ = httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.Issue(s.ID())
	if err != nil {
		_ = h.sessions.Close(context.WithoutCancel(r.Context()), s.ID())
		h.writeError(w, r, err)
		return
	}
	resp := sessionResponse(s.Snapshot())
	resp.Token = token
	_ = httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, s *session.Session) {
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse(s.Snapshot()))
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req ActionRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeInvalidAction, err.Error(), err))
		return
	}

	inputs := req.Actions
	if len(inputs) == 0 {
		inputs = []keymap.Input{req.Input}
	}
	if len(inputs) > maxBatchActions {
		h.writeError(w, r, apperrors.New(apperrors.CodeInvalidAction, "too many actions in one request"))
		return
	}
	actions := make([]engine.Action, 0, len(inputs))
	for _, in := range inputs {
		action, err := keymap.Resolve(in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		actions = append(actions, action)
	}

	if _, err := s.DispatchAll(r.Context(), actions); err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse(s.Snapshot()))
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if err := h.sessions.Close(r.Context(), s.ID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, s *session.Session) {
	query := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, apperrors.New(apperrors.CodeInvalidPageToken, "page_size must be a non-negative integer"))
			return
		}
		pageSize = parsed
	}
	page, err := audit.ListHistory(r.Context(), h.history, storage.AuditQuery{
		SessionID: s.ID(),
		PageSize:  pageSize,
		PageToken: query.Get("page_token"),
		Filter:    query.Get("filter"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleKeypad(w http.ResponseWriter, r *http.Request) {
	rows := keymap.Buttons()
	out := make([][]KeypadButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]KeypadButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, KeypadButton{Label: b.Label, Style: string(b.Style), Action: b.Action})
		}
		out = append(out, buttons)
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"rows": out})
}

type sessionHandlerFunc func(http.ResponseWriter, *http.Request, *session.Session)

// authorized verifies the bearer token against the path session and loads
// the session.
func (h *Handler) authorized(next sessionHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.PathValue("id"))
		if _, err := h.tokens.Verify(httpx.BearerToken(r), sessionID); err != nil {
			h.writeError(w, r, err)
			return
		}
		s, err := h.sessions.Get(sessionID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		r = r.WithContext(requestctx.WithSessionID(r.Context(), sessionID))
		next(w, r, s)
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	tag, _ := i18n.ResolveTag(r)
	httpx.WriteError(w, r, err, tag.String())
}

func sessionResponse(snap session.Snapshot) SessionResponse {
	return SessionResponse{
		SessionID: snap.ID,
		Display:   snap.View.Display,
		HasMemory: snap.View.HasMemory,
		Sequence:  snap.Sequence,
	}
}
