// Package web serves the calculator HTML widget.
//
// The widget is a plain HTML form enhanced by HTMX: without JavaScript every
// press is a full-page POST; with HTMX only the widget fragment is swapped.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/platform/requestctx"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/i18n"
	"github.com/louisbranch/examdesk/internal/services/calculator/platform/httpx"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
	"github.com/louisbranch/examdesk/internal/services/calculator/templates"
)

const (
	routeWidget = "/calculator"
	routePress  = "/calculator/press"
	routeClose  = "/calculator/close"

	// SessionCookieName holds the widget's session id.
	SessionCookieName = "examdesk_calc_session"
	// TokenCookieName holds the session token bound to SessionCookieName.
	TokenCookieName = "examdesk_calc_token"

	maxFormBytes = 4 << 10
)

// Config wires the widget to its collaborators.
type Config struct {
	Sessions *session.Manager
	Tokens   *sessiontoken.Issuer
	// SecureCookies marks session cookies Secure; enable behind TLS.
	SecureCookies bool
}

// Handler serves the widget routes.
type Handler struct {
	sessions      *session.Manager
	tokens        *sessiontoken.Issuer
	secureCookies bool
}

// NewHandler builds the widget handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{sessions: cfg.Sessions, tokens: cfg.Tokens, secureCookies: cfg.SecureCookies}
}

// Register mounts the widget routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+routeWidget, h.handleWidget)
	mux.HandleFunc("POST "+routePress, h.handlePress)
	mux.HandleFunc("POST "+routeClose, h.handleClose)
}

func (h *Handler) handleWidget(w http.ResponseWriter, r *http.Request) {
	loc := i18n.FromRequest(w, r)
	s, err := h.resume(r)
	if err != nil {
		s, err = h.open(w, r)
		if err != nil {
			h.renderFailure(w, r, loc, err)
			return
		}
	}
	h.renderWidget(w, r, loc, http.StatusOK, s, "")
}

func (h *Handler) handlePress(w http.ResponseWriter, r *http.Request) {
	loc := i18n.FromRequest(w, r)
	s, err := h.resume(r)
	if err != nil {
		h.renderClosed(w, r, loc)
		return
	}
	r = r.WithContext(requestctx.WithSessionID(r.Context(), s.ID()))

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		err = apperrors.Wrap(apperrors.CodeInvalidAction, "invalid form", err)
		h.renderWidget(w, r, loc, errorStatus(r, err), s, loc.Error(err))
		return
	}
	in := keymap.Input{
		Key:    r.PostForm.Get("key"),
		Button: r.PostForm.Get("button"),
		Type:   r.PostForm.Get("type"),
		Value:  r.PostForm.Get("value"),
	}
	action, err := keymap.Resolve(in)
	if err != nil {
		h.renderWidget(w, r, loc, errorStatus(r, err), s, loc.Error(err))
		return
	}
	if _, err := s.Dispatch(r.Context(), action); err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			h.renderClosed(w, r, loc)
			return
		}
		h.renderWidget(w, r, loc, errorStatus(r, err), s, loc.Error(err))
		return
	}
	h.renderWidget(w, r, loc, http.StatusOK, s, "")
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	loc := i18n.FromRequest(w, r)
	if s, err := h.resume(r); err == nil {
		if err := h.sessions.Close(r.Context(), s.ID()); err != nil && !errors.Is(err, session.ErrSessionClosed) {
			h.renderFailure(w, r, loc, err)
			return
		}
	}
	h.clearCookies(w)
	h.renderClosed(w, r, loc)
}

// resume loads the session named by the request cookies.
func (h *Handler) resume(r *http.Request) (*session.Session, error) {
	idCookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, session.ErrSessionNotFound
	}
	tokenCookie, err := r.Cookie(TokenCookieName)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}
	sessionID := strings.TrimSpace(idCookie.Value)
	if _, err := h.tokens.Verify(tokenCookie.Value, sessionID); err != nil {
		return nil, err
	}
	return h.sessions.Get(sessionID)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	s, err := h.sessions.Open(r.Context())
	if err != nil {
		return nil, err
	}
	token, err := h.tokens.Issue(s.ID())
	if err != nil {
		_ = h.sessions.Close(context.WithoutCancel(r.Context()), s.ID())
		return nil, err
	}
	h.setCookie(w, SessionCookieName, s.ID(), 0)
	h.setCookie(w, TokenCookieName, token, 0)
	return s, nil
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     routeWidget,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	h.setCookie(w, SessionCookieName, "", -1)
	h.setCookie(w, TokenCookieName, "", -1)
}

func (h *Handler) renderWidget(w http.ResponseWriter, r *http.Request, loc i18n.Localizer, status int, s *session.Session, message string) {
	widget := templates.Widget(templates.WidgetData{
		View:     s.Snapshot().View,
		Loc:      loc,
		PressURL: routePress,
		CloseURL: routeClose,
		Error:    message,
	})
	httpx.Render(w, r, status, widget, h.page(r, loc, widget))
}

func (h *Handler) renderClosed(w http.ResponseWriter, r *http.Request, loc i18n.Localizer) {
	closed := templates.Closed(templates.ClosedData{Loc: loc, OpenURL: routeWidget})
	httpx.Render(w, r, http.StatusOK, closed, h.page(r, loc, closed))
}

func (h *Handler) renderFailure(w http.ResponseWriter, r *http.Request, loc i18n.Localizer, err error) {
	httpx.WriteError(w, r, err, loc.Locale())
}

func (h *Handler) page(r *http.Request, loc i18n.Localizer, body templ.Component) templ.Component {
	return templates.Page(templates.PageData{
		Widget:    templates.WidgetData{Loc: loc},
		Languages: loc.LanguageOptions(routeWidget, languageQuery(r)),
	}, body)
}

// errorStatus keeps HTMX swaps working: htmx ignores 4xx bodies by default.
func errorStatus(r *http.Request, err error) int {
	if httpx.IsHTMXRequest(r) {
		return http.StatusOK
	}
	return apperrors.HTTPStatus(err)
}

// languageQuery drops the lang param so footer links carry only the new choice.
func languageQuery(r *http.Request) string {
	if r.Method != http.MethodGet {
		return ""
	}
	query := r.URL.Query()
	query.Del(i18n.LangParam)
	return query.Encode()
}
