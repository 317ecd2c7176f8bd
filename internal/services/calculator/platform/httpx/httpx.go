// Package httpx provides HTTP middleware and response helpers shared by the
// calculator transports.
package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/platform/requestctx"
)

const (
	htmxHeader      = "HX-Request"
	requestIDHeader = "X-Request-ID"
)

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

var requestIDCounter atomic.Uint64

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// RequestID injects and echoes a request id for correlation and stores it
// in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = fmt.Sprintf("calc-%d-%d", time.Now().UnixNano(), requestIDCounter.Add(1))
				r.Header.Set(requestIDHeader, requestID)
			}
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), requestID)))
		})
	}
}

// RecoverPanic converts panics into HTTP 500 responses.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.Printf(
						"panic recovered method=%s path=%s %s panic=%v stack=%s",
						r.Method,
						r.URL.Path,
						logFields(r),
						recovered,
						strings.TrimSpace(string(debug.Stack())),
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ErrorBody is the JSON shape of an error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError writes err as a JSON error body with its mapped status and a
// message localized for locale. Errors without a code are logged and
// reported as unknown.
func WriteError(w http.ResponseWriter, r *http.Request, err error, locale string) {
	if w == nil || err == nil {
		return
	}
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown && r != nil {
		log.Printf("request failed method=%s path=%s %s err=%v",
			r.Method, r.URL.Path, logFields(r), err)
	}
	_ = WriteJSON(w, code.HTTPStatus(), map[string]ErrorBody{
		"error": {Code: string(code), Message: apperrors.LocalizedMessage(err, locale)},
	})
}

// DecodeJSON reads a JSON request body of at most limit bytes into target.
func DecodeJSON(r *http.Request, limit int64, target any) error {
	if r == nil || r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// BearerToken returns the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IsHTMXRequest reports whether the current request came from HTMX.
func IsHTMXRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.EqualFold(r.Header.Get(htmxHeader), "true")
}

// Render writes fragment for HTMX requests and full otherwise. A nil full
// falls back to fragment.
func Render(w http.ResponseWriter, r *http.Request, status int, fragment templ.Component, full templ.Component) {
	target := full
	if IsHTMXRequest(r) || target == nil {
		target = fragment
	}
	if target == nil {
		w.WriteHeader(status)
		return
	}
	var body bytes.Buffer
	if err := target.Render(r.Context(), &body); err != nil {
		log.Printf("render failed path=%s %s err=%v", r.URL.Path, logFields(r), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

// logFields formats the correlation ids carried by r for log lines.
func logFields(r *http.Request) string {
	ctx := r.Context()
	return fmt.Sprintf("request_id=%s session_id=%s",
		requestctx.RequestIDFromContext(ctx), requestctx.SessionIDFromContext(ctx))
}
