package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/examdesk/internal/services/calculator/audit"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/platform/httpx"
	"github.com/louisbranch/examdesk/internal/services/calculator/session"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage/sqlite"
)

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "calculator.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	emitter := audit.NewEmitter(store)
	sessions := session.NewManager(session.Config{
		Store: store,
		Observers: func(sessionID string) engine.Observer {
			return engine.ObserverFunc(func(tr engine.Transition) {
				_ = emitter.Emit(context.Background(), audit.RecordFromTransition(sessionID, tr, time.Now()))
			})
		},
	})
	tokens, err := sessiontoken.NewIssuer(sessiontoken.Config{
		Issuer: "examdesk-test",
		Secret: []byte(strings.Repeat("k", 32)),
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(Config{Sessions: sessions, Tokens: tokens, History: store, Health: store}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, respBody
}

func (s *testServer) open(t *testing.T) SessionResponse {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/v1/sessions", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open status = %d, body = %s", resp.StatusCode, body)
	}
	var out SessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode open: %v", err)
	}
	return out
}

func TestOpenReturnsTokenAndInitialView(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	if opened.SessionID == "" || opened.Token == "" {
		t.Fatalf("open response = %+v", opened)
	}
	if opened.Display != "0" || opened.HasMemory {
		t.Fatalf("initial view = %+v", opened)
	}
}

func TestActionsChainLeftToRight(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	path := "/v1/sessions/" + opened.SessionID + "/actions"

	body := `{"actions":[
		{"type":"digit","value":"2"},
		{"key":"+"},
		{"button":"3"},
		{"type":"operator","value":"*"},
		{"key":"4"},
		{"key":"Enter"}
	]}`
	resp, raw := srv.do(t, http.MethodPost, path, opened.Token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("actions status = %d, body = %s", resp.StatusCode, raw)
	}
	var out SessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Display != "20" {
		t.Fatalf("display = %q, want 20", out.Display)
	}
	if out.Sequence != 6 {
		t.Fatalf("sequence = %d, want 6", out.Sequence)
	}
}

func TestSingleActionAndGet(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	base := "/v1/sessions/" + opened.SessionID

	for _, body := range []string{`{"key":"5"}`, `{"button":"M+"}`} {
		if resp, raw := srv.do(t, http.MethodPost, base+"/actions", opened.Token, body); resp.StatusCode != http.StatusOK {
			t.Fatalf("action %s status = %d, body = %s", body, resp.StatusCode, raw)
		}
	}
	resp, raw := srv.do(t, http.MethodGet, base, opened.Token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var out SessionResponse
	_ = json.Unmarshal(raw, &out)
	if out.Display != "5" || !out.HasMemory {
		t.Fatalf("view = %+v, want display 5 with memory", out)
	}
}

func TestActionErrors(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	path := "/v1/sessions/" + opened.SessionID + "/actions"

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "unknown key", body: `{"key":"F5"}`, status: http.StatusBadRequest, code: "INVALID_KEY"},
		{name: "bad digit", body: `{"type":"digit","value":"x"}`, status: http.StatusBadRequest, code: "INVALID_ACTION"},
		{name: "malformed json", body: `{"type":`, status: http.StatusBadRequest, code: "INVALID_ACTION"},
		{name: "unknown field", body: `{"kind":"digit"}`, status: http.StatusBadRequest, code: "INVALID_ACTION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := srv.do(t, http.MethodPost, path, opened.Token, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, raw)
			}
			var out map[string]httpx.ErrorBody
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out["error"].Code != tt.code {
				t.Fatalf("code = %q, want %q", out["error"].Code, tt.code)
			}
		})
	}
}

func TestSessionRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	first := srv.open(t)
	second := srv.open(t)

	resp, _ := srv.do(t, http.MethodGet, "/v1/sessions/"+first.SessionID, "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}
	resp, _ = srv.do(t, http.MethodGet, "/v1/sessions/"+first.SessionID, second.Token, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("other session token status = %d, want 401", resp.StatusCode)
	}
}

func TestCloseSession(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	base := "/v1/sessions/" + opened.SessionID

	resp, _ := srv.do(t, http.MethodDelete, base, opened.Token, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close status = %d, want 204", resp.StatusCode)
	}
	resp, raw := srv.do(t, http.MethodPost, base+"/actions", opened.Token, `{"key":"1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("action after close status = %d, want 409 (body %s)", resp.StatusCode, raw)
	}
}

func TestHistoryPagesAndFilters(t *testing.T) {
	srv := newTestServer(t)
	opened := srv.open(t)
	base := "/v1/sessions/" + opened.SessionID
	body := `{"actions":[{"key":"1"},{"key":"+"},{"key":"2"},{"key":"="}]}`
	if resp, raw := srv.do(t, http.MethodPost, base+"/actions", opened.Token, body); resp.StatusCode != http.StatusOK {
		t.Fatalf("actions status = %d, body = %s", resp.StatusCode, raw)
	}

	resp, raw := srv.do(t, http.MethodGet, base+"/history?page_size=3", opened.Token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, body = %s", resp.StatusCode, raw)
	}
	var page audit.HistoryPage
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(page.Entries) != 3 || page.NextPageToken == "" {
		t.Fatalf("first page = %+v", page)
	}

	resp, raw = srv.do(t, http.MethodGet, base+"/history?page_token="+page.NextPageToken, opened.Token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second page status = %d", resp.StatusCode)
	}
	_ = json.Unmarshal(raw, &page)
	if len(page.Entries) != 1 || page.Entries[0].DisplayValue != "3" {
		t.Fatalf("second page = %+v", page)
	}

	filter := "filter=" + strings.ReplaceAll(`input_type = "digit"`, " ", "%20")
	filter = strings.ReplaceAll(filter, `"`, "%22")
	resp, raw = srv.do(t, http.MethodGet, base+"/history?"+filter, opened.Token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filtered status = %d, body = %s", resp.StatusCode, raw)
	}
	_ = json.Unmarshal(raw, &page)
	if len(page.Entries) != 2 {
		t.Fatalf("filtered entries = %+v", page.Entries)
	}

	resp, _ = srv.do(t, http.MethodGet, base+"/history?filter=bogus%20%3D%201", opened.Token, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", resp.StatusCode)
	}
}

func TestUpAndKeypad(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := srv.do(t, http.MethodGet, "/up", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("up status = %d", resp.StatusCode)
	}
	resp, raw := srv.do(t, http.MethodGet, "/v1/keypad", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("keypad status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `"label":"MC"`) {
		t.Fatalf("keypad body = %s", raw)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestUpReportsUnavailableStorage(t *testing.T) {
	h := NewHandler(Config{
		Sessions: session.NewManager(session.Config{}),
		Health:   pingFunc(func(context.Context) error { return errors.New("database is closed") }),
	})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/up", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), `"status":"unavailable"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestUpFailsAfterStoreClosed(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "calculator.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	mux := http.NewServeMux()
	NewHandler(Config{Sessions: session.NewManager(session.Config{}), Health: store}).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/up", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
