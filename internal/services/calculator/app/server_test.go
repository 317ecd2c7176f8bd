package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/examdesk/internal/platform/grpc"
	"github.com/louisbranch/examdesk/internal/services/calculator/sessiontoken"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage/sqlite"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		HTTPAddr:      "127.0.0.1:0",
		HealthPort:    0,
		DBPath:        filepath.Join(t.TempDir(), "nested", "calculator.db"),
		SweepInterval: time.Hour,
		Tokens: sessiontoken.Config{
			Issuer: "examdesk-test",
			Secret: []byte(strings.Repeat("k", 32)),
			TTL:    time.Hour,
		},
	}
}

func TestNewRequiresHTTPAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTPAddr = " "
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for empty http address")
	}
}

func TestNewRejectsBadTokenConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokens.Secret = []byte("short")
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for short token secret")
	}
}

type openResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Display   string `json:"display"`
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestServeLifecycle(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	_, healthPort, err := net.SplitHostPort(srv.HealthAddr())
	if err != nil {
		t.Fatalf("split health addr: %v", err)
	}
	if err := platformgrpc.WaitServing(context.Background(), "127.0.0.1:"+healthPort, HealthService, 3*time.Second); err != nil {
		t.Fatalf("health check: %v", err)
	}

	base := "http://" + srv.Addr()
	resp, err := http.Get(base + "/up")
	if err != nil {
		t.Fatalf("GET /up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/up status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	resp = post(t, base+"/v1/sessions", "", "")
	var opened openResponse
	if err := json.NewDecoder(resp.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || opened.SessionID == "" || opened.Token == "" {
		t.Fatalf("open = %d %+v", resp.StatusCode, opened)
	}

	resp = post(t, base+"/v1/sessions/"+opened.SessionID+"/actions", opened.Token,
		`{"actions":[{"key":"6"},{"key":"*"},{"key":"7"},{"key":"Enter"}]}`)
	var state struct {
		Display string `json:"display"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode actions: %v", err)
	}
	resp.Body.Close()
	if state.Display != "42" {
		t.Fatalf("display = %q, want 42", state.Display)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	record, err := store.GetSession(context.Background(), opened.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !record.Closed() {
		t.Fatal("expected session closed on shutdown")
	}
	if record.ActionCount != 4 {
		t.Fatalf("action count = %d, want 4", record.ActionCount)
	}
	page, err := store.ListAuditRecords(context.Background(), storage.AuditQuery{SessionID: opened.SessionID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(page.Records) != 4 {
		t.Fatalf("audit records = %d, want 4", len(page.Records))
	}
	if last := page.Records[3]; last.DisplayValue != "42" || last.Sequence != 4 {
		t.Fatalf("last audit record = %+v", last)
	}
}
