package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "calculator.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := second.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = second.Close()
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	opened := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	if err := store.CreateSession(ctx, storage.SessionRecord{ID: "sess-1", OpenedAt: opened}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.CreateSession(ctx, storage.SessionRecord{ID: "sess-1", OpenedAt: opened}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.OpenedAt.Equal(opened) {
		t.Fatalf("opened_at = %v, want %v", got.OpenedAt, opened)
	}
	if got.Closed() {
		t.Fatal("new session should not be closed")
	}

	closed := opened.Add(5 * time.Minute)
	if err := store.CloseSession(ctx, "sess-1", closed, 12); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if err := store.CloseSession(ctx, "sess-1", closed.Add(time.Hour), 3); err != nil {
		t.Fatalf("close session again: %v", err)
	}
	got, err = store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get closed session: %v", err)
	}
	if !got.ClosedAt.Equal(closed) {
		t.Fatalf("closed_at = %v, want %v", got.ClosedAt, closed)
	}
	if got.ActionCount != 12 {
		t.Fatalf("action_count = %d, want 12", got.ActionCount)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.CloseSession(context.Background(), "missing", time.Now(), 0); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("close missing error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestAppendAuditRecordRejectsDuplicateSequence(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	record := storage.AuditRecord{
		SessionID:    "sess-1",
		Sequence:     1,
		InputType:    "digit",
		InputValue:   "7",
		DisplayValue: "7",
		RecordedAt:   time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	if err := store.AppendAuditRecord(context.Background(), record); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendAuditRecord(context.Background(), record); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate append error = %v, want %v", err, storage.ErrAlreadyExists)
	}
}

func TestAppendAuditRecordValidates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	for _, record := range []storage.AuditRecord{
		{Sequence: 1, InputType: "digit"},
		{SessionID: "s", Sequence: 0, InputType: "digit"},
		{SessionID: "s", Sequence: 1},
	} {
		if err := store.AppendAuditRecord(context.Background(), record); err == nil {
			t.Fatalf("expected validation error for %+v", record)
		}
	}
}

func TestListAuditRecordsPaginates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	seedAuditRecords(t, store, "sess-1", 5)
	seedAuditRecords(t, store, "sess-2", 2)

	ctx := context.Background()
	first, err := store.ListAuditRecords(ctx, storage.AuditQuery{SessionID: "sess-1", PageSize: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Records) != 2 {
		t.Fatalf("first page len = %d, want 2", len(first.Records))
	}
	if first.NextPageToken != "2" {
		t.Fatalf("next page token = %q, want %q", first.NextPageToken, "2")
	}

	var sequences []int64
	page := first
	for {
		for _, r := range page.Records {
			if r.SessionID != "sess-1" {
				t.Fatalf("record from session %q leaked into page", r.SessionID)
			}
			sequences = append(sequences, r.Sequence)
		}
		if page.NextPageToken == "" {
			break
		}
		page, err = store.ListAuditRecords(ctx, storage.AuditQuery{
			SessionID: "sess-1",
			PageSize:  2,
			PageToken: page.NextPageToken,
		})
		if err != nil {
			t.Fatalf("list next page: %v", err)
		}
	}
	if len(sequences) != 5 {
		t.Fatalf("sequences = %v, want 5 records", sequences)
	}
	for i, seq := range sequences {
		if seq != int64(i+1) {
			t.Fatalf("sequences = %v, want ascending from 1", sequences)
		}
	}
}

func TestListAuditRecordsFilter(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	records := []storage.AuditRecord{
		{Sequence: 1, InputType: "digit", InputValue: "5", DisplayValue: "5"},
		{Sequence: 2, InputType: "memory", InputValue: "add", DisplayValue: "5", HasMemory: true},
		{Sequence: 3, InputType: "operator", InputValue: "+", DisplayValue: "5", HasMemory: true},
		{Sequence: 4, InputType: "digit", InputValue: "3", DisplayValue: "3", HasMemory: true},
	}
	for i, r := range records {
		r.SessionID = "sess-1"
		r.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.AppendAuditRecord(ctx, r); err != nil {
			t.Fatalf("append %d: %v", r.Sequence, err)
		}
	}

	tests := []struct {
		filter string
		want   []int64
	}{
		{filter: `input_type = "digit"`, want: []int64{1, 4}},
		{filter: `has_memory = true AND sequence > 2`, want: []int64{3, 4}},
		{filter: `recorded_at >= "2026-03-02T09:02:00Z"`, want: []int64{3, 4}},
		{filter: `input_value = "+" OR input_value = "add"`, want: []int64{2, 3}},
	}
	for _, tt := range tests {
		page, err := store.ListAuditRecords(ctx, storage.AuditQuery{SessionID: "sess-1", Filter: tt.filter})
		if err != nil {
			t.Fatalf("list %q: %v", tt.filter, err)
		}
		var got []int64
		for _, r := range page.Records {
			got = append(got, r.Sequence)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("filter %q = %v, want %v", tt.filter, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("filter %q = %v, want %v", tt.filter, got, tt.want)
			}
		}
	}
}

func TestListAuditRecordsRejectsBadInput(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if _, err := store.ListAuditRecords(ctx, storage.AuditQuery{SessionID: "s", PageToken: "abc"}); !errors.Is(err, storage.ErrInvalidPageToken) {
		t.Fatalf("bad token error = %v, want %v", err, storage.ErrInvalidPageToken)
	}
	if _, err := store.ListAuditRecords(ctx, storage.AuditQuery{SessionID: "s", Filter: `nope = 1`}); !errors.Is(err, storage.ErrInvalidFilter) {
		t.Fatalf("bad filter error = %v, want %v", err, storage.ErrInvalidFilter)
	}
	if _, err := store.ListAuditRecords(ctx, storage.AuditQuery{}); err == nil {
		t.Fatal("expected missing session id error")
	}
}

func TestRecordRoundTripsFields(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	at := time.Date(2026, time.March, 2, 9, 0, 0, 123_000_000, time.UTC)
	in := storage.AuditRecord{
		SessionID:    "sess-1",
		Sequence:     1,
		InputType:    "unary",
		InputValue:   "sqrt",
		DisplayValue: "Error",
		HasMemory:    true,
		RecordedAt:   at,
	}
	if err := store.AppendAuditRecord(context.Background(), in); err != nil {
		t.Fatalf("append: %v", err)
	}
	page, err := store.ListAuditRecords(context.Background(), storage.AuditQuery{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(page.Records))
	}
	got := page.Records[0]
	if !got.RecordedAt.Equal(at) {
		t.Fatalf("recorded_at = %v, want %v", got.RecordedAt, at)
	}
	got.RecordedAt = at
	if got != in {
		t.Fatalf("record = %+v, want %+v", got, in)
	}
}

func seedAuditRecords(t *testing.T, store *Store, sessionID string, n int) {
	t.Helper()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		err := store.AppendAuditRecord(context.Background(), storage.AuditRecord{
			SessionID:    sessionID,
			Sequence:     int64(i),
			InputType:    "digit",
			InputValue:   "1",
			DisplayValue: "1",
			RecordedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed %s/%d: %v", sessionID, i, err)
		}
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "calculator.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
