package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

type failingAuditStore struct {
	fakeAuditStore
	listErr error
}

func (s *failingAuditStore) ListAuditRecords(context.Context, storage.AuditQuery) (storage.AuditRecordPage, error) {
	return storage.AuditRecordPage{}, s.listErr
}

func TestListHistoryConvertsRecords(t *testing.T) {
	store := &fakeAuditStore{}
	_ = store.AppendAuditRecord(context.Background(), storage.AuditRecord{SessionID: "s", Sequence: 1, InputType: "digit", InputValue: "4", DisplayValue: "4"})
	_ = store.AppendAuditRecord(context.Background(), storage.AuditRecord{SessionID: "other", Sequence: 1, InputType: "dot", DisplayValue: "0."})

	page, err := ListHistory(context.Background(), store, storage.AuditQuery{SessionID: "s"})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].DisplayValue != "4" {
		t.Fatalf("entries = %+v", page.Entries)
	}
}

func TestListHistoryMapsQueryErrors(t *testing.T) {
	tests := []struct {
		err  error
		code apperrors.Code
	}{
		{err: fmt.Errorf("%w: bad", storage.ErrInvalidFilter), code: apperrors.CodeInvalidFilter},
		{err: fmt.Errorf("%w: bad", storage.ErrInvalidPageToken), code: apperrors.CodeInvalidPageToken},
		{err: errors.New("disk"), code: apperrors.CodeUnknown},
	}
	for _, tt := range tests {
		_, err := ListHistory(context.Background(), &failingAuditStore{listErr: tt.err}, storage.AuditQuery{SessionID: "s"})
		if got := apperrors.CodeOf(err); got != tt.code {
			t.Fatalf("code for %v = %s, want %s", tt.err, got, tt.code)
		}
	}
}

func TestListHistoryWithoutStore(t *testing.T) {
	page, err := ListHistory(context.Background(), nil, storage.AuditQuery{SessionID: "s"})
	if err != nil || len(page.Entries) != 0 || page.SessionID != "s" {
		t.Fatalf("page = %+v, err = %v", page, err)
	}
}
