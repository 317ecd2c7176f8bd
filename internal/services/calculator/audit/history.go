package audit

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

// Entry is the wire form of one audit record.
type Entry struct {
	Sequence     int64     `json:"sequence_number"`
	InputType    string    `json:"input_type"`
	InputValue   string    `json:"input_value,omitempty"`
	DisplayValue string    `json:"display_value"`
	HasMemory    bool      `json:"has_memory"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// HistoryPage is the wire form of one page of a session's history.
type HistoryPage struct {
	SessionID     string  `json:"session_id"`
	Entries       []Entry `json:"entries"`
	NextPageToken string  `json:"next_page_token,omitempty"`
}

// ListHistory pages a session's audit trail. Query errors carry the
// INVALID_FILTER and INVALID_PAGE_TOKEN codes.
func ListHistory(ctx context.Context, store storage.AuditStore, query storage.AuditQuery) (HistoryPage, error) {
	page := HistoryPage{SessionID: query.SessionID, Entries: []Entry{}}
	if store == nil {
		return page, nil
	}
	records, err := store.ListAuditRecords(ctx, query)
	switch {
	case errors.Is(err, storage.ErrInvalidFilter):
		return HistoryPage{}, apperrors.Wrap(apperrors.CodeInvalidFilter, err.Error(), err)
	case errors.Is(err, storage.ErrInvalidPageToken):
		return HistoryPage{}, apperrors.Wrap(apperrors.CodeInvalidPageToken, err.Error(), err)
	case err != nil:
		return HistoryPage{}, err
	}
	for _, r := range records.Records {
		page.Entries = append(page.Entries, Entry{
			Sequence:     r.Sequence,
			InputType:    r.InputType,
			InputValue:   r.InputValue,
			DisplayValue: r.DisplayValue,
			HasMemory:    r.HasMemory,
			RecordedAt:   r.RecordedAt,
		})
	}
	page.NextPageToken = records.NextPageToken
	return page, nil
}
