// Package audit persists the history of calculator actions. The engine does
// not depend on it; the recorder attaches to sessions as an observer.
package audit

import (
	"context"
	"time"

	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

// Emitter records calculator audit records.
type Emitter struct {
	store storage.AuditStore
	clock func() time.Time
}

// NewEmitter creates a new audit record emitter.
func NewEmitter(store storage.AuditStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records an audit record. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, record storage.AuditRecord) error {
	if e == nil || e.store == nil {
		return nil
	}
	if record.RecordedAt.IsZero() {
		if e.clock == nil {
			record.RecordedAt = time.Now().UTC()
		} else {
			record.RecordedAt = e.clock().UTC()
		}
	}
	return e.store.AppendAuditRecord(ctx, record)
}
