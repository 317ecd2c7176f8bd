// Package storage defines persistence contracts for calculator sessions and
// their audit trail.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested calculator record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInvalidPageToken indicates a page token that no page produced.
	ErrInvalidPageToken = errors.New("invalid page token")
	// ErrInvalidFilter indicates an audit filter that does not parse.
	ErrInvalidFilter = errors.New("invalid filter")
)

const (
	// DefaultPageSize applies when a query leaves PageSize unset.
	DefaultPageSize = 50
	// MaxPageSize caps PageSize.
	MaxPageSize = 200
)

// AuditRecord is one processed calculator action.
type AuditRecord struct {
	SessionID    string
	Sequence     int64
	InputType    string
	InputValue   string
	DisplayValue string
	HasMemory    bool
	RecordedAt   time.Time
}

// AuditRecordPage stores one page of audit records ordered by sequence.
type AuditRecordPage struct {
	Records       []AuditRecord
	NextPageToken string
}

// AuditQuery selects audit records for one session.
type AuditQuery struct {
	SessionID string
	PageSize  int
	// PageToken is the opaque token returned by a previous page.
	PageToken string
	// Filter is an AIP-160 expression over audit fields.
	Filter string
}

// SessionRecord tracks the lifetime of one calculator session.
type SessionRecord struct {
	ID          string
	OpenedAt    time.Time
	ClosedAt    time.Time
	ActionCount int64
}

// Closed reports whether the session has been closed.
func (r SessionRecord) Closed() bool {
	return !r.ClosedAt.IsZero()
}

// AuditStore persists calculator audit records.
type AuditStore interface {
	AppendAuditRecord(ctx context.Context, record AuditRecord) error
	ListAuditRecords(ctx context.Context, query AuditQuery) (AuditRecordPage, error)
}

// SessionStore persists calculator session lifetimes.
type SessionStore interface {
	CreateSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	CloseSession(ctx context.Context, id string, closedAt time.Time, actionCount int64) error
}

// Store combines every calculator persistence contract.
type Store interface {
	AuditStore
	SessionStore
}
