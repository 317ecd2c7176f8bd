// Package sqlite provides a SQLite-backed calculator storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/examdesk/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/examdesk/internal/services/calculator/filter"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists calculator sessions and audit records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens a SQLite calculator store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// CreateSession inserts one session record.
func (s *Store) CreateSession(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	openedAt := record.OpenedAt.UTC()
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO calculator_sessions (id, opened_at, closed_at, action_count)
		 VALUES (?, ?, 0, 0)`,
		id,
		toMillis(openedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns one session record by ID.
func (s *Store) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}

	var (
		record   storage.SessionRecord
		openedAt int64
		closedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, opened_at, closed_at, action_count
		   FROM calculator_sessions
		  WHERE id = ?`,
		id,
	).Scan(&record.ID, &openedAt, &closedAt, &record.ActionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	record.OpenedAt = fromMillis(openedAt)
	if closedAt != 0 {
		record.ClosedAt = fromMillis(closedAt)
	}
	return record, nil
}

// CloseSession stamps a session as closed with its final action count.
// Closing an already closed session keeps the first close time.
func (s *Store) CloseSession(ctx context.Context, id string, closedAt time.Time, actionCount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if closedAt.IsZero() {
		closedAt = time.Now()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE calculator_sessions
		    SET closed_at = CASE WHEN closed_at = 0 THEN ? ELSE closed_at END,
		        action_count = MAX(action_count, ?)
		  WHERE id = ?`,
		toMillis(closedAt),
		actionCount,
		id,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendAuditRecord inserts one audit record. Sequence numbers are unique
// per session.
func (s *Store) AppendAuditRecord(ctx context.Context, record storage.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(record.SessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if record.Sequence <= 0 {
		return fmt.Errorf("sequence must be greater than zero")
	}
	if strings.TrimSpace(record.InputType) == "" {
		return fmt.Errorf("input type is required")
	}
	recordedAt := record.RecordedAt.UTC()
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO calculator_audit_records (
		   session_id,
		   sequence,
		   input_type,
		   input_value,
		   display_value,
		   has_memory,
		   recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		record.Sequence,
		record.InputType,
		record.InputValue,
		record.DisplayValue,
		boolToInt(record.HasMemory),
		toMillis(recordedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns one page of a session's audit records ordered by
// sequence. The page token is the last sequence of the previous page.
func (s *Store) ListAuditRecords(ctx context.Context, query storage.AuditQuery) (storage.AuditRecordPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.AuditRecordPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AuditRecordPage{}, fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(query.SessionID)
	if sessionID == "" {
		return storage.AuditRecordPage{}, fmt.Errorf("session id is required")
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	if pageSize > storage.MaxPageSize {
		pageSize = storage.MaxPageSize
	}

	var after int64
	if token := strings.TrimSpace(query.PageToken); token != "" {
		parsed, err := strconv.ParseInt(token, 10, 64)
		if err != nil || parsed < 0 {
			return storage.AuditRecordPage{}, fmt.Errorf("%w: %q", storage.ErrInvalidPageToken, token)
		}
		after = parsed
	}

	cond, err := filter.ParseAuditFilter(query.Filter)
	if err != nil {
		return storage.AuditRecordPage{}, fmt.Errorf("%w: %v", storage.ErrInvalidFilter, err)
	}

	clause := "session_id = ? AND sequence > ?"
	params := []any{sessionID, after}
	if !cond.Empty() {
		clause += " AND " + cond.Clause
		params = append(params, cond.Params...)
	}
	params = append(params, pageSize+1)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT session_id, sequence, input_type, input_value,
		        display_value, has_memory, recorded_at
		   FROM calculator_audit_records
		  WHERE `+clause+`
		  ORDER BY sequence ASC
		  LIMIT ?`,
		params...,
	)
	if err != nil {
		return storage.AuditRecordPage{}, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	page := storage.AuditRecordPage{
		Records: make([]storage.AuditRecord, 0, pageSize),
	}
	for rows.Next() {
		var (
			record     storage.AuditRecord
			hasMemory  int
			recordedAt int64
		)
		if err := rows.Scan(
			&record.SessionID,
			&record.Sequence,
			&record.InputType,
			&record.InputValue,
			&record.DisplayValue,
			&hasMemory,
			&recordedAt,
		); err != nil {
			return storage.AuditRecordPage{}, fmt.Errorf("list audit records: %w", err)
		}
		record.HasMemory = hasMemory != 0
		record.RecordedAt = fromMillis(recordedAt)
		page.Records = append(page.Records, record)
	}
	if err := rows.Err(); err != nil {
		return storage.AuditRecordPage{}, fmt.Errorf("list audit records: %w", err)
	}
	if len(page.Records) > pageSize {
		page.NextPageToken = strconv.FormatInt(page.Records[pageSize-1].Sequence, 10)
		page.Records = page.Records[:pageSize]
	}
	return page, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
