// Package sqlite provides SQLite-backed persistence for order-session state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/lunchroll/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/lunchroll/internal/services/ordersession/storage"
	"github.com/louisbranch/lunchroll/internal/services/ordersession/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for sessions, participants, and
// notification dismissals.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an ordersession SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// PutSession persists one session row. An existing row with the same ID is
// replaced in full.
func (s *Store) PutSession(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeSessionRecord(record)
	if err != nil {
		return err
	}
	options, err := json.Marshal(normalized.RestaurantOptions)
	if err != nil {
		return fmt.Errorf("encode restaurant options: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO order_sessions (id, company_id, restaurant_name, restaurant_options, start_time, end_time, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    company_id = excluded.company_id,
    restaurant_name = excluded.restaurant_name,
    restaurant_options = excluded.restaurant_options,
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    status = excluded.status,
    updated_at = excluded.updated_at
`,
		normalized.ID,
		normalized.CompanyID,
		normalized.RestaurantName,
		string(options),
		toMillis(normalized.StartTime),
		toMillis(normalized.EndTime),
		normalized.Status,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession returns one session row by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, company_id, restaurant_name, restaurant_options, start_time, end_time, status, created_at, updated_at
FROM order_sessions
WHERE id = ?
`, sessionID)
	return scanSessionRow(row)
}

// ListActiveSessions returns a company's sessions with active status, oldest
// deadline first.
func (s *Store) ListActiveSessions(ctx context.Context, companyID string) ([]storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, fmt.Errorf("company id is required")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, company_id, restaurant_name, restaurant_options, start_time, end_time, status, created_at, updated_at
FROM order_sessions
WHERE company_id = ? AND status = 'active'
ORDER BY end_time ASC
`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.SessionRecord
	for rows.Next() {
		record, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}
	return records, nil
}

// UpdateSessionStatus swaps the session status only when the stored status
// matches the expected one.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, expected, next string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE order_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?
`, next, toMillis(updatedAt), sessionID, expected)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check session status update: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetSession(ctx, sessionID); errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// UpdateSessionTimes edits the session window. The schema re-enforces the
// end-after-start invariant.
func (s *Store) UpdateSessionTimes(ctx context.Context, sessionID string, start, end, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE order_sessions SET start_time = ?, end_time = ?, updated_at = ? WHERE id = ?
`, toMillis(start), toMillis(end), toMillis(updatedAt), sessionID)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("update session times: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check session times update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSession removes one session; participant rows cascade.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM order_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check session delete: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpsertParticipant writes one participant row keyed by (session id, user
// id) in a single atomic statement; last write wins.
func (s *Store) UpsertParticipant(ctx context.Context, record storage.ParticipantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeParticipantRecord(record)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO session_participants (session_id, user_id, user_name, status, preset_order, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, user_id) DO UPDATE SET
    user_name = excluded.user_name,
    status = excluded.status,
    preset_order = excluded.preset_order,
    updated_at = excluded.updated_at
`,
		normalized.SessionID,
		normalized.UserID,
		normalized.UserName,
		normalized.Status,
		normalized.PresetOrder,
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// GetParticipant returns one participant row.
func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (storage.ParticipantRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ParticipantRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ParticipantRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT session_id, user_id, user_name, status, preset_order, updated_at
FROM session_participants
WHERE session_id = ? AND user_id = ?
`, strings.TrimSpace(sessionID), strings.TrimSpace(userID))

	var record storage.ParticipantRecord
	var updatedAt int64
	if err := row.Scan(&record.SessionID, &record.UserID, &record.UserName, &record.Status, &record.PresetOrder, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ParticipantRecord{}, storage.ErrNotFound
		}
		return storage.ParticipantRecord{}, fmt.Errorf("get participant: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListParticipants returns a session's participant rows ordered by user id
// for stable iteration.
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]storage.ParticipantRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, user_id, user_name, status, preset_order, updated_at
FROM session_participants
WHERE session_id = ?
ORDER BY user_id ASC
`, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []storage.ParticipantRecord
	for rows.Next() {
		var record storage.ParticipantRecord
		var updatedAt int64
		if err := rows.Scan(&record.SessionID, &record.UserID, &record.UserName, &record.Status, &record.PresetOrder, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return records, nil
}

// DismissEvent records one observer's dismissal of a notification event.
// Re-dismissing is a no-op.
func (s *Store) DismissEvent(ctx context.Context, observerKey, eventID string, dismissedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	observerKey = strings.TrimSpace(observerKey)
	eventID = strings.TrimSpace(eventID)
	if observerKey == "" || eventID == "" {
		return fmt.Errorf("observer key and event id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO notification_dismissals (observer_key, event_id, dismissed_at)
VALUES (?, ?, ?)
`, observerKey, eventID, toMillis(dismissedAt))
	if err != nil {
		return fmt.Errorf("dismiss event: %w", err)
	}
	return nil
}

// ListDismissedEvents returns the event ids this observer has dismissed.
func (s *Store) ListDismissedEvents(ctx context.Context, observerKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id FROM notification_dismissals WHERE observer_key = ?
`, strings.TrimSpace(observerKey))
	if err != nil {
		return nil, fmt.Errorf("list dismissed events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dismissed event: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dismissed events: %w", err)
	}
	return ids, nil
}

// ClearDismissals removes all dismissals for one observer.
func (s *Store) ClearDismissals(ctx context.Context, observerKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM notification_dismissals WHERE observer_key = ?
`, strings.TrimSpace(observerKey))
	if err != nil {
		return fmt.Errorf("clear dismissals: %w", err)
	}
	return nil
}

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row *sql.Row) (storage.SessionRecord, error) {
	record, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, err
	}
	return record, nil
}

func scanSessionRows(rows *sql.Rows) (storage.SessionRecord, error) {
	return scanSession(rows)
}

func scanSession(scanner sessionScanner) (storage.SessionRecord, error) {
	var record storage.SessionRecord
	var options string
	var start, end, created, updated int64
	if err := scanner.Scan(
		&record.ID,
		&record.CompanyID,
		&record.RestaurantName,
		&options,
		&start,
		&end,
		&record.Status,
		&created,
		&updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, err
		}
		return storage.SessionRecord{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &record.RestaurantOptions); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("decode restaurant options: %w", err)
	}
	record.StartTime = fromMillis(start)
	record.EndTime = fromMillis(end)
	record.CreatedAt = fromMillis(created)
	record.UpdatedAt = fromMillis(updated)
	return record, nil
}

func normalizeSessionRecord(record storage.SessionRecord) (storage.SessionRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}
	record.CompanyID = strings.TrimSpace(record.CompanyID)
	if record.CompanyID == "" {
		return storage.SessionRecord{}, fmt.Errorf("company id is required")
	}
	record.RestaurantName = strings.TrimSpace(record.RestaurantName)
	if record.RestaurantName == "" {
		return storage.SessionRecord{}, fmt.Errorf("restaurant name is required")
	}
	record.Status = strings.TrimSpace(record.Status)
	if record.Status == "" {
		return storage.SessionRecord{}, fmt.Errorf("session status is required")
	}
	if record.RestaurantOptions == nil {
		record.RestaurantOptions = []string{}
	}
	return record, nil
}

func normalizeParticipantRecord(record storage.ParticipantRecord) (storage.ParticipantRecord, error) {
	record.SessionID = strings.TrimSpace(record.SessionID)
	if record.SessionID == "" {
		return storage.ParticipantRecord{}, fmt.Errorf("session id is required")
	}
	record.UserID = strings.TrimSpace(record.UserID)
	if record.UserID == "" {
		return storage.ParticipantRecord{}, fmt.Errorf("user id is required")
	}
	record.Status = strings.TrimSpace(record.Status)
	if record.Status == "" {
		return storage.ParticipantRecord{}, fmt.Errorf("participant status is required")
	}
	return record, nil
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "constraint") || strings.Contains(value, "unique")
}
