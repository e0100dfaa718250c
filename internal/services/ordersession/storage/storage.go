// Package storage defines the persistence boundary for order sessions,
// participants, and notification acknowledgment state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested session or participant record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with the current record state.
	ErrConflict = errors.New("record conflict")
)

// SessionRecord stores one order-session row.
type SessionRecord struct {
	ID                string
	CompanyID         string
	RestaurantName    string
	RestaurantOptions []string
	StartTime         time.Time
	EndTime           time.Time
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParticipantRecord stores one participant response row, unique by
// (SessionID, UserID).
type ParticipantRecord struct {
	SessionID   string
	UserID      string
	UserName    string
	Status      string
	PresetOrder string
	UpdatedAt   time.Time
}

// SessionStore persists session lifecycle state. Status updates are
// compare-and-swap: the write applies only when the stored status matches the
// expected one, and returns ErrConflict otherwise.
type SessionStore interface {
	PutSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListActiveSessions(ctx context.Context, companyID string) ([]SessionRecord, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, expected, next string, updatedAt time.Time) error
	UpdateSessionTimes(ctx context.Context, sessionID string, start, end, updatedAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// ParticipantStore persists participant response state. UpsertParticipant is
// a single atomic write keyed on (session id, user id); concurrent writes by
// the same user resolve to last write wins.
type ParticipantStore interface {
	UpsertParticipant(ctx context.Context, record ParticipantRecord) error
	GetParticipant(ctx context.Context, sessionID, userID string) (ParticipantRecord, error)
	ListParticipants(ctx context.Context, sessionID string) ([]ParticipantRecord, error)
}

// AckStore persists per-observer notification dismissals. Dismissal is
// presentation state only; it never touches session or participant rows.
type AckStore interface {
	DismissEvent(ctx context.Context, observerKey, eventID string, dismissedAt time.Time) error
	ListDismissedEvents(ctx context.Context, observerKey string) ([]string, error)
	ClearDismissals(ctx context.Context, observerKey string) error
}
