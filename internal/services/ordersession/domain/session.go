package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/lunchroll/internal/platform/id"
)

// SessionStatus is the persisted lifecycle state of an order session.
type SessionStatus string

const (
	// SessionStatusUpcoming indicates the session window has not opened yet.
	SessionStatusUpcoming SessionStatus = "upcoming"
	// SessionStatusActive indicates the session is accepting responses.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusClosed indicates the deadline passed and the sweep resolved
	// all participants, or a manager closed the session early.
	SessionStatusClosed SessionStatus = "closed"
	// SessionStatusCompleted indicates the order was finalized downstream.
	SessionStatusCompleted SessionStatus = "completed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusUpcoming, SessionStatusActive, SessionStatusClosed, SessionStatusCompleted:
		return true
	}
	return false
}

// Phase is the time-derived display state of a session.
type Phase string

const (
	// PhaseUpcoming labels a session before its start time.
	PhaseUpcoming Phase = "upcoming"
	// PhaseActive labels a session inside its response window.
	PhaseActive Phase = "active"
	// PhaseClosed labels a session past its end time with responses outstanding.
	PhaseClosed Phase = "closed"
	// PhaseCompleted labels a closed session with every participant resolved.
	PhaseCompleted Phase = "completed"
)

// OrderSession is a time-boxed invitation for a group to respond about a
// shared restaurant order.
type OrderSession struct {
	ID                string
	CompanyID         string
	RestaurantName    string
	RestaurantOptions []string
	StartTime         time.Time
	EndTime           time.Time
	Status            SessionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateSessionInput describes the metadata needed to open a session.
type CreateSessionInput struct {
	CompanyID         string
	RestaurantName    string
	RestaurantOptions []string
	StartTime         time.Time
	EndTime           time.Time
}

// NewSession builds a session with a generated ID and timestamps. The stored
// status reflects the window position at creation time.
func NewSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (OrderSession, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateSessionInput(input)
	if err != nil {
		return OrderSession{}, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return OrderSession{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	status := SessionStatusUpcoming
	if TimePhase(normalized.StartTime, normalized.EndTime, createdAt) == PhaseActive {
		status = SessionStatusActive
	}
	return OrderSession{
		ID:                sessionID,
		CompanyID:         normalized.CompanyID,
		RestaurantName:    normalized.RestaurantName,
		RestaurantOptions: normalized.RestaurantOptions,
		StartTime:         normalized.StartTime.UTC(),
		EndTime:           normalized.EndTime.UTC(),
		Status:            status,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}, nil
}

// NormalizeCreateSessionInput trims and validates session metadata. It
// enforces the end-after-start invariant before anything is persisted.
func NormalizeCreateSessionInput(input CreateSessionInput) (CreateSessionInput, error) {
	input.CompanyID = strings.TrimSpace(input.CompanyID)
	if input.CompanyID == "" {
		return CreateSessionInput{}, ErrEmptyCompanyID
	}
	input.RestaurantName = strings.TrimSpace(input.RestaurantName)
	if input.RestaurantName == "" {
		return CreateSessionInput{}, ErrEmptyRestaurantName
	}
	if input.StartTime.IsZero() || input.EndTime.IsZero() || !input.EndTime.After(input.StartTime) {
		return CreateSessionInput{}, ErrInvalidTimeWindow
	}
	options := make([]string, 0, len(input.RestaurantOptions))
	for _, option := range input.RestaurantOptions {
		option = strings.TrimSpace(option)
		if option != "" {
			options = append(options, option)
		}
	}
	input.RestaurantOptions = options
	return input, nil
}

// TimePhase derives the display phase purely from the session window. Both
// boundaries are inclusive: the session is active at start and at end.
func TimePhase(start, end, now time.Time) Phase {
	if now.Before(start) {
		return PhaseUpcoming
	}
	if now.After(end) {
		return PhaseClosed
	}
	return PhaseActive
}

// DisplayPhase labels a session for presentation. Past the deadline the label
// upgrades to completed once no participant remains pending.
func DisplayPhase(session OrderSession, participants []Participant, now time.Time) Phase {
	phase := TimePhase(session.StartTime, session.EndTime, now)
	if phase != PhaseClosed {
		return phase
	}
	for _, p := range participants {
		if p.Status == ParticipantStatusPending {
			return PhaseClosed
		}
	}
	return PhaseCompleted
}

// RoutingPhase is the phase used for persisted routing decisions: an explicit
// closed or completed status set by the sweeper or a manager wins over the
// time-derived phase.
func RoutingPhase(session OrderSession, now time.Time) Phase {
	switch session.Status {
	case SessionStatusClosed:
		return PhaseClosed
	case SessionStatusCompleted:
		return PhaseCompleted
	}
	return TimePhase(session.StartTime, session.EndTime, now)
}
