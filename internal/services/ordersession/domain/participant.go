package domain

import (
	"strings"
	"time"
)

// ParticipantStatus is a participant's response state within a session.
type ParticipantStatus string

const (
	// ParticipantStatusPending indicates no response yet.
	ParticipantStatusPending ParticipantStatus = "pending"
	// ParticipantStatusOrdered indicates the participant placed an order.
	ParticipantStatusOrdered ParticipantStatus = "ordered"
	// ParticipantStatusPassed indicates the participant opted out.
	ParticipantStatusPassed ParticipantStatus = "passed"
	// ParticipantStatusPreset indicates the participant sent a preset message
	// instead of ordering themselves.
	ParticipantStatusPreset ParticipantStatus = "preset"
)

// AutoPassNote is the sentinel preset order distinguishing sweep-driven passes
// from manual ones. Auto-passed and manually passed participants share the
// passed status and differ only in this field.
const AutoPassNote = "Auto-passed due to deadline"

// FallbackUserName labels a participant whose display name could not be
// resolved. Identity lookups are best-effort and never block a write.
const FallbackUserName = "Team member"

// Valid reports whether the status is a known response state.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantStatusPending, ParticipantStatusOrdered, ParticipantStatusPassed, ParticipantStatusPreset:
		return true
	}
	return false
}

// Participant is one user's response record within a session. Rows are unique
// by (SessionID, UserID); a participant may change their response any number
// of times before the deadline, last write wins.
type Participant struct {
	SessionID   string
	UserID      string
	UserName    string
	Status      ParticipantStatus
	PresetOrder string
	UpdatedAt   time.Time
}

// AutoPassed reports whether this participant was resolved by the deadline
// sweep rather than by their own pass.
func (p Participant) AutoPassed() bool {
	return p.Status == ParticipantStatusPassed && p.PresetOrder == AutoPassNote
}

// ApplyResponse validates a response transition and returns the updated row.
// PresetOrder is cleared unless the response is preset; a preset response
// requires a non-empty preset order.
func ApplyResponse(p Participant, response ParticipantStatus, presetOrder string, now time.Time) (Participant, error) {
	if !response.Valid() || response == ParticipantStatusPending {
		return Participant{}, ErrInvalidResponse
	}
	presetOrder = strings.TrimSpace(presetOrder)
	if response == ParticipantStatusPreset {
		if presetOrder == "" {
			return Participant{}, ErrMissingPresetOrder
		}
	} else {
		presetOrder = ""
	}
	p.Status = response
	p.PresetOrder = presetOrder
	p.UpdatedAt = now.UTC()
	return p, nil
}

// AutoPass force-transitions a pending participant to passed with the
// deadline sentinel. The sweep applies this through the same upsert path as a
// manual response.
func AutoPass(p Participant, now time.Time) Participant {
	p.Status = ParticipantStatusPassed
	p.PresetOrder = AutoPassNote
	p.UpdatedAt = now.UTC()
	return p
}
