package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Role identifies the observer consuming session state and notifications.
type Role string

const (
	// RoleManager observes per-participant transitions across the session.
	RoleManager Role = "manager"
	// RoleTeamMember observes their own deadline reminders and outcome.
	RoleTeamMember Role = "team_member"
)

// Valid reports whether the role is a known observer role.
func (r Role) Valid() bool {
	return r == RoleManager || r == RoleTeamMember
}

// Notification event types.
const (
	EventParticipantOrdered  = "participant_ordered"
	EventParticipantPassed   = "participant_passed"
	EventParticipantPreset   = "participant_preset"
	EventSummaryPending      = "summary_pending"
	EventSummaryOrdered      = "summary_ordered"
	EventSessionEndingSoon   = "session_ending_soon"
	EventSessionCreated      = "session_created"
	EventDeadlineReminder2H  = "deadline_reminder_2h"
	EventDeadlineReminder30M = "deadline_reminder_30m"
	EventDeadlinePassed      = "deadline_passed"
)

// Notification is one ephemeral, role-scoped event derived from participant
// snapshot deltas. It is never authoritative state; the same transition
// re-observed within the same second yields the same ID.
type Notification struct {
	ID        string
	Type      string
	Title     string
	Message   string
	Timestamp time.Time
	SessionID string
	UserID    string
	UserName  string
}

// ObserverState is the explicit per-observer memory the engine needs between
// observation cycles: the previous participant snapshot, the rolling set of
// emitted event ids, the last generation time, and one-shot markers. Callers
// own this state; the engine never keeps module-level mutable state.
type ObserverState struct {
	Initialized     bool
	LastGeneratedAt time.Time
	PrevStatuses    map[string]ParticipantStatus
	SeenIDs         map[string]time.Time
	Fired           map[string]bool
	Events          []Notification
}

// ObserveInput carries one observation cycle's inputs.
type ObserveInput struct {
	Session        OrderSession
	Participants   []Participant
	Role           Role
	ObserverUserID string
}

// Engine diffs successive participant snapshots and emits typed, deduplicated
// notification events.
type Engine struct {
	debounce     time.Duration
	seenTTL      time.Duration
	historyLimit int
	endingSoon   time.Duration
	reminderFar  time.Duration
	reminderNear time.Duration
}

// NewEngine returns an engine with the default guard interval (2s), seen-id
// retention (5m), manager history cap (10), and reminder thresholds.
func NewEngine() *Engine {
	return &Engine{
		debounce:     2 * time.Second,
		seenTTL:      5 * time.Minute,
		historyLimit: 10,
		endingSoon:   5 * time.Minute,
		reminderFar:  2 * time.Hour,
		reminderNear: 30 * time.Minute,
	}
}

// Observe diffs the current snapshot against state and returns the events the
// observer should see plus the successor state. Within the guard interval a
// non-first observation skips generation entirely and returns the retained
// view unchanged.
func (e *Engine) Observe(in ObserveInput, state ObserverState, now time.Time) ([]Notification, ObserverState) {
	now = now.UTC()
	state = cloneObserverState(state)

	if state.Initialized && now.Sub(state.LastGeneratedAt) < e.debounce {
		return state.Events, state
	}

	pruneSeenIDs(state.SeenIDs, now, e.seenTTL)

	var fresh []Notification
	emit := func(eventType, userID, userName, title, message string) {
		id := eventID(eventType, userID, in.Session.ID, now)
		if _, seen := state.SeenIDs[id]; seen {
			return
		}
		state.SeenIDs[id] = now
		fresh = append(fresh, Notification{
			ID:        id,
			Type:      eventType,
			Title:     title,
			Message:   message,
			Timestamp: now,
			SessionID: in.Session.ID,
			UserID:    userID,
			UserName:  userName,
		})
	}
	fireOnce := func(marker string, fire func()) {
		if state.Fired[marker] {
			return
		}
		state.Fired[marker] = true
		fire()
	}

	switch in.Role {
	case RoleTeamMember:
		e.observeTeamMember(in, &state, now, emit, fireOnce)
		// Team-member events are point-in-time reminders, not a log: the view
		// is replaced every cycle.
		state.Events = fresh
	default:
		e.observeManager(in, &state, now, emit, fireOnce)
		// Manager history keeps the most recent events, newest first.
		state.Events = append(reverse(fresh), state.Events...)
		if len(state.Events) > e.historyLimit {
			state.Events = state.Events[:e.historyLimit]
		}
	}

	state.PrevStatuses = snapshotStatuses(in.Participants)
	state.LastGeneratedAt = now
	state.Initialized = true
	return state.Events, state
}

func (e *Engine) observeManager(in ObserveInput, state *ObserverState, now time.Time, emit func(eventType, userID, userName, title, message string), fireOnce func(string, func())) {
	if !state.Initialized {
		// Steady-state facts are announced once, on first observation only.
		pending, ordered := 0, 0
		for _, p := range in.Participants {
			switch p.Status {
			case ParticipantStatusPending:
				pending++
			case ParticipantStatusOrdered:
				ordered++
			}
		}
		if pending > 0 {
			emit(EventSummaryPending, "", "", "Awaiting responses",
				fmt.Sprintf("%d participant(s) have not responded yet", pending))
		}
		if ordered > 0 {
			emit(EventSummaryOrdered, "", "", "Orders placed",
				fmt.Sprintf("%d participant(s) have ordered", ordered))
		}
	} else {
		for _, p := range in.Participants {
			prev, known := state.PrevStatuses[p.UserID]
			if known && prev == p.Status {
				continue
			}
			switch p.Status {
			case ParticipantStatusOrdered:
				emit(EventParticipantOrdered, p.UserID, p.UserName, "Order placed",
					fmt.Sprintf("%s placed an order", p.UserName))
			case ParticipantStatusPassed:
				message := fmt.Sprintf("%s passed on this order", p.UserName)
				if p.AutoPassed() {
					message = fmt.Sprintf("%s was auto-passed at the deadline", p.UserName)
				}
				emit(EventParticipantPassed, p.UserID, p.UserName, "Passed", message)
			case ParticipantStatusPreset:
				emit(EventParticipantPreset, p.UserID, p.UserName, "Preset order",
					fmt.Sprintf("%s sent a preset order: %s", p.UserName, p.PresetOrder))
			}
		}
	}

	remaining := in.Session.EndTime.Sub(now)
	if TimePhase(in.Session.StartTime, in.Session.EndTime, now) == PhaseActive && remaining <= e.endingSoon {
		fireOnce("manager_ending_soon", func() {
			emit(EventSessionEndingSoon, "", "", "Session ending soon",
				fmt.Sprintf("The order window for %s closes in %d minute(s)", in.Session.RestaurantName, int(remaining.Minutes())+1))
		})
	}
}

func (e *Engine) observeTeamMember(in ObserveInput, state *ObserverState, now time.Time, emit func(eventType, userID, userName, title, message string), fireOnce func(string, func())) {
	if !state.Initialized {
		fireOnce("member_created", func() {
			emit(EventSessionCreated, in.ObserverUserID, "", "New order session",
				fmt.Sprintf("An order session for %s is open until %s", in.Session.RestaurantName, in.Session.EndTime.Format("15:04")))
		})
	}

	var self Participant
	found := false
	for _, p := range in.Participants {
		if p.UserID == in.ObserverUserID {
			self = p
			found = true
			break
		}
	}
	if !found {
		return
	}

	phase := TimePhase(in.Session.StartTime, in.Session.EndTime, now)
	remaining := in.Session.EndTime.Sub(now)

	if phase == PhaseActive && self.Status == ParticipantStatusPending {
		if remaining < e.reminderNear {
			fireOnce("member_reminder_30m", func() {
				emit(EventDeadlineReminder30M, self.UserID, self.UserName, "Last call",
					fmt.Sprintf("Less than 30 minutes left to respond for %s", in.Session.RestaurantName))
			})
		} else if remaining < e.reminderFar {
			fireOnce("member_reminder_2h", func() {
				emit(EventDeadlineReminder2H, self.UserID, self.UserName, "Reminder",
					fmt.Sprintf("Less than 2 hours left to respond for %s", in.Session.RestaurantName))
			})
		}
	}

	if phase == PhaseClosed {
		fireOnce("member_deadline_passed", func() {
			var message string
			switch {
			case self.AutoPassed():
				message = "The deadline passed before you responded, so you were automatically passed"
			case self.Status == ParticipantStatusPassed:
				message = "The deadline passed; you chose to pass on this order"
			case self.Status == ParticipantStatusPreset:
				message = "The deadline passed; your preset order was sent"
			case self.Status == ParticipantStatusOrdered:
				message = "The deadline passed; your order is in"
			default:
				message = "The order deadline has passed"
			}
			emit(EventDeadlinePassed, self.UserID, self.UserName, "Deadline passed", message)
		})
	}
}

// eventID derives a deterministic event identity from the event content and
// the emission second, so re-observing the same transition within the same
// second never double-emits.
func eventID(eventType, userID, sessionID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", eventType, userID, sessionID, ts.Unix())))
	return hex.EncodeToString(sum[:8])
}

func snapshotStatuses(participants []Participant) map[string]ParticipantStatus {
	snapshot := make(map[string]ParticipantStatus, len(participants))
	for _, p := range participants {
		snapshot[p.UserID] = p.Status
	}
	return snapshot
}

func pruneSeenIDs(seen map[string]time.Time, now time.Time, ttl time.Duration) {
	for id, at := range seen {
		if now.Sub(at) > ttl {
			delete(seen, id)
		}
	}
}

func cloneObserverState(state ObserverState) ObserverState {
	prev := make(map[string]ParticipantStatus, len(state.PrevStatuses))
	for k, v := range state.PrevStatuses {
		prev[k] = v
	}
	seen := make(map[string]time.Time, len(state.SeenIDs))
	for k, v := range state.SeenIDs {
		seen[k] = v
	}
	fired := make(map[string]bool, len(state.Fired))
	for k, v := range state.Fired {
		fired[k] = v
	}
	events := make([]Notification, len(state.Events))
	copy(events, state.Events)
	state.PrevStatuses = prev
	state.SeenIDs = seen
	state.Fired = fired
	state.Events = events
	return state
}

func reverse(events []Notification) []Notification {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}
