package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/lunchroll/internal/platform/id"
)

// Store is the domain persistence boundary for sessions and participants.
// Implementations must make UpsertParticipant a single atomic conditional
// write keyed on (session id, user id) and UpdateSessionStatus a
// compare-and-swap on the current status.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (OrderSession, error)
	PutSession(ctx context.Context, session OrderSession) error
	ListActiveSessions(ctx context.Context, companyID string) ([]OrderSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, from, to SessionStatus, updatedAt time.Time) error
	UpdateSessionTimes(ctx context.Context, sessionID string, start, end, updatedAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	UpsertParticipant(ctx context.Context, participant Participant) error
	ListParticipants(ctx context.Context, sessionID string) ([]Participant, error)
}

// Identity resolves user display names. Lookup failures are non-fatal; the
// caller degrades to a placeholder name and proceeds with the write.
type Identity interface {
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
}

// Roster lists company members for participant seeding.
type Roster interface {
	ListMembers(ctx context.Context, companyID string) ([]Member, error)
}

// Member is one company roster entry.
type Member struct {
	UserID      string
	DisplayName string
}

// Service orchestrates the order-session lifecycle: creation with roster
// seeding, participant responses, the deadline sweep, and observation.
type Service struct {
	store    Store
	identity Identity
	roster   Roster
	engine   *Engine
	clock    func() time.Time
	newID    func() (string, error)

	mu        sync.Mutex
	observers map[string]ObserverState
}

// NewService constructs the order-session use-cases.
func NewService(store Store, identity Identity, roster Roster, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:     store,
		identity:  identity,
		roster:    roster,
		engine:    NewEngine(),
		clock:     clock,
		newID:     newID,
		observers: make(map[string]ObserverState),
	}
}

// CreateSession opens a session and seeds a pending participant row for every
// company roster member. The end-after-start invariant is rejected before any
// write, and creation is atomic with seeding: a roster or seed failure rolls
// the session row back, cascading away any partially seeded participants.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (OrderSession, []Participant, error) {
	if s == nil || s.store == nil {
		return OrderSession{}, nil, ErrStoreNotConfigured
	}

	session, err := NewSession(input, s.clock, s.newID)
	if err != nil {
		return OrderSession{}, nil, err
	}

	if err := s.store.PutSession(ctx, session); err != nil {
		return OrderSession{}, nil, fmt.Errorf("persist session: %w", err)
	}

	participants, err := s.seedParticipants(ctx, session)
	if err != nil {
		if delErr := s.store.DeleteSession(ctx, session.ID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			return OrderSession{}, nil, fmt.Errorf("roll back session after seed failure (%v): %w", delErr, err)
		}
		return OrderSession{}, nil, err
	}
	return session, participants, nil
}

func (s *Service) seedParticipants(ctx context.Context, session OrderSession) ([]Participant, error) {
	if s.roster == nil {
		return nil, nil
	}
	members, err := s.roster.ListMembers(ctx, session.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list company members: %w", err)
	}
	now := s.nowUTC()
	participants := make([]Participant, 0, len(members))
	for _, member := range members {
		name := strings.TrimSpace(member.DisplayName)
		if name == "" {
			name = FallbackUserName
		}
		participant := Participant{
			SessionID: session.ID,
			UserID:    member.UserID,
			UserName:  name,
			Status:    ParticipantStatusPending,
			UpdatedAt: now,
		}
		if err := s.store.UpsertParticipant(ctx, participant); err != nil {
			return nil, fmt.Errorf("seed participant %s: %w", member.UserID, err)
		}
		participants = append(participants, participant)
	}
	return participants, nil
}

// RespondInput describes one participant response.
type RespondInput struct {
	SessionID   string
	UserID      string
	Response    ParticipantStatus
	PresetOrder string
}

// Respond applies a participant response while the session is active. The
// upsert is a single conditional write, so concurrent double-submits by the
// same user resolve to last write wins with no duplicate rows.
func (s *Service) Respond(ctx context.Context, input RespondInput) (Participant, error) {
	if s == nil || s.store == nil {
		return Participant{}, ErrStoreNotConfigured
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return Participant{}, ErrEmptySessionID
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Participant{}, ErrEmptyUserID
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Participant{}, err
	}
	now := s.nowUTC()
	if RoutingPhase(session, now) != PhaseActive {
		return Participant{}, ErrSessionNotActive
	}

	// Validation precedes the name lookup so a bad response never triggers
	// collaborator calls or writes.
	participant, err := ApplyResponse(Participant{
		SessionID: sessionID,
		UserID:    userID,
	}, input.Response, input.PresetOrder, now)
	if err != nil {
		return Participant{}, err
	}

	participant.UserName = s.resolveUserName(ctx, userID)

	if err := s.store.UpsertParticipant(ctx, participant); err != nil {
		return Participant{}, err
	}
	return participant, nil
}

// resolveUserName asks the identity collaborator for a display name, falling
// back to a generic label. The lookup must never block the write.
func (s *Service) resolveUserName(ctx context.Context, userID string) string {
	if s.identity == nil {
		return FallbackUserName
	}
	name, err := s.identity.ResolveDisplayName(ctx, userID)
	if err != nil || strings.TrimSpace(name) == "" {
		return FallbackUserName
	}
	return strings.TrimSpace(name)
}

// SweepFailure records one participant write that failed during a sweep.
type SweepFailure struct {
	UserID string
	Err    error
}

// SweepResult aggregates one deadline sweep run.
type SweepResult struct {
	AutoPassedCount int
	SessionClosed   bool
	Failures        []SweepFailure
}

// SweepDeadline force-passes every pending participant of a session whose
// deadline has elapsed, then closes the session once the full set is
// confirmed resolved. Re-running it when nothing is pending is a no-op, and
// per-participant failures never abort the remaining writes.
func (s *Service) SweepDeadline(ctx context.Context, sessionID string) (SweepResult, error) {
	if s == nil || s.store == nil {
		return SweepResult{}, ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SweepResult{}, ErrEmptySessionID
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return SweepResult{}, err
	}
	now := s.nowUTC()
	if session.Status != SessionStatusActive || !now.After(session.EndTime) {
		return SweepResult{}, nil
	}

	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list participants: %w", err)
	}

	var result SweepResult
	for _, p := range participants {
		if p.Status != ParticipantStatusPending {
			continue
		}
		// The sweep itself is what triggers closure, so it bypasses the
		// active-window precondition and writes through the same upsert path.
		if err := s.store.UpsertParticipant(ctx, AutoPass(p, now)); err != nil {
			result.Failures = append(result.Failures, SweepFailure{UserID: p.UserID, Err: err})
			continue
		}
		result.AutoPassedCount++
	}

	// Close only once a re-read confirms the full set resolved; outstanding
	// failures keep the session open for the next sweep.
	if len(result.Failures) > 0 {
		return result, nil
	}
	remaining, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return result, fmt.Errorf("recheck participants: %w", err)
	}
	for _, p := range remaining {
		if p.Status == ParticipantStatusPending {
			return result, nil
		}
	}
	if err := s.store.UpdateSessionStatus(ctx, sessionID, SessionStatusActive, SessionStatusClosed, now); err != nil {
		if errors.Is(err, ErrConflict) {
			// Another sweeper closed it first; the outcome stands.
			result.SessionClosed = true
			return result, nil
		}
		return result, fmt.Errorf("close session: %w", err)
	}
	result.SessionClosed = true
	return result, nil
}

// ObserveRequest identifies one role-scoped observation of a session.
type ObserveRequest struct {
	SessionID      string
	Role           Role
	ObserverUserID string
}

// Observation is the client-facing view of one observation cycle.
type Observation struct {
	Session       OrderSession
	Phase         Phase
	Participants  []Participant
	Notifications []Notification
}

// Observe loads the session snapshot, labels its display phase, and runs the
// notification engine against this observer's retained state.
func (s *Service) Observe(ctx context.Context, req ObserveRequest) (Observation, error) {
	if s == nil || s.store == nil {
		return Observation{}, ErrStoreNotConfigured
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return Observation{}, ErrEmptySessionID
	}
	if !req.Role.Valid() {
		return Observation{}, ErrInvalidRole
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Observation{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return Observation{}, fmt.Errorf("list participants: %w", err)
	}

	now := s.nowUTC()
	key := observerKey(sessionID, req.Role, req.ObserverUserID)

	s.mu.Lock()
	state := s.observers[key]
	events, next := s.engine.Observe(ObserveInput{
		Session:        session,
		Participants:   participants,
		Role:           req.Role,
		ObserverUserID: strings.TrimSpace(req.ObserverUserID),
	}, state, now)
	s.observers[key] = next
	s.mu.Unlock()

	return Observation{
		Session:       session,
		Phase:         DisplayPhase(session, participants, now),
		Participants:  participants,
		Notifications: events,
	}, nil
}

// UpdateSessionTimes edits the session window, re-validating the ordering
// invariant before the write.
func (s *Service) UpdateSessionTimes(ctx context.Context, sessionID string, start, end time.Time) (OrderSession, error) {
	if s == nil || s.store == nil {
		return OrderSession{}, ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return OrderSession{}, ErrEmptySessionID
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return OrderSession{}, ErrInvalidTimeWindow
	}
	now := s.nowUTC()
	if err := s.store.UpdateSessionTimes(ctx, sessionID, start.UTC(), end.UTC(), now); err != nil {
		return OrderSession{}, err
	}
	return s.store.GetSession(ctx, sessionID)
}

// SetSessionStatus applies a manager status override through the store's
// compare-and-swap path.
func (s *Service) SetSessionStatus(ctx context.Context, sessionID string, from, to SessionStatus) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid session status transition %q -> %q", from, to)
	}
	return s.store.UpdateSessionStatus(ctx, sessionID, from, to, s.nowUTC())
}

// DeleteSession removes a session; participant rows cascade in the store and
// the session's retained observer state is dropped with it.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.pruneObservers(sessionID)
	return nil
}

func (s *Service) pruneObservers(sessionID string) {
	prefix := sessionID + "|"
	s.mu.Lock()
	for key := range s.observers {
		if strings.HasPrefix(key, prefix) {
			delete(s.observers, key)
		}
	}
	s.mu.Unlock()
}

// ReconcileParticipants adds pending rows for roster members who joined the
// company after the session was created. Existing rows are left untouched.
// Once the session is past its deadline or closed, reconciliation is refused:
// a late joiner added then could never be resolved by the sweep.
func (s *Service) ReconcileParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if s.roster == nil {
		return nil, nil
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch RoutingPhase(session, s.nowUTC()) {
	case PhaseClosed, PhaseCompleted:
		return nil, ErrSessionNotActive
	}
	existing, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, p := range existing {
		present[p.UserID] = true
	}

	members, err := s.roster.ListMembers(ctx, session.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list company members: %w", err)
	}

	now := s.nowUTC()
	var added []Participant
	for _, member := range members {
		if present[member.UserID] {
			continue
		}
		name := strings.TrimSpace(member.DisplayName)
		if name == "" {
			name = FallbackUserName
		}
		participant := Participant{
			SessionID: sessionID,
			UserID:    member.UserID,
			UserName:  name,
			Status:    ParticipantStatusPending,
			UpdatedAt: now,
		}
		if err := s.store.UpsertParticipant(ctx, participant); err != nil {
			return added, fmt.Errorf("reconcile participant %s: %w", member.UserID, err)
		}
		added = append(added, participant)
	}
	return added, nil
}

// ListActiveSessions returns the company's sessions with an active status.
func (s *Service) ListActiveSessions(ctx context.Context, companyID string) ([]OrderSession, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, ErrEmptyCompanyID
	}
	return s.store.ListActiveSessions(ctx, companyID)
}

// SweepAll runs the deadline sweep over every active session of a company.
// Intended for a periodic caller; each session's outcome is isolated.
func (s *Service) SweepAll(ctx context.Context, companyID string) (map[string]SweepResult, error) {
	sessions, err := s.ListActiveSessions(ctx, companyID)
	if err != nil {
		return nil, err
	}
	results := make(map[string]SweepResult, len(sessions))
	for _, session := range sessions {
		result, err := s.SweepDeadline(ctx, session.ID)
		if err != nil {
			results[session.ID] = SweepResult{Failures: []SweepFailure{{Err: err}}}
			continue
		}
		results[session.ID] = result
	}
	return results, nil
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func observerKey(sessionID string, role Role, userID string) string {
	return sessionID + "|" + string(role) + "|" + strings.TrimSpace(userID)
}
