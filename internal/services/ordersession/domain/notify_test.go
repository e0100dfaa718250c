package domain

import (
	"fmt"
	"testing"
	"time"
)

func notifySession(start, end time.Time) OrderSession {
	return OrderSession{
		ID:             "sess-1",
		CompanyID:      "acme",
		RestaurantName: "Taqueria Norte",
		StartTime:      start,
		EndTime:        end,
		Status:         SessionStatusActive,
	}
}

func TestEngineEventIDDeterministicPerSecond(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	first := eventID(EventParticipantOrdered, "user-1", "sess-1", at)
	same := eventID(EventParticipantOrdered, "user-1", "sess-1", at.Add(500*time.Millisecond))
	next := eventID(EventParticipantOrdered, "user-1", "sess-1", at.Add(time.Second))

	if first != same {
		t.Fatalf("ids within the same second differ: %q vs %q", first, same)
	}
	if first == next {
		t.Fatal("ids across seconds must differ")
	}
	if other := eventID(EventParticipantPassed, "user-1", "sess-1", at); other == first {
		t.Fatal("ids across types must differ")
	}
}

func TestEngineManagerSingleTransitionSingleEvent(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	pending := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}
	_, state := engine.Observe(ObserveInput{Session: session, Participants: pending, Role: RoleManager}, ObserverState{}, start)

	ordered := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusOrdered}}
	events, state := engine.Observe(ObserveInput{Session: session, Participants: ordered, Role: RoleManager}, state, start.Add(10*time.Second))

	var transitions int
	for _, e := range events {
		if e.Type == EventParticipantOrdered {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("transition events = %d, want exactly 1", transitions)
	}

	// A rapid re-poll inside the guard interval must not duplicate anything.
	burst, state := engine.Observe(ObserveInput{Session: session, Participants: ordered, Role: RoleManager}, state, start.Add(11*time.Second))
	if len(burst) != len(events) {
		t.Fatalf("burst poll changed event count: %d vs %d", len(burst), len(events))
	}

	// A later poll with no new transitions stays quiet too.
	later, _ := engine.Observe(ObserveInput{Session: session, Participants: ordered, Role: RoleManager}, state, start.Add(20*time.Second))
	if len(later) != len(events) {
		t.Fatalf("steady-state poll changed event count: %d vs %d", len(later), len(events))
	}
}

func TestEngineNeverShowsDuplicateIDs(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := []Participant{
		{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending},
		{SessionID: "sess-1", UserID: "user-2", UserName: "Sam", Status: ParticipantStatusPending},
	}
	var state ObserverState
	var events []Notification
	now := start
	for cycle := 0; cycle < 6; cycle++ {
		now = now.Add(5 * time.Second)
		if cycle == 2 {
			participants[0].Status = ParticipantStatusOrdered
		}
		if cycle == 4 {
			participants[1].Status = ParticipantStatusPassed
		}
		events, state = engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, now)

		seen := make(map[string]bool, len(events))
		for _, e := range events {
			if seen[e.ID] {
				t.Fatalf("cycle %d: duplicate event id %q", cycle, e.ID)
			}
			seen[e.ID] = true
		}
	}
	if len(events) == 0 {
		t.Fatal("expected accumulated manager events")
	}
}

func TestEngineManagerStaticsOnlyOnFirstObservation(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := []Participant{
		{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending},
		{SessionID: "sess-1", UserID: "user-2", UserName: "Sam", Status: ParticipantStatusOrdered},
	}

	events, state := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, ObserverState{}, start)
	var pendingSummaries, orderedSummaries int
	for _, e := range events {
		switch e.Type {
		case EventSummaryPending:
			pendingSummaries++
		case EventSummaryOrdered:
			orderedSummaries++
		}
	}
	if pendingSummaries != 1 || orderedSummaries != 1 {
		t.Fatalf("first observation summaries = %d/%d, want 1/1", pendingSummaries, orderedSummaries)
	}

	// Steady state is never re-announced on later polls; the history keeps
	// the original pair and nothing more.
	later, _ := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, start.Add(10*time.Second))
	pendingSummaries, orderedSummaries = 0, 0
	for _, e := range later {
		switch e.Type {
		case EventSummaryPending:
			pendingSummaries++
		case EventSummaryOrdered:
			orderedSummaries++
		}
	}
	if pendingSummaries != 1 || orderedSummaries != 1 {
		t.Fatalf("summaries after steady-state poll = %d/%d, want 1/1", pendingSummaries, orderedSummaries)
	}
}

func TestEngineManagerEndingSoonFiresOnce(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	end := start.Add(300 * time.Second)
	session := notifySession(start, end)
	engine := NewEngine()

	participants := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}

	var state ObserverState
	var total int
	for _, offset := range []time.Duration{290 * time.Second, 293 * time.Second, 296 * time.Second, 299 * time.Second} {
		events, next := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, start.Add(offset))
		state = next
		total = 0
		for _, e := range events {
			if e.Type == EventSessionEndingSoon {
				total++
			}
		}
	}
	if total != 1 {
		t.Fatalf("ending-soon events visible = %d, want exactly 1", total)
	}
}

func TestEngineTeamMemberNearDeadlineReminderFiresOnce(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	end := start.Add(300 * time.Second)
	session := notifySession(start, end)
	engine := NewEngine()

	participants := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}
	in := ObserveInput{Session: session, Participants: participants, Role: RoleTeamMember, ObserverUserID: "user-1"}

	events, state := engine.Observe(in, ObserverState{}, start.Add(290*time.Second))
	var reminders int
	for _, e := range events {
		if e.Type == EventDeadlineReminder30M {
			reminders++
		}
	}
	if reminders != 1 {
		t.Fatalf("first near-deadline poll reminders = %d, want 1", reminders)
	}

	// Subsequent polls before the deadline stay quiet.
	for _, offset := range []time.Duration{293 * time.Second, 296 * time.Second, 299 * time.Second} {
		events, state = engine.Observe(in, state, start.Add(offset))
		for _, e := range events {
			if e.Type == EventDeadlineReminder30M {
				t.Fatalf("reminder re-emitted at offset %s", offset)
			}
		}
	}
}

func TestEngineTeamMemberSessionCreatedOnlyOnFirstObservation(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}
	in := ObserveInput{Session: session, Participants: participants, Role: RoleTeamMember, ObserverUserID: "user-1"}

	events, state := engine.Observe(in, ObserverState{}, start)
	if len(events) != 1 || events[0].Type != EventSessionCreated {
		t.Fatalf("first observation events = %+v, want single session-created", events)
	}

	events, _ = engine.Observe(in, state, start.Add(10*time.Second))
	for _, e := range events {
		if e.Type == EventSessionCreated {
			t.Fatal("session-created re-emitted on later poll")
		}
	}
}

func TestEngineTeamMemberTerminalMessageDistinguishesAutoPass(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	session := notifySession(start, end)

	cases := []struct {
		name        string
		participant Participant
		wantAuto    bool
	}{
		{
			name: "auto-passed",
			participant: Participant{
				SessionID: "sess-1", UserID: "user-1", UserName: "Dana",
				Status: ParticipantStatusPassed, PresetOrder: AutoPassNote,
			},
			wantAuto: true,
		},
		{
			name: "self-passed",
			participant: Participant{
				SessionID: "sess-1", UserID: "user-1", UserName: "Dana",
				Status: ParticipantStatusPassed,
			},
			wantAuto: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine := NewEngine()
			in := ObserveInput{
				Session:        session,
				Participants:   []Participant{tc.participant},
				Role:           RoleTeamMember,
				ObserverUserID: "user-1",
			}
			events, _ := engine.Observe(in, ObserverState{}, end.Add(time.Minute))
			var terminal *Notification
			for i := range events {
				if events[i].Type == EventDeadlinePassed {
					terminal = &events[i]
				}
			}
			if terminal == nil {
				t.Fatal("expected terminal deadline-passed event")
			}
			gotAuto := terminal.Message == "The deadline passed before you responded, so you were automatically passed"
			if gotAuto != tc.wantAuto {
				t.Fatalf("terminal message = %q, auto = %v, want %v", terminal.Message, gotAuto, tc.wantAuto)
			}
		})
	}
}

func TestEngineTeamMemberViewReplacedEachCycle(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}
	in := ObserveInput{Session: session, Participants: participants, Role: RoleTeamMember, ObserverUserID: "user-1"}

	events, state := engine.Observe(in, ObserverState{}, start)
	if len(events) != 1 {
		t.Fatalf("first cycle events = %d, want 1", len(events))
	}
	events, _ = engine.Observe(in, state, start.Add(10*time.Second))
	if len(events) != 0 {
		t.Fatalf("second cycle events = %d, want replaced empty view", len(events))
	}
}

func TestEngineManagerHistoryCappedNewestFirst(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := make([]Participant, 12)
	for i := range participants {
		participants[i] = Participant{
			SessionID: "sess-1",
			UserID:    fmt.Sprintf("user-%d", i),
			UserName:  fmt.Sprintf("User %d", i),
			Status:    ParticipantStatusPending,
		}
	}

	_, state := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, ObserverState{}, start)

	// Twelve transitions across cycles overflow the ten-event history.
	now := start
	var events []Notification
	for i := range participants {
		now = now.Add(5 * time.Second)
		participants[i].Status = ParticipantStatusOrdered
		events, state = engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, now)
	}

	if len(events) != 10 {
		t.Fatalf("history length = %d, want cap of 10", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.After(events[i-1].Timestamp) {
			t.Fatalf("history not newest-first at index %d", i)
		}
	}
	if events[0].UserID != "user-11" {
		t.Fatalf("newest event user = %q, want user-11", events[0].UserID)
	}
}

func TestEngineDebounceSkipsGenerationEntirely(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	session := notifySession(start, start.Add(4*time.Hour))
	engine := NewEngine()

	participants := []Participant{{SessionID: "sess-1", UserID: "user-1", UserName: "Dana", Status: ParticipantStatusPending}}
	_, state := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, ObserverState{}, start)

	// Inside the guard interval even a real transition is deferred.
	participants[0].Status = ParticipantStatusOrdered
	events, state := engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, start.Add(time.Second))
	for _, e := range events {
		if e.Type == EventParticipantOrdered {
			t.Fatal("transition emitted inside guard interval")
		}
	}

	// Once the interval elapses the transition surfaces.
	events, _ = engine.Observe(ObserveInput{Session: session, Participants: participants, Role: RoleManager}, state, start.Add(5*time.Second))
	var transitions int
	for _, e := range events {
		if e.Type == EventParticipantOrdered {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("post-guard transitions = %d, want 1", transitions)
	}
}
