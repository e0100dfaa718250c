package domain

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	index := 0
	return func() (string, error) {
		if index >= len(ids) {
			return "", errors.New("id generator exhausted")
		}
		id := ids[index]
		index++
		return id, nil
	}
}

func TestTimePhaseBoundariesAreInclusive(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)

	cases := []struct {
		name string
		now  time.Time
		want Phase
	}{
		{"before start", start.Add(-time.Second), PhaseUpcoming},
		{"at start", start, PhaseActive},
		{"inside window", start.Add(time.Minute), PhaseActive},
		{"at end", end, PhaseActive},
		{"after end", end.Add(time.Second), PhaseClosed},
	}
	for _, tc := range cases {
		if got := TimePhase(start, end, tc.now); got != tc.want {
			t.Fatalf("%s: TimePhase = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTimePhaseIgnoresStoredStatus(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	session := OrderSession{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    SessionStatusClosed,
	}

	// Display phase always re-derives from time regardless of stored status.
	if got := TimePhase(session.StartTime, session.EndTime, start.Add(time.Minute)); got != PhaseActive {
		t.Fatalf("TimePhase = %q, want %q", got, PhaseActive)
	}
}

func TestRoutingPhasePrefersExplicitClosedStatus(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	session := OrderSession{
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    SessionStatusClosed,
	}

	if got := RoutingPhase(session, start.Add(time.Minute)); got != PhaseClosed {
		t.Fatalf("RoutingPhase = %q, want %q", got, PhaseClosed)
	}
}

func TestDisplayPhaseCompletedOnceResolved(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	session := OrderSession{
		ID:        "sess-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    SessionStatusActive,
	}
	after := session.EndTime.Add(time.Minute)

	pending := []Participant{
		{UserID: "user-1", Status: ParticipantStatusOrdered},
		{UserID: "user-2", Status: ParticipantStatusPending},
	}
	if got := DisplayPhase(session, pending, after); got != PhaseClosed {
		t.Fatalf("DisplayPhase with pending = %q, want %q", got, PhaseClosed)
	}

	resolved := []Participant{
		{UserID: "user-1", Status: ParticipantStatusOrdered},
		{UserID: "user-2", Status: ParticipantStatusPassed},
	}
	if got := DisplayPhase(session, resolved, after); got != PhaseCompleted {
		t.Fatalf("DisplayPhase resolved = %q, want %q", got, PhaseCompleted)
	}
}

func TestNewSessionRejectsInvertedWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	_, err := NewSession(CreateSessionInput{
		CompanyID:      "acme",
		RestaurantName: "Taqueria Norte",
		StartTime:      start,
		EndTime:        start.Add(-time.Minute),
	}, fixedClock(start), sequentialIDGenerator("sess-1"))
	if !errors.Is(err, ErrInvalidTimeWindow) {
		t.Fatalf("err = %v, want ErrInvalidTimeWindow", err)
	}

	_, err = NewSession(CreateSessionInput{
		CompanyID:      "acme",
		RestaurantName: "Taqueria Norte",
		StartTime:      start,
		EndTime:        start,
	}, fixedClock(start), sequentialIDGenerator("sess-1"))
	if !errors.Is(err, ErrInvalidTimeWindow) {
		t.Fatalf("equal start/end err = %v, want ErrInvalidTimeWindow", err)
	}
}

func TestNewSessionStatusTracksWindowPosition(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	upcoming, err := NewSession(CreateSessionInput{
		CompanyID:      "acme",
		RestaurantName: "Taqueria Norte",
		StartTime:      start,
		EndTime:        end,
	}, fixedClock(start.Add(-time.Hour)), sequentialIDGenerator("sess-1"))
	if err != nil {
		t.Fatalf("new upcoming session: %v", err)
	}
	if upcoming.Status != SessionStatusUpcoming {
		t.Fatalf("Status = %q, want %q", upcoming.Status, SessionStatusUpcoming)
	}

	active, err := NewSession(CreateSessionInput{
		CompanyID:      "acme",
		RestaurantName: "Taqueria Norte",
		StartTime:      start,
		EndTime:        end,
	}, fixedClock(start.Add(time.Minute)), sequentialIDGenerator("sess-2"))
	if err != nil {
		t.Fatalf("new active session: %v", err)
	}
	if active.Status != SessionStatusActive {
		t.Fatalf("Status = %q, want %q", active.Status, SessionStatusActive)
	}
}

func TestNormalizeCreateSessionInputDropsBlankOptions(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	normalized, err := NormalizeCreateSessionInput(CreateSessionInput{
		CompanyID:         " acme ",
		RestaurantName:    " Taqueria Norte ",
		RestaurantOptions: []string{" burrito ", "", "  ", "taco"},
		StartTime:         start,
		EndTime:           start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized.CompanyID != "acme" || normalized.RestaurantName != "Taqueria Norte" {
		t.Fatalf("unexpected trim result: %+v", normalized)
	}
	if len(normalized.RestaurantOptions) != 2 || normalized.RestaurantOptions[0] != "burrito" || normalized.RestaurantOptions[1] != "taco" {
		t.Fatalf("unexpected options: %v", normalized.RestaurantOptions)
	}
}
