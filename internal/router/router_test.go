package router

import (
	"testing"
	"time"

	"checkin/api/internal/store"
)

var base = time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

func entry(id string, selector store.AdvisorSelector, college string, offset time.Duration) store.QueueEntry {
	return store.QueueEntry{
		ID:        id,
		College:   college,
		Advisor:   selector,
		Timestamp: base.Add(offset),
	}
}

func TestVisible(t *testing.T) {
	jane := store.Advisor{Username: "JSMITH", College: "Honors College"}
	d := store.Directory{
		Advisors: []store.Advisor{jane},
		Queue: []store.QueueEntry{
			entry("q_mine", store.SpecificAdvisor("JSMITH"), "Honors College", 3*time.Minute),
			entry("q_any_same", store.AnyAdvisor(), "Honors College", time.Minute),
			entry("q_any_other", store.AnyAdvisor(), "College of Nursing", 2*time.Minute),
			entry("q_other_advisor", store.SpecificAdvisor("BLEE"), "Honors College", 0),
			// Addressed to Jane but from another college: specific routing
			// ignores the college.
			entry("q_mine_cross", store.SpecificAdvisor("JSMITH"), "College of Nursing", 4*time.Minute),
		},
	}

	visible := Visible(d, jane)
	if len(visible) != 3 {
		t.Fatalf("expected 3 visible entries, got %d: %v", len(visible), visible)
	}
	// Ascending by check-in time.
	if visible[0].ID != "q_any_same" || visible[1].ID != "q_mine" || visible[2].ID != "q_mine_cross" {
		t.Errorf("wrong order: %s, %s, %s", visible[0].ID, visible[1].ID, visible[2].ID)
	}
}

func TestVisibleEntryForDeletedAdvisorMatchesNobody(t *testing.T) {
	jane := store.Advisor{Username: "JSMITH", College: "Honors College"}
	d := store.Directory{
		Advisors: []store.Advisor{jane},
		Queue: []store.QueueEntry{
			entry("q_orphan", store.SpecificAdvisor("GONE"), "Honors College", 0),
		},
	}
	if visible := Visible(d, jane); len(visible) != 0 {
		t.Errorf("orphaned entry should be invisible, got %v", visible)
	}
}

func TestSessionFirstObservationNeverChimes(t *testing.T) {
	s := NewSession()
	entries := []store.QueueEntry{
		entry("q_1", store.AnyAdvisor(), "Honors College", 0),
		entry("q_2", store.AnyAdvisor(), "Honors College", time.Minute),
	}

	arrivals, chime := s.Observe(entries)
	if chime {
		t.Error("first observation must not chime")
	}
	if len(arrivals) != 0 {
		t.Errorf("first observation must report no arrivals, got %v", arrivals)
	}
}

func TestSessionChimesOnNewArrivalsOnly(t *testing.T) {
	s := NewSession()
	first := []store.QueueEntry{entry("q_1", store.AnyAdvisor(), "Honors College", 0)}
	s.Observe(first)

	// Unchanged queue: no chime.
	arrivals, chime := s.Observe(first)
	if chime || len(arrivals) != 0 {
		t.Errorf("unchanged queue should stay silent, got arrivals=%v chime=%v", arrivals, chime)
	}

	// One new entry arrives.
	second := append(first, entry("q_2", store.AnyAdvisor(), "Honors College", time.Minute))
	arrivals, chime = s.Observe(second)
	if !chime {
		t.Error("new arrival should chime")
	}
	if len(arrivals) != 1 || arrivals[0].ID != "q_2" {
		t.Errorf("arrivals = %v, want just q_2", arrivals)
	}

	// Entry removed: no chime.
	arrivals, chime = s.Observe(first)
	if chime || len(arrivals) != 0 {
		t.Errorf("removal should stay silent, got arrivals=%v chime=%v", arrivals, chime)
	}
}

func TestSessionReappearanceChimesAgain(t *testing.T) {
	s := NewSession()
	one := []store.QueueEntry{entry("q_1", store.AnyAdvisor(), "Honors College", 0)}
	s.Observe(one)
	s.Observe(nil) // entry served

	// Same id visible again counts as a new arrival.
	arrivals, chime := s.Observe(one)
	if !chime || len(arrivals) != 1 {
		t.Errorf("reappearing entry should chime, got arrivals=%v chime=%v", arrivals, chime)
	}
}

func TestDisplayAssignment(t *testing.T) {
	jane := store.Advisor{Username: "JSMITH", FirstName: "Jane", LastName: "Smith", College: "Honors College"}
	d := store.Directory{Advisors: []store.Advisor{jane}}

	anyEntry := entry("q_1", store.AnyAdvisor(), "Honors College", 0)
	if got := DisplayAssignment(d, anyEntry); got != "Any available advisor" {
		t.Errorf("any entry: %q", got)
	}

	mine := entry("q_2", store.SpecificAdvisor("JSMITH"), "Honors College", 0)
	if got := DisplayAssignment(d, mine); got != "Jane Smith" {
		t.Errorf("live advisor: %q", got)
	}

	orphanWithSnapshot := entry("q_3", store.SpecificAdvisor("GONE"), "Honors College", 0)
	orphanWithSnapshot.AdvisorName = "Gil One"
	if got := DisplayAssignment(d, orphanWithSnapshot); got != "Gil One" {
		t.Errorf("orphan with snapshot: %q", got)
	}

	orphanBare := entry("q_4", store.SpecificAdvisor("GONE"), "Honors College", 0)
	if got := DisplayAssignment(d, orphanBare); got != "Advisor" {
		t.Errorf("orphan without snapshot: %q", got)
	}
}
