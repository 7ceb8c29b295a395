package store

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAdvisorSelectorWireForm(t *testing.T) {
	anyJSON, err := json.Marshal(AnyAdvisor())
	if err != nil {
		t.Fatalf("marshal any selector: %v", err)
	}
	if string(anyJSON) != `"ANY"` {
		t.Errorf("any selector should marshal to \"ANY\", got %s", anyJSON)
	}

	specificJSON, err := json.Marshal(SpecificAdvisor("jsmith"))
	if err != nil {
		t.Fatalf("marshal specific selector: %v", err)
	}
	if string(specificJSON) != `"JSMITH"` {
		t.Errorf("specific selector should marshal to upper-cased username, got %s", specificJSON)
	}
}

func TestAdvisorSelectorUnmarshal(t *testing.T) {
	cases := []struct {
		raw      string
		wantAny  bool
		wantUser string
	}{
		{`"ANY"`, true, ""},
		{`"any"`, true, ""},
		{`""`, true, ""}, // legacy empty selector folds into the any variant
		{`"JSMITH"`, false, "JSMITH"},
		{`"jsmith"`, false, "JSMITH"},
	}
	for _, tc := range cases {
		var selector AdvisorSelector
		if err := json.Unmarshal([]byte(tc.raw), &selector); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if selector.IsAny() != tc.wantAny {
			t.Errorf("unmarshal %s: IsAny = %v, want %v", tc.raw, selector.IsAny(), tc.wantAny)
		}
		if username, ok := selector.Username(); ok && username != tc.wantUser {
			t.Errorf("unmarshal %s: username = %q, want %q", tc.raw, username, tc.wantUser)
		}
	}
}

func TestEffectiveCollegesIncludesAdvisorColleges(t *testing.T) {
	d := Directory{
		Colleges: []string{"School of Music"},
		Advisors: []Advisor{
			{Username: "JSMITH", College: "School of Law"},
			{Username: "BJONES", College: "Honors College"}, // already built in
		},
	}

	colleges := d.EffectiveColleges()
	want := len(BuiltinColleges) + 2
	if len(colleges) != want {
		t.Fatalf("expected %d colleges, got %d: %v", want, len(colleges), colleges)
	}

	seen := make(map[string]bool, len(colleges))
	for i, c := range colleges {
		if seen[c] {
			t.Errorf("duplicate college %q", c)
		}
		seen[c] = true
		if i > 0 && colleges[i-1] > c {
			t.Errorf("colleges not sorted: %q before %q", colleges[i-1], c)
		}
	}
	if !seen["School of Music"] || !seen["School of Law"] {
		t.Errorf("dynamic and advisor colleges missing from %v", colleges)
	}
}

func TestAdvisorsByCollegeSortsByDisplayName(t *testing.T) {
	d := Directory{
		Advisors: []Advisor{
			{Username: "ZDOE", FirstName: "Zoe", LastName: "Doe", College: "Honors College"},
			{Username: "AKIM", FirstName: "Ana", LastName: "Kim", College: "Honors College"},
			{Username: "BLEE", FirstName: "Ben", LastName: "Lee", College: "College of Nursing"},
		},
	}
	advisors := d.AdvisorsByCollege("Honors College")
	if len(advisors) != 2 {
		t.Fatalf("expected 2 advisors, got %d", len(advisors))
	}
	if advisors[0].Username != "AKIM" || advisors[1].Username != "ZDOE" {
		t.Errorf("advisors not sorted by display name: %v", advisors)
	}
}

func TestSortedQueueIsFIFO(t *testing.T) {
	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	d := Directory{Queue: []QueueEntry{
		{ID: "q_2", Timestamp: base.Add(2 * time.Minute)},
		{ID: "q_1", Timestamp: base},
		{ID: "q_3", Timestamp: base.Add(5 * time.Minute)},
	}}
	queue := d.SortedQueue()
	if queue[0].ID != "q_1" || queue[1].ID != "q_2" || queue[2].ID != "q_3" {
		t.Errorf("queue not in arrival order: %v", queue)
	}
}
