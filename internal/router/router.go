// Package router decides which queue entries an advisor sees, in what
// order, and whether newly arrived entries should trigger an alert.
package router

import (
	"sort"

	"checkin/api/internal/store"
)

// Visible returns the queue entries one advisor must see: entries addressed
// to them by username, plus any-advisor entries from their own college.
// Ordering is always ascending by check-in time. Entries addressed to an
// advisor who no longer exists simply never match anyone.
func Visible(directory store.Directory, advisor store.Advisor) []store.QueueEntry {
	visible := make([]store.QueueEntry, 0)
	for _, entry := range directory.Queue {
		if entry.Advisor.IsAny() {
			if entry.College == advisor.College {
				visible = append(visible, entry)
			}
			continue
		}
		if target, _ := entry.Advisor.Username(); target == advisor.Username {
			visible = append(visible, entry)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Timestamp.Before(visible[j].Timestamp)
	})
	return visible
}

// Session tracks which entry ids one advisor login has already seen, so new
// arrivals can chime. A session starts uninitialized: the first computation
// after login establishes a baseline and never chimes, every later one
// reports the delta. The state resets only by discarding the session at
// logout.
type Session struct {
	initialized bool
	seen        map[string]struct{}
}

func NewSession() *Session {
	return &Session{seen: make(map[string]struct{})}
}

// Observe records a freshly computed visible queue and returns the entries
// that were not visible at the previous computation, plus whether an alert
// should fire.
func (s *Session) Observe(entries []store.QueueEntry) (arrivals []store.QueueEntry, chime bool) {
	next := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		next[entry.ID] = struct{}{}
		if _, ok := s.seen[entry.ID]; !ok {
			arrivals = append(arrivals, entry)
		}
	}

	if !s.initialized {
		s.initialized = true
		s.seen = next
		return nil, false
	}
	s.seen = next
	return arrivals, len(arrivals) > 0
}

// DisplayAssignment resolves the advisor column for admin-facing views. The
// fallback chain tolerates entries whose advisor was deleted after check-in:
// the frozen snapshot name is used, then a generic label.
func DisplayAssignment(directory store.Directory, entry store.QueueEntry) string {
	if entry.Advisor.IsAny() {
		return "Any available advisor"
	}
	username, _ := entry.Advisor.Username()
	if advisor, ok := directory.FindAdvisor(username); ok {
		return advisor.DisplayName()
	}
	if entry.AdvisorName != "" {
		return entry.AdvisorName
	}
	return "Advisor"
}
