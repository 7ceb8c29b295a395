// Package store persists the check-in Directory as a single JSON document
// under one namespaced key and exposes the change signal other processes
// observe when that document is written.
package store

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// BuiltinColleges are the ten standing colleges. They are always part of the
// effective college set and can never be removed.
var BuiltinColleges = []string{
	"College of Arts & Sciences",
	"Darla Moore School of Business",
	"College of Engineering & Computing",
	"College of Hospitality, Retail and Sport Management",
	"College of Information & Communications",
	"Arnold School of Public Health",
	"College of Nursing",
	"College of Education",
	"College of Pharmacy",
	"Honors College",
}

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// Admin is an administrator account. Exactly one owner is seeded at first
// run; every later account gets the admin role.
type Admin struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	PasswordDigest string `json:"passwordHash"`
	Role           string `json:"role"`
}

// Advisor is an advising-staff account. Usernames are stored upper-cased.
type Advisor struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	College        string `json:"college"`
	PasswordDigest string `json:"passwordHash"`
}

// DisplayName is the advisor's full name as shown in queue views.
func (a Advisor) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Reason is a visit category students pick at check-in.
type Reason struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// anySentinel is the wire value marking an entry routed to any advisor in
// the student's college rather than a specific one.
const anySentinel = "ANY"

// AdvisorSelector is the routing target of a queue entry: either any advisor
// in the entry's college, or one specific advisor by username. It serializes
// to the legacy wire form, the string "ANY" or a username.
type AdvisorSelector struct {
	anyInCollege bool
	username     string
}

// AnyAdvisor selects any advisor in the entry's college.
func AnyAdvisor() AdvisorSelector {
	return AdvisorSelector{anyInCollege: true}
}

// SpecificAdvisor selects one advisor by username. The username is
// upper-cased to match account storage.
func SpecificAdvisor(username string) AdvisorSelector {
	return AdvisorSelector{username: strings.ToUpper(strings.TrimSpace(username))}
}

// IsAny reports whether the selector is the any-in-college variant.
func (s AdvisorSelector) IsAny() bool { return s.anyInCollege }

// Username returns the selected advisor username and true for the specific
// variant, or "" and false for the any-in-college variant.
func (s AdvisorSelector) Username() (string, bool) {
	if s.anyInCollege {
		return "", false
	}
	return s.username, true
}

func (s AdvisorSelector) String() string {
	if s.anyInCollege {
		return anySentinel
	}
	return s.username
}

func (s AdvisorSelector) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AdvisorSelector) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// Legacy documents can carry an empty selector; those entries were shown
	// as "any available advisor", so fold them into that variant.
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, anySentinel) {
		*s = AnyAdvisor()
		return nil
	}
	*s = SpecificAdvisor(raw)
	return nil
}

// QueueEntry is one student's pending check-in. Entries are immutable after
// creation: they are only ever removed, never edited. ReasonLabel and
// AdvisorName are snapshots frozen at submission time so later deletion of
// the referenced reason or advisor cannot rewrite history.
type QueueEntry struct {
	ID           string          `json:"id"`
	StudentName  string          `json:"studentName"`
	StudentEmail string          `json:"studentEmail"`
	College      string          `json:"college"`
	Advisor      AdvisorSelector `json:"advisorUsername"`
	AdvisorName  string          `json:"advisorName,omitempty"`
	ReasonID     string          `json:"reasonId"`
	ReasonLabel  string          `json:"reasonLabel"`
	Notes        string          `json:"notes"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Directory is the whole persisted document: every account, reason, college
// and queue entry. It is read and written as one value.
type Directory struct {
	Admins   []Admin      `json:"admins"`
	Advisors []Advisor    `json:"advisors"`
	Reasons  []Reason     `json:"reasons"`
	Queue    []QueueEntry `json:"queue"`
	Colleges []string     `json:"colleges"`
}

// FindAdvisor looks up an advisor by username (case-normalized).
func (d Directory) FindAdvisor(username string) (Advisor, bool) {
	username = strings.ToUpper(strings.TrimSpace(username))
	for _, advisor := range d.Advisors {
		if advisor.Username == username {
			return advisor, true
		}
	}
	return Advisor{}, false
}

// FindAdmin looks up an admin by username (case-normalized).
func (d Directory) FindAdmin(username string) (Admin, bool) {
	username = strings.ToUpper(strings.TrimSpace(username))
	for _, admin := range d.Admins {
		if admin.Username == username {
			return admin, true
		}
	}
	return Admin{}, false
}

// FindReason looks up a reason by id.
func (d Directory) FindReason(id string) (Reason, bool) {
	for _, reason := range d.Reasons {
		if reason.ID == id {
			return reason, true
		}
	}
	return Reason{}, false
}

// EffectiveColleges is the union of the built-in list, the admin-managed
// dynamic list, and every advisor's own college, sorted alphabetically.
// Advisor colleges are included so a college imported with an advisor is
// immediately selectable even if it was never added explicitly.
func (d Directory) EffectiveColleges() []string {
	seen := make(map[string]struct{}, len(BuiltinColleges)+len(d.Colleges))
	colleges := make([]string, 0, len(BuiltinColleges)+len(d.Colleges))
	add := func(c string) {
		c = strings.TrimSpace(c)
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		colleges = append(colleges, c)
	}
	for _, c := range BuiltinColleges {
		add(c)
	}
	for _, c := range d.Colleges {
		add(c)
	}
	for _, advisor := range d.Advisors {
		add(advisor.College)
	}
	sort.Strings(colleges)
	return colleges
}

// AdvisorsByCollege returns the advisors in one college sorted by display
// name, for the student-facing advisor picker.
func (d Directory) AdvisorsByCollege(college string) []Advisor {
	advisors := make([]Advisor, 0)
	for _, advisor := range d.Advisors {
		if advisor.College == college {
			advisors = append(advisors, advisor)
		}
	}
	sort.Slice(advisors, func(i, j int) bool {
		return advisors[i].DisplayName() < advisors[j].DisplayName()
	})
	return advisors
}

// SortedReasons returns the reasons sorted by label.
func (d Directory) SortedReasons() []Reason {
	reasons := make([]Reason, len(d.Reasons))
	copy(reasons, d.Reasons)
	sort.Slice(reasons, func(i, j int) bool {
		return reasons[i].Label < reasons[j].Label
	})
	return reasons
}

// SortedQueue returns the full queue ordered ascending by timestamp, the
// FIFO order every display uses.
func (d Directory) SortedQueue() []QueueEntry {
	queue := make([]QueueEntry, len(d.Queue))
	copy(queue, d.Queue)
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Timestamp.Before(queue[j].Timestamp)
	})
	return queue
}
