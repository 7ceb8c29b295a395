// Package app composes the check-in engine behind the HTTP surface: login
// sessions, identity-scoped queue projections, and the change-signal wiring
// that keeps every open view current.
package app

import (
	"bytes"
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"checkin/api/internal/archive"
	"checkin/api/internal/auth"
	"checkin/api/internal/bus"
	"checkin/api/internal/config"
	"checkin/api/internal/csvimport"
	"checkin/api/internal/directory"
	"checkin/api/internal/router"
	"checkin/api/internal/store"
	"checkin/api/internal/util"
)

// Alert sound identifiers an advisor can choose between. Anything else read
// from the store falls back to the default.
const (
	SoundDing     = "ding"
	SoundDoorbell = "doorbell"
	SoundDoorOpen = "door-open"
)

var soundNames = map[string]string{
	SoundDing:     "Bright ding",
	SoundDoorbell: "Doorbell chime",
	SoundDoorOpen: "Door opening sweep",
}

// NormalizeSound maps unknown or absent preference values to the default.
func NormalizeSound(sound string) string {
	if _, ok := soundNames[sound]; ok {
		return sound
	}
	return SoundDing
}

// dataStore is the slice of the persistent store the app layer touches
// directly; Directory reads and writes go through the directory service.
type dataStore interface {
	SoundPreference(ctx context.Context, username string) (string, error)
	SaveSoundPreference(ctx context.Context, username, sound string) error
	Subscribe(ctx context.Context) (<-chan struct{}, error)
	Ping(ctx context.Context) error
}

// Session is an issued login.
type Session struct {
	Token     string
	Username  string
	Name      string
	Role      string
	Sound     string
	ExpiresAt time.Time
}

type Service struct {
	cfg     config.Config
	store   dataStore
	dir     *directory.Service
	bus     *bus.Bus
	archive *archive.Service

	sessMu          sync.Mutex
	advisorSessions map[string]*router.Session
}

func New(cfg config.Config, dataStore dataStore, dir *directory.Service, changeBus *bus.Bus, importArchive *archive.Service) *Service {
	return &Service{
		cfg:             cfg,
		store:           dataStore,
		dir:             dir,
		bus:             changeBus,
		archive:         importArchive,
		advisorSessions: make(map[string]*router.Session),
	}
}

// Start forwards the store's cross-process change signal into the local
// bus, so a write from any other process reaches this process's views the
// same way its own writes do.
func (s *Service) Start(ctx context.Context) error {
	signals, err := s.store.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				s.bus.Publish()
			}
		}
	}()
	return nil
}

// SubscribeChanges hands a view the merged change signal: local writes
// immediately, remote writes as the store delivers them.
func (s *Service) SubscribeChanges(ctx context.Context) <-chan struct{} {
	return s.bus.Subscribe(ctx)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) issueSession(username, name, role string) (Session, string, error) {
	sid := util.NewID("sid")
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  username,
		Name: name,
		Role: role,
		SID:  sid,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, "", err
	}
	return Session{
		Token:     token,
		Username:  username,
		Name:      name,
		Role:      role,
		ExpiresAt: expiresAt,
	}, sid, nil
}

// AdvisorLogin authenticates an advisor and opens a fresh queue-observation
// session, so the first queue computation after login never chimes.
func (s *Service) AdvisorLogin(ctx context.Context, username, password string) (Session, error) {
	advisor, err := s.dir.AuthenticateAdvisor(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	session, sid, err := s.issueSession(advisor.Username, advisor.DisplayName(), auth.RoleAdvisor)
	if err != nil {
		return Session{}, err
	}

	s.sessMu.Lock()
	s.advisorSessions[sid] = router.NewSession()
	s.sessMu.Unlock()

	sound, err := s.store.SoundPreference(ctx, advisor.Username)
	if err != nil {
		return Session{}, err
	}
	session.Sound = NormalizeSound(sound)
	return session, nil
}

// AdvisorLogout discards the queue-observation state for one login.
func (s *Service) AdvisorLogout(sid string) {
	s.sessMu.Lock()
	delete(s.advisorSessions, sid)
	s.sessMu.Unlock()
}

// AdminLogin authenticates an administrator. Admin sessions are stateless;
// the role claim carries owner vs admin.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (Session, error) {
	admin, err := s.dir.AuthenticateAdmin(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	session, _, err := s.issueSession(admin.Username, admin.Username, admin.Role)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) advisorSession(sid string) *router.Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	session, ok := s.advisorSessions[sid]
	if !ok {
		// A restart loses session state; rebuild it so the next computation
		// re-baselines instead of chiming for the whole queue.
		session = router.NewSession()
		s.advisorSessions[sid] = session
	}
	return session
}

// StudentOptions are the selectable inputs of the check-in form, re-derived
// on every directory change: the effective colleges, the reasons, and the
// advisor choices for the currently chosen college.
func (s *Service) StudentOptions(ctx context.Context, college string) (map[string]any, error) {
	d, err := s.dir.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	reasons := make([]map[string]any, 0)
	for _, reason := range d.SortedReasons() {
		reasons = append(reasons, map[string]any{"id": reason.ID, "label": reason.Label})
	}

	advisorOptions := make([]map[string]any, 0)
	if college != "" {
		advisors := d.AdvisorsByCollege(college)
		anyLabel := "Any advisor in this college"
		if len(advisors) > 0 {
			anyLabel = "Any available advisor"
		}
		advisorOptions = append(advisorOptions, map[string]any{"value": "ANY", "label": anyLabel})
		for _, advisor := range advisors {
			advisorOptions = append(advisorOptions, map[string]any{
				"value": advisor.Username,
				"label": advisor.DisplayName(),
			})
		}
	}

	return map[string]any{
		"colleges": d.EffectiveColleges(),
		"reasons":  reasons,
		"advisors": advisorOptions,
		// The form cannot submit while no reasons exist to route by.
		"canSubmit": len(d.Reasons) > 0,
	}, nil
}

// CheckInInput is the student submission as it arrives over the wire; the
// advisor field is the raw selector string ("ANY" or a username).
type CheckInInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	College  string `json:"college"`
	Advisor  string `json:"advisor"`
	ReasonID string `json:"reasonId"`
	Notes    string `json:"notes"`
}

// CheckIn enqueues a student.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (map[string]any, error) {
	selector := store.SpecificAdvisor(in.Advisor)
	if trimmed := strings.TrimSpace(in.Advisor); trimmed == "" || strings.EqualFold(trimmed, "ANY") {
		selector = store.AnyAdvisor()
	}

	entry, err := s.dir.EnqueueCheckIn(ctx, directory.CheckInInput{
		Name:     in.Name,
		Email:    in.Email,
		College:  in.College,
		Advisor:  selector,
		ReasonID: in.ReasonID,
		Notes:    in.Notes,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          entry.ID,
		"reasonLabel": entry.ReasonLabel,
		"checkedInAt": entry.Timestamp.Format(time.RFC3339),
	}, nil
}

// AdvisorQueue computes one advisor's visible queue and the new-arrival
// delta for their session.
func (s *Service) AdvisorQueue(ctx context.Context, claims auth.Claims) (map[string]any, error) {
	d, err := s.dir.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	advisor, ok := d.FindAdvisor(claims.Sub)
	if !ok {
		// The account was deleted while the session was live.
		return nil, auth.ErrInvalidToken
	}

	visible := router.Visible(d, advisor)
	arrivals, chime := s.advisorSession(claims.SID).Observe(visible)

	items := make([]map[string]any, 0, len(visible))
	for _, entry := range visible {
		assignment := "Assigned to you"
		if entry.Advisor.IsAny() {
			assignment = "Any available advisor"
		}
		items = append(items, map[string]any{
			"id":           entry.ID,
			"studentName":  entry.StudentName,
			"studentEmail": entry.StudentEmail,
			"college":      entry.College,
			"reason":       entry.ReasonLabel,
			"notes":        entry.Notes,
			"assignment":   assignment,
			"checkedInAt":  entry.Timestamp.Format(time.RFC3339),
		})
	}

	arrivalIDs := make([]string, 0, len(arrivals))
	for _, entry := range arrivals {
		arrivalIDs = append(arrivalIDs, entry.ID)
	}

	sound, err := s.store.SoundPreference(ctx, advisor.Username)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"items":       items,
		"newArrivals": arrivalIDs,
		"chime":       chime,
		"sound":       NormalizeSound(sound),
	}, nil
}

// ServeQueueEntry marks a student as served. Serving an entry someone else
// already removed succeeds silently.
func (s *Service) ServeQueueEntry(ctx context.Context, entryID string) error {
	return s.dir.RemoveQueueEntry(ctx, entryID)
}

// Sound returns an advisor's alert-sound preference.
func (s *Service) Sound(ctx context.Context, username string) (map[string]any, error) {
	sound, err := s.store.SoundPreference(ctx, username)
	if err != nil {
		return nil, err
	}
	sound = NormalizeSound(sound)
	return map[string]any{"sound": sound, "name": soundNames[sound]}, nil
}

// SetSound stores an advisor's alert-sound preference.
func (s *Service) SetSound(ctx context.Context, username, sound string) error {
	if _, ok := soundNames[sound]; !ok {
		return &directory.DomainError{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "sound must be one of ding, doorbell, door-open",
		}
	}
	return s.store.SaveSoundPreference(ctx, username, sound)
}

// AdminDashboard is the full administrative projection: the whole queue with
// resolved advisor names, both account tables, and the reason and college
// tag lists.
func (s *Service) AdminDashboard(ctx context.Context) (map[string]any, error) {
	d, err := s.dir.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	queue := make([]map[string]any, 0, len(d.Queue))
	for _, entry := range d.SortedQueue() {
		queue = append(queue, map[string]any{
			"id":           entry.ID,
			"studentName":  entry.StudentName,
			"studentEmail": entry.StudentEmail,
			"college":      entry.College,
			"advisor":      router.DisplayAssignment(d, entry),
			"reason":       entry.ReasonLabel,
			"notes":        entry.Notes,
			"checkedInAt":  entry.Timestamp.Format(time.RFC3339),
		})
	}

	advisors := make([]map[string]any, 0, len(d.Advisors))
	for _, advisor := range sortedAdvisors(d) {
		advisors = append(advisors, map[string]any{
			"name":     advisor.DisplayName(),
			"email":    advisor.Email,
			"username": advisor.Username,
			"college":  advisor.College,
		})
	}

	admins := make([]map[string]any, 0, len(d.Admins))
	for _, admin := range sortedAdmins(d) {
		admins = append(admins, map[string]any{
			"email":    admin.Email,
			"username": admin.Username,
			"role":     admin.Role,
		})
	}

	reasons := make([]map[string]any, 0, len(d.Reasons))
	for _, reason := range d.SortedReasons() {
		reasons = append(reasons, map[string]any{"id": reason.ID, "label": reason.Label})
	}

	colleges := make([]map[string]any, 0)
	for _, college := range d.EffectiveColleges() {
		colleges = append(colleges, map[string]any{
			"label":     college,
			"removable": !isBuiltinCollege(college),
		})
	}

	return map[string]any{
		"queue":    queue,
		"advisors": advisors,
		"admins":   admins,
		"reasons":  reasons,
		"colleges": colleges,
	}, nil
}

// AddAdvisor creates one advisor and reports the generated default password.
func (s *Service) AddAdvisor(ctx context.Context, fields directory.AdvisorFields) (map[string]any, error) {
	advisor, defaultPassword, err := s.dir.AddAdvisor(ctx, fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username":        advisor.Username,
		"name":            advisor.DisplayName(),
		"defaultPassword": defaultPassword,
	}, nil
}

// ImportAdvisorsCSV parses and merges a CSV batch and, when an archive is
// configured, stores the raw file for auditing. An archive failure is logged
// but never undoes a completed import.
func (s *Service) ImportAdvisorsCSV(ctx context.Context, raw []byte) (map[string]any, error) {
	rows, err := csvimport.ParseAdvisorRows(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	added, err := s.dir.ImportAdvisors(ctx, rows)
	if err != nil {
		return nil, err
	}

	archived := ""
	if s.archive != nil {
		object, err := s.archive.StoreImport(ctx, raw, added)
		if err != nil {
			log.Printf("WARNING: import succeeded but archiving failed: %v", err)
		} else {
			archived = object
		}
	}

	payload := map[string]any{"added": added}
	if archived != "" {
		payload["archived"] = archived
	}
	return payload, nil
}

func isBuiltinCollege(college string) bool {
	for _, builtin := range store.BuiltinColleges {
		if builtin == college {
			return true
		}
	}
	return false
}

func sortedAdvisors(d store.Directory) []store.Advisor {
	advisors := make([]store.Advisor, len(d.Advisors))
	copy(advisors, d.Advisors)
	sort.Slice(advisors, func(i, j int) bool {
		return advisors[i].DisplayName() < advisors[j].DisplayName()
	})
	return advisors
}

func sortedAdmins(d store.Directory) []store.Admin {
	admins := make([]store.Admin, len(d.Admins))
	copy(admins, d.Admins)
	sort.Slice(admins, func(i, j int) bool {
		return admins[i].Username < admins[j].Username
	})
	return admins
}
