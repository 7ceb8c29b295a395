// Package directory owns the canonical check-in document and every mutation
// of it. All state changes go through the Service, which enforces unique
// usernames, snapshot fields on queue entries, and cascade deletes, and
// commits the whole document atomically per operation.
package directory

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"checkin/api/internal/bus"
	"checkin/api/internal/credential"
	"checkin/api/internal/store"
	"checkin/api/internal/util"
)

// emailPattern accepts the three university student/staff domains. The same
// pattern gates student check-in, advisor creation, and CSV import.
var emailPattern = regexp.MustCompile(`(?i)@(email|mail|sc)\.sc\.edu$`)

// ValidEmail reports whether an address belongs to one of the accepted
// university domains.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// defaultReasons seed a fresh Directory so the check-in form is usable
// before an admin ever customizes anything.
var defaultReasons = []string{
	"Academic advising follow-up",
	"Course registration support",
	"Change of major exploration",
	"Scholarship or financial aid question",
}

// Store is the slice of the persistent store the Service needs.
type Store interface {
	Load(ctx context.Context) (store.Directory, bool, error)
	Save(ctx context.Context, directory store.Directory) error
}

// Config wires a Service.
type Config struct {
	Store       Store
	Credentials *credential.Service
	Bus         *bus.Bus

	// Owner seed account, created once at first run.
	OwnerUsername string
	OwnerEmail    string
	OwnerPassword string

	// Now is the clock used for queue timestamps; nil means time.Now.
	Now func() time.Time
}

// Service is the single logical writer for the Directory in this process.
// Every mutation is a full load → validate → mutate → save sequence under
// one mutex; across processes, writes are last-write-wins at document
// granularity.
type Service struct {
	store Store
	creds *credential.Service
	bus   *bus.Bus

	ownerUsername string
	ownerEmail    string
	ownerPassword string

	now func() time.Time
	mu  sync.Mutex
}

func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:         cfg.Store,
		creds:         cfg.Credentials,
		bus:           cfg.Bus,
		ownerUsername: strings.ToUpper(strings.TrimSpace(cfg.OwnerUsername)),
		ownerEmail:    strings.TrimSpace(cfg.OwnerEmail),
		ownerPassword: cfg.OwnerPassword,
		now:           now,
	}
}

func (s *Service) defaultDirectory() store.Directory {
	directory := store.Directory{
		Admins: []store.Admin{{
			ID:             util.NewID("admin"),
			Username:       s.ownerUsername,
			Email:          s.ownerEmail,
			PasswordDigest: s.creds.Digest(s.ownerPassword),
			Role:           store.RoleOwner,
		}},
		Advisors: []store.Advisor{},
		Reasons:  make([]store.Reason, 0, len(defaultReasons)),
		Queue:    []store.QueueEntry{},
		Colleges: []string{},
	}
	for _, label := range defaultReasons {
		directory.Reasons = append(directory.Reasons, store.Reason{
			ID:    util.NewID("reason"),
			Label: label,
		})
	}
	return directory
}

// load returns the current Directory, substituting freshly seeded defaults
// when the store is empty or holds an unparseable document. The second
// result tells the caller the defaults are not persisted yet.
func (s *Service) load(ctx context.Context) (store.Directory, bool, error) {
	directory, ok, err := s.store.Load(ctx)
	if err != nil {
		return store.Directory{}, false, err
	}
	if !ok {
		return s.defaultDirectory(), true, nil
	}
	return directory, false, nil
}

// commit persists the whole document and signals this process's views
// immediately, ahead of the store's own cross-process broadcast.
func (s *Service) commit(ctx context.Context, directory store.Directory) error {
	if err := s.store.Save(ctx, directory); err != nil {
		return err
	}
	s.bus.Publish()
	return nil
}

// SeedIfAbsent creates the owner account and default reasons at first run.
// Idempotent: an existing Directory, whatever its content, is left alone.
func (s *Service) SeedIfAbsent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.commit(ctx, s.defaultDirectory())
}

// Snapshot returns the current Directory for read-side projections,
// reseeding defaults if the stored document is absent or corrupt.
func (s *Service) Snapshot(ctx context.Context) (store.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	directory, seeded, err := s.load(ctx)
	if err != nil {
		return store.Directory{}, err
	}
	if seeded {
		if err := s.commit(ctx, directory); err != nil {
			return store.Directory{}, err
		}
	}
	return directory, nil
}

// CheckInInput is a student's check-in submission.
type CheckInInput struct {
	Name     string
	Email    string
	College  string
	Advisor  store.AdvisorSelector
	ReasonID string
	Notes    string
}

// EnqueueCheckIn validates a submission and appends a queue entry stamped
// with the current instant. The reason label is frozen into the entry.
// Selecting a specific advisor deliberately bypasses the college match; only
// the any-advisor variant is college-gated, at routing time.
func (s *Service) EnqueueCheckIn(ctx context.Context, in CheckInInput) (store.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidEmail(in.Email) {
		return store.QueueEntry{}, validationError("email", "Please use your USC @email.sc.edu address.")
	}
	if strings.TrimSpace(in.ReasonID) == "" {
		return store.QueueEntry{}, validationError("reasonId", "Please select a reason so we can route your visit.")
	}

	directory, _, err := s.load(ctx)
	if err != nil {
		return store.QueueEntry{}, err
	}
	reason, ok := directory.FindReason(strings.TrimSpace(in.ReasonID))
	if !ok {
		return store.QueueEntry{}, validationError("reasonId", "Selected reason is no longer available. Please refresh.")
	}

	entry := store.QueueEntry{
		ID:           util.NewID("queue"),
		StudentName:  strings.TrimSpace(in.Name),
		StudentEmail: strings.TrimSpace(in.Email),
		College:      strings.TrimSpace(in.College),
		Advisor:      in.Advisor,
		ReasonID:     reason.ID,
		ReasonLabel:  reason.Label,
		Notes:        strings.TrimSpace(in.Notes),
		Timestamp:    s.now().UTC(),
	}
	if entry.Advisor.IsAny() {
		entry.AdvisorName = "Any available advisor"
	}

	directory.Queue = append(directory.Queue, entry)
	if err := s.commit(ctx, directory); err != nil {
		return store.QueueEntry{}, err
	}
	return entry, nil
}

// RemoveQueueEntry deletes a queue entry once served. Removing an id that is
// already gone is a successful no-op: two viewers racing to serve the same
// student must both succeed.
func (s *Service) RemoveQueueEntry(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	directory, _, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := directory.Queue[:0]
	for _, entry := range directory.Queue {
		if entry.ID != entryID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(directory.Queue) {
		return nil
	}
	directory.Queue = kept
	return s.commit(ctx, directory)
}

// AdvisorFields are the inputs for creating one advisor, from the admin form
// or one CSV row.
type AdvisorFields struct {
	FirstName string
	LastName  string
	Email     string
	Username  string
	College   string
}

func (f AdvisorFields) trimmed() AdvisorFields {
	return AdvisorFields{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Email:     strings.TrimSpace(f.Email),
		Username:  strings.ToUpper(strings.TrimSpace(f.Username)),
		College:   strings.TrimSpace(f.College),
	}
}

func (f AdvisorFields) blank() bool {
	return f.FirstName == "" || f.LastName == "" || f.Email == "" || f.Username == "" || f.College == ""
}

// addAdvisor applies the shared advisor-creation rules to an in-memory
// Directory. The caller decides whether a failure aborts (form add) or just
// skips the row (CSV import).
func (s *Service) addAdvisor(directory *store.Directory, fields AdvisorFields) (store.Advisor, string, *DomainError) {
	fields = fields.trimmed()
	if fields.blank() {
		return store.Advisor{}, "", validationError("advisor", "All advisor fields are required.")
	}
	if !ValidEmail(fields.Email) {
		return store.Advisor{}, "", validationError("email", "Please use a valid USC email.")
	}
	if _, exists := directory.FindAdvisor(fields.Username); exists {
		return store.Advisor{}, "", conflictError("That username is already in use.")
	}

	defaultPassword := fields.Email[:strings.Index(fields.Email, "@")]
	advisor := store.Advisor{
		ID:             util.NewID("advisor"),
		Username:       fields.Username,
		Email:          fields.Email,
		FirstName:      fields.FirstName,
		LastName:       fields.LastName,
		College:        fields.College,
		PasswordDigest: s.creds.Digest(defaultPassword),
	}
	directory.Advisors = append(directory.Advisors, advisor)
	ensureCollege(directory, fields.College)
	return advisor, defaultPassword, nil
}

// ensureCollege registers a college in the dynamic list unless it is already
// effective as a built-in or dynamic entry.
func ensureCollege(directory *store.Directory, college string) {
	college = strings.TrimSpace(college)
	if college == "" {
		return
	}
	for _, existing := range store.BuiltinColleges {
		if existing == college {
			return
		}
	}
	for _, existing := range directory.Colleges {
		if existing == college {
			return
		}
	}
	directory.Colleges = append(directory.Colleges, college)
}

// AddAdvisor creates one advisor from the admin form. The returned string is
// the generated default password (the email local part) so the admin can
// hand it to the advisor.
func (s *Service) AddAdvisor(ctx context.Context, fields AdvisorFields) (store.Advisor, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	directory, _, err := s.load(ctx)
	if err != nil {
		return store.Advisor{}, "", err
	}
	advisor, defaultPassword, derr := s.addAdvisor(&directory, fields)
	if derr != nil {
		return store.Advisor{}, "", derr
	}
	if err := s.commit(ctx, directory); err != nil {
		return store.Advisor{}, "", err
	}
	return advisor, defaultPassword, nil
}

// RemoveAdvisor deletes an advisor and cascades away the queue entries
// addressed specifically to them. Entries routed to any advisor in a college
// survive. Removing an unknown username is a no-op.
func (s *Service) RemoveAdvisor(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToUpper(strings.TrimSpace(username))
	directory, _, err := s.load(ctx)
	if err != nil {
		return err
	}

	advisors := directory.Advisors[:0]
	for _, advisor := range directory.Advisors {
		if advisor.Username != username {
			advisors = append(advisors, advisor)
		}
	}
	if len(advisors) == len(directory.Advisors) {
		return nil
	}
	directory.Advisors = advisors

	queue := directory.Queue[:0]
	for _, entry := range directory.Queue {
		if target, ok := entry.Advisor.Username(); ok && target == username {
			continue
		}
		queue = append(queue, entry)
	}
	directory.Queue = queue
	return s.commit(ctx, directory)
}

// AdminFields are the inputs for creating one admin account.
type AdminFields struct {
	Email    string
	Username string
	Password string
}

// AddAdmin creates an administrator. New accounts always get the admin role;
// the owner exists only from seeding.
func (s *Service) AddAdmin(ctx context.Context, fields AdminFields) (store.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.TrimSpace(fields.Email)
	username := strings.ToUpper(strings.TrimSpace(fields.Username))
	if email == "" || username == "" || fields.Password == "" {
		return store.Admin{}, validationError("admin", "Email, username, and password are required.")
	}

	directory, _, err := s.load(ctx)
	if err != nil {
		return store.Admin{}, err
	}
	if _, exists := directory.FindAdmin(username); exists {
		return store.Admin{}, conflictError("That administrator username already exists.")
	}

	admin := store.Admin{
		ID:             util.NewID("admin"),
		Username:       username,
		Email:          email,
		PasswordDigest: s.creds.Digest(fields.Password),
		Role:           store.RoleAdmin,
	}
	directory.Admins = append(directory.Admins, admin)
	if err := s.commit(ctx, directory); err != nil {
		return store.Admin{}, err
	}
	return admin, nil
}

// AddReason creates a check-in reason.
func (s *Service) AddReason(ctx context.Context, label string) (store.Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label = strings.TrimSpace(label)
	if label == "" {
		return store.Reason{}, validationError("label", "Reason label is required.")
	}

	directory, _, err := s.load(ctx)
	if err != nil {
		return store.Reason{}, err
	}
	reason := store.Reason{ID: util.NewID("reason"), Label: label}
	directory.Reasons = append(directory.Reasons, reason)
	if err := s.commit(ctx, directory); err != nil {
		return store.Reason{}, err
	}
	return reason, nil
}

// RemoveReason deletes a reason and cascades away every queue entry that
// referenced it. Entries keep only the frozen label, so without the cascade
// they would route nowhere meaningful. Unknown ids are a no-op.
func (s *Service) RemoveReason(ctx context.Context, reasonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	directory, _, err := s.load(ctx)
	if err != nil {
		return err
	}

	reasons := directory.Reasons[:0]
	for _, reason := range directory.Reasons {
		if reason.ID != reasonID {
			reasons = append(reasons, reason)
		}
	}
	queue := directory.Queue[:0]
	for _, entry := range directory.Queue {
		if entry.ReasonID != reasonID {
			queue = append(queue, entry)
		}
	}
	if len(reasons) == len(directory.Reasons) && len(queue) == len(directory.Queue) {
		return nil
	}
	directory.Reasons = reasons
	directory.Queue = queue
	return s.commit(ctx, directory)
}

// AddCollege registers a college in the dynamic list. Adding one that is
// already effective (built-in or dynamic) is a no-op; the dynamic list never
// duplicates a built-in entry.
func (s *Service) AddCollege(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label = strings.TrimSpace(label)
	if label == "" {
		return validationError("label", "College name is required.")
	}

	directory, _, err := s.load(ctx)
	if err != nil {
		return err
	}
	before := len(directory.Colleges)
	ensureCollege(&directory, label)
	if len(directory.Colleges) == before {
		return nil
	}
	return s.commit(ctx, directory)
}

// RemoveCollege removes a college from the dynamic list only. Built-in
// colleges are permanent; asking to remove one is a no-op.
func (s *Service) RemoveCollege(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label = strings.TrimSpace(label)
	directory, _, err := s.load(ctx)
	if err != nil {
		return err
	}

	colleges := directory.Colleges[:0]
	for _, college := range directory.Colleges {
		if college != label {
			colleges = append(colleges, college)
		}
	}
	if len(colleges) == len(directory.Colleges) {
		return nil
	}
	directory.Colleges = colleges
	return s.commit(ctx, directory)
}

// ImportAdvisors merges a parsed CSV batch. Rows that are blank, carry an
// invalid email, or collide with a username already in the Directory or
// earlier in the batch are skipped, not errors. The accepted batch is
// persisted in one commit; a batch where every row was skipped is a
// successful import of zero records and writes nothing.
func (s *Service) ImportAdvisors(ctx context.Context, rows []AdvisorFields) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	directory, _, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, row := range rows {
		if _, _, derr := s.addAdvisor(&directory, row); derr != nil {
			continue
		}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.commit(ctx, directory); err != nil {
		return 0, err
	}
	return added, nil
}

// AuthenticateAdvisor verifies advisor credentials and returns the account.
func (s *Service) AuthenticateAdvisor(ctx context.Context, username, password string) (store.Advisor, error) {
	directory, err := s.Snapshot(ctx)
	if err != nil {
		return store.Advisor{}, err
	}
	advisor, ok := directory.FindAdvisor(username)
	if !ok {
		return store.Advisor{}, credentialsError("We couldn't find that advisor account.")
	}
	if !s.creds.Verify(advisor.PasswordDigest, password) {
		return store.Advisor{}, credentialsError("Incorrect password. Please try again.")
	}
	return advisor, nil
}

// AuthenticateAdmin verifies administrator credentials and returns the
// account.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (store.Admin, error) {
	directory, err := s.Snapshot(ctx)
	if err != nil {
		return store.Admin{}, err
	}
	admin, ok := directory.FindAdmin(username)
	if !ok {
		return store.Admin{}, credentialsError("Administrator account not found.")
	}
	if !s.creds.Verify(admin.PasswordDigest, password) {
		return store.Admin{}, credentialsError("Incorrect password. Try again.")
	}
	return admin, nil
}
