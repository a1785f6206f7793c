package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"abhyasika/internal/auth"
	"abhyasika/internal/cache"
	"abhyasika/internal/config"
	"abhyasika/internal/identity"
	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
	"abhyasika/internal/repositories"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *captureMailer) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[email] = token
	return nil
}

func (m *captureMailer) token(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type fixture struct {
	cache    *cache.Memory
	store    *remote.Memory
	repos    *repositories.Repositories
	idp      *identity.Service
	mailer   *captureMailer
	metrics  *metrics.Metrics
	clock    *testClock
	library  LibraryService
	sessions *SessionService
	accounts *AccountService
	notify   *NotificationService
	attend   *AttendanceService
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	superAdminIdentity = config.Identity{Email: "root@abhyasika.in", Password: "root-pass", DisplayName: "Super Admin"}
	demoIdentity       = config.Demo{
		Identity:  config.Identity{Email: "demo@abhyasika.in", Password: "demo-pass", DisplayName: "Demo Library"},
		LibraryID: "demo-library",
	}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cache:   cache.NewMemory(),
		store:   remote.NewMemory(),
		mailer:  &captureMailer{},
		metrics: metrics.New(nil),
		clock:   &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, ist)},
	}
	f.repos = repositories.New(f.cache, f.store, nil, f.metrics)
	f.idp = identity.NewService(identity.NewMemoryCredentialStore(), identity.Options{
		Enabled:           true,
		BcryptCost:        bcrypt.MinCost,
		MinPasswordLength: 6,
		Mailer:            f.mailer,
	})
	f.library = NewLibraryService(f.repos, nil, f.clock.Now)
	f.sessions = NewSessionService(SessionServiceConfig{
		Repos:      f.repos,
		Store:      f.store,
		Provider:   f.idp,
		Tokens:     auth.NewTokenIssuer("test-secret", time.Hour),
		Library:    f.library,
		Strategies: []LoginStrategy{SuperAdminStrategy(superAdminIdentity), DemoStrategy(demoIdentity)},
		Metrics:    f.metrics,
		Now:        f.clock.Now,
	})
	f.accounts = NewAccountService(f.repos, f.store, f.idp, nil)
	f.notify = NewNotificationService(f.repos, f.store, 100, nil, f.metrics, f.clock.Now)
	f.attend = NewAttendanceService(f.repos, ist, 3*time.Second, nil, f.clock.Now)
	return f
}

func tenant(lib string) *models.Session {
	return &models.Session{SessionID: "sess-" + lib, ID: lib, Role: models.RoleAdmin, DisplayName: "Lib " + lib}
}

func superAdmin() *models.Session {
	return &models.Session{SessionID: "sess-root", ID: SuperAdminID, Role: models.RoleSuperAdmin}
}

// registerTenant creates a login plus its account document in the remote store.
func (f *fixture) registerTenant(t *testing.T, email string, verified, active bool) models.LibraryAccount {
	t.Helper()
	ctx := context.Background()
	p, err := f.idp.SignUp(ctx, email, "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if verified {
		if err := f.idp.SendVerificationEmail(ctx, p.UID); err != nil {
			t.Fatal(err)
		}
		if _, err := f.idp.Verify(ctx, f.mailer.token(p.Email)); err != nil {
			t.Fatal(err)
		}
	}
	account := models.LibraryAccount{
		ID:     p.UID,
		Email:  p.Email,
		Name:   "Lib " + email,
		Active: active,
		Plan:   models.PlanBasic,
	}
	f.seed(t, repositories.CollectionAccounts, account.ID, account, "")
	return account
}

// seed writes v straight to the remote store under lib, stamped with lib when set.
func (f *fixture) seed(t *testing.T, collection, id string, v any, lib string) {
	t.Helper()
	doc, err := models.Sanitize(v)
	if err != nil {
		t.Fatal(err)
	}
	if lib != "" {
		doc[remote.FieldLibraryID] = lib
	}
	if err := f.store.Upsert(context.Background(), collection, lib, id, doc); err != nil {
		t.Fatal(err)
	}
}

// assertSeatInvariant checks that a seat is OCCUPIED exactly when it names a
// student pointing back at it, and that every seated student's seat names them.
func assertSeatInvariant(t *testing.T, repos *repositories.Repositories, sess *models.Session) {
	t.Helper()
	students := make(map[string]models.Student)
	for _, st := range repos.Students.List(sess) {
		students[st.ID] = st
	}
	seats := make(map[string]models.Seat)
	for _, seat := range repos.Seats.List(sess) {
		seats[seat.ID] = seat
		st, ok := students[seat.StudentID]
		linked := seat.StudentID != "" && ok && seatOf(st) == seat.ID
		if (seat.Status == models.SeatStatusOccupied) != linked {
			t.Errorf("seat %s: status %s, studentId %q, linked %v", seat.ID, seat.Status, seat.StudentID, linked)
		}
	}
	for _, st := range students {
		if !st.HasSeat() {
			continue
		}
		if seat, ok := seats[*st.SeatID]; !ok || seat.StudentID != st.ID {
			t.Errorf("student %s points at seat %s which does not name them", st.ID, *st.SeatID)
		}
	}
}
