package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abhyasika/internal/auth"
	"abhyasika/internal/config"
	"abhyasika/internal/identity"
	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
	"abhyasika/internal/repositories"
)

// SuperAdminID is the session id of the configured super admin.
const SuperAdminID = "super-admin"

// hydrationConcurrency bounds parallel collection fetches during hydration.
const hydrationConcurrency = 4

// LoginResult is a resolved session plus the bearer token that names it.
type LoginResult struct {
	Session   *models.Session `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// HydrationReport lists the outcome of each collection fetch.
type HydrationReport struct {
	Loaded  map[string]int `json:"loaded"`
	Failed  []string       `json:"failed"`
	Skipped bool           `json:"skipped"`
}

// ─── Login Strategies ─────────────────────────────────────────────────────────

// LoginStrategy resolves a privileged identity outside tenant lookup. Login
// reports handled=false to fall through to the next strategy.
type LoginStrategy interface {
	Name() string
	Login(identifier, secret string) (sess *models.Session, handled bool)
}

type configuredIdentity struct {
	name     string
	identity config.Identity
	build    func(config.Identity) *models.Session
}

func (c configuredIdentity) Name() string { return c.name }

func (c configuredIdentity) Login(identifier, secret string) (*models.Session, bool) {
	if c.identity.Email == "" || c.identity.Password == "" {
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(identifier), c.identity.Email) || secret != c.identity.Password {
		return nil, false
	}
	return c.build(c.identity), true
}

// SuperAdminStrategy signs in the configured super admin.
func SuperAdminStrategy(id config.Identity) LoginStrategy {
	return configuredIdentity{name: "super_admin", identity: id, build: func(id config.Identity) *models.Session {
		return &models.Session{
			ID:          SuperAdminID,
			Email:       id.Email,
			DisplayName: id.DisplayName,
			Role:        models.RoleSuperAdmin,
		}
	}}
}

// DemoStrategy signs in the configured demo tenant. Demo sessions never touch
// the remote store.
func DemoStrategy(demo config.Demo) LoginStrategy {
	return configuredIdentity{name: "demo", identity: demo.Identity, build: func(id config.Identity) *models.Session {
		return &models.Session{
			ID:          demo.LibraryID,
			Email:       id.Email,
			DisplayName: id.DisplayName,
			Role:        models.RoleAdmin,
			IsDemo:      true,
		}
	}}
}

// ─── Service ──────────────────────────────────────────────────────────────────

type SessionService struct {
	repos      *repositories.Repositories
	store      remote.Store
	provider   identity.Provider
	tokens     *auth.TokenIssuer
	library    LibraryService
	strategies []LoginStrategy
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type SessionServiceConfig struct {
	Repos      *repositories.Repositories
	Store      remote.Store
	Provider   identity.Provider
	Tokens     *auth.TokenIssuer
	Library    LibraryService
	Strategies []LoginStrategy
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func NewSessionService(cfg SessionServiceConfig) *SessionService {
	s := &SessionService{
		repos:      cfg.Repos,
		store:      cfg.Store,
		provider:   cfg.Provider,
		tokens:     cfg.Tokens,
		library:    cfg.Library,
		strategies: cfg.Strategies,
		logger:     cfg.Logger,
		metrics:    metrics.OrNew(cfg.Metrics),
		now:        cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Login tries the privileged strategies in order, then standard tenant
// resolution. A standard login hydrates the tenant's collections before the
// session is returned.
func (s *SessionService) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	for _, strategy := range s.strategies {
		sess, handled := strategy.Login(identifier, secret)
		if !handled {
			continue
		}
		s.metrics.Logins.WithLabelValues(strategy.Name(), metrics.ResultOK).Inc()
		if sess.IsDemo {
			s.ensureDefaultRoom(ctx, sess)
		}
		return s.open(sess)
	}

	sess, err := s.resolveTenant(ctx, identifier, secret)
	if err != nil {
		s.metrics.Logins.WithLabelValues("standard", metrics.ResultError).Inc()
		s.logger.Info("login rejected", zap.String("identifier", identifier), zap.Error(err))
		return nil, err
	}
	s.metrics.Logins.WithLabelValues("standard", metrics.ResultOK).Inc()
	s.Hydrate(ctx, sess)
	return s.open(sess)
}

func (s *SessionService) resolveTenant(ctx context.Context, identifier, secret string) (*models.Session, error) {
	principal, err := s.provider.SignIn(ctx, identifier, secret)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return nil, ErrInvalidCredentials
	case errors.Is(err, identity.ErrProviderDisabled):
		return nil, ErrProviderDisabled
	case err != nil:
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if !principal.Verified {
		_ = s.provider.SignOut(ctx, principal.UID)
		return nil, ErrEmailNotVerified
	}

	account, err := s.findAccount(ctx, principal.Email)
	if err != nil {
		_ = s.provider.SignOut(ctx, principal.UID)
		return nil, err
	}
	if !account.Active {
		_ = s.provider.SignOut(ctx, principal.UID)
		return nil, ErrAccountInactive
	}
	if err := s.repos.Accounts.Put(nil, account); err != nil {
		s.logger.Warn("account not cached", zap.String("library_id", account.ID), zap.Error(err))
	}

	return &models.Session{
		ID:                account.ID,
		Email:             account.Email,
		DisplayName:       account.Name,
		Role:              models.RoleAdmin,
		LicenseExpiry:     account.LicenseExpiry,
		AccountLicenseKey: account.LicenseKey,
	}, nil
}

// findAccount looks the tenant up by email in the remote store, falling back to
// the cached account list when the store is unreachable.
func (s *SessionService) findAccount(ctx context.Context, email string) (models.LibraryAccount, error) {
	docs, err := s.store.Query(ctx, repositories.CollectionAccounts, map[string]any{"email": email})
	if err != nil {
		s.logger.Warn("account lookup failed, using cached accounts", zap.String("email", email), zap.Error(err))
		for _, a := range s.repos.Accounts.List(nil) {
			if strings.EqualFold(a.Email, email) {
				return a, nil
			}
		}
		return models.LibraryAccount{}, ErrInvalidCredentials
	}
	for _, doc := range docs {
		account, err := models.Decode[models.LibraryAccount](doc)
		if err != nil {
			s.logger.Warn("skipping malformed account", zap.String("email", email), zap.Error(err))
			continue
		}
		return account, nil
	}
	return models.LibraryAccount{}, ErrInvalidCredentials
}

func (s *SessionService) open(sess *models.Session) (*LoginResult, error) {
	sess.SessionID = uuid.NewString()
	sess.CreatedAt = s.now()
	if err := s.repos.Sessions.Save(sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	token, exp, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session opened",
		zap.String("session_id", sess.SessionID),
		zap.String("role", string(sess.Role)),
		zap.String("library_id", sess.LibraryID()),
		zap.Bool("demo", sess.IsDemo))
	return &LoginResult{Session: sess, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to its live session. A tenant session
// follows its cached account: a deactivated or deleted account ends the
// session, and plan or license edits apply on the next request.
func (s *SessionService) Authenticate(token string) (*models.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	sess, err := s.repos.Sessions.Get(claims.SessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if sess.Role != models.RoleAdmin || sess.IsDemo {
		return sess, nil
	}
	return s.refresh(sess)
}

func (s *SessionService) refresh(sess *models.Session) (*models.Session, error) {
	account, ok := s.repos.Accounts.Get(nil, sess.ID)
	switch {
	case !ok:
		_ = s.repos.Sessions.Delete(sess.SessionID)
		return nil, ErrUnauthenticated
	case !account.Active:
		_ = s.repos.Sessions.Delete(sess.SessionID)
		s.logger.Info("session closed for inactive account", zap.String("library_id", account.ID))
		return nil, ErrAccountInactive
	}

	if !sameExpiry(sess.LicenseExpiry, account.LicenseExpiry) ||
		sess.AccountLicenseKey != account.LicenseKey ||
		sess.DisplayName != account.Name {
		sess.LicenseExpiry = account.LicenseExpiry
		sess.AccountLicenseKey = account.LicenseKey
		sess.DisplayName = account.Name
		if err := s.repos.Sessions.Save(sess); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
	}
	return sess, nil
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Logout destroys the session and closes the provider session of a standard
// tenant login.
func (s *SessionService) Logout(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if err := s.repos.Sessions.Delete(sess.SessionID); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	if sess.Role == models.RoleAdmin && !sess.IsDemo {
		_ = s.provider.SignOut(ctx, sess.ID)
	}
	s.logger.Info("session closed", zap.String("session_id", sess.SessionID))
	return nil
}

// ─── Hydration ────────────────────────────────────────────────────────────────

// Hydrate replaces every cached tenant collection with the remote copy. Each
// collection is fetched independently; a failed fetch keeps the cached value
// and never fails the caller. Afterwards the default room is ensured and seat
// occupancy reconciled.
func (s *SessionService) Hydrate(ctx context.Context, sess *models.Session) HydrationReport {
	report := HydrationReport{Loaded: make(map[string]int)}
	if sess.LibraryID() == "" || sess.IsDemo {
		report.Skipped = true
		return report
	}

	fetches := []func() hydrationOutcome{
		collectionFetch(ctx, s, sess, s.repos.Students),
		collectionFetch(ctx, s, sess, s.repos.Seats),
		collectionFetch(ctx, s, sess, s.repos.Rooms),
		collectionFetch(ctx, s, sess, s.repos.Payments),
		collectionFetch(ctx, s, sess, s.repos.Enquiries),
		collectionFetch(ctx, s, sess, s.repos.Attendance),
		collectionFetch(ctx, s, sess, s.repos.Notifications),
		singletonFetch(ctx, s, sess, s.repos.Profile, func() models.LibraryProfile {
			return models.DefaultProfile(sess.DisplayName)
		}),
		singletonFetch(ctx, s, sess, s.repos.Settings, models.DefaultSettings),
	}

	results := make([]hydrationOutcome, len(fetches))
	var g errgroup.Group
	g.SetLimit(hydrationConcurrency)
	for i, fetch := range fetches {
		g.Go(func() error {
			results[i] = fetch()
			return nil
		})
	}
	_ = g.Wait()

	// Fetched collections replace the cache under the tenant lock, so a
	// compound seat/student write never sees half a hydration.
	unlock := s.lockTenant(sess.LibraryID())
	for i, r := range results {
		if r.err == nil && r.apply != nil {
			results[i].err = r.apply()
		}
	}
	unlock()

	for _, r := range results {
		if r.err != nil {
			report.Failed = append(report.Failed, r.collection)
			s.metrics.Hydrations.WithLabelValues(r.collection, metrics.ResultError).Inc()
			s.logger.Warn("hydration fetch failed",
				zap.String("collection", r.collection),
				zap.String("library_id", sess.LibraryID()),
				zap.Error(r.err))
			continue
		}
		report.Loaded[r.collection] = r.count
		s.metrics.Hydrations.WithLabelValues(r.collection, metrics.ResultOK).Inc()
	}

	s.ensureDefaultRoom(ctx, sess)
	if _, err := s.library.Reconcile(ctx, sess); err != nil {
		s.logger.Warn("post-hydration reconcile failed", zap.String("library_id", sess.LibraryID()), zap.Error(err))
	}
	s.logger.Info("hydration finished",
		zap.String("library_id", sess.LibraryID()),
		zap.Any("loaded", report.Loaded),
		zap.Strings("failed", report.Failed))
	return report
}

// hydrationOutcome is one fetched collection. apply writes it to the cache.
type hydrationOutcome struct {
	collection string
	count      int
	apply      func() error
	err        error
}

func collectionFetch[T models.Entity](ctx context.Context, s *SessionService, sess *models.Session, coll *repositories.Collection[T]) func() hydrationOutcome {
	return func() hydrationOutcome {
		n, apply, err := hydrateCollection(ctx, s, sess, coll)
		return hydrationOutcome{collection: coll.Name(), count: n, apply: apply, err: err}
	}
}

func singletonFetch[T any](ctx context.Context, s *SessionService, sess *models.Session, doc *repositories.Document[T], defaults func() T) func() hydrationOutcome {
	return func() hydrationOutcome {
		n, apply, err := hydrateSingleton(ctx, s, sess, doc, defaults)
		return hydrationOutcome{collection: doc.Name(), count: n, apply: apply, err: err}
	}
}

func hydrateCollection[T models.Entity](ctx context.Context, s *SessionService, sess *models.Session, coll *repositories.Collection[T]) (int, func() error, error) {
	docs, err := s.store.Query(ctx, coll.Name(), map[string]any{remote.FieldLibraryID: sess.LibraryID()})
	if err != nil {
		return 0, nil, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := models.Decode[T](doc)
		if err != nil {
			s.logger.Warn("skipping malformed document",
				zap.String("collection", coll.Name()),
				zap.Any("id", doc["id"]),
				zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return len(items), func() error { return coll.Replace(sess, items) }, nil
}

// hydrateSingleton loads a per-tenant document. When none exists remotely the
// default is created, but only while the provider session is live, so an
// offline login never overwrites remote data it could not see.
func hydrateSingleton[T any](ctx context.Context, s *SessionService, sess *models.Session, doc *repositories.Document[T], defaults func() T) (int, func() error, error) {
	docs, err := s.store.Query(ctx, doc.Name(), map[string]any{remote.FieldLibraryID: sess.LibraryID()})
	if err != nil {
		return 0, nil, err
	}
	for _, d := range docs {
		v, err := models.Decode[T](d)
		if err != nil {
			s.logger.Warn("skipping malformed document", zap.String("collection", doc.Name()), zap.Error(err))
			continue
		}
		return 1, func() error { return doc.Replace(sess, v) }, nil
	}
	if !s.provider.Authenticated(sess.ID) {
		return 0, nil, nil
	}
	return 1, func() error { return doc.Save(ctx, sess, defaults()) }, nil
}

// lockTenant takes the library service's tenant lock when it has one.
func (s *SessionService) lockTenant(libraryID string) func() {
	if l, ok := s.library.(tenantLocker); ok {
		return l.lockTenant(libraryID)
	}
	return func() {}
}

// ensureDefaultRoom creates the default room when the tenant has none.
func (s *SessionService) ensureDefaultRoom(ctx context.Context, sess *models.Session) {
	if len(s.library.ListRooms(sess)) > 0 {
		return
	}
	_, err := s.library.AddRoom(ctx, sess, models.Room{ID: DefaultRoomID, Name: DefaultRoomName})
	if err != nil && !errors.Is(err, ErrRoomExists) {
		s.logger.Warn("default room not created", zap.String("library_id", sess.LibraryID()), zap.Error(err))
	}
}
