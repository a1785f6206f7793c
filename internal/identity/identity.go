// Package identity is the email/password identity provider: credential
// storage, sign-up rules, verification emails and provider-side sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmailAlreadyInUse is returned by SignUp when the email is registered.
	ErrEmailAlreadyInUse = errors.New("email already in use")

	// ErrWeakPassword is returned by SignUp when the secret is too short.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrInvalidEmail is returned by SignUp when the identifier is not an email address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrProviderDisabled is returned when password sign-in is switched off.
	ErrProviderDisabled = errors.New("password sign-in is disabled")

	// ErrInvalidCredentials is returned by SignIn for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnknownUser is returned when a uid or email has no credential.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidToken is returned by Verify for an unknown verification token.
	ErrInvalidToken = errors.New("invalid verification token")
)

// Principal is the result of a successful sign-in or sign-up.
type Principal struct {
	UID      string
	Email    string
	Verified bool
}

// Provider is the identity capability consumed by the session resolver and
// account management.
type Provider interface {
	SignIn(ctx context.Context, identifier, secret string) (Principal, error)
	SignUp(ctx context.Context, identifier, secret string) (Principal, error)
	SendVerificationEmail(ctx context.Context, uid string) error
	SignOut(ctx context.Context, uid string) error
	// Authenticated reports whether uid currently holds a provider session.
	Authenticated(uid string) bool
}

// Mailer delivers verification tokens.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes verification tokens to the log instead of sending mail.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	if m.Logger != nil {
		m.Logger.Info("verification email", zap.String("email", email), zap.String("token", token))
	}
	return nil
}

type Options struct {
	Enabled           bool
	BcryptCost        int
	MinPasswordLength int
	Mailer            Mailer
	Logger            *zap.Logger
}

// Service implements Provider over a CredentialStore.
type Service struct {
	store  CredentialStore
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]time.Time
}

func NewService(store CredentialStore, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 6
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{Logger: logger}
	}
	return &Service{
		store:    store,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]time.Time),
	}
}

func (s *Service) SignUp(ctx context.Context, identifier, secret string) (Principal, error) {
	if !s.opts.Enabled {
		return Principal{}, ErrProviderDisabled
	}
	email, err := normalizeEmail(identifier)
	if err != nil {
		return Principal{}, err
	}
	if len(secret) < s.opts.MinPasswordLength {
		return Principal{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.opts.BcryptCost)
	if err != nil {
		return Principal{}, fmt.Errorf("hash password: %w", err)
	}
	cred := &Credential{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return Principal{}, err
	}
	s.logger.Info("identity created", zap.String("uid", cred.UID), zap.String("email", email))
	return Principal{UID: cred.UID, Email: email}, nil
}

func (s *Service) SignIn(ctx context.Context, identifier, secret string) (Principal, error) {
	if !s.opts.Enabled {
		return Principal{}, ErrProviderDisabled
	}
	cred, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(identifier)))
	if errors.Is(err, ErrUnknownUser) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(secret)) != nil {
		return Principal{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	s.sessions[cred.UID] = time.Now()
	s.mu.Unlock()
	return Principal{UID: cred.UID, Email: cred.Email, Verified: cred.Verified}, nil
}

func (s *Service) SendVerificationEmail(ctx context.Context, uid string) error {
	cred, err := s.store.GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	cred.VerifyToken = uuid.NewString()
	if err := s.store.Save(ctx, cred); err != nil {
		return err
	}
	return s.opts.Mailer.SendVerification(ctx, cred.Email, cred.VerifyToken)
}

// Verify marks the credential owning token as verified. Tokens are single use.
func (s *Service) Verify(ctx context.Context, token string) (Principal, error) {
	if strings.TrimSpace(token) == "" {
		return Principal{}, ErrInvalidToken
	}
	cred, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, ErrUnknownUser) {
		return Principal{}, ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	cred.Verified = true
	cred.VerifyToken = ""
	if err := s.store.Save(ctx, cred); err != nil {
		return Principal{}, err
	}
	return Principal{UID: cred.UID, Email: cred.Email, Verified: true}, nil
}

func (s *Service) SignOut(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uid)
	return nil
}

func (s *Service) Authenticated(uid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[uid]
	return ok
}

func normalizeEmail(identifier string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(identifier))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
