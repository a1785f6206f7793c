package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abhyasika/internal/identity"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
	"abhyasika/internal/repositories"
)

// CreateAccountRequest registers a new tenant and its login.
type CreateAccountRequest struct {
	Email         string      `json:"email"`
	Password      string      `json:"password"`
	Name          string      `json:"name"`
	Location      string      `json:"location,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	Plan          models.Plan `json:"plan,omitempty"`
	LicenseExpiry *time.Time  `json:"licenseExpiry,omitempty"`
	SeatCapacity  int         `json:"seatCapacity,omitempty"`
}

func (r CreateAccountRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &models.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(r.Email) == "" {
		return &models.ValidationError{Field: "email", Reason: "is required"}
	}
	if r.SeatCapacity < 0 {
		return &models.ValidationError{Field: "seatCapacity", Reason: "must not be negative"}
	}
	return nil
}

// AccountPatch edits plan, license and contact fields. Nil fields are left unchanged.
type AccountPatch struct {
	Name          *string      `json:"name,omitempty"`
	Location      *string      `json:"location,omitempty"`
	Phone         *string      `json:"phone,omitempty"`
	Plan          *models.Plan `json:"plan,omitempty"`
	LicenseExpiry *time.Time   `json:"licenseExpiry,omitempty"`
	SeatCapacity  *int         `json:"seatCapacity,omitempty"`
}

// DeleteReport counts the tenant documents removed from the remote store.
type DeleteReport struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// AccountService is the super admin's tenant management. An account's id is
// the identity provider uid of its login, which is also the tenant id.
type AccountService struct {
	repos    *repositories.Repositories
	store    remote.Store
	provider identity.Provider
	logger   *zap.Logger
	now      func() time.Time
}

func NewAccountService(repos *repositories.Repositories, store remote.Store, provider identity.Provider, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repos: repos, store: store, provider: provider, logger: logger, now: time.Now}
}

func (s *AccountService) List(sess *models.Session) ([]models.LibraryAccount, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return nil, err
	}
	return s.repos.Accounts.List(sess), nil
}

// Sync replaces the cached account list with the remote one.
func (s *AccountService) Sync(ctx context.Context, sess *models.Session) (int, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return 0, err
	}
	docs, err := s.store.Query(ctx, repositories.CollectionAccounts, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch accounts: %w", err)
	}
	accounts := make([]models.LibraryAccount, 0, len(docs))
	for _, doc := range docs {
		a, err := models.Decode[models.LibraryAccount](doc)
		if err != nil {
			s.logger.Warn("skipping malformed account", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		accounts = append(accounts, a)
	}
	if err := s.repos.Accounts.Replace(sess, accounts); err != nil {
		return 0, err
	}
	return len(accounts), nil
}

// Create registers the login, sends the verification email and stores the
// account. A failed verification email is logged; the account still exists.
func (s *AccountService) Create(ctx context.Context, sess *models.Session, req CreateAccountRequest) (*models.LibraryAccount, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	principal, err := s.provider.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.provider.SendVerificationEmail(ctx, principal.UID); err != nil {
		s.logger.Warn("verification email not sent", zap.String("uid", principal.UID), zap.Error(err))
	}

	account := models.LibraryAccount{
		ID:            principal.UID,
		Email:         principal.Email,
		Name:          strings.TrimSpace(req.Name),
		Location:      req.Location,
		Phone:         req.Phone,
		Active:        true,
		Plan:          req.Plan,
		LicenseKey:    newLicenseKey(),
		LicenseExpiry: req.LicenseExpiry,
		SeatCapacity:  req.SeatCapacity,
		CreatedAt:     s.now(),
	}
	account.Normalize()
	if err := s.repos.Accounts.Add(ctx, sess, account); err != nil {
		return nil, fmt.Errorf("store account: %w", err)
	}
	s.logger.Info("account created", zap.String("library_id", account.ID), zap.String("email", account.Email))
	return &account, nil
}

func (s *AccountService) Update(ctx context.Context, sess *models.Session, id string, patch AccountPatch) (*models.LibraryAccount, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return nil, err
	}
	account, ok := s.repos.Accounts.Get(sess, id)
	if !ok {
		return nil, ErrAccountNotFound
	}
	if patch.Name != nil {
		account.Name = *patch.Name
	}
	if patch.Location != nil {
		account.Location = *patch.Location
	}
	if patch.Phone != nil {
		account.Phone = *patch.Phone
	}
	if patch.Plan != nil {
		account.Plan = *patch.Plan
	}
	if patch.LicenseExpiry != nil {
		account.LicenseExpiry = patch.LicenseExpiry
	}
	if patch.SeatCapacity != nil {
		if *patch.SeatCapacity < 0 {
			return nil, &models.ValidationError{Field: "seatCapacity", Reason: "must not be negative"}
		}
		account.SeatCapacity = *patch.SeatCapacity
	}
	account.Normalize()
	if err := s.repos.Accounts.Update(ctx, sess, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SetActive toggles the account's active flag. Inactive tenants cannot log in.
func (s *AccountService) SetActive(ctx context.Context, sess *models.Session, id string, active bool) (*models.LibraryAccount, error) {
	if err := requireSuperAdmin(sess); err != nil {
		return nil, err
	}
	if _, ok := s.repos.Accounts.Get(sess, id); !ok {
		return nil, ErrAccountNotFound
	}
	if err := s.repos.Accounts.Patch(ctx, sess, id, models.Document{"isActive": active}); err != nil {
		return nil, err
	}
	account, _ := s.repos.Accounts.Get(sess, id)
	s.logger.Info("account status changed", zap.String("library_id", id), zap.Bool("active", active))
	return &account, nil
}

// Delete removes the account and cascades to every document the tenant owns
// in the remote store and the local cache.
func (s *AccountService) Delete(ctx context.Context, sess *models.Session, id string) (DeleteReport, error) {
	var report DeleteReport
	if err := requireSuperAdmin(sess); err != nil {
		return report, err
	}
	if _, ok := s.repos.Accounts.Get(sess, id); !ok {
		return report, ErrAccountNotFound
	}
	if err := s.repos.Accounts.Delete(ctx, sess, id); err != nil {
		return report, err
	}

	var errs []error
	for _, collection := range repositories.TenantCollections {
		docs, err := s.store.Query(ctx, collection, map[string]any{remote.FieldLibraryID: id})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", collection, err))
			report.Failed++
			continue
		}
		for _, doc := range docs {
			docID, _ := doc["id"].(string)
			if collection == repositories.CollectionProfile || collection == repositories.CollectionSettings {
				docID = id
			}
			if err := s.store.Delete(ctx, collection, id, docID); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", collection, docID, err))
				report.Failed++
				continue
			}
			report.Removed++
		}
	}
	if err := s.repos.ClearTenant(id); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.logger.Warn("tenant cascade incomplete", zap.String("library_id", id), zap.Error(errors.Join(errs...)))
	}
	s.logger.Info("account deleted",
		zap.String("library_id", id),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed))
	return report, nil
}

func newLicenseKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "LIB-" + raw[:4] + "-" + raw[4:8] + "-" + raw[8:12]
}
