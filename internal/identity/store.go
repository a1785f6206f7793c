package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Credential is one registered email/password identity.
type Credential struct {
	UID          string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"not null"`
	Verified     bool   `gorm:"not null;default:false"`
	VerifyToken  string `gorm:"index;size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Credential) TableName() string { return "identities" }

type CredentialStore interface {
	// Create fails with ErrEmailAlreadyInUse for a registered email.
	Create(ctx context.Context, c *Credential) error
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	GetByUID(ctx context.Context, uid string) (*Credential, error)
	GetByToken(ctx context.Context, token string) (*Credential, error)
	Save(ctx context.Context, c *Credential) error
}

// ─── gorm ─────────────────────────────────────────────────────────────────────

type gormCredentialStore struct {
	db *gorm.DB
}

func NewGormCredentialStore(db *gorm.DB) CredentialStore {
	return &gormCredentialStore{db: db}
}

// Migrate creates the identities table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&Credential{})
}

func (r *gormCredentialStore) Create(ctx context.Context, c *Credential) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Credential{}).Where("email = ?", c.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailAlreadyInUse
		}
		return tx.Create(c).Error
	})
}

func (r *gormCredentialStore) first(ctx context.Context, query string, arg string) (*Credential, error) {
	var c Credential
	err := r.db.WithContext(ctx).First(&c, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &c, nil
}

func (r *gormCredentialStore) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormCredentialStore) GetByUID(ctx context.Context, uid string) (*Credential, error) {
	return r.first(ctx, "uid = ?", uid)
}

func (r *gormCredentialStore) GetByToken(ctx context.Context, token string) (*Credential, error) {
	return r.first(ctx, "verify_token = ?", token)
}

func (r *gormCredentialStore) Save(ctx context.Context, c *Credential) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// ─── memory ───────────────────────────────────────────────────────────────────

type memoryCredentialStore struct {
	mu    sync.RWMutex
	byUID map[string]Credential
}

func NewMemoryCredentialStore() CredentialStore {
	return &memoryCredentialStore{byUID: make(map[string]Credential)}
}

func (r *memoryCredentialStore) Create(_ context.Context, c *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byUID {
		if existing.Email == c.Email {
			return ErrEmailAlreadyInUse
		}
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.byUID[c.UID] = *c
	return nil
}

func (r *memoryCredentialStore) find(match func(Credential) bool) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byUID {
		if match(c) {
			out := c
			return &out, nil
		}
	}
	return nil, ErrUnknownUser
}

func (r *memoryCredentialStore) GetByEmail(_ context.Context, email string) (*Credential, error) {
	return r.find(func(c Credential) bool { return c.Email == email })
}

func (r *memoryCredentialStore) GetByUID(_ context.Context, uid string) (*Credential, error) {
	return r.find(func(c Credential) bool { return c.UID == uid })
}

func (r *memoryCredentialStore) GetByToken(_ context.Context, token string) (*Credential, error) {
	return r.find(func(c Credential) bool { return c.VerifyToken != "" && c.VerifyToken == token })
}

func (r *memoryCredentialStore) Save(_ context.Context, c *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUID[c.UID]; !ok {
		return ErrUnknownUser
	}
	c.UpdatedAt = time.Now()
	r.byUID[c.UID] = *c
	return nil
}
