package services

import (
	"errors"
	"sync"

	"abhyasika/internal/models"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrInvalidCredentials is returned when the identifier and secret match no
	// tenant or the identity provider rejects them.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailNotVerified is returned when the identity provider reports an
	// unverified account. The provider session is closed before returning.
	ErrEmailNotVerified = errors.New("email address is not verified")

	// ErrAccountInactive is returned when the resolved tenant is deactivated.
	ErrAccountInactive = errors.New("library account is inactive")

	// ErrProviderDisabled is a setup error: the sign-in method is switched off
	// and no user retry can succeed.
	ErrProviderDisabled = errors.New("sign-in provider is disabled, contact the administrator")

	// ErrLicenseExpired is returned for tenant operations after the license end date.
	ErrLicenseExpired = errors.New("library license has expired")

	// ErrUnauthenticated is returned for a missing, invalid or logged-out session.
	ErrUnauthenticated = errors.New("not signed in")

	// ErrForbidden is returned when the session's role may not perform the operation.
	ErrForbidden = errors.New("operation not allowed for this account")

	// ErrStudentNotFound is returned when the referenced student does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrStudentExists is returned when admitting a student whose id is taken.
	ErrStudentExists = errors.New("student already exists")

	// ErrSeatNotFound is returned when the referenced seat does not exist.
	ErrSeatNotFound = errors.New("seat not found")

	// ErrSeatUnavailable is returned when assigning a seat that is not AVAILABLE.
	ErrSeatUnavailable = errors.New("seat is not available")

	// ErrOccupancyManaged is returned when a seat edit tries to set or clear
	// OCCUPIED directly instead of through assign or vacate.
	ErrOccupancyManaged = errors.New("seat occupancy changes only through assign or vacate")

	// ErrRoomNotFound is returned when the referenced room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when adding a room whose id is already taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrEnquiryNotFound is returned when the referenced enquiry does not exist.
	ErrEnquiryNotFound = errors.New("enquiry not found")

	// ErrNotificationNotFound is returned when the referenced notification does not exist.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrAccountNotFound is returned when the referenced library account does not exist.
	ErrAccountNotFound = errors.New("library account not found")

	// ErrInvalidScan is returned for a QR payload that names no student.
	ErrInvalidScan = errors.New("unrecognised QR code")
)

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func requireTenant(sess *models.Session) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if sess.LibraryID() == "" {
		return ErrForbidden
	}
	return nil
}

func requireSuperAdmin(sess *models.Session) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	if !sess.IsSuperAdmin() {
		return ErrForbidden
	}
	return nil
}

// tenantLocks serializes compound operations per tenant so a seat and its
// student are never interleaved with another compound write.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *tenantLocks) lock(libraryID string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	l, ok := t.locks[libraryID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[libraryID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// tenantLocker exposes the tenant lock to other services in the package.
type tenantLocker interface {
	lockTenant(libraryID string) func()
}

func strPtr(s string) *string { return &s }
