package repositories

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"abhyasika/internal/cache"
	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/remote"
)

// Collection names, shared by cache keys and the remote store.
const (
	CollectionAccounts      = "accounts"
	CollectionNotifications = "notifications"
	CollectionProfile       = "profile"
	CollectionSettings      = "settings"
	CollectionRooms         = "rooms"
	CollectionSeats         = "seats"
	CollectionStudents      = "students"
	CollectionPayments      = "payments"
	CollectionEnquiries     = "enquiries"
	CollectionAttendance    = "attendance"
)

// TenantCollections lists every collection owned by a single tenant.
var TenantCollections = []string{
	CollectionStudents,
	CollectionSeats,
	CollectionRooms,
	CollectionPayments,
	CollectionEnquiries,
	CollectionAttendance,
	CollectionNotifications,
	CollectionProfile,
	CollectionSettings,
}

// ErrNoTenant is returned when a tenant-scoped write is attempted by a session
// that owns no tenant.
var ErrNoTenant = errors.New("session has no tenant")

// TenantKey is the cache key of a tenant-scoped collection.
func TenantKey(libraryID, collection string) string {
	return "lib:" + libraryID + ":" + collection
}

// Repositories bundles every repository over one cache and one remote store.
type Repositories struct {
	Accounts      *Collection[models.LibraryAccount]
	Rooms         *Collection[models.Room]
	Seats         *Collection[models.Seat]
	Students      *Collection[models.Student]
	Payments      *Collection[models.Payment]
	Enquiries     *Collection[models.Enquiry]
	Attendance    *Collection[models.Attendance]
	Notifications *Collection[models.Notification]
	Profile       *Document[models.LibraryProfile]
	Settings      *Document[models.Settings]
	Sessions      *SessionStore
	Propagator    *Propagator

	base base
}

func New(c cache.Cache, store remote.Store, logger *zap.Logger, m *metrics.Metrics) *Repositories {
	if logger == nil {
		logger = zap.NewNop()
	}
	prop := NewPropagator(store, logger, m)
	locks := &keyedMutex{}
	base := base{cache: c, prop: prop, locks: locks, logger: logger}

	return &Repositories{
		Accounts:      newCollection[models.LibraryAccount](base, CollectionAccounts, true),
		Rooms:         newCollection[models.Room](base, CollectionRooms, false),
		Seats:         newCollection[models.Seat](base, CollectionSeats, false),
		Students:      newCollection[models.Student](base, CollectionStudents, false),
		Payments:      newCollection[models.Payment](base, CollectionPayments, false),
		Enquiries:     newCollection[models.Enquiry](base, CollectionEnquiries, false),
		Attendance:    newCollection[models.Attendance](base, CollectionAttendance, false),
		Notifications: newCollection[models.Notification](base, CollectionNotifications, false),
		Profile:       newDocument[models.LibraryProfile](base, CollectionProfile),
		Settings:      newDocument[models.Settings](base, CollectionSettings),
		Sessions:      &SessionStore{cache: c},
		Propagator:    prop,
		base:          base,
	}
}

// ClearTenant drops every cached collection of libraryID.
func (r *Repositories) ClearTenant(libraryID string) error {
	var errs []error
	for _, name := range TenantCollections {
		key := TenantKey(libraryID, name)
		unlock := r.base.locks.lock(key)
		if err := r.base.cache.Remove(key); err != nil {
			errs = append(errs, err)
		}
		unlock()
	}
	return errors.Join(errs...)
}

type base struct {
	cache  cache.Cache
	prop   *Propagator
	locks  *keyedMutex
	logger *zap.Logger
}

// keyedMutex serializes read-modify-write sequences on one cache key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
