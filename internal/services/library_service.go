package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abhyasika/internal/models"
	"abhyasika/internal/repositories"
)

// ─── Defaults ─────────────────────────────────────────────────────────────────

const (
	// DefaultRoomID is the id of the room created at onboarding or first login.
	DefaultRoomID = "main"

	// DefaultRoomName is the display name of the default room.
	DefaultRoomName = "Main Hall"
)

// SeatPatch carries the editable seat fields. Nil fields are left unchanged.
type SeatPatch struct {
	Status   *models.SeatStatus   `json:"status"`
	Category *models.SeatCategory `json:"category"`
}

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService is the tenant-facing surface: entity CRUD plus the compound
// operations that keep seats and students consistent.
type LibraryService interface {
	GetProfile(sess *models.Session) (models.LibraryProfile, bool)
	SaveProfile(ctx context.Context, sess *models.Session, p models.LibraryProfile) (*models.LibraryProfile, error)
	GetSettings(sess *models.Session) models.Settings
	SaveSettings(ctx context.Context, sess *models.Session, st models.Settings) (*models.Settings, error)

	ListRooms(sess *models.Session) []models.Room
	AddRoom(ctx context.Context, sess *models.Session, room models.Room) (*models.Room, error)
	UpdateRoom(ctx context.Context, sess *models.Session, room models.Room) (*models.Room, error)
	DeleteRoom(ctx context.Context, sess *models.Session, id string) error

	ListSeats(sess *models.Session) []models.Seat
	UpdateSeat(ctx context.Context, sess *models.Session, id string, patch SeatPatch) (*models.Seat, error)
	AssignSeat(ctx context.Context, sess *models.Session, seatID, studentID string) (*models.Seat, error)
	VacateSeat(ctx context.Context, sess *models.Session, seatID string) (*models.Seat, error)

	ListStudents(sess *models.Session) []models.Student
	AdmitStudent(ctx context.Context, sess *models.Session, st models.Student) (*models.Student, error)
	UpdateStudent(ctx context.Context, sess *models.Session, st models.Student) (*models.Student, error)
	DeleteStudent(ctx context.Context, sess *models.Session, id string) error
	ExpireStudents(ctx context.Context, sess *models.Session) (int, error)

	ListPayments(sess *models.Session) []models.Payment
	RecordPayment(ctx context.Context, sess *models.Session, p models.Payment) (*models.Payment, error)

	ListEnquiries(sess *models.Session) []models.Enquiry
	AddEnquiry(ctx context.Context, sess *models.Session, e models.Enquiry) (*models.Enquiry, error)
	UpdateEnquiry(ctx context.Context, sess *models.Session, e models.Enquiry) (*models.Enquiry, error)
	DeleteEnquiry(ctx context.Context, sess *models.Session, id string) error

	Reconcile(ctx context.Context, sess *models.Session) (int, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	repos  *repositories.Repositories
	logger *zap.Logger
	now    func() time.Time
	locks  tenantLocks
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
// A nil clock means time.Now.
func NewLibraryService(repos *repositories.Repositories, logger *zap.Logger, now func() time.Time) LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &libraryService{repos: repos, logger: logger, now: now}
}

func (s *libraryService) lockTenant(libraryID string) func() {
	return s.locks.lock(libraryID)
}

// ─── Profile & Settings ───────────────────────────────────────────────────────

func (s *libraryService) GetProfile(sess *models.Session) (models.LibraryProfile, bool) {
	return s.repos.Profile.Get(sess)
}

// SaveProfile stores the profile. On onboarding the declared seat count
// provisions seats: a tenant with no rooms gets the default room with that
// capacity, and a tenant with rooms but no seats gets them in its first room.
func (s *libraryService) SaveProfile(ctx context.Context, sess *models.Session, p models.LibraryProfile) (*models.LibraryProfile, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	if err := s.repos.Profile.Save(ctx, sess, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	rooms := s.repos.Rooms.List(sess)
	switch {
	case len(rooms) == 0:
		room := models.Room{ID: DefaultRoomID, Name: DefaultRoomName, Capacity: p.TotalSeats}
		if _, err := s.addRoomLocked(ctx, sess, room); err != nil {
			return nil, err
		}
	case p.TotalSeats > 0 && len(s.repos.Seats.List(sess)) == 0:
		room := rooms[0]
		room.Capacity = p.TotalSeats
		if err := s.repos.Rooms.Update(ctx, sess, room); err != nil {
			return nil, err
		}
		if err := s.provisionSeats(ctx, sess, room); err != nil {
			return nil, err
		}
	}
	s.logger.Info("profile saved",
		zap.String("library_id", sess.LibraryID()),
		zap.Int("total_seats", p.TotalSeats))
	return &p, nil
}

// GetSettings returns the cached settings, or the defaults when none exist.
func (s *libraryService) GetSettings(sess *models.Session) models.Settings {
	st, ok := s.repos.Settings.Get(sess)
	if !ok {
		return models.DefaultSettings()
	}
	st.Normalize()
	return st
}

func (s *libraryService) SaveSettings(ctx context.Context, sess *models.Session, st models.Settings) (*models.Settings, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	st.Normalize()
	if err := s.repos.Settings.Save(ctx, sess, st); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return &st, nil
}

// ─── Rooms ────────────────────────────────────────────────────────────────────

func (s *libraryService) ListRooms(sess *models.Session) []models.Room {
	return s.repos.Rooms.List(sess)
}

// AddRoom persists the room and provisions Capacity seats with ids
// {roomId}-1..{roomId}-N and labels "1".."N".
func (s *libraryService) AddRoom(ctx context.Context, sess *models.Session, room models.Room) (*models.Room, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()
	return s.addRoomLocked(ctx, sess, room)
}

func (s *libraryService) addRoomLocked(ctx context.Context, sess *models.Session, room models.Room) (*models.Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if _, exists := s.repos.Rooms.Get(sess, room.ID); exists {
		return nil, ErrRoomExists
	}
	if err := s.repos.Rooms.Add(ctx, sess, room); err != nil {
		return nil, fmt.Errorf("add room: %w", err)
	}
	if err := s.provisionSeats(ctx, sess, room); err != nil {
		return nil, err
	}
	s.logger.Info("room added",
		zap.String("library_id", sess.LibraryID()),
		zap.String("room_id", room.ID),
		zap.Int("capacity", room.Capacity))
	return &room, nil
}

// provisionSeats creates the room's seats. Ids already present are skipped.
func (s *libraryService) provisionSeats(ctx context.Context, sess *models.Session, room models.Room) error {
	if room.Capacity <= 0 {
		return nil
	}
	existing := make(map[string]struct{})
	for _, seat := range s.repos.Seats.List(sess) {
		existing[seat.ID] = struct{}{}
	}
	seats := make([]models.Seat, 0, room.Capacity)
	for n := 1; n <= room.Capacity; n++ {
		id := fmt.Sprintf("%s-%d", room.ID, n)
		if _, ok := existing[id]; ok {
			continue
		}
		seats = append(seats, models.Seat{
			ID:       id,
			Label:    strconv.Itoa(n),
			RoomID:   room.ID,
			Status:   models.SeatStatusAvailable,
			Category: models.SeatCategoryGeneral,
		})
	}
	if err := s.repos.Seats.AddMany(ctx, sess, seats); err != nil {
		return fmt.Errorf("provision seats for room %s: %w", room.ID, err)
	}
	return nil
}

// UpdateRoom renames the room or changes its declared capacity. Seats are not
// re-provisioned.
func (s *libraryService) UpdateRoom(ctx context.Context, sess *models.Session, room models.Room) (*models.Room, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	if _, ok := s.repos.Rooms.Get(sess, room.ID); !ok {
		return nil, ErrRoomNotFound
	}
	if err := s.repos.Rooms.Update(ctx, sess, room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom removes every seat in the room, then the room. Students seated in
// the room lose their seat first.
func (s *libraryService) DeleteRoom(ctx context.Context, sess *models.Session, id string) error {
	if err := requireTenant(sess); err != nil {
		return err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	if _, ok := s.repos.Rooms.Get(sess, id); !ok {
		return ErrRoomNotFound
	}

	var seatIDs []string
	for _, seat := range s.repos.Seats.List(sess) {
		if seat.RoomID != id {
			continue
		}
		seatIDs = append(seatIDs, seat.ID)
		if seat.StudentID == "" {
			continue
		}
		if st, ok := s.repos.Students.Get(sess, seat.StudentID); ok && st.SeatID != nil && *st.SeatID == seat.ID {
			st.SeatID = nil
			if err := s.repos.Students.Update(ctx, sess, st); err != nil {
				return fmt.Errorf("release student %s: %w", st.ID, err)
			}
		}
	}
	if err := s.repos.Seats.DeleteMany(ctx, sess, seatIDs); err != nil {
		return fmt.Errorf("delete seats of room %s: %w", id, err)
	}
	if err := s.repos.Rooms.Delete(ctx, sess, id); err != nil {
		return err
	}
	s.logger.Info("room deleted",
		zap.String("library_id", sess.LibraryID()),
		zap.String("room_id", id),
		zap.Int("seats", len(seatIDs)))
	return nil
}

// ─── Seats ────────────────────────────────────────────────────────────────────

// ListSeats returns the tenant's seats. Legacy seats without a room are moved
// into the first room and the fix is kept in the cache only.
func (s *libraryService) ListSeats(sess *models.Session) []models.Seat {
	rooms := s.repos.Rooms.List(sess)
	if len(rooms) > 0 {
		err := s.repos.Seats.Rewrite(sess, func(seats []models.Seat) bool {
			changed := false
			for i := range seats {
				if seats[i].RoomID == "" {
					seats[i].RoomID = rooms[0].ID
					changed = true
				}
			}
			return changed
		})
		if err != nil {
			s.logger.Warn("seat room migration failed", zap.String("library_id", sess.LibraryID()), zap.Error(err))
		}
	}
	return s.repos.Seats.List(sess)
}

// UpdateSeat edits status or category. OCCUPIED is owned by assign and vacate.
func (s *libraryService) UpdateSeat(ctx context.Context, sess *models.Session, id string, patch SeatPatch) (*models.Seat, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	seat, ok := s.repos.Seats.Get(sess, id)
	if !ok {
		return nil, ErrSeatNotFound
	}
	if patch.Status != nil && *patch.Status != seat.Status {
		if *patch.Status == models.SeatStatusOccupied || seat.Status == models.SeatStatusOccupied {
			return nil, ErrOccupancyManaged
		}
		seat.Status = *patch.Status
	}
	if patch.Category != nil {
		seat.Category = *patch.Category
	}
	if err := seat.Validate(); err != nil {
		return nil, err
	}
	if err := s.repos.Seats.Update(ctx, sess, seat); err != nil {
		return nil, err
	}
	return &seat, nil
}

// AssignSeat gives the seat to the student, releasing any seat the student
// held before. The student is written first, then the seat; an interruption
// between the two is repaired by Reconcile.
func (s *libraryService) AssignSeat(ctx context.Context, sess *models.Session, seatID, studentID string) (*models.Seat, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	seat, ok := s.repos.Seats.Get(sess, seatID)
	if !ok {
		return nil, ErrSeatNotFound
	}
	st, ok := s.repos.Students.Get(sess, studentID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	if seat.StudentID == st.ID && st.SeatID != nil && *st.SeatID == seat.ID {
		return &seat, nil
	}
	if seat.Status != models.SeatStatusAvailable {
		return nil, ErrSeatUnavailable
	}

	// 1. Release the seat the student holds now.
	if st.HasSeat() {
		if err := s.releaseHeldSeat(ctx, sess, st); err != nil {
			return nil, err
		}
	}

	// 2. Point the student at the new seat.
	st.SeatID = strPtr(seat.ID)
	if err := s.repos.Students.Update(ctx, sess, st); err != nil {
		return nil, fmt.Errorf("assign seat: update student: %w", err)
	}

	// 3. Mark the seat occupied.
	if err := s.occupy(ctx, sess, &seat, st.ID); err != nil {
		return nil, err
	}
	s.logger.Info("seat assigned",
		zap.String("library_id", sess.LibraryID()),
		zap.String("seat_id", seat.ID),
		zap.String("student_id", st.ID))
	return &seat, nil
}

// VacateSeat frees the seat and clears its occupant's seat reference.
func (s *libraryService) VacateSeat(ctx context.Context, sess *models.Session, seatID string) (*models.Seat, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	seat, ok := s.repos.Seats.Get(sess, seatID)
	if !ok {
		return nil, ErrSeatNotFound
	}
	if seat.StudentID == "" && seat.Status != models.SeatStatusOccupied {
		return &seat, nil
	}

	if st, ok := s.repos.Students.Get(sess, seat.StudentID); ok && st.SeatID != nil && *st.SeatID == seat.ID {
		st.SeatID = nil
		if err := s.repos.Students.Update(ctx, sess, st); err != nil {
			return nil, fmt.Errorf("vacate seat: update student: %w", err)
		}
	}
	if err := s.release(ctx, sess, &seat); err != nil {
		return nil, err
	}
	s.logger.Info("seat vacated",
		zap.String("library_id", sess.LibraryID()),
		zap.String("seat_id", seat.ID))
	return &seat, nil
}

func (s *libraryService) occupy(ctx context.Context, sess *models.Session, seat *models.Seat, studentID string) error {
	seat.Status = models.SeatStatusOccupied
	seat.StudentID = studentID
	if err := s.repos.Seats.Update(ctx, sess, *seat); err != nil {
		return fmt.Errorf("occupy seat %s: %w", seat.ID, err)
	}
	return nil
}

func (s *libraryService) release(ctx context.Context, sess *models.Session, seat *models.Seat) error {
	seat.Status = models.SeatStatusAvailable
	seat.StudentID = ""
	if err := s.repos.Seats.Update(ctx, sess, *seat); err != nil {
		return fmt.Errorf("release seat %s: %w", seat.ID, err)
	}
	return nil
}

// releaseHeldSeat frees the seat st points at if that seat names st.
func (s *libraryService) releaseHeldSeat(ctx context.Context, sess *models.Session, st models.Student) error {
	held, ok := s.repos.Seats.Get(sess, *st.SeatID)
	if !ok || held.StudentID != st.ID {
		return nil
	}
	return s.release(ctx, sess, &held)
}

// ─── Students ─────────────────────────────────────────────────────────────────

func (s *libraryService) ListStudents(sess *models.Session) []models.Student {
	return s.repos.Students.List(sess)
}

// AdmitStudent creates the student and, when SeatID is set, occupies that
// seat. The seat is checked before anything is written.
func (s *libraryService) AdmitStudent(ctx context.Context, sess *models.Session, st models.Student) (*models.Student, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.JoinDate.IsZero() {
		st.JoinDate = s.now()
	}
	st.Normalize()

	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	if _, exists := s.repos.Students.Get(sess, st.ID); exists {
		return nil, ErrStudentExists
	}
	var seat models.Seat
	if st.HasSeat() {
		var ok bool
		if seat, ok = s.repos.Seats.Get(sess, *st.SeatID); !ok {
			return nil, ErrSeatNotFound
		}
		if seat.Status != models.SeatStatusAvailable {
			return nil, ErrSeatUnavailable
		}
	}

	if err := s.repos.Students.Add(ctx, sess, st); err != nil {
		return nil, fmt.Errorf("admit student: %w", err)
	}
	if st.HasSeat() {
		if err := s.occupy(ctx, sess, &seat, st.ID); err != nil {
			return nil, err
		}
	}
	s.logger.Info("student admitted",
		zap.String("library_id", sess.LibraryID()),
		zap.String("student_id", st.ID),
		zap.Stringp("seat_id", st.SeatID))
	return &st, nil
}

// UpdateStudent replaces the student record. A changed SeatID moves the
// student between seats the same way AssignSeat and VacateSeat do.
func (s *libraryService) UpdateStudent(ctx context.Context, sess *models.Session, st models.Student) (*models.Student, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	st.Normalize()

	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	current, ok := s.repos.Students.Get(sess, st.ID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	if st.JoinDate.IsZero() {
		st.JoinDate = current.JoinDate
	}

	oldSeat, newSeat := seatOf(current), seatOf(st)
	var target models.Seat
	if newSeat != "" && newSeat != oldSeat {
		if target, ok = s.repos.Seats.Get(sess, newSeat); !ok {
			return nil, ErrSeatNotFound
		}
		if target.Status != models.SeatStatusAvailable {
			return nil, ErrSeatUnavailable
		}
	}

	if oldSeat != "" && oldSeat != newSeat {
		if err := s.releaseHeldSeat(ctx, sess, current); err != nil {
			return nil, err
		}
	}
	if err := s.repos.Students.Update(ctx, sess, st); err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	if newSeat != "" && newSeat != oldSeat {
		if err := s.occupy(ctx, sess, &target, st.ID); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// DeleteStudent frees the student's seat, then deletes the student.
func (s *libraryService) DeleteStudent(ctx context.Context, sess *models.Session, id string) error {
	if err := requireTenant(sess); err != nil {
		return err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	st, ok := s.repos.Students.Get(sess, id)
	if !ok {
		return ErrStudentNotFound
	}
	if st.HasSeat() {
		if err := s.releaseHeldSeat(ctx, sess, st); err != nil {
			return err
		}
	}
	if err := s.repos.Students.Delete(ctx, sess, id); err != nil {
		return err
	}
	s.logger.Info("student deleted",
		zap.String("library_id", sess.LibraryID()),
		zap.String("student_id", id))
	return nil
}

// ExpireStudents moves ACTIVE students whose plan has ended to EXPIRED and
// returns how many changed. Seats are kept.
func (s *libraryService) ExpireStudents(ctx context.Context, sess *models.Session) (int, error) {
	if err := requireTenant(sess); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	now := s.now()
	expired := 0
	for _, st := range s.repos.Students.List(sess) {
		if st.Status != models.StudentStatusActive || st.PlanEndDate == nil || !st.PlanEndDate.Before(now) {
			continue
		}
		st.Status = models.StudentStatusExpired
		if err := s.repos.Students.Update(ctx, sess, st); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func seatOf(st models.Student) string {
	if st.SeatID == nil {
		return ""
	}
	return *st.SeatID
}

// ─── Payments ─────────────────────────────────────────────────────────────────

func (s *libraryService) ListPayments(sess *models.Session) []models.Payment {
	return s.repos.Payments.List(sess)
}

// RecordPayment stores the payment and lowers the student's dues by its
// amount, floored at zero. Overpayment is not carried as credit.
func (s *libraryService) RecordPayment(ctx context.Context, sess *models.Session, p models.Payment) (*models.Payment, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	st, ok := s.repos.Students.Get(sess, p.StudentID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now()
	}
	p.StudentName = st.Name
	p.Normalize()

	if err := s.repos.Payments.Add(ctx, sess, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	st.Dues = math.Max(0, st.Dues-p.Amount)
	if err := s.repos.Students.Update(ctx, sess, st); err != nil {
		return nil, fmt.Errorf("record payment: update dues: %w", err)
	}
	s.logger.Info("payment recorded",
		zap.String("library_id", sess.LibraryID()),
		zap.String("student_id", st.ID),
		zap.Float64("amount", p.Amount),
		zap.Float64("dues", st.Dues))
	return &p, nil
}

// ─── Enquiries ────────────────────────────────────────────────────────────────

func (s *libraryService) ListEnquiries(sess *models.Session) []models.Enquiry {
	return s.repos.Enquiries.List(sess)
}

func (s *libraryService) AddEnquiry(ctx context.Context, sess *models.Session, e models.Enquiry) (*models.Enquiry, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.Normalize()
	if err := s.repos.Enquiries.Add(ctx, sess, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *libraryService) UpdateEnquiry(ctx context.Context, sess *models.Session, e models.Enquiry) (*models.Enquiry, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	current, ok := s.repos.Enquiries.Get(sess, e.ID)
	if !ok {
		return nil, ErrEnquiryNotFound
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = current.CreatedAt
	}
	e.Normalize()
	if err := s.repos.Enquiries.Update(ctx, sess, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *libraryService) DeleteEnquiry(ctx context.Context, sess *models.Session, id string) error {
	if err := requireTenant(sess); err != nil {
		return err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	if _, ok := s.repos.Enquiries.Get(sess, id); !ok {
		return ErrEnquiryNotFound
	}
	return s.repos.Enquiries.Delete(ctx, sess, id)
}

// ─── Reconciliation ───────────────────────────────────────────────────────────

// Reconcile re-derives seat occupancy from the students' seat references and
// returns the number of records repaired.
//
//  1. A seat is OCCUPIED exactly when its StudentID names a student pointing back.
//  2. A student pointing at a free AVAILABLE seat takes it.
//  3. A student pointing at a missing or taken seat loses the reference.
func (s *libraryService) Reconcile(ctx context.Context, sess *models.Session) (int, error) {
	if err := requireTenant(sess); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	students := s.repos.Students.List(sess)
	seats := s.repos.Seats.List(sess)
	byID := make(map[string]models.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	seatIndex := make(map[string]int, len(seats))
	for i, seat := range seats {
		seatIndex[seat.ID] = i
	}

	repaired := 0
	for i := range seats {
		seat := &seats[i]
		holder, ok := byID[seat.StudentID]
		valid := seat.StudentID != "" && ok && seatOf(holder) == seat.ID
		switch {
		case valid && seat.Status != models.SeatStatusOccupied:
			if err := s.occupy(ctx, sess, seat, seat.StudentID); err != nil {
				return repaired, err
			}
			repaired++
		case !valid && (seat.StudentID != "" || seat.Status == models.SeatStatusOccupied):
			if err := s.release(ctx, sess, seat); err != nil {
				return repaired, err
			}
			repaired++
		}
	}

	for _, st := range students {
		seatID := seatOf(st)
		if seatID == "" {
			continue
		}
		i, ok := seatIndex[seatID]
		if ok && seats[i].StudentID == st.ID {
			continue
		}
		if ok && seats[i].StudentID == "" && seats[i].Status == models.SeatStatusAvailable {
			if err := s.occupy(ctx, sess, &seats[i], st.ID); err != nil {
				return repaired, err
			}
			repaired++
			continue
		}
		st.SeatID = nil
		if err := s.repos.Students.Update(ctx, sess, st); err != nil {
			return repaired, err
		}
		repaired++
	}

	if repaired > 0 {
		s.logger.Warn("seat occupancy reconciled",
			zap.String("library_id", sess.LibraryID()),
			zap.Int("repaired", repaired))
	}
	return repaired, nil
}
