package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"abhyasika/internal/models"
	"abhyasika/internal/repositories"
)

func TestOnboardingProvisionsDefaultRoom(t *testing.T) {
	f := newFixture(t)
	sess := tenant("L1")

	_, err := f.library.SaveProfile(context.Background(), sess, models.LibraryProfile{Name: "Test Lib", Address: "X", TotalSeats: 10})
	if err != nil {
		t.Fatal(err)
	}

	rooms := f.library.ListRooms(sess)
	if len(rooms) != 1 || rooms[0].ID != DefaultRoomID {
		t.Fatalf("rooms = %+v", rooms)
	}
	seats := f.library.ListSeats(sess)
	if len(seats) != 10 {
		t.Fatalf("got %d seats, want 10", len(seats))
	}
	for _, seat := range seats {
		if seat.Status != models.SeatStatusAvailable {
			t.Errorf("seat %s status %s", seat.ID, seat.Status)
		}
	}
}

func TestOnboardingFillsEmptyDefaultRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	if _, err := f.library.AddRoom(ctx, sess, models.Room{ID: DefaultRoomID, Name: DefaultRoomName}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.library.SaveProfile(ctx, sess, models.LibraryProfile{Name: "Test Lib", TotalSeats: 4}); err != nil {
		t.Fatal(err)
	}
	if got := len(f.library.ListRooms(sess)); got != 1 {
		t.Errorf("rooms = %d, want 1", got)
	}
	if got := len(f.library.ListSeats(sess)); got != 4 {
		t.Errorf("seats = %d, want 4", got)
	}

	// A later profile edit does not provision again.
	if _, err := f.library.SaveProfile(ctx, sess, models.LibraryProfile{Name: "Test Lib", TotalSeats: 8}); err != nil {
		t.Fatal(err)
	}
	if got := len(f.library.ListSeats(sess)); got != 4 {
		t.Errorf("seats after edit = %d, want 4", got)
	}
}

func TestTenantsShareRoomIDsRemotely(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := tenant("lib-a"), tenant("lib-b")

	if _, err := f.library.SaveProfile(ctx, a, models.LibraryProfile{Name: "A", TotalSeats: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.library.SaveProfile(ctx, b, models.LibraryProfile{Name: "B", TotalSeats: 3}); err != nil {
		t.Fatal(err)
	}
	f.repos.Propagator.Wait()

	if err := f.library.DeleteRoom(ctx, b, DefaultRoomID); err != nil {
		t.Fatal(err)
	}
	f.repos.Propagator.Wait()

	room, ok := f.store.Get(repositories.CollectionRooms, "lib-a", DefaultRoomID)
	if !ok || room["libraryId"] != "lib-a" || room["capacity"] != float64(10) {
		t.Errorf("lib-a remote room = %v", room)
	}
	if _, ok := f.store.Get(repositories.CollectionRooms, "lib-b", DefaultRoomID); ok {
		t.Error("lib-b room still stored")
	}

	// Rebuild lib-a's cache from the remote store alone.
	if err := f.repos.ClearTenant("lib-a"); err != nil {
		t.Fatal(err)
	}
	f.sessions.Hydrate(ctx, a)
	if got := len(f.library.ListRooms(a)); got != 1 {
		t.Errorf("lib-a rooms after hydration = %d, want 1", got)
	}
	if got := len(f.library.ListSeats(a)); got != 10 {
		t.Errorf("lib-a seats after hydration = %d, want 10", got)
	}
	if got := f.library.ListRooms(b); len(got) != 0 {
		t.Errorf("lib-b rooms = %+v", got)
	}
}

func TestAddRoomProvisionsSeats(t *testing.T) {
	for _, capacity := range []int{0, 1, 7} {
		t.Run(strconv.Itoa(capacity), func(t *testing.T) {
			f := newFixture(t)
			sess := tenant("L1")
			room, err := f.library.AddRoom(context.Background(), sess, models.Room{ID: "annex", Name: "Annex", Capacity: capacity})
			if err != nil {
				t.Fatal(err)
			}

			seats := f.library.ListSeats(sess)
			if len(seats) != capacity {
				t.Fatalf("got %d seats, want %d", len(seats), capacity)
			}
			for n := 1; n <= capacity; n++ {
				seat, ok := f.repos.Seats.Get(sess, fmt.Sprintf("%s-%d", room.ID, n))
				if !ok {
					t.Fatalf("seat %s-%d missing", room.ID, n)
				}
				if seat.Label != strconv.Itoa(n) || seat.RoomID != room.ID || seat.Category != models.SeatCategoryGeneral {
					t.Errorf("seat = %+v", seat)
				}
			}
		})
	}
}

func TestAddRoomDuplicateID(t *testing.T) {
	f := newFixture(t)
	sess := tenant("L1")
	_, _ = f.library.AddRoom(context.Background(), sess, models.Room{ID: "a", Name: "A", Capacity: 2})
	if _, err := f.library.AddRoom(context.Background(), sess, models.Room{ID: "a", Name: "A", Capacity: 2}); !errors.Is(err, ErrRoomExists) {
		t.Errorf("err = %v, want ErrRoomExists", err)
	}
}

func TestDeleteRoomCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "a", Name: "A", Capacity: 3})
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "b", Name: "B", Capacity: 2})
	st, err := f.library.AdmitStudent(ctx, sess, models.Student{Name: "Asha", Phone: "1", SeatID: strPtr("a-2")})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.library.DeleteRoom(ctx, sess, "a"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a-1", "a-2", "a-3"} {
		if _, ok := f.repos.Seats.Get(sess, id); ok {
			t.Errorf("seat %s survived room deletion", id)
		}
	}
	if got := len(f.library.ListSeats(sess)); got != 2 {
		t.Errorf("remaining seats = %d, want 2", got)
	}
	if got, _ := f.repos.Students.Get(sess, st.ID); got.HasSeat() {
		t.Errorf("student still points at %s", *got.SeatID)
	}
	assertSeatInvariant(t, f.repos, sess)

	if err := f.library.DeleteRoom(ctx, sess, "a"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestFullAdmissionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	if _, err := f.library.SaveProfile(ctx, sess, models.LibraryProfile{Name: "Test Lib", TotalSeats: 10}); err != nil {
		t.Fatal(err)
	}

	st, err := f.library.AdmitStudent(ctx, sess, models.Student{Name: "Asha", Phone: "98", Dues: 500, SeatID: strPtr("main-3")})
	if err != nil {
		t.Fatal(err)
	}
	seat, _ := f.repos.Seats.Get(sess, "main-3")
	if seat.Status != models.SeatStatusOccupied || seat.StudentID != st.ID {
		t.Fatalf("seat = %+v", seat)
	}
	assertSeatInvariant(t, f.repos, sess)

	p, err := f.library.RecordPayment(ctx, sess, models.Payment{StudentID: st.ID, Amount: 500})
	if err != nil {
		t.Fatal(err)
	}
	if p.StudentName != "Asha" || p.Mode != models.PaymentModeCash || p.PaidAt.IsZero() {
		t.Errorf("payment = %+v", p)
	}
	got, _ := f.repos.Students.Get(sess, st.ID)
	if got.Dues != 0 {
		t.Errorf("dues = %v, want 0", got.Dues)
	}

	f.repos.Propagator.Wait()
	doc, ok := f.store.Get(repositories.CollectionSeats, sess.LibraryID(), "main-3")
	if !ok || doc["status"] != "OCCUPIED" || doc["libraryId"] != "L1" {
		t.Errorf("remote seat = %v", doc)
	}
}

func TestAdmitStudentChecksSeatBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 2})
	maint := models.SeatStatusMaintenance
	_, _ = f.library.UpdateSeat(ctx, sess, "main-1", SeatPatch{Status: &maint})

	tests := []struct {
		name    string
		seatID  string
		wantErr error
	}{
		{"seat under maintenance", "main-1", ErrSeatUnavailable},
		{"unknown seat", "main-9", ErrSeatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1", SeatID: strPtr(tt.seatID)})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := len(f.library.ListStudents(sess)); n != 0 {
		t.Errorf("rejected admissions wrote %d students", n)
	}
}

func TestValidationRejectsBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")

	var vErr *models.ValidationError
	if _, err := f.library.AdmitStudent(ctx, sess, models.Student{Phone: "1"}); !errors.As(err, &vErr) || vErr.Field != "name" {
		t.Errorf("missing name err = %v", err)
	}
	if _, err := f.library.AddRoom(ctx, sess, models.Room{Name: "R", Capacity: -1}); !errors.As(err, &vErr) {
		t.Errorf("negative capacity err = %v", err)
	}
	if _, err := f.library.RecordPayment(ctx, sess, models.Payment{StudentID: "s", Amount: 0}); !errors.As(err, &vErr) {
		t.Errorf("zero amount err = %v", err)
	}
	if len(f.library.ListStudents(sess)) != 0 || len(f.library.ListRooms(sess)) != 0 || len(f.library.ListPayments(sess)) != 0 {
		t.Error("validation failure wrote data")
	}
}

func TestDuesNeverNegative(t *testing.T) {
	tests := []struct {
		name     string
		dues     float64
		payments []float64
		want     float64
	}{
		{"exact", 500, []float64{500}, 0},
		{"partial", 500, []float64{200}, 300},
		{"overpay", 300, []float64{500}, 0},
		{"sequence", 1000, []float64{250, 250, 600, 100}, 0},
		{"no dues", 0, []float64{100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sess := tenant("L1")
			st, err := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1", Dues: tt.dues})
			if err != nil {
				t.Fatal(err)
			}
			for _, amount := range tt.payments {
				before, _ := f.repos.Students.Get(sess, st.ID)
				if _, err := f.library.RecordPayment(ctx, sess, models.Payment{StudentID: st.ID, Amount: amount}); err != nil {
					t.Fatal(err)
				}
				after, _ := f.repos.Students.Get(sess, st.ID)
				if want := max(0, before.Dues-amount); after.Dues != want {
					t.Fatalf("dues %v - %v = %v, want %v", before.Dues, amount, after.Dues, want)
				}
			}
			got, _ := f.repos.Students.Get(sess, st.ID)
			if got.Dues != tt.want {
				t.Errorf("final dues = %v, want %v", got.Dues, tt.want)
			}
			if n := len(f.library.ListPayments(sess)); n != len(tt.payments) {
				t.Errorf("payments = %d, want %d", n, len(tt.payments))
			}
		})
	}
}

func TestRecordPaymentUnknownStudent(t *testing.T) {
	f := newFixture(t)
	_, err := f.library.RecordPayment(context.Background(), tenant("L1"), models.Payment{StudentID: "ghost", Amount: 10})
	if !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSeatStudentInvariantAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 4})

	a, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1"})
	b, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "B", Phone: "2", SeatID: strPtr("main-2")})
	c, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "C", Phone: "3"})

	steps := []struct {
		name string
		run  func() error
	}{
		{"assign a", func() error { _, err := f.library.AssignSeat(ctx, sess, "main-1", a.ID); return err }},
		{"move a", func() error { _, err := f.library.AssignSeat(ctx, sess, "main-3", a.ID); return err }},
		{"assign c", func() error { _, err := f.library.AssignSeat(ctx, sess, "main-1", c.ID); return err }},
		{"vacate b", func() error { _, err := f.library.VacateSeat(ctx, sess, "main-2"); return err }},
		{"reassign a via update", func() error {
			st, _ := f.repos.Students.Get(sess, a.ID)
			st.SeatID = strPtr("main-2")
			_, err := f.library.UpdateStudent(ctx, sess, st)
			return err
		}},
		{"delete c", func() error { return f.library.DeleteStudent(ctx, sess, c.ID) }},
		{"clear a via update", func() error {
			st, _ := f.repos.Students.Get(sess, a.ID)
			st.SeatID = nil
			_, err := f.library.UpdateStudent(ctx, sess, st)
			return err
		}},
		{"assign b", func() error { _, err := f.library.AssignSeat(ctx, sess, "main-4", b.ID); return err }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		assertSeatInvariant(t, f.repos, sess)
	}

	occupied := 0
	for _, seat := range f.library.ListSeats(sess) {
		if seat.Status == models.SeatStatusOccupied {
			occupied++
		}
	}
	if occupied != 1 {
		t.Errorf("occupied seats = %d, want 1", occupied)
	}
}

func TestAssignSeatRejectsTakenSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 1})
	a, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1", SeatID: strPtr("main-1")})
	b, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "B", Phone: "2"})

	if _, err := f.library.AssignSeat(ctx, sess, "main-1", b.ID); !errors.Is(err, ErrSeatUnavailable) {
		t.Errorf("err = %v, want ErrSeatUnavailable", err)
	}
	if _, err := f.library.AssignSeat(ctx, sess, "main-1", a.ID); err != nil {
		t.Errorf("re-assigning the holder should be a no-op, got %v", err)
	}
	if _, err := f.library.AssignSeat(ctx, sess, "nope", a.ID); !errors.Is(err, ErrSeatNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, err := f.library.AssignSeat(ctx, sess, "main-1", "ghost"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteStudentFreesSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 2})
	st, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1", SeatID: strPtr("main-1")})

	if err := f.library.DeleteStudent(ctx, sess, st.ID); err != nil {
		t.Fatal(err)
	}
	seat, _ := f.repos.Seats.Get(sess, "main-1")
	if seat.Status != models.SeatStatusAvailable || seat.StudentID != "" {
		t.Errorf("seat = %+v", seat)
	}
	if err := f.library.DeleteStudent(ctx, sess, st.ID); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("err = %v", err)
	}

	f.repos.Propagator.Wait()
	if _, ok := f.store.Get(repositories.CollectionStudents, sess.LibraryID(), st.ID); ok {
		t.Error("student still in remote store")
	}
}

func TestUpdateSeatGuardsOccupancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 2})
	_, _ = f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1", SeatID: strPtr("main-1")})

	occupied := models.SeatStatusOccupied
	reserved := models.SeatStatusReserved
	ladies := models.SeatCategoryLadies
	bogus := models.SeatStatus("BROKEN")

	tests := []struct {
		name        string
		seatID      string
		patch       SeatPatch
		wantErr     error
		wantInvalid bool
	}{
		{name: "hand-set occupied", seatID: "main-2", patch: SeatPatch{Status: &occupied}, wantErr: ErrOccupancyManaged},
		{name: "hand-clear occupied", seatID: "main-1", patch: SeatPatch{Status: &reserved}, wantErr: ErrOccupancyManaged},
		{name: "category on occupied seat", seatID: "main-1", patch: SeatPatch{Category: &ladies}},
		{name: "reserve free seat", seatID: "main-2", patch: SeatPatch{Status: &reserved}},
		{name: "unknown status", seatID: "main-2", patch: SeatPatch{Status: &bogus}, wantInvalid: true},
		{name: "unknown seat", seatID: "main-9", patch: SeatPatch{Status: &reserved}, wantErr: ErrSeatNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.library.UpdateSeat(ctx, sess, tt.seatID, tt.patch)
			if tt.wantInvalid {
				var vErr *models.ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("err = %v, want validation error", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	seat, _ := f.repos.Seats.Get(sess, "main-1")
	if seat.Category != models.SeatCategoryLadies || seat.Status != models.SeatStatusOccupied {
		t.Errorf("seat = %+v", seat)
	}
	assertSeatInvariant(t, f.repos, sess)
}

func TestListSeatsMigratesLegacySeats(t *testing.T) {
	f := newFixture(t)
	sess := tenant("L1")
	_ = f.repos.Rooms.Replace(sess, []models.Room{{ID: "hall", Name: "Hall"}})
	_ = f.repos.Seats.Replace(sess, []models.Seat{
		{ID: "1", Label: "1", Status: models.SeatStatusAvailable, Category: models.SeatCategoryGeneral},
		{ID: "2", Label: "2", RoomID: "other", Status: models.SeatStatusAvailable, Category: models.SeatCategoryGeneral},
	})

	seats := f.library.ListSeats(sess)
	if seats[0].RoomID != "hall" || seats[1].RoomID != "other" {
		t.Errorf("seats = %+v", seats)
	}
	cached, _ := f.repos.Seats.Get(sess, "1")
	if cached.RoomID != "hall" {
		t.Error("migration not persisted to the cache")
	}
	f.repos.Propagator.Wait()
	if f.store.Count(repositories.CollectionSeats) != 0 {
		t.Error("migration must stay local")
	}
}

func TestReconcileRepairsInterruptedWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	_, _ = f.library.AddRoom(ctx, sess, models.Room{ID: "main", Name: "Main", Capacity: 4})
	a, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "A", Phone: "1"})
	b, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "B", Phone: "2"})
	c, _ := f.library.AdmitStudent(ctx, sess, models.Student{Name: "C", Phone: "3"})

	// Student written, seat write lost.
	stA, _ := f.repos.Students.Get(sess, a.ID)
	stA.SeatID = strPtr("main-1")
	_ = f.repos.Students.Update(ctx, sess, stA)

	// Seat names a student who does not point back.
	seat2, _ := f.repos.Seats.Get(sess, "main-2")
	seat2.Status, seat2.StudentID = models.SeatStatusOccupied, b.ID
	_ = f.repos.Seats.Update(ctx, sess, seat2)

	// Student points at a seat that no longer exists.
	stC, _ := f.repos.Students.Get(sess, c.ID)
	stC.SeatID = strPtr("gone-1")
	_ = f.repos.Students.Update(ctx, sess, stC)

	// OCCUPIED with no occupant.
	seat4, _ := f.repos.Seats.Get(sess, "main-4")
	seat4.Status = models.SeatStatusOccupied
	_ = f.repos.Seats.Update(ctx, sess, seat4)

	repaired, err := f.library.Reconcile(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if repaired != 4 {
		t.Errorf("repaired = %d, want 4", repaired)
	}
	assertSeatInvariant(t, f.repos, sess)
	if seat, _ := f.repos.Seats.Get(sess, "main-1"); seat.StudentID != a.ID {
		t.Errorf("main-1 = %+v", seat)
	}

	again, _ := f.library.Reconcile(ctx, sess)
	if again != 0 {
		t.Errorf("second pass repaired %d", again)
	}
}

func TestExpireStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	past := f.clock.Now().Add(-24 * time.Hour)
	future := f.clock.Now().Add(24 * time.Hour)
	_, _ = f.library.AdmitStudent(ctx, sess, models.Student{ID: "old", Name: "A", Phone: "1", PlanEndDate: &past})
	_, _ = f.library.AdmitStudent(ctx, sess, models.Student{ID: "new", Name: "B", Phone: "2", PlanEndDate: &future})
	_, _ = f.library.AdmitStudent(ctx, sess, models.Student{ID: "open", Name: "C", Phone: "3"})

	n, err := f.library.ExpireStudents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if st, _ := f.repos.Students.Get(sess, "old"); st.Status != models.StudentStatusExpired {
		t.Errorf("old = %s", st.Status)
	}
	if st, _ := f.repos.Students.Get(sess, "new"); st.Status != models.StudentStatusActive {
		t.Errorf("new = %s", st.Status)
	}
}

func TestEnquiryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")

	e, err := f.library.AddEnquiry(ctx, sess, models.Enquiry{Name: "Lead", Phone: "9"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != models.EnquiryStatusNew || e.CreatedAt.IsZero() {
		t.Errorf("enquiry = %+v", e)
	}
	e.Status = models.EnquiryStatusFollowUp
	e.CreatedAt = time.Time{}
	updated, err := f.library.UpdateEnquiry(ctx, sess, *e)
	if err != nil {
		t.Fatal(err)
	}
	if updated.CreatedAt.IsZero() {
		t.Error("CreatedAt lost on update")
	}
	if _, err := f.library.UpdateEnquiry(ctx, sess, models.Enquiry{ID: "x", Name: "n", Phone: "p"}); !errors.Is(err, ErrEnquiryNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := f.library.DeleteEnquiry(ctx, sess, e.ID); err != nil {
		t.Fatal(err)
	}
	if len(f.library.ListEnquiries(sess)) != 0 {
		t.Error("enquiry not deleted")
	}
}

func TestEnquiryWritesTakeTenantLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := tenant("L1")
	e, err := f.library.AddEnquiry(ctx, sess, models.Enquiry{Name: "Lead", Phone: "9"})
	if err != nil {
		t.Fatal(err)
	}

	writes := map[string]func() error{
		"update": func() error {
			e.Status = models.EnquiryStatusClosed
			_, err := f.library.UpdateEnquiry(ctx, sess, *e)
			return err
		},
		"delete": func() error { return f.library.DeleteEnquiry(ctx, sess, e.ID) },
	}
	for _, name := range []string{"update", "delete"} {
		t.Run(name, func(t *testing.T) {
			unlock := f.library.(tenantLocker).lockTenant("L1")
			done := make(chan error, 1)
			go func() { done <- writes[name]() }()

			select {
			case <-done:
				unlock()
				t.Fatal("write finished while the tenant was locked")
			case <-time.After(50 * time.Millisecond):
			}
			unlock()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
		})
	}
	if len(f.library.ListEnquiries(sess)) != 0 {
		t.Error("enquiry not deleted")
	}
}

func TestSettingsDefaults(t *testing.T) {
	f := newFixture(t)
	sess := tenant("L1")
	if got := f.library.GetSettings(sess); len(got.FeeTiers) == 0 {
		t.Errorf("defaults = %+v", got)
	}
	saved, err := f.library.SaveSettings(context.Background(), sess, models.Settings{MaintenanceMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if saved.FeeTiers == nil || saved.ClassLevels == nil {
		t.Error("nil slices not normalized")
	}
	if got := f.library.GetSettings(sess); !got.MaintenanceMode {
		t.Error("settings not stored")
	}
}

func TestTenantOperationsRequireTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.library.AddRoom(ctx, superAdmin(), models.Room{Name: "R"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("super admin err = %v", err)
	}
	if _, err := f.library.AddRoom(ctx, nil, models.Room{Name: "R"}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("nil session err = %v", err)
	}
}
