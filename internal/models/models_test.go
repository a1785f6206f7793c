package models

import (
	"errors"
	"testing"
	"time"
)

func TestSanitizeDropsAbsentFields(t *testing.T) {
	s := Student{ID: "s1", Name: "Asha", Phone: "99", Status: StudentStatusActive, JoinDate: time.Now()}

	doc, err := Sanitize(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"seatId", "planEndDate", "email"} {
		if _, ok := doc[key]; ok {
			t.Errorf("expected %q to be absent, got %v", key, doc[key])
		}
	}
	if doc["id"] != "s1" {
		t.Errorf("expected id s1, got %v", doc["id"])
	}
}

func TestSanitizeStripsNestedNulls(t *testing.T) {
	doc, err := Sanitize(Settings{FeeTiers: []FeeTier{{Name: "Monthly", Amount: 500}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["classLevels"]; ok {
		t.Error("expected nil slice to be dropped")
	}
	if _, ok := doc["feeTiers"]; !ok {
		t.Error("expected feeTiers to be kept")
	}
}

func TestDecodeNormalizesEnums(t *testing.T) {
	seat, err := Decode[Seat](Document{"id": "main-1", "status": "BROKEN", "extra": true})
	if err != nil {
		t.Fatal(err)
	}
	if seat.Status != SeatStatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", seat.Status)
	}
	if seat.Category != SeatCategoryGeneral {
		t.Errorf("expected GENERAL, got %s", seat.Category)
	}
	if seat.Label != "main-1" {
		t.Errorf("expected label to default to id, got %q", seat.Label)
	}
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing id", Document{"name": "Asha"}},
		{"wrong type", Document{"id": "s1", "dues": "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode[Student](tt.doc); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := Decode[Student](Document{"name": "Asha"})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
}

func TestDecodeStudentClampsDues(t *testing.T) {
	s, err := Decode[Student](Document{"id": "s1", "dues": -40.0, "seatId": ""})
	if err != nil {
		t.Fatal(err)
	}
	if s.Dues != 0 {
		t.Errorf("expected dues 0, got %v", s.Dues)
	}
	if s.HasSeat() {
		t.Error("expected empty seatId to decode as no seat")
	}
	if s.Status != StudentStatusActive {
		t.Errorf("expected ACTIVE, got %s", s.Status)
	}
}

func TestValidate(t *testing.T) {
	var verr *ValidationError
	if err := (Student{Phone: "1"}).Validate(); !errors.As(err, &verr) || verr.Field != "name" {
		t.Errorf("expected name validation error, got %v", err)
	}
	if err := (Payment{StudentID: "s1"}).Validate(); !errors.As(err, &verr) || verr.Field != "amount" {
		t.Errorf("expected amount validation error, got %v", err)
	}
	if err := (Room{Name: "Hall", Capacity: -1}).Validate(); err == nil {
		t.Error("expected capacity error")
	}
	if err := (Seat{Status: SeatStatusReserved, Category: SeatCategoryAC}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSessionLibraryID(t *testing.T) {
	admin := &Session{ID: "lib-1", Role: RoleAdmin}
	super := &Session{ID: "root", Role: RoleSuperAdmin}
	var none *Session

	if admin.LibraryID() != "lib-1" {
		t.Errorf("expected lib-1, got %q", admin.LibraryID())
	}
	if super.LibraryID() != "" || none.LibraryID() != "" {
		t.Error("expected super admin and nil sessions to own no tenant")
	}

	past := time.Now().Add(-time.Hour)
	admin.LicenseExpiry = &past
	if !admin.LicenseExpired(time.Now()) {
		t.Error("expected license to be expired")
	}
}
