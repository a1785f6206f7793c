package models

import (
	"fmt"
	"strings"
)

// ValidationError reports a missing or malformed field on submission. It is
// returned before any write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

func (s Student) Validate() error {
	if err := required("name", s.Name); err != nil {
		return err
	}
	if err := required("phone", s.Phone); err != nil {
		return err
	}
	if s.Dues < 0 {
		return &ValidationError{Field: "dues", Reason: "must not be negative"}
	}
	return nil
}

func (r Room) Validate() error {
	if err := required("name", r.Name); err != nil {
		return err
	}
	if r.Capacity < 0 {
		return &ValidationError{Field: "capacity", Reason: "must not be negative"}
	}
	return nil
}

func (p Payment) Validate() error {
	if err := required("studentId", p.StudentID); err != nil {
		return err
	}
	if p.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

func (e Enquiry) Validate() error {
	if err := required("name", e.Name); err != nil {
		return err
	}
	return required("phone", e.Phone)
}

func (p LibraryProfile) Validate() error {
	if err := required("name", p.Name); err != nil {
		return err
	}
	if p.TotalSeats < 0 {
		return &ValidationError{Field: "totalSeats", Reason: "must not be negative"}
	}
	return nil
}

func (s Seat) Validate() error {
	switch s.Status {
	case SeatStatusAvailable, SeatStatusOccupied, SeatStatusMaintenance, SeatStatusReserved:
	default:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown seat status %q", s.Status)}
	}
	switch s.Category {
	case SeatCategoryGeneral, SeatCategoryLadies, SeatCategoryAC:
	default:
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown seat category %q", s.Category)}
	}
	return nil
}
