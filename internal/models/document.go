package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingID is returned by Decode when a keyed record has no id.
var ErrMissingID = errors.New("document has no id")

// Document is a flat map of JSON-compatible fields as exchanged with the remote store.
type Document map[string]any

type normalizer interface {
	Normalize()
}

// Sanitize turns v into a Document that carries no absent markers: nil pointers,
// nil slices and nil maps are dropped at every depth instead of being sent as null.
func Sanitize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sanitize: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sanitize: %w", err)
	}
	stripNulls(doc)
	return doc, nil
}

func stripNulls(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			stripNulls(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					stripNulls(sub)
				}
			}
		}
	}
}

// Decode converts a remote document into T. Unknown fields are ignored, wrongly
// typed fields are rejected, keyed records must carry an id, and enum fields are
// normalized to their defaults.
func Decode[T any](doc Document) (T, error) {
	var out T
	data, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode: %w", err)
	}
	if n, ok := any(&out).(normalizer); ok {
		n.Normalize()
	}
	if e, ok := any(out).(Entity); ok && strings.TrimSpace(e.GetID()) == "" {
		return out, ErrMissingID
	}
	return out, nil
}

// Merge overlays patch onto doc and returns doc.
func (d Document) Merge(patch Document) Document {
	for k, v := range patch {
		d[k] = v
	}
	return d
}

// ─── Normalization ────────────────────────────────────────────────────────────

func (s *Seat) Normalize() {
	switch s.Status {
	case SeatStatusAvailable, SeatStatusOccupied, SeatStatusMaintenance, SeatStatusReserved:
	default:
		s.Status = SeatStatusAvailable
	}
	switch s.Category {
	case SeatCategoryGeneral, SeatCategoryLadies, SeatCategoryAC:
	default:
		s.Category = SeatCategoryGeneral
	}
	if s.Label == "" {
		s.Label = s.ID
	}
}

func (s *Student) Normalize() {
	switch s.Status {
	case StudentStatusActive, StudentStatusExpired, StudentStatusInactive:
	default:
		s.Status = StudentStatusActive
	}
	if s.Dues < 0 {
		s.Dues = 0
	}
	if s.SeatID != nil && *s.SeatID == "" {
		s.SeatID = nil
	}
}

func (e *Enquiry) Normalize() {
	switch e.Status {
	case EnquiryStatusNew, EnquiryStatusFollowUp, EnquiryStatusConverted, EnquiryStatusClosed:
	default:
		e.Status = EnquiryStatusNew
	}
}

func (a *Attendance) Normalize() {
	if a.Status != AttendanceStatusOut {
		a.Status = AttendanceStatusIn
	}
	if a.Method != AttendanceMethodQR {
		a.Method = AttendanceMethodManual
	}
	if a.Date == "" && !a.Timestamp.IsZero() {
		a.Date = a.Timestamp.Format(DayLayout)
	}
}

func (p *Payment) Normalize() {
	switch p.Mode {
	case PaymentModeCash, PaymentModeUPI, PaymentModeCard:
	default:
		p.Mode = PaymentModeCash
	}
}

func (a *LibraryAccount) Normalize() {
	switch a.Plan {
	case PlanTrial, PlanBasic, PlanPremium:
	default:
		a.Plan = PlanTrial
	}
}

func (s *Settings) Normalize() {
	if s.FeeTiers == nil {
		s.FeeTiers = []FeeTier{}
	}
	if s.ClassLevels == nil {
		s.ClassLevels = []string{}
	}
	if s.Preparations == nil {
		s.Preparations = []string{}
	}
}

// DayLayout is the calendar-day key format used by attendance records.
const DayLayout = "2006-01-02"

// DefaultSettings returns the settings a tenant starts with.
func DefaultSettings() Settings {
	return Settings{
		FeeTiers: []FeeTier{
			{Name: "Monthly", Amount: 800, DurationMonths: 1},
			{Name: "Quarterly", Amount: 2200, DurationMonths: 3},
		},
		ClassLevels:  []string{"10th", "12th", "Graduate"},
		Preparations: []string{"UPSC", "MPSC", "Banking"},
	}
}

// DefaultProfile returns the profile a tenant starts with.
func DefaultProfile(name string) LibraryProfile {
	return LibraryProfile{Name: name}
}
