package models

import (
	"time"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
)

type SeatStatus string

const (
	SeatStatusAvailable   SeatStatus = "AVAILABLE"
	SeatStatusOccupied    SeatStatus = "OCCUPIED"
	SeatStatusMaintenance SeatStatus = "MAINTENANCE"
	SeatStatusReserved    SeatStatus = "RESERVED"
)

type SeatCategory string

const (
	SeatCategoryGeneral SeatCategory = "GENERAL"
	SeatCategoryLadies  SeatCategory = "LADIES"
	SeatCategoryAC      SeatCategory = "AC"
)

type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "ACTIVE"
	StudentStatusExpired  StudentStatus = "EXPIRED"
	StudentStatusInactive StudentStatus = "INACTIVE"
)

type EnquiryStatus string

const (
	EnquiryStatusNew       EnquiryStatus = "NEW"
	EnquiryStatusFollowUp  EnquiryStatus = "FOLLOW_UP"
	EnquiryStatusConverted EnquiryStatus = "CONVERTED"
	EnquiryStatusClosed    EnquiryStatus = "CLOSED"
)

type AttendanceStatus string

const (
	AttendanceStatusIn  AttendanceStatus = "IN"
	AttendanceStatusOut AttendanceStatus = "OUT"
)

type AttendanceMethod string

const (
	AttendanceMethodQR     AttendanceMethod = "QR"
	AttendanceMethodManual AttendanceMethod = "MANUAL"
)

type PaymentMode string

const (
	PaymentModeCash PaymentMode = "CASH"
	PaymentModeUPI  PaymentMode = "UPI"
	PaymentModeCard PaymentMode = "CARD"
)

type Plan string

const (
	PlanTrial   Plan = "TRIAL"
	PlanBasic   Plan = "BASIC"
	PlanPremium Plan = "PREMIUM"
)

// Entity is implemented by every record stored in a keyed collection.
type Entity interface {
	GetID() string
}

// LibraryAccount is a tenant as managed by the super admin. Its ID is also the
// tenant id stamped on every tenant-scoped document.
type LibraryAccount struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Location      string     `json:"location,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Active        bool       `json:"isActive"`
	Plan          Plan       `json:"plan"`
	LicenseKey    string     `json:"licenseKey,omitempty"`
	LicenseExpiry *time.Time `json:"licenseExpiry,omitempty"`
	SeatCapacity  int        `json:"seatCapacity"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (a LibraryAccount) GetID() string { return a.ID }

// LibraryProfile is the tenant's branding and declared seat count. One per tenant.
type LibraryProfile struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	LogoURL    string `json:"logoUrl,omitempty"`
	TotalSeats int    `json:"totalSeats"`
}

type FeeTier struct {
	Name           string  `json:"name"`
	Amount         float64 `json:"amount"`
	DurationMonths int     `json:"durationMonths"`
}

// Settings holds per-tenant fee tiers and tag vocabularies. One per tenant.
type Settings struct {
	FeeTiers        []FeeTier `json:"feeTiers"`
	MaintenanceMode bool      `json:"maintenanceMode"`
	ClassLevels     []string  `json:"classLevels"`
	Preparations    []string  `json:"preparations"`
}

type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

func (r Room) GetID() string { return r.ID }

// Seat is OCCUPIED exactly when StudentID names a student whose SeatID is this seat.
type Seat struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	RoomID    string       `json:"roomId,omitempty"`
	Status    SeatStatus   `json:"status"`
	Category  SeatCategory `json:"category"`
	StudentID string       `json:"studentId,omitempty"`
}

func (s Seat) GetID() string { return s.ID }

type Student struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Phone       string        `json:"phone"`
	Email       string        `json:"email,omitempty"`
	Address     string        `json:"address,omitempty"`
	Gender      string        `json:"gender,omitempty"`
	ClassLevel  string        `json:"classLevel,omitempty"`
	Preparation string        `json:"preparation,omitempty"`
	SeatID      *string       `json:"seatId,omitempty"`
	Status      StudentStatus `json:"status"`
	Dues        float64       `json:"dues"`
	FeeTier     string        `json:"feeTier,omitempty"`
	JoinDate    time.Time     `json:"joinDate"`
	PlanEndDate *time.Time    `json:"planEndDate,omitempty"`
	PhotoURL    string        `json:"photoUrl,omitempty"`
}

func (s Student) GetID() string { return s.ID }

// HasSeat reports whether the student currently holds a seat.
func (s Student) HasSeat() bool { return s.SeatID != nil && *s.SeatID != "" }

// Payment is immutable once recorded.
type Payment struct {
	ID          string      `json:"id"`
	StudentID   string      `json:"studentId"`
	StudentName string      `json:"studentName,omitempty"`
	Amount      float64     `json:"amount"`
	Mode        PaymentMode `json:"mode"`
	Note        string      `json:"note,omitempty"`
	PaidAt      time.Time   `json:"paidAt"`
}

func (p Payment) GetID() string { return p.ID }

type Enquiry struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	Preparation  string        `json:"preparation,omitempty"`
	Note         string        `json:"note,omitempty"`
	Status       EnquiryStatus `json:"status"`
	FollowUpDate *time.Time    `json:"followUpDate,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

func (e Enquiry) GetID() string { return e.ID }

// Attendance is one append-only scan or manual toggle. Date is the calendar day
// (YYYY-MM-DD, library local time) the record belongs to.
type Attendance struct {
	ID          string           `json:"id"`
	StudentID   string           `json:"studentId"`
	StudentName string           `json:"studentName,omitempty"`
	Date        string           `json:"date"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      AttendanceStatus `json:"status"`
	Method      AttendanceMethod `json:"method"`
}

func (a Attendance) GetID() string { return a.ID }

// Notification targets exactly one tenant through LibraryID.
type Notification struct {
	ID        string    `json:"id"`
	LibraryID string    `json:"libraryId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	LinkLabel string    `json:"linkLabel,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n Notification) GetID() string { return n.ID }
