package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"abhyasika/internal/models"
	"abhyasika/internal/repositories"
)

// ScanResult is the outcome of one decoded QR frame. Suppressed is true when
// the frame repeated the previous code inside the cooldown window.
type ScanResult struct {
	Record     *models.Attendance `json:"record,omitempty"`
	Suppressed bool               `json:"suppressed"`
}

type scanMark struct {
	code string
	at   time.Time
}

// AttendanceService appends IN/OUT records. The next status for a student is
// the opposite of their latest record of the same library-local day.
type AttendanceService struct {
	repos    *repositories.Repositories
	logger   *zap.Logger
	loc      *time.Location
	cooldown time.Duration
	now      func() time.Time

	locks    tenantLocks
	mu       sync.Mutex
	lastScan map[string]scanMark
}

func NewAttendanceService(repos *repositories.Repositories, loc *time.Location, cooldown time.Duration, logger *zap.Logger, now func() time.Time) *AttendanceService {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		repos:    repos,
		logger:   logger,
		loc:      loc,
		cooldown: cooldown,
		now:      now,
		lastScan: make(map[string]scanMark),
	}
}

// List returns the tenant's attendance for day (YYYY-MM-DD), or every record
// when day is empty, newest first.
func (s *AttendanceService) List(sess *models.Session, day string) []models.Attendance {
	all := s.repos.Attendance.List(sess)
	out := make([]models.Attendance, 0, len(all))
	for _, a := range all {
		if day == "" || a.Date == day {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Toggle appends the student's next attendance record for today.
func (s *AttendanceService) Toggle(ctx context.Context, sess *models.Session, studentID string, method models.AttendanceMethod) (*models.Attendance, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	st, ok := s.repos.Students.Get(sess, studentID)
	if !ok {
		return nil, ErrStudentNotFound
	}
	unlock := s.locks.lock(sess.LibraryID())
	defer unlock()

	now := s.now().In(s.loc)
	day := now.Format(models.DayLayout)
	record := models.Attendance{
		ID:          uuid.NewString(),
		StudentID:   st.ID,
		StudentName: st.Name,
		Date:        day,
		Timestamp:   now,
		Status:      NextAttendanceStatus(s.repos.Attendance.List(sess), st.ID, day),
		Method:      method,
	}
	record.Normalize()
	if err := s.repos.Attendance.Add(ctx, sess, record); err != nil {
		return nil, err
	}
	s.logger.Info("attendance recorded",
		zap.String("library_id", sess.LibraryID()),
		zap.String("student_id", st.ID),
		zap.String("status", string(record.Status)),
		zap.String("method", string(record.Method)))
	return &record, nil
}

// Scan decodes a QR payload and toggles the student it names. A payload equal
// to the tenant's previous one within the cooldown is suppressed.
func (s *AttendanceService) Scan(ctx context.Context, sess *models.Session, payload string) (*ScanResult, error) {
	if err := requireTenant(sess); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(payload)
	if s.debounced(sess.LibraryID(), code) {
		return &ScanResult{Suppressed: true}, nil
	}

	studentID := ParseScanPayload(code)
	if studentID == "" {
		return nil, ErrInvalidScan
	}
	record, err := s.Toggle(ctx, sess, studentID, models.AttendanceMethodQR)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Record: record}, nil
}

func (s *AttendanceService) debounced(libraryID, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	last, ok := s.lastScan[libraryID]
	if ok && last.code == code && now.Sub(last.at) < s.cooldown {
		return true
	}
	s.lastScan[libraryID] = scanMark{code: code, at: now}
	return false
}

// NextAttendanceStatus returns IN when the student has no record on day, and
// otherwise the opposite of the record with the latest timestamp. Equal
// timestamps resolve to the later entry.
func NextAttendanceStatus(records []models.Attendance, studentID, day string) models.AttendanceStatus {
	var latest *models.Attendance
	for i := range records {
		r := &records[i]
		if r.StudentID != studentID || r.Date != day {
			continue
		}
		if latest == nil || !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	if latest == nil || latest.Status == models.AttendanceStatusOut {
		return models.AttendanceStatusIn
	}
	return models.AttendanceStatusOut
}

// ParseScanPayload extracts the student id from a QR payload: either a JSON
// object carrying studentId (or id), or the bare id.
func ParseScanPayload(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "{") {
		return code
	}
	var body struct {
		StudentID string `json:"studentId"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal([]byte(code), &body); err != nil {
		return ""
	}
	if body.StudentID != "" {
		return body.StudentID
	}
	return body.ID
}
