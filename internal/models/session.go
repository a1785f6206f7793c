package models

import "time"

// Session is the signed-in user as seen by the rest of the application. For
// ADMIN sessions ID is the tenant (library) id.
type Session struct {
	SessionID         string     `json:"sessionId"`
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"displayName"`
	Role              Role       `json:"role"`
	LicenseExpiry     *time.Time `json:"licenseExpiry,omitempty"`
	AccountLicenseKey string     `json:"accountLicenseKey,omitempty"`
	IsDemo            bool       `json:"isDemo,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// LibraryID returns the tenant this session reads and writes, or "" for the
// super admin, who owns no tenant data.
func (s *Session) LibraryID() string {
	if s == nil || s.Role != RoleAdmin {
		return ""
	}
	return s.ID
}

func (s *Session) IsSuperAdmin() bool {
	return s != nil && s.Role == RoleSuperAdmin
}

// LicenseExpired reports whether an ADMIN session's license ended before now.
// Sessions without an expiry never expire.
func (s *Session) LicenseExpired(now time.Time) bool {
	if s == nil || s.Role != RoleAdmin || s.LicenseExpiry == nil {
		return false
	}
	return s.LicenseExpiry.Before(now)
}
