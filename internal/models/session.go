package models

import "time"

// Session is one row per (user, device) login. At most one row per user is
// active at any time.
type Session struct {
	ID           string
	UserID       string
	DeviceID     string
	Token        string
	UserAgent    string
	IPAddress    string
	LoginTime    time.Time
	LastActivity time.Time
	LogoutTime   *time.Time
	IsActive     bool
	ForcedLogout bool
}
