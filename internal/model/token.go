package model

import "time"

// TokenInspector reads claims from an access token without verifying it.
type TokenInspector interface {
	Inspect(token string) (Claims, error)
}

// Claims are the access token fields the client cares about.
type Claims struct {
	UserID      string
	Email       string
	Role        string
	IsStaff     bool
	IsSuperuser bool
	ExpiresAt   time.Time
}

// IsAdmin reports staff or superuser privileges.
func (c Claims) IsAdmin() bool {
	return c.IsStaff || c.IsSuperuser
}
