package model

import (
	"context"
	"time"
)

// CredentialStore persists the active access/refresh pair.
type CredentialStore interface {
	Read(ctx context.Context) (Credential, error)
	Write(ctx context.Context, credential Credential) error
	Clear(ctx context.Context) error
}

// Credential is the access/refresh pair of one session.
type Credential struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh,omitempty"`
	Expiry  time.Time `json:"expiry,omitempty"`
}

// IsZero reports whether neither half of the pair is set.
func (c Credential) IsZero() bool {
	return c.Access == "" && c.Refresh == ""
}

// Expired reports whether the access half is known to be past its expiry.
func (c Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}
