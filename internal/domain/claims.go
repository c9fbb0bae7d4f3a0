package domain

import (
	"context"
	"time"
)

// Claims is the resolved identity carried by a bearer credential.
type Claims struct {
	UserID    string
	Email     string
	Forename  string
	Surname   string
	ExpiresAt time.Time
}

// Expired reports whether the credential expiry has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ClaimsResolver validates a bearer credential and yields the caller identity.
type ClaimsResolver interface {
	Resolve(credential string) (Claims, error)
}

// BlobStore stores content-addressed binary objects and returns a public URL.
// Put must be idempotent for a repeated identical hash.
type BlobStore interface {
	Put(ctx context.Context, hash, format string, data []byte) (string, error)
}
