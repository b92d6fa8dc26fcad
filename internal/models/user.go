package models

import (
	"time"
)

// User is an authenticated account as supplied by the identity provider.
// Users are provisioned on first sight; the public key is set when a signing identity is issued.
type User struct {
	UserID   string
	Username string
	Email    string

	// Signing identity, empty until keys are issued
	PublicKeyPEM string
	Fingerprint  string // Base58-encoded SHA256(PKIX DER)

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasKeys reports whether a signing identity has been issued to the user.
func (u *User) HasKeys() bool {
	return u.PublicKeyPEM != ""
}
