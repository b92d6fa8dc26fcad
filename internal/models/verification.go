package models

import "time"

// VerificationStatus is the outcome of checking a document signature.
type VerificationStatus string

const (
	VerificationValid     VerificationStatus = "valid"
	VerificationInvalid   VerificationStatus = "invalid"
	VerificationNotSigned VerificationStatus = "not_signed"
)

// VerificationResult reports a verification outcome along with who signed and when.
type VerificationResult struct {
	Status           VerificationStatus `json:"status"`
	Valid            bool               `json:"valid"`
	SignedBy         string             `json:"signedBy,omitempty"`
	SignedByUsername string             `json:"signedByUsername,omitempty"`
	SignedAt         *time.Time         `json:"signedAt,omitempty"`
}
