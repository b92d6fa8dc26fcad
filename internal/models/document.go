package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/docsign/internal/signature"
)

var (
	// ErrAlreadySigned is returned when a signature is set on a document that already has one.
	ErrAlreadySigned = errors.New("document already signed")

	// ErrForbidden is returned when the requester does not own the document.
	ErrForbidden = errors.New("forbidden")
)

// DocumentState is the signing state of a document.
type DocumentState string

const (
	DocumentUnsigned DocumentState = "unsigned"
	DocumentSigned   DocumentState = "signed"
)

// Document is a piece of content that can be signed exactly once by its owner.
type Document struct {
	DocumentID uuid.UUID // UUIDv7
	Title      string
	Content    []byte // signed exactly as stored
	OwnerID    string
	CreatedAt  time.Time

	// Set together by the single Unsigned -> Signed transition
	Signature      *signature.Signature // always base64
	CertificatePEM string
	SignedBy       string
	SignedAt       *time.Time
}

// NewDocument creates an unsigned document owned by ownerID.
func NewDocument(title string, content []byte, ownerID string, now time.Time) *Document {
	return &Document{
		DocumentID: uuid.Must(uuid.NewV7()),
		Title:      title,
		Content:    content,
		OwnerID:    ownerID,
		CreatedAt:  now.UTC(),
	}
}

// State returns Signed once a signature is present.
func (d *Document) State() DocumentState {
	if d.Signature != nil && !d.Signature.IsZero() {
		return DocumentSigned
	}
	return DocumentUnsigned
}

// IsOwner reports whether userID created the document.
func (d *Document) IsOwner(userID string) bool {
	return userID != "" && d.OwnerID == userID
}

// CanSign checks the transition guards for requesterID: only the owner may sign and only once.
func (d *Document) CanSign(requesterID string) error {
	if !d.IsOwner(requesterID) {
		return ErrForbidden
	}
	if d.State() == DocumentSigned {
		return ErrAlreadySigned
	}
	return nil
}

// CanDownloadSignature reports whether userID may fetch the signature bundle.
func (d *Document) CanDownloadSignature(userID string) bool {
	return d.IsOwner(userID) || (userID != "" && d.SignedBy == userID)
}

// SignatureRecord is the data written by the Unsigned -> Signed transition.
type SignatureRecord struct {
	Signature      signature.Signature
	CertificatePEM string
	SignedBy       string
	SignedAt       time.Time
}

// Apply sets the signature fields on the document without checking guards.
func (r SignatureRecord) Apply(d *Document) {
	sig := r.Signature
	signedAt := r.SignedAt.UTC()
	d.Signature = &sig
	d.CertificatePEM = r.CertificatePEM
	d.SignedBy = r.SignedBy
	d.SignedAt = &signedAt
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.Content = append([]byte(nil), d.Content...)
	if d.Signature != nil {
		sig := *d.Signature
		c.Signature = &sig
	}
	if d.SignedAt != nil {
		t := *d.SignedAt
		c.SignedAt = &t
	}
	return &c
}
