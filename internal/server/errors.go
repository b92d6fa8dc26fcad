package server

import (
	"errors"
	"net/http"

	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
)

var (
	// ErrSignatureMismatch is returned when a submitted signature does not verify against the
	// document content and certificate it is stored with.
	ErrSignatureMismatch = errors.New("signature does not match document and certificate")

	// ErrNotSigned is returned when a signature bundle is requested for an unsigned document.
	ErrNotSigned = errors.New("document is not signed")

	// ErrCertificateRequired is returned when no certificate can be bound to a signature.
	ErrCertificateRequired = errors.New("certificate is required")
)

// writeError maps server errors before falling back to the shared mapping.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		err = httpmiddleware.WithStatus(err, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrNotSigned), errors.Is(err, ErrCertificateRequired):
		err = httpmiddleware.WithStatus(err, http.StatusBadRequest)
	}
	httpmiddleware.WriteError(w, r, err)
}
