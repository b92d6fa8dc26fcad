package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
)

// ErrBadRequest marks request validation failures.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError carries an explicit HTTP status for an error.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus attaches an HTTP status to err.
func WithStatus(err error, status int) error {
	return &StatusError{Status: status, Err: err}
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}

	switch {
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrCertNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrAlreadySigned),
		errors.Is(err, store.ErrCertAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, pki.ErrInvalidKeyUsage),
		errors.Is(err, signature.ErrSigning),
		errors.Is(err, pki.ErrInvalidIdentity),
		errors.Is(err, pki.ErrInvalidValidityWindow),
		errors.Is(err, pki.ErrUnsupportedKeySize),
		errors.Is(err, pki.ErrMalformedCertificate),
		errors.Is(err, pki.ErrMalformedKey),
		errors.Is(err, pki.ErrIncorrectPassphrase),
		errors.Is(err, signature.ErrMalformedSignature),
		errors.Is(err, signature.ErrUnknownEncoding):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrThrottled):
		return http.StatusServiceUnavailable
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a JSON error response. Internal errors are logged and replaced with a
// generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		msg = http.StatusText(status)
	}

	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteAttachment writes data as a file download.
func WriteAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
