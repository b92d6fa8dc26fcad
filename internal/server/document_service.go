package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/auth"
	"github.com/wolfeidau/docsign/internal/bundle"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
	"github.com/wolfeidau/docsign/internal/telemetry"
)

// SignRequest carries either a private key for server side signing or a detached signature
// produced by the client.
type SignRequest struct {
	PrivateKeyPEM  string `json:"privateKey,omitempty"`
	Passphrase     string `json:"passphrase,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	CertificatePEM string `json:"certificate,omitempty"`
}

// CreateDocumentRequest creates a document, optionally signing it in the same call.
type CreateDocumentRequest struct {
	Title   string
	Content []byte
	Sign    *SignRequest
}

// DetachedSignature is a signature supplied with a validation request.
type DetachedSignature struct {
	Signature      string
	Encoding       string
	CertificatePEM string
}

// VerifyRequest is a stateless verification of content against a signature and key.
type VerifyRequest struct {
	Content        []byte
	Signature      string
	Encoding       string
	CertificatePEM string
	PublicKeyPEM   string
}

// DocumentService implements the document lifecycle: create, sign once, validate.
type DocumentService struct {
	users        store.UserStore
	documents    store.DocumentStore
	certificates store.CertificateStore
	now          func() time.Time
}

// NewDocumentService creates a document service.
func NewDocumentService(users store.UserStore, documents store.DocumentStore, certificates store.CertificateStore) *DocumentService {
	return &DocumentService{
		users:        users,
		documents:    documents,
		certificates: certificates,
		now:          time.Now,
	}
}

// Create stores a new document owned by the caller. When req.Sign is set the signature is
// prepared before the document is stored so a bad key leaves nothing behind.
func (s *DocumentService) Create(ctx context.Context, principal *auth.Principal, req CreateDocumentRequest) (*models.Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", httpmiddleware.ErrBadRequest)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: content is required", httpmiddleware.ErrBadRequest)
	}

	doc := models.NewDocument(title, req.Content, principal.UserID, s.now())

	var rec *models.SignatureRecord
	if req.Sign != nil {
		prepared, err := s.prepareSignature(ctx, principal, doc.Content, *req.Sign)
		if err != nil {
			return nil, err
		}
		rec = &prepared
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	log.Info().
		Str("document_id", doc.DocumentID.String()).
		Str("owner_id", doc.OwnerID).
		Msg("Created document")

	if rec == nil {
		return doc, nil
	}

	return s.store(ctx, doc.DocumentID, *rec)
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.documents.Get(ctx, id)
}

// List returns documents, all or only those owned by ownerID.
func (s *DocumentService) List(ctx context.Context, ownerID string, limit int) ([]*models.Document, error) {
	return s.documents.List(ctx, store.ListDocumentsOptions{OwnerID: ownerID, Limit: limit})
}

// Sign moves a document from unsigned to signed. Only the owner may sign and only once; when
// two requests race, the store's conditional write lets exactly one through.
func (s *DocumentService) Sign(ctx context.Context, principal *auth.Principal, id uuid.UUID, req SignRequest) (*models.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := doc.CanSign(principal.UserID); err != nil {
		if errors.Is(err, models.ErrAlreadySigned) {
			telemetry.GetMetrics().SignConflictsTotal.Add(ctx, 1)
		}
		return nil, err
	}

	rec, err := s.prepareSignature(ctx, principal, doc.Content, req)
	if err != nil {
		return nil, err
	}

	return s.store(ctx, id, rec)
}

func (s *DocumentService) store(ctx context.Context, id uuid.UUID, rec models.SignatureRecord) (*models.Document, error) {
	signed, err := s.documents.SetSignature(ctx, id, rec)
	if err != nil {
		if errors.Is(err, models.ErrAlreadySigned) {
			telemetry.GetMetrics().SignConflictsTotal.Add(ctx, 1)
		}
		return nil, err
	}

	telemetry.GetMetrics().SignaturesCreatedTotal.Add(ctx, 1)

	log.Info().
		Str("document_id", id.String()).
		Str("signed_by", rec.SignedBy).
		Str("client_ip", httpmiddleware.ClientIPFromContext(ctx)).
		Msg("Signed document")

	return signed, nil
}

// prepareSignature produces the record to store: a fresh signature from a private key, or a
// detached one checked against the content. Either way the result verifies against the bound
// certificate and is canonical base64.
func (s *DocumentService) prepareSignature(ctx context.Context, principal *auth.Principal, content []byte, req SignRequest) (models.SignatureRecord, error) {
	enc, err := signature.ParseEncoding(req.Encoding)
	if err != nil {
		return models.SignatureRecord{}, err
	}

	var (
		sig     signature.Signature
		certPEM = strings.TrimSpace(req.CertificatePEM)
	)

	switch {
	case req.PrivateKeyPEM != "":
		sig, err = signature.SignPEM(content, []byte(req.PrivateKeyPEM), []byte(req.Passphrase), enc)
		if err != nil {
			return models.SignatureRecord{}, err
		}
		if certPEM == "" {
			certPEM, err = s.ownerCertificate(ctx, principal.UserID, content, sig)
			if err != nil {
				return models.SignatureRecord{}, err
			}
		}
	case req.Signature != "":
		if certPEM == "" {
			return models.SignatureRecord{}, ErrCertificateRequired
		}
		sig, err = signature.Parse(req.Signature, string(enc))
		if err != nil {
			return models.SignatureRecord{}, err
		}
	default:
		return models.SignatureRecord{}, fmt.Errorf("%w: privateKey or signature is required", httpmiddleware.ErrBadRequest)
	}

	ok, err := signature.Verify(content, sig, signature.CertificatePEM(certPEM))
	if err != nil {
		return models.SignatureRecord{}, err
	}
	if !ok {
		return models.SignatureRecord{}, ErrSignatureMismatch
	}

	canonical, err := sig.Canonical()
	if err != nil {
		return models.SignatureRecord{}, err
	}

	return models.SignatureRecord{
		Signature:      canonical,
		CertificatePEM: certPEM,
		SignedBy:       principal.UserID,
		SignedAt:       s.now().UTC(),
	}, nil
}

// ownerCertificate finds the caller's registered end-entity certificate whose key produced sig.
// A caller who cleared their keys must supply the certificate.
func (s *DocumentService) ownerCertificate(ctx context.Context, ownerID string, content []byte, sig signature.Signature) (string, error) {
	user, err := s.users.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrCertificateRequired
		}
		return "", err
	}
	if !user.HasKeys() {
		return "", ErrCertificateRequired
	}

	certs, err := s.certificates.GetByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}

	for _, meta := range certs {
		if meta.IsCA {
			continue
		}
		cert, err := pki.ParseCertificatePEM([]byte(meta.CertificatePEM))
		if err != nil {
			log.Warn().Err(err).Str("serial_number", meta.SerialNumber).Msg("Skipping unparsable certificate")
			continue
		}
		if ok, _ := signature.Verify(content, sig, signature.FromCertificate(cert)); ok {
			return meta.CertificatePEM, nil
		}
	}

	return "", ErrCertificateRequired
}

// Validate checks the stored signature, or an uploaded one, against the document content.
// Unsigned documents report not_signed rather than invalid.
func (s *DocumentService) Validate(ctx context.Context, id uuid.UUID, upload *DetachedSignature) (*models.VerificationResult, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.GetMetrics()

	if doc.State() == models.DocumentUnsigned {
		metrics.RecordVerification(ctx, telemetry.OutcomeNotSigned)
		return &models.VerificationResult{Status: models.VerificationNotSigned}, nil
	}

	sig := *doc.Signature
	certPEM := doc.CertificatePEM

	if upload != nil {
		if upload.Signature != "" {
			sig, err = signature.Parse(upload.Signature, upload.Encoding)
			if err != nil {
				metrics.RecordVerification(ctx, telemetry.OutcomeMalformed)
				return nil, err
			}
		}
		if strings.TrimSpace(upload.CertificatePEM) != "" {
			certPEM = upload.CertificatePEM
		}
	}

	if certPEM == "" {
		return nil, ErrCertificateRequired
	}

	ok, err := signature.Verify(doc.Content, sig, signature.CertificatePEM(certPEM))
	if err != nil {
		metrics.RecordVerification(ctx, telemetry.OutcomeMalformed)
		return nil, err
	}

	result := &models.VerificationResult{
		Status:           models.VerificationInvalid,
		Valid:            ok,
		SignedBy:         doc.SignedBy,
		SignedByUsername: s.username(ctx, doc.SignedBy),
		SignedAt:         doc.SignedAt,
	}
	if ok {
		result.Status = models.VerificationValid
	}

	metrics.RecordVerification(ctx, string(result.Status))

	return result, nil
}

// username resolves a user id for display. Unknown users resolve to an empty name.
func (s *DocumentService) username(ctx context.Context, userID string) string {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to resolve signer")
		}
		return ""
	}
	return user.Username
}

// Verify checks content against a signature and a certificate or public key without touching
// any stored state.
func (s *DocumentService) Verify(ctx context.Context, req VerifyRequest) (*models.VerificationResult, error) {
	var src signature.PublicKeySource
	switch {
	case strings.TrimSpace(req.CertificatePEM) != "":
		src = signature.CertificatePEM(req.CertificatePEM)
	case strings.TrimSpace(req.PublicKeyPEM) != "":
		src = signature.PublicKeyPEM(req.PublicKeyPEM)
	default:
		return nil, fmt.Errorf("%w: certificate or publicKey is required", httpmiddleware.ErrBadRequest)
	}

	metrics := telemetry.GetMetrics()

	sig, err := signature.Parse(req.Signature, req.Encoding)
	if err != nil {
		metrics.RecordVerification(ctx, telemetry.OutcomeMalformed)
		return nil, err
	}

	ok, err := signature.Verify(req.Content, sig, src)
	if err != nil {
		metrics.RecordVerification(ctx, telemetry.OutcomeMalformed)
		return nil, err
	}

	result := &models.VerificationResult{Status: models.VerificationInvalid, Valid: ok}
	if ok {
		result.Status = models.VerificationValid
	}

	metrics.RecordVerification(ctx, string(result.Status))

	return result, nil
}

// SignatureBundle returns the ZIP download of a document signature and its file name. Only the
// owner or the signer may fetch it.
func (s *DocumentService) SignatureBundle(ctx context.Context, principal *auth.Principal, id uuid.UUID) ([]byte, string, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if !doc.CanDownloadSignature(principal.UserID) {
		return nil, "", models.ErrForbidden
	}

	if doc.State() != models.DocumentSigned {
		return nil, "", ErrNotSigned
	}

	data, err := bundle.SignatureBundle(doc.DocumentID, *doc.Signature, doc.CertificatePEM, s.now())
	if err != nil {
		return nil, "", err
	}

	return data, fmt.Sprintf("signature_%s.zip", doc.DocumentID), nil
}
