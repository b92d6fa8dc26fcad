package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/auth"
	"github.com/wolfeidau/docsign/internal/bundle"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/store"
	"github.com/wolfeidau/docsign/internal/telemetry"
)

// IssuanceDefaults fill in identity fields, key size and validity the caller leaves empty.
type IssuanceDefaults struct {
	Identity pki.Identity
	Bits     int
	Validity time.Duration
}

// ApplyDefaults sets 2048 bit keys valid for one year.
func (d *IssuanceDefaults) ApplyDefaults() {
	if d.Bits == 0 {
		d.Bits = pki.DefaultKeyBits
	}
	if d.Validity == 0 {
		d.Validity = 365 * 24 * time.Hour
	}
}

// IssueKeysRequest asks for a signing identity. Empty fields take the configured defaults and
// the common name defaults to the caller's username.
type IssueKeysRequest struct {
	Identity   pki.Identity `json:"identity"`
	Bits       int          `json:"bits,omitempty"`
	Days       int          `json:"days,omitempty"`
	Passphrase string       `json:"passphrase,omitempty"`
	Chain      bool         `json:"chain,omitempty"`
	CAKeys     bool         `json:"includeCAKeys,omitempty"`
}

// KeyService issues signing identities and serves the certificate registry.
type KeyService struct {
	users        store.UserStore
	certificates store.CertificateStore
	defaults     IssuanceDefaults
	issuer       pki.CASigner
	random       io.Reader
	now          func() time.Time
}

// NewKeyService creates a key service.
func NewKeyService(users store.UserStore, certificates store.CertificateStore, defaults IssuanceDefaults) *KeyService {
	defaults.ApplyDefaults()
	return &KeyService{
		users:        users,
		certificates: certificates,
		defaults:     defaults,
		random:       rand.Reader,
		now:          time.Now,
	}
}

// WithIssuer makes single identities leaves of issuer instead of self-signed certificates.
func (s *KeyService) WithIssuer(issuer pki.CASigner) *KeyService {
	s.issuer = issuer
	return s
}

// Issue generates keys and certificates for the caller and returns them as a ZIP bundle.
// Certificates are registered and the leaf public key becomes the user's signing key. Private
// keys leave only inside the bundle and are zeroized before returning.
func (s *KeyService) Issue(ctx context.Context, principal *auth.Principal, req IssueKeysRequest) ([]byte, error) {
	id := s.identity(principal, req.Identity)
	if err := id.Validate(); err != nil {
		return nil, err
	}

	bits := req.Bits
	if bits == 0 {
		bits = s.defaults.Bits
	}
	if !pki.ValidKeySize(bits) {
		return nil, fmt.Errorf("%w: %d", pki.ErrUnsupportedKeySize, bits)
	}

	lifetime := s.defaults.Validity
	if req.Days < 0 {
		return nil, fmt.Errorf("%w: days must be positive", httpmiddleware.ErrBadRequest)
	}
	if req.Days > 0 {
		lifetime = time.Duration(req.Days) * 24 * time.Hour
	}

	now := s.now()
	validity := pki.ValidFor(now.UTC().Truncate(time.Second), lifetime)
	passphrase := []byte(req.Passphrase)

	var (
		data  []byte
		certs []*pki.Certificate
		leaf  *pki.KeyPair
	)

	start := time.Now()

	if req.Chain {
		issued, err := pki.IssueChain(s.random, pki.ChainRequest{
			Root:         pki.CAIdentity(id, "Root CA"),
			Intermediate: pki.CAIdentity(id, "Intermediate CA"),
			Leaf:         id,
			Validity:     validity,
			Bits:         bits,
			OwnerID:      principal.UserID,
		})
		if err != nil {
			return nil, err
		}
		defer issued.Destroy()

		telemetry.GetMetrics().RecordKeyGeneration(ctx, bits, 3, time.Since(start))

		data, err = bundle.ChainBundle(issued, passphrase, req.CAKeys, now)
		if err != nil {
			return nil, err
		}
		certs = issued.Chain
		leaf = issued.LeafKey
	} else if s.issuer != nil {
		caCert, err := s.issuer.GetCACertificate()
		if err != nil {
			return nil, fmt.Errorf("failed to get CA certificate: %w", err)
		}

		issued, err := pki.IssueFromCA(s.random, s.issuer, pki.LeafRequest{
			Identity: id,
			Validity: validity,
			Bits:     bits,
			OwnerID:  principal.UserID,
		})
		if err != nil {
			return nil, err
		}
		defer issued.Destroy()

		telemetry.GetMetrics().RecordKeyGeneration(ctx, bits, 1, time.Since(start))

		data, err = bundle.LeafBundle(issued, &pki.Certificate{Certificate: caCert}, passphrase, now)
		if err != nil {
			return nil, err
		}
		certs = []*pki.Certificate{issued.Certificate}
		leaf = issued.Key
	} else {
		issued, err := pki.IssueSelfSigned(s.random, pki.SelfSignedRequest{
			Identity: id,
			Validity: validity,
			Bits:     bits,
			OwnerID:  principal.UserID,
		})
		if err != nil {
			return nil, err
		}
		defer issued.Destroy()

		telemetry.GetMetrics().RecordKeyGeneration(ctx, bits, 1, time.Since(start))

		data, err = bundle.IdentityBundle(issued, passphrase, now)
		if err != nil {
			return nil, err
		}
		certs = []*pki.Certificate{issued.Certificate}
		leaf = issued.Key
	}

	pubPEM, err := pki.EncodePublicKeyPEM(leaf.PublicKey)
	if err != nil {
		return nil, err
	}
	fingerprint, err := pki.PublicKeyFingerprint(leaf.PublicKey)
	if err != nil {
		return nil, err
	}

	registered, err := s.register(ctx, certs, principal.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPublicKey(ctx, principal.UserID, string(pubPEM), fingerprint); err != nil {
		s.unregister(ctx, registered)
		return nil, err
	}

	for _, meta := range registered {
		telemetry.GetMetrics().RecordCertificates(ctx, meta.Role, 1)
	}

	log.Info().
		Str("user_id", principal.UserID).
		Str("client_ip", httpmiddleware.ClientIPFromContext(ctx)).
		Str("fingerprint", fingerprint).
		Int("bits", bits).
		Bool("chain", req.Chain).
		Msg("Issued signing identity")

	return data, nil
}

// register records every certificate or none of them.
func (s *KeyService) register(ctx context.Context, certs []*pki.Certificate, ownerID string) ([]*store.CertMetadata, error) {
	registered := make([]*store.CertMetadata, 0, len(certs))
	for _, cert := range certs {
		meta := store.NewCertMetadata(cert, ownerID)
		if err := s.certificates.Register(ctx, meta); err != nil {
			s.unregister(ctx, registered)
			return nil, fmt.Errorf("failed to register certificate: %w", err)
		}
		registered = append(registered, meta)
	}
	return registered, nil
}

// unregister removes registrations left by a failed issue. Failures are logged since the
// caller is already returning an error.
func (s *KeyService) unregister(ctx context.Context, registered []*store.CertMetadata) {
	for _, meta := range registered {
		if err := s.certificates.Delete(context.WithoutCancel(ctx), meta.SerialNumber); err != nil {
			log.Error().Err(err).
				Str("serial_number", meta.SerialNumber).
				Str("owner_id", meta.OwnerID).
				Msg("Failed to remove certificate of failed issue")
		}
	}
}

// DeleteKeys forgets the caller's public key. Registered certificates remain for verification.
func (s *KeyService) DeleteKeys(ctx context.Context, principal *auth.Principal) error {
	if err := s.users.ClearPublicKey(ctx, principal.UserID); err != nil {
		return err
	}

	log.Info().Str("user_id", principal.UserID).Msg("Cleared signing identity")

	return nil
}

// GetCertificate returns a registered certificate by hex serial.
func (s *KeyService) GetCertificate(ctx context.Context, serial string) (*store.CertMetadata, error) {
	return s.certificates.Get(ctx, serial)
}

// FindCertificate returns the certificate with the given fingerprint.
func (s *KeyService) FindCertificate(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	return s.certificates.GetByFingerprint(ctx, fingerprint)
}

// ListCertificates returns the certificates registered to ownerID.
func (s *KeyService) ListCertificates(ctx context.Context, ownerID string, limit int) ([]*store.CertMetadata, error) {
	return s.certificates.List(ctx, store.ListCertificatesOptions{OwnerID: ownerID, Limit: limit})
}

func (s *KeyService) identity(principal *auth.Principal, req pki.Identity) pki.Identity {
	id := s.defaults.Identity
	if req.Country != "" {
		id.Country = req.Country
	}
	if req.StateOrProvince != "" {
		id.StateOrProvince = req.StateOrProvince
	}
	if req.Locality != "" {
		id.Locality = req.Locality
	}
	if req.Organization != "" {
		id.Organization = req.Organization
	}
	id.CommonName = req.CommonName
	if id.CommonName == "" {
		id.CommonName = principal.Username
	}
	if id.CommonName == "" {
		id.CommonName = principal.UserID
	}

	normalized, err := pki.NewIdentity(id.Country, id.StateOrProvince, id.Locality, id.Organization, id.CommonName)
	if err != nil {
		return id
	}
	return normalized
}
