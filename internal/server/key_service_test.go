package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/auth"
	"github.com/wolfeidau/docsign/internal/bundle"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/store"
	memorystore "github.com/wolfeidau/docsign/internal/store/memory"
)

func newKeyService(t *testing.T, defaults IssuanceDefaults) (*KeyService, *memorystore.UserStore, *auth.Principal) {
	t.Helper()

	users := memorystore.NewUserStore()
	principal := &auth.Principal{UserID: "user-1", Username: "jane"}
	_, err := users.Ensure(context.Background(), &models.User{UserID: principal.UserID, Username: principal.Username})
	require.NoError(t, err)

	defaults.Bits = pki.KeyBits1024
	return NewKeyService(users, memorystore.NewCertificateStore(), defaults), users, principal
}

func TestKeyService_Defaults(t *testing.T) {
	ctx := context.Background()
	svc, users, principal := newKeyService(t, IssuanceDefaults{
		Identity: pki.Identity{Country: "AU", Organization: "Acme"},
	})

	data, err := svc.Issue(ctx, principal, IssueKeysRequest{})
	require.NoError(t, err)

	entries, err := bundle.Read(data)
	require.NoError(t, err)

	cert, err := pki.ParseCertificatePEM(entries[bundle.CertificateFile])
	require.NoError(t, err)
	require.Equal(t, "jane", cert.Subject.CommonName)
	require.Equal(t, []string{"Acme"}, cert.Subject.Organization)
	require.Equal(t, []string{"AU"}, cert.Subject.Country)
	require.True(t, cert.SelfSigned())

	ownerID, err := pki.ExtractOwnerID(cert.Certificate)
	require.NoError(t, err)
	require.Equal(t, "user-1", ownerID)

	user, err := users.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, user.HasKeys())

	_, err = svc.Issue(ctx, principal, IssueKeysRequest{Days: -1})
	require.ErrorIs(t, err, httpmiddleware.ErrBadRequest)

	_, err = svc.Issue(ctx, principal, IssueKeysRequest{Identity: pki.Identity{Country: "Australia"}})
	require.ErrorIs(t, err, pki.ErrInvalidIdentity)
}

func TestKeyService_WithIssuer(t *testing.T) {
	ctx := context.Background()

	ca, err := pki.IssueChain(rand.Reader, pki.ChainRequest{
		Root:         pki.Identity{CommonName: "Org Root CA"},
		Intermediate: pki.Identity{CommonName: "Org Intermediate CA"},
		Leaf:         pki.Identity{CommonName: "unused"},
		Validity:     pki.ValidFor(time.Now().UTC(), 24*time.Hour),
		Bits:         pki.KeyBits1024,
	})
	require.NoError(t, err)
	defer ca.Destroy()

	signer, err := pki.NewKeySigner(ca.Chain[1].Certificate, ca.IntermediateKey.PrivateKey)
	require.NoError(t, err)

	svc, _, principal := newKeyService(t, IssuanceDefaults{})
	svc.WithIssuer(signer)

	data, err := svc.Issue(ctx, principal, IssueKeysRequest{Days: 365})
	require.NoError(t, err)

	entries, err := bundle.Read(data)
	require.NoError(t, err)
	require.Contains(t, entries, bundle.IssuerCertFile)

	leaf, err := pki.ParseCertificatePEM(entries[bundle.CertificateFile])
	require.NoError(t, err)
	require.Equal(t, "Org Intermediate CA", leaf.Issuer.CommonName)
	require.NoError(t, leaf.CheckSignatureFrom(ca.Chain[1].Certificate))
	require.False(t, leaf.NotAfter.After(ca.Chain[1].NotAfter))

	certs, err := svc.ListCertificates(ctx, principal.UserID, 0)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	require.Equal(t, leaf.SerialHex(), certs[0].SerialNumber)

	t.Run("chain requests still issue a full chain", func(t *testing.T) {
		data, err := svc.Issue(ctx, principal, IssueKeysRequest{Chain: true})
		require.NoError(t, err)

		entries, err := bundle.Read(data)
		require.NoError(t, err)
		require.Contains(t, entries, bundle.RootCertFile)
	})
}

// failingCertificateStore rejects the nth registration.
type failingCertificateStore struct {
	*memorystore.CertificateStore
	failOn int
	calls  int
}

func (s *failingCertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("registry unavailable")
	}
	return s.CertificateStore.Register(ctx, cert)
}

func TestKeyService_RegistrationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()

	users := memorystore.NewUserStore()
	principal := &auth.Principal{UserID: "user-1", Username: "jane"}
	_, err := users.Ensure(ctx, &models.User{UserID: principal.UserID, Username: principal.Username})
	require.NoError(t, err)

	certs := &failingCertificateStore{CertificateStore: memorystore.NewCertificateStore(), failOn: 2}
	svc := NewKeyService(users, certs, IssuanceDefaults{Bits: pki.KeyBits1024})

	_, err = svc.Issue(ctx, principal, IssueKeysRequest{Chain: true})
	require.Error(t, err)

	registered, err := certs.List(ctx, store.ListCertificatesOptions{})
	require.NoError(t, err)
	require.Empty(t, registered)

	user, err := users.Get(ctx, principal.UserID)
	require.NoError(t, err)
	require.False(t, user.HasKeys())

	t.Run("unknown user rolls back registrations", func(t *testing.T) {
		certs := memorystore.NewCertificateStore()
		svc := NewKeyService(memorystore.NewUserStore(), certs, IssuanceDefaults{Bits: pki.KeyBits1024})

		_, err := svc.Issue(ctx, &auth.Principal{UserID: "ghost"}, IssueKeysRequest{})
		require.ErrorIs(t, err, store.ErrUserNotFound)

		registered, err := certs.List(ctx, store.ListCertificatesOptions{})
		require.NoError(t, err)
		require.Empty(t, registered)
	})
}

func TestKeyService_LogsClientIP(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	svc, _, principal := newKeyService(t, IssuanceDefaults{})

	ctx := httpmiddleware.WithClientIP(context.Background(), "203.0.113.7")
	_, err := svc.Issue(ctx, principal, IssueKeysRequest{})
	require.NoError(t, err)

	require.Contains(t, buf.String(), `"client_ip":"203.0.113.7"`)
	require.Contains(t, buf.String(), "Issued signing identity")
}
