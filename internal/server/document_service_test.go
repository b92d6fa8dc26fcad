package server

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/auth"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/store"
	memorystore "github.com/wolfeidau/docsign/internal/store/memory"
)

type documentFixture struct {
	svc   *DocumentService
	users *memorystore.UserStore
	certs *memorystore.CertificateStore
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()

	users := memorystore.NewUserStore()
	certs := memorystore.NewCertificateStore()
	return &documentFixture{
		svc:   NewDocumentService(users, memorystore.NewDocumentStore(), certs),
		users: users,
		certs: certs,
	}
}

// identity issues a self-signed identity for ownerID. Registered identities are recorded the
// way POST /api/keys records them.
func (f *documentFixture) identity(t *testing.T, ownerID string, registered bool) (keyPEM, certPEM string) {
	t.Helper()
	ctx := context.Background()

	id, err := pki.NewIdentity("", "", "", "", ownerID)
	require.NoError(t, err)

	issued, err := pki.IssueSelfSigned(rand.Reader, pki.SelfSignedRequest{
		Identity: id,
		Validity: pki.DefaultValidity(time.Now()),
		Bits:     pki.KeyBits1024,
		OwnerID:  ownerID,
	})
	require.NoError(t, err)
	t.Cleanup(issued.Destroy)

	_, err = f.users.Ensure(ctx, &models.User{UserID: ownerID, Username: ownerID + "-name"})
	require.NoError(t, err)

	if registered {
		require.NoError(t, f.certs.Register(ctx, store.NewCertMetadata(issued.Certificate, ownerID)))

		pubPEM, err := pki.EncodePublicKeyPEM(issued.Key.PublicKey)
		require.NoError(t, err)
		fingerprint, err := pki.PublicKeyFingerprint(issued.Key.PublicKey)
		require.NoError(t, err)
		require.NoError(t, f.users.SetPublicKey(ctx, ownerID, string(pubPEM), fingerprint))
	}

	key, err := pki.EncodePrivateKeyPEM(issued.Key.PrivateKey, nil)
	require.NoError(t, err)

	return string(key), string(issued.Certificate.PEM())
}

func TestDocumentService_ConcurrentSign(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	svc := f.svc
	owner := &auth.Principal{UserID: "owner"}

	keyPEM, _ := f.identity(t, "owner", true)

	doc, err := svc.Create(ctx, owner, CreateDocumentRequest{Title: "race", Content: []byte("hello world")})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, models.ErrAlreadySigned):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, 7, conflicts)
}

func TestDocumentService_SignWithoutRegisteredCertificate(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	svc := f.svc
	owner := &auth.Principal{UserID: "owner"}

	keyPEM, certPEM := f.identity(t, "owner", false)

	doc, err := svc.Create(ctx, owner, CreateDocumentRequest{Title: "t", Content: []byte("hello")})
	require.NoError(t, err)

	_, err = svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM})
	require.ErrorIs(t, err, ErrCertificateRequired)

	signed, err := svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM, CertificatePEM: certPEM})
	require.NoError(t, err)
	require.Equal(t, models.DocumentSigned, signed.State())
}

func TestDocumentService_SignWithForeignCertificate(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	svc := f.svc
	owner := &auth.Principal{UserID: "owner"}

	keyPEM, _ := f.identity(t, "owner", false)
	_, otherCert := f.identity(t, "other", false)

	doc, err := svc.Create(ctx, owner, CreateDocumentRequest{Title: "t", Content: []byte("hello")})
	require.NoError(t, err)

	_, err = svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM, CertificatePEM: otherCert})
	require.ErrorIs(t, err, ErrSignatureMismatch)

	got, err := svc.Get(ctx, doc.DocumentID)
	require.NoError(t, err)
	require.Equal(t, models.DocumentUnsigned, got.State())
}

func TestDocumentService_ClearedKeysNeedCertificate(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	owner := &auth.Principal{UserID: "owner"}

	keyPEM, certPEM := f.identity(t, "owner", true)
	require.NoError(t, f.users.ClearPublicKey(ctx, "owner"))

	doc, err := f.svc.Create(ctx, owner, CreateDocumentRequest{Title: "t", Content: []byte("hello")})
	require.NoError(t, err)

	_, err = f.svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM})
	require.ErrorIs(t, err, ErrCertificateRequired)

	_, err = f.svc.Sign(ctx, owner, doc.DocumentID, SignRequest{PrivateKeyPEM: keyPEM, CertificatePEM: certPEM})
	require.NoError(t, err)
}

func TestDocumentService_ValidateResolvesSigner(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(t)
	owner := &auth.Principal{UserID: "owner"}

	keyPEM, _ := f.identity(t, "owner", true)

	doc, err := f.svc.Create(ctx, owner, CreateDocumentRequest{
		Title:   "t",
		Content: []byte("hello"),
		Sign:    &SignRequest{PrivateKeyPEM: keyPEM},
	})
	require.NoError(t, err)

	result, err := f.svc.Validate(ctx, doc.DocumentID, nil)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "owner", result.SignedBy)
	require.Equal(t, "owner-name", result.SignedByUsername)
}
