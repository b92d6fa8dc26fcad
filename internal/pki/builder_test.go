package pki

import (
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustIdentity(t *testing.T, cn string) Identity {
	t.Helper()
	id, err := NewIdentity("US", "California", "San Francisco", "Acme Inc", cn)
	require.NoError(t, err)
	return id
}

func mustKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair(rand.Reader, testBits)
	require.NoError(t, err)
	t.Cleanup(kp.Destroy)
	return kp
}

func testValidity() Validity {
	return Validity{
		NotBefore: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidity_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ValidFor(start, time.Hour).Validate())
	require.ErrorIs(t, Validity{NotBefore: start, NotAfter: start}.Validate(), ErrInvalidValidityWindow)
	require.ErrorIs(t, Validity{NotBefore: start, NotAfter: start.Add(-time.Second)}.Validate(), ErrInvalidValidityWindow)
	require.ErrorIs(t, Validity{NotAfter: start}.Validate(), ErrInvalidValidityWindow)
}

func TestBuildCertificate(t *testing.T) {
	t.Run("self-signed certificate", func(t *testing.T) {
		kp := mustKeyPair(t)
		id := mustIdentity(t, "Acme")

		cert, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:    id,
			PublicKey:  kp.PublicKey,
			Validity:   testValidity(),
			KeyUsage:   LeafKeyUsage,
			Role:       RoleIdentity,
			OwnerID:    "user-123",
			SigningKey: kp.PrivateKey,
		})
		require.NoError(t, err)

		require.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
		require.Equal(t, id, cert.SubjectIdentity())
		require.Equal(t, id, cert.IssuerIdentity())
		require.True(t, cert.SelfSigned())
		require.False(t, cert.IsCA)
		require.Equal(t, LeafKeyUsage, cert.KeyUsage)
		require.Equal(t, testValidity().NotBefore, cert.NotBefore.UTC())
		require.Equal(t, testValidity().NotAfter, cert.NotAfter.UTC())
		require.NotEmpty(t, cert.SubjectKeyId)

		pub, err := cert.RSAPublicKey()
		require.NoError(t, err)
		require.True(t, pub.Equal(kp.PublicKey))

		owner, err := ExtractOwnerID(cert.Certificate)
		require.NoError(t, err)
		require.Equal(t, "user-123", owner)

		role, err := ExtractRole(cert.Certificate)
		require.NoError(t, err)
		require.Equal(t, RoleIdentity, role)
	})

	t.Run("fresh serial per call", func(t *testing.T) {
		kp := mustKeyPair(t)
		req := CertificateRequest{
			Subject:    mustIdentity(t, "Acme"),
			PublicKey:  kp.PublicKey,
			Validity:   testValidity(),
			KeyUsage:   LeafKeyUsage,
			SigningKey: kp.PrivateKey,
		}

		first, err := BuildCertificate(rand.Reader, req)
		require.NoError(t, err)
		second, err := BuildCertificate(rand.Reader, req)
		require.NoError(t, err)

		require.NotEqual(t, first.SerialHex(), second.SerialHex())
		require.LessOrEqual(t, first.SerialNumber.BitLen(), 128)
	})

	t.Run("inverted validity window", func(t *testing.T) {
		kp := mustKeyPair(t)
		v := testValidity()

		_, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:    mustIdentity(t, "Acme"),
			PublicKey:  kp.PublicKey,
			Validity:   Validity{NotBefore: v.NotAfter, NotAfter: v.NotBefore},
			KeyUsage:   LeafKeyUsage,
			SigningKey: kp.PrivateKey,
		})
		require.ErrorIs(t, err, ErrInvalidValidityWindow)
	})

	t.Run("end-entity cannot carry cert sign", func(t *testing.T) {
		kp := mustKeyPair(t)

		_, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:    mustIdentity(t, "Acme"),
			PublicKey:  kp.PublicKey,
			Validity:   testValidity(),
			KeyUsage:   CAKeyUsage,
			SigningKey: kp.PrivateKey,
		})
		require.ErrorIs(t, err, ErrInvalidKeyUsage)
	})

	t.Run("self-signed key mismatch", func(t *testing.T) {
		kp := mustKeyPair(t)
		other := mustKeyPair(t)

		_, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:    mustIdentity(t, "Acme"),
			PublicKey:  kp.PublicKey,
			Validity:   testValidity(),
			KeyUsage:   LeafKeyUsage,
			SigningKey: other.PrivateKey,
		})
		require.ErrorIs(t, err, ErrCertificateIssue)
	})

	t.Run("failing entropy source for serial", func(t *testing.T) {
		kp := mustKeyPair(t)

		_, err := BuildCertificate(failingReader{}, CertificateRequest{
			Subject:    mustIdentity(t, "Acme"),
			PublicKey:  kp.PublicKey,
			Validity:   testValidity(),
			KeyUsage:   LeafKeyUsage,
			SigningKey: kp.PrivateKey,
		})
		require.ErrorIs(t, err, ErrKeyGeneration)
	})

	t.Run("issued by CA signer", func(t *testing.T) {
		caKey := mustKeyPair(t)
		ca, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:    mustIdentity(t, "Acme Root"),
			PublicKey:  caKey.PublicKey,
			Validity:   testValidity(),
			IsCA:       true,
			MaxPathLen: 0,
			KeyUsage:   CAKeyUsage,
			SigningKey: caKey.PrivateKey,
		})
		require.NoError(t, err)
		require.True(t, ca.IsCA)
		require.True(t, ca.MaxPathLenZero)

		signer, err := NewKeySigner(ca.Certificate, caKey.PrivateKey)
		require.NoError(t, err)

		leafKey := mustKeyPair(t)
		leaf, err := BuildCertificate(rand.Reader, CertificateRequest{
			Subject:   mustIdentity(t, "Acme Leaf"),
			PublicKey: leafKey.PublicKey,
			Validity:  testValidity(),
			KeyUsage:  LeafKeyUsage,
			Issuer:    signer,
		})
		require.NoError(t, err)

		require.Equal(t, ca.Subject.String(), leaf.Issuer.String())
		require.Equal(t, ca.SubjectKeyId, leaf.AuthorityKeyId)
		require.NoError(t, leaf.CheckSignatureFrom(ca.Certificate))
		require.False(t, leaf.SelfSigned())
	})
}

func TestNewKeySigner(t *testing.T) {
	kp := mustKeyPair(t)
	leaf, err := BuildCertificate(rand.Reader, CertificateRequest{
		Subject:    mustIdentity(t, "Acme"),
		PublicKey:  kp.PublicKey,
		Validity:   testValidity(),
		KeyUsage:   LeafKeyUsage,
		SigningKey: kp.PrivateKey,
	})
	require.NoError(t, err)

	_, err = NewKeySigner(leaf.Certificate, kp.PrivateKey)
	require.ErrorIs(t, err, ErrNotCA)
}
