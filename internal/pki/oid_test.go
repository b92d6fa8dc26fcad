package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Simplified test - create certs with extension manually
func createCertWithExtension(oid asn1.ObjectIdentifier, value string) *x509.Certificate {
	ext, _ := stringExtension(oid, value)

	return &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "test-owner",
		},
		NotBefore:  time.Now(),
		NotAfter:   time.Now().Add(24 * time.Hour),
		Extensions: []pkix.Extension{ext},
	}
}

func TestExtractOwnerID(t *testing.T) {
	t.Run("extract owner id", func(t *testing.T) {
		cert := createCertWithExtension(OIDOwnerID, "user-12345")

		id, err := ExtractOwnerID(cert)
		require.NoError(t, err)
		require.Equal(t, "user-12345", id)
	})

	t.Run("missing extension returns error", func(t *testing.T) {
		cert := &x509.Certificate{
			Subject: pkix.Name{CommonName: "test"},
		}

		_, err := ExtractOwnerID(cert)
		require.ErrorIs(t, err, ErrExtensionNotFound)
	})

	t.Run("corrupt extension value", func(t *testing.T) {
		cert := &x509.Certificate{
			Extensions: []pkix.Extension{{Id: OIDOwnerID, Value: []byte{0xff}}},
		}

		_, err := ExtractOwnerID(cert)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrExtensionNotFound)
	})
}

func TestExtractRole(t *testing.T) {
	cert := createCertWithExtension(OIDCertificateRole, "intermediate")

	role, err := ExtractRole(cert)
	require.NoError(t, err)
	require.Equal(t, RoleIntermediate, role)

	_, err = ExtractRole(&x509.Certificate{})
	require.ErrorIs(t, err, ErrExtensionNotFound)
}

func TestOwnerOrCommonName(t *testing.T) {
	t.Run("prefers extension", func(t *testing.T) {
		cert := createCertWithExtension(OIDOwnerID, "user-1")

		owner, err := OwnerOrCommonName(cert)
		require.NoError(t, err)
		require.Equal(t, "user-1", owner)
	})

	t.Run("falls back to CN", func(t *testing.T) {
		cert := &x509.Certificate{Subject: pkix.Name{CommonName: "Acme"}}

		owner, err := OwnerOrCommonName(cert)
		require.NoError(t, err)
		require.Equal(t, "Acme", owner)
	})

	t.Run("no extension or CN", func(t *testing.T) {
		_, err := OwnerOrCommonName(&x509.Certificate{})
		require.Error(t, err)
	})
}
