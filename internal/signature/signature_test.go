package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/pki"
)

func issueIdentity(t *testing.T) *pki.IssuedIdentity {
	t.Helper()

	id, err := pki.NewIdentity("US", "California", "San Francisco", "Acme Inc", "Acme")
	require.NoError(t, err)

	issued, err := pki.IssueSelfSigned(rand.Reader, pki.SelfSignedRequest{
		Identity: id,
		Validity: pki.ValidFor(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 365*24*time.Hour),
		Bits:     pki.KeyBits1024,
	})
	require.NoError(t, err)
	t.Cleanup(issued.Destroy)
	return issued
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("")
	require.NoError(t, err)
	require.Equal(t, EncodingBase64, enc)

	enc, err = ParseEncoding("HEX")
	require.NoError(t, err)
	require.Equal(t, EncodingHex, enc)

	_, err = ParseEncoding("base32")
	require.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestSignVerify(t *testing.T) {
	issued := issueIdentity(t)
	content := []byte("hello world")

	t.Run("round trip with certificate", func(t *testing.T) {
		sig, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)
		require.Equal(t, EncodingBase64, sig.Encoding)

		ok, err := Verify(content, sig, CertificatePEM(issued.Certificate.PEM()))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = Verify(content, sig, FromCertificate(issued.Certificate))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("round trip with raw key", func(t *testing.T) {
		sig, err := Sign(content, issued.Key.PrivateKey, EncodingHex)
		require.NoError(t, err)
		require.Equal(t, EncodingHex, sig.Encoding)

		ok, err := Verify(content, sig, FromPublicKey(issued.Key.PublicKey))
		require.NoError(t, err)
		require.True(t, ok)

		pubPEM, err := pki.EncodePublicKeyPEM(issued.Key.PublicKey)
		require.NoError(t, err)
		ok, err = Verify(content, sig, PublicKeyPEM(pubPEM))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)
		second, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("tampered content fails", func(t *testing.T) {
		sig, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)

		for _, tampered := range [][]byte{
			[]byte("hello world!"),
			[]byte("Hello world"),
			[]byte("hello worl"),
			{},
		} {
			ok, err := Verify(tampered, sig, FromCertificate(issued.Certificate))
			require.NoError(t, err)
			require.False(t, ok, "content %q", tampered)
		}
	})

	t.Run("binary content is signed byte for byte", func(t *testing.T) {
		binary := []byte{0xff, 0xfe, 0x00, 0x80}

		sig, err := Sign(binary, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)

		ok, err := Verify(binary, sig, FromCertificate(issued.Certificate))
		require.NoError(t, err)
		require.True(t, ok)

		// decoding as text replaces invalid sequences with U+FFFD
		reencoded := []byte(string([]rune(string(binary))))
		require.NotEqual(t, binary, reencoded)

		ok, err = Verify(reencoded, sig, FromCertificate(issued.Certificate))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("flipped signature byte fails", func(t *testing.T) {
		sig, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)

		raw, err := sig.Bytes()
		require.NoError(t, err)
		raw[0] ^= 0x01

		flipped, err := New(raw, EncodingBase64)
		require.NoError(t, err)

		ok, err := Verify(content, flipped, FromCertificate(issued.Certificate))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		other := issueIdentity(t)

		sig, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)

		ok, err := Verify(content, sig, FromCertificate(other.Certificate))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("truncated signature is a mismatch", func(t *testing.T) {
		sig, err := New([]byte{1, 2, 3, 4}, EncodingBase64)
		require.NoError(t, err)

		ok, err := Verify(content, sig, FromCertificate(issued.Certificate))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("undecodable signature", func(t *testing.T) {
		for _, sig := range []Signature{
			{Value: "not base64!!", Encoding: EncodingBase64},
			{Value: "zz", Encoding: EncodingHex},
			{Value: "", Encoding: EncodingBase64},
		} {
			_, err := Verify(content, sig, FromCertificate(issued.Certificate))
			require.ErrorIs(t, err, ErrMalformedSignature)
		}
	})

	t.Run("malformed certificate", func(t *testing.T) {
		sig, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
		require.NoError(t, err)

		_, err = Verify(content, sig, CertificatePEM("-----BEGIN CERTIFICATE-----\ngarbage\n-----END CERTIFICATE-----\n"))
		require.ErrorIs(t, err, ErrMalformedCertificate)
	})
}

func TestSign_Errors(t *testing.T) {
	issued := issueIdentity(t)

	t.Run("nil key", func(t *testing.T) {
		_, err := Sign([]byte("x"), nil, EncodingBase64)
		require.ErrorIs(t, err, ErrSigning)
	})

	t.Run("non RSA key", func(t *testing.T) {
		ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		_, err = Sign([]byte("x"), ecKey, EncodingBase64)
		require.ErrorIs(t, err, ErrSigning)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		_, err := Sign([]byte("x"), issued.Key.PrivateKey, Encoding("base32"))
		require.ErrorIs(t, err, ErrUnknownEncoding)
	})

	t.Run("malformed pem key", func(t *testing.T) {
		_, err := SignPEM([]byte("x"), []byte("junk"), nil, EncodingBase64)
		require.ErrorIs(t, err, ErrSigning)
	})
}

func TestSignPEM(t *testing.T) {
	issued := issueIdentity(t)
	content := []byte("hello world")

	keyPEM, err := pki.EncodePrivateKeyPEM(issued.Key.PrivateKey, []byte("pw"))
	require.NoError(t, err)

	sig, err := SignPEM(content, keyPEM, []byte("pw"), EncodingBase64)
	require.NoError(t, err)

	expected, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
	require.NoError(t, err)
	require.Equal(t, expected, sig)
}

func TestSignature_Canonical(t *testing.T) {
	issued := issueIdentity(t)
	content := []byte("hello world")

	b64, err := Sign(content, issued.Key.PrivateKey, EncodingBase64)
	require.NoError(t, err)
	hexSig, err := Sign(content, issued.Key.PrivateKey, EncodingHex)
	require.NoError(t, err)

	t.Run("base64 re-encode is identity", func(t *testing.T) {
		raw, err := b64.Bytes()
		require.NoError(t, err)
		require.Equal(t, b64.Value, base64.StdEncoding.EncodeToString(raw))

		canon, err := b64.Canonical()
		require.NoError(t, err)
		require.Equal(t, b64, canon)
	})

	t.Run("hex canonicalises to the same base64", func(t *testing.T) {
		canon, err := hexSig.Canonical()
		require.NoError(t, err)
		require.Equal(t, b64, canon)
	})

	t.Run("parse validates", func(t *testing.T) {
		sig, err := Parse(" "+hexSig.Value+"\n", "hex")
		require.NoError(t, err)
		require.Equal(t, hexSig, sig)

		_, err = Parse("%%%", "base64")
		require.ErrorIs(t, err, ErrMalformedSignature)
	})
}
