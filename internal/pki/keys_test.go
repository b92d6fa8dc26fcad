package pki

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// testBits keeps key generation fast in tests.
const testBits = KeyBits1024

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerateKeyPair(t *testing.T) {
	t.Run("generates key of requested size", func(t *testing.T) {
		kp, err := GenerateKeyPair(rand.Reader, testBits)
		require.NoError(t, err)
		require.Equal(t, AlgorithmRSA, kp.Algorithm)
		require.Equal(t, testBits, kp.Bits)
		require.Equal(t, testBits, kp.PublicKey.N.BitLen())
		require.True(t, kp.PublicKey.Equal(&kp.PrivateKey.PublicKey))
	})

	t.Run("rejects unsupported size", func(t *testing.T) {
		for _, bits := range []int{0, 512, 3072, 8192} {
			_, err := GenerateKeyPair(rand.Reader, bits)
			require.ErrorIs(t, err, ErrUnsupportedKeySize)
		}
	})

	t.Run("failing entropy source", func(t *testing.T) {
		_, err := GenerateKeyPair(failingReader{}, testBits)
		require.ErrorIs(t, err, ErrKeyGeneration)
	})
}

func TestValidKeySize(t *testing.T) {
	require.True(t, ValidKeySize(1024))
	require.True(t, ValidKeySize(2048))
	require.True(t, ValidKeySize(4096))
	require.False(t, ValidKeySize(1023))
}

func TestKeyPair_Destroy(t *testing.T) {
	kp, err := GenerateKeyPair(rand.Reader, testBits)
	require.NoError(t, err)

	key := kp.PrivateKey
	kp.Destroy()

	require.Nil(t, kp.PrivateKey)
	require.Zero(t, key.D.Sign())
	for _, p := range key.Primes {
		require.Zero(t, p.Sign())
	}

	// public half stays usable
	require.NotNil(t, kp.PublicKey)

	// idempotent, including on nil
	kp.Destroy()
	var nilPair *KeyPair
	nilPair.Destroy()
}
