package pki

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Supported RSA modulus sizes.
const (
	KeyBits1024 = 1024
	KeyBits2048 = 2048
	KeyBits4096 = 4096

	DefaultKeyBits = KeyBits2048
)

// AlgorithmRSA is the only key algorithm issued.
const AlgorithmRSA = "RSA"

var (
	// ErrKeyGeneration is returned when the entropy source fails or key generation aborts.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrUnsupportedKeySize is returned for modulus sizes other than 1024, 2048 or 4096.
	ErrUnsupportedKeySize = errors.New("unsupported key size")
)

// KeyPair holds a freshly generated RSA key pair.
// The private half is owned by the caller and must be released with Destroy once it has been
// handed to the requester.
type KeyPair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
	Algorithm  string
	Bits       int
}

// ValidKeySize reports whether bits is an accepted modulus size.
func ValidKeySize(bits int) bool {
	switch bits {
	case KeyBits1024, KeyBits2048, KeyBits4096:
		return true
	}
	return false
}

// GenerateKeyPair generates an RSA key pair of the requested size using the supplied entropy source.
// Production callers pass crypto/rand.Reader.
func GenerateKeyPair(random io.Reader, bits int) (*KeyPair, error) {
	if !ValidKeySize(bits) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKeySize, bits)
	}

	key, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyGeneration, err)
	}

	return &KeyPair{
		PublicKey:  &key.PublicKey,
		PrivateKey: key,
		Algorithm:  AlgorithmRSA,
		Bits:       bits,
	}, nil
}

// Destroy zeroizes the private key material and drops the reference.
// It is safe to call more than once and on a nil receiver.
func (kp *KeyPair) Destroy() {
	if kp == nil {
		return
	}
	ZeroizeKey(kp.PrivateKey)
	kp.PrivateKey = nil
}

// ZeroizeKey overwrites the secret components of an RSA private key.
func ZeroizeKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}
	zeroInt(key.D)
	for _, p := range key.Primes {
		zeroInt(p)
	}
	zeroInt(key.Precomputed.Dp)
	zeroInt(key.Precomputed.Dq)
	zeroInt(key.Precomputed.Qinv)
	for i := range key.Precomputed.CRTValues {
		zeroInt(key.Precomputed.CRTValues[i].Exp)
		zeroInt(key.Precomputed.CRTValues[i].Coeff)
		zeroInt(key.Precomputed.CRTValues[i].R)
	}
}

func zeroInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}
