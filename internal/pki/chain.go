package pki

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrChainBroken is returned when a certificate chain fails linkage or signature checks.
var ErrChainBroken = errors.New("certificate chain broken")

// Chain is an ordered list of certificates, root first.
type Chain []*Certificate

// Root returns the first certificate.
func (c Chain) Root() *Certificate {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Leaf returns the last certificate.
func (c Chain) Leaf() *Certificate {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// PEM encodes the chain leaf first, the order TLS peers expect.
func (c Chain) PEM() []byte {
	reversed := make([]*Certificate, 0, len(c))
	for i := len(c) - 1; i >= 0; i-- {
		reversed = append(reversed, c[i])
	}
	return EncodeChainPEM(reversed...)
}

// Walk checks that the chain leads from its leaf to a self-signed root: every issuer
// matches the preceding subject and every signature verifies with the preceding key.
// The chain may be supplied in either order.
func (c Chain) Walk() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty chain", ErrChainBroken)
	}

	ordered := c
	if !c[0].SelfSigned() && c[len(c)-1].SelfSigned() {
		ordered = make(Chain, 0, len(c))
		for i := len(c) - 1; i >= 0; i-- {
			ordered = append(ordered, c[i])
		}
	}

	if !ordered[0].SelfSigned() {
		return fmt.Errorf("%w: root %q is not self-signed", ErrChainBroken, ordered[0].Subject.CommonName)
	}

	for i := 1; i < len(ordered); i++ {
		parent, child := ordered[i-1], ordered[i]
		if !bytes.Equal(child.RawIssuer, parent.RawSubject) {
			return fmt.Errorf("%w: issuer of %q does not match subject of %q",
				ErrChainBroken, child.Subject.CommonName, parent.Subject.CommonName)
		}
		if err := child.CheckSignatureFrom(parent.Certificate); err != nil {
			return fmt.Errorf("%w: %q not signed by %q: %w",
				ErrChainBroken, child.Subject.CommonName, parent.Subject.CommonName, err)
		}
	}

	return nil
}

// ChainRequest describes a root, intermediate and leaf sharing one validity window.
type ChainRequest struct {
	Root         Identity
	Intermediate Identity
	Leaf         Identity
	Validity     Validity
	Bits         int
	OwnerID      string
}

// IssuedChain is the result of IssueChain. All three private keys belong to the caller.
type IssuedChain struct {
	Chain           Chain
	RootKey         *KeyPair
	IntermediateKey *KeyPair
	LeafKey         *KeyPair
}

// Destroy zeroizes every private key in the issued chain.
func (ic *IssuedChain) Destroy() {
	if ic == nil {
		return
	}
	ic.RootKey.Destroy()
	ic.IntermediateKey.Destroy()
	ic.LeafKey.Destroy()
}

// IssueChain issues a three tier chain: a self-signed root CA, an intermediate CA signed by the
// root, and an end-entity leaf signed by the intermediate. Either the whole chain is returned or
// nothing is, and every key generated along the way is destroyed on failure.
func IssueChain(random io.Reader, req ChainRequest) (result *IssuedChain, err error) {
	if err := req.Validity.Validate(); err != nil {
		return nil, err
	}
	for _, id := range []Identity{req.Root, req.Intermediate, req.Leaf} {
		if err := id.Validate(); err != nil {
			return nil, err
		}
	}

	bits := req.Bits
	if bits == 0 {
		bits = DefaultKeyBits
	}

	issued := &IssuedChain{}
	defer func() {
		if err != nil {
			issued.Destroy()
			result = nil
		}
	}()

	issued.RootKey, err = GenerateKeyPair(random, bits)
	if err != nil {
		return nil, fmt.Errorf("root key: %w", err)
	}

	root, err := BuildCertificate(random, CertificateRequest{
		Subject:    req.Root,
		PublicKey:  issued.RootKey.PublicKey,
		Validity:   req.Validity,
		IsCA:       true,
		MaxPathLen: 1,
		KeyUsage:   CAKeyUsage,
		Role:       RoleRoot,
		SigningKey: issued.RootKey.PrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("root certificate: %w", err)
	}

	rootSigner, err := NewKeySigner(root.Certificate, issued.RootKey.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("root signer: %w", err)
	}

	issued.IntermediateKey, err = GenerateKeyPair(random, bits)
	if err != nil {
		return nil, fmt.Errorf("intermediate key: %w", err)
	}

	intermediate, err := BuildCertificate(random, CertificateRequest{
		Subject:    req.Intermediate,
		PublicKey:  issued.IntermediateKey.PublicKey,
		Validity:   req.Validity,
		IsCA:       true,
		MaxPathLen: 0,
		KeyUsage:   CAKeyUsage,
		Role:       RoleIntermediate,
		Issuer:     rootSigner,
	})
	if err != nil {
		return nil, fmt.Errorf("intermediate certificate: %w", err)
	}

	intermediateSigner, err := NewKeySigner(intermediate.Certificate, issued.IntermediateKey.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("intermediate signer: %w", err)
	}

	issued.LeafKey, err = GenerateKeyPair(random, bits)
	if err != nil {
		return nil, fmt.Errorf("leaf key: %w", err)
	}

	leaf, err := BuildCertificate(random, CertificateRequest{
		Subject:   req.Leaf,
		PublicKey: issued.LeafKey.PublicKey,
		Validity:  req.Validity,
		KeyUsage:  LeafKeyUsage,
		Role:      RoleLeaf,
		OwnerID:   req.OwnerID,
		Issuer:    intermediateSigner,
	})
	if err != nil {
		return nil, fmt.Errorf("leaf certificate: %w", err)
	}

	issued.Chain = Chain{root, intermediate, leaf}
	if err := issued.Chain.Walk(); err != nil {
		return nil, err
	}

	return issued, nil
}

// SelfSignedRequest describes a single self-signed end-entity identity.
type SelfSignedRequest struct {
	Identity Identity
	Validity Validity
	Bits     int
	OwnerID  string
}

// IssuedIdentity is a certificate and the key it certifies.
type IssuedIdentity struct {
	Certificate *Certificate
	Key         *KeyPair
}

// Destroy zeroizes the private key.
func (ii *IssuedIdentity) Destroy() {
	if ii == nil {
		return
	}
	ii.Key.Destroy()
}

// IssueSelfSigned generates a key pair and a self-signed, non-CA certificate for it.
func IssueSelfSigned(random io.Reader, req SelfSignedRequest) (*IssuedIdentity, error) {
	if err := req.Identity.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validity.Validate(); err != nil {
		return nil, err
	}

	bits := req.Bits
	if bits == 0 {
		bits = DefaultKeyBits
	}

	kp, err := GenerateKeyPair(random, bits)
	if err != nil {
		return nil, err
	}

	cert, err := BuildCertificate(random, CertificateRequest{
		Subject:    req.Identity,
		PublicKey:  kp.PublicKey,
		Validity:   req.Validity,
		KeyUsage:   LeafKeyUsage,
		Role:       RoleIdentity,
		OwnerID:    req.OwnerID,
		SigningKey: kp.PrivateKey,
	})
	if err != nil {
		kp.Destroy()
		return nil, err
	}

	return &IssuedIdentity{Certificate: cert, Key: kp}, nil
}

// LeafRequest describes an end-entity certificate issued by an existing CA.
type LeafRequest struct {
	Identity Identity
	Validity Validity
	Bits     int
	OwnerID  string
}

// IssueFromCA generates a key pair and a leaf certificate signed by signer. The validity window
// is clamped to the CA's own window.
func IssueFromCA(random io.Reader, signer CASigner, req LeafRequest) (*IssuedIdentity, error) {
	caCert, err := signer.GetCACertificate()
	if err != nil {
		return nil, fmt.Errorf("failed to get CA certificate: %w", err)
	}

	validity := req.Validity
	if validity.NotBefore.Before(caCert.NotBefore) {
		validity.NotBefore = caCert.NotBefore
	}
	if validity.NotAfter.After(caCert.NotAfter) {
		validity.NotAfter = caCert.NotAfter
	}
	if err := validity.Validate(); err != nil {
		return nil, err
	}

	bits := req.Bits
	if bits == 0 {
		bits = DefaultKeyBits
	}

	kp, err := GenerateKeyPair(random, bits)
	if err != nil {
		return nil, err
	}

	cert, err := BuildCertificate(random, CertificateRequest{
		Subject:   req.Identity,
		PublicKey: kp.PublicKey,
		Validity:  validity,
		KeyUsage:  LeafKeyUsage,
		Role:      RoleLeaf,
		OwnerID:   req.OwnerID,
		Issuer:    signer,
	})
	if err != nil {
		kp.Destroy()
		return nil, err
	}

	return &IssuedIdentity{Certificate: cert, Key: kp}, nil
}

// DefaultValidity is one year from now, truncated to the second.
func DefaultValidity(now time.Time) Validity {
	start := now.UTC().Truncate(time.Second)
	return Validity{NotBefore: start, NotAfter: start.AddDate(1, 0, 0)}
}

// CAIdentity derives a CA subject from a leaf identity, named after its organization.
func CAIdentity(leaf Identity, suffix string) Identity {
	id := leaf
	name := leaf.Organization
	if name == "" {
		name = leaf.CommonName
	}
	id.CommonName = fmt.Sprintf("%s %s", name, suffix)
	if len(id.CommonName) > 64 {
		id.CommonName = suffix
	}
	return id
}
