package bundle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/signature"
)

// IdentityBundle packages a self-signed identity: certificate, public key and private key.
// The private key is encrypted when passphrase is non-empty.
func IdentityBundle(id *pki.IssuedIdentity, passphrase []byte, now time.Time) ([]byte, error) {
	keyPEM, err := pki.EncodePrivateKeyPEM(id.Key.PrivateKey, passphrase)
	if err != nil {
		return nil, err
	}

	pubPEM, err := pki.EncodePublicKeyPEM(id.Key.PublicKey)
	if err != nil {
		return nil, err
	}

	return Build(now,
		Public(CertificateFile, id.Certificate.PEM()),
		Public(PublicKeyFile, pubPEM),
		Secret(PrivateKeyFile, keyPEM),
	)
}

// LeafBundle packages a leaf issued by an existing CA together with the issuer certificate and a
// leaf first chain.
func LeafBundle(id *pki.IssuedIdentity, issuer *pki.Certificate, passphrase []byte, now time.Time) ([]byte, error) {
	keyPEM, err := pki.EncodePrivateKeyPEM(id.Key.PrivateKey, passphrase)
	if err != nil {
		return nil, err
	}

	pubPEM, err := pki.EncodePublicKeyPEM(id.Key.PublicKey)
	if err != nil {
		return nil, err
	}

	return Build(now,
		Public(CertificateFile, id.Certificate.PEM()),
		Public(ChainFile, pki.EncodeChainPEM(id.Certificate, issuer)),
		Public(IssuerCertFile, issuer.PEM()),
		Public(PublicKeyFile, pubPEM),
		Secret(PrivateKeyFile, keyPEM),
	)
}

// ChainBundle packages an issued chain. The leaf key is always included; CA keys only when
// includeCAKeys is set.
func ChainBundle(issued *pki.IssuedChain, passphrase []byte, includeCAKeys bool, now time.Time) ([]byte, error) {
	leafKeyPEM, err := pki.EncodePrivateKeyPEM(issued.LeafKey.PrivateKey, passphrase)
	if err != nil {
		return nil, err
	}

	pubPEM, err := pki.EncodePublicKeyPEM(issued.LeafKey.PublicKey)
	if err != nil {
		return nil, err
	}

	chain := issued.Chain
	files := []File{
		Public(CertificateFile, chain.Leaf().PEM()),
		Public(ChainFile, chain.PEM()),
		Public(RootCertFile, chain.Root().PEM()),
		Public(IntermediateFile, chain[1].PEM()),
		Public(PublicKeyFile, pubPEM),
		Secret(PrivateKeyFile, leafKeyPEM),
	}

	if includeCAKeys {
		rootKeyPEM, err := pki.EncodePrivateKeyPEM(issued.RootKey.PrivateKey, passphrase)
		if err != nil {
			return nil, err
		}
		intKeyPEM, err := pki.EncodePrivateKeyPEM(issued.IntermediateKey.PrivateKey, passphrase)
		if err != nil {
			return nil, err
		}
		files = append(files, Secret(RootKeyFile, rootKeyPEM), Secret(IntermediateKeyFile, intKeyPEM))
	}

	return Build(now, files...)
}

// SignatureFileName names the signature entry for a document.
func SignatureFileName(documentID uuid.UUID) string {
	return fmt.Sprintf("signature_%s.txt", documentID)
}

// SignatureBundle packages a document signature as canonical Base64 text, plus the signer
// certificate when one is known.
func SignatureBundle(documentID uuid.UUID, sig signature.Signature, certificatePEM string, now time.Time) ([]byte, error) {
	canonical, err := sig.Canonical()
	if err != nil {
		return nil, err
	}

	files := []File{Public(SignatureFileName(documentID), []byte(canonical.Value))}
	if certificatePEM != "" {
		files = append(files, Public(CertificateFile, []byte(certificatePEM)))
	}

	return Build(now, files...)
}
