package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
)

// Custom OID arc: 1.3.6.1.4.1.99999.2.x (temporary private arc)
// For production, register a Private Enterprise Number (PEN) with IANA
var (
	// OIDDocsignArc is the base OID for all docsign extensions
	OIDDocsignArc = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2}

	// OIDOwnerID binds a certificate to the user id it was issued for
	// Value: UTF8String
	OIDOwnerID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2, 1}

	// OIDCertificateRole records the position of the certificate in an issued chain
	// Value: UTF8String
	OIDCertificateRole = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2, 2}
)

// Role is the position of a certificate within an issued set.
type Role string

const (
	RoleRoot         Role = "root"
	RoleIntermediate Role = "intermediate"
	RoleLeaf         Role = "leaf"
	RoleIdentity     Role = "identity"
)

// ErrExtensionNotFound is returned when a required extension is missing
var ErrExtensionNotFound = errors.New("extension not found")

func stringExtension(oid asn1.ObjectIdentifier, value string) (pkix.Extension, error) {
	raw, err := asn1.MarshalWithParams(value, "utf8")
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal extension %s: %w", oid, err)
	}
	return pkix.Extension{Id: oid, Value: raw}, nil
}

func extractString(cert *x509.Certificate, oid asn1.ObjectIdentifier) (string, error) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			var value string
			if _, err := asn1.Unmarshal(ext.Value, &value); err != nil {
				return "", fmt.Errorf("failed to unmarshal extension %s: %w", oid, err)
			}
			return value, nil
		}
	}
	return "", ErrExtensionNotFound
}

// ExtractOwnerID extracts the owner id from the custom OID extension
func ExtractOwnerID(cert *x509.Certificate) (string, error) {
	return extractString(cert, OIDOwnerID)
}

// ExtractRole extracts the certificate role from the custom OID extension
func ExtractRole(cert *x509.Certificate) (Role, error) {
	role, err := extractString(cert, OIDCertificateRole)
	if err != nil {
		return "", err
	}
	return Role(role), nil
}

// OwnerOrCommonName returns the owner id extension, falling back to the subject CN.
func OwnerOrCommonName(cert *x509.Certificate) (string, error) {
	owner, err := ExtractOwnerID(cert)
	if err == nil {
		return owner, nil
	}
	if !errors.Is(err, ErrExtensionNotFound) {
		return "", fmt.Errorf("owner id: %w", err)
	}
	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("owner id: no extension or CN found")
	}
	return cert.Subject.CommonName, nil
}
