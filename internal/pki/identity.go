package pki

import (
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentity is returned when an identity record fails validation.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is the distinguished name carried by issued certificates.
// Only the fields below are supported; construct it with NewIdentity.
type Identity struct {
	Country         string `yaml:"country" json:"country"`
	StateOrProvince string `yaml:"state" json:"state"`
	Locality        string `yaml:"locality" json:"locality"`
	Organization    string `yaml:"organization" json:"organization"`
	CommonName      string `yaml:"common_name" json:"commonName"`
}

// NewIdentity trims and validates the supplied fields.
func NewIdentity(country, state, locality, organization, commonName string) (Identity, error) {
	id := Identity{
		Country:         strings.ToUpper(strings.TrimSpace(country)),
		StateOrProvince: strings.TrimSpace(state),
		Locality:        strings.TrimSpace(locality),
		Organization:    strings.TrimSpace(organization),
		CommonName:      strings.TrimSpace(commonName),
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the identity invariants: a common name is required and the country,
// when present, is a two letter code.
func (id Identity) Validate() error {
	if id.CommonName == "" {
		return fmt.Errorf("%w: common name is required", ErrInvalidIdentity)
	}
	if len(id.CommonName) > 64 {
		return fmt.Errorf("%w: common name exceeds 64 characters", ErrInvalidIdentity)
	}
	if id.Country != "" {
		if len(id.Country) != 2 {
			return fmt.Errorf("%w: country must be a 2 letter code, got %q", ErrInvalidIdentity, id.Country)
		}
		for _, r := range id.Country {
			if r < 'A' || r > 'Z' {
				return fmt.Errorf("%w: country must be a 2 letter code, got %q", ErrInvalidIdentity, id.Country)
			}
		}
	}
	return nil
}

// Name converts the identity to a pkix.Name.
func (id Identity) Name() pkix.Name {
	name := pkix.Name{CommonName: id.CommonName}
	if id.Country != "" {
		name.Country = []string{id.Country}
	}
	if id.StateOrProvince != "" {
		name.Province = []string{id.StateOrProvince}
	}
	if id.Locality != "" {
		name.Locality = []string{id.Locality}
	}
	if id.Organization != "" {
		name.Organization = []string{id.Organization}
	}
	return name
}

// String returns the RFC 2253 form of the identity.
func (id Identity) String() string {
	name := id.Name()
	return name.String()
}

// IdentityFromName extracts the supported fields of a pkix.Name.
func IdentityFromName(name pkix.Name) Identity {
	return Identity{
		Country:         first(name.Country),
		StateOrProvince: first(name.Province),
		Locality:        first(name.Locality),
		Organization:    first(name.Organization),
		CommonName:      name.CommonName,
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
