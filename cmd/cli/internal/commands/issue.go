package commands

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/cmd/cli/internal/profiles"
	"github.com/wolfeidau/docsign/internal/bundle"
	"github.com/wolfeidau/docsign/internal/pki"
)

const defaultValidityDays = 365

// IssueCmd issues a self-signed identity, a full root/intermediate/leaf chain, or a leaf signed
// by an existing CA held in local PEM files.
type IssueCmd struct {
	CommonName   string `arg:"" optional:"" help:"Certificate common name (overrides the profile)"`
	Country      string `help:"Two letter country code"`
	State        string `help:"State or province"`
	Locality     string `help:"Locality or city"`
	Organization string `help:"Organization name"`

	Profile     string `help:"Identity profile to start from (defaults to the default profile)"`
	ProfileFile string `help:"Load the identity profile from a YAML file" type:"existingfile"`
	ProfilesDir string `help:"Custom profiles directory"`

	Bits int `help:"RSA key size: 1024, 2048 or 4096"`
	Days int `help:"Certificate validity in days"`

	Chain         bool   `help:"Issue a root, intermediate and leaf chain" xor:"issuer"`
	IncludeCAKeys bool   `help:"Include CA private keys in a chain bundle"`
	CACert        string `help:"CA certificate used to sign the leaf" type:"existingfile" xor:"issuer"`
	CAKey         string `help:"CA private key used to sign the leaf" type:"existingfile"`
	CAPassphrase  string `help:"Passphrase for the CA private key" env:"DOCSIGN_CA_PASSPHRASE"`

	Passphrase string `help:"Encrypt issued private keys with this passphrase" env:"DOCSIGN_KEY_PASSPHRASE"`
	Out        string `help:"Output ZIP archive" short:"o" default:"keys.zip"`
	PEMDir     string `help:"Write PEM files into this directory instead of a ZIP archive" name:"pem-dir"`
}

func (c *IssueCmd) Validate() error {
	if (c.CACert == "") != (c.CAKey == "") {
		return errors.New("--ca-cert and --ca-key must be used together")
	}
	if c.IncludeCAKeys && !c.Chain {
		return errors.New("--include-ca-keys requires --chain")
	}
	return nil
}

func (c *IssueCmd) Run(ctx context.Context, globals *Globals) error {
	id, bits, days, err := c.resolve()
	if err != nil {
		return err
	}

	if !pki.ValidKeySize(bits) {
		return fmt.Errorf("%w: %d", pki.ErrUnsupportedKeySize, bits)
	}
	if days <= 0 {
		return fmt.Errorf("%w: days must be positive", pki.ErrInvalidValidityWindow)
	}

	now := time.Now().UTC()
	validity := pki.ValidFor(now, time.Duration(days)*24*time.Hour)
	passphrase := []byte(c.Passphrase)

	var (
		data []byte
		leaf *pki.Certificate
	)

	switch {
	case c.Chain:
		issued, err := pki.IssueChain(rand.Reader, pki.ChainRequest{
			Root:         pki.CAIdentity(id, "Root CA"),
			Intermediate: pki.CAIdentity(id, "Intermediate CA"),
			Leaf:         id,
			Validity:     validity,
			Bits:         bits,
		})
		if err != nil {
			return fmt.Errorf("failed to issue chain: %w", err)
		}
		defer issued.Destroy()

		data, err = bundle.ChainBundle(issued, passphrase, c.IncludeCAKeys, now)
		if err != nil {
			return err
		}
		leaf = issued.Chain.Leaf()

	case c.CACert != "":
		signer, err := pki.NewFileSigner(c.CAKey, c.CACert, []byte(c.CAPassphrase))
		if err != nil {
			return err
		}
		defer signer.Destroy()

		caCert, err := signer.GetCACertificate()
		if err != nil {
			return err
		}

		issued, err := pki.IssueFromCA(rand.Reader, signer, pki.LeafRequest{
			Identity: id,
			Validity: validity,
			Bits:     bits,
		})
		if err != nil {
			return fmt.Errorf("failed to issue certificate: %w", err)
		}
		defer issued.Destroy()

		data, err = bundle.LeafBundle(issued, &pki.Certificate{Certificate: caCert}, passphrase, now)
		if err != nil {
			return err
		}
		leaf = issued.Certificate

	default:
		issued, err := pki.IssueSelfSigned(rand.Reader, pki.SelfSignedRequest{
			Identity: id,
			Validity: validity,
			Bits:     bits,
		})
		if err != nil {
			return fmt.Errorf("failed to issue certificate: %w", err)
		}
		defer issued.Destroy()

		data, err = bundle.IdentityBundle(issued, passphrase, now)
		if err != nil {
			return err
		}
		leaf = issued.Certificate
	}

	log.Debug().
		Str("subject", id.String()).
		Str("serial", leaf.SerialHex()).
		Int("bits", bits).
		Msg("issued certificate")

	if c.PEMDir != "" {
		files, err := extractBundle(data, c.PEMDir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
	} else {
		if err := writeFile(c.Out, data, 0600); err != nil {
			return err
		}
		fmt.Println(c.Out)
	}

	fmt.Printf("Subject:     %s\n", leaf.Subject.String())
	fmt.Printf("Serial:      %s\n", leaf.SerialHex())
	fmt.Printf("Fingerprint: %s\n", pki.Fingerprint(leaf.Raw))
	fmt.Printf("Not After:   %s\n", leaf.NotAfter.Format(time.RFC3339))

	return nil
}

// resolve merges the selected profile with flags; flags win.
func (c *IssueCmd) resolve() (pki.Identity, int, int, error) {
	profile, err := c.loadProfile()
	if err != nil {
		return pki.Identity{}, 0, 0, err
	}

	var (
		id   pki.Identity
		bits = pki.DefaultKeyBits
		days = defaultValidityDays
	)
	if profile != nil {
		id = profile.Identity
		if profile.Bits != 0 {
			bits = profile.Bits
		}
		if profile.Days != 0 {
			days = profile.Days
		}
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&id.CommonName, c.CommonName)
	override(&id.Country, c.Country)
	override(&id.StateOrProvince, c.State)
	override(&id.Locality, c.Locality)
	override(&id.Organization, c.Organization)

	if c.Bits != 0 {
		bits = c.Bits
	}
	if c.Days != 0 {
		days = c.Days
	}

	id, err = pki.NewIdentity(id.Country, id.StateOrProvince, id.Locality, id.Organization, id.CommonName)
	if err != nil {
		return pki.Identity{}, 0, 0, err
	}
	return id, bits, days, nil
}

func (c *IssueCmd) loadProfile() (*profiles.Profile, error) {
	if c.ProfileFile != "" {
		return profiles.LoadFile(c.ProfileFile)
	}

	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile store: %w", err)
	}

	p, err := store.Resolve(c.Profile)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return nil, fmt.Errorf("profile %q not found\n\nRun 'docsign profile list' to see available profiles", c.Profile)
	}
	return p, err
}
