package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wolfeidau/docsign/internal/signature"
)

// ErrSignatureInvalid is returned by verify when the signature does not match, so the process
// exits non-zero.
var ErrSignatureInvalid = errors.New("signature is not valid")

// VerifyCmd verifies a detached signature against a certificate or public key.
type VerifyCmd struct {
	File      string `arg:"" help:"Signed document" type:"existingfile"`
	Signature string `help:"Signature value, or @path to read it from a file" required:""`
	Encoding  string `help:"Signature encoding" enum:"base64,hex" default:"base64"`
	Cert      string `help:"Signer certificate (PEM)" type:"existingfile" xor:"source" required:""`
	PublicKey string `help:"Signer public key (PEM)" type:"existingfile" xor:"source" required:""`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	content, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	value, err := readValue(c.Signature)
	if err != nil {
		return err
	}

	sig, err := signature.Parse(value, c.Encoding)
	if err != nil {
		return err
	}

	src, err := c.source()
	if err != nil {
		return err
	}

	valid, err := signature.Verify(content, sig, src)
	if err != nil {
		return err
	}
	if !valid {
		fmt.Println("invalid")
		return ErrSignatureInvalid
	}

	fmt.Println("valid")
	return nil
}

func (c *VerifyCmd) source() (signature.PublicKeySource, error) {
	if c.Cert != "" {
		data, err := os.ReadFile(c.Cert)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}
		return signature.CertificatePEM(data), nil
	}

	data, err := os.ReadFile(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return signature.PublicKeyPEM(data), nil
}
