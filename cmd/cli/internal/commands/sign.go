package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wolfeidau/docsign/internal/signature"
)

// SignCmd signs a file with a PEM private key and prints the encoded signature.
type SignCmd struct {
	File       string `arg:"" help:"Document to sign" type:"existingfile"`
	Key        string `help:"PEM private key" required:"" type:"existingfile"`
	Passphrase string `help:"Passphrase for an encrypted private key" env:"DOCSIGN_KEY_PASSPHRASE"`
	Encoding   string `help:"Signature encoding" enum:"base64,hex" default:"base64"`
	Out        string `help:"Write the signature to a file instead of stdout" short:"o"`
}

func (c *SignCmd) Run(ctx context.Context, globals *Globals) error {
	content, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	keyPEM, err := os.ReadFile(c.Key)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	enc, err := signature.ParseEncoding(c.Encoding)
	if err != nil {
		return err
	}

	sig, err := signature.SignPEM(content, keyPEM, []byte(c.Passphrase), enc)
	if err != nil {
		return err
	}

	if c.Out != "" {
		return writeFile(c.Out, []byte(sig.Value+"\n"), 0644)
	}

	fmt.Println(sig.Value)
	return nil
}
