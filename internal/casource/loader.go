// Package casource loads the organization CA used to sign issued leaf certificates.
// The CA certificate and key come from PEM files or SSM Parameter Store.
package casource

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/pki"
)

// ErrIncompleteConfig is returned when a CA certificate or key source is missing.
var ErrIncompleteConfig = errors.New("incomplete CA configuration")

// Config selects where the CA certificate and key are read from.
type Config struct {
	// File paths (for local development)
	CertPath string
	KeyPath  string

	// SSM parameter names (for production)
	CertParameter string
	KeyParameter  string

	Passphrase []byte
}

// Enabled reports whether any CA source is configured.
func (c Config) Enabled() bool {
	return c.CertPath != "" || c.KeyPath != "" || c.CertParameter != "" || c.KeyParameter != ""
}

// NeedsAWS reports whether loading reads SSM parameters.
func (c Config) NeedsAWS() bool {
	return c.CertParameter != "" || c.KeyParameter != ""
}

// Validate checks that exactly one certificate source and one key source are set.
func (c Config) Validate() error {
	certSources := count(c.CertPath, c.CertParameter)
	keySources := count(c.KeyPath, c.KeyParameter)

	if certSources != 1 {
		return fmt.Errorf("%w: set one of the CA certificate path or parameter", ErrIncompleteConfig)
	}
	if keySources != 1 {
		return fmt.Errorf("%w: set one of the CA key path or parameter", ErrIncompleteConfig)
	}
	return nil
}

// ParameterAPI is the subset of the SSM client used to read parameters.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Loader builds a CASigner from a Config. SSM is only needed for parameter sources.
type Loader struct {
	SSM ParameterAPI
}

// NewLoader creates a loader with an SSM client from an AWS config.
func NewLoader(cfg aws.Config) *Loader {
	return &Loader{SSM: ssm.NewFromConfig(cfg)}
}

// Load reads the CA certificate and key and returns a signer for leaf certificates.
func (l *Loader) Load(ctx context.Context, cfg Config) (*pki.KeySigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	certPEM, err := l.read(ctx, cfg.CertPath, cfg.CertParameter)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	caCert, err := pki.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	keyPEM, err := l.read(ctx, cfg.KeyPath, cfg.KeyParameter)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA key: %w", err)
	}
	defer clear(keyPEM)

	caKey, err := pki.ParsePrivateKeyPEM(keyPEM, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA private key: %w", err)
	}

	signer, err := pki.NewKeySigner(caCert.Certificate, caKey)
	if err != nil {
		pki.ZeroizeKey(caKey)
		return nil, err
	}

	log.Info().Str("subject", caCert.Subject.String()).Str("serial", caCert.SerialHex()).Msg("Loaded CA")

	return signer, nil
}

func (l *Loader) read(ctx context.Context, path, parameter string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	if l.SSM == nil {
		return nil, fmt.Errorf("%w: no SSM client", ErrIncompleteConfig)
	}
	value, err := getParameter(ctx, l.SSM, parameter)
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// getParameter fetches a decrypted parameter from SSM
func getParameter(ctx context.Context, client ParameterAPI, name string) (string, error) {
	output, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *output.Parameter.Value, nil
}

func count(values ...string) int {
	n := 0
	for _, v := range values {
		if v != "" {
			n++
		}
	}
	return n
}
