package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/auth"
	"github.com/wolfeidau/docsign/internal/casource"
	"github.com/wolfeidau/docsign/internal/logger"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/server"
	"github.com/wolfeidau/docsign/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"DOCSIGN_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"DOCSIGN_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"DOCSIGN_TLS_KEY"`

	// Authentication
	JWTSecret string `help:"shared HS256 secret used to verify API tokens" env:"JWT_SECRET" required:""`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"DOCSIGN_CORS_ORIGINS"`

	// Request limits
	MaxBodyBytes int64 `help:"maximum request body size in bytes" default:"10485760" env:"DOCSIGN_MAX_BODY_BYTES"`

	// Observability
	Tracing bool `help:"enable OTLP tracing and metrics export" default:"false" env:"DOCSIGN_TRACING"`
	Metrics bool `help:"serve prometheus metrics on /metrics" default:"false" env:"DOCSIGN_METRICS"`

	// Development mode
	Development      bool `help:"development mode - create DynamoDB tables on a local endpoint" default:"false" env:"DOCSIGN_DEVELOPMENT"`
	DevelopmentClean bool `help:"clean tables on startup in development mode (deletes all data)" default:"false" env:"DOCSIGN_DEVELOPMENT_CLEAN"`

	// Certificate issuance defaults
	Issuance IssuanceFlags `embed:"" prefix:"identity-"`
	Issuer   IssuerFlags   `embed:"" prefix:"issuer-"`

	// Store configuration
	StoreType     string             `help:"store type (memory, aws, or postgres)" default:"memory" env:"DOCSIGN_STORE_TYPE" enum:"memory,aws,postgres"`
	AWSStore      AWSStoreFlags      `embed:"" prefix:"aws-"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

// IssuanceFlags supply the identity fields and key parameters used when a request leaves them out.
type IssuanceFlags struct {
	Country      string        `help:"default certificate country (2 letter code)" default:"" env:"DOCSIGN_IDENTITY_COUNTRY"`
	State        string        `help:"default certificate state or province" default:"" env:"DOCSIGN_IDENTITY_STATE"`
	Locality     string        `help:"default certificate locality" default:"" env:"DOCSIGN_IDENTITY_LOCALITY"`
	Organization string        `help:"default certificate organization" default:"" env:"DOCSIGN_IDENTITY_ORGANIZATION"`
	KeyBits      int           `help:"default RSA key size" default:"2048" env:"DOCSIGN_IDENTITY_KEY_BITS"`
	Validity     time.Duration `help:"default certificate lifetime" default:"8760h" env:"DOCSIGN_IDENTITY_VALIDITY"`
}

func (f *IssuanceFlags) validate() error {
	if f.Validity <= 0 {
		return fmt.Errorf("%w: identity validity must be positive", pki.ErrInvalidValidityWindow)
	}
	if !pki.ValidKeySize(f.KeyBits) {
		return fmt.Errorf("%w: %d", pki.ErrUnsupportedKeySize, f.KeyBits)
	}
	return nil
}

func (f *IssuanceFlags) defaults() server.IssuanceDefaults {
	return server.IssuanceDefaults{
		Identity: pki.Identity{
			Country:         f.Country,
			StateOrProvince: f.State,
			Locality:        f.Locality,
			Organization:    f.Organization,
		},
		Bits:     f.KeyBits,
		Validity: f.Validity,
	}
}

// IssuerFlags select an organization CA that signs issued leaves. Without one, single identities
// are self-signed.
type IssuerFlags struct {
	CertFile      string `help:"issuing CA certificate PEM file" env:"DOCSIGN_ISSUER_CERT_FILE"`
	KeyFile       string `help:"issuing CA private key PEM file" env:"DOCSIGN_ISSUER_KEY_FILE"`
	CertParameter string `help:"SSM parameter holding the issuing CA certificate" env:"DOCSIGN_ISSUER_CERT_PARAMETER"`
	KeyParameter  string `help:"SSM parameter holding the issuing CA private key" env:"DOCSIGN_ISSUER_KEY_PARAMETER"`
	Passphrase    string `help:"passphrase for an encrypted issuing CA key" env:"DOCSIGN_ISSUER_PASSPHRASE"`
}

func (f *IssuerFlags) config() casource.Config {
	return casource.Config{
		CertPath:      f.CertFile,
		KeyPath:       f.KeyFile,
		CertParameter: f.CertParameter,
		KeyParameter:  f.KeyParameter,
		Passphrase:    []byte(f.Passphrase),
	}
}

// setupLogging installs the logger globally so stores and services log at the same level as
// the request logger.
func setupLogging(debug bool) zerolog.Logger {
	l := logger.Setup(debug)
	zlog.Logger = l
	return l
}

// loadIssuer returns nil when no issuing CA is configured.
func (c *ServeCmd) loadIssuer(ctx context.Context) (pki.CASigner, error) {
	cfg := c.Issuer.config()
	if !cfg.Enabled() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loader := &casource.Loader{}
	if cfg.NeedsAWS() {
		awsCfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		loader = casource.NewLoader(awsCfg)
	}

	signer, err := loader.Load(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load issuing CA: %w", err)
	}
	return signer, nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := setupLogging(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if err := c.Issuance.validate(); err != nil {
		return err
	}

	verifier, err := auth.NewJWTVerifier([]byte(c.JWTSecret))
	if err != nil {
		return fmt.Errorf("invalid --jwt-secret: %w", err)
	}

	// Setup telemetry if enabled
	var metricsHandler http.Handler
	if c.Tracing || c.Metrics {
		log.Info().Bool("tracing", c.Tracing).Bool("metrics", c.Metrics).Msg("Telemetry is enabled")
		provider, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "docsign-server",
			Version:     globals.Version,
			OTLP:        c.Tracing,
			Prometheus:  c.Metrics,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			metricsHandler = provider.MetricsHandler()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	if c.Development {
		if err := c.setupDevelopment(ctx); err != nil {
			return err
		}
	}

	issuer, err := c.loadIssuer(ctx)
	if err != nil {
		return err
	}

	stores, err := c.createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	srv := server.NewServer(server.Config{
		Users:        stores.Users,
		Documents:    stores.Documents,
		Certificates: stores.Certificates,
		Verifier:     verifier,
		Issuance:     c.Issuance.defaults(),
		Issuer:       issuer,
		CORSOrigins:  c.CORSOrigins,
		Metrics:      metricsHandler,
		MaxBodyBytes: c.MaxBodyBytes,
	})

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" || c.Key != "" {
			if err := c.validateTLS(); err != nil {
				errCh <- err
				return
			}
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (c *ServeCmd) validateTLS() error {
	if c.Cert == "" || c.Key == "" {
		return errors.New("TLS certificate and key must be set together (--cert and --key)")
	}
	if _, err := os.Stat(c.Cert); err != nil {
		return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
	}
	if _, err := os.Stat(c.Key); err != nil {
		return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
	}
	return nil
}
