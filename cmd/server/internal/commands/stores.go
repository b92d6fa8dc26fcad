package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/bootstrap"
	"github.com/wolfeidau/docsign/internal/store"
	awsstore "github.com/wolfeidau/docsign/internal/store/aws"
	memorystore "github.com/wolfeidau/docsign/internal/store/memory"
	postgresstore "github.com/wolfeidau/docsign/internal/store/postgres"
)

const (
	devDynamoDBEndpoint = "http://localhost:4101"
	devRegion           = "us-east-1"
)

type AWSStoreFlags struct {
	// DynamoDB Configuration
	DocumentsTable    string `help:"DynamoDB table name for documents" env:"DOCSIGN_AWS_DOCUMENTS_TABLE"`
	UsersTable        string `help:"DynamoDB table name for users" env:"DOCSIGN_AWS_USERS_TABLE"`
	CertificatesTable string `help:"DynamoDB table name for certificates" env:"DOCSIGN_AWS_CERTIFICATES_TABLE"`

	// Endpoint override for local development
	DynamoDBEndpointURL string `help:"DynamoDB endpoint URL override (for DynamoDB Local)" default:"" env:"DOCSIGN_AWS_DYNAMODB_ENDPOINT_URL"`
}

func (s *AWSStoreFlags) validate() error {
	if s.DocumentsTable == "" {
		return errors.New("DynamoDB documents table name is required (--aws-documents-table or DOCSIGN_AWS_DOCUMENTS_TABLE)")
	}
	if s.UsersTable == "" {
		return errors.New("DynamoDB users table name is required (--aws-users-table or DOCSIGN_AWS_USERS_TABLE)")
	}
	if s.CertificatesTable == "" {
		return errors.New("DynamoDB certificates table name is required (--aws-certificates-table or DOCSIGN_AWS_CERTIFICATES_TABLE)")
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	ConnectRetries  uint  `help:"attempts to reach the database at startup" default:"5"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"DOCSIGN_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// Stores bundles the stores the API depends on.
type Stores struct {
	Users        store.UserStore
	Documents    store.DocumentStore
	Certificates store.CertificateStore

	close func()
}

// Close releases store resources such as the postgres pool.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

func (c *ServeCmd) createStores(ctx context.Context) (*Stores, error) {
	switch c.StoreType {
	case "aws":
		if err := c.AWSStore.validate(); err != nil {
			return nil, err
		}

		client, err := c.dynamoDBClient(ctx)
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("documents_table", c.AWSStore.DocumentsTable).
			Str("users_table", c.AWSStore.UsersTable).
			Str("certificates_table", c.AWSStore.CertificatesTable).
			Msg("Using DynamoDB stores")

		return &Stores{
			Users:        awsstore.NewUserStore(client, c.AWSStore.UsersTable),
			Documents:    awsstore.NewDocumentStore(client, c.AWSStore.DocumentsTable),
			Certificates: awsstore.NewCertificateStore(client, c.AWSStore.CertificatesTable),
		}, nil

	case "postgres":
		if err := c.PostgresStore.validate(); err != nil {
			return nil, err
		}

		// Create shared connection pool for all PostgreSQL stores
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			ConnectRetries:  c.PostgresStore.ConnectRetries,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		log.Info().Bool("auto_migrate", c.PostgresStore.AutoMigrate).Msg("Using PostgreSQL stores with shared connection pool")

		return &Stores{
			Users:        postgresstore.NewUserStore(pool),
			Documents:    postgresstore.NewDocumentStore(pool),
			Certificates: postgresstore.NewCertificateStore(pool),
			close:        pool.Close,
		}, nil

	default:
		log.Info().Msg("Using in-memory stores")

		return &Stores{
			Users:        memorystore.NewUserStore(),
			Documents:    memorystore.NewDocumentStore(),
			Certificates: memorystore.NewCertificateStore(),
		}, nil
	}
}

// awsConfig loads the default AWS config, with static test credentials in development mode.
func (c *ServeCmd) awsConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if c.Development {
		opts = append(opts,
			config.WithRegion(devRegion),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func (c *ServeCmd) dynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.AWSStore.DynamoDBEndpointURL != "" {
			o.BaseEndpoint = aws.String(c.AWSStore.DynamoDBEndpointURL)
		}
	}), nil
}

// setupDevelopment points the aws stores at a local DynamoDB and creates the tables.
func (c *ServeCmd) setupDevelopment(ctx context.Context) error {
	log.Info().Msg("Development mode enabled - setting up local DynamoDB tables")

	if c.StoreType == "" || c.StoreType == "memory" {
		c.StoreType = "aws"
	}
	if c.StoreType != "aws" {
		return nil
	}
	if c.AWSStore.DynamoDBEndpointURL == "" {
		c.AWSStore.DynamoDBEndpointURL = devDynamoDBEndpoint
	}

	client, err := c.dynamoDBClient(ctx)
	if err != nil {
		return err
	}

	resources, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		DynamoClient:   client,
		Environment:    "dev",
		CleanResources: c.DevelopmentClean,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap development infrastructure: %w", err)
	}

	c.AWSStore.DocumentsTable = resources.TableNames.Documents
	c.AWSStore.UsersTable = resources.TableNames.Users
	c.AWSStore.CertificatesTable = resources.TableNames.Certificates

	log.Info().
		Str("documents_table", resources.TableNames.Documents).
		Str("users_table", resources.TableNames.Users).
		Str("certificates_table", resources.TableNames.Certificates).
		Msg("Development infrastructure ready")

	return nil
}
