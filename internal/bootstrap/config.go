package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Config holds configuration for bootstrapping local DynamoDB infrastructure
type Config struct {
	DynamoClient *dynamodb.Client

	// Resource naming
	Environment string // e.g., "dev", "test" - used as prefix for table names

	// CleanResources controls whether to delete existing tables before creating
	// Set to false to preserve data across restarts (useful for development with live reload)
	CleanResources bool
}

// Resources holds identifiers for created infrastructure resources
type Resources struct {
	// DynamoDB table names
	TableNames TableNames
}

// TableNames names the docsign tables.
type TableNames struct {
	Documents    string
	Users        string
	Certificates string
}

// NewTableNames returns the table names for an environment prefix.
func NewTableNames(env string) TableNames {
	return TableNames{
		Documents:    env + "_documents",
		Users:        env + "_users",
		Certificates: env + "_certificates",
	}
}

// All returns every table name.
func (t TableNames) All() []string {
	return []string{t.Documents, t.Users, t.Certificates}
}
