package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Index names shared with the aws stores.
const (
	OwnerIndex       = "GSI1"
	FingerprintIndex = "GSI2"
)

// CreateTables creates the documents, users and certificates tables
// If cleanResources is true, deletes existing tables first to ensure clean state
// If cleanResources is false, reuses existing tables (preserves data)
func CreateTables(ctx context.Context, client *dynamodb.Client, names TableNames, cleanResources bool) error {
	if err := createTable(ctx, client, DocumentsTable(names.Documents), cleanResources); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if err := createTable(ctx, client, UsersTable(names.Users), cleanResources); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	if err := createTable(ctx, client, CertificatesTable(names.Certificates), cleanResources); err != nil {
		return fmt.Errorf("failed to create certificates table: %w", err)
	}
	return nil
}

// CreateSingleTable creates one table (exported for test usage)
// Always deletes existing table first to ensure clean state for tests
func CreateSingleTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) error {
	return createTable(ctx, client, input, true)
}

// DocumentsTable is keyed on document_id with GSI1 (owner_id, document_id) for owner listings.
func DocumentsTable(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("document_id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttribute("document_id"),
			stringAttribute("owner_id"),
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			globalIndex(OwnerIndex, "owner_id", "document_id"),
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// UsersTable is keyed on user_id.
func UsersTable(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("user_id"),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttribute("user_id"),
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// CertificatesTable is keyed on serial_number with GSI1 on owner_id and GSI2 on fingerprint.
func CertificatesTable(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("serial_number"),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttribute("serial_number"),
			stringAttribute("owner_id"),
			stringAttribute("fingerprint"),
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			globalIndex(OwnerIndex, "owner_id", ""),
			globalIndex(FingerprintIndex, "fingerprint", ""),
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

func stringAttribute(name string) types.AttributeDefinition {
	return types.AttributeDefinition{
		AttributeName: aws.String(name),
		AttributeType: types.ScalarAttributeTypeS,
	}
}

func globalIndex(name, hashKey, sortKey string) types.GlobalSecondaryIndex {
	schema := []types.KeySchemaElement{
		{
			AttributeName: aws.String(hashKey),
			KeyType:       types.KeyTypeHash,
		},
	}
	if sortKey != "" {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(sortKey),
			KeyType:       types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName: aws.String(name),
		KeySchema: schema,
		Projection: &types.Projection{
			ProjectionType: types.ProjectionTypeAll,
		},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput, cleanResources bool) error {
	tableName := aws.ToString(input.TableName)

	// Delete existing table if cleanResources is true
	if cleanResources {
		if err := deleteTableIfExists(ctx, client, tableName); err != nil {
			return err
		}
	}

	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// If table already exists and we're not cleaning, that's OK
		var resourceInUse *types.ResourceInUseException
		if !cleanResources && errors.As(err, &resourceInUse) {
			return nil // Table exists, reuse it
		}
		return err
	}

	// Wait for table to be active
	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// deleteTableIfExists attempts to delete a table if it exists
func deleteTableIfExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})

	// If table doesn't exist, we're done
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	// Wait for table deletion to complete
	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// DeleteTables removes the named tables
func DeleteTables(ctx context.Context, client *dynamodb.Client, tableNames ...string) error {
	for _, name := range tableNames {
		if err := deleteTableIfExists(ctx, client, name); err != nil {
			return fmt.Errorf("failed to delete table %s: %w", name, err)
		}
	}
	return nil
}
