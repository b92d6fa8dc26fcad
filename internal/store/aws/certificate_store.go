package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/bootstrap"
	"github.com/wolfeidau/docsign/internal/store"
)

// CertificateStore is a DynamoDB implementation of store.CertificateStore.
//
// Table key: serial_number (S). GSI1: owner_id (S). GSI2: fingerprint (S). Items expire through the
// ttl attribute 30 days after the certificate does.
type CertificateStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewCertificateStore creates a new DynamoDB certificate store
func NewCertificateStore(client *dynamodb.Client, tableName string) *CertificateStore {
	return &CertificateStore{
		client:    client,
		tableName: tableName,
	}
}

// Get retrieves certificate metadata by serial number
func (s *CertificateStore) Get(ctx context.Context, serialNumber string) (*store.CertMetadata, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"serial_number": &types.AttributeValueMemberS{Value: serialNumber},
		},
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get certificate")
	}

	if result.Item == nil {
		return nil, store.ErrCertNotFound
	}

	var cert store.CertMetadata
	if err := attributevalue.UnmarshalMap(result.Item, &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return &cert, nil
}

// GetByOwner retrieves all certificates for an owner using GSI1
func (s *CertificateStore) GetByOwner(ctx context.Context, ownerID string) ([]*store.CertMetadata, error) {
	return s.List(ctx, store.ListCertificatesOptions{OwnerID: ownerID})
}

// GetByFingerprint retrieves a certificate by fingerprint using GSI2
func (s *CertificateStore) GetByFingerprint(ctx context.Context, fingerprint string) (*store.CertMetadata, error) {
	keyEx := expression.Key("fingerprint").Equal(expression.Value(fingerprint))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(bootstrap.FingerprintIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to query certificate by fingerprint")
	}

	if len(result.Items) == 0 {
		return nil, store.ErrCertNotFound
	}

	var cert store.CertMetadata
	if err := attributevalue.UnmarshalMap(result.Items[0], &cert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
	}

	return &cert, nil
}

// Register stores certificate metadata
func (s *CertificateStore) Register(ctx context.Context, cert *store.CertMetadata) error {
	item, err := attributevalue.MarshalMap(cert)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(serial_number)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrCertAlreadyExists
		}
		return wrapAWSError(err, "failed to register certificate")
	}

	log.Debug().
		Str("serial_number", cert.SerialNumber).
		Str("owner_id", cert.OwnerID).
		Str("fingerprint", cert.Fingerprint).
		Msg("certificate registered")

	return nil
}

// Delete removes certificate metadata by serial number
func (s *CertificateStore) Delete(ctx context.Context, serialNumber string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"serial_number": &types.AttributeValueMemberS{Value: serialNumber},
		},
	})
	if err != nil {
		return wrapAWSError(err, "failed to delete certificate")
	}

	log.Debug().Str("serial_number", serialNumber).Msg("certificate deleted")

	return nil
}

// List returns registered certificates, most recently issued first
func (s *CertificateStore) List(ctx context.Context, opts store.ListCertificatesOptions) ([]*store.CertMetadata, error) {
	var items []map[string]types.AttributeValue

	if opts.OwnerID != "" {
		keyEx := expression.Key("owner_id").Equal(expression.Value(opts.OwnerID))
		expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}

		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			IndexName:                 aws.String(bootstrap.OwnerIndex),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Limit:                     aws.Int32(clampLimit(opts.Limit)),
		})
		if err != nil {
			return nil, wrapAWSError(err, "failed to query certificates by owner")
		}
		items = result.Items
	} else {
		all, err := scanTable(ctx, s.client, s.tableName)
		if err != nil {
			return nil, wrapAWSError(err, "failed to list certificates")
		}
		items = all
	}

	certs := make([]*store.CertMetadata, 0, len(items))
	for _, item := range items {
		var cert store.CertMetadata
		if err := attributevalue.UnmarshalMap(item, &cert); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal certificate, skipping")
			continue
		}
		certs = append(certs, &cert)
	}

	return newestFirst(certs, opts.Limit, func(a, b *store.CertMetadata) bool {
		return a.IssuedAt.After(b.IssuedAt)
	}), nil
}
