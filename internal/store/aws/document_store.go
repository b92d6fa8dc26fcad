package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/bootstrap"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
)

// documentRecord is the DynamoDB item layout for a document.
//
// Table key: document_id (S). GSI1: owner_id (S) + document_id (S); UUIDv7 ids sort by creation time.
type documentRecord struct {
	DocumentID        string `dynamodbav:"document_id"`
	Title             string `dynamodbav:"title"`
	Content           []byte `dynamodbav:"content"`
	OwnerID           string `dynamodbav:"owner_id"`
	CreatedAt         int64  `dynamodbav:"created_at"` // Unix milliseconds
	Signature         string `dynamodbav:"signature,omitempty"`
	SignatureEncoding string `dynamodbav:"signature_encoding,omitempty"`
	CertificatePEM    string `dynamodbav:"certificate_pem,omitempty"`
	SignedBy          string `dynamodbav:"signed_by,omitempty"`
	SignedAt          int64  `dynamodbav:"signed_at,omitempty"` // Unix milliseconds
}

func newDocumentRecord(doc *models.Document) *documentRecord {
	rec := &documentRecord{
		DocumentID: doc.DocumentID.String(),
		Title:      doc.Title,
		Content:    doc.Content,
		OwnerID:    doc.OwnerID,
		CreatedAt:  doc.CreatedAt.UnixMilli(),
	}
	if doc.Signature != nil {
		rec.Signature = doc.Signature.Value
		rec.SignatureEncoding = string(doc.Signature.Encoding)
		rec.CertificatePEM = doc.CertificatePEM
		rec.SignedBy = doc.SignedBy
		if doc.SignedAt != nil {
			rec.SignedAt = doc.SignedAt.UnixMilli()
		}
	}
	return rec
}

func (r *documentRecord) toDocument() (*models.Document, error) {
	id, err := uuid.Parse(r.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", r.DocumentID, err)
	}

	doc := &models.Document{
		DocumentID: id,
		Title:      r.Title,
		Content:    r.Content,
		OwnerID:    r.OwnerID,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}

	if r.Signature != "" {
		enc := signature.EncodingBase64
		if r.SignatureEncoding != "" {
			enc = signature.Encoding(r.SignatureEncoding)
		}
		signedAt := time.UnixMilli(r.SignedAt).UTC()
		doc.Signature = &signature.Signature{Value: r.Signature, Encoding: enc}
		doc.CertificatePEM = r.CertificatePEM
		doc.SignedBy = r.SignedBy
		doc.SignedAt = &signedAt
	}

	return doc, nil
}

func unmarshalDocument(item map[string]types.AttributeValue) (*models.Document, error) {
	var rec documentRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return rec.toDocument()
}

// DocumentStore is a DynamoDB implementation of store.DocumentStore
type DocumentStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDocumentStore creates a new DynamoDB document store
func NewDocumentStore(client *dynamodb.Client, tableName string) *DocumentStore {
	return &DocumentStore{
		client:    client,
		tableName: tableName,
	}
}

func documentKey(documentID uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"document_id": &types.AttributeValueMemberS{Value: documentID.String()},
	}
}

// Create stores a new unsigned document
func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	item, err := attributevalue.MarshalMap(newDocumentRecord(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(document_id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("document %s already exists", doc.DocumentID)
		}
		return wrapAWSError(err, "failed to create document")
	}

	log.Debug().
		Str("document_id", doc.DocumentID.String()).
		Str("owner_id", doc.OwnerID).
		Msg("document created")

	return nil
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            documentKey(documentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get document")
	}

	if result.Item == nil {
		return nil, store.ErrDocumentNotFound
	}

	return unmarshalDocument(result.Item)
}

// List returns documents newest first, querying GSI1 when filtering by owner
func (s *DocumentStore) List(ctx context.Context, opts store.ListDocumentsOptions) ([]*models.Document, error) {
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
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(clampLimit(opts.Limit)),
		})
		if err != nil {
			return nil, wrapAWSError(err, "failed to query documents by owner")
		}
		items = result.Items
	} else {
		all, err := scanTable(ctx, s.client, s.tableName)
		if err != nil {
			return nil, wrapAWSError(err, "failed to list documents")
		}
		items = all
	}

	docs := make([]*models.Document, 0, len(items))
	for _, item := range items {
		doc, err := unmarshalDocument(item)
		if err != nil {
			log.Error().Err(err).Msg("failed to unmarshal document, skipping")
			continue
		}
		docs = append(docs, doc)
	}

	// Scan order is unspecified; UUIDv7 ids sort by creation time
	return newestFirst(docs, opts.Limit, func(a, b *models.Document) bool {
		return a.DocumentID.String() > b.DocumentID.String()
	}), nil
}

// SetSignature writes the signature with a condition that no signature exists yet, so exactly one
// concurrent signer succeeds. The old item returned on a failed condition tells a missing document
// apart from a signed one.
func (s *DocumentStore) SetSignature(ctx context.Context, documentID uuid.UUID, rec models.SignatureRecord) (*models.Document, error) {
	update := expression.Set(
		expression.Name("signature"),
		expression.Value(rec.Signature.Value),
	).Set(
		expression.Name("signature_encoding"),
		expression.Value(string(rec.Signature.Encoding)),
	).Set(
		expression.Name("signed_by"),
		expression.Value(rec.SignedBy),
	).Set(
		expression.Name("signed_at"),
		expression.Value(rec.SignedAt.UnixMilli()),
	)
	if rec.CertificatePEM != "" {
		update = update.Set(expression.Name("certificate_pem"), expression.Value(rec.CertificatePEM))
	}

	condition := expression.AttributeExists(expression.Name("document_id")).
		And(expression.AttributeNotExists(expression.Name("signature")))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(condition).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 documentKey(documentID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if len(condErr.Item) == 0 {
				return nil, store.ErrDocumentNotFound
			}
			return nil, models.ErrAlreadySigned
		}
		return nil, wrapAWSError(err, "failed to sign document")
	}

	log.Debug().
		Str("document_id", documentID.String()).
		Str("signed_by", rec.SignedBy).
		Msg("document signed")

	return unmarshalDocument(result.Attributes)
}
