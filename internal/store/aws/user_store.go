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
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/store"
)

type userRecord struct {
	UserID       string    `dynamodbav:"user_id"`
	Username     string    `dynamodbav:"username"`
	Email        string    `dynamodbav:"email,omitempty"`
	PublicKeyPEM string    `dynamodbav:"public_key_pem,omitempty"`
	Fingerprint  string    `dynamodbav:"fingerprint,omitempty"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

func (r *userRecord) toUser() *models.User {
	return &models.User{
		UserID:       r.UserID,
		Username:     r.Username,
		Email:        r.Email,
		PublicKeyPEM: r.PublicKeyPEM,
		Fingerprint:  r.Fingerprint,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// UserStore is a DynamoDB implementation of store.UserStore
type UserStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewUserStore creates a new DynamoDB user store
func NewUserStore(client *dynamodb.Client, tableName string) *UserStore {
	return &UserStore{
		client:    client,
		tableName: tableName,
	}
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: userID},
	}
}

// Get retrieves a user by ID
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            userKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get user")
	}

	if result.Item == nil {
		return nil, store.ErrUserNotFound
	}

	var rec userRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return rec.toUser(), nil
}

// Ensure creates the user if missing and returns the stored record
func (s *UserStore) Ensure(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	item, err := attributevalue.MarshalMap(&userRecord{
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			return nil, wrapAWSError(err, "failed to ensure user")
		}
	} else {
		log.Debug().Str("user_id", user.UserID).Msg("user provisioned")
	}

	return s.Get(ctx, user.UserID)
}

// SetPublicKey records the user's public key
func (s *UserStore) SetPublicKey(ctx context.Context, userID, publicKeyPEM, fingerprint string) error {
	update := expression.Set(
		expression.Name("public_key_pem"),
		expression.Value(publicKeyPEM),
	).Set(
		expression.Name("fingerprint"),
		expression.Value(fingerprint),
	)
	return s.update(ctx, userID, update, "failed to set user public key")
}

// ClearPublicKey removes the user's public key
func (s *UserStore) ClearPublicKey(ctx context.Context, userID string) error {
	update := expression.Remove(
		expression.Name("public_key_pem"),
	).Remove(
		expression.Name("fingerprint"),
	)
	return s.update(ctx, userID, update, "failed to clear user public key")
}

func (s *UserStore) update(ctx context.Context, userID string, update expression.UpdateBuilder, msg string) error {
	update = update.Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))

	condition := expression.AttributeExists(expression.Name("user_id"))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(condition).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       userKey(userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrUserNotFound
		}
		return wrapAWSError(err, msg)
	}

	log.Debug().Str("user_id", userID).Msg("user updated")

	return nil
}
