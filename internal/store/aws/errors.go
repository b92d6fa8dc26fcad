package aws

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfeidau/docsign/internal/store"
)

// wrapAWSError wraps AWS SDK errors, tagging throttling with store.ErrThrottled.
func wrapAWSError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Check for DynamoDB throttling errors
	var provisionedErr *types.ProvisionedThroughputExceededException
	if errors.As(err, &provisionedErr) {
		return fmt.Errorf("%s: %w: %v", msg, store.ErrThrottled, err)
	}

	var limitErr *types.RequestLimitExceeded
	if errors.As(err, &limitErr) {
		return fmt.Errorf("%s: %w: %v", msg, store.ErrThrottled, err)
	}

	// AWS SDK v2 doesn't always use typed errors for throttling
	errMsg := err.Error()
	if strings.Contains(errMsg, "ThrottlingException") ||
		strings.Contains(errMsg, "TooManyRequestsException") ||
		strings.Contains(errMsg, "Throttling") {
		return fmt.Errorf("%s: %w: %v", msg, store.ErrThrottled, err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}

// clampLimit converts a list limit to the int32 DynamoDB expects.
func clampLimit(limit int) int32 {
	if limit <= 0 || limit > store.DefaultListLimit {
		return store.DefaultListLimit
	}
	return int32(limit) //nolint:gosec // bounded above
}
