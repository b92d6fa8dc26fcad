package aws

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// scanTable reads every page of a table. Scan returns items in no particular order, so an
// unfiltered newest-first listing has to see the whole table before it can trim.
func scanTable(ctx context.Context, client *dynamodb.Client, tableName string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName: aws.String(tableName),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// newestFirst sorts items with newer and keeps at most the clamped limit.
func newestFirst[T any](items []T, limit int, newer func(a, b T) bool) []T {
	sort.SliceStable(items, func(i, j int) bool {
		return newer(items[i], items[j])
	})
	if n := int(clampLimit(limit)); len(items) > n {
		items = items[:n]
	}
	return items
}
