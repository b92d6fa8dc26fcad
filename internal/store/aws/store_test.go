package aws

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
)

func TestDocumentRecord(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unsigned roundtrip", func(t *testing.T) {
		doc := models.NewDocument("contract", []byte("hello world"), "user-1", created)

		item, err := attributevalue.MarshalMap(newDocumentRecord(doc))
		require.NoError(t, err)
		require.NotContains(t, item, "signature")
		require.NotContains(t, item, "signed_at")

		got, err := unmarshalDocument(item)
		require.NoError(t, err)
		require.Equal(t, doc.DocumentID, got.DocumentID)
		require.Equal(t, doc.Content, got.Content)
		require.Equal(t, created, got.CreatedAt)
		require.Equal(t, models.DocumentUnsigned, got.State())
	})

	t.Run("signed roundtrip", func(t *testing.T) {
		doc := models.NewDocument("contract", []byte("hello world"), "user-1", created)
		signedAt := created.Add(time.Hour)
		models.SignatureRecord{
			Signature:      signature.Signature{Value: "c2ln", Encoding: signature.EncodingBase64},
			CertificatePEM: "PEM",
			SignedBy:       "user-1",
			SignedAt:       signedAt,
		}.Apply(doc)

		item, err := attributevalue.MarshalMap(newDocumentRecord(doc))
		require.NoError(t, err)

		got, err := unmarshalDocument(item)
		require.NoError(t, err)
		require.Equal(t, models.DocumentSigned, got.State())
		require.Equal(t, "c2ln", got.Signature.Value)
		require.Equal(t, "PEM", got.CertificatePEM)
		require.Equal(t, signedAt, *got.SignedAt)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := &documentRecord{DocumentID: "not-a-uuid"}
		_, err := rec.toDocument()
		require.Error(t, err)
	})
}

func TestWrapAWSError(t *testing.T) {
	require.NoError(t, wrapAWSError(nil, "msg"))

	err := wrapAWSError(&types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, "failed")
	require.ErrorIs(t, err, store.ErrThrottled)

	err = wrapAWSError(errors.New("api error ThrottlingException: rate exceeded"), "failed")
	require.ErrorIs(t, err, store.ErrThrottled)

	base := errors.New("boom")
	err = wrapAWSError(base, "failed")
	require.ErrorIs(t, err, base)
	require.NotErrorIs(t, err, store.ErrThrottled)
	require.Contains(t, err.Error(), "failed")
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, int32(store.DefaultListLimit), clampLimit(0))
	require.Equal(t, int32(store.DefaultListLimit), clampLimit(-1))
	require.Equal(t, int32(10), clampLimit(10))
	require.Equal(t, int32(store.DefaultListLimit), clampLimit(1<<40))
}

func TestNewestFirst(t *testing.T) {
	newer := func(a, b int) bool { return a > b }

	require.Equal(t, []int{9, 5, 3}, newestFirst([]int{3, 9, 5}, 0, newer))
	require.Equal(t, []int{9, 5}, newestFirst([]int{3, 9, 5}, 2, newer))

	// more items than the default page must still yield the newest ones
	items := make([]int, 0, store.DefaultListLimit+50)
	for i := range store.DefaultListLimit + 50 {
		items = append(items, i)
	}
	got := newestFirst(items, 0, newer)
	require.Len(t, got, store.DefaultListLimit)
	require.Equal(t, store.DefaultListLimit+49, got[0])
	require.Equal(t, 50, got[len(got)-1])
}
