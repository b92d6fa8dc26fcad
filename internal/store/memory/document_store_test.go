package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/signature"
	"github.com/wolfeidau/docsign/internal/store"
)

func testRecord(value, signer string) models.SignatureRecord {
	return models.SignatureRecord{
		Signature:      signature.Signature{Value: value, Encoding: signature.EncodingBase64},
		CertificatePEM: "-----BEGIN CERTIFICATE-----",
		SignedBy:       signer,
		SignedAt:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDocumentStore_CreateGet(t *testing.T) {
	st := NewDocumentStore()
	ctx := context.Background()

	doc := models.NewDocument("contract", []byte("hello world"), "user-1", time.Now())
	require.NoError(t, st.Create(ctx, doc))

	got, err := st.Get(ctx, doc.DocumentID)
	require.NoError(t, err)
	require.Equal(t, doc.Title, got.Title)
	require.Equal(t, doc.Content, got.Content)
	require.Equal(t, models.DocumentUnsigned, got.State())

	// stored copy is isolated from caller mutation
	got.Content[0] = 'H'
	again, err := st.Get(ctx, doc.DocumentID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), again.Content)

	_, err = st.Get(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestDocumentStore_List(t *testing.T) {
	st := NewDocumentStore()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := range 3 {
		owner := "user-1"
		if i == 2 {
			owner = "user-2"
		}
		doc := models.NewDocument(fmt.Sprintf("doc-%d", i), []byte("x"), owner, time.Now())
		require.NoError(t, st.Create(ctx, doc))
		ids = append(ids, doc.DocumentID)
	}

	t.Run("all newest first", func(t *testing.T) {
		docs, err := st.List(ctx, store.ListDocumentsOptions{})
		require.NoError(t, err)
		require.Len(t, docs, 3)
		require.Equal(t, ids[2], docs[0].DocumentID)
	})

	t.Run("by owner", func(t *testing.T) {
		docs, err := st.List(ctx, store.ListDocumentsOptions{OwnerID: "user-1"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
	})

	t.Run("limit", func(t *testing.T) {
		docs, err := st.List(ctx, store.ListDocumentsOptions{Limit: 1})
		require.NoError(t, err)
		require.Len(t, docs, 1)
	})
}

func TestDocumentStore_SetSignature(t *testing.T) {
	t.Run("first signature wins", func(t *testing.T) {
		st := NewDocumentStore()
		ctx := context.Background()

		doc := models.NewDocument("contract", []byte("x"), "user-1", time.Now())
		require.NoError(t, st.Create(ctx, doc))

		signed, err := st.SetSignature(ctx, doc.DocumentID, testRecord("Zmlyc3Q=", "user-1"))
		require.NoError(t, err)
		require.Equal(t, models.DocumentSigned, signed.State())

		_, err = st.SetSignature(ctx, doc.DocumentID, testRecord("c2Vjb25k", "user-1"))
		require.ErrorIs(t, err, models.ErrAlreadySigned)

		got, err := st.Get(ctx, doc.DocumentID)
		require.NoError(t, err)
		require.Equal(t, "Zmlyc3Q=", got.Signature.Value)
	})

	t.Run("unknown document", func(t *testing.T) {
		st := NewDocumentStore()

		_, err := st.SetSignature(context.Background(), uuid.Must(uuid.NewV7()), testRecord("eA==", "user-1"))
		require.ErrorIs(t, err, store.ErrDocumentNotFound)
	})

	t.Run("concurrent signers", func(t *testing.T) {
		st := NewDocumentStore()
		ctx := context.Background()

		doc := models.NewDocument("contract", []byte("x"), "user-1", time.Now())
		require.NoError(t, st.Create(ctx, doc))

		const attempts = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			wins    int
			already int
		)
		for i := range attempts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.SetSignature(ctx, doc.DocumentID, testRecord(fmt.Sprintf("c2ln%d", i), "user-1"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, models.ErrAlreadySigned):
					already++
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, wins)
		require.Equal(t, attempts-1, already)
	})
}
