package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsign/internal/store"
)

func testCert(serial, owner, fingerprint string, issuedAt time.Time) *store.CertMetadata {
	return &store.CertMetadata{
		SerialNumber: serial,
		OwnerID:      owner,
		Role:         "leaf",
		Fingerprint:  fingerprint,
		SubjectDN:    "CN=" + owner,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(365 * 24 * time.Hour),
	}
}

func TestNewCertificateStore(t *testing.T) {
	store := NewCertificateStore()
	require.NotNil(t, store)
}

func TestCertificateStore_Register(t *testing.T) {
	t.Run("register new certificate", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		err := st.Register(ctx, testCert("1234567890abcdef", "user-123", "abc123def456", time.Now()))
		require.NoError(t, err)
	})

	t.Run("register duplicate certificate returns error", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := testCert("1234567890abcdef", "user-123", "abc123def456", time.Now())
		require.NoError(t, st.Register(ctx, cert))

		err := st.Register(ctx, cert)
		require.ErrorIs(t, err, store.ErrCertAlreadyExists)
	})

	t.Run("register certificate with description", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := testCert("1234567890abcdef", "user-123", "abc123def456", time.Now())
		cert.Description = "Signing identity"
		require.NoError(t, st.Register(ctx, cert))

		retrieved, err := st.Get(ctx, "1234567890abcdef")
		require.NoError(t, err)
		require.Equal(t, "Signing identity", retrieved.Description)
	})
}

func TestCertificateStore_Get(t *testing.T) {
	t.Run("get existing certificate by serial number", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		cert := testCert("1234567890abcdef", "user-123", "abc123def456", time.Now())
		require.NoError(t, st.Register(ctx, cert))

		retrieved, err := st.Get(ctx, "1234567890abcdef")
		require.NoError(t, err)
		require.Equal(t, cert.SerialNumber, retrieved.SerialNumber)
		require.Equal(t, cert.OwnerID, retrieved.OwnerID)
	})

	t.Run("get nonexistent certificate returns error", func(t *testing.T) {
		st := NewCertificateStore()

		_, err := st.Get(context.Background(), "nonexistent")
		require.ErrorIs(t, err, store.ErrCertNotFound)
	})

	t.Run("get returns copy of certificate", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		require.NoError(t, st.Register(ctx, testCert("1234567890abcdef", "user-123", "abc", time.Now())))

		retrieved1, _ := st.Get(ctx, "1234567890abcdef")
		retrieved1.OwnerID = "mutated"

		retrieved2, _ := st.Get(ctx, "1234567890abcdef")
		require.Equal(t, "user-123", retrieved2.OwnerID)
	})
}

func TestCertificateStore_GetByOwner(t *testing.T) {
	t.Run("get certificates by owner ID", func(t *testing.T) {
		st := NewCertificateStore()
		ctx := context.Background()

		now := time.Now()
		require.NoError(t, st.Register(ctx, testCert("1111111111111111", "user-123", "aaaaaaaaaa", now)))
		require.NoError(t, st.Register(ctx, testCert("2222222222222222", "user-123", "bbbbbbbbbb", now)))
		require.NoError(t, st.Register(ctx, testCert("3333333333333333", "user-456", "cccccccccc", now)))

		result, err := st.GetByOwner(ctx, "user-123")
		require.NoError(t, err)
		require.Len(t, result, 2)

		for _, cert := range result {
			require.Equal(t, "user-123", cert.OwnerID)
		}
	})

	t.Run("get by nonexistent owner returns empty slice", func(t *testing.T) {
		st := NewCertificateStore()

		result, err := st.GetByOwner(context.Background(), "nonexistent")
		require.NoError(t, err)
		require.Empty(t, result)
	})
}

func TestCertificateStore_GetByFingerprint(t *testing.T) {
	st := NewCertificateStore()
	ctx := context.Background()

	cert := testCert("1234567890abcdef", "user-123", "abc123def456xyz", time.Now())
	require.NoError(t, st.Register(ctx, cert))

	retrieved, err := st.GetByFingerprint(ctx, "abc123def456xyz")
	require.NoError(t, err)
	require.Equal(t, cert.SerialNumber, retrieved.SerialNumber)

	_, err = st.GetByFingerprint(ctx, "nonexistent")
	require.ErrorIs(t, err, store.ErrCertNotFound)
}

func TestCertificateStore_List(t *testing.T) {
	st := NewCertificateStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Register(ctx, testCert("1111111111111111", "user-123", "aaaaaaaaaa", base)))
	require.NoError(t, st.Register(ctx, testCert("2222222222222222", "user-123", "bbbbbbbbbb", base.Add(time.Hour))))
	require.NoError(t, st.Register(ctx, testCert("3333333333333333", "user-456", "cccccccccc", base.Add(2*time.Hour))))

	t.Run("list all newest first", func(t *testing.T) {
		result, err := st.List(ctx, store.ListCertificatesOptions{})
		require.NoError(t, err)
		require.Len(t, result, 3)
		require.Equal(t, "3333333333333333", result[0].SerialNumber)
		require.Equal(t, "1111111111111111", result[2].SerialNumber)
	})

	t.Run("list by owner ID", func(t *testing.T) {
		result, err := st.List(ctx, store.ListCertificatesOptions{OwnerID: "user-123"})
		require.NoError(t, err)
		require.Len(t, result, 2)

		for _, cert := range result {
			require.Equal(t, "user-123", cert.OwnerID)
		}
	})

	t.Run("list with limit", func(t *testing.T) {
		result, err := st.List(ctx, store.ListCertificatesOptions{Limit: 1})
		require.NoError(t, err)
		require.Len(t, result, 1)
	})
}

func TestCertificateStore_Delete(t *testing.T) {
	st := NewCertificateStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.Register(ctx, testCert("aa", "user-1", "fp-aa", now)))
	require.NoError(t, st.Register(ctx, testCert("bb", "user-1", "fp-bb", now)))

	require.NoError(t, st.Delete(ctx, "aa"))

	_, err := st.Get(ctx, "aa")
	require.ErrorIs(t, err, store.ErrCertNotFound)
	_, err = st.GetByFingerprint(ctx, "fp-aa")
	require.ErrorIs(t, err, store.ErrCertNotFound)

	owned, err := st.GetByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "bb", owned[0].SerialNumber)

	t.Run("unknown serial", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, "missing"))
	})

	t.Run("serial can be registered again", func(t *testing.T) {
		require.NoError(t, st.Register(ctx, testCert("aa", "user-1", "fp-aa", now)))
	})
}
