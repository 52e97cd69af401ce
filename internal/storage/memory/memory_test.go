package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attachstore/internal/domain"
	"attachstore/internal/storage"
)

func tempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	data := []byte("round trip bytes")
	require.NoError(t, s.Upload(ctx, tempFile(t, data), "uploads/a/file.bin"))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, s.Download(ctx, "uploads/a/file.bin", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadMissingKey(t *testing.T) {
	s := New()
	err := s.Download(context.Background(), "nope", filepath.Join(t.TempDir(), "out"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	var te *storage.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "download", te.Op)
	assert.Equal(t, "nope", te.Key)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestListReturnsSortedKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, key := range []string{"b/two", "a/one", "c/three"} {
		require.NoError(t, s.Upload(ctx, tempFile(t, []byte(key)), key))
	}

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "b/two", "c/three"}, keys)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "a"))
	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("y")), "b"))
	require.NoError(t, s.DeleteAll(ctx))

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSignedURL(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "k"))

	url, err := s.SignedURL(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://k")

	_, err = s.SignedURL(ctx, "missing", time.Hour)
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestSetACLIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "k"))
	require.NoError(t, s.SetACL(ctx, "k", domain.AccessPublicRead))
	assert.Equal(t, domain.AccessPublicRead, s.ACL("k"))
}
