package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attachstore/internal/storage"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	return s
}

func tempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	data := []byte("disk bytes")
	require.NoError(t, s.Upload(ctx, tempFile(t, data), "uploads/users/42/avatar.jpg"))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, s.Download(ctx, "uploads/users/42/avatar.jpg", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadMissingKey(t *testing.T) {
	s := newStorage(t)
	err := s.Download(context.Background(), "missing", filepath.Join(t.TempDir(), "out"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "a/b"))
	require.NoError(t, s.Delete(ctx, "a/b"))
	require.NoError(t, s.Delete(ctx, "a/b"))
}

func TestListUsesSlashKeys(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	for _, key := range []string{"b/nested/two", "a/one"} {
		require.NoError(t, s.Upload(ctx, tempFile(t, []byte(key)), key))
	}

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one", "b/nested/two"}, keys)
}

func TestSignedURL(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	require.NoError(t, s.Upload(ctx, tempFile(t, []byte("x")), "k"))

	url, err := s.SignedURL(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "file://")

	_, err = s.SignedURL(ctx, "missing", time.Hour)
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}
