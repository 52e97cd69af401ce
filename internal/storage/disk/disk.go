package disk

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"attachstore/internal/domain"
	"attachstore/internal/storage"
)

// Storage keeps objects as plain files under a root directory, one file
// per key. Keys map to relative paths inside the root.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &Storage{root: root}, nil
}

func (s *Storage) Upload(ctx context.Context, localPath, key string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}
	defer src.Close()

	dest := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}

	dst, err := os.Create(dest)
	if err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, key, localPath string) error {
	src, err := os.Open(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			err = storage.ErrKeyNotFound
		}
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: err}
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: err}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *Storage) DeleteAll(ctx context.Context) error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to clear storage root: %w", err)
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list storage root: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	path := s.pathFor(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to stat key %s: %w", key, err)
	}
	return "file://" + filepath.ToSlash(path), nil
}

// SetACL succeeds without effect: the filesystem backend has no ACLs.
func (s *Storage) SetACL(ctx context.Context, key string, level domain.AccessLevel) error {
	return nil
}

func (s *Storage) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}
