package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"attachstore/internal/domain"
	"attachstore/internal/storage"
)

// Storage is an in-memory backend for tests. It also records the ACL
// set per key so tests can assert on it.
type Storage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	acls    map[string]domain.AccessLevel
}

func New() *Storage {
	return &Storage{
		objects: make(map[string][]byte),
		acls:    make(map[string]domain.AccessLevel),
	}
}

func (s *Storage) Upload(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *Storage) Download(ctx context.Context, key, localPath string) error {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: storage.ErrKeyNotFound}
	}

	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: err}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.acls, key)
	return nil
}

func (s *Storage) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string][]byte)
	s.acls = make(map[string]domain.AccessLevel)
	return nil
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", storage.ErrKeyNotFound
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, time.Now().Add(expiry).Unix()), nil
}

func (s *Storage) SetACL(ctx context.Context, key string, level domain.AccessLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acls[key] = level
	return nil
}

// ACL returns the last access level set for key, for test assertions.
func (s *Storage) ACL(key string) domain.AccessLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acls[key]
}
