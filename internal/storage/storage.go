package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attachstore/internal/domain"
)

// Storage is the key-addressed object store behind every blob. Backends
// are interchangeable and must be safe for concurrent use.
type Storage interface {
	// Upload copies the bytes at localPath into the store, overwriting
	// any object already at key.
	Upload(ctx context.Context, localPath, key string) error
	// Download copies the object at key to localPath. Fails with
	// ErrKeyNotFound when the key is absent.
	Download(ctx context.Context, key, localPath string) error
	// Delete is idempotent: removing an absent key succeeds.
	Delete(ctx context.Context, key string) error
	// DeleteAll clears the store. Test and maintenance use only.
	DeleteAll(ctx context.Context) error
	List(ctx context.Context) ([]string, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// SetACL is a no-op success on backends without ACL support.
	SetACL(ctx context.Context, key string, level domain.AccessLevel) error
}

var ErrKeyNotFound = errors.New("storage key not found")

// TransferError carries enough context to know which object and which
// local file a failed upload or download involved.
type TransferError struct {
	Op        string
	Key       string
	LocalPath string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("storage %s failed for key %q (local %q): %v", e.Op, e.Key, e.LocalPath, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
