package blob

import (
	"context"
	"time"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"

	"github.com/wb-go/wbf/retry"
)

type blobRepository interface {
	WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error
	InsertBlob(ctx context.Context, tx repo.Tx, b *domain.Blob) error
	GetBlob(ctx context.Context, tx repo.Tx, id string) (*domain.Blob, error)
	GetBlobByKey(ctx context.Context, tx repo.Tx, key string) (*domain.Blob, error)
	ListVariants(ctx context.Context, tx repo.Tx, originalID string) ([]domain.Blob, error)
	DeleteBlob(ctx context.Context, tx repo.Tx, id string) error
}

type objectStore interface {
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	SetACL(ctx context.Context, key string, level domain.AccessLevel) error
}

type purgeProducer interface {
	Send(ctx context.Context, strategy retry.Strategy, key, value []byte) error
}
