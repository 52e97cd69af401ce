package variant

import (
	"context"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
)

type repository interface {
	InsertBlob(ctx context.Context, tx repo.Tx, b *domain.Blob) error
	GetBlobByKey(ctx context.Context, tx repo.Tx, key string) (*domain.Blob, error)
	GetVariant(ctx context.Context, tx repo.Tx, originalID, label, contentType string) (*domain.Blob, error)
	ListVariants(ctx context.Context, tx repo.Tx, originalID string) ([]domain.Blob, error)
	DeleteBlob(ctx context.Context, tx repo.Tx, id string) error
}

type objectStore interface {
	Upload(ctx context.Context, localPath, key string) error
	Download(ctx context.Context, key, localPath string) error
	Delete(ctx context.Context, key string) error
	SetACL(ctx context.Context, key string, level domain.AccessLevel) error
}

type blobService interface {
	Validate(ctx context.Context, tx repo.Tx, b *domain.Blob) error
	Purge(ctx context.Context, id string) error
}
