package unit

import (
	"context"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
)

type repository interface {
	WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error
	InsertBlob(ctx context.Context, tx repo.Tx, b *domain.Blob) error
	GetBlobByKey(ctx context.Context, tx repo.Tx, key string) (*domain.Blob, error)
	InsertEntity(ctx context.Context, tx repo.Tx, table string, row map[string]any) error
	UpdateEntity(ctx context.Context, tx repo.Tx, table, id string, changes map[string]any) error
	DeleteEntity(ctx context.Context, tx repo.Tx, table, id string) error
	GetEntity(ctx context.Context, tx repo.Tx, table, id string) (map[string]any, error)
}

type objectStore interface {
	Upload(ctx context.Context, localPath, key string) error
	SetACL(ctx context.Context, key string, level domain.AccessLevel) error
}

type blobService interface {
	Validate(ctx context.Context, tx repo.Tx, b *domain.Blob) error
	PurgeTx(ctx context.Context, tx repo.Tx, id string) error
}
