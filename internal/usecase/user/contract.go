package user

import (
	"context"
	"time"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
	"attachstore/internal/usecase/attachment"
	"attachstore/internal/usecase/unit"
	"attachstore/internal/usecase/variant"
)

type entityRepository interface {
	GetEntity(ctx context.Context, tx repo.Tx, table, id string) (map[string]any, error)
}

type unitExecutor interface {
	Exec(ctx context.Context, u *unit.Unit) (unit.Results, error)
}

type blobService interface {
	GetBlob(ctx context.Context, id string) (*domain.Blob, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	PurgeLater(ctx context.Context, id string) error
}

type variantService interface {
	CreateVariants(ctx context.Context, original *domain.Blob, labels []string, transform variant.TransformFunc, opts variant.Options) ([]*domain.Blob, error)
	GetVariant(ctx context.Context, original *domain.Blob, label, format string) (*domain.Blob, error)
}

type binder interface {
	Bind(cs *attachment.Changeset, field string, keyFn attachment.KeyFunc, opts attachment.BindOptions) *attachment.Changeset
}
