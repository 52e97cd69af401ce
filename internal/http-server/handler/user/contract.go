package user

import (
	"context"

	"attachstore/internal/domain"
	"attachstore/internal/usecase/attachment"
	user_uc "attachstore/internal/usecase/user"
	"attachstore/internal/usecase/variant"
)

type userUsecase interface {
	CreateUser(ctx context.Context, name string, src *attachment.Source) (*user_uc.User, error)
	GetUser(ctx context.Context, id string) (*user_uc.User, error)
	ReplaceAvatar(ctx context.Context, id string, src *attachment.Source) (*user_uc.User, error)
	DeleteUser(ctx context.Context, id string, async bool) error
	CreateAvatarVariants(ctx context.Context, id string, labels, formats []string, tf variant.TransformFunc) ([]*domain.Blob, error)
	GetAvatarVariant(ctx context.Context, id, label, format string) (*domain.Blob, string, error)
}
