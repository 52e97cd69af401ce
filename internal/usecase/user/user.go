package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/config"
	"attachstore/internal/domain"
	"attachstore/internal/usecase/attachment"
	"attachstore/internal/usecase/unit"
	"attachstore/internal/usecase/variant"
)

const (
	Table       = "users"
	AvatarField = "avatar"

	signedURLExpiry = time.Hour
)

// User is the committed user row together with its avatar blob.
type User struct {
	ID        string
	Name      string
	Avatar    *domain.Blob
	AvatarURL string
}

// Usecase drives the attachment core for the demo users API: one
// entity table with a single "avatar" attachment field.
type Usecase struct {
	repo     entityRepository
	binder   binder
	exec     unitExecutor
	blobs    blobService
	variants variantService
	cfg      *config.Config
	logger   *zlog.Zerolog
}

func NewUsecase(r entityRepository, b binder, exec unitExecutor, blobs blobService, variants variantService, cfg *config.Config, logger *zlog.Zerolog) *Usecase {
	return &Usecase{
		repo:     r,
		binder:   b,
		exec:     exec,
		blobs:    blobs,
		variants: variants,
		cfg:      cfg,
		logger:   logger,
	}
}

// AvatarKey derives the raw storage key from the in-flight changeset.
// It reads the entity id from the changes, which exists by the time the
// executor invokes it even on inserts.
func AvatarKey(cs *attachment.Changeset) string {
	return "uploads/users/" + cs.EntityID() + "/" + AvatarField
}

// CreateUser inserts a user and, when src is non-nil, its avatar in
// one unit of work.
func (u *Usecase) CreateUser(ctx context.Context, name string, src *attachment.Source) (*User, error) {
	params := map[string]any{"name": name}
	if src != nil {
		params[AvatarField] = src
	}

	cs := attachment.New(Table, "", nil, params).Cast("name")
	u.bindAvatar(cs)

	results, err := u.exec.Exec(ctx, unit.New().InsertEntity("user", cs))
	if err != nil {
		return nil, err
	}

	return u.assemble(ctx, results.Entity("user"))
}

func (u *Usecase) GetUser(ctx context.Context, id string) (*User, error) {
	row, err := u.repo.GetEntity(ctx, nil, Table, id)
	if err != nil {
		if errors.Is(err, repo.ErrEntityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u.assemble(ctx, row)
}

// ReplaceAvatar swaps the avatar for a new source file. A nil src
// clears the field and purges the current avatar with its variants.
func (u *Usecase) ReplaceAvatar(ctx context.Context, id string, src *attachment.Source) (*User, error) {
	row, err := u.repo.GetEntity(ctx, nil, Table, id)
	if err != nil {
		if errors.Is(err, repo.ErrEntityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// The field key is always present so a nil source means "clear".
	params := map[string]any{AvatarField: nil}
	if src != nil {
		params[AvatarField] = src
	}

	cs := attachment.New(Table, id, row, params)
	u.bindAvatar(cs)

	results, err := u.exec.Exec(ctx, unit.New().UpdateEntity("user", cs))
	if err != nil {
		return nil, err
	}

	return u.assemble(ctx, results.Entity("user"))
}

// DeleteUser removes the user. Synchronous deletion purges the avatar
// inside the same unit; async deletion drops the row now and queues
// the purge.
func (u *Usecase) DeleteUser(ctx context.Context, id string, async bool) error {
	if !async {
		_, err := u.exec.Exec(ctx, unit.New().DeleteEntity("user", Table, id, AvatarField))
		return u.translateNotFound(err)
	}

	row, err := u.repo.GetEntity(ctx, nil, Table, id)
	if err != nil {
		if errors.Is(err, repo.ErrEntityNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if _, err := u.exec.Exec(ctx, unit.New().DeleteEntity("user", Table, id)); err != nil {
		return u.translateNotFound(err)
	}

	if blobID, _ := row[attachment.BlobColumn(AvatarField)].(string); blobID != "" {
		if err := u.blobs.PurgeLater(ctx, blobID); err != nil {
			return fmt.Errorf("user deleted but purge not scheduled: %w", err)
		}
	}
	return nil
}

// CreateAvatarVariants derives the requested variants of the avatar.
func (u *Usecase) CreateAvatarVariants(ctx context.Context, id string, labels, formats []string, tf variant.TransformFunc) ([]*domain.Blob, error) {
	avatar, err := u.avatarBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.variants.CreateVariants(ctx, avatar, labels, tf, variant.Options{Formats: formats})
}

// GetAvatarVariant resolves one derived rendition with a signed URL.
func (u *Usecase) GetAvatarVariant(ctx context.Context, id, label, format string) (*domain.Blob, string, error) {
	avatar, err := u.avatarBlob(ctx, id)
	if err != nil {
		return nil, "", err
	}

	v, err := u.variants.GetVariant(ctx, avatar, label, format)
	if err != nil {
		return nil, "", err
	}
	if v == nil {
		return nil, "", ErrNoAvatar
	}

	url, err := u.blobs.SignedURL(ctx, v.Key, signedURLExpiry)
	if err != nil {
		return nil, "", err
	}
	return v, url, nil
}

func (u *Usecase) bindAvatar(cs *attachment.Changeset) {
	u.binder.Bind(cs, AvatarField, AvatarKey, attachment.BindOptions{ACL: domain.AccessPrivate})
	attachment.ValidateType(cs, AvatarField, u.cfg.Upload.AllowedTypes)
	attachment.ValidateSize(cs, AvatarField, u.cfg.Upload.MaxSize)
}

func (u *Usecase) avatarBlob(ctx context.Context, id string) (*domain.Blob, error) {
	row, err := u.repo.GetEntity(ctx, nil, Table, id)
	if err != nil {
		if errors.Is(err, repo.ErrEntityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	blobID, _ := row[attachment.BlobColumn(AvatarField)].(string)
	if blobID == "" {
		return nil, ErrNoAvatar
	}
	return u.blobs.GetBlob(ctx, blobID)
}

func (u *Usecase) assemble(ctx context.Context, row map[string]any) (*User, error) {
	if row == nil {
		return nil, ErrUserNotFound
	}

	out := &User{}
	out.ID, _ = row["id"].(string)
	out.Name, _ = row["name"].(string)

	blobID, _ := row[attachment.BlobColumn(AvatarField)].(string)
	if blobID == "" {
		return out, nil
	}

	avatar, err := u.blobs.GetBlob(ctx, blobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load avatar blob: %w", err)
	}
	out.Avatar = avatar

	url, err := u.blobs.SignedURL(ctx, avatar.Key, signedURLExpiry)
	if err != nil {
		u.logger.Warn().Err(err).Str("key", avatar.Key).Msg("Failed to sign avatar url")
	} else {
		out.AvatarURL = url
	}
	return out, nil
}

func (u *Usecase) translateNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrEntityNotFound) {
		return ErrUserNotFound
	}
	return err
}
