package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
)

// Service owns blob-level rules: validation, purging a blob together
// with its variants, access levels and signed URLs.
type Service struct {
	repo     blobRepository
	store    objectStore
	producer purgeProducer
	logger   *zlog.Zerolog
	retries  retry.Strategy
}

func NewService(repo blobRepository, store objectStore, producer purgeProducer, logger *zlog.Zerolog, retries retry.Strategy) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		producer: producer,
		logger:   logger,
		retries:  retries,
	}
}

// Validate enforces the standing blob invariants before a row is
// inserted: required attributes, a derived extension on the key, the
// variant pairing rule, and that the referenced original is not itself
// a variant.
func (s *Service) Validate(ctx context.Context, tx repo.Tx, b *domain.Blob) error {
	switch {
	case b.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidBlob)
	case b.Key == "":
		return fmt.Errorf("%w: key is required", ErrInvalidBlob)
	case b.Filename == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidBlob)
	case b.ContentType == "":
		return fmt.Errorf("%w: content type is required", ErrInvalidBlob)
	case b.ByteSize < 0:
		return fmt.Errorf("%w: byte size must not be negative", ErrInvalidBlob)
	case b.Checksum == "":
		return fmt.Errorf("%w: checksum is required", ErrInvalidBlob)
	}

	ext, err := ExtensionFor(b.ContentType)
	if err != nil {
		return err
	}
	if KeyRoot(b.Key)+ext != b.Key {
		return fmt.Errorf("%w: key %q does not carry the extension for %s", ErrInvalidBlob, b.Key, b.ContentType)
	}

	if (b.Variant == "") != (b.OriginalBlobID == "") {
		return ErrVariantPairing
	}

	if b.OriginalBlobID != "" {
		original, err := s.repo.GetBlob(ctx, tx, b.OriginalBlobID)
		if err != nil {
			return fmt.Errorf("failed to load original blob: %w", err)
		}
		if original.IsVariant() {
			return ErrVariantOfVariant
		}
	}

	return nil
}

// Purge removes a blob, all of its variants and their remote bytes.
// The rows go in one transaction; the byte deletions are issued first
// and are idempotent, so a retry after a partial failure converges.
func (s *Service) Purge(ctx context.Context, id string) error {
	return s.repo.WithinTx(ctx, func(tx repo.Tx) error {
		return s.PurgeTx(ctx, tx, id)
	})
}

// PurgeTx is Purge running inside an already-open transaction.
func (s *Service) PurgeTx(ctx context.Context, tx repo.Tx, id string) error {
	b, err := s.repo.GetBlob(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("failed to load blob for purge: %w", err)
	}

	variants, err := s.repo.ListVariants(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("failed to list variants for purge: %w", err)
	}

	for _, v := range variants {
		if err := s.store.Delete(ctx, v.Key); err != nil {
			return fmt.Errorf("failed to delete variant bytes: %w", err)
		}
	}
	if err := s.store.Delete(ctx, b.Key); err != nil {
		return fmt.Errorf("failed to delete blob bytes: %w", err)
	}

	for _, v := range variants {
		if err := s.repo.DeleteBlob(ctx, tx, v.ID); err != nil {
			return fmt.Errorf("failed to delete variant row: %w", err)
		}
	}
	if err := s.repo.DeleteBlob(ctx, tx, b.ID); err != nil {
		return fmt.Errorf("failed to delete blob row: %w", err)
	}

	s.logger.Info().Str("blob_id", id).Str("key", b.Key).Int("variants", len(variants)).Msg("Blob purged")
	return nil
}

// PurgeLater schedules the purge on the queue instead of running it in
// the calling request.
func (s *Service) PurgeLater(ctx context.Context, id string) error {
	if s.producer == nil {
		return ErrNoPurgeQueue
	}

	task := domain.PurgeTask{
		ID:          uuid.New().String(),
		BlobID:      id,
		RequestedAt: time.Now(),
	}

	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal purge task: %w", err)
	}

	if err := s.producer.Send(ctx, s.retries, []byte(id), value); err != nil {
		return fmt.Errorf("failed to enqueue purge task: %w", err)
	}

	s.logger.Info().Str("blob_id", id).Str("task_id", task.ID).Msg("Purge scheduled")
	return nil
}

func (s *Service) SetAccessLevel(ctx context.Context, key string, level domain.AccessLevel) error {
	if err := s.store.SetACL(ctx, key, level); err != nil {
		return fmt.Errorf("failed to set access level on %s: %w", key, err)
	}
	return nil
}

func (s *Service) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.store.SignedURL(ctx, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return url, nil
}

// GetBlob loads a committed blob row.
func (s *Service) GetBlob(ctx context.Context, id string) (*domain.Blob, error) {
	b, err := s.repo.GetBlob(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repo.ErrBlobNotFound) {
			return nil, repo.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return b, nil
}
