package variant

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"attachstore/internal/domain"
	"attachstore/internal/inspector"
	blobuc "attachstore/internal/usecase/blob"
)

// TransformFunc produces the variant bytes at destPath from the
// original bytes at srcPath. The pipeline never interprets what the
// transform does; it only requires the output file to exist on success.
type TransformFunc func(ctx context.Context, srcPath, destPath, format string) error

type Options struct {
	// Formats are short format names ("jpeg", "png", ...). Empty means
	// the original's own format.
	Formats []string
	ACL     domain.AccessLevel
}

// Service derives variant blobs from committed originals. The original
// is downloaded once per call and shared across every requested
// (label, format) pair.
type Service struct {
	repo      repository
	store     objectStore
	blobs     blobService
	inspector *inspector.Inspector
	logger    *zlog.Zerolog
	tmpDir    string
}

func NewService(r repository, store objectStore, blobs blobService, ins *inspector.Inspector, logger *zlog.Zerolog, tmpDir string) *Service {
	return &Service{
		repo:      r,
		store:     store,
		blobs:     blobs,
		inspector: ins,
		logger:    logger,
		tmpDir:    tmpDir,
	}
}

// CreateVariants derives one variant per (label, format) pair of the
// cross product, sequentially and in request order. An existing
// variant for a pair is replaced, bytes first. A failure aborts the
// whole call; variants finished in earlier iterations stay.
func (s *Service) CreateVariants(ctx context.Context, original *domain.Blob, labels []string, transform TransformFunc, opts Options) (created []*domain.Blob, retErr error) {
	if transform == nil {
		panic("variant: nil transform")
	}
	if original.IsVariant() {
		return nil, ErrNotAnOriginal
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{domain.FormatFromContentType(original.ContentType)}
	}
	for _, format := range formats {
		if domain.ContentTypeOf(format) == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
		}
	}

	src, err := os.CreateTemp(s.tmpDir, "attachstore-original-*")
	if err != nil {
		return nil, &TempFileError{Op: "create", Path: s.tmpDir, Err: err}
	}
	srcPath := src.Name()
	src.Close()
	defer func() {
		if err := os.Remove(srcPath); err != nil && retErr == nil {
			created = nil
			retErr = &TempFileError{Op: "remove", Path: srcPath, Err: err}
		}
	}()

	if err := s.store.Download(ctx, original.Key, srcPath); err != nil {
		return nil, err
	}

	for _, label := range labels {
		for _, format := range formats {
			stepName := fmt.Sprintf("download_and_insert_%s_%s", label, format)
			b, err := s.createOne(ctx, original, label, format, srcPath, transform, opts.ACL)
			if err != nil {
				return nil, &PipelineError{Step: stepName, Err: err}
			}
			created = append(created, b)
		}
	}

	s.logger.Info().
		Str("original_id", original.ID).
		Int("variants", len(created)).
		Msg("Variants created")
	return created, nil
}

// CreateVariant derives a single variant in the original's own format.
func (s *Service) CreateVariant(ctx context.Context, original *domain.Blob, label string, transform TransformFunc) (*domain.Blob, error) {
	blobs, err := s.CreateVariants(ctx, original, []string{label}, transform, Options{})
	if err != nil {
		return nil, err
	}
	return blobs[0], nil
}

func (s *Service) createOne(ctx context.Context, original *domain.Blob, label, format, srcPath string, transform TransformFunc, acl domain.AccessLevel) (b *domain.Blob, retErr error) {
	contentType := domain.ContentTypeOf(format)

	key, err := blobuc.VariantKey(original.Key, label, contentType)
	if err != nil {
		return nil, err
	}

	// Replace semantics: an existing variant for this pair, or any
	// stale row holding the target key, goes first, bytes included.
	if old, err := s.repo.GetVariant(ctx, nil, original.ID, label, contentType); err != nil {
		return nil, err
	} else if old != nil {
		if err := s.deleteVariant(ctx, old); err != nil {
			return nil, err
		}
	}
	if orphan, err := s.repo.GetBlobByKey(ctx, nil, key); err != nil {
		return nil, err
	} else if orphan != nil {
		if err := s.deleteVariant(ctx, orphan); err != nil {
			return nil, err
		}
	}

	dest, err := os.CreateTemp(s.tmpDir, "attachstore-variant-*")
	if err != nil {
		return nil, &TempFileError{Op: "create", Path: s.tmpDir, Err: err}
	}
	destPath := dest.Name()
	dest.Close()
	defer func() {
		if err := os.Remove(destPath); err != nil && retErr == nil {
			b = nil
			retErr = &TempFileError{Op: "remove", Path: destPath, Err: err}
		}
	}()

	if err := transform(ctx, srcPath, destPath, format); err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}

	stat, err := s.inspector.Stat(destPath, blobuc.VariantFilename(original.Filename, label), contentType)
	if err != nil {
		return nil, err
	}

	b = &domain.Blob{
		ID:             uuid.New().String(),
		Key:            key,
		Filename:       stat.Filename,
		ContentType:    stat.ContentType,
		ByteSize:       stat.ByteSize,
		Checksum:       stat.Checksum,
		Metadata:       stat.Metadata,
		Path:           destPath,
		Variant:        label,
		OriginalBlobID: original.ID,
	}

	if err := s.blobs.Validate(ctx, nil, b); err != nil {
		return nil, err
	}
	if err := s.repo.InsertBlob(ctx, nil, b); err != nil {
		return nil, err
	}
	if err := s.store.Upload(ctx, destPath, key); err != nil {
		return nil, err
	}
	if acl != "" {
		if err := s.store.SetACL(ctx, key, acl); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *Service) deleteVariant(ctx context.Context, b *domain.Blob) error {
	if err := s.store.Delete(ctx, b.Key); err != nil {
		return err
	}
	return s.repo.DeleteBlob(ctx, nil, b.ID)
}

// VariantExists reports whether any variant with the label exists for
// the original, regardless of format.
func (s *Service) VariantExists(ctx context.Context, original *domain.Blob, label string) (bool, error) {
	variants, err := s.repo.ListVariants(ctx, nil, original.ID)
	if err != nil {
		return false, err
	}
	for _, v := range variants {
		if v.Variant == label {
			return true, nil
		}
	}
	return false, nil
}

// GetVariant looks a variant up by (original, label, format). It
// returns (nil, nil) when no such variant exists.
func (s *Service) GetVariant(ctx context.Context, original *domain.Blob, label, format string) (*domain.Blob, error) {
	contentType := domain.ContentTypeOf(format)
	if contentType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return s.repo.GetVariant(ctx, nil, original.ID, label, contentType)
}

// Delete purges a blob and all of its variants, rows and bytes.
func (s *Service) Delete(ctx context.Context, b *domain.Blob) error {
	return s.blobs.Purge(ctx, b.ID)
}
