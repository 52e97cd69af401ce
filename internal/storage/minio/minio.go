package minio

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/retry"

	"attachstore/internal/config"
	"attachstore/internal/domain"
	"attachstore/internal/storage"
)

// Storage backs the storage port onto an S3-compatible object store.
type Storage struct {
	client  *minio.Client
	bucket  string
	retries retry.Strategy
}

func New(ctx context.Context, cfg *config.Config, retries retry.Strategy) (*Storage, error) {
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &Storage{
		client:  client,
		bucket:  cfg.Minio.Bucket,
		retries: retries,
	}

	exists, err := client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	return s, nil
}

func (s *Storage) Upload(ctx context.Context, localPath, key string) error {
	opts := minio.PutObjectOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
	}

	err := retry.Do(func() error {
		_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, opts)
		return err
	}, s.retries)
	if err != nil {
		return &storage.TransferError{Op: "upload", Key: key, LocalPath: localPath, Err: err}
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, key, localPath string) error {
	err := retry.Do(func() error {
		return s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{})
	}, s.retries)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			err = storage.ErrKeyNotFound
		}
		return &storage.TransferError{Op: "download", Key: key, LocalPath: localPath, Err: err}
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	err := retry.Do(func() error {
		return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	}, s.retries)
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *Storage) DeleteAll(ctx context.Context) error {
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", s.bucket, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *Storage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign key %s: %w", key, err)
	}
	return u.String(), nil
}

// SetACL succeeds without effect: per-object ACLs are managed by bucket
// policy on S3-compatible stores, not by this client.
func (s *Storage) SetACL(ctx context.Context, key string, level domain.AccessLevel) error {
	return nil
}
