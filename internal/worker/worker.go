package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	kafka "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	kafka_impl "attachstore/internal/broker/kafka"
	"attachstore/internal/config"
	"attachstore/internal/domain"
	repo "attachstore/internal/repository/blob"
	postgres_repo "attachstore/internal/repository/blob/db/postgres"
	minio_storage "attachstore/internal/storage/minio"
	blob_uc "attachstore/internal/usecase/blob"
)

// Worker drains the purge queue: every message names one blob whose
// rows and remote bytes should be removed.
type Worker struct {
	cfg      *config.Config
	logger   *zlog.Zerolog
	db       *dbpg.DB
	consumer *kafka_impl.ConsumerClient
	blobs    *blob_uc.Service
	wg       sync.WaitGroup
}

func New(cfg *config.Config, logger *zlog.Zerolog) (*Worker, error) {
	dbOpts := &dbpg.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}

	db, err := dbpg.New(cfg.DBDSN(), []string{}, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	retries := cfg.DefaultRetryStrategy()

	store, err := minio_storage.New(context.Background(), cfg, retries)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	blobRepo := postgres_repo.New(db, retries)
	blobs := blob_uc.NewService(blobRepo, store, nil, logger, retries)

	return &Worker{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		consumer: kafka_impl.NewConsumerClient(cfg),
		blobs:    blobs,
	}, nil
}

func (w *Worker) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		w.logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		cancel()
	}()

	messages := make(chan kafka.Message, w.cfg.Worker.Concurrency*2)

	go w.consumer.StartConsuming(ctx, messages, w.cfg.DefaultRetryStrategy())

	for i := 0; i < w.cfg.Worker.Concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.worker(ctx, id, messages)
		}(i)
	}

	w.logger.Info().Int("concurrency", w.cfg.Worker.Concurrency).Msg("Purge worker started")

	<-ctx.Done()
	w.logger.Info().Msg("Shutting down purge worker gracefully")
	close(messages)
	w.wg.Wait()

	if w.db != nil && w.db.Master != nil {
		w.db.Master.Close()
	}
	return w.consumer.Close()
}

func (w *Worker) worker(ctx context.Context, id int, messages <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", id).Msg("Worker stopped")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			w.processMessage(ctx, id, msg)
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, workerID int, msg kafka.Message) {
	var task domain.PurgeTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		w.logger.Error().Err(err).Int("worker_id", workerID).Msg("Failed to unmarshal purge task")
		return
	}

	w.logger.Info().
		Int("worker_id", workerID).
		Str("task_id", task.ID).
		Str("blob_id", task.BlobID).
		Msg("Purging blob")

	err := w.blobs.Purge(ctx, task.BlobID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrBlobNotFound):
		// Already purged: the task is idempotent, just commit it.
		w.logger.Info().Str("blob_id", task.BlobID).Msg("Blob already gone")
	default:
		w.logger.Error().Err(err).Str("blob_id", task.BlobID).Msg("Purge failed")
		return
	}

	if err := w.consumer.Commit(ctx, msg); err != nil {
		w.logger.Error().Err(err).Str("blob_id", task.BlobID).Msg("Failed to commit message")
	}
}
