package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"attachstore/internal/analyzer"
	"attachstore/internal/broker"
	kafka_impl "attachstore/internal/broker/kafka"
	"attachstore/internal/config"
	user_h "attachstore/internal/http-server/handler/user"
	"attachstore/internal/http-server/router"
	"attachstore/internal/inspector"
	postgres_repo "attachstore/internal/repository/blob/db/postgres"
	"attachstore/internal/storage"
	disk_storage "attachstore/internal/storage/disk"
	memory_storage "attachstore/internal/storage/memory"
	minio_storage "attachstore/internal/storage/minio"
	"attachstore/internal/usecase/attachment"
	blob_uc "attachstore/internal/usecase/blob"
	"attachstore/internal/usecase/unit"
	user_uc "attachstore/internal/usecase/user"
	variant_uc "attachstore/internal/usecase/variant"
)

type App struct {
	cfg      *config.Config
	server   *http.Server
	logger   *zlog.Zerolog
	db       *dbpg.DB
	producer broker.Producer
}

func NewApp(cfg *config.Config, logger *zlog.Zerolog) (*App, error) {
	retries := cfg.DefaultRetryStrategy()

	dbOpts := &dbpg.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}

	db, err := dbpg.New(cfg.DBDSN(), []string{}, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	blobRepo := postgres_repo.New(db, retries)
	producer := kafka_impl.NewProducerClient(cfg)

	ins := inspector.New(analyzer.NewImageAnalyzer())
	binder := attachment.NewBinder(ins)

	blobs := blob_uc.NewService(blobRepo, store, producer, logger, retries)
	executor := unit.NewExecutor(blobRepo, store, blobs, logger)
	variants := variant_uc.NewService(blobRepo, store, blobs, ins, logger, cfg.Storage.TempDir)

	users := user_uc.NewUsecase(blobRepo, binder, executor, blobs, variants, cfg, logger)
	userHandler := user_h.NewUserHandler(users, cfg.Upload.MaxSize, logger)

	h := &router.Handler{
		UserHandler: userHandler,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Addr,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		cfg:      cfg,
		server:   server,
		logger:   logger,
		db:       db,
		producer: producer,
	}, nil
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return minio_storage.New(context.Background(), cfg, cfg.DefaultRetryStrategy())
	case "disk":
		return disk_storage.New(cfg.Storage.LocalDir)
	case "memory":
		return memory_storage.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func (a *App) Run() error {
	a.logger.Info().Str("addr", a.cfg.Server.Addr).Str("storage", a.cfg.Storage.Backend).Msg("Starting server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.handleSignals(cancel)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.logger.Error().Err(err).Msg("Server error")
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("Server shutdown failed")
		}

		if a.db != nil && a.db.Master != nil {
			a.db.Master.Close()
		}

		if a.producer != nil {
			a.producer.Close()
		}

		a.logger.Info().Msg("Server stopped gracefully")
		return nil
	}
}

func (a *App) handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	a.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	cancel()
}
