// Package app builds the note service from configuration. The API server,
// the worker and the CLI's sweep command share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dharsanguruparan/NoteDrop/internal/api"
	"github.com/dharsanguruparan/NoteDrop/internal/blobstore"
	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/database"
	"github.com/dharsanguruparan/NoteDrop/internal/notes"
	"github.com/dharsanguruparan/NoteDrop/internal/preview"
	"github.com/dharsanguruparan/NoteDrop/internal/repository"
	"github.com/dharsanguruparan/NoteDrop/internal/s3storage"
	"github.com/dharsanguruparan/NoteDrop/internal/storage"
)

// UploadURLPrefix is where disk blobs are served.
const UploadURLPrefix = "/uploads"

// App holds the long-lived dependencies of a process.
type App struct {
	Notes  *notes.Service
	Health []api.Pinger
	closer []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

// Open connects the note store and blob store selected by cfg. migrate runs
// pending schema migrations first when Postgres is used.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*App, error) {
	a := &App{}
	store, err := a.openStore(ctx, cfg, logger, migrate)
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs, err := a.openBlobs(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	cache := preview.NewCache(cfg.PreviewCacheSize, cfg.PreviewCacheTTL)
	a.Notes = notes.NewService(store, blobs, cache, Options(cfg), logger)
	return a, nil
}

// Options maps configuration onto service options.
func Options(cfg *config.Config) notes.Options {
	return notes.Options{
		AllowedExtensions: cfg.AllowedExtensions,
		MaxFileSize:       cfg.MaxFileSize,
		MaxFiles:          cfg.MaxFiles,
		SignedURLTTL:      cfg.SignedURLTTL,
		PreviewMaxPages:   cfg.PreviewMaxPages,
		PreviewMaxBytes:   cfg.PreviewMaxBytes,
		LocalStore:        cfg.DatabaseURL == "",
	}
}

// CheckSweepable reports whether a process built from cfg may sweep orphan
// blobs. Without Postgres each process keeps its own notes in memory, so a
// sweeper would see every blob as unreferenced.
func CheckSweepable(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("NOTEDROP_DATABASE_URL is not set: %w", notes.ErrLocalStore)
	}
	return nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (notes.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("NOTEDROP_DATABASE_URL not set, notes are kept in memory")
		store := storage.NewMemoryStore()
		a.Health = append(a.Health, store)
		return store, nil
	}
	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closer = append(a.closer, pool.Close)
	a.Health = append(a.Health, database.NewReadinessChecker(pool))
	return repository.NewNoteRepository(pool), nil
}

func (a *App) openBlobs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notes.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendS3:
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		a.Health = append(a.Health, store)
		logger.Info("blob store ready", slog.String("backend", "s3"), slog.String("bucket", cfg.S3Bucket))
		return store, nil
	default:
		disk, err := blobstore.NewDisk(cfg.UploadDir, UploadURLPrefix)
		if err != nil {
			return nil, err
		}
		logger.Info("blob store ready", slog.String("backend", "disk"), slog.String("dir", disk.Dir()))
		return disk, nil
	}
}
