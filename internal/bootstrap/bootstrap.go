// Package bootstrap provides dependency initialization for the prompt studio.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maauso/promptstudio/internal/config"
	"github.com/maauso/promptstudio/internal/events"
	"github.com/maauso/promptstudio/internal/fetch"
	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/imagegen"
	"github.com/maauso/promptstudio/internal/kvstore"
	"github.com/maauso/promptstudio/internal/license"
	"github.com/maauso/promptstudio/internal/media"
	"github.com/maauso/promptstudio/internal/orchestrator"
	"github.com/maauso/promptstudio/internal/scriptgen"
	"github.com/maauso/promptstudio/internal/server"
	"github.com/maauso/promptstudio/internal/storage"
	"github.com/maauso/promptstudio/internal/studio"
	"github.com/maauso/promptstudio/internal/task"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Services server.Services
	// FilesDir is served under /files/ when clips are archived locally.
	FilesDir string

	closers []func() error
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}
	fail := func(err error) (*Dependencies, error) {
		_ = deps.Close()
		return nil, err
	}

	kv, err := initKVStore(ctx, cfg, logger, deps)
	if err != nil {
		return fail(err)
	}

	store, err := studio.Load(ctx, kv, studio.WithLogger(logger))
	if err != nil {
		return fail(fmt.Errorf("load studio state: %w", err))
	}

	publisher, err := initPublisher(cfg, logger, deps)
	if err != nil {
		return fail(err)
	}

	pkg, err := license.ParsePackage(cfg.Package)
	if err != nil {
		return fail(err)
	}
	packages := license.NewStatic(pkg)
	policy := license.NewPolicy(packages, cfg.GoogleAPIKey)
	signal := license.NewSignal()

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath)
	fetcher := fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout}),
		fetch.WithMaxBytes(cfg.MaxDownloadMB<<20),
	)

	veo := generator.NewVeoClient(
		generator.WithModel(cfg.VideoModel),
		generator.WithPollInterval(cfg.PollInterval),
		generator.WithTempDir(cfg.TempDir),
		generator.WithProcessor(processor),
		generator.WithFetcher(fetcher),
		generator.WithLogger(logger),
	)

	board := task.NewBoard(task.WithHistoryLimit(cfg.HistoryLimit))

	orchOpts := []orchestrator.Option{
		orchestrator.WithPublisher(publisher),
		orchestrator.WithCredentialHook(signal.Raise),
		orchestrator.WithChainBreak(chainBreak(cfg.ChainBreak)),
		orchestrator.WithLogger(logger),
	}
	if cfg.ArchiveResults {
		archiveStore, filesDir, err := initStorage(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		deps.FilesDir = filesDir
		orchOpts = append(orchOpts, orchestrator.WithArchiver(
			storage.NewArchiver(archiveStore, fetcher, processor, logger),
		))
	}

	deps.Services = server.Services{
		Studio:       store,
		Orchestrator: orchestrator.New(veo, board, policy, orchOpts...),
		Board:        board,
		Policy:       policy,
		Packages:     packages,
		Signal:       signal,
		Writer:       scriptgen.NewWriter(scriptgen.WithModel(cfg.TextModel), scriptgen.WithLogger(logger)),
		Painter:      imagegen.NewPainter(imagegen.WithModel(cfg.ImageModel), imagegen.WithLogger(logger)),
		Events:       publisher,
	}

	logger.Info("studio ready",
		slog.String("package", string(pkg)),
		slog.String("video_model", cfg.VideoModel),
		slog.Bool("archive_results", cfg.ArchiveResults),
	)
	return deps, nil
}

func initKVStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (kvstore.Store, error) {
	if !cfg.RedisEnabled() {
		logger.Info("studio state kept in memory")
		return kvstore.NewMemoryStore(), nil
	}

	rs, err := kvstore.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("create Redis store: %w", err)
	}
	deps.closers = append(deps.closers, rs.Close)
	logger.Info("studio state kept in Redis",
		slog.String("key_prefix", cfg.RedisKeyPrefix),
	)
	return rs, nil
}

func initPublisher(cfg *config.Config, logger *slog.Logger, deps *Dependencies) (events.Publisher, error) {
	if !cfg.NATSEnabled() {
		return events.NewLogPublisher(logger), nil
	}

	nc, err := events.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, func() error {
		return nc.Drain()
	})
	logger.Info("task events published to NATS")
	return events.NewNATSPublisher(nc), nil
}

// initStorage creates the archive backend. The returned directory is only
// set for local storage, whose files the server exposes itself.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, "", nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, storage.WithBaseURL(cfg.PublicBaseURL))
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("archive_dir", localStore.ArchiveDir()),
		slog.String("public_base_url", cfg.PublicBaseURL),
	)
	return localStore, localStore.ArchiveDir(), nil
}

func chainBreak(s string) orchestrator.ChainBreak {
	if strings.EqualFold(s, "abort") {
		return orchestrator.ChainBreakAbort
	}
	return orchestrator.ChainBreakRestart
}
