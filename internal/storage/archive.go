package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/media"
)

const apiKeyHeader = "x-goog-api-key"

// getter downloads a URL into memory.
type getter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Archiver copies generated clips into Storage so their URLs outlive the
// short-lived links returned by the generation service.
type Archiver struct {
	store     Storage
	fetcher   getter
	processor media.Processor
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. processor may be nil when films are not joined.
func NewArchiver(store Storage, fetcher getter, processor media.Processor, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, fetcher: fetcher, processor: processor, logger: logger}
}

// Archive publishes the clip of result under clips/<taskID>.mp4 and returns
// its URL. A clip already on disk is used as is; otherwise it is taken from
// an inline data URI or downloaded with apiKey.
func (a *Archiver) Archive(ctx context.Context, taskID string, result generator.Result, apiKey string) (string, error) {
	r, cleanup, err := a.open(ctx, result, apiKey)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", taskID, err)
	}
	defer cleanup()

	url, err := a.store.Publish(ctx, "clips/"+taskID+".mp4", r)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", taskID, err)
	}

	a.logger.Info("clip archived",
		slog.String("task_id", taskID),
		slog.String("url", url),
	)
	return url, nil
}

func (a *Archiver) open(ctx context.Context, result generator.Result, apiKey string) (io.Reader, func(), error) {
	noop := func() {}

	if p := result.Ref.LocalPath; p != "" {
		rc, err := a.store.LoadTemp(ctx, p)
		if err == nil {
			return rc, func() { _ = rc.Close() }, nil
		}
		a.logger.Warn("local clip unavailable, downloading", slog.String("path", p), slog.String("error", err.Error()))
	}

	if strings.HasPrefix(result.FinalURL, "data:") {
		data, _, err := media.DecodeDataURI(result.FinalURL)
		if err != nil {
			return nil, noop, err
		}
		return bytes.NewReader(data), noop, nil
	}

	if result.FinalURL == "" {
		return nil, noop, fmt.Errorf("clip has no location")
	}
	data, err := a.fetcher.Get(ctx, result.FinalURL, map[string]string{apiKeyHeader: apiKey})
	if err != nil {
		return nil, noop, err
	}
	return bytes.NewReader(data), noop, nil
}

// JoinFilm concatenates the local clips of a chained run into one film and
// publishes it under films/<runID>.mp4.
func (a *Archiver) JoinFilm(ctx context.Context, runID string, refs []generator.Ref) (string, error) {
	if a.processor == nil {
		return "", fmt.Errorf("join film %s: no media processor", runID)
	}

	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.LocalPath != "" {
			paths = append(paths, ref.LocalPath)
		}
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("join film %s: %w", runID, media.ErrNoVideoPaths)
	}

	out := filepath.Join(tempDirOf(a.store), "film-"+runID+".mp4")
	defer func() {
		if err := a.store.CleanupTemp(context.WithoutCancel(ctx), []string{out}); err != nil {
			a.logger.Warn("failed to remove joined film", slog.String("path", out), slog.String("error", err.Error()))
		}
	}()

	if err := a.processor.JoinVideos(ctx, paths, out); err != nil {
		return "", fmt.Errorf("join film %s: %w", runID, err)
	}

	rc, err := a.store.LoadTemp(ctx, out)
	if err != nil {
		return "", fmt.Errorf("join film %s: %w", runID, err)
	}
	defer func() { _ = rc.Close() }()

	url, err := a.store.Publish(ctx, "films/"+runID+".mp4", rc)
	if err != nil {
		return "", fmt.Errorf("join film %s: %w", runID, err)
	}
	a.logger.Info("film joined",
		slog.String("run_id", runID),
		slog.Int("clips", len(paths)),
		slog.String("url", url),
	)
	return url, nil
}

func tempDirOf(s Storage) string {
	if t, ok := s.(interface{ TempDir() string }); ok {
		return t.TempDir()
	}
	return os.TempDir()
}
