package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/promptstudio/internal/config"
	"github.com/maauso/promptstudio/internal/license"
	"github.com/maauso/promptstudio/internal/orchestrator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Package:      "free",
		VideoModel:   "veo-test",
		TextModel:    "text-test",
		ImageModel:   "image-test",
		PollInterval: 1,
		ChainBreak:   "restart",
		HistoryLimit: 10,
		TempDir:      t.TempDir(),
	}
}

func TestNewDependencies_InMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	svc := deps.Services
	assert.NotNil(t, svc.Studio)
	assert.NotNil(t, svc.Orchestrator)
	assert.NotNil(t, svc.Board)
	assert.NotNil(t, svc.Writer)
	assert.NotNil(t, svc.Painter)
	assert.NotNil(t, svc.Events)
	assert.Empty(t, deps.FilesDir)

	pkg, err := svc.Packages.Package(context.Background())
	require.NoError(t, err)
	assert.Equal(t, license.PackageFree, pkg)
}

func TestNewDependencies_LocalArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchiveResults = true

	deps, err := NewDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	assert.DirExists(t, deps.FilesDir)
}

func TestInitStorage_PublicBaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.PublicBaseURL = "https://studio.example/files/"

	store, filesDir, err := initStorage(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.DirExists(t, filesDir)

	url, err := store.Publish(context.Background(), "clips/t1.mp4", strings.NewReader("clip"))
	require.NoError(t, err)
	assert.Equal(t, "https://studio.example/files/clips/t1.mp4", url)
}

func TestNewDependencies_BadPackage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Package = "gold"

	_, err := NewDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, license.ErrUnknownPackage)
}

func TestChainBreak(t *testing.T) {
	assert.Equal(t, orchestrator.ChainBreakAbort, chainBreak("ABORT"))
	assert.Equal(t, orchestrator.ChainBreakRestart, chainBreak("restart"))
	assert.Equal(t, orchestrator.ChainBreakRestart, chainBreak(""))
}
