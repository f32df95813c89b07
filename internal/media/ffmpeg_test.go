package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x64:d=%.1f", color, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		if p.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", p.ffmpegPath)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg")
		if p.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", p.ffmpegPath)
		}
	})
}

func TestJoinVideos(t *testing.T) {
	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("")
	ctx := context.Background()

	t.Run("empty video list", func(t *testing.T) {
		err := p.JoinVideos(ctx, []string{}, filepath.Join(tmpDir, "empty.mp4"))
		if !errors.Is(err, ErrNoVideoPaths) {
			t.Errorf("expected ErrNoVideoPaths, got %v", err)
		}
	})

	t.Run("single video is copied", func(t *testing.T) {
		src := filepath.Join(tmpDir, "single.mp4")
		if err := os.WriteFile(src, []byte("clip"), 0600); err != nil {
			t.Fatal(err)
		}
		output := filepath.Join(tmpDir, "single_out.mp4")

		if err := p.JoinVideos(ctx, []string{src}, output); err != nil {
			t.Fatalf("JoinVideos with single video failed: %v", err)
		}
		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if string(data) != "clip" {
			t.Errorf("expected copied content, got %q", data)
		}
	})

	t.Run("join multiple videos", func(t *testing.T) {
		skipIfNoFFmpeg(t)

		video1 := filepath.Join(tmpDir, "video1.mp4")
		video2 := filepath.Join(tmpDir, "video2.mp4")
		output := filepath.Join(tmpDir, "joined.mp4")

		createTestVideo(t, video1, 0.5, "red")
		createTestVideo(t, video2, 0.5, "blue")

		if err := p.JoinVideos(ctx, []string{video1, video2}, output); err != nil {
			t.Fatalf("JoinVideos failed: %v", err)
		}

		info, err := os.Stat(output)
		if err != nil {
			t.Fatalf("output file was not created: %v", err)
		}
		if info.Size() == 0 {
			t.Error("output file is empty")
		}
	})

	t.Run("non-existent video", func(t *testing.T) {
		skipIfNoFFmpeg(t)

		err := p.JoinVideos(ctx, []string{"/nonexistent/a.mp4", "/nonexistent/b.mp4"}, filepath.Join(tmpDir, "out.mp4"))
		if err == nil {
			t.Error("expected error for non-existent video, got nil")
		}
	})
}

func TestExtractLastFrame(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("")
	ctx := context.Background()

	t.Run("extracts last frame as png", func(t *testing.T) {
		videoPath := filepath.Join(tmpDir, "test_video.mp4")
		createTestVideo(t, videoPath, 2.0, "red")

		frame, err := p.ExtractLastFrame(ctx, videoPath)
		if err != nil {
			t.Fatalf("ExtractLastFrame failed: %v", err)
		}
		if !bytes.HasPrefix(frame, []byte("\x89PNG")) {
			t.Error("expected PNG signature")
		}
	})

	t.Run("missing video", func(t *testing.T) {
		_, err := p.ExtractLastFrame(ctx, filepath.Join(tmpDir, "missing.mp4"))
		var ffErr *FFmpegError
		if !errors.As(err, &ffErr) {
			t.Fatalf("expected FFmpegError, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		videoPath := filepath.Join(tmpDir, "cancel.mp4")
		createTestVideo(t, videoPath, 0.5, "blue")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := p.ExtractLastFrame(cctx, videoPath); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "No such file", Err: inner}

	if !strings.Contains(err.Error(), "No such file") {
		t.Errorf("expected stderr in message, got %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
}
