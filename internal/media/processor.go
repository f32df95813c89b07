// Package media provides video frame extraction, clip joining and data URI
// handling for uploaded reference images.
package media

import "context"

// Processor defines the video operations needed by the studio.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// ExtractLastFrame extracts the last frame of a video file as a PNG image.
	ExtractLastFrame(ctx context.Context, videoPath string) ([]byte, error)

	// JoinVideos concatenates multiple video files into a single output file.
	// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
	// with libx264/aac if the copy fails due to incompatible codecs.
	JoinVideos(ctx context.Context, videoPaths []string, output string) error
}

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)
