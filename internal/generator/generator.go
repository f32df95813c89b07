// Package generator defines the boundary to the remote video generation
// service. The orchestrator depends only on Client; VeoClient implements it
// on top of the Google genai SDK.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Mode selects how images feed a generation request.
type Mode string

// Supported generation modes.
const (
	ModeTextToVideo   Mode = "TEXT_TO_VIDEO"
	ModeImageToVideo  Mode = "IMAGE_TO_VIDEO"
	ModeInterpolation Mode = "INTERPOLATION" // start and end frame per clip
	ModeConsistency   Mode = "CONSISTENCY"   // every image is a character reference
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeTextToVideo, ModeImageToVideo, ModeInterpolation, ModeConsistency}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeTextToVideo, ModeImageToVideo, ModeInterpolation, ModeConsistency:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
	return m, nil
}

// Resolution of the generated clip.
type Resolution string

// Supported resolutions.
const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// AspectRatio of the generated clip.
type AspectRatio string

// Supported aspect ratios.
const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

// Ref points at a finished clip so the next clip of a chain can continue it.
type Ref struct {
	VideoURI  string `json:"video_uri"`
	LocalPath string `json:"local_path,omitempty"`
	// LastFrame is a PNG data URI of the clip's final frame.
	LastFrame string `json:"last_frame,omitempty"`
}

// Release removes the local copy kept for chaining along with its clip
// directory. A ref without a local copy is a no-op.
func (r Ref) Release() error {
	if r.LocalPath == "" {
		return nil
	}
	if err := os.Remove(r.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release %s: %w", r.LocalPath, err)
	}
	// Fails while the directory still has entries, which keeps it.
	_ = os.Remove(filepath.Dir(r.LocalPath))
	return nil
}

// ReleaseRefs releases every ref and joins the failures.
func ReleaseRefs(refs []Ref) error {
	var errs []error
	for _, ref := range refs {
		if err := ref.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Request describes a single generation call.
type Request struct {
	Mode        Mode        `validate:"required,oneof=TEXT_TO_VIDEO IMAGE_TO_VIDEO INTERPOLATION CONSISTENCY"`
	Prompt      string      `validate:"required"`
	Resolution  Resolution  `validate:"required,oneof=720p 1080p"`
	AspectRatio AspectRatio `validate:"required,oneof=16:9 9:16 1:1"`
	// Images are data URIs selected for this clip.
	Images []string
	// PreviousResult chains this clip onto an earlier one.
	PreviousResult *Ref
	Credential     string `validate:"required"`
	// SeedNext asks the client to keep the clip locally and extract its last
	// frame into Result.Ref.
	SeedNext bool
}

// Result of a successful generation.
type Result struct {
	FinalURL string
	Ref      Ref
}

// ProgressFunc receives human-readable status messages while a request runs.
type ProgressFunc func(msg string)

// Client generates one clip per call.
type Client interface {
	Generate(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}

var validate = validator.New()

// Validate checks a request before it is sent.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// SelectImages picks the images of a mode snapshot that feed the prompt at
// index. Chained requests carry no images of their own.
func SelectImages(mode Mode, images []string, index int, chained bool) []string {
	if chained {
		return nil
	}
	pick := func(i int) []string {
		if i < 0 || i >= len(images) || images[i] == "" {
			return nil
		}
		return []string{images[i]}
	}

	switch mode {
	case ModeImageToVideo:
		return pick(index)
	case ModeInterpolation:
		return append(pick(index*2), pick(index*2+1)...)
	case ModeConsistency:
		out := make([]string, 0, len(images))
		for _, img := range images {
			if img != "" {
				out = append(out, img)
			}
		}
		return out
	default:
		return nil
	}
}
