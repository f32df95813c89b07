package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/scriptgen"
)

// ErrInvalidAction is returned when an action cannot be applied.
var ErrInvalidAction = errors.New("studio: invalid action")

// Action is a state change. apply mutates the copy it is given and returns
// the persistence keys it touched.
type Action interface {
	apply(s *State) ([]Key, error)
}

// SetMode switches the active mode; its saved buffer becomes current.
type SetMode struct {
	Mode generator.Mode
}

func (a SetMode) apply(s *State) ([]Key, error) {
	if !a.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidAction, a.Mode)
	}
	s.Settings.Mode = a.Mode
	return []Key{KeySettings}, nil
}

// SetSettings changes output settings. Zero fields are left unchanged.
type SetSettings struct {
	Resolution  generator.Resolution
	AspectRatio generator.AspectRatio
	Language    scriptgen.Language
}

func (a SetSettings) apply(s *State) ([]Key, error) {
	switch a.Resolution {
	case "":
	case generator.Resolution720p, generator.Resolution1080p:
		s.Settings.Resolution = a.Resolution
	default:
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrInvalidAction, a.Resolution)
	}
	switch a.AspectRatio {
	case "":
	case generator.AspectLandscape, generator.AspectPortrait, generator.AspectSquare:
		s.Settings.AspectRatio = a.AspectRatio
	default:
		return nil, fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidAction, a.AspectRatio)
	}
	switch a.Language {
	case "":
	case scriptgen.LanguageEN, scriptgen.LanguageVN:
		s.Settings.Language = a.Language
	default:
		return nil, fmt.Errorf("%w: unknown language %q", ErrInvalidAction, a.Language)
	}
	return []Key{KeySettings}, nil
}

// SetPrompt replaces the prompt text of the active mode.
type SetPrompt struct {
	Text string
}

func (a SetPrompt) apply(s *State) ([]Key, error) {
	b := s.Current()
	b.PromptText = a.Text
	s.Buffers[s.Settings.Mode] = b
	return []Key{KeyModePrompts}, nil
}

// SetLanes replaces the lane prompts. Missing slots become empty.
type SetLanes struct {
	Prompts []string
}

func (a SetLanes) apply(s *State) ([]Key, error) {
	if len(a.Prompts) > LaneCount {
		return nil, fmt.Errorf("%w: at most %d lanes", ErrInvalidAction, LaneCount)
	}
	lanes := make([]string, LaneCount)
	copy(lanes, a.Prompts)
	s.Lanes = lanes
	return []Key{KeyLanePrompts}, nil
}

// SetCredential stores the user's own API key. An empty key clears it.
type SetCredential struct {
	Key string
}

func (a SetCredential) apply(s *State) ([]Key, error) {
	s.Credential = strings.TrimSpace(a.Key)
	return []Key{KeyCredential}, nil
}

// SetReferenceImage stores the batch reference image. Empty clears it.
type SetReferenceImage struct {
	URL string
}

func (a SetReferenceImage) apply(s *State) ([]Key, error) {
	s.ReferenceImage = a.URL
	return []Key{KeyReferenceImage}, nil
}

// SetSeamlessScript replaces the seamless script used by seamless runs.
type SetSeamlessScript struct {
	Text string
}

func (a SetSeamlessScript) apply(s *State) ([]Key, error) {
	s.Scripts.Seamless = a.Text
	return []Key{KeyScripts}, nil
}

// ApplyScript stores a generated script and, when it contains scene
// prompts, makes them the prompt text of the active mode.
type ApplyScript struct {
	Script scriptgen.Script
}

func (a ApplyScript) apply(s *State) ([]Key, error) {
	switch a.Script.Tool {
	case scriptgen.ToolDirector:
		s.Scripts.Director = a.Script.Text
	case scriptgen.ToolLinkAnalyser:
		s.Scripts.Analysis = a.Script.Text
	case scriptgen.ToolSeamlessFlow:
		s.Scripts.Seamless = a.Script.Text
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidAction, a.Script.Tool)
	}
	keys := []Key{KeyScripts}
	if len(a.Script.Prompts) > 0 {
		b := s.Current()
		b.PromptText = strings.Join(a.Script.Prompts, "\n")
		s.Buffers[s.Settings.Mode] = b
		keys = append(keys, KeyModePrompts)
	}
	return keys, nil
}

// InsertImages adds images to the active mode. With Slot nil they are
// appended. Otherwise the first image lands on Slot, or on Slot*2+Sub in
// interpolation mode when Sub is set, and the rest fill the following slots.
// The list is padded with placeholders up to the last written slot.
type InsertImages struct {
	Images []Image
	Slot   *int
	Sub    *int
}

func (a InsertImages) apply(s *State) ([]Key, error) {
	if len(a.Images) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrInvalidAction)
	}
	b := s.Current()
	imgs := b.Images

	if a.Slot == nil {
		imgs = append(imgs, a.Images...)
	} else {
		target := *a.Slot
		if s.Settings.Mode == generator.ModeInterpolation && a.Sub != nil {
			if *a.Sub < 0 || *a.Sub > 1 {
				return nil, fmt.Errorf("%w: sub slot must be 0 or 1", ErrInvalidAction)
			}
			target = target*2 + *a.Sub
		}
		if target < 0 {
			return nil, fmt.Errorf("%w: negative slot", ErrInvalidAction)
		}
		last := target + len(a.Images) - 1
		for len(imgs) <= last {
			imgs = append(imgs, Image{})
		}
		copy(imgs[target:], a.Images)
	}

	b.Images = imgs
	s.Buffers[s.Settings.Mode] = b
	return []Key{KeyModeImages}, nil
}

// RemoveImage deletes the image at Index from the active mode.
type RemoveImage struct {
	Index int
}

func (a RemoveImage) apply(s *State) ([]Key, error) {
	b := s.Current()
	if a.Index < 0 || a.Index >= len(b.Images) {
		return nil, fmt.Errorf("%w: no image at %d", ErrInvalidAction, a.Index)
	}
	b.Images = append(b.Images[:a.Index:a.Index], b.Images[a.Index+1:]...)
	s.Buffers[s.Settings.Mode] = b
	return []Key{KeyModeImages}, nil
}

// ClearImages removes every image of the active mode.
type ClearImages struct{}

func (ClearImages) apply(s *State) ([]Key, error) {
	b := s.Current()
	b.Images = []Image{}
	s.Buffers[s.Settings.Mode] = b
	return []Key{KeyModeImages}, nil
}
