// Package studio holds the working state of the prompt studio: the active
// mode and output settings, the prompt and image buffers of every mode, the
// lane prompts, the user's credential and the generated scripts.
//
// State changes only through Store.Dispatch, which applies an Action to a
// copy of the state and persists the entries it touched.
package studio

import (
	"strings"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/scriptgen"
)

// LaneCount is the number of lane prompt slots.
const LaneCount = 5

// Image is an uploaded image kept as a data URI.
// An empty URL marks a placeholder slot.
type Image struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Buffer is the working prompt text and images of one mode.
type Buffer struct {
	PromptText string  `json:"prompt_text"`
	Images     []Image `json:"images"`
}

// Settings are the output options shared by every mode.
type Settings struct {
	Mode        generator.Mode        `json:"mode"`
	Resolution  generator.Resolution  `json:"resolution"`
	AspectRatio generator.AspectRatio `json:"aspect_ratio"`
	Language    scriptgen.Language    `json:"language"`
}

// Scripts are the last scripts written by each tool. Seamless is also the
// source of seamless runs and can be edited directly.
type Scripts struct {
	Director string `json:"director"`
	Analysis string `json:"analysis"`
	Seamless string `json:"seamless"`
}

// State is the complete studio state.
type State struct {
	Settings       Settings                  `json:"settings"`
	Buffers        map[generator.Mode]Buffer `json:"buffers"`
	Lanes          []string                  `json:"lanes"`
	Credential     string                    `json:"-"`
	ReferenceImage string                    `json:"reference_image"`
	Scripts        Scripts                   `json:"scripts"`
}

// DefaultState returns the state of a fresh studio.
func DefaultState() State {
	buffers := make(map[generator.Mode]Buffer, len(generator.Modes))
	for _, m := range generator.Modes {
		buffers[m] = Buffer{Images: []Image{}}
	}
	return State{
		Settings:   defaultSettings(),
		Buffers:    buffers,
		Lanes:      make([]string, LaneCount),
		Scripts:    Scripts{},
		Credential: "",
	}
}

func defaultSettings() Settings {
	return Settings{
		Mode:        generator.ModeTextToVideo,
		Resolution:  generator.Resolution720p,
		AspectRatio: generator.AspectLandscape,
		Language:    scriptgen.LanguageEN,
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Buffers = make(map[generator.Mode]Buffer, len(s.Buffers))
	for m, b := range s.Buffers {
		b.Images = append([]Image(nil), b.Images...)
		if b.Images == nil {
			b.Images = []Image{}
		}
		out.Buffers[m] = b
	}
	out.Lanes = append([]string(nil), s.Lanes...)
	return out
}

// Current returns the buffer of the active mode.
func (s State) Current() Buffer {
	return s.Buffers[s.Settings.Mode]
}

// ImageURLs returns the image slots of the active mode as data URIs,
// placeholders included so indexes line up with prompts.
func (s State) ImageURLs() []string {
	imgs := s.Current().Images
	out := make([]string, len(imgs))
	for i, img := range imgs {
		out[i] = img.URL
	}
	return out
}

// Prompts returns the non-blank lines of the active mode's prompt text.
func (s State) Prompts() []string {
	return SplitPrompts(s.Current().PromptText)
}

// SeamlessPrompts returns the non-blank lines of the seamless script.
func (s State) SeamlessPrompts() []string {
	return SplitPrompts(s.Scripts.Seamless)
}

// LanePrompts returns the first width lane prompts that are not blank.
func (s State) LanePrompts(width int) []string {
	width = min(width, len(s.Lanes))
	out := make([]string, 0, width)
	for _, p := range s.Lanes[:width] {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitPrompts splits text into trimmed, non-blank lines.
func SplitPrompts(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// promptTexts is the persisted form of the per-mode prompt text.
func (s State) promptTexts() map[generator.Mode]string {
	out := make(map[generator.Mode]string, len(s.Buffers))
	for m, b := range s.Buffers {
		out[m] = b.PromptText
	}
	return out
}

// imageLists is the persisted form of the per-mode images.
func (s State) imageLists() map[generator.Mode][]Image {
	out := make(map[generator.Mode][]Image, len(s.Buffers))
	for m, b := range s.Buffers {
		out[m] = b.Images
	}
	return out
}

func (s *State) setPromptTexts(texts map[generator.Mode]string) {
	for m, text := range texts {
		if !m.Valid() {
			continue
		}
		b := s.Buffers[m]
		b.PromptText = text
		s.Buffers[m] = b
	}
}

func (s *State) setImageLists(lists map[generator.Mode][]Image) {
	for m, imgs := range lists {
		if !m.Valid() {
			continue
		}
		b := s.Buffers[m]
		b.Images = append([]Image{}, imgs...)
		s.Buffers[m] = b
	}
}
