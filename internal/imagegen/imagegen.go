// Package imagegen draws still frames with a Gemini image model: a single
// key frame from a script, or a batch of frames that keep the look of a
// reference image.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/media"
	"github.com/maauso/promptstudio/internal/scriptgen"
)

const defaultImageModel = "gemini-2.5-flash-image-preview"

// Errors returned by the image tools.
var (
	// ErrNoImage is returned when the model answered without an image.
	ErrNoImage = errors.New("imagegen: no image returned")
	// ErrNoLines is returned when a batch has no prompt lines.
	ErrNoLines = errors.New("imagegen: no prompt lines")
	// ErrNoReference is returned when a batch has no reference image.
	ErrNoReference = errors.New("imagegen: reference image required")
)

// SingleInput describes a key frame to draw from a script.
type SingleInput struct {
	Script      string
	DNA         string
	Genre       string
	Language    scriptgen.Language
	AspectRatio generator.AspectRatio
}

// BatchInput describes a batch of frames seeded by a reference image.
type BatchInput struct {
	Reference   string // data URI
	Lines       []string
	AspectRatio generator.AspectRatio
}

// BatchResult is one drawn frame of a batch.
type BatchResult struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// imageAPI is the subset of the genai client used for image generation.
type imageAPI interface {
	GenerateImage(ctx context.Context, model, system string, parts []*genai.Part) ([]byte, error)
}

type imageAPIFactory func(ctx context.Context, apiKey string) (imageAPI, error)

// Painter generates images.
type Painter struct {
	model  string
	logger *slog.Logger
	newAPI imageAPIFactory

	mu      sync.Mutex
	clients map[string]imageAPI
}

// Option configures a Painter.
type Option func(*Painter)

// WithModel sets the image model.
func WithModel(model string) Option {
	return func(p *Painter) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Painter) {
		p.logger = l
	}
}

// NewPainter creates a Painter backed by the Gemini API.
func NewPainter(opts ...Option) *Painter {
	p := &Painter{
		model:   defaultImageModel,
		logger:  slog.Default(),
		newAPI:  newGenAIImageAPI,
		clients: make(map[string]imageAPI),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Single draws one key frame and returns it as a data URI.
func (p *Painter) Single(ctx context.Context, apiKey string, in SingleInput) (string, error) {
	api, err := p.api(ctx, apiKey)
	if err != nil {
		return "", generator.Classify("imagegen client", err)
	}

	lang := in.Language
	if lang == "" {
		lang = scriptgen.LanguageEN
	}
	prompt := fmt.Sprintf("Script/Context: %s. Character DNA/Description: %s. Genre/Style: %s. Language: %s. Aspect ratio: %s.",
		in.Script, in.DNA, in.Genre, lang.Label(), aspectOrDefault(in.AspectRatio))

	data, err := api.GenerateImage(ctx, p.model, keyFrameInstruction, []*genai.Part{genai.NewPartFromText(prompt)})
	if err != nil {
		return "", generator.Classify("imagegen single", err)
	}
	return media.EncodeDataURI(data), nil
}

// Batch draws one frame per line, in order, each seeded by the reference
// image. It stops early when ctx is cancelled and returns the frames drawn
// so far. onResult, when set, is called as each frame arrives.
func (p *Painter) Batch(ctx context.Context, apiKey string, in BatchInput, onResult func(BatchResult)) ([]BatchResult, error) {
	lines := make([]string, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if in.Reference == "" {
		return nil, ErrNoReference
	}

	ref, mime, err := media.DecodeDataURI(in.Reference)
	if err != nil {
		return nil, fmt.Errorf("imagegen: reference: %w", err)
	}

	api, err := p.api(ctx, apiKey)
	if err != nil {
		return nil, generator.Classify("imagegen client", err)
	}

	results := make([]BatchResult, 0, len(lines))
	for i, line := range lines {
		if ctx.Err() != nil {
			p.logger.Info("image batch stopped", slog.Int("done", i), slog.Int("total", len(lines)))
			return results, nil
		}

		parts := []*genai.Part{
			genai.NewPartFromBytes(ref, mime),
			genai.NewPartFromText(fmt.Sprintf("Current scene prompt: %s. Aspect ratio: %s.", line, aspectOrDefault(in.AspectRatio))),
		}
		data, err := api.GenerateImage(ctx, p.model, consistencyInstruction, parts)
		if ctx.Err() != nil {
			return results, nil
		}
		if err != nil {
			return results, generator.Classify("imagegen batch", err)
		}

		r := BatchResult{Prompt: line, URL: media.EncodeDataURI(data)}
		results = append(results, r)
		if onResult != nil {
			onResult(r)
		}
	}
	return results, nil
}

func (p *Painter) api(ctx context.Context, apiKey string) (imageAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if api, ok := p.clients[apiKey]; ok {
		return api, nil
	}
	api, err := p.newAPI(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	p.clients[apiKey] = api
	return api, nil
}

func aspectOrDefault(a generator.AspectRatio) generator.AspectRatio {
	if a == "" {
		return generator.AspectLandscape
	}
	return a
}

const keyFrameInstruction = `You are a concept artist. Draw one cinematic key frame for the script
and character you are given. Photorealistic, film lighting, no text or
watermarks. Respect the requested aspect ratio.`

const consistencyInstruction = `Draw the scene described by the prompt. The attached image is the
reference: keep the same character face, outfit, colour palette and art
style. Only the pose, setting and camera change. No text or watermarks.`

type genaiImageAPI struct {
	client *genai.Client
}

func newGenAIImageAPI(ctx context.Context, apiKey string) (imageAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiImageAPI{client: client}, nil
}

func (a *genaiImageAPI) GenerateImage(ctx context.Context, model, system string, parts []*genai.Part) ([]byte, error) {
	resp, err := a.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction:  genai.NewContentFromText(system, genai.RoleUser),
			ResponseModalities: []string{"IMAGE", "TEXT"},
		})
	if err != nil {
		return nil, err
	}
	return firstInlineImage(resp)
}

func firstInlineImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil {
		return nil, ErrNoImage
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, ErrNoImage
}
