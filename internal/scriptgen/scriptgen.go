// Package scriptgen writes multi-scene video scripts with a Gemini text
// model. Every scene prompt in a script is wrapped in square brackets so it
// can be lifted into the prompt list of the current mode.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"

	"github.com/maauso/promptstudio/internal/generator"
)

const (
	defaultTextModel = "gemini-2.5-pro"
	defaultScenes    = 10
)

// Tool selects the kind of script to write.
type Tool string

// Script tools.
const (
	ToolDirector     Tool = "DIRECTOR"
	ToolLinkAnalyser Tool = "LINK_ANALYSER"
	ToolSeamlessFlow Tool = "SEAMLESS_FLOW"
)

// Language of the generated script.
type Language string

// Output languages.
const (
	LanguageEN Language = "EN"
	LanguageVN Language = "VN"
)

// Label is the language name given to the model.
func (l Language) Label() string {
	if l == LanguageVN {
		return "Vietnamese"
	}
	return "English (US)"
}

// ErrInvalidInput is returned when a tool is missing its inputs.
var ErrInvalidInput = errors.New("scriptgen: invalid input")

// Input holds the form values of every tool; each tool reads its own fields.
type Input struct {
	Tool     Tool     `json:"tool" validate:"required,oneof=DIRECTOR LINK_ANALYSER SEAMLESS_FLOW"`
	Language Language `json:"language" validate:"omitempty,oneof=EN VN"`
	Scenes   int      `json:"scenes" validate:"min=1,max=50"`

	Genre         string `json:"genre" validate:"required_if=Tool DIRECTOR"`
	Plot          string `json:"plot" validate:"required_if=Tool DIRECTOR"`
	MainCharacter string `json:"main_character"`

	Link string `json:"link" validate:"required_if=Tool LINK_ANALYSER"`

	Script string `json:"script" validate:"required_if=Tool SEAMLESS_FLOW"`
	DNA    string `json:"dna"`
}

// Script is a generated script and the scene prompts found in it.
type Script struct {
	Tool    Tool     `json:"tool"`
	Text    string   `json:"text"`
	Prompts []string `json:"prompts"`
}

var validate = validator.New()

// Validate checks the fields required by the selected tool.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// content renders the user message for the tool.
func (in Input) content() string {
	lang := in.Language
	if lang == "" {
		lang = LanguageEN
	}
	switch in.Tool {
	case ToolDirector:
		return fmt.Sprintf("Genre: %s. Plot: %s. Main character DNA: %s. Scenes: %d. Output language: %s.",
			in.Genre, in.Plot, in.MainCharacter, in.Scenes, lang.Label())
	case ToolLinkAnalyser:
		return fmt.Sprintf("YouTube: %s. Scenes: %d. Output language: %s.", in.Link, in.Scenes, lang.Label())
	default:
		return fmt.Sprintf("Script: %s. Character DNA: %s. Scenes: %d. Output language: %s.",
			in.Script, in.DNA, in.Scenes, lang.Label())
	}
}

var bracketed = regexp.MustCompile(`\[(.*?)\]`)

// ExtractPrompts returns the bracketed scene prompts of a script in order.
func ExtractPrompts(text string) []string {
	matches := bracketed.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if p := strings.TrimSpace(m[1]); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// textAPI is the subset of the genai client used for script writing.
type textAPI interface {
	GenerateText(ctx context.Context, model, system, content string) (string, error)
}

type textAPIFactory func(ctx context.Context, apiKey string) (textAPI, error)

// Writer generates scripts.
type Writer struct {
	model  string
	logger *slog.Logger
	newAPI textAPIFactory

	mu      sync.Mutex
	clients map[string]textAPI
}

// Option configures a Writer.
type Option func(*Writer)

// WithModel sets the text model.
func WithModel(model string) Option {
	return func(w *Writer) {
		if model != "" {
			w.model = model
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// NewWriter creates a script writer backed by the Gemini API.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		model:   defaultTextModel,
		logger:  slog.Default(),
		newAPI:  newGenAITextAPI,
		clients: make(map[string]textAPI),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write generates the script for in using apiKey.
// A zero scene count means ten scenes.
func (w *Writer) Write(ctx context.Context, apiKey string, in Input) (Script, error) {
	if in.Scenes == 0 {
		in.Scenes = defaultScenes
	}
	if err := in.Validate(); err != nil {
		return Script{}, err
	}

	api, err := w.api(ctx, apiKey)
	if err != nil {
		return Script{}, generator.Classify("scriptgen client", err)
	}

	text, err := api.GenerateText(ctx, w.model, instructionFor(in.Tool), in.content())
	if err != nil {
		return Script{}, generator.Classify("scriptgen generate", err)
	}

	script := Script{Tool: in.Tool, Text: text, Prompts: ExtractPrompts(text)}
	w.logger.Info("script generated",
		slog.String("tool", string(in.Tool)),
		slog.Int("scenes", len(script.Prompts)),
	)
	return script, nil
}

func (w *Writer) api(ctx context.Context, apiKey string) (textAPI, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if api, ok := w.clients[apiKey]; ok {
		return api, nil
	}
	api, err := w.newAPI(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	w.clients[apiKey] = api
	return api, nil
}

type genaiTextAPI struct {
	client *genai.Client
}

func newGenAITextAPI(ctx context.Context, apiKey string) (textAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiTextAPI{client: client}, nil
}

func (a *genaiTextAPI) GenerateText(ctx context.Context, model, system, content string) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(content), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
