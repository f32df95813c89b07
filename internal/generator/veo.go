package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/maauso/promptstudio/internal/fetch"
	"github.com/maauso/promptstudio/internal/media"
)

const (
	defaultVideoModel   = "veo-3.0-generate-preview"
	defaultPollInterval = 10 * time.Second
	defaultTimeout      = 10 * time.Minute

	apiKeyHeader = "x-goog-api-key"
)

// videoAPI is the subset of the genai client used for video generation.
type videoAPI interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

type videoAPIFactory func(ctx context.Context, apiKey string) (videoAPI, error)

// downloader fetches a remote clip to a local path.
type downloader interface {
	Download(ctx context.Context, url, destPath string, headers map[string]string) error
}

// VeoClient generates clips with the Veo models through the genai SDK.
type VeoClient struct {
	model        string
	pollInterval time.Duration
	timeout      time.Duration
	tempDir      string
	processor    media.Processor
	downloader   downloader
	logger       *slog.Logger
	newAPI       videoAPIFactory

	mu      sync.Mutex
	clients map[string]videoAPI
}

// VeoOption configures a VeoClient.
type VeoOption func(*VeoClient)

// WithModel sets the video model name.
func WithModel(model string) VeoOption {
	return func(c *VeoClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithPollInterval sets how often a running operation is polled.
func WithPollInterval(d time.Duration) VeoOption {
	return func(c *VeoClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithTimeout bounds a single generation including polling.
func WithTimeout(d time.Duration) VeoOption {
	return func(c *VeoClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTempDir sets where chained clips are downloaded.
func WithTempDir(dir string) VeoOption {
	return func(c *VeoClient) {
		c.tempDir = dir
	}
}

// WithProcessor sets the media processor used to extract last frames.
func WithProcessor(p media.Processor) VeoOption {
	return func(c *VeoClient) {
		c.processor = p
	}
}

// WithFetcher sets the HTTP client used to download clips.
func WithFetcher(f *fetch.Client) VeoOption {
	return func(c *VeoClient) {
		c.downloader = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) VeoOption {
	return func(c *VeoClient) {
		c.logger = l
	}
}

// NewVeoClient creates a Veo generation client.
func NewVeoClient(opts ...VeoOption) *VeoClient {
	c := &VeoClient{
		model:        defaultVideoModel,
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
		tempDir:      os.TempDir(),
		processor:    media.NewFFmpegProcessor(""),
		downloader:   fetch.New(),
		logger:       slog.Default(),
		newAPI:       newGenAIVideoAPI,
		clients:      make(map[string]videoAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits the request, polls until the operation finishes and
// returns the clip location. With SeedNext set the clip is downloaded and
// its last frame is returned in Result.Ref for the next chained request.
func (c *VeoClient) Generate(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	api, err := c.api(ctx, req.Credential)
	if err != nil {
		return Result{}, Classify("veo client", err)
	}

	image, cfg, err := buildVideoInput(req)
	if err != nil {
		return Result{}, err
	}

	progress("Submitting request")
	op, err := api.GenerateVideos(ctx, c.model, req.Prompt, image, cfg)
	if err != nil {
		return Result{}, Classify("veo submit", err)
	}
	c.logger.Info("video generation submitted",
		slog.String("operation", op.Name),
		slog.String("mode", string(req.Mode)),
		slog.Bool("chained", req.PreviousResult != nil),
	)

	op, err = c.wait(ctx, api, op, progress)
	if err != nil {
		return Result{}, err
	}

	video, err := firstVideo(op)
	if err != nil {
		return Result{}, err
	}

	result := Result{FinalURL: video.URI, Ref: Ref{VideoURI: video.URI}}
	if result.FinalURL == "" {
		result.FinalURL = media.EncodeDataURI(video.VideoBytes)
	}

	if req.SeedNext {
		progress("Preparing next scene")
		if err := c.seed(ctx, op.Name, video, req.Credential, &result.Ref); err != nil {
			return Result{}, err
		}
	}

	progress("Completed")
	return result, nil
}

func (c *VeoClient) wait(ctx context.Context, api videoAPI, op *genai.GenerateVideosOperation, progress ProgressFunc) (*genai.GenerateVideosOperation, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	start := time.Now()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		next, err := api.GetVideosOperation(ctx, op)
		if err != nil {
			return nil, Classify("veo poll", err)
		}
		op = next
		progress(fmt.Sprintf("Rendering (%ds)", int(time.Since(start).Seconds())))
	}

	if err := operationError(op.Error); err != nil {
		return nil, Classify("veo operation", err)
	}
	return op, nil
}

// seed stores the clip locally and extracts its last frame.
func (c *VeoClient) seed(ctx context.Context, name string, video *genai.Video, apiKey string, ref *Ref) error {
	if err := os.MkdirAll(c.tempDir, 0750); err != nil {
		return &Error{Kind: ErrRemote, Op: "veo seed", Err: err}
	}
	dir, err := os.MkdirTemp(c.tempDir, "clip-")
	if err != nil {
		return &Error{Kind: ErrRemote, Op: "veo seed", Err: err}
	}
	path := filepath.Join(dir, "clip.mp4")

	if len(video.VideoBytes) > 0 {
		err = os.WriteFile(path, video.VideoBytes, 0600)
	} else {
		err = c.downloader.Download(ctx, video.URI, path, map[string]string{apiKeyHeader: apiKey})
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return Classify("veo download", err)
	}

	frame, err := c.processor.ExtractLastFrame(ctx, path)
	if err != nil {
		_ = os.RemoveAll(dir)
		return &Error{Kind: ErrRemote, Op: "veo last frame", Err: err}
	}

	ref.LocalPath = path
	ref.LastFrame = media.EncodeDataURI(frame)
	c.logger.Debug("last frame extracted",
		slog.String("operation", name),
		slog.Int("frame_bytes", len(frame)),
	)
	return nil
}

// api returns a genai client for the credential, reusing earlier ones.
func (c *VeoClient) api(ctx context.Context, apiKey string) (videoAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if api, ok := c.clients[apiKey]; ok {
		return api, nil
	}
	api, err := c.newAPI(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	c.clients[apiKey] = api
	return api, nil
}

// buildVideoInput maps the request images onto the Veo call.
func buildVideoInput(req Request) (*genai.Image, *genai.GenerateVideosConfig, error) {
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:    string(req.AspectRatio),
		Resolution:     string(req.Resolution),
		NumberOfVideos: 1,
	}

	if req.PreviousResult != nil && req.PreviousResult.LastFrame != "" {
		img, err := toImage(req.PreviousResult.LastFrame)
		return img, cfg, err
	}

	var start *genai.Image
	if len(req.Images) > 0 && req.Mode != ModeTextToVideo {
		img, err := toImage(req.Images[0])
		if err != nil {
			return nil, nil, err
		}
		start = img
	}
	if req.Mode == ModeInterpolation && len(req.Images) > 1 {
		last, err := toImage(req.Images[1])
		if err != nil {
			return nil, nil, err
		}
		cfg.LastFrame = last
	}
	return start, cfg, nil
}

func toImage(uri string) (*genai.Image, error) {
	data, mime, err := media.DecodeDataURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return &genai.Image{ImageBytes: data, MIMEType: mime}, nil
}

func firstVideo(op *genai.GenerateVideosOperation) (*genai.Video, error) {
	resp := op.Response
	if resp == nil {
		return nil, &Error{Kind: ErrNoVideo, Op: "veo result"}
	}
	for _, gv := range resp.GeneratedVideos {
		if gv != nil && gv.Video != nil && (gv.Video.URI != "" || len(gv.Video.VideoBytes) > 0) {
			return gv.Video, nil
		}
	}
	if resp.RAIMediaFilteredCount > 0 {
		return nil, &Error{Kind: ErrFiltered, Op: "veo result", Err: fmt.Errorf("%v", resp.RAIMediaFilteredReasons)}
	}
	return nil, &Error{Kind: ErrNoVideo, Op: "veo result"}
}

// genaiVideoAPI adapts *genai.Client to videoAPI.
type genaiVideoAPI struct {
	client *genai.Client
}

func newGenAIVideoAPI(ctx context.Context, apiKey string) (videoAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &genaiVideoAPI{client: client}, nil
}

func (a *genaiVideoAPI) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return a.client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (a *genaiVideoAPI) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return a.client.Operations.GetVideosOperation(ctx, op, nil)
}

// Compile-time check that VeoClient implements Client.
var _ Client = (*VeoClient)(nil)
