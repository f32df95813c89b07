package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/promptstudio/internal/events"
	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/imagegen"
	"github.com/maauso/promptstudio/internal/license"
	"github.com/maauso/promptstudio/internal/media"
	"github.com/maauso/promptstudio/internal/orchestrator"
	"github.com/maauso/promptstudio/internal/scriptgen"
	"github.com/maauso/promptstudio/internal/studio"
	"github.com/maauso/promptstudio/internal/task"
)

const defaultMaxUploadBytes = 20 << 20

// scriptWriter writes scripts with the text model.
type scriptWriter interface {
	Write(ctx context.Context, apiKey string, in scriptgen.Input) (scriptgen.Script, error)
}

// painter draws key frames with the image model.
type painter interface {
	Single(ctx context.Context, apiKey string, in imagegen.SingleInput) (string, error)
	Batch(ctx context.Context, apiKey string, in imagegen.BatchInput, onResult func(imagegen.BatchResult)) ([]imagegen.BatchResult, error)
}

// Services are the domain components the handlers drive.
type Services struct {
	Studio       *studio.Store
	Orchestrator *orchestrator.Orchestrator
	Board        *task.Board
	Policy       *license.Policy
	Packages     license.Resolver
	Signal       *license.Signal
	Writer       scriptWriter
	Painter      painter
	// Events receives frame events of image batches. Optional.
	Events events.Publisher
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	svc            Services
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64

	// toolMu guards toolCancel, which stops a running image batch.
	toolMu     sync.Mutex
	toolCancel context.CancelFunc
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes limits the size of each uploaded image.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Services, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{
		svc:            svc,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// AuthStatus handles GET /auth/status requests.
func (h *Handlers) AuthStatus(w http.ResponseWriter, r *http.Request) {
	sig := h.svc.Signal.Status()
	resp := AuthStatusResponse{
		CredentialRequired: sig.Required,
		Reason:             sig.Reason,
		HasCredential:      h.svc.Studio.Snapshot().Credential != "",
	}
	if pkg, err := h.svc.Packages.Package(r.Context()); err == nil {
		resp.Package = string(pkg)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// fail maps a domain error onto an HTTP error response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoPrompts):
		writeError(w, http.StatusBadRequest, "no prompts to run", "NO_PROMPTS")
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a run is already in progress", "RUN_IN_PROGRESS")
	case errors.Is(err, license.ErrPackageLimit):
		writeError(w, http.StatusForbidden, err.Error(), "PACKAGE_LIMIT")
	case generator.IsCredentialError(err):
		h.svc.Signal.Raise(err)
		writeError(w, http.StatusUnauthorized, err.Error(), "CREDENTIAL_REQUIRED")
	case errors.Is(err, task.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
	case errors.Is(err, orchestrator.ErrInvalidPlan),
		errors.Is(err, studio.ErrInvalidAction),
		errors.Is(err, task.ErrEmptyPrompt),
		errors.Is(err, scriptgen.ErrInvalidInput),
		errors.Is(err, generator.ErrInvalidRequest),
		errors.Is(err, imagegen.ErrNoLines),
		errors.Is(err, imagegen.ErrNoReference):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrNotDataURI):
		writeError(w, http.StatusUnsupportedMediaType, err.Error(), "UNSUPPORTED_MEDIA")
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "UPLOAD_TOO_LARGE")
	case errors.Is(err, generator.ErrRemote), errors.Is(err, generator.ErrNoVideo),
		errors.Is(err, generator.ErrFiltered), errors.Is(err, imagegen.ErrNoImage):
		writeError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
