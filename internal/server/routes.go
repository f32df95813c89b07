package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// FilesDir, when set, is served under /files/ for locally archived clips.
	FilesDir string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /auth/status", h.AuthStatus)

	mux.HandleFunc("GET /state", h.GetState)
	mux.HandleFunc("PUT /state/mode", h.SetMode)
	mux.HandleFunc("PUT /state/settings", h.SetSettings)
	mux.HandleFunc("PUT /state/prompt", h.SetPrompt)
	mux.HandleFunc("PUT /state/lanes", h.SetLanes)
	mux.HandleFunc("PUT /state/credential", h.SetCredential)
	mux.HandleFunc("PUT /state/seamless", h.SetSeamless)
	mux.HandleFunc("POST /state/images", h.AddImages)
	mux.HandleFunc("DELETE /state/images", h.ClearImages)
	mux.HandleFunc("DELETE /state/images/{index}", h.RemoveImage)
	mux.HandleFunc("POST /state/reference-image", h.SetReferenceImage)
	mux.HandleFunc("DELETE /state/reference-image", h.ClearReferenceImage)

	mux.HandleFunc("POST /runs", h.StartRun)
	mux.HandleFunc("POST /runs/stop", h.StopRun)
	mux.HandleFunc("GET /runs/current", h.CurrentRun)

	mux.HandleFunc("GET /tasks", h.ListTasks)
	mux.HandleFunc("PATCH /tasks/{id}", h.EditTask)
	mux.HandleFunc("DELETE /tasks/{id}", h.DeleteTask)
	mux.HandleFunc("GET /history", h.History)

	mux.HandleFunc("POST /tools/scripts", h.WriteScript)
	mux.HandleFunc("POST /tools/images", h.DrawImage)
	mux.HandleFunc("POST /tools/images/batch", h.DrawBatch)

	if cfg.FilesDir != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.FilesDir))))
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
