// Package server provides the HTTP API of the prompt studio.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/imagegen"
	"github.com/maauso/promptstudio/internal/scriptgen"
	"github.com/maauso/promptstudio/internal/studio"
	"github.com/maauso/promptstudio/internal/task"
)

// StateResponse is the studio state as seen by clients. The stored
// credential is never returned; HasCredential reports whether one is set.
type StateResponse struct {
	Settings       studio.Settings                  `json:"settings"`
	PromptText     string                           `json:"prompt_text"`
	Images         []studio.Image                   `json:"images"`
	Buffers        map[generator.Mode]studio.Buffer `json:"buffers"`
	Lanes          []string                         `json:"lanes"`
	ReferenceImage string                           `json:"reference_image,omitempty"`
	Scripts        studio.Scripts                   `json:"scripts"`
	HasCredential  bool                             `json:"has_credential"`
}

func newStateResponse(st studio.State) StateResponse {
	cur := st.Current()
	return StateResponse{
		Settings:       st.Settings,
		PromptText:     cur.PromptText,
		Images:         cur.Images,
		Buffers:        st.Buffers,
		Lanes:          st.Lanes,
		ReferenceImage: st.ReferenceImage,
		Scripts:        st.Scripts,
		HasCredential:  st.Credential != "",
	}
}

// SetModeRequest is the body of PUT /state/mode.
type SetModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

// SetSettingsRequest is the body of PUT /state/settings. Empty fields are unchanged.
type SetSettingsRequest struct {
	Resolution  string `json:"resolution" validate:"omitempty,oneof=720p 1080p"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 1:1"`
	Language    string `json:"language" validate:"omitempty,oneof=EN VN"`
}

// TextRequest is the body of endpoints that replace a block of text.
type TextRequest struct {
	Text string `json:"text"`
}

// SetLanesRequest is the body of PUT /state/lanes.
type SetLanesRequest struct {
	Prompts []string `json:"prompts" validate:"max=5"`
}

// SetCredentialRequest is the body of PUT /state/credential.
type SetCredentialRequest struct {
	Key string `json:"key"`
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=standard seamless"`
	Width    int    `json:"width" validate:"oneof=0 3 5"`
	JoinFilm bool   `json:"join_film"`
}

// StopResponse is returned by POST /runs/stop.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// TasksResponse lists tasks newest first.
type TasksResponse struct {
	Tasks []task.Task `json:"tasks"`
}

// EditTaskRequest is the body of PATCH /tasks/{id}.
type EditTaskRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// ScriptResponse is returned by POST /tools/scripts.
type ScriptResponse struct {
	Script scriptgen.Script `json:"script"`
}

// ImageRequest is the body of POST /tools/images.
type ImageRequest struct {
	Script string `json:"script" validate:"required"`
	DNA    string `json:"dna"`
	Genre  string `json:"genre"`
}

// ImageResponse is returned by POST /tools/images.
type ImageResponse struct {
	URL string `json:"url"`
}

// BatchRequest is the body of POST /tools/images/batch. Without lines the
// prompt lines of the active mode are drawn.
type BatchRequest struct {
	Lines []string `json:"lines" validate:"max=50"`
}

// BatchResponse is returned by POST /tools/images/batch.
type BatchResponse struct {
	BatchID string                 `json:"batch_id"`
	Results []imagegen.BatchResult `json:"results"`
	Stopped bool                   `json:"stopped"`
}

// AuthStatusResponse is returned by GET /auth/status.
type AuthStatusResponse struct {
	CredentialRequired bool   `json:"credential_required"`
	Reason             string `json:"reason,omitempty"`
	HasCredential      bool   `json:"has_credential"`
	Package            string `json:"package"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
