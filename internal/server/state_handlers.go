package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/media"
	"github.com/maauso/promptstudio/internal/scriptgen"
	"github.com/maauso/promptstudio/internal/studio"
)

const (
	maxUploadFiles    = 8
	formOverheadBytes = 1 << 20
)

// GetState handles GET /state requests.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateResponse(h.svc.Studio.Snapshot()))
}

// SetMode handles PUT /state/mode requests.
func (h *Handlers) SetMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode, err := generator.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	h.dispatch(w, r, studio.SetMode{Mode: mode})
}

// SetSettings handles PUT /state/settings requests.
func (h *Handlers) SetSettings(w http.ResponseWriter, r *http.Request) {
	var req SetSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, studio.SetSettings{
		Resolution:  generator.Resolution(req.Resolution),
		AspectRatio: generator.AspectRatio(req.AspectRatio),
		Language:    scriptgen.Language(req.Language),
	})
}

// SetPrompt handles PUT /state/prompt requests.
func (h *Handlers) SetPrompt(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, studio.SetPrompt{Text: req.Text})
}

// SetLanes handles PUT /state/lanes requests.
func (h *Handlers) SetLanes(w http.ResponseWriter, r *http.Request) {
	var req SetLanesRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, studio.SetLanes{Prompts: req.Prompts})
}

// SetSeamless handles PUT /state/seamless requests.
func (h *Handlers) SetSeamless(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, studio.SetSeamlessScript{Text: req.Text})
}

// SetCredential handles PUT /state/credential requests. Storing a key
// lowers the re-auth signal.
func (h *Handlers) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req SetCredentialRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.svc.Studio.Dispatch(r.Context(), studio.SetCredential{Key: req.Key})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if st.Credential != "" {
		h.svc.Signal.Clear()
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

// AddImages handles POST /state/images requests. Files are read from the
// "images" form field; the optional "slot" and "sub" fields place them.
func (h *Handlers) AddImages(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r, h.maxUploadBytes*maxUploadFiles+formOverheadBytes) {
		return
	}

	slot, err := optionalInt(r.FormValue("slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "slot: "+err.Error(), "VALIDATION_ERROR")
		return
	}
	sub, err := optionalInt(r.FormValue("sub"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "sub: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images uploaded", "VALIDATION_ERROR")
		return
	}
	if len(files) > maxUploadFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d images per upload", maxUploadFiles), "VALIDATION_ERROR")
		return
	}

	images := make([]studio.Image, 0, len(files))
	for _, fh := range files {
		img, err := h.readImage(fh)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		images = append(images, img)
	}

	h.dispatch(w, r, studio.InsertImages{Images: images, Slot: slot, Sub: sub})
}

// RemoveImage handles DELETE /state/images/{index} requests.
func (h *Handlers) RemoveImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be a number", "VALIDATION_ERROR")
		return
	}
	h.dispatch(w, r, studio.RemoveImage{Index: index})
}

// ClearImages handles DELETE /state/images requests.
func (h *Handlers) ClearImages(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, studio.ClearImages{})
}

// SetReferenceImage handles POST /state/reference-image requests.
func (h *Handlers) SetReferenceImage(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r, h.maxUploadBytes+formOverheadBytes) {
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no image uploaded", "VALIDATION_ERROR")
		return
	}
	img, err := h.readImage(files[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.dispatch(w, r, studio.SetReferenceImage{URL: img.URL})
}

// ClearReferenceImage handles DELETE /state/reference-image requests.
func (h *Handlers) ClearReferenceImage(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, studio.SetReferenceImage{})
}

func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, a studio.Action) {
	st, err := h.svc.Studio.Dispatch(r.Context(), a)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

// readImage converts an uploaded file into a studio image named after the
// file without its extension.
// parseUpload parses a multipart body of at most limit bytes and writes the
// error response when it cannot.
func (h *Handlers) parseUpload(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(h.maxUploadBytes)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), "UPLOAD_TOO_LARGE")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_FORM")
	return false
}

func (h *Handlers) readImage(fh *multipart.FileHeader) (studio.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return studio.Image{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	uri, err := media.ReadImage(f, h.maxUploadBytes)
	if err != nil {
		return studio.Image{}, fmt.Errorf("%s: %w", fh.Filename, err)
	}
	name := filepath.Base(fh.Filename)
	return studio.Image{URL: uri, Name: strings.TrimSuffix(name, filepath.Ext(name))}, nil
}

func optionalInt(s string) (*int, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, errors.New("must be a number")
	}
	return &n, nil
}
