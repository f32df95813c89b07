package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maauso/promptstudio/internal/events"
	"github.com/maauso/promptstudio/internal/imagegen"
	"github.com/maauso/promptstudio/internal/orchestrator"
	"github.com/maauso/promptstudio/internal/scriptgen"
	"github.com/maauso/promptstudio/internal/studio"
)

// WriteScript handles POST /tools/scripts requests. The script is stored in
// the studio and its scene prompts replace the active mode's prompt text.
func (h *Handlers) WriteScript(w http.ResponseWriter, r *http.Request) {
	var in scriptgen.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	st := h.svc.Studio.Snapshot()
	if in.Language == "" {
		in.Language = st.Settings.Language
	}

	grant, err := h.svc.Policy.Grant(r.Context(), st.Credential)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	script, err := h.svc.Writer.Write(r.Context(), grant.Credential, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.svc.Studio.Dispatch(r.Context(), studio.ApplyScript{Script: script}); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("script written",
		slog.String("tool", string(script.Tool)),
		slog.Int("prompts", len(script.Prompts)),
	)
	writeJSON(w, http.StatusOK, ScriptResponse{Script: script})
}

// DrawImage handles POST /tools/images requests.
func (h *Handlers) DrawImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !h.decode(w, r, &req) {
		return
	}

	st := h.svc.Studio.Snapshot()
	grant, err := h.svc.Policy.Grant(r.Context(), st.Credential)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	url, err := h.svc.Painter.Single(r.Context(), grant.Credential, imagegen.SingleInput{
		Script:      req.Script,
		DNA:         req.DNA,
		Genre:       req.Genre,
		Language:    st.Settings.Language,
		AspectRatio: st.Settings.AspectRatio,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImageResponse{URL: url})
}

// DrawBatch handles POST /tools/images/batch requests. The batch can be
// stopped with POST /runs/stop; the frames drawn so far are returned. Each
// frame is also published as a frame.drawn event as soon as it is ready.
func (h *Handlers) DrawBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	st := h.svc.Studio.Snapshot()
	lines := orchestrator.CleanPrompts(req.Lines)
	if len(lines) == 0 {
		lines = st.Prompts()
	}

	grant, err := h.svc.Policy.Grant(r.Context(), st.Credential)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, done, ok := h.startTool(r.Context())
	if !ok {
		writeError(w, http.StatusConflict, "an image batch is already running", "TOOL_IN_PROGRESS")
		return
	}
	defer done()

	batchID := uuid.NewString()
	results, err := h.svc.Painter.Batch(ctx, grant.Credential, imagegen.BatchInput{
		Reference:   st.ReferenceImage,
		Lines:       lines,
		AspectRatio: st.Settings.AspectRatio,
	}, func(res imagegen.BatchResult) {
		h.publishFrame(context.WithoutCancel(ctx), batchID, res)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []imagegen.BatchResult{}
	}
	writeJSON(w, http.StatusOK, BatchResponse{BatchID: batchID, Results: results, Stopped: ctx.Err() != nil})
}

func (h *Handlers) publishFrame(ctx context.Context, batchID string, res imagegen.BatchResult) {
	if h.svc.Events == nil {
		return
	}
	if err := h.svc.Events.Publish(ctx, events.NewRunEvent(events.KindFrameDrawn, batchID, res.Prompt)); err != nil {
		h.logger.Warn("failed to publish frame event",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
	}
}
