package server

import (
	"context"
	"net/http"

	"github.com/maauso/promptstudio/internal/orchestrator"
	"github.com/maauso/promptstudio/internal/studio"
)

// StartRun handles POST /runs requests. Prompts come from the studio state:
// the lane prompts for parallel runs, the seamless script for seamless runs
// and the active mode's prompt text otherwise.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if !h.decode(w, r, &req) {
		return
	}

	st := h.svc.Studio.Snapshot()
	plan := planFor(st, orchestrator.Kind(req.Kind), req.Width)
	plan.JoinFilm = req.JoinFilm

	run, err := h.svc.Orchestrator.Start(r.Context(), plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func planFor(st studio.State, kind orchestrator.Kind, width int) orchestrator.Plan {
	plan := orchestrator.Plan{
		Kind:        kind,
		Width:       width,
		Mode:        st.Settings.Mode,
		Images:      st.ImageURLs(),
		Resolution:  st.Settings.Resolution,
		AspectRatio: st.Settings.AspectRatio,
		UserKey:     st.Credential,
	}
	switch {
	case kind == orchestrator.KindSeamless:
		plan.Prompts = st.SeamlessPrompts()
	case width > 0:
		plan.Prompts = st.LanePrompts(width)
	default:
		plan.Prompts = st.Prompts()
	}
	return plan
}

// StopRun handles POST /runs/stop requests. It also stops a running image batch.
func (h *Handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	stopped := h.svc.Orchestrator.Stop()
	if h.stopTool() {
		stopped = true
	}
	writeJSON(w, http.StatusOK, StopResponse{Stopped: stopped})
}

// CurrentRun handles GET /runs/current requests.
func (h *Handlers) CurrentRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.svc.Orchestrator.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has been started", "NO_RUN")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListTasks handles GET /tasks requests.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: h.svc.Board.List()})
}

// EditTask handles PATCH /tasks/{id} requests.
func (h *Handlers) EditTask(w http.ResponseWriter, r *http.Request) {
	var req EditTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.svc.Board.EditPrompt(r.PathValue("id"), req.Prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Board.Delete(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /history requests.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: h.svc.Board.History()})
}

// startTool registers the cancel func of a running tool so StopRun can
// reach it. Only one tool runs at a time; ok is false while another is
// registered. done unregisters the tool.
func (h *Handlers) startTool(ctx context.Context) (toolCtx context.Context, done func(), ok bool) {
	h.toolMu.Lock()
	defer h.toolMu.Unlock()

	if h.toolCancel != nil {
		return nil, nil, false
	}
	toolCtx, cancel := context.WithCancel(ctx)
	h.toolCancel = cancel

	return toolCtx, func() {
		h.toolMu.Lock()
		h.toolCancel = nil
		h.toolMu.Unlock()
		cancel()
	}, true
}

func (h *Handlers) stopTool() bool {
	h.toolMu.Lock()
	defer h.toolMu.Unlock()

	if h.toolCancel == nil {
		return false
	}
	h.toolCancel()
	return true
}
