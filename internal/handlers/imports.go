package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
)

type startImportRequest struct {
	Directory string `json:"directory"`
}

type runResponse struct {
	RunID    string            `json:"run_id"`
	State    string            `json:"state"`
	Progress importer.Progress `json:"progress"`
	Summary  importer.Summary  `json:"summary"`
}

func newRunResponse(run *importer.Run) runResponse {
	return runResponse{
		RunID:    run.ID,
		State:    run.State().String(),
		Progress: run.Latest(),
		Summary:  run.Summary(),
	}
}

// HandleStartImport starts importing a server-side directory.
func (h *Handler) HandleStartImport(w http.ResponseWriter, r *http.Request) {
	var req startImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, imaging.New(imaging.KindInvalidInput, "import", fmt.Errorf("invalid JSON: %w", err)))
		return
	}
	if strings.TrimSpace(req.Directory) == "" {
		h.writeError(w, imaging.New(imaging.KindInvalidInput, "import", errors.New("directory is required")))
		return
	}

	run, err := h.importer.Start(h.baseCtx, req.Directory)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.runs.Set(run)
	h.writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

// HandleCurrentImport reports the active run.
func (h *Handler) HandleCurrentImport(w http.ResponseWriter, r *http.Request) {
	run := h.importer.Current()
	if run == nil {
		h.writeJSON(w, http.StatusOK, runResponse{State: importer.StateIdle.String()})
		return
	}
	h.writeJSON(w, http.StatusOK, newRunResponse(run))
}

// HandleCancelImport cancels the active run, if any.
func (h *Handler) HandleCancelImport(w http.ResponseWriter, r *http.Request) {
	h.importer.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// HandleImportDetail reports a past or present run by id.
func (h *Handler) HandleImportDetail(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Get(chi.URLParam(r, "runID"))
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Import run not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, newRunResponse(run))
}

// HandleForgetImport drops a finished run from the run list.
func (h *Handler) HandleForgetImport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, ok := h.runs.Get(runID)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Import run not found"})
		return
	}
	if !run.State().Terminal() {
		h.writeError(w, importer.ErrRunActive)
		return
	}
	h.runs.Delete(runID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleImports lists the runs started through this server.
func (h *Handler) HandleImports(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runs.Summaries())
}
