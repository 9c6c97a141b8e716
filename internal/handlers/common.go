package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
	"github.com/lehigh-university-libraries/stereocards/internal/storage"
	"github.com/lehigh-university-libraries/stereocards/internal/viewer"
)

// Handler serves card images and drives imports over HTTP.
type Handler struct {
	viewer   *viewer.Service
	importer *importer.Importer
	cache    *imagecache.Cache
	metrics  *metrics.Simple
	runs     *storage.RunStore

	// baseCtx outlives individual requests; imports started over HTTP run
	// on it.
	baseCtx context.Context
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Viewer   *viewer.Service
	Importer *importer.Importer
	Cache    *imagecache.Cache
	Metrics  *metrics.Simple
}

func New(ctx context.Context, deps Deps) *Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewSimple()
	}
	return &Handler{
		viewer:   deps.Viewer,
		importer: deps.Importer,
		cache:    deps.Cache,
		metrics:  m,
		runs:     storage.New(),
		baseCtx:  ctx,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}

	var ie *imaging.Error
	if errors.As(err, &ie) {
		resp.Kind = string(ie.Kind)
		resp.Error = ie.Description()
		resp.Suggestion = ie.RecoverySuggestion()
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
	} else {
		slog.Debug("Request rejected", "status", status, "error", err)
	}
	h.writeJSON(w, status, resp)
}

// errorStatus maps pipeline failures to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrRunActive):
		return http.StatusConflict
	case imaging.IsKind(err, imaging.KindInvalidInput):
		return http.StatusBadRequest
	case imaging.IsKind(err, imaging.KindServerStatus):
		if code, _ := imaging.StatusCode(err); code == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case imaging.IsKind(err, imaging.KindNetwork):
		return http.StatusGatewayTimeout
	case imaging.IsKind(err, imaging.KindDecode):
		return http.StatusUnprocessableEntity
	case imaging.IsKind(err, imaging.KindFileRead), imaging.IsKind(err, imaging.KindRecordDecode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
