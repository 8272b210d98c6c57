package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/services"
)

// PipelineHandler exposes manual pipeline control and status inspection.
type PipelineHandler struct {
	pipeline services.PipelineService
	logger   *zap.Logger
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(pipeline services.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers the pipeline handler's routes on the given mux.
func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pipeline/run", h.Run)
	mux.HandleFunc("GET /api/pipeline/status", h.Status)
}

// Run handles POST /api/pipeline/run. It executes one pipeline tick
// synchronously and returns its summary, or 409 when the scheduler already
// has a tick in flight.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrTickInProgress) {
			ErrorResponse(w, http.StatusConflict, "tick_in_progress", "A pipeline tick is already running")
			return
		}
		h.logger.Error("Manual pipeline run failed", zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "pipeline_failed", "Pipeline tick failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to write pipeline run response", zap.Error(err))
	}
}

// Status handles GET /api/pipeline/status.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.pipeline.Status()); err != nil {
		h.logger.Error("Failed to write pipeline status response", zap.Error(err))
	}
}
