package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/services"
)

// MachineHandler serves the station's aggregate counters.
type MachineHandler struct {
	aggregates services.AggregateService
	stationID  string
	logger     *zap.Logger
}

// NewMachineHandler creates a new machine handler.
func NewMachineHandler(aggregates services.AggregateService, stationID string, logger *zap.Logger) *MachineHandler {
	return &MachineHandler{
		aggregates: aggregates,
		stationID:  stationID,
		logger:     logger,
	}
}

// RegisterRoutes registers the machine handler's routes on the given mux.
func (h *MachineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/machine", h.Get)
}

// Get handles GET /api/machine. A station that has not produced any
// inspection yet reports zero counters rather than 404.
func (h *MachineHandler) Get(w http.ResponseWriter, r *http.Request) {
	agg, err := h.aggregates.Get(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			agg = &models.MachineAggregate{StationID: h.stationID}
		} else {
			h.logger.Error("Failed to get machine aggregate", zap.Error(err))
			ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get machine aggregate")
			return
		}
	}

	if err := WriteJSON(w, http.StatusOK, agg); err != nil {
		h.logger.Error("Failed to write machine response", zap.Error(err))
	}
}
