package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// InspectionsHandler serves read access to inspections and their photos.
type InspectionsHandler struct {
	inspections repositories.InspectionRepository
	photos      repositories.InspectionPhotoRepository
	logger      *zap.Logger
}

// NewInspectionsHandler creates a new inspections handler.
func NewInspectionsHandler(
	inspections repositories.InspectionRepository,
	photos repositories.InspectionPhotoRepository,
	logger *zap.Logger,
) *InspectionsHandler {
	return &InspectionsHandler{
		inspections: inspections,
		photos:      photos,
		logger:      logger,
	}
}

// RegisterRoutes registers the inspections handler's routes on the given mux.
func (h *InspectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/inspections", h.List)
	mux.HandleFunc("GET /api/inspections/{id}", h.Get)
	mux.HandleFunc("GET /api/inspections/{id}/photos", h.ListPhotos)
}

type inspectionsListResponse struct {
	Inspections []*models.Inspection `json:"inspections"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// List handles GET /api/inspections with limit/offset pagination, newest
// first.
func (h *InspectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	inspections, err := h.inspections.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list inspections", zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list inspections")
		return
	}

	resp := inspectionsListResponse{
		Inspections: inspections,
		Limit:       limit,
		Offset:      offset,
	}
	if resp.Inspections == nil {
		resp.Inspections = []*models.Inspection{}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write inspections response", zap.Error(err))
	}
}

// Get handles GET /api/inspections/{id}.
func (h *InspectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseInspectionID(w, r, h.logger)
	if !ok {
		return
	}

	insp, err := h.inspections.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Inspection not found")
			return
		}
		h.logger.Error("Failed to get inspection",
			zap.String("inspection_id", id.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get inspection")
		return
	}

	if err := WriteJSON(w, http.StatusOK, insp); err != nil {
		h.logger.Error("Failed to write inspection response", zap.Error(err))
	}
}

type inspectionPhotosResponse struct {
	Photos []*models.InspectionPhoto `json:"photos"`
}

// ListPhotos handles GET /api/inspections/{id}/photos.
func (h *InspectionsHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseInspectionID(w, r, h.logger)
	if !ok {
		return
	}

	// Look the inspection up first so an unknown ID is a 404, not an
	// empty list.
	if _, err := h.inspections.Get(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Inspection not found")
			return
		}
		h.logger.Error("Failed to get inspection",
			zap.String("inspection_id", id.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get inspection")
		return
	}

	photos, err := h.photos.ListByInspection(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list inspection photos",
			zap.String("inspection_id", id.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list photos")
		return
	}

	resp := inspectionPhotosResponse{Photos: photos}
	if resp.Photos == nil {
		resp.Photos = []*models.InspectionPhoto{}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write photos response", zap.Error(err))
	}
}
