package models

import (
	"time"

	"github.com/google/uuid"
)

// InspectionPhoto links one relocated photo file to its inspection.
// The record is created only after the backing file has been physically
// moved into the committed storage area, never before. PhotoPath is the
// relative durable path and is unique, which makes it the existence check
// the correlator uses instead of any in-memory bookkeeping.
type InspectionPhoto struct {
	ID           uuid.UUID `json:"id"`
	InspectionID uuid.UUID `json:"inspection_id"`
	PhotoPath    string    `json:"photo_path"`
	Caption      string    `json:"caption"`
	DefectFound  bool      `json:"defect_found"`
	CreatedAt    time.Time `json:"created_at"`
}
