package models

import "time"

// RawSnapshot is one raw telemetry line as persisted in plc_snapshots.
// Rows are append-only: ingestion creates them, cycle resolution flips
// Processed, nothing ever deletes them.
type RawSnapshot struct {
	ID          int64     `json:"id"`
	CapturedAt  time.Time `json:"captured_at"`
	Payload     Payload   `json:"payload"`
	ContentHash string    `json:"content_hash"`
	Processed   bool      `json:"processed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Well-known payload field names, with the legacy snake_case fallbacks still
// emitted by older PLC firmware.
const (
	FieldCycleName     = "CycleName"
	FieldFuelElementID = "FuelElementID"
	FieldPointerID     = "PointerID"
	FieldDefect        = "Defect"

	fieldCycleNameLegacy     = "cycle_name"
	fieldFuelElementIDLegacy = "fuel_element_id"
	fieldPointerIDLegacy     = "pointer_id"
	fieldDefectLegacy        = "defect"
)

// CycleName returns the trimmed cycle name carried by this snapshot, or "".
func (r *RawSnapshot) CycleName() string {
	return r.Payload.Field(FieldCycleName, fieldCycleNameLegacy)
}

// FuelElementID returns the trimmed fuel element identifier, or "".
func (r *RawSnapshot) FuelElementID() string {
	return r.Payload.Field(FieldFuelElementID, fieldFuelElementIDLegacy)
}

// PointerID returns the trimmed control pointer identifier, or "".
func (r *RawSnapshot) PointerID() string {
	return r.Payload.Field(FieldPointerID, fieldPointerIDLegacy)
}

// DefectIndicated reports whether this snapshot's telemetry flags a defect.
func (r *RawSnapshot) DefectIndicated() bool {
	return r.Payload.Bool(FieldDefect, fieldDefectLegacy)
}
