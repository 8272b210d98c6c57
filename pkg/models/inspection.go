package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Inspection status values.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Inspection is the single record materialized for one PLC cycle identity.
// At most one inspection exists per (cycle name, fuel element, cycle start).
type Inspection struct {
	ID             uuid.UUID `json:"id"`
	CycleName      string    `json:"cycle_name"`
	FuelElementID  string    `json:"fuel_element_id"`
	CycleStartedAt time.Time `json:"cycle_started_at"`
	Status         string    `json:"status"`
	DefectFound    bool      `json:"defect_found"`
	ProductCode    string    `json:"product_code"`
	SerialNumber   string    `json:"serial_number"`
	BatchNumber    string    `json:"batch_number"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewInspectionFromCycle derives an inspection from a closed cycle's
// aggregated telemetry. Any defect-indicating field within the cycle
// implies a rejected inspection.
func NewInspectionFromCycle(cycle *Cycle) *Inspection {
	name := cycle.CycleName()
	fuelElement := cycle.FuelElementID()
	defect := cycle.DefectFound()

	status := StatusApproved
	if defect {
		status = StatusRejected
	}

	return &Inspection{
		ID:             uuid.New(),
		CycleName:      name,
		FuelElementID:  fuelElement,
		CycleStartedAt: cycle.StartedAt(),
		Status:         status,
		DefectFound:    defect,
		ProductCode:    name + "-" + fuelElement,
		SerialNumber:   fuelElement,
		BatchNumber:    name,
		Notes:          "cycle starting at PLC row " + strconv.FormatInt(cycle.Rows[0].ID, 10),
	}
}
