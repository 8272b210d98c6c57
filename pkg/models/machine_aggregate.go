package models

import "time"

// MachineAggregate holds the running per-station inspection counters.
// One row per station; mutated in the same transaction that creates the
// inspection so the counters can never drift from the inspection table.
type MachineAggregate struct {
	StationID        string     `json:"station_id"`
	TotalInspections int64      `json:"total_inspections"`
	InspectionsToday int64      `json:"inspections_today"`
	Today            time.Time  `json:"today"`
	TotalDefects     int64      `json:"total_defects"`
	SuccessRate      float64    `json:"success_rate"`
	LastInspectionAt *time.Time `json:"last_inspection_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Apply folds one new inspection into the counters.
func (m *MachineAggregate) Apply(insp *Inspection, now time.Time) {
	m.TotalInspections++

	// Pipeline timestamps are station-local, so the daily counter rolls
	// over at local midnight, not at a UTC day boundary.
	y, mo, d := now.Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
	// The stored day may come back from the database in another zone;
	// compare calendar dates in the station's zone.
	ty, tmo, td := m.Today.In(now.Location()).Date()
	if ty != y || tmo != mo || td != d {
		m.Today = today
		m.InspectionsToday = 0
	}
	m.InspectionsToday++

	if insp.DefectFound {
		m.TotalDefects++
	}

	m.SuccessRate = SuccessRate(m.TotalInspections, m.TotalDefects)
	m.LastInspectionAt = &now
}

// SuccessRate computes (total - defects) / total as a percentage.
// A zero total is defined as 0%, not a division error.
func SuccessRate(total, defects int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-defects) / float64(total) * 100.0
}
