package models

import (
	"fmt"
	"time"
)

// Cycle is an ordered run of snapshots bounded by a start/end transition.
// Cycles are ephemeral: they exist only within one pipeline tick and are
// never persisted as their own table.
type Cycle struct {
	Rows []*RawSnapshot

	// ClosedAt is the capture time of the row that closed the cycle (the
	// "end" row, or the next "start" row on an implicit close). That row
	// never belongs to Rows, so the close time must be carried separately.
	ClosedAt time.Time
}

// StartedAt is the capture time of the first row. Part of the natural key.
func (c *Cycle) StartedAt() time.Time {
	return c.Rows[0].CapturedAt
}

// EndedAt is the cycle's close time. Photos fire as the cycle ends, after
// the last telemetry row, so the span must run to the closing row's time,
// not the last accumulated row's.
func (c *Cycle) EndedAt() time.Time {
	if !c.ClosedAt.IsZero() {
		return c.ClosedAt
	}
	return c.Rows[len(c.Rows)-1].CapturedAt
}

// Field scans the cycle's rows in order and returns the first non-empty
// value for the named payload field. The first row of a cycle often has
// blank identity fields that only get populated a few scans later.
func (c *Cycle) Field(name string, fallbacks ...string) string {
	for _, row := range c.Rows {
		if v := row.Payload.Field(name, fallbacks...); v != "" {
			return v
		}
	}
	return ""
}

// CycleName returns the cycle's name, searched across all rows.
func (c *Cycle) CycleName() string {
	return c.Field(FieldCycleName, fieldCycleNameLegacy)
}

// FuelElementID returns the fuel element under inspection, searched across all rows.
func (c *Cycle) FuelElementID() string {
	return c.Field(FieldFuelElementID, fieldFuelElementIDLegacy)
}

// PointerID returns the control pointer identifier, searched across all rows.
func (c *Cycle) PointerID() string {
	return c.Field(FieldPointerID, fieldPointerIDLegacy)
}

// DefectFound reports whether any row in the cycle flags a defect.
func (c *Cycle) DefectFound() bool {
	for _, row := range c.Rows {
		if row.DefectIndicated() {
			return true
		}
	}
	return false
}

// NaturalKey is the deterministic cycle identity used to find-or-create the
// matching inspection: (cycle name, fuel element, first capture timestamp).
func (c *Cycle) NaturalKey() string {
	return fmt.Sprintf("%s-%s-%s",
		NormalizeKey(c.CycleName()),
		NormalizeKey(c.FuelElementID()),
		c.StartedAt().UTC().Format(time.RFC3339))
}

// RowIDs returns the ids of all constituent rows.
func (c *Cycle) RowIDs() []int64 {
	ids := make([]int64, len(c.Rows))
	for i, row := range c.Rows {
		ids[i] = row.ID
	}
	return ids
}
