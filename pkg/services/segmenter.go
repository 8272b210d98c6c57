package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

// ClosedCycle is a cycle the segmenter has seen close. EndRowID is the id of
// the terminating "end" row, which belongs to no cycle but is consumed
// together with it; it is zero when the cycle was closed implicitly by a
// second "start" row. The closing row's capture time travels on
// Cycle.ClosedAt.
type ClosedCycle struct {
	Cycle    *models.Cycle
	EndRowID int64
}

// RowIDs returns every row id the cycle consumes, terminating row included.
func (c ClosedCycle) RowIDs() []int64 {
	ids := c.Cycle.RowIDs()
	if c.EndRowID != 0 {
		ids = append(ids, c.EndRowID)
	}
	return ids
}

// SegmentResult is the outcome of one segmentation pass.
type SegmentResult struct {
	// Cycles are closed, settled cycles ready for resolution.
	Cycles []ClosedCycle
	// Orphans are rows consumed without producing a cycle: rows preceding
	// the first observed "start", and stray "end" rows with no open cycle.
	Orphans []int64
	// Deferred counts closed cycles withheld because they ended within
	// the settle period; their rows stay unprocessed for the next pass.
	Deferred int
}

// Segmenter partitions unprocessed snapshots, ordered by capture time, into
// cycles. It is a pure state machine: two states (idle, in-cycle), the
// in-cycle state carrying the accumulating rows. A cycle spans its "start"
// row inclusive up to, but not including, the "end" row.
//
// An open cycle at the end of the input is never resolved prematurely; its
// rows simply remain unprocessed and are re-fetched on the next tick.
type Segmenter struct {
	boundaryField string
	settlePeriod  time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewSegmenter creates a segmenter reading the boundary flag from the named
// payload field. Cycles that ended less than settlePeriod ago are deferred
// so late photos can still land in staging before correlation runs.
func NewSegmenter(boundaryField string, settlePeriod time.Duration, logger *zap.Logger) *Segmenter {
	return &Segmenter{
		boundaryField: boundaryField,
		settlePeriod:  settlePeriod,
		now:           time.Now,
		logger:        logger.Named("segmenter"),
	}
}

// segmentState is the explicit tagged state threaded through one pass.
type segmentState struct {
	inCycle bool
	current []*models.RawSnapshot
}

// Segment runs the state machine over rows (already ordered by capture time).
func (s *Segmenter) Segment(rows []*models.RawSnapshot) SegmentResult {
	var (
		result SegmentResult
		state  segmentState
	)
	cutoff := s.now().Add(-s.settlePeriod)

	emit := func(closed ClosedCycle) {
		if closed.Cycle.ClosedAt.After(cutoff) {
			result.Deferred++
			s.logger.Info("Cycle closed within settle period, deferring",
				zap.String("cycle", closed.Cycle.CycleName()),
				zap.Time("closed_at", closed.Cycle.ClosedAt),
				zap.Duration("settle_period", s.settlePeriod))
			return
		}
		result.Cycles = append(result.Cycles, closed)
	}

	for _, row := range rows {
		flag := row.Payload.Boundary(s.boundaryField)

		if !state.inCycle {
			switch flag {
			case models.FlagStart:
				state = segmentState{inCycle: true, current: []*models.RawSnapshot{row}}
			default:
				// Rows before the first observed start produce no
				// cycle but must still be consumed, or they would be
				// re-fetched forever.
				if flag == models.FlagNone && row.Payload.Field(s.boundaryField) != "" {
					s.logger.Debug("Ambiguous boundary flag, treating as no transition",
						zap.Int64("row", row.ID),
						zap.String("value", row.Payload.Field(s.boundaryField)))
				}
				result.Orphans = append(result.Orphans, row.ID)
			}
			continue
		}

		switch flag {
		case models.FlagEnd:
			emit(ClosedCycle{
				Cycle:    &models.Cycle{Rows: state.current, ClosedAt: row.CapturedAt},
				EndRowID: row.ID,
			})
			state = segmentState{}
		case models.FlagStart:
			// A second start while in-cycle closes the prior cycle
			// implicitly, guaranteeing forward progress. No settle
			// deferral here: the machine has already moved on, and the
			// closing row is consumed by the next cycle, so a deferred
			// cycle could never observe its closer again.
			s.logger.Warn("Start flag while cycle open, closing prior cycle",
				zap.Int64("row", row.ID))
			result.Cycles = append(result.Cycles, ClosedCycle{
				Cycle: &models.Cycle{Rows: state.current, ClosedAt: row.CapturedAt},
			})
			state = segmentState{inCycle: true, current: []*models.RawSnapshot{row}}
		default:
			state.current = append(state.current, row)
		}
	}

	if state.inCycle {
		s.logger.Debug("Cycle still open at end of batch, leaving rows unprocessed",
			zap.Int("rows", len(state.current)))
	}

	return result
}
