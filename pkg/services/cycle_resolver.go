package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// CycleResolver computes the stable identity of a closed cycle and finds or
// derives the single inspection for it. Resolution itself never writes; the
// pipeline persists a newly derived inspection inside its per-cycle
// transaction so inspection creation, row consumption and the aggregate
// update commit together.
type CycleResolver interface {
	// Resolve returns the inspection for the cycle's natural key.
	// An existing inspection is returned unchanged (created=false);
	// otherwise a new one is derived from the cycle's aggregated
	// telemetry (created=true) but not yet persisted.
	Resolve(ctx context.Context, cycle *models.Cycle) (insp *models.Inspection, created bool, err error)
}

type cycleResolver struct {
	inspections repositories.InspectionRepository
	logger      *zap.Logger
}

// NewCycleResolver creates a new cycle resolver.
func NewCycleResolver(inspections repositories.InspectionRepository, logger *zap.Logger) CycleResolver {
	return &cycleResolver{
		inspections: inspections,
		logger:      logger.Named("resolver"),
	}
}

var _ CycleResolver = (*cycleResolver)(nil)

func (r *cycleResolver) Resolve(ctx context.Context, cycle *models.Cycle) (*models.Inspection, bool, error) {
	name := cycle.CycleName()
	fuelElement := cycle.FuelElementID()
	if name == "" || fuelElement == "" {
		r.logger.Warn("Cycle missing identity fields in every row",
			zap.String("cycle_name", name),
			zap.String("fuel_element", fuelElement),
			zap.Int64("first_row", cycle.Rows[0].ID))
	}

	existing, err := r.inspections.GetByNaturalKey(ctx, name, fuelElement, cycle.StartedAt())
	if err == nil {
		r.logger.Debug("Cycle already resolved",
			zap.String("natural_key", cycle.NaturalKey()),
			zap.String("inspection", existing.ID.String()))
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	insp := models.NewInspectionFromCycle(cycle)
	r.logger.Info("Derived new inspection from cycle",
		zap.String("natural_key", cycle.NaturalKey()),
		zap.String("status", insp.Status),
		zap.Bool("defect_found", insp.DefectFound),
		zap.Int("rows", len(cycle.Rows)))

	return insp, true, nil
}
