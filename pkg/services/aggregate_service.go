package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// AggregateService maintains the running per-station counters. ApplyInspection
// must run in the same transaction that creates the inspection (the caller
// passes a transactional context), so counters and inspections cannot drift
// apart under partial failure.
type AggregateService interface {
	ApplyInspection(ctx context.Context, insp *models.Inspection) error
	Get(ctx context.Context) (*models.MachineAggregate, error)
}

type aggregateService struct {
	stationID  string
	aggregates repositories.MachineAggregateRepository
	now        func() time.Time
	logger     *zap.Logger
}

// NewAggregateService creates an aggregate service for the given station.
func NewAggregateService(stationID string, aggregates repositories.MachineAggregateRepository, logger *zap.Logger) AggregateService {
	return &aggregateService{
		stationID:  stationID,
		aggregates: aggregates,
		now:        time.Now,
		logger:     logger.Named("aggregates"),
	}
}

var _ AggregateService = (*aggregateService)(nil)

func (s *aggregateService) ApplyInspection(ctx context.Context, insp *models.Inspection) error {
	agg, err := s.aggregates.Get(ctx, s.stationID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		agg = &models.MachineAggregate{StationID: s.stationID}
	}

	agg.Apply(insp, s.now())

	if err := s.aggregates.Upsert(ctx, agg); err != nil {
		return err
	}

	s.logger.Debug("Machine aggregate updated",
		zap.String("station", s.stationID),
		zap.Int64("total", agg.TotalInspections),
		zap.Int64("defects", agg.TotalDefects),
		zap.Float64("success_rate", agg.SuccessRate))
	return nil
}

func (s *aggregateService) Get(ctx context.Context) (*models.MachineAggregate, error) {
	return s.aggregates.Get(ctx, s.stationID)
}
