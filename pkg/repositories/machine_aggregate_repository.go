package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/database"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

// MachineAggregateRepository defines data access for per-station counters.
type MachineAggregateRepository interface {
	Get(ctx context.Context, stationID string) (*models.MachineAggregate, error)
	Upsert(ctx context.Context, agg *models.MachineAggregate) error
}

type machineAggregateRepository struct {
	db *database.DB
}

// NewMachineAggregateRepository creates a new machine aggregate repository.
func NewMachineAggregateRepository(db *database.DB) MachineAggregateRepository {
	return &machineAggregateRepository{db: db}
}

func (r *machineAggregateRepository) Get(ctx context.Context, stationID string) (*models.MachineAggregate, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT station_id, total_inspections, inspections_today, today,
			total_defects, success_rate, last_inspection_at, updated_at
		FROM machine_aggregates
		WHERE station_id = $1`

	var agg models.MachineAggregate
	err := q.QueryRow(ctx, query, stationID).Scan(
		&agg.StationID,
		&agg.TotalInspections,
		&agg.InspectionsToday,
		&agg.Today,
		&agg.TotalDefects,
		&agg.SuccessRate,
		&agg.LastInspectionAt,
		&agg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get machine aggregate: %w", err)
	}
	return &agg, nil
}

func (r *machineAggregateRepository) Upsert(ctx context.Context, agg *models.MachineAggregate) error {
	q := database.QuerierFrom(ctx, r.db.Pool)

	agg.UpdatedAt = time.Now()

	query := `
		INSERT INTO machine_aggregates (station_id, total_inspections, inspections_today, today,
			total_defects, success_rate, last_inspection_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (station_id) DO UPDATE
		SET total_inspections = EXCLUDED.total_inspections,
		    inspections_today = EXCLUDED.inspections_today,
		    today = EXCLUDED.today,
		    total_defects = EXCLUDED.total_defects,
		    success_rate = EXCLUDED.success_rate,
		    last_inspection_at = EXCLUDED.last_inspection_at,
		    updated_at = EXCLUDED.updated_at`

	_, err := q.Exec(ctx, query,
		agg.StationID,
		agg.TotalInspections,
		agg.InspectionsToday,
		agg.Today,
		agg.TotalDefects,
		agg.SuccessRate,
		agg.LastInspectionAt,
		agg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert machine aggregate: %w", err)
	}
	return nil
}

// Ensure machineAggregateRepository implements MachineAggregateRepository at compile time.
var _ MachineAggregateRepository = (*machineAggregateRepository)(nil)
