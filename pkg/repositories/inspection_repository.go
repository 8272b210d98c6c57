package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/database"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

// InspectionRepository defines data access for inspections.
type InspectionRepository interface {
	Create(ctx context.Context, insp *models.Inspection) error
	Get(ctx context.Context, id uuid.UUID) (*models.Inspection, error)

	// GetByNaturalKey looks an inspection up by its cycle identity.
	// Name and fuel element are compared trimmed and case-insensitively.
	GetByNaturalKey(ctx context.Context, cycleName, fuelElementID string, startedAt time.Time) (*models.Inspection, error)

	// FindForPhoto locates the inspection a recovered photo belongs to:
	// same cycle name and fuel element, cycle started no later than the
	// photo's capture time plus the match window. The most recent such
	// inspection wins.
	FindForPhoto(ctx context.Context, cycleName, fuelElementID string, capturedAt time.Time, window time.Duration) (*models.Inspection, error)

	List(ctx context.Context, limit, offset int) ([]*models.Inspection, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type inspectionRepository struct {
	db *database.DB
}

// NewInspectionRepository creates a new inspection repository.
func NewInspectionRepository(db *database.DB) InspectionRepository {
	return &inspectionRepository{db: db}
}

const inspectionColumns = `id, cycle_name, fuel_element_id, cycle_started_at, status,
	defect_found, product_code, serial_number, batch_number, notes, created_at, updated_at`

func (r *inspectionRepository) Create(ctx context.Context, insp *models.Inspection) error {
	q := database.QuerierFrom(ctx, r.db.Pool)

	if insp.ID == uuid.Nil {
		insp.ID = uuid.New()
	}
	now := time.Now()
	insp.CreatedAt = now
	insp.UpdatedAt = now

	query := `
		INSERT INTO inspections (id, cycle_name, fuel_element_id, cycle_started_at, status,
			defect_found, product_code, serial_number, batch_number, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := q.Exec(ctx, query,
		insp.ID,
		insp.CycleName,
		insp.FuelElementID,
		insp.CycleStartedAt,
		insp.Status,
		insp.DefectFound,
		insp.ProductCode,
		insp.SerialNumber,
		insp.BatchNumber,
		insp.Notes,
		insp.CreatedAt,
		insp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inspection: %w", err)
	}
	return nil
}

func (r *inspectionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE id = $1`
	return scanInspection(q.QueryRow(ctx, query, id))
}

func (r *inspectionRepository) GetByNaturalKey(ctx context.Context, cycleName, fuelElementID string, startedAt time.Time) (*models.Inspection, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT ` + inspectionColumns + `
		FROM inspections
		WHERE lower(btrim(cycle_name)) = $1
		  AND lower(btrim(fuel_element_id)) = $2
		  AND cycle_started_at = $3`

	return scanInspection(q.QueryRow(ctx, query,
		models.NormalizeKey(cycleName),
		models.NormalizeKey(fuelElementID),
		startedAt,
	))
}

func (r *inspectionRepository) FindForPhoto(ctx context.Context, cycleName, fuelElementID string, capturedAt time.Time, window time.Duration) (*models.Inspection, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT ` + inspectionColumns + `
		FROM inspections
		WHERE lower(btrim(cycle_name)) = $1
		  AND lower(btrim(fuel_element_id)) = $2
		  AND cycle_started_at <= $3
		ORDER BY cycle_started_at DESC
		LIMIT 1`

	return scanInspection(q.QueryRow(ctx, query,
		models.NormalizeKey(cycleName),
		models.NormalizeKey(fuelElementID),
		capturedAt.Add(window),
	))
}

func (r *inspectionRepository) List(ctx context.Context, limit, offset int) ([]*models.Inspection, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT ` + inspectionColumns + `
		FROM inspections
		ORDER BY cycle_started_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var inspections []*models.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		inspections = append(inspections, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inspections: %w", err)
	}
	return inspections, nil
}

func (r *inspectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := database.QuerierFrom(ctx, r.db.Pool)

	result, err := q.Exec(ctx, `DELETE FROM inspections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete inspection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanInspection(row pgx.Row) (*models.Inspection, error) {
	var insp models.Inspection
	err := row.Scan(
		&insp.ID,
		&insp.CycleName,
		&insp.FuelElementID,
		&insp.CycleStartedAt,
		&insp.Status,
		&insp.DefectFound,
		&insp.ProductCode,
		&insp.SerialNumber,
		&insp.BatchNumber,
		&insp.Notes,
		&insp.CreatedAt,
		&insp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan inspection: %w", err)
	}
	return &insp, nil
}

// Ensure inspectionRepository implements InspectionRepository at compile time.
var _ InspectionRepository = (*inspectionRepository)(nil)
